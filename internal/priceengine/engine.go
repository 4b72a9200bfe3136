// Package priceengine implements the deterministic (symbol, instant) ->
// price contract (spec §4.3): anchor interpolation, post-anchor
// synthesis, crash overlays, split/cash-event/bankruptcy handling, and the
// per-symbol counter-based PRNG that makes every repeatable query
// reproducible.
package priceengine

import (
	"math"
	"sync"
	"time"

	"github.com/sawpanic/marketsim/internal/clock"
	"github.com/sawpanic/marketsim/internal/engerr"
	"github.com/sawpanic/marketsim/internal/priceengine/prng"
	"github.com/sawpanic/marketsim/internal/priceengine/stabilizer"
	"github.com/sawpanic/marketsim/internal/refdata"
)

// Quote is the result of a successful Price query.
type Quote struct {
	Price      float64
	ChangePct  float64 // relative to the day-before price computed by the same rule
}

// Engine is the deterministic price oracle. One Engine is created per
// savegame; GlobalSeed is constant within that savegame (spec §6).
type Engine struct {
	catalog    *refdata.Catalog
	globalSeed int64

	overrides *overrideStore

	stabilizerCfg stabilizer.Config
	marketDays    *marketDayCache

	// dailyCache memoizes computed (symbol, dayIndex) raw prices so that
	// repeated queries don't re-walk the whole post-anchor path; it is a
	// pure, rebuildable derivation (spec §9 "Caches"), never a source of
	// truth, so losing it changes nothing but latency.
	dailyCache *priceCache
}

// New constructs an Engine over a loaded Catalog.
func New(catalog *refdata.Catalog, globalSeed int64) *Engine {
	return &Engine{
		catalog:       catalog,
		globalSeed:    globalSeed,
		overrides:     newOverrideStore(),
		stabilizerCfg: stabilizer.DefaultConfig(),
		marketDays:    newMarketDayCache(globalSeed),
		dailyCache:    newPriceCache(),
	}
}

// Price implements the spec §4.3 contract. Bonds and index funds are
// dispatched to their own valuation rules (§3); every other symbol goes
// through the anchor/post-anchor stock synthesis path.
func (e *Engine) Price(symbol string, t time.Time) (Quote, error) {
	if bond, ok := e.catalog.Bonds[symbol]; ok {
		return BondPrice(bond, t)
	}
	if fund, ok := e.catalog.Indices[symbol]; ok {
		return IndexPrice(fund, t, e.Price)
	}

	meta, override, err := e.resolveSecurity(symbol, t)
	if err != nil {
		return Quote{}, err
	}

	today, err := e.rawPriceAt(meta, override, t)
	if err != nil {
		return Quote{}, err
	}

	prevDay := t.AddDate(0, 0, -1)
	change := 0.0
	if meta.IsListedAt(prevDay) {
		if yesterday, err := e.rawPriceAt(meta, override, prevDay); err == nil && yesterday.Price > 0 {
			change = today.Price/yesterday.Price - 1
		}
	}

	return Quote{Price: today.Price, ChangePct: change}, nil
}

// resolveSecurity merges the read-only catalog entry with any applied
// corporate-event overrides (IPO listing, delisting via cash-acquisition
// or bankruptcy) and checks the listed_from/retired_at window.
func (e *Engine) resolveSecurity(symbol string, t time.Time) (refdata.SecurityMeta, *symbolOverride, error) {
	meta, ok := e.catalog.Securities[symbol]
	override := e.overrides.get(symbol)
	if !ok && override.ipoListedFrom == nil {
		return refdata.SecurityMeta{}, nil, engerr.New(engerr.UnknownSymbol, symbol)
	}
	if override.ipoListedFrom != nil {
		meta.ListedFrom = *override.ipoListedFrom
	}
	if override.retiredAt != nil {
		meta.RetiredAt = override.retiredAt
	}
	if t.Before(meta.ListedFrom) {
		return meta, override, engerr.New(engerr.NotListedYet, symbol)
	}
	if meta.RetiredAt != nil && !t.Before(*meta.RetiredAt) {
		return meta, override, engerr.New(engerr.Delisted, symbol)
	}
	return meta, override, nil
}

type rawQuote struct {
	Price float64
}

// rawPriceAt computes the price at t before the day-over-day change_pct
// wrapper, applying bankruptcy/cash-acquisition truncation and the split
// factor on top of the underlying anchor/post-anchor synthesis.
func (e *Engine) rawPriceAt(meta refdata.SecurityMeta, o *symbolOverride, t time.Time) (rawQuote, error) {
	if o.bankruptAt != nil && !t.Before(*o.bankruptAt) {
		return rawQuote{Price: 0}, nil
	}
	if o.cashAcquisition != nil && !t.Before(o.cashAcquisition.effective) {
		return rawQuote{Price: o.cashAcquisition.price}, nil
	}

	unsplit := e.unsplitPriceAt(meta, o, t)
	factor := o.splitFactorAt(t)
	price := unsplit / factor
	if price < 0.01 {
		price = 0.01
	}
	return rawQuote{Price: price}, nil
}

// unsplitPriceAt implements the anchor/post-anchor synthesis algorithm
// (spec §4.3 steps 2-4) on the pre-split price path; splits are applied
// afterwards by the caller.
func (e *Engine) unsplitPriceAt(meta refdata.SecurityMeta, o *symbolOverride, t time.Time) float64 {
	anchors := e.catalog.Anchors[meta.Symbol]
	if len(anchors) == 0 {
		if o.ipoInitialAnchor != nil {
			listedFrom := meta.ListedFrom
			if o.ipoListedFrom != nil {
				listedFrom = *o.ipoListedFrom
			}
			anchors = []refdata.Anchor{{Instant: listedFrom, Price: *o.ipoInitialAnchor}}
		} else {
			return 1.0 // no curated history at all: flat synthetic dollar baseline
		}
	}
	first, last := anchors[0], anchors[len(anchors)-1]

	if t.Before(first.Instant) {
		return first.Price
	}
	if !t.Before(last.Instant) {
		return e.postAnchorPrice(meta, last, t)
	}
	return e.interpolate(meta, anchors, t)
}

// interpolate implements intra-anchor synthesis (spec §4.3.1): log-linear
// interpolation between bracketing anchors, plus sector/era bias and crash
// overlays, plus clamped daily noise.
func (e *Engine) interpolate(meta refdata.SecurityMeta, anchors []refdata.Anchor, t time.Time) float64 {
	lo, hi := bracket(anchors, t)

	spanDays := float64(clock.CalendarDaysSince(lo.Instant, hi.Instant))
	if spanDays <= 0 {
		return lo.Price
	}
	elapsedDays := float64(clock.CalendarDaysSince(lo.Instant, t))
	frac := elapsedDays / spanDays

	logLo, logHi := math.Log(lo.Price), math.Log(hi.Price)
	base := math.Exp(logLo + frac*(logHi-logLo))

	bias := sectorEraAnnualBias(meta.Sector, t) / 252
	crash := e.crashOverlayAt(meta.Symbol, meta.Sector, t)
	noise := e.dailyNoise(meta.Symbol, t, crash.isCrashDay)

	adjustedReturn := bias + crash.returnShift + noise
	price := base * (1 + adjustedReturn)
	if price < 0.01 {
		price = 0.01
	}
	return price
}

func bracket(anchors []refdata.Anchor, t time.Time) (refdata.Anchor, refdata.Anchor) {
	// Anchors are sorted ascending. Find the first anchor strictly after
	// t; the prior one (or itself, at the boundary) brackets from below.
	// Per spec §4.3.4, an anchor exactly at a boundary belongs to the
	// later segment, so ties go to the right bracket.
	for i := 1; i < len(anchors); i++ {
		if t.Before(anchors[i].Instant) {
			return anchors[i-1], anchors[i]
		}
	}
	return anchors[len(anchors)-2], anchors[len(anchors)-1]
}

// postAnchorPrice implements forward synthesis (spec §4.3.2) from the
// last anchor to t, day by day, via the memoized market-day/price cache,
// passing each day's proposed return through the Market-Average
// Controls.
func (e *Engine) postAnchorPrice(meta refdata.SecurityMeta, lastAnchor refdata.Anchor, t time.Time) float64 {
	targetDay := clock.CalendarDaysSince(lastAnchor.Instant, t)
	if targetDay <= 0 {
		return lastAnchor.Price
	}
	return e.dailyCache.priceAtDay(e, meta, lastAnchor, targetDay)
}

// stepOneDay computes day (dayIndex) from the cached price at
// (dayIndex-1) [or lastAnchor.Price for day 0], applying
// annualGrowthRate, crash overlays, clamped daily noise, and the
// Market-Average Controls.
func (e *Engine) stepOneDay(meta refdata.SecurityMeta, lastAnchor refdata.Anchor, dayIndex int, prevPrice float64) (float64, float64) {
	instant := lastAnchor.Instant.AddDate(0, 0, dayIndex)

	growth := annualGrowthRate(meta.Sector, instant) / 252
	crash := e.crashOverlayAt(meta.Symbol, meta.Sector, instant)
	noise := e.dailyNoise(meta.Symbol, instant, crash.isCrashDay)

	proposed := growth + crash.returnShift + noise

	st := e.marketDays.stateAtDay(e, clock.CalendarDaysSince(time.Unix(0, 0).UTC(), instant))
	trailing := e.dailyCache.trailingReturns(meta.Symbol, dayIndex, 4)
	ctrl := stabilizer.New(e.stabilizerCfg)
	adjusted := ctrl.Dampen(proposed, st, trailing)

	price := prevPrice * (1 + adjusted)
	if price < 0.01 {
		price = 0.01
	}
	return price, adjusted
}

// dailyNoise draws the per-symbol counter-keyed GARCH-like noise term
// (spec §4.3.1), clamped to +-25% normally or +-40% on an explicit crash
// day.
func (e *Engine) dailyNoise(symbol string, t time.Time, isCrashDay bool) float64 {
	dayIdx := clock.CalendarDaysSince(time.Unix(0, 0).UTC(), t)
	stream := prng.New(e.globalSeed, symbol, prng.PurposeDailyNoise)
	z := stream.StandardNormal(int64(dayIdx), 0)
	vol := 0.015 // baseline daily vol ~ matches "normal" regime texture
	r := z * vol

	clampPct := 0.25
	if isCrashDay {
		clampPct = 0.40
	}
	if r > clampPct {
		r = clampPct
	}
	if r < -clampPct {
		r = -clampPct
	}
	return r
}

// priceCache memoizes per-(symbol, dayIndex) post-anchor prices and
// returns, extended lazily forward. It is keyed from each symbol's own
// last-anchor day 0, so two different symbols never collide.
type priceCache struct {
	mu      sync.Mutex
	prices  map[string]map[int]float64
	returns map[string]map[int]float64
	maxDay  map[string]int
}

func newPriceCache() *priceCache {
	return &priceCache{
		prices:  make(map[string]map[int]float64),
		returns: make(map[string]map[int]float64),
		maxDay:  make(map[string]int),
	}
}

func (c *priceCache) priceAtDay(e *Engine, meta refdata.SecurityMeta, anchor refdata.Anchor, targetDay int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	symbol := meta.Symbol
	if c.prices[symbol] == nil {
		c.prices[symbol] = map[int]float64{0: anchor.Price}
		c.returns[symbol] = map[int]float64{}
		c.maxDay[symbol] = 0
	}

	for day := c.maxDay[symbol] + 1; day <= targetDay; day++ {
		prev := c.prices[symbol][day-1]
		price, ret := e.stepOneDay(meta, anchor, day, prev)
		c.prices[symbol][day] = price
		c.returns[symbol][day] = ret
		c.maxDay[symbol] = day
	}
	return c.prices[symbol][targetDay]
}

// trailingReturns returns up to n already-computed daily returns
// immediately before dayIndex, oldest first.
func (c *priceCache) trailingReturns(symbol string, dayIndex int, n int) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	rets := c.returns[symbol]
	if rets == nil {
		return nil
	}
	var out []float64
	for d := dayIndex - n; d < dayIndex; d++ {
		if d < 0 {
			continue
		}
		if r, ok := rets[d]; ok {
			out = append(out, r)
		}
	}
	return out
}

// marketDayCache memoizes the shared Market-Average Controls state
// (market_pe, vol_ewma) per calendar day since the Unix epoch,
// independent of any specific symbol, so every symbol's post-anchor
// synthesis consults the same dampening snapshot for a given day (spec
// §4.4: "market_pe" and "vol_ewma" are engine-wide, not per-symbol).
type marketDayCache struct {
	mu     sync.Mutex
	states map[int]stabilizer.State
	maxDay int
	seed   int64
}

func newMarketDayCache(seed int64) *marketDayCache {
	return &marketDayCache{states: map[int]stabilizer.State{0: stabilizer.NewState()}, seed: seed}
}

func (m *marketDayCache) stateAtDay(e *Engine, dayIndex int) stabilizer.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dayIndex <= 0 {
		return m.states[0]
	}
	stream := prng.New(m.seed, "__MARKET__", prng.PurposeEconIndicator)
	for day := m.maxDay + 1; day <= dayIndex; day++ {
		marketReturn := stream.StandardNormal(int64(day), 0) * 0.01
		earningsGrowth := 0.08 / 252
		m.states[day] = m.states[day-1].Advance(marketReturn, earningsGrowth)
		m.maxDay = day
	}
	return m.states[dayIndex]
}

// crashOverlay is the composed effect of every active crash scenario at a
// given instant (spec §3: "the crash overlay is the sum over active
// scenarios").
type crashOverlay struct {
	returnShift float64
	isCrashDay  bool
}

// crashOverlayAt sums every crash scenario's effective impact at t for the
// given symbol's sector (spec §3, §4.3.4: overlapping scenarios apply
// additively).
func (e *Engine) crashOverlayAt(symbol, sector string, t time.Time) crashOverlay {
	var out crashOverlay
	for _, c := range e.catalog.Crashes {
		if t.Before(c.Start) {
			continue
		}
		daysSince := clock.CalendarDaysSince(c.Start, t)
		if daysSince > c.MaxCascadeDelayDays() {
			continue
		}
		cascadeMult := cascadeMultiplier(c.Cascades, daysSince)
		recoveryResidual := recoveryResidual(c.Recovery, daysSince)
		sectorShift := c.Impacts.SectorShifts[sector]
		shift := (c.Impacts.MarketReturnShift + sectorShift) * cascadeMult * recoveryResidual
		out.returnShift += shift
		if daysSince == 0 {
			out.isCrashDay = true
		}
	}
	return out
}

func cascadeMultiplier(cascades []refdata.Cascade, daysSince int) float64 {
	if daysSince == 0 {
		return 1.0
	}
	for _, c := range cascades {
		if c.DelayDays == daysSince {
			return c.Multiplier
		}
	}
	return 0.0
}

// recoveryResidual returns the fraction of the original shock still in
// effect `daysSince` days after the scenario's start, per its recovery
// shape.
func recoveryResidual(r refdata.Recovery, daysSince int) float64 {
	if r.DurationDays <= 0 {
		return 1.0
	}
	frac := float64(daysSince) / float64(r.DurationDays)
	if frac > 1 {
		frac = 1
	}
	switch r.Shape {
	case refdata.RecoveryImmediate:
		if daysSince == 0 {
			return 1.0
		}
		return 0.0
	case refdata.RecoveryV:
		return 1 - frac
	case refdata.RecoveryGradual, refdata.RecoverySlow:
		return math.Pow(1-frac, 1.5)
	case refdata.RecoveryProlonged, refdata.RecoveryDecadeLong:
		return math.Pow(1-frac, 0.5)
	default:
		return 1 - frac
	}
}
