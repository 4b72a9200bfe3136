// Package stabilizer implements the post-anchor Market-Average Controls
// (spec §4.4): mean reversion, valuation dampening, volatility caps, and
// soft circuit breakers, applied in that order to every proposed daily
// return once a symbol's price path passes its last curated anchor.
// Historical-anchor periods pass through unaffected.
package stabilizer

import "math"

// Config holds the tunable constants from spec §4.4. Defaults below match
// the spec's literal numbers.
type Config struct {
	// Mean reversion (Ornstein-Uhlenbeck style).
	Theta float64 // speed of reversion, spec default 0.15
	MuAnnual float64 // long-run annualized drift target, spec default 0.07

	// Valuation dampening breakpoints (P/E -> multiplier on positive
	// returns only), linearly interpolated between points.
	PEBreakpoints []PEBreakpoint

	// Volatility regime caps on |daily return|, keyed by EWMA vol bands.
	VolCaps []VolCap

	// Soft circuit breakers.
	DailyBreakerThreshold  float64 // spec default 0.10
	WeeklyBreakerThreshold float64 // spec default 0.20

	// EWMA smoothing factor for realized volatility. State.Advance uses a
	// fixed 0.94 and does not read this field.
	VolEWMALambda float64
}

// PEBreakpoint is one (pe, multiplier) sample of the valuation-dampening
// curve.
type PEBreakpoint struct {
	PE         float64
	Multiplier float64
}

// VolCap is one (volEWMA-lower-bound, cap) sample of the volatility-regime
// table; the highest lowerBound <= current vol wins.
type VolCap struct {
	LowerBound float64
	Cap        float64
}

// DefaultConfig returns the spec §4.4 literal defaults.
func DefaultConfig() Config {
	return Config{
		Theta:    0.15,
		MuAnnual: 0.07,
		PEBreakpoints: []PEBreakpoint{
			{PE: 16, Multiplier: 1.0},
			{PE: 20, Multiplier: 0.7},
			{PE: 30, Multiplier: 0.4},
			{PE: 40, Multiplier: 0.2},
		},
		VolCaps: []VolCap{
			{LowerBound: 0.0, Cap: 0.40},  // <15%
			{LowerBound: 0.15, Cap: 0.25}, // 15-30%
			{LowerBound: 0.30, Cap: 0.20}, // 30-50%
			{LowerBound: 0.50, Cap: 0.15}, // >=50%
		},
		DailyBreakerThreshold:  0.10,
		WeeklyBreakerThreshold: 0.20,
		VolEWMALambda:          0.94,
	}
}

// State is the engine-persisted, market-wide running state spec §4.4
// calls out: a running market P/E and an EWMA of realized volatility.
// Both evolve one market-day at a time (internal/priceengine's market-day
// cache drives the fold);
// recomputing from the same starting point through the same day sequence
// always reproduces the same state, which is what keeps price(s,t)
// deterministic (invariant I1) even though State is mutable.
type State struct {
	MarketPE float64
	VolEWMA  float64
}

// NewState returns the initial (pre-any-post-anchor-day) state: a
// moderate market P/E and a "normal" starting volatility.
func NewState() State {
	return State{MarketPE: 18.0, VolEWMA: 0.12}
}

// Advance folds one market-wide daily return into State, returning the
// updated State. Called once per calendar day since the Unix epoch, in
// increasing day order, by internal/priceengine's market-day cache.
func (s State) Advance(marketDailyReturn float64, earningsGrowthDaily float64) State {
	// P/E drifts with price vs. earnings growth: a day where price grows
	// faster than earnings expands the multiple, and vice versa.
	peGrowth := marketDailyReturn - earningsGrowthDaily
	pe := s.MarketPE * (1 + peGrowth)
	if pe < 5 {
		pe = 5
	}
	if pe > 60 {
		pe = 60
	}

	// EWMA of squared returns, annualized via sqrt(252).
	variance := s.VolEWMA * s.VolEWMA / 252
	lambda := 0.94
	variance = lambda*variance + (1-lambda)*marketDailyReturn*marketDailyReturn
	vol := math.Sqrt(variance) * math.Sqrt(252)

	return State{MarketPE: pe, VolEWMA: vol}
}

// Controller applies the four Market-Average Controls mechanisms in order
// to one proposed daily return.
type Controller struct {
	cfg Config
}

// New constructs a Controller with the given Config.
func New(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// Dampen applies mean reversion, valuation dampening, volatility caps, and
// soft circuit breakers, in that order, to a proposed daily return.
// trailingReturns is the symbol's last up-to-4 already-dampened daily
// returns (oldest first), used to evaluate the weekly circuit breaker
// against the cumulative 5-day (this one included) move.
func (c *Controller) Dampen(proposed float64, st State, trailingReturns []float64) float64 {
	r := c.meanRevert(proposed)
	r = c.dampenValuation(r, st.MarketPE)
	r = c.capVolatility(r, st.VolEWMA)
	r = c.circuitBreak(r, trailingReturns)

	// Hard invariant (spec I2): no single-day move may exceed 50%.
	if r > 0.50 {
		r = 0.50
	}
	if r < -0.50 {
		r = -0.50
	}
	return r
}

// meanRevert applies r' = r - theta*(r - mu), mu scaled from annualized to
// a daily step (assuming ~252 trading days/year). Half-life by
// construction is ln(2)/theta years ≈ 4.6 years at theta=0.15.
func (c *Controller) meanRevert(r float64) float64 {
	muDaily := c.cfg.MuAnnual / 252
	return r - c.cfg.Theta*(r-muDaily)
}

// dampenValuation multiplies positive returns by a smoothly interpolated
// factor of the running market P/E; negative returns pass through
// unchanged (spec: "For positive returns only").
func (c *Controller) dampenValuation(r float64, pe float64) float64 {
	if r <= 0 {
		return r
	}
	mult := interpolateMultiplier(c.cfg.PEBreakpoints, pe)
	return r * mult
}

func interpolateMultiplier(points []PEBreakpoint, pe float64) float64 {
	if len(points) == 0 {
		return 1.0
	}
	if pe <= points[0].PE {
		return points[0].Multiplier
	}
	last := points[len(points)-1]
	if pe >= last.PE {
		return last.Multiplier
	}
	for i := 0; i < len(points)-1; i++ {
		a, b := points[i], points[i+1]
		if pe >= a.PE && pe <= b.PE {
			frac := (pe - a.PE) / (b.PE - a.PE)
			return a.Multiplier + frac*(b.Multiplier-a.Multiplier)
		}
	}
	return last.Multiplier
}

// capVolatility clamps |r| to the regime-appropriate ceiling given the
// running EWMA volatility.
func (c *Controller) capVolatility(r float64, volEWMA float64) float64 {
	cap := c.cfg.VolCaps[0].Cap
	for _, band := range c.cfg.VolCaps {
		if volEWMA >= band.LowerBound {
			cap = band.Cap
		}
	}
	if r > cap {
		return cap
	}
	if r < -cap {
		return -cap
	}
	return r
}

// circuitBreak applies the soft daily/weekly breaker: excursions beyond
// threshold are compressed to threshold + half the overage, rather than
// hard-capped, so moves beyond threshold still register as larger moves.
func (c *Controller) circuitBreak(r float64, trailingReturns []float64) float64 {
	r = softBreak(r, c.cfg.DailyBreakerThreshold)

	weekly := r
	for _, tr := range trailingReturns {
		weekly += tr
	}
	if math.Abs(weekly) > c.cfg.WeeklyBreakerThreshold {
		overage := math.Abs(weekly) - c.cfg.WeeklyBreakerThreshold
		compressedWeekly := sign(weekly) * (c.cfg.WeeklyBreakerThreshold + 0.5*overage)
		// Scale today's contribution down proportionally so the
		// (now-compressed) cumulative weekly move is internally
		// consistent, without revising already-settled prior days.
		priorSum := weekly - r
		r = compressedWeekly - priorSum
	}
	return r
}

func softBreak(r, threshold float64) float64 {
	if math.Abs(r) <= threshold {
		return r
	}
	overage := math.Abs(r) - threshold
	return sign(r) * (threshold + 0.5*overage)
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}
