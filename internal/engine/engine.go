// Package engine owns the single mutation lock over
// {EngineState, Account, ShareAvailability, PendingOrders} (spec §5: one
// writer, many readers) and the tick loop that drives price advancement,
// corporate events, and cash events forward as wall-clock time passes.
// Every mutation batch is committed to persistence, through a
// sony/gobreaker circuit breaker, before the caller that triggered it is
// acknowledged.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/sawpanic/marketsim/internal/account"
	"github.com/sawpanic/marketsim/internal/availability"
	"github.com/sawpanic/marketsim/internal/cashevents"
	"github.com/sawpanic/marketsim/internal/clock"
	"github.com/sawpanic/marketsim/internal/corpevents"
	"github.com/sawpanic/marketsim/internal/engerr"
	"github.com/sawpanic/marketsim/internal/persistence"
	"github.com/sawpanic/marketsim/internal/priceengine"
	"github.com/sawpanic/marketsim/internal/refdata"
	"github.com/sawpanic/marketsim/internal/tradegate"
	"github.com/sawpanic/marketsim/internal/views"
)

// Engine bundles every mutable piece of simulation state behind one
// mutex, plus the read-only services (catalog, price engine, clock) and
// the trade gate that validates and applies orders.
type Engine struct {
	mu sync.RWMutex

	catalog *refdata.Catalog
	prices  *priceengine.Engine
	clock   *clock.Clock
	avail   *availability.Book
	gate    *tradegate.Gate

	state *account.EngineState
	acct  *account.Account

	repo       persistence.Repository
	breaker    *gobreaker.CircuitBreaker
	globalSeed int64
}

// Config bundles the construction-time dependencies for New.
type Config struct {
	Catalog      *refdata.Catalog
	Prices       *priceengine.Engine
	Clock        *clock.Clock
	Availability *availability.Book
	Repo         persistence.Repository
	StartingCash float64
	Seed         int64
}

// epoch anchors CalendarDaysSince for the buyback/issuance PRNG day
// index, independent of any in-flight EngineState mutation.
var epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, clock.Location)

// New constructs an Engine seeded with a fresh Account and EngineState.
// Callers that want to resume a persisted run should use Restore instead.
func New(cfg Config) *Engine {
	e := &Engine{
		catalog:    cfg.Catalog,
		prices:     cfg.Prices,
		clock:      cfg.Clock,
		avail:      cfg.Availability,
		state:      account.NewEngineState(cfg.Clock.Now()),
		acct:       account.NewAccount(cfg.StartingCash),
		repo:       cfg.Repo,
		globalSeed: cfg.Seed,
	}
	e.gate = tradegate.New(cfg.Clock, cfg.Prices, cfg.Availability, cfg.Catalog)
	e.breaker = newCommitBreaker()
	return e
}

// Restore reconstructs an Engine from whatever EngineState/Account
// aggregate persistence last committed, falling back to a fresh start if
// nothing was ever saved.
func Restore(ctx context.Context, cfg Config) (*Engine, error) {
	e := New(cfg)

	row, err := cfg.Repo.Engine.Load(ctx)
	if err != nil {
		return nil, engerr.Wrap(engerr.InvalidArgument, "failed to load engine_state", err)
	}
	if row != nil {
		e.state = fromEngineStateRow(*row)
	}

	snap, err := cfg.Repo.Account.Load(ctx, accountID)
	if err != nil {
		return nil, engerr.Wrap(engerr.InvalidArgument, "failed to load account snapshot", err)
	}
	if snap != nil {
		e.acct = fromAccountSnapshot(snap)
	}

	return e, nil
}

func newCommitBreaker() *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{Name: "persistence-commit"}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		total := counts.Requests
		if total < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(total) > 0.05
	}
	return gobreaker.NewCircuitBreaker(st)
}

// Tick records now as the engine's current instant and runs every
// time-driven subsystem in
// order: corporate events, cash events, pending-order re-evaluation,
// buyback/issuance cycles, then commits the resulting batch.
func (e *Engine) Tick(ctx context.Context, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.CurrentInstant = now

	corpevents.Process(e.catalog, e.prices, e.avail, e.acct, now)
	cashevents.Process(e.catalog, e.prices, e.state, e.acct, now)
	e.reevaluatePendingOrders(now)
	e.runBuybackAndIssuance(now)

	return e.commit(ctx)
}

// reevaluatePendingOrders walks open limit orders and fills any that now
// cross the current market price, or expires ones past ExpiresAt (spec
// §4.8).
func (e *Engine) reevaluatePendingOrders(now time.Time) {
	if !e.clock.IsMarketOpen(now) {
		return
	}
	remaining := e.acct.PendingOrders[:0]
	for _, po := range e.acct.PendingOrders {
		if po.Status != account.PendingOpen {
			continue
		}
		if now.After(po.ExpiresAt) {
			po.Status = account.PendingExpired
			continue
		}
		quote, err := e.prices.Price(po.Symbol, now)
		if err != nil {
			remaining = append(remaining, po)
			continue
		}
		crosses := (po.Side == account.SideBuy && quote.Price <= po.LimitPrice) ||
			(po.Side == account.SideSell && quote.Price >= po.LimitPrice)
		if !crosses {
			remaining = append(remaining, po)
			continue
		}
		order := tradegate.Order{
			Symbol: po.Symbol,
			Side:   po.Side,
			Qty:    po.Qty,
			Kind:   account.KindMarket,
		}
		if _, err := e.gate.Execute(e.acct, order, now); err == nil {
			po.Status = account.PendingFilled
		} else {
			remaining = append(remaining, po)
		}
	}
	e.acct.PendingOrders = remaining
}

// runBuybackAndIssuance fires the monthly buyback and quarterly issuance
// cycles the first tick that crosses into a new period (spec §4.5). The
// day index is days-since-epoch, not days-since-last-tick, so each
// calendar month draws its own independent PRNG outcome rather than
// replaying day 0 forever.
func (e *Engine) runBuybackAndIssuance(now time.Time) {
	day := clock.CalendarDaysSince(epoch, now)
	if !sameMonth(e.state.LastBuybackInstant, now) {
		e.avail.RunBuybackCycle(e.globalSeed, int64(day), e.state.RecentVolatilityEWMA)
		e.state.LastBuybackInstant = now
	}
	q := quarterIndex(now)
	if q != e.state.LastIssuanceQuarter {
		e.avail.RunIssuanceCycle(e.globalSeed, int64(q), e.state.RecentVolatilityEWMA)
		e.state.LastIssuanceQuarter = q
	}
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

func quarterIndex(t time.Time) int {
	return t.Year()*4 + (int(t.Month())-1)/3
}

// ExecuteOrder validates and applies a single trade under the mutation
// lock, then commits the resulting batch.
func (e *Engine) ExecuteOrder(ctx context.Context, o tradegate.Order) (tradegate.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	res, err := e.gate.Execute(e.acct, o, now)
	if err != nil {
		return res, err
	}
	if err := e.commit(ctx); err != nil {
		return res, engerr.Wrap(engerr.InvalidArgument, "order filled but commit failed", err)
	}
	return res, nil
}

// SetSpeed changes the clock multiplier under the mutation lock so a
// concurrent tick never observes a half-updated state.
func (e *Engine) SetSpeed(m clock.Multiplier) clock.Multiplier {
	e.mu.Lock()
	defer e.mu.Unlock()
	applied := e.clock.SetMultiplier(m)
	e.state.SpeedMultiplier = int(applied)
	return applied
}

// Pause halts the clock and marks EngineState accordingly.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock.Pause()
	e.state.Paused = true
}

// Resume unhalts the clock.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock.Resume()
	e.state.Paused = false
}

// Snapshot returns read-only copies of EngineState and Account for
// derived views (internal/views). Callers must not mutate the pointees.
func (e *Engine) Snapshot() (account.EngineState, account.Account) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return *e.state, *e.acct
}

// Price proxies to the price engine under a read lock, so an HTTP query
// never races a concurrent crash trigger/deactivate mutating the
// catalog's crash list (spec §5: readers must observe a consistent
// snapshot).
func (e *Engine) Price(symbol string, t time.Time) (priceengine.Quote, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.prices.Price(symbol, t)
}

// Views constructs a views.Reader bound to this Engine's catalog/prices/
// availability. Callers should invoke read methods against it only while
// they otherwise hold no stale reference across a mutation — in practice
// every HTTP handler calls this, immediately reads, and discards it
// within one request.
func (e *Engine) Views() *views.Reader {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return views.New(e.catalog, e.prices, e.avail)
}

// CancelOrder removes a pending limit order by id, if still open (spec
// §5: "cancellation is a single mutation").
func (e *Engine) CancelOrder(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, po := range e.acct.PendingOrders {
		if po.ID == id && po.Status == account.PendingOpen {
			po.Status = account.PendingCanceled
			return nil
		}
	}
	return engerr.New(engerr.NotFound, "no open pending order "+id)
}

// TriggerCrash activates a dynamic crash scenario (spec §6 "POST
// /api/crash/trigger"). The scenario's Start is forced to now so its
// cascades/recovery are computed relative to the instant it was
// triggered, regardless of whatever Start the caller supplied.
func (e *Engine) TriggerCrash(scenario refdata.CrashScenario) {
	e.mu.Lock()
	defer e.mu.Unlock()
	scenario.Start = e.state.CurrentInstant
	e.catalog.AddCrash(scenario)
}

// DeactivateCrash truncates an active scenario's effect as of now (spec
// §6 "POST /api/crash/deactivate/:id").
func (e *Engine) DeactivateCrash(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.catalog.DeactivateCrash(id, e.state.CurrentInstant) {
		return engerr.New(engerr.NotFound, "no such crash scenario "+id)
	}
	return nil
}

// Crashes returns a read-only copy of every known crash scenario
// (static + dynamically triggered), for the "GET /api/crash/*" listing.
func (e *Engine) Crashes() []refdata.CrashScenario {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]refdata.CrashScenario(nil), e.catalog.Crashes...)
}

// PruneRetention runs the configured data-retention pruning pass under
// the mutation lock (spec §5: "runs on a configurable schedule ... under
// the same mutation lock").
func (e *Engine) PruneRetention(ctx context.Context, olderThan time.Time) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg, err := e.repo.Retention.LoadConfig(ctx)
	if err != nil {
		return 0, err
	}
	if cfg == nil {
		cfg = &persistence.RetentionConfigRow{PruneIntervalDays: 30, PreserveOpenLoans: true, PreserveUnreadMail: true, PreserveUnsettledTaxes: true}
	}
	n, err := e.repo.Retention.Prune(ctx, olderThan, *cfg)
	if err != nil {
		return 0, err
	}
	e.state.LastRetentionRun = e.state.CurrentInstant
	return n, nil
}

// ClockRef exposes the engine's clock for read-only HTTP handlers (spec §6
// "GET /api/time").
func (e *Engine) ClockRef() *clock.Clock { return e.clock }
