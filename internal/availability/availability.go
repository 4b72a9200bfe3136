// Package availability tracks per-symbol share-count bookkeeping:
// outstanding/float/available/player-owned counts, buyback and issuance
// cycles, and split propagation (spec §4.5). State here is mutated only
// under the engine's single mutation lock; this package itself holds no
// lock of its own — that is internal/engine's job.
package availability

import (
	"github.com/sawpanic/marketsim/internal/engerr"
	"github.com/sawpanic/marketsim/internal/priceengine/prng"
)

// Counts is the four-field per-symbol record (spec §3 ShareAvailability).
type Counts struct {
	TotalOutstanding    float64
	PublicFloat         float64
	AvailableForTrading float64
	PlayerOwned         float64
}

// floorFraction is the buyback floor: available_for_trading never drops
// below this fraction of total_outstanding (spec §4.5, invariant I5).
const floorFraction = 0.10

// Book is the engine-wide share-availability ledger, one Counts per
// symbol.
type Book struct {
	bySymbol map[string]*Counts
}

// New constructs an empty Book. Symbols are seeded via Seed as the
// roster is loaded or as IPOs occur.
func New() *Book {
	return &Book{bySymbol: make(map[string]*Counts)}
}

// Seed installs the initial counts for a symbol (idempotent: a repeat
// call overwrites, used for initial catalog load and for IPO events).
func (b *Book) Seed(symbol string, c Counts) {
	cp := c
	b.bySymbol[symbol] = &cp
}

func (b *Book) get(symbol string) (*Counts, error) {
	c, ok := b.bySymbol[symbol]
	if !ok {
		return nil, engerr.New(engerr.UnknownSymbol, symbol)
	}
	return c, nil
}

// Snapshot returns a copy of symbol's current counts, for read-only
// callers (derived views, trade-gate validation).
func (b *Book) Snapshot(symbol string) (Counts, error) {
	c, err := b.get(symbol)
	if err != nil {
		return Counts{}, err
	}
	return *c, nil
}

// CanPurchase reports whether qty shares of symbol are available to buy.
func (b *Book) CanPurchase(symbol string, qty float64) (bool, float64, error) {
	c, err := b.get(symbol)
	if err != nil {
		return false, 0, err
	}
	if qty <= c.AvailableForTrading {
		return true, c.AvailableForTrading, nil
	}
	return false, c.AvailableForTrading, nil
}

// ReservePurchase decrements available_for_trading and increments
// player_owned by qty. Caller (Trade Gate) must have already validated
// CanPurchase; this method does not re-check and will drive counts
// negative if misused, by design — validation is the gate's job, this
// is the mutation.
func (b *Book) ReservePurchase(symbol string, qty float64) error {
	c, err := b.get(symbol)
	if err != nil {
		return err
	}
	c.AvailableForTrading -= qty
	c.PlayerOwned += qty
	return nil
}

// ReserveSale is ReservePurchase's inverse: shares return to the
// available pool, player_owned decreases.
func (b *Book) ReserveSale(symbol string, qty float64) error {
	c, err := b.get(symbol)
	if err != nil {
		return err
	}
	c.AvailableForTrading += qty
	c.PlayerOwned -= qty
	return nil
}

// ApplySplit multiplies all four counts by ratio (spec §3: "splits
// multiply all four fields by the ratio").
func (b *Book) ApplySplit(symbol string, ratio float64) error {
	c, err := b.get(symbol)
	if err != nil {
		return err
	}
	c.TotalOutstanding *= ratio
	c.PublicFloat *= ratio
	c.AvailableForTrading *= ratio
	c.PlayerOwned *= ratio
	return nil
}

// RunBuybackCycle applies the monthly buyback policy (spec §4.5) across
// every seeded symbol for the given day index (calendar days since a
// fixed epoch, supplied by the caller so the draw is deterministic and
// reproducible — see internal/priceengine/prng). Returns the symbols
// that bought back and the fraction of public_float retired for each.
func (b *Book) RunBuybackCycle(globalSeed, dayIndex int64, sentiment float64) map[string]float64 {
	results := make(map[string]float64)
	if sentiment <= 0.3 {
		return results
	}
	prob := (sentiment - 0.3) * 0.15
	if prob < 0 {
		prob = 0
	}
	for symbol, c := range b.bySymbol {
		stream := prng.New(globalSeed, symbol, prng.PurposeBuyback)
		if !stream.Bool(dayIndex, 0, prob) {
			continue
		}
		frac := 0.005 + stream.Uniform01(dayIndex, 1)*(0.02-0.005)
		amount := frac * c.PublicFloat
		floor := floorFraction * c.TotalOutstanding

		newOutstanding := c.TotalOutstanding - amount
		newFloat := c.PublicFloat - amount
		newAvailable := c.AvailableForTrading - amount
		if newAvailable < floor {
			deficit := floor - newAvailable
			amount -= deficit
			if amount < 0 {
				amount = 0
			}
			newOutstanding = c.TotalOutstanding - amount
			newFloat = c.PublicFloat - amount
			newAvailable = c.AvailableForTrading - amount
		}
		if amount <= 0 {
			continue
		}
		c.TotalOutstanding = newOutstanding
		c.PublicFloat = newFloat
		c.AvailableForTrading = newAvailable
		results[symbol] = amount / (c.PublicFloat + amount)
	}
	return results
}

// RunIssuanceCycle applies the quarterly issuance policy (spec §4.5):
// new shares are minted onto total_outstanding, public_float, and
// available_for_trading; player_owned is untouched.
func (b *Book) RunIssuanceCycle(globalSeed, quarterIndex int64, sentiment float64) map[string]float64 {
	results := make(map[string]float64)
	prob := 0.02
	if sentiment < 0 {
		prob = 0.05
	}
	for symbol, c := range b.bySymbol {
		stream := prng.New(globalSeed, symbol, prng.PurposeIssuance)
		if !stream.Bool(quarterIndex, 0, prob) {
			continue
		}
		frac := 0.01 + stream.Uniform01(quarterIndex, 1)*(0.05-0.01)
		amount := frac * c.TotalOutstanding

		c.TotalOutstanding += amount
		c.PublicFloat += amount
		c.AvailableForTrading += amount
		results[symbol] = frac
	}
	return results
}
