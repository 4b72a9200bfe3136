// Package tradegate implements execute_trade (spec §4.8): the fail-fast
// validation chain (clock -> price engine -> availability -> account),
// fee/tax computation, and the atomic cash/portfolio/availability
// mutation with transaction and purchase-lot recording.
package tradegate

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/sawpanic/marketsim/internal/account"
	"github.com/sawpanic/marketsim/internal/availability"
	"github.com/sawpanic/marketsim/internal/clock"
	"github.com/sawpanic/marketsim/internal/engerr"
	"github.com/sawpanic/marketsim/internal/money"
	"github.com/sawpanic/marketsim/internal/priceengine"
	"github.com/sawpanic/marketsim/internal/refdata"
)

// FeeRate is the flat percentage-of-notional trading fee (spec §4.8
// step 5: "fees (percentage of notional)").
const FeeRate = 0.001

// ShortTermCapitalGainsRate applies to positions held less than one
// simulated year (spec §6).
const ShortTermCapitalGainsRate = 0.25

// LongTermCapitalGainsRate applies to positions held one simulated year
// or more.
const LongTermCapitalGainsRate = 0.15

// OneGameYear is the holding-period threshold for long-term treatment.
const OneGameYear = 365 * 24 * time.Hour

// DefaultLimitExpiryDays is the default pending-limit-order lifetime
// (spec §4.8).
const DefaultLimitExpiryDays = 30

// Order is one trade request (spec §4.8).
type Order struct {
	Symbol    string
	Side      account.OrderSide
	Qty       float64
	Kind      account.OrderKind
	LimitPx   float64
}

// Result is the outcome of a successfully executed (not merely queued)
// trade.
type Result struct {
	TransactionID string
	FilledQty     float64
	FilledPrice   float64
	Fees          money.Cents
	Taxes         money.Cents
	CashDelta     money.Cents
}

// Gate bundles the collaborators execute_trade's validation chain
// consults, per spec §4.8 step-by-step: Clock, Price Engine,
// Availability.
type Gate struct {
	Clock   *clock.Clock
	Price   *priceengine.Engine
	Avail   *availability.Book
	Catalog *refdata.Catalog
}

// New constructs a Gate.
func New(c *clock.Clock, p *priceengine.Engine, a *availability.Book, cat *refdata.Catalog) *Gate {
	return &Gate{Clock: c, Price: p, Avail: a, Catalog: cat}
}

// assetClassOf looks up symbol's asset class: bond or index fund when the
// catalog lists it as one, the security's own class otherwise, defaulting
// to stock for unknown catalog entries (IPO'd mid-game symbols the static
// catalog never listed) so the float/availability checks still apply to
// them.
func (g *Gate) assetClassOf(symbol string) refdata.AssetClass {
	if g.Catalog == nil {
		return refdata.AssetStock
	}
	if _, ok := g.Catalog.Bonds[symbol]; ok {
		return refdata.AssetBond
	}
	if _, ok := g.Catalog.Indices[symbol]; ok {
		return refdata.AssetIndex
	}
	if meta, ok := g.Catalog.Securities[symbol]; ok {
		return meta.AssetClass
	}
	return refdata.AssetStock
}

// Execute runs the full fail-fast validation chain and, on success,
// atomically mutates acct and the availability book. A pending (unfilled)
// limit order is instead appended to acct.PendingOrders and returns a
// zero Result with a nil error.
func (g *Gate) Execute(acct *account.Account, o Order, now time.Time) (Result, error) {
	// 1. Clock: market open, no active full halt, no matching partial halt.
	if !g.Clock.IsMarketOpen(now) {
		return Result{}, engerr.New(engerr.MarketClosed, "market is closed at "+now.Format(time.RFC3339))
	}
	if halt, active := g.Clock.ActiveHalt(now); active && halt.Covers(o.Symbol) {
		return Result{}, engerr.New(engerr.TradingHalted, "halt "+halt.ID+" covers "+o.Symbol)
	}

	// 2. Price engine: symbol tradable at now().
	quote, err := g.Price.Price(o.Symbol, now)
	if err != nil {
		return Result{}, err
	}

	fillPrice := quote.Price
	if o.Kind == account.KindLimit {
		crossed, px := limitCrosses(o, quote.Price)
		if !crossed {
			acct.PendingOrders = append(acct.PendingOrders, &account.PendingOrder{
				ID:         uuid.NewString(),
				Symbol:     o.Symbol,
				Side:       o.Side,
				Qty:        o.Qty,
				LimitPrice: o.LimitPx,
				PlacedAt:   now,
				ExpiresAt:  now.AddDate(0, 0, DefaultLimitExpiryDays),
				Status:     account.PendingOpen,
			})
			return Result{}, nil
		}
		fillPrice = px
	}

	// 3. Availability: can_purchase for buys; sufficient player_owned for
	// sells; sufficient float for shorts.
	if err := g.checkAvailability(acct, o); err != nil {
		return Result{}, err
	}

	notional := money.FromShares(o.Qty, fillPrice)
	fees := notional.Mul(FeeRate)

	// 4. Account: sufficient cash (incl. fees) for buys. No margin check
	// is applied to shorts or any other side.
	taxes := money.Zero
	if o.Side == account.SideSell {
		taxes = g.capitalGainsTax(acct, o.Symbol, o.Qty, fillPrice, now)
	}
	if o.Side == account.SideBuy {
		cost := notional + fees
		if acct.Cash < cost {
			return Result{}, engerr.New(engerr.InsufficientCash, "insufficient cash for buy")
		}
	}

	// 5/6. Compute+apply fees/taxes, mutate atomically, record transaction
	// and purchase lot.
	txID := uuid.NewString()
	cashDelta := g.mutate(acct, o, fillPrice, fees, taxes, now, txID)

	return Result{TransactionID: txID, FilledQty: o.Qty, FilledPrice: fillPrice, Fees: fees, Taxes: taxes, CashDelta: cashDelta}, nil
}

// limitCrosses reports whether a limit order crosses the current quote,
// and the price it would fill at (its own limit, never better nor worse
// — a deliberately simple fill model).
func limitCrosses(o Order, marketPrice float64) (bool, float64) {
	switch o.Side {
	case account.SideBuy, account.SideCover:
		if marketPrice <= o.LimitPx {
			return true, o.LimitPx
		}
	case account.SideSell, account.SideShort:
		if marketPrice >= o.LimitPx {
			return true, o.LimitPx
		}
	}
	return false, 0
}

func (g *Gate) checkAvailability(acct *account.Account, o Order) error {
	class := g.assetClassOf(o.Symbol)
	switch o.Side {
	case account.SideBuy:
		// Bonds and index funds are not float-constrained (spec §3 defines
		// ShareAvailability for stocks; bonds are OTC-issued and index
		// funds are synthetic baskets with no outstanding-share ceiling).
		if class == refdata.AssetBond || class == refdata.AssetIndex {
			return nil
		}
		ok, avail, err := g.Avail.CanPurchase(o.Symbol, o.Qty)
		if err != nil {
			return err
		}
		if !ok {
			return engerr.New(engerr.InsufficientFloat, "requested "+formatQty(o.Qty)+" exceeds available "+formatQty(avail))
		}
	case account.SideSell:
		if class == refdata.AssetBond {
			if bondHeldQty(acct, o.Symbol) < o.Qty {
				return engerr.New(engerr.InsufficientShares, "insufficient bond holdings to sell")
			}
			return nil
		}
		if class == refdata.AssetIndex {
			h, ok := acct.IndexHoldings[o.Symbol]
			if !ok || h.Units < o.Qty {
				return engerr.New(engerr.InsufficientShares, "insufficient index fund units to sell")
			}
			return nil
		}
		if acct.Portfolio[o.Symbol] < o.Qty {
			return engerr.New(engerr.InsufficientShares, "insufficient player-owned shares to sell")
		}
	case account.SideShort:
		ok, avail, err := g.Avail.CanPurchase(o.Symbol, o.Qty)
		if err != nil {
			return err
		}
		if !ok {
			return engerr.New(engerr.InsufficientFloat, "requested short "+formatQty(o.Qty)+" exceeds available "+formatQty(avail))
		}
	case account.SideCover:
		pos, ok := acct.ShortPositions[o.Symbol]
		if !ok || pos.Qty < o.Qty {
			return engerr.New(engerr.InsufficientShares, "insufficient short position to cover")
		}
	}
	return nil
}

func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', 4, 64)
}

// capitalGainsTax computes the FIFO-lot capital-gains tax due on selling
// qty shares of symbol at price px (spec §6): short-term (<1 game year
// held) at the ordinary bracket, long-term at the reduced rate.
func (g *Gate) capitalGainsTax(acct *account.Account, symbol string, qty, px float64, now time.Time) money.Cents {
	// Reads lots by value only: consumeFIFO is the sole mutator of
	// acct.CostBasisLots, called separately from mutate's SideSell path.
	lots := acct.CostBasisLots[symbol]
	remaining := qty
	var tax money.Cents
	for i := 0; i < len(lots) && remaining > 0; i++ {
		lot := lots[i]
		if lot.Qty <= 0 {
			continue
		}
		take := lot.Qty
		if take > remaining {
			take = remaining
		}
		gain := (px - lot.CostBasis) * take
		if gain > 0 {
			rate := ShortTermCapitalGainsRate
			if now.Sub(lot.AcquiredAt) >= OneGameYear {
				rate = LongTermCapitalGainsRate
			}
			tax += money.FromFloat(gain).Mul(rate)
		}
		remaining -= take
	}
	return tax
}

// mutate applies the trade atomically: cash, portfolio, availability,
// transaction log, purchase lot (FIFO consumed on sells). Returns the
// net cash delta (invariant I8: Δcash + fees + taxes + p·Δshares = 0).
func (g *Gate) mutate(acct *account.Account, o Order, px float64, fees, taxes money.Cents, now time.Time, txID string) money.Cents {
	notional := money.FromShares(o.Qty, px)
	var cashDelta money.Cents
	var kind account.TransactionKind
	class := g.assetClassOf(o.Symbol)

	switch o.Side {
	case account.SideBuy:
		cashDelta = -(notional + fees)
		acct.Cash += cashDelta
		switch class {
		case refdata.AssetBond:
			face := px
			if g.Catalog != nil {
				if b, ok := g.Catalog.Bonds[o.Symbol]; ok {
					face = b.Face
				}
			}
			acct.BondHoldings[o.Symbol] = append(acct.BondHoldings[o.Symbol], account.BondHolding{
				Symbol: o.Symbol, Face: face * o.Qty, PurchasePrice: px, PurchasedAt: now, LastCouponAt: now,
			})
		case refdata.AssetIndex:
			h, ok := acct.IndexHoldings[o.Symbol]
			if !ok {
				h = &account.IndexHolding{Symbol: o.Symbol}
				acct.IndexHoldings[o.Symbol] = h
			}
			h.Units += o.Qty
		default:
			acct.Portfolio[o.Symbol] += o.Qty
			acct.CostBasisLots[o.Symbol] = append(acct.CostBasisLots[o.Symbol], account.PurchaseLot{
				ID: txID, Symbol: o.Symbol, Qty: o.Qty, CostBasis: px, AcquiredAt: now,
			})
			_ = g.Avail.ReservePurchase(o.Symbol, o.Qty)
		}
		kind = account.TxBuy

	case account.SideSell:
		cashDelta = notional - fees - taxes
		acct.Cash += cashDelta
		switch class {
		case refdata.AssetBond:
			consumeBondFIFO(acct, o.Symbol, o.Qty, px)
		case refdata.AssetIndex:
			if h, ok := acct.IndexHoldings[o.Symbol]; ok {
				h.Units -= o.Qty
				if h.Units <= 0 {
					delete(acct.IndexHoldings, o.Symbol)
				}
			}
		default:
			acct.Portfolio[o.Symbol] -= o.Qty
			consumeFIFO(acct, o.Symbol, o.Qty)
			_ = g.Avail.ReserveSale(o.Symbol, o.Qty)
		}
		kind = account.TxSell

	case account.SideShort:
		cashDelta = notional - fees
		acct.Cash += cashDelta
		pos, ok := acct.ShortPositions[o.Symbol]
		if !ok {
			pos = &account.ShortPosition{Symbol: o.Symbol, OpenPrice: px, OpenedAt: now}
			acct.ShortPositions[o.Symbol] = pos
		}
		pos.Qty += o.Qty
		_ = g.Avail.ReservePurchase(o.Symbol, o.Qty) // shares borrowed out of the available pool
		kind = account.TxShort

	case account.SideCover:
		cashDelta = -(notional + fees)
		acct.Cash += cashDelta
		if pos, ok := acct.ShortPositions[o.Symbol]; ok {
			pos.Qty -= o.Qty
			if pos.Qty <= 0 {
				delete(acct.ShortPositions, o.Symbol)
			}
		}
		_ = g.Avail.ReserveSale(o.Symbol, o.Qty)
		kind = account.TxCover
	}

	acct.LastTradeTime = now
	acct.Transactions = append(acct.Transactions, account.Transaction{
		ID: txID, Kind: kind, Symbol: o.Symbol, Qty: o.Qty, Price: px, CashDelta: cashDelta, Instant: now,
	})
	return cashDelta
}

// consumeFIFO removes qty shares' worth of cost-basis lots, oldest
// first, and drops any lot reduced to zero.
func consumeFIFO(acct *account.Account, symbol string, qty float64) {
	lots := acct.CostBasisLots[symbol]
	remaining := qty
	i := 0
	for i < len(lots) && remaining > 0 {
		take := lots[i].Qty
		if take > remaining {
			take = remaining
		}
		lots[i].Qty -= take
		remaining -= take
		i++
	}
	// Drop fully-consumed lots from the front.
	j := 0
	for j < len(lots) && lots[j].Qty <= 0 {
		j++
	}
	acct.CostBasisLots[symbol] = append([]account.PurchaseLot(nil), lots[j:]...)
}

// bondHeldQty reports how many bond units (symbol's catalog unit face)
// the account currently holds, summed across lots.
func bondHeldQty(acct *account.Account, symbol string) float64 {
	var total float64
	for _, h := range acct.BondHoldings[symbol] {
		total += h.Face
	}
	return total
}

// consumeBondFIFO removes qty units' worth of face value from symbol's
// bond holdings, oldest lot first, crediting proceeds already applied by
// the caller; drops lots whose face is fully consumed.
func consumeBondFIFO(acct *account.Account, symbol string, qty float64, _ float64) {
	holdings := acct.BondHoldings[symbol]
	remaining := qty
	i := 0
	for i < len(holdings) && remaining > 0 {
		take := holdings[i].Face
		if take > remaining {
			take = remaining
		}
		holdings[i].Face -= take
		remaining -= take
		i++
	}
	j := 0
	for j < len(holdings) && holdings[j].Face <= 0.0001 {
		j++
	}
	acct.BondHoldings[symbol] = append([]account.BondHolding(nil), holdings[j:]...)
}
