package tradegate

import (
	"testing"
	"time"

	"github.com/sawpanic/marketsim/internal/account"
	"github.com/sawpanic/marketsim/internal/availability"
	"github.com/sawpanic/marketsim/internal/clock"
	"github.com/sawpanic/marketsim/internal/engerr"
	"github.com/sawpanic/marketsim/internal/money"
	"github.com/sawpanic/marketsim/internal/priceengine"
	"github.com/sawpanic/marketsim/internal/refdata"
)

// openWeekday is a Wednesday within market hours, no holidays configured.
var openWeekday = time.Date(2021, 6, 2, 11, 0, 0, 0, clock.Location)

func baseCatalog() *refdata.Catalog {
	return &refdata.Catalog{
		Securities: map[string]refdata.SecurityMeta{
			"IBM": {Symbol: "IBM", Sector: "tech", ListedFrom: time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
		Anchors: map[string][]refdata.Anchor{
			"IBM": {
				{Instant: time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), Price: 30},
				{Instant: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), Price: 30},
			},
		},
	}
}

func newGate() (*Gate, *refdata.Catalog) {
	cat := baseCatalog()
	pe := priceengine.New(cat, 1)
	avail := availability.New()
	avail.Seed("IBM", availability.Counts{TotalOutstanding: 1000, PublicFloat: 900, AvailableForTrading: 500})
	c := clock.New(openWeekday, clock.Realtime, nil, nil)
	return New(c, pe, avail, cat), cat
}

func TestExecuteBuyDebitsCashAndAddsLot(t *testing.T) {
	g, _ := newGate()
	acct := account.NewAccount(10000)

	res, err := g.Execute(acct, Order{Symbol: "IBM", Side: account.SideBuy, Qty: 10, Kind: account.KindMarket}, openWeekday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.FilledQty != 10 {
		t.Errorf("expected filled qty 10, got %v", res.FilledQty)
	}
	if acct.Portfolio["IBM"] != 10 {
		t.Errorf("expected 10 shares held, got %v", acct.Portfolio["IBM"])
	}
	wantCash := money.FromFloat(10000).Add(res.CashDelta)
	if acct.Cash != wantCash {
		t.Errorf("expected cash %v, got %v", wantCash, acct.Cash)
	}
	if len(acct.CostBasisLots["IBM"]) != 1 {
		t.Fatalf("expected one cost-basis lot, got %d", len(acct.CostBasisLots["IBM"]))
	}
	if acct.Transactions[0].Kind != account.TxBuy {
		t.Errorf("expected buy transaction recorded, got %v", acct.Transactions[0].Kind)
	}
}

func TestExecuteSellAppliesShortTermCapitalGainsTax(t *testing.T) {
	g, _ := newGate()
	acct := account.NewAccount(0)
	acct.Portfolio["IBM"] = 10
	acct.CostBasisLots["IBM"] = []account.PurchaseLot{
		{Symbol: "IBM", Qty: 10, CostBasis: 10, AcquiredAt: openWeekday.AddDate(0, -1, 0)},
	}

	res, err := g.Execute(acct, Order{Symbol: "IBM", Side: account.SideSell, Qty: 10, Kind: account.KindMarket}, openWeekday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Taxes <= 0 {
		t.Errorf("expected short-term gains tax to be charged, got %v", res.Taxes)
	}
	if acct.Portfolio["IBM"] != 0 {
		t.Errorf("expected position fully closed, got %v", acct.Portfolio["IBM"])
	}
}

func TestExecutePartialSellLeavesRemainderInLot(t *testing.T) {
	g, _ := newGate()
	acct := account.NewAccount(0)
	acct.Portfolio["IBM"] = 10
	acct.CostBasisLots["IBM"] = []account.PurchaseLot{
		{Symbol: "IBM", Qty: 10, CostBasis: 10, AcquiredAt: openWeekday.AddDate(0, -1, 0)},
	}

	res, err := g.Execute(acct, Order{Symbol: "IBM", Side: account.SideSell, Qty: 5, Kind: account.KindMarket}, openWeekday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.FilledQty != 5 {
		t.Fatalf("expected filled qty 5, got %v", res.FilledQty)
	}
	if acct.Portfolio["IBM"] != 5 {
		t.Errorf("expected 5 shares remaining, got %v", acct.Portfolio["IBM"])
	}
	lots := acct.CostBasisLots["IBM"]
	if len(lots) != 1 {
		t.Fatalf("expected one remaining lot, got %d", len(lots))
	}
	if lots[0].Qty != 5 {
		t.Errorf("expected remaining lot qty 5, got %v (tax computation must not double-consume the lot)", lots[0].Qty)
	}

	// A second partial sell should still find cost basis to tax against.
	res2, err := g.Execute(acct, Order{Symbol: "IBM", Side: account.SideSell, Qty: 5, Kind: account.KindMarket}, openWeekday)
	if err != nil {
		t.Fatalf("unexpected error on second sell: %v", err)
	}
	if res2.Taxes <= 0 {
		t.Errorf("expected gains tax on the remaining lot, got %v", res2.Taxes)
	}
	if len(acct.CostBasisLots["IBM"]) != 0 {
		t.Errorf("expected no cost-basis lots left, got %d", len(acct.CostBasisLots["IBM"]))
	}
}

func TestExecuteInsufficientCashRejectsBuy(t *testing.T) {
	g, _ := newGate()
	acct := account.NewAccount(1)

	_, err := g.Execute(acct, Order{Symbol: "IBM", Side: account.SideBuy, Qty: 100, Kind: account.KindMarket}, openWeekday)
	if err == nil {
		t.Fatal("expected insufficient-cash error")
	}
	if ee, ok := err.(*engerr.Error); !ok || ee.Kind != engerr.InsufficientCash {
		t.Errorf("expected InsufficientCash, got %v", err)
	}
}

func TestExecuteMarketClosedRejectsTrade(t *testing.T) {
	g, _ := newGate()
	acct := account.NewAccount(10000)

	weekend := time.Date(2021, 6, 6, 11, 0, 0, 0, clock.Location) // Sunday
	_, err := g.Execute(acct, Order{Symbol: "IBM", Side: account.SideBuy, Qty: 1, Kind: account.KindMarket}, weekend)
	if err == nil {
		t.Fatal("expected market-closed error")
	}
	if ee, ok := err.(*engerr.Error); !ok || ee.Kind != engerr.MarketClosed {
		t.Errorf("expected MarketClosed, got %v", err)
	}
}

func TestExecuteNonCrossingLimitOrderQueuesPending(t *testing.T) {
	g, _ := newGate()
	acct := account.NewAccount(10000)

	res, err := g.Execute(acct, Order{Symbol: "IBM", Side: account.SideBuy, Qty: 5, Kind: account.KindLimit, LimitPx: 1}, openWeekday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TransactionID != "" {
		t.Errorf("expected zero-value result for queued limit order, got %+v", res)
	}
	if len(acct.PendingOrders) != 1 {
		t.Fatalf("expected one pending order, got %d", len(acct.PendingOrders))
	}
	if acct.PendingOrders[0].Status != account.PendingOpen {
		t.Errorf("expected pending order status open, got %v", acct.PendingOrders[0].Status)
	}
}

func TestExecuteBuyExceedingFloatRejected(t *testing.T) {
	g, _ := newGate()
	acct := account.NewAccount(1_000_000)

	_, err := g.Execute(acct, Order{Symbol: "IBM", Side: account.SideBuy, Qty: 10000, Kind: account.KindMarket}, openWeekday)
	if err == nil {
		t.Fatal("expected insufficient-float error")
	}
	if ee, ok := err.(*engerr.Error); !ok || ee.Kind != engerr.InsufficientFloat {
		t.Errorf("expected InsufficientFloat, got %v", err)
	}
}
