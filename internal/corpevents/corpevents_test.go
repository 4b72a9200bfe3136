package corpevents

import (
	"testing"
	"time"

	"github.com/sawpanic/marketsim/internal/account"
	"github.com/sawpanic/marketsim/internal/availability"
	"github.com/sawpanic/marketsim/internal/priceengine"
	"github.com/sawpanic/marketsim/internal/refdata"
)

func baseCatalog() *refdata.Catalog {
	return &refdata.Catalog{
		Securities: map[string]refdata.SecurityMeta{
			"AAPL": {Symbol: "AAPL", Sector: "tech", ListedFrom: time.Date(1980, 12, 12, 0, 0, 0, 0, time.UTC)},
			"WFM":  {Symbol: "WFM", Sector: "retail", ListedFrom: time.Date(1992, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
		Anchors: map[string][]refdata.Anchor{
			"AAPL": {{Instant: time.Date(1980, 12, 12, 0, 0, 0, 0, time.UTC), Price: 0.10}},
			"WFM":  {{Instant: time.Date(1992, 1, 1, 0, 0, 0, 0, time.UTC), Price: 10.0}},
		},
	}
}

func TestSplitEventAppliesOnceAndMutatesHoldings(t *testing.T) {
	cat := baseCatalog()
	cat.Events = []refdata.CorporateEvent{
		{ID: "e1", Kind: refdata.EventSplit, EffectiveInstant: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), PrimarySymbol: "AAPL", SplitRatio: 7, Status: refdata.StatusPending},
	}
	pe := priceengine.New(cat, 1)
	avail := availability.New()
	avail.Seed("AAPL", availability.Counts{TotalOutstanding: 100, PublicFloat: 90, AvailableForTrading: 50})
	acct := account.NewAccount(10000)
	acct.Portfolio["AAPL"] = 10
	acct.CostBasisLots["AAPL"] = []account.PurchaseLot{{Symbol: "AAPL", Qty: 10, CostBasis: 700}}

	results := Process(cat, pe, avail, acct, time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC))
	if len(results) != 1 || results[0].Status != refdata.StatusApplied {
		t.Fatalf("expected one applied result, got %+v", results)
	}
	if acct.Portfolio["AAPL"] != 70 {
		t.Errorf("expected 70 post-split shares, got %v", acct.Portfolio["AAPL"])
	}
	if acct.CostBasisLots["AAPL"][0].CostBasis != 100 {
		t.Errorf("expected cost basis 100, got %v", acct.CostBasisLots["AAPL"][0].CostBasis)
	}

	// Re-running at a later as-of must not re-apply (I6).
	before := acct.Portfolio["AAPL"]
	results2 := Process(cat, pe, avail, acct, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
	if len(results2) != 0 {
		t.Fatalf("expected no re-application, got %+v", results2)
	}
	if acct.Portfolio["AAPL"] != before {
		t.Errorf("holdings changed on idempotent re-run: %v != %v", acct.Portfolio["AAPL"], before)
	}
}

func TestCashAcquisitionConvertsHoldingsAndDelistsSymbol(t *testing.T) {
	cat := baseCatalog()
	effective := time.Date(2017, 6, 16, 0, 0, 0, 0, time.UTC)
	cat.Events = []refdata.CorporateEvent{
		{ID: "e2", Kind: refdata.EventAcquisitionCash, EffectiveInstant: effective, PrimarySymbol: "WFM", CashPerShare: 42.00, Status: refdata.StatusPending},
	}
	pe := priceengine.New(cat, 1)
	avail := availability.New()
	acct := account.NewAccount(0)
	acct.Portfolio["WFM"] = 50

	Process(cat, pe, avail, acct, effective.Add(time.Hour))

	if _, ok := acct.Portfolio["WFM"]; ok {
		t.Error("expected WFM position cleared")
	}
	if acct.Cash.ToFloat() != 50*42.00 {
		t.Errorf("expected cash credited 2100, got %v", acct.Cash)
	}
	if _, err := pe.Price("WFM", effective.Add(24*time.Hour)); err == nil {
		t.Error("expected Unavailable for WFM after cash acquisition")
	}
}

func TestMissingSymbolEventIsSkippedNotFatal(t *testing.T) {
	cat := baseCatalog()
	effective := time.Date(2005, 3, 1, 0, 0, 0, 0, time.UTC)
	cat.Events = []refdata.CorporateEvent{
		{ID: "e3", Kind: refdata.EventBankruptcy, EffectiveInstant: effective, PrimarySymbol: "NOPE", Status: refdata.StatusPending},
	}
	pe := priceengine.New(cat, 1)
	avail := availability.New()
	acct := account.NewAccount(0)

	results := Process(cat, pe, avail, acct, effective.Add(time.Hour))
	if len(results) != 1 || results[0].Status != refdata.StatusSkipped {
		t.Fatalf("expected skipped result for unknown symbol, got %+v", results)
	}
}

func TestEventsApplyInChronologicalOrder(t *testing.T) {
	cat := baseCatalog()
	later := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	earlier := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	// Stored in chronological order, as the catalog's build() step would
	// sort them (this test bypasses refdata.Load/build); both splits
	// must apply.
	cat.Events = []refdata.CorporateEvent{
		{ID: "split1", Kind: refdata.EventSplit, EffectiveInstant: earlier, PrimarySymbol: "AAPL", SplitRatio: 2, Status: refdata.StatusPending},
		{ID: "split2", Kind: refdata.EventSplit, EffectiveInstant: later, PrimarySymbol: "AAPL", SplitRatio: 3, Status: refdata.StatusPending},
	}
	pe := priceengine.New(cat, 1)
	avail := availability.New()
	acct := account.NewAccount(0)
	acct.Portfolio["AAPL"] = 10

	Process(cat, pe, avail, acct, later.Add(time.Hour))
	if acct.Portfolio["AAPL"] != 60 {
		t.Errorf("expected 10*2*3=60 shares after both splits, got %v", acct.Portfolio["AAPL"])
	}
}
