package cashevents

import (
	"testing"
	"time"

	"github.com/sawpanic/marketsim/internal/account"
	"github.com/sawpanic/marketsim/internal/priceengine"
	"github.com/sawpanic/marketsim/internal/refdata"
)

func dividendCatalog() *refdata.Catalog {
	return &refdata.Catalog{
		Securities: map[string]refdata.SecurityMeta{
			"KO": {Symbol: "KO", Sector: "consumer", ListedFrom: time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
		Anchors: map[string][]refdata.Anchor{
			"KO": {{Instant: time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), Price: 1.0}},
		},
		Dividends: map[string][]refdata.DividendRate{
			"KO": {{Symbol: "KO", Year: 1970, Rate: 0.03}},
		},
		Bonds:   map[string]refdata.Bond{},
		Indices: map[string]refdata.IndexFund{},
	}
}

func TestDividendCatchUpCapAtFortyQuarters(t *testing.T) {
	cat := dividendCatalog()
	pe := priceengine.New(cat, 1)
	acct := account.NewAccount(0)
	acct.Portfolio["KO"] = 100
	es := account.NewEngineState(time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC))

	// Advance 15 years (60 quarters) without ever calling Process.
	farFuture := time.Date(1985, 1, 2, 0, 0, 0, 0, time.UTC)
	Process(cat, pe, es, acct, farFuture)

	if es.LastDividendQuarter != catchUpCap-1 {
		// start=0 so quarters 0..39 processed = 40 quarters, last index 39
		t.Fatalf("expected catch-up capped at quarter index %d, got %d", catchUpCap-1, es.LastDividendQuarter)
	}

	// A second call should process the remainder instead of skipping it.
	Process(cat, pe, es, acct, farFuture)
	if es.LastDividendQuarter <= catchUpCap-1 {
		t.Fatalf("expected second call to advance past the first cap, got %d", es.LastDividendQuarter)
	}
}

func TestDividendProcessingIsIdempotentAtSameInstant(t *testing.T) {
	cat := dividendCatalog()
	pe := priceengine.New(cat, 1)
	acct := account.NewAccount(0)
	acct.Portfolio["KO"] = 100
	es := account.NewEngineState(time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC))

	asOf := time.Date(1970, 6, 1, 0, 0, 0, 0, time.UTC)
	Process(cat, pe, es, acct, asOf)
	cashAfterFirst := acct.Cash
	Process(cat, pe, es, acct, asOf)
	if acct.Cash != cashAfterFirst {
		t.Fatalf("re-running Process at the same instant must not double-pay dividends: %v != %v", acct.Cash, cashAfterFirst)
	}
}

func TestMonthlyFeeDebitsCashOverElapsedMonths(t *testing.T) {
	cat := dividendCatalog()
	pe := priceengine.New(cat, 1)
	acct := account.NewAccount(1000)
	es := account.NewEngineState(time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC))

	Process(cat, pe, es, acct, time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)) // primes LastMonthlyFeeInstant
	before := acct.Cash
	Process(cat, pe, es, acct, time.Date(1970, 4, 1, 0, 0, 0, 0, time.UTC))
	if acct.Cash.ToFloat() >= before.ToFloat() {
		t.Fatalf("expected monthly fees to debit cash, before=%v after=%v", before, acct.Cash)
	}
}
