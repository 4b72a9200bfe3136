package views

import (
	"testing"
	"time"

	"github.com/sawpanic/marketsim/internal/account"
	"github.com/sawpanic/marketsim/internal/availability"
	"github.com/sawpanic/marketsim/internal/priceengine"
	"github.com/sawpanic/marketsim/internal/refdata"
)

var asOf = time.Date(2021, 6, 2, 11, 0, 0, 0, time.UTC)

func testCatalog() *refdata.Catalog {
	return &refdata.Catalog{
		Securities: map[string]refdata.SecurityMeta{
			"IBM": {Symbol: "IBM", Sector: "tech", AssetClass: refdata.AssetStock, ListedFrom: time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
		Anchors: map[string][]refdata.Anchor{
			"IBM": {
				{Instant: time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), Price: 30},
				{Instant: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), Price: 30},
			},
		},
		News: []refdata.NewsItem{
			{Instant: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), Headline: "static item"},
		},
	}
}

func testReader() *Reader {
	cat := testCatalog()
	pe := priceengine.New(cat, 1)
	avail := availability.New()
	avail.Seed("IBM", availability.Counts{TotalOutstanding: 1000, PublicFloat: 900, AvailableForTrading: 500})
	return New(cat, pe, avail)
}

func TestSnapshotComputesOwnershipPercent(t *testing.T) {
	r := testReader()
	acct := account.NewAccount(0)
	acct.Portfolio["IBM"] = 100

	snap, err := r.Snapshot("IBM", acct, asOf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.OwnershipPercent != 10 {
		t.Errorf("expected 10%% ownership, got %v", snap.OwnershipPercent)
	}
	want, err := r.Prices.Price("IBM", asOf)
	if err != nil {
		t.Fatalf("unexpected price error: %v", err)
	}
	if snap.Price != want.Price {
		t.Errorf("expected engine price %v, got %v", want.Price, snap.Price)
	}
}

func TestPriceHistoryReturnsRequestedWindow(t *testing.T) {
	r := testReader()
	hist, err := r.PriceHistory("IBM", asOf, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hist) != 5 {
		t.Fatalf("expected 5 points, got %d", len(hist))
	}
}

func TestMarketIndexAveragesListedStocks(t *testing.T) {
	r := testReader()
	idx := r.MarketIndex(asOf, 3)
	if len(idx) != 3 {
		t.Fatalf("expected 3 points, got %d", len(idx))
	}
	for _, p := range idx {
		want, err := r.Prices.Price("IBM", p.Day)
		if err != nil {
			t.Fatalf("unexpected price error: %v", err)
		}
		if p.Price != want.Price {
			t.Errorf("expected index value %v (the only listed stock), got %v", want.Price, p.Price)
		}
	}
}

func TestNewsStreamExcludesFutureStaticItems(t *testing.T) {
	r := testReader()
	news := r.NewsStream(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), 0)
	if len(news) != 0 {
		t.Errorf("expected no news before static item's instant, got %d", len(news))
	}
	news = r.NewsStream(asOf, 0)
	if len(news) != 1 {
		t.Errorf("expected the one static item, got %d", len(news))
	}
}
