package availability

import (
	"testing"

	"github.com/sawpanic/marketsim/internal/engerr"
)

func seeded() *Book {
	b := New()
	b.Seed("AAPL", Counts{
		TotalOutstanding:    1000,
		PublicFloat:         900,
		AvailableForTrading: 500,
		PlayerOwned:         0,
	})
	return b
}

func TestUnknownSymbolErrors(t *testing.T) {
	b := New()
	if _, err := b.Snapshot("XYZ"); !engerr.Is(err, engerr.UnknownSymbol) {
		t.Fatalf("expected UnknownSymbol, got %v", err)
	}
}

func TestReservePurchaseAndSaleRoundTrip(t *testing.T) {
	b := seeded()
	if err := b.ReservePurchase("AAPL", 100); err != nil {
		t.Fatal(err)
	}
	mid, _ := b.Snapshot("AAPL")
	if mid.AvailableForTrading != 400 || mid.PlayerOwned != 100 {
		t.Fatalf("unexpected post-purchase counts: %+v", mid)
	}
	if err := b.ReserveSale("AAPL", 100); err != nil {
		t.Fatal(err)
	}
	after, _ := b.Snapshot("AAPL")
	if after.AvailableForTrading != 500 || after.PlayerOwned != 0 {
		t.Fatalf("round trip did not restore counts: %+v", after)
	}
}

func TestCanPurchaseReportsAvailable(t *testing.T) {
	b := seeded()
	ok, avail, err := b.CanPurchase("AAPL", 10000)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected denial for qty exceeding available_for_trading")
	}
	if avail != 500 {
		t.Fatalf("expected available 500, got %v", avail)
	}
}

func TestApplySplitMultipliesAllFourFields(t *testing.T) {
	b := seeded()
	if err := b.ReservePurchase("AAPL", 100); err != nil {
		t.Fatal(err)
	}
	if err := b.ApplySplit("AAPL", 7); err != nil {
		t.Fatal(err)
	}
	c, _ := b.Snapshot("AAPL")
	if c.TotalOutstanding != 7000 || c.PublicFloat != 6300 || c.AvailableForTrading != 2800 || c.PlayerOwned != 700 {
		t.Fatalf("split did not multiply all four fields by 7: %+v", c)
	}
}

func TestBuybackNeverBreachesFloor(t *testing.T) {
	b := New()
	b.Seed("AAPL", Counts{TotalOutstanding: 1000, PublicFloat: 1000, AvailableForTrading: 105, PlayerOwned: 0})
	for day := int64(0); day < 36; day++ {
		b.RunBuybackCycle(1, day, 0.9)
		c, _ := b.Snapshot("AAPL")
		if c.AvailableForTrading < floorFraction*c.TotalOutstanding-1e-9 {
			t.Fatalf("day %d: available_for_trading %v breached floor (outstanding %v)", day, c.AvailableForTrading, c.TotalOutstanding)
		}
	}
}

func TestBuybackNoopBelowSentimentThreshold(t *testing.T) {
	b := seeded()
	before, _ := b.Snapshot("AAPL")
	results := b.RunBuybackCycle(1, 0, 0.2)
	if len(results) != 0 {
		t.Fatalf("expected no buybacks at sentiment 0.2, got %v", results)
	}
	after, _ := b.Snapshot("AAPL")
	if after != before {
		t.Fatalf("counts changed despite sentiment below threshold: %+v vs %+v", before, after)
	}
}

func TestIssuanceOnlyGrowsOutstandingFloatAndAvailable(t *testing.T) {
	b := seeded()
	before, _ := b.Snapshot("AAPL")
	for q := int64(0); q < 20; q++ {
		b.RunIssuanceCycle(3, q, -0.5)
	}
	after, _ := b.Snapshot("AAPL")
	if after.PlayerOwned != before.PlayerOwned {
		t.Fatalf("issuance must not touch player_owned: before %v after %v", before.PlayerOwned, after.PlayerOwned)
	}
	if after.TotalOutstanding < before.TotalOutstanding {
		t.Fatalf("issuance should never shrink outstanding")
	}
}

func TestDeterministicBuybackAcrossInstances(t *testing.T) {
	b1 := New()
	b1.Seed("AAPL", Counts{TotalOutstanding: 1000, PublicFloat: 900, AvailableForTrading: 500})
	r1 := b1.RunBuybackCycle(7, 42, 0.8)

	b2 := New()
	b2.Seed("AAPL", Counts{TotalOutstanding: 1000, PublicFloat: 900, AvailableForTrading: 500})
	r2 := b2.RunBuybackCycle(7, 42, 0.8)

	if len(r1) != len(r2) {
		t.Fatalf("nondeterministic buyback participation: %v vs %v", r1, r2)
	}
	for sym, frac := range r1 {
		if r2[sym] != frac {
			t.Fatalf("nondeterministic buyback fraction for %s: %v vs %v", sym, frac, r2[sym])
		}
	}
}
