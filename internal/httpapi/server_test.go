package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sawpanic/marketsim/internal/availability"
	"github.com/sawpanic/marketsim/internal/clock"
	"github.com/sawpanic/marketsim/internal/engine"
	"github.com/sawpanic/marketsim/internal/persistence"
	"github.com/sawpanic/marketsim/internal/priceengine"
	"github.com/sawpanic/marketsim/internal/refdata"
)

// in-memory stand-ins for the postgres repositories, just enough to
// exercise the HTTP surface without a database.
type fakeEngineRepo struct{ row *persistence.EngineStateRow }

func (f *fakeEngineRepo) Load(ctx context.Context) (*persistence.EngineStateRow, error) {
	return f.row, nil
}
func (f *fakeEngineRepo) Save(ctx context.Context, row persistence.EngineStateRow) error {
	f.row = &row
	return nil
}

type fakeAccountRepo struct{ snap *persistence.AccountSnapshot }

func (f *fakeAccountRepo) Load(ctx context.Context, accountID int64) (*persistence.AccountSnapshot, error) {
	return f.snap, nil
}
func (f *fakeAccountRepo) Save(ctx context.Context, snap persistence.AccountSnapshot) error {
	f.snap = &snap
	return nil
}

type fakeLedgerRepo struct{ txs []persistence.TransactionRow }

func (f *fakeLedgerRepo) InsertTransaction(ctx context.Context, tx persistence.TransactionRow) error {
	f.txs = append(f.txs, tx)
	return nil
}
func (f *fakeLedgerRepo) InsertTransactionBatch(ctx context.Context, txs []persistence.TransactionRow) error {
	f.txs = append(f.txs, txs...)
	return nil
}
func (f *fakeLedgerRepo) ListTransactions(ctx context.Context, accountID int64, tr persistence.TimeRange, limit int) ([]persistence.TransactionRow, error) {
	return f.txs, nil
}
func (f *fakeLedgerRepo) UpsertPurchaseLot(ctx context.Context, lot persistence.PurchaseLotRow) error {
	return nil
}
func (f *fakeLedgerRepo) ListPurchaseLots(ctx context.Context, accountID int64, symbol string) ([]persistence.PurchaseLotRow, error) {
	return nil, nil
}
func (f *fakeLedgerRepo) InsertDividend(ctx context.Context, d persistence.DividendRow) error {
	return nil
}
func (f *fakeLedgerRepo) ListDividends(ctx context.Context, accountID int64, tr persistence.TimeRange) ([]persistence.DividendRow, error) {
	return nil, nil
}
func (f *fakeLedgerRepo) InsertTax(ctx context.Context, t persistence.TaxRow) error { return nil }
func (f *fakeLedgerRepo) ListTaxes(ctx context.Context, accountID int64, tr persistence.TimeRange) ([]persistence.TaxRow, error) {
	return nil, nil
}
func (f *fakeLedgerRepo) InsertFee(ctx context.Context, fe persistence.FeeRow) error { return nil }
func (f *fakeLedgerRepo) ListFees(ctx context.Context, accountID int64, tr persistence.TimeRange) ([]persistence.FeeRow, error) {
	return nil, nil
}

var openWeekday = time.Date(2021, 6, 2, 11, 0, 0, 0, clock.Location)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cat := &refdata.Catalog{
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
	pe := priceengine.New(cat, 1)
	avail := availability.New()
	avail.Seed("IBM", availability.Counts{TotalOutstanding: 1000, PublicFloat: 900, AvailableForTrading: 500})
	c := clock.New(openWeekday, clock.Realtime, nil, nil)

	repo := persistence.Repository{
		Engine:  &fakeEngineRepo{},
		Account: &fakeAccountRepo{},
		Ledger:  &fakeLedgerRepo{},
	}
	eng := engine.New(engine.Config{
		Catalog:      cat,
		Prices:       pe,
		Clock:        c,
		Availability: avail,
		Repo:         repo,
		StartingCash: 10000,
	})
	return New(eng, DefaultConfig())
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestHandleStocksListsSeededSecurity(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/stocks", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var snapshots []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshots); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	found := false
	for _, snap := range snapshots {
		if snap["Symbol"] == "IBM" {
			found = true
		}
	}
	if !found {
		t.Error("expected IBM in /api/stocks response")
	}
}

func TestHandleTradeRejectsNonPositiveQty(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(map[string]interface{}{
		"symbol": "IBM", "side": "buy", "qty": 0, "kind": "market",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/trade", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code == http.StatusOK {
		t.Error("expected a validation error for non-positive qty")
	}
}

func TestHandleNotFound(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
