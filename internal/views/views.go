// Package views computes the Derived Views spec §4.9 names: stock
// snapshots, price history windows, the synthetic market index,
// company-at-time dossiers, and the merged static+dynamic news/email
// streams. Every view is a pure read against the Reference Data, Price
// Engine, and Share Availability books as of a caller-supplied instant;
// nothing here mutates engine state.
package views

import (
	"sort"
	"time"

	"github.com/sawpanic/marketsim/internal/account"
	"github.com/sawpanic/marketsim/internal/availability"
	"github.com/sawpanic/marketsim/internal/engerr"
	"github.com/sawpanic/marketsim/internal/priceengine"
	"github.com/sawpanic/marketsim/internal/refdata"
)

// Reader bundles the read-only dependencies every view draws from.
type Reader struct {
	Catalog *refdata.Catalog
	Prices  *priceengine.Engine
	Avail   *availability.Book
}

// New constructs a Reader.
func New(cat *refdata.Catalog, pe *priceengine.Engine, avail *availability.Book) *Reader {
	return &Reader{Catalog: cat, Prices: pe, Avail: avail}
}

// StockSnapshot is spec §4.9's "(symbol, price, change_pct,
// shares_available, ownership_percent)" view.
type StockSnapshot struct {
	Symbol            string
	Price             float64
	ChangePct         float64
	SharesAvailable   float64
	OwnershipPercent  float64
}

// Snapshot computes one symbol's view as of now.
func (r *Reader) Snapshot(symbol string, acct *account.Account, now time.Time) (StockSnapshot, error) {
	q, err := r.Prices.Price(symbol, now)
	if err != nil {
		return StockSnapshot{}, err
	}
	counts, err := r.Avail.Snapshot(symbol)
	if err != nil {
		return StockSnapshot{}, err
	}
	var ownedPct float64
	if counts.TotalOutstanding > 0 {
		ownedPct = acct.Portfolio[symbol] / counts.TotalOutstanding * 100
	}
	return StockSnapshot{
		Symbol:           symbol,
		Price:            q.Price,
		ChangePct:        q.ChangePct,
		SharesAvailable:  counts.AvailableForTrading,
		OwnershipPercent: ownedPct,
	}, nil
}

// AllSnapshots computes the snapshot view for every symbol listed at now.
func (r *Reader) AllSnapshots(acct *account.Account, now time.Time) []StockSnapshot {
	var out []StockSnapshot
	for symbol, meta := range r.Catalog.Securities {
		if !meta.IsListedAt(now) {
			continue
		}
		snap, err := r.Snapshot(symbol, acct, now)
		if err != nil {
			continue
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// HistoryPoint is one (day, price) sample.
type HistoryPoint struct {
	Day   time.Time
	Price float64
}

// PriceHistory computes the trailing `days` window ending at now,
// via repeated price-engine calls (spec §4.9).
func (r *Reader) PriceHistory(symbol string, now time.Time, days int) ([]HistoryPoint, error) {
	if days <= 0 {
		return nil, engerr.New(engerr.InvalidArgument, "days must be positive")
	}
	out := make([]HistoryPoint, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		q, err := r.Prices.Price(symbol, day)
		if err != nil {
			continue
		}
		out = append(out, HistoryPoint{Day: day, Price: q.Price})
	}
	return out, nil
}

// MarketIndex computes the average of available prices at each day in
// the trailing `days` window (spec §4.9: "average of available prices at
// each day").
func (r *Reader) MarketIndex(now time.Time, days int) []HistoryPoint {
	if days <= 0 {
		return nil
	}
	out := make([]HistoryPoint, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		var sum float64
		var n int
		for symbol, meta := range r.Catalog.Securities {
			if meta.AssetClass != refdata.AssetStock || !meta.IsListedAt(day) {
				continue
			}
			q, err := r.Prices.Price(symbol, day)
			if err != nil {
				continue
			}
			sum += q.Price
			n++
		}
		if n == 0 {
			continue
		}
		out = append(out, HistoryPoint{Day: day, Price: sum / float64(n)})
	}
	return out
}

// CompanyAtTime returns symbol's dossier filtered by now (spec §4.9:
// "largest-dated record <= now()").
func (r *Reader) CompanyAtTime(symbol string, now time.Time) (refdata.FinancialSnapshot, bool) {
	return r.Catalog.CompanyAtYear(symbol, now.Year())
}

// NewsItem is one merged static-or-dynamic news entry.
type NewsItem struct {
	Instant  time.Time
	Symbol   string
	Headline string
	Body     string
	Dynamic  bool
}

const (
	significantMoveThreshold = 0.08
	symbolCooldownDays       = 7
	sectorMoveThreshold      = 0.08
	sectorCooldownDays       = 3
)

// NewsStream merges the static news deck (items dated <= now) with
// dynamically generated "significant move" items computed deterministically
// from the price series (spec §4.9).
func (r *Reader) NewsStream(now time.Time, lookbackDays int) []NewsItem {
	var out []NewsItem
	for _, item := range r.Catalog.News {
		if !item.Instant.After(now) {
			out = append(out, NewsItem{Instant: item.Instant, Symbol: item.Symbol, Headline: item.Headline, Body: item.Body})
		}
	}
	out = append(out, r.dynamicMoveNews(now, lookbackDays)...)
	sort.Slice(out, func(i, j int) bool { return out[i].Instant.Before(out[j].Instant) })
	return out
}

// dynamicMoveNews scans each listed symbol's trailing daily returns for
// moves >= significantMoveThreshold, honoring a per-symbol cooldown so the
// same move doesn't re-trigger every subsequent day it remains visible in
// the window.
func (r *Reader) dynamicMoveNews(now time.Time, lookbackDays int) []NewsItem {
	var out []NewsItem
	lastFired := make(map[string]time.Time)
	sectorLastFired := make(map[string]time.Time)

	for i := lookbackDays - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		sectorMoves := make(map[string][]float64)

		for symbol, meta := range r.Catalog.Securities {
			if !meta.IsListedAt(day) {
				continue
			}
			q, err := r.Prices.Price(symbol, day)
			if err != nil {
				continue
			}
			sectorMoves[meta.Sector] = append(sectorMoves[meta.Sector], q.ChangePct)

			if absf(q.ChangePct) < significantMoveThreshold {
				continue
			}
			if last, ok := lastFired[symbol]; ok && day.Sub(last) < symbolCooldownDays*24*time.Hour {
				continue
			}
			lastFired[symbol] = day
			out = append(out, NewsItem{
				Instant:  day,
				Symbol:   symbol,
				Headline: moveHeadline(symbol, q.ChangePct),
				Body:     "",
				Dynamic:  true,
			})
		}

		for sector, moves := range sectorMoves {
			avg := average(moves)
			if absf(avg) < sectorMoveThreshold {
				continue
			}
			if last, ok := sectorLastFired[sector]; ok && day.Sub(last) < sectorCooldownDays*24*time.Hour {
				continue
			}
			sectorLastFired[sector] = day
			out = append(out, NewsItem{
				Instant:  day,
				Headline: moveHeadline(sector, avg),
				Body:     "",
				Dynamic:  true,
			})
		}
	}
	return out
}

func moveHeadline(subject string, changePct float64) string {
	if changePct >= 0 {
		return subject + " surges"
	}
	return subject + " tumbles"
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// EmailStream returns the static email deck filtered by now (spec §4.9:
// "dated static items: investment tips and spam").
func (r *Reader) EmailStream(now time.Time) []refdata.EmailItem {
	var out []refdata.EmailItem
	for _, item := range r.Catalog.Emails {
		if !item.Instant.After(now) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instant.Before(out[j].Instant) })
	return out
}
