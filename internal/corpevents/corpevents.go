// Package corpevents implements the Corporate-Event Processor (spec
// §4.6): replays pending dated events against the price engine, share
// availability, and the player's account, exactly once and in
// chronological order, skipping (never failing) when a required symbol
// is absent from the roster.
package corpevents

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/marketsim/internal/account"
	"github.com/sawpanic/marketsim/internal/availability"
	"github.com/sawpanic/marketsim/internal/money"
	"github.com/sawpanic/marketsim/internal/priceengine"
	"github.com/sawpanic/marketsim/internal/refdata"
)

// Result records the outcome of replaying one event, for the caller's
// logging/transaction-emission needs.
type Result struct {
	EventID string
	Kind    refdata.CorporateEventKind
	Symbol  string
	Status  refdata.EventStatus
}

// Process replays every pending event in cat.Events whose
// EffectiveInstant is <= asOf, in the catalog's chronological order
// (build() sorts ascending). Each event transitions pending -> applied
// or pending -> skipped exactly once; re-invoking Process with the same
// asOf is a no-op for already-resolved events (invariant I6).
func Process(cat *refdata.Catalog, pe *priceengine.Engine, avail *availability.Book, acct *account.Account, asOf time.Time) []Result {
	var results []Result
	for i := range cat.Events {
		ev := &cat.Events[i]
		if ev.Status != refdata.StatusPending {
			continue
		}
		if ev.EffectiveInstant.After(asOf) {
			continue
		}

		if _, ok := cat.Securities[ev.PrimarySymbol]; !ok {
			ev.Status = refdata.StatusSkipped
			log.Warn().Str("event_id", ev.ID).Str("symbol", ev.PrimarySymbol).Str("kind", string(ev.Kind)).
				Msg("corpevents: symbol absent from roster, skipping event")
			results = append(results, Result{EventID: ev.ID, Kind: ev.Kind, Symbol: ev.PrimarySymbol, Status: refdata.StatusSkipped})
			continue
		}

		applyOne(cat, pe, avail, acct, ev)
		ev.Status = refdata.StatusApplied
		acct.Transactions = append(acct.Transactions, account.Transaction{
			Kind:    account.TxCorporateEvent,
			Symbol:  ev.PrimarySymbol,
			Instant: ev.EffectiveInstant,
			Note:    string(ev.Kind),
		})
		results = append(results, Result{EventID: ev.ID, Kind: ev.Kind, Symbol: ev.PrimarySymbol, Status: refdata.StatusApplied})
	}
	return results
}

func applyOne(cat *refdata.Catalog, pe *priceengine.Engine, avail *availability.Book, acct *account.Account, ev *refdata.CorporateEvent) {
	symbol := ev.PrimarySymbol
	switch ev.Kind {
	case refdata.EventSplit:
		applySplit(pe, avail, acct, symbol, ev.SplitRatio, ev.EffectiveInstant)

	case refdata.EventAcquisitionCash, refdata.EventGoingPrivate:
		convertToCash(acct, symbol, ev.CashPerShare, ev.EffectiveInstant)
		pe.ApplyCashAcquisition(symbol, ev.CashPerShare, ev.EffectiveInstant, ev.EffectiveInstant)

	case refdata.EventAcquisitionStock, refdata.EventMerger:
		convertToStock(acct, symbol, ev.AcquirerSymbol, ev.ExchangeRatio)
		pe.Delist(symbol, ev.EffectiveInstant)

	case refdata.EventBankruptcy:
		writeOffHoldings(acct, symbol)
		pe.ApplyBankruptcy(symbol, ev.EffectiveInstant, ev.EffectiveInstant)

	case refdata.EventIPO:
		pe.ApplyIPO(symbol, ev.EffectiveInstant, ev.InitialAnchor)

	case refdata.EventDelisting:
		pe.Delist(symbol, ev.EffectiveInstant)
	}
}

// applySplit propagates a k-for-1 split into the price engine, the
// share-availability book, and the player's own holdings: shares
// multiply by k, cost basis divides by k (spec §4.6's split row).
func applySplit(pe *priceengine.Engine, avail *availability.Book, acct *account.Account, symbol string, ratio float64, effective time.Time) {
	if ratio <= 0 {
		return
	}
	pe.ApplySplit(symbol, ratio, effective)
	_ = avail.ApplySplit(symbol, ratio) // unknown-to-availability symbols simply have nothing to multiply yet

	if qty, ok := acct.Portfolio[symbol]; ok {
		acct.Portfolio[symbol] = qty * ratio
	}
	lots := acct.CostBasisLots[symbol]
	for i := range lots {
		lots[i].Qty *= ratio
		lots[i].CostBasis /= ratio
	}
}

// convertToCash liquidates the player's position in symbol at px,
// crediting cash and clearing the position (acquisition-cash /
// going-private rows of spec §4.6's table).
func convertToCash(acct *account.Account, symbol string, px float64, effective time.Time) {
	qty := acct.Portfolio[symbol]
	if qty == 0 {
		return
	}
	credit := money.FromShares(qty, px)
	acct.Cash += credit
	delete(acct.Portfolio, symbol)
	delete(acct.CostBasisLots, symbol)
	acct.Transactions = append(acct.Transactions, account.Transaction{
		Kind:      account.TxCorporateEvent,
		Symbol:    symbol,
		Qty:       qty,
		Price:     px,
		CashDelta: credit,
		Instant:   effective,
		Note:      "cash acquisition",
	})
}

// convertToStock swaps the player's holdings in symbol for shares of
// acquirer at exchangeRatio, preserving total dollar cost basis (spec
// §4.6's acquisition-stock row).
func convertToStock(acct *account.Account, symbol, acquirer string, exchangeRatio float64) {
	qty, ok := acct.Portfolio[symbol]
	if !ok || qty == 0 || exchangeRatio <= 0 {
		return
	}
	newQty := qty * exchangeRatio
	acct.Portfolio[acquirer] += newQty

	for _, lot := range acct.CostBasisLots[symbol] {
		acct.CostBasisLots[acquirer] = append(acct.CostBasisLots[acquirer], account.PurchaseLot{
			ID:         lot.ID,
			Symbol:     acquirer,
			Qty:        lot.Qty * exchangeRatio,
			CostBasis:  lot.CostBasis / exchangeRatio,
			AcquiredAt: lot.AcquiredAt,
		})
	}
	delete(acct.Portfolio, symbol)
	delete(acct.CostBasisLots, symbol)
}

// writeOffHoldings zeroes the player's position in symbol with no cash
// compensation (spec §4.6's bankruptcy row).
func writeOffHoldings(acct *account.Account, symbol string) {
	qty, ok := acct.Portfolio[symbol]
	if !ok {
		return
	}
	delete(acct.Portfolio, symbol)
	delete(acct.CostBasisLots, symbol)
	acct.Transactions = append(acct.Transactions, account.Transaction{
		Kind:    account.TxCorporateEvent,
		Symbol:  symbol,
		Qty:     qty,
		Note:    "bankruptcy write-off",
	})
}
