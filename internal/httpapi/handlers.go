package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/sawpanic/marketsim/internal/account"
	"github.com/sawpanic/marketsim/internal/clock"
	"github.com/sawpanic/marketsim/internal/engerr"
	"github.com/sawpanic/marketsim/internal/refdata"
	"github.com/sawpanic/marketsim/internal/tradegate"
)

// --- time control (spec §6) ---

type timeResponse struct {
	Instant    time.Time `json:"instant"`
	Multiplier int64     `json:"multiplier"`
	Paused     bool      `json:"paused"`
}

func (s *Server) handleTime(w http.ResponseWriter, r *http.Request) {
	c := s.eng.ClockRef()
	writeJSON(w, http.StatusOK, timeResponse{Instant: c.Now(), Multiplier: int64(c.Multiplier()), Paused: c.Paused()})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.eng.Pause()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.eng.Resume()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

type setSpeedRequest struct {
	Multiplier int64 `json:"multiplier"`
}

func (s *Server) handleSetSpeed(w http.ResponseWriter, r *http.Request) {
	var req setSpeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, engerr.New(engerr.InvalidArgument, "malformed request body"))
		return
	}
	applied := s.eng.SetSpeed(clock.Multiplier(req.Multiplier))
	writeJSON(w, http.StatusOK, map[string]int64{"multiplier": int64(applied)})
}

// --- stocks / market index (spec §6, §4.9) ---

func (s *Server) handleStocks(w http.ResponseWriter, r *http.Request) {
	_, acct := s.eng.Snapshot()
	now := s.eng.ClockRef().Now()
	writeJSON(w, http.StatusOK, s.eng.Views().AllSnapshots(&acct, now))
}

func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	_, acct := s.eng.Snapshot()
	now := s.eng.ClockRef().Now()
	snap, err := s.eng.Views().Snapshot(symbol, &acct, now)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStockHistory(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	days := queryIntDefault(r, "days", 30)
	now := s.eng.ClockRef().Now()
	hist, err := s.eng.Views().PriceHistory(symbol, now, days)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

func (s *Server) handleMarketIndex(w http.ResponseWriter, r *http.Request) {
	days := queryIntDefault(r, "days", 30)
	now := s.eng.ClockRef().Now()
	writeJSON(w, http.StatusOK, s.eng.Views().MarketIndex(now, days))
}

// --- index funds (spec §3 IndexFund, §4.2 supplemental) ---

func (s *Server) handleIndexFunds(w http.ResponseWriter, r *http.Request) {
	now := s.eng.ClockRef().Now()
	type fundQuote struct {
		Symbol    string  `json:"symbol"`
		Name      string  `json:"name"`
		Price     float64 `json:"price"`
		ChangePct float64 `json:"change_pct"`
	}
	var out []fundQuote
	for symbol, fund := range s.eng.Views().Catalog.Indices {
		if now.Before(fund.Inception) {
			continue
		}
		q, err := s.eng.Price(symbol, now)
		if err != nil {
			continue
		}
		out = append(out, fundQuote{Symbol: symbol, Name: fund.Name, Price: q.Price, ChangePct: q.ChangePct})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIndexFund(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	now := s.eng.ClockRef().Now()
	fund, ok := s.eng.Views().Catalog.Indices[symbol]
	if !ok {
		writeErr(w, engerr.New(engerr.UnknownSymbol, symbol))
		return
	}
	q, err := s.eng.Price(symbol, now)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":        fund.Symbol,
		"name":          fund.Name,
		"constituents":  fund.Constituents,
		"weighting":     fund.Weighting,
		"expense_ratio": fund.ExpenseRatio,
		"price":         q.Price,
		"change_pct":    q.ChangePct,
	})
}

// --- companies / news / emails (spec §4.9) ---

func (s *Server) handleCompany(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	now := s.eng.ClockRef().Now()
	snap, ok := s.eng.Views().CompanyAtTime(symbol, now)
	if !ok {
		writeErr(w, engerr.New(engerr.NotFound, "no financial dossier for "+symbol))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	now := s.eng.ClockRef().Now()
	lookback := queryIntDefault(r, "lookback_days", 14)
	writeJSON(w, http.StatusOK, s.eng.Views().NewsStream(now, lookback))
}

func (s *Server) handleEmails(w http.ResponseWriter, r *http.Request) {
	now := s.eng.ClockRef().Now()
	writeJSON(w, http.StatusOK, s.eng.Views().EmailStream(now))
}

// --- account / trade (spec §4.8, §3) ---

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	_, acct := s.eng.Snapshot()
	writeJSON(w, http.StatusOK, acct)
}

type tradeRequest struct {
	Symbol  string  `json:"symbol"`
	Side    string  `json:"side"`
	Qty     float64 `json:"qty"`
	Kind    string  `json:"kind"`
	LimitPx float64 `json:"limit_price"`
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, engerr.New(engerr.InvalidArgument, "malformed request body"))
		return
	}
	if req.Qty <= 0 {
		writeErr(w, engerr.New(engerr.InvalidArgument, "qty must be positive"))
		return
	}
	order := tradegate.Order{
		Symbol:  req.Symbol,
		Side:    account.OrderSide(req.Side),
		Qty:     req.Qty,
		Kind:    account.OrderKind(req.Kind),
		LimitPx: req.LimitPx,
	}
	res, err := s.eng.ExecuteOrder(r.Context(), order)
	if err != nil {
		s.metrics.TradeErrors.WithLabelValues(string(engerr.KindOf(err))).Inc()
		writeErr(w, err)
		return
	}
	s.metrics.TradesTotal.WithLabelValues(req.Side).Inc()
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.eng.CancelOrder(id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "canceled"})
}

// --- crash control (spec §6 "POST /api/crash/trigger") ---

func (s *Server) handleListCrashes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Crashes())
}

type triggerCrashRequest struct {
	Kind     string                 `json:"kind"`
	Severity float64                `json:"severity"`
	Impacts  refdata.CrashImpact    `json:"impacts"`
	Cascades []refdata.Cascade      `json:"cascades"`
	Recovery refdata.Recovery       `json:"recovery"`
}

func (s *Server) handleTriggerCrash(w http.ResponseWriter, r *http.Request) {
	var req triggerCrashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, engerr.New(engerr.InvalidArgument, "malformed request body"))
		return
	}
	if req.Kind == "" {
		writeErr(w, engerr.New(engerr.InvalidArgument, "kind is required"))
		return
	}
	scenario := refdata.CrashScenario{
		ID:       uuid.NewString(),
		Kind:     req.Kind,
		Severity: req.Severity,
		Impacts:  req.Impacts,
		Cascades: req.Cascades,
		Recovery: req.Recovery,
	}
	s.eng.TriggerCrash(scenario)
	writeJSON(w, http.StatusOK, scenario)
}

func (s *Server) handleDeactivateCrash(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.eng.DeactivateCrash(id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deactivated"})
}

// --- retention (spec §9 data-retention pruning) ---

func (s *Server) handleRetentionPrune(w http.ResponseWriter, r *http.Request) {
	now := s.eng.ClockRef().Now()
	days := queryIntDefault(r, "older_than_days", 365)
	cutoff := now.AddDate(0, 0, -days)
	n, err := s.eng.PruneRetention(r.Context(), cutoff)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"rows_pruned": n})
}
