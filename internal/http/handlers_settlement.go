package http

import (
	"net/http"

	applog "tripsplit/internal/log"
)

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	sum, err := s.svc.Summary(r.Context(), tripID)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, newSummaryResponse(sum))
}

// handleSettlement always recomputes from the current expenses.
func (s *Server) handleSettlement(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, applog.OpSettle, err)
		return
	}
	sum, err := s.svc.Summary(r.Context(), tripID)
	if err != nil {
		s.writeError(w, r, applog.OpSettle, err)
		return
	}
	txs, err := s.svc.Settle(r.Context(), tripID)
	if err != nil {
		s.writeError(w, r, applog.OpSettle, err)
		return
	}
	s.logger.LogSettlement(r.Context(), tripID, len(txs), sum.PerHeadCost)
	writeJSON(w, http.StatusOK, newSettlementResponse(txs))
}

// handleReport renders the shareable text report, or the full report as
// JSON with ?format=json.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	rep, err := s.svc.Report(r.Context(), tripID)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, newReportResponse(rep))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(rep.Text()))
}
