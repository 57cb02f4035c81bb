package http

import (
	"net/http"

	applog "tripsplit/internal/log"
)

func (s *Server) handleArchiveTrip(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, applog.OpArchive, err)
		return
	}
	entry, err := s.svc.ArchiveTrip(r.Context(), tripID)
	if err != nil {
		s.writeError(w, r, applog.OpArchive, err)
		return
	}
	writeJSON(w, http.StatusCreated, newArchiveResponse(entry))
}

func (s *Server) handleListArchives(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.ListArchives(r.Context())
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	out := make([]archiveResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, newArchiveResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleArchiveSettlement settles an archived trip from its snapshot.
func (s *Server) handleArchiveSettlement(w http.ResponseWriter, r *http.Request) {
	archiveID, err := pathID(r, "archiveID")
	if err != nil {
		s.writeError(w, r, applog.OpSettle, err)
		return
	}
	rep, err := s.svc.ArchiveReport(r.Context(), archiveID)
	if err != nil {
		s.writeError(w, r, applog.OpSettle, err)
		return
	}
	resp := struct {
		Summary summaryResponse `json:"summary"`
		settlementResponse
	}{newSummaryResponse(rep.Summary), newSettlementResponse(rep.Transactions)}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteArchive(w http.ResponseWriter, r *http.Request) {
	archiveID, err := pathID(r, "archiveID")
	if err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	if err := s.svc.DeleteArchive(r.Context(), archiveID); err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
