package http

import (
	"net/http"

	applog "tripsplit/internal/log"
)

func (s *Server) handleListFamilies(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	fams, err := s.svc.ListFamilies(r.Context(), tripID)
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	out := make([]familyResponse, 0, len(fams))
	for _, f := range fams {
		out = append(out, newFamilyResponse(f))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddFamily(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	var req familyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	fam, err := s.svc.AddFamily(r.Context(), req.toFamily(tripID, 0))
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, newFamilyResponse(fam))
}

func (s *Server) handleUpdateFamily(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	familyID, err := pathID(r, "familyID")
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	var req familyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	fam := req.toFamily(tripID, familyID)
	if err := s.svc.UpdateFamily(r.Context(), fam); err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, newFamilyResponse(fam))
}

func (s *Server) handleDeleteFamily(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	familyID, err := pathID(r, "familyID")
	if err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	if err := s.svc.DeleteFamily(r.Context(), tripID, familyID); err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
