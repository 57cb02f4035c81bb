package http

import (
	"net/http"

	applog "tripsplit/internal/log"
)

func (s *Server) handleListTrips(w http.ResponseWriter, r *http.Request) {
	trips, err := s.svc.ListTrips(r.Context())
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	out := make([]tripResponse, 0, len(trips))
	for _, t := range trips {
		out = append(out, newTripResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateTrip(w http.ResponseWriter, r *http.Request) {
	var req tripRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	trip, err := req.toTrip()
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	created, err := s.svc.CreateTrip(r.Context(), trip)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTripResponse(created))
}

func (s *Server) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	trip, err := s.svc.GetTrip(r.Context(), id)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, newTripResponse(trip))
}

func (s *Server) handleActiveTrip(w http.ResponseWriter, r *http.Request) {
	trip, err := s.svc.GetActiveTrip(r.Context())
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, newTripResponse(trip))
}

func (s *Server) handleActivateTrip(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	if err := s.svc.ActivateTrip(r.Context(), id); err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	trip, err := s.svc.GetTrip(r.Context(), id)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, newTripResponse(trip))
}
