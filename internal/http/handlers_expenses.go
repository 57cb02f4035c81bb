package http

import (
	"net/http"

	applog "tripsplit/internal/log"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	exps, err := s.svc.ListExpenses(r.Context(), tripID)
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	out := make([]expenseResponse, 0, len(exps))
	for _, e := range exps {
		out = append(out, newExpenseResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	exp, err := req.toExpense(tripID)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	created, err := s.svc.AddExpense(r.Context(), exp)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, newExpenseResponse(created))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	expenseID, err := pathID(r, "expenseID")
	if err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	if err := s.svc.DeleteExpense(r.Context(), tripID, expenseID); err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
