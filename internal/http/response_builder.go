package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"tripsplit/internal/core"
	"tripsplit/internal/ledger"
	applog "tripsplit/internal/log"
	"tripsplit/internal/report"
	"tripsplit/internal/services"
	"tripsplit/internal/settlement"
)

type errorResponse struct {
	Error string `json:"error"`
}

type tripResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	StartDate string    `json:"start_date"`
	Type      string    `json:"trip_type"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type familyResponse struct {
	ID      int64  `json:"id"`
	TripID  int64  `json:"trip_id"`
	Name    string `json:"name"`
	Members int    `json:"members"`
}

type expenseResponse struct {
	ID          int64  `json:"id"`
	TripID      int64  `json:"trip_id"`
	PayerID     int64  `json:"payer_id"`
	PayerName   string `json:"payer_name,omitempty"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
}

type summaryResponse struct {
	Trip          tripResponse `json:"trip"`
	FamilyCount   int          `json:"family_count"`
	TotalMembers  int          `json:"total_members"`
	TotalExpenses string       `json:"total_expenses"`
	PerHeadCost   string       `json:"per_head_cost"`
}

type transactionResponse struct {
	Payer    string `json:"payer"`
	Receiver string `json:"receiver"`
	Amount   string `json:"amount"`
}

type settlementResponse struct {
	Settled      bool                  `json:"settled"`
	Message      string                `json:"message,omitempty"`
	Transactions []transactionResponse `json:"transactions"`
}

type reportResponse struct {
	Summary      summaryResponse       `json:"summary"`
	Families     []familyResponse      `json:"families"`
	Expenses     []expenseResponse     `json:"expenses"`
	Transactions []transactionResponse `json:"transactions"`
	Text         string                `json:"text"`
	ShareURL     string                `json:"share_url"`
}

type archiveResponse struct {
	ID         int64     `json:"id"`
	TripName   string    `json:"trip_name"`
	Path       string    `json:"path"`
	ArchivedAt time.Time `json:"archived_at"`
}

func newTripResponse(t core.Trip) tripResponse {
	return tripResponse{
		ID:        t.ID,
		Name:      t.Name,
		StartDate: t.StartDate.String(),
		Type:      string(t.Type),
		Status:    string(t.Status),
		CreatedAt: t.CreatedAt,
	}
}

func newFamilyResponse(f core.Family) familyResponse {
	return familyResponse{ID: f.ID, TripID: f.TripID, Name: f.Name, Members: f.Members}
}

func newExpenseResponse(e core.Expense) expenseResponse {
	return expenseResponse{
		ID:          e.ID,
		TripID:      e.TripID,
		PayerID:     e.PayerID,
		PayerName:   e.PayerName,
		Description: e.Description,
		Amount:      e.Amount.String(),
		Date:        e.Date.String(),
	}
}

func newSummaryResponse(s core.TripSummary) summaryResponse {
	return summaryResponse{
		Trip:          newTripResponse(s.Trip),
		FamilyCount:   s.FamilyCount,
		TotalMembers:  s.TotalMembers,
		TotalExpenses: s.TotalExpenses.String(),
		PerHeadCost:   s.PerHeadCost.StringFixed(2),
	}
}

func newTransactions(txs []settlement.Transaction) []transactionResponse {
	txs = report.Payable(txs)
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, transactionResponse{Payer: tx.Payer, Receiver: tx.Receiver, Amount: tx.Amount.StringFixed(2)})
	}
	return out
}

func newSettlementResponse(txs []settlement.Transaction) settlementResponse {
	payable := newTransactions(txs)
	resp := settlementResponse{Settled: len(payable) == 0, Transactions: payable}
	if resp.Settled {
		resp.Message = report.NoSettlementsMessage
	}
	return resp
}

func newReportResponse(r report.Report) reportResponse {
	resp := reportResponse{
		Summary:      newSummaryResponse(r.Summary),
		Families:     make([]familyResponse, 0, len(r.Families)),
		Expenses:     make([]expenseResponse, 0, len(r.Expenses)),
		Transactions: newTransactions(r.Transactions),
		Text:         r.Text(),
		ShareURL:     r.ShareURL(),
	}
	for _, f := range r.Families {
		resp.Families = append(resp.Families, newFamilyResponse(f))
	}
	for _, e := range r.Expenses {
		resp.Expenses = append(resp.Expenses, newExpenseResponse(e))
	}
	return resp
}

func newArchiveResponse(a core.ArchiveEntry) archiveResponse {
	return archiveResponse{ID: a.ID, TripName: a.TripName, Path: a.Path, ArchivedAt: a.ArchivedAt}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

// statusFor maps domain errors to HTTP status codes. The second return is
// false for errors whose message must not reach the client.
func statusFor(err error) (int, bool) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, true
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, ledger.ErrDuplicateFamily),
		errors.Is(err, ledger.ErrFamilyHasExpenses),
		errors.Is(err, services.ErrTripArchived):
		return http.StatusConflict, true
	case errors.Is(err, ledger.ErrPayerNotInTrip),
		errors.Is(err, settlement.ErrInvalidInput),
		core.IsValidationError(err):
		return http.StatusUnprocessableEntity, true
	case errors.Is(err, ledger.ErrUnsupported):
		return http.StatusNotImplemented, true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, false
	default:
		return http.StatusInternalServerError, false
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, expose := statusFor(err)
	msg := err.Error()
	if !expose {
		msg = http.StatusText(status)
	}
	if status >= http.StatusInternalServerError {
		s.logger.LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, op,
			applog.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent()))
	}
	writeJSON(w, status, errorResponse{Error: msg})
}
