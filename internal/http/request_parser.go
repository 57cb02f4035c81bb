package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"tripsplit/internal/core"
)

const maxBodyBytes = 64 << 10

var errBadRequest = errors.New("bad request")

// decodeJSON reads a single JSON object from the request body. Unknown
// fields and trailing data are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if core.IsValidationError(err) {
			return err
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w: body larger than %d bytes", errBadRequest, maxErr.Limit)
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after JSON object", errBadRequest)
	}
	return nil
}

// pathID reads a positive integer path variable.
func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", errBadRequest, name, raw)
	}
	return id, nil
}

// amount accepts either a JSON string ("12,50") or a JSON number (12.5).
type amount struct {
	cents int64
	set   bool
}

func (a *amount) UnmarshalJSON(b []byte) error {
	raw := string(bytes.TrimSpace(b))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = s
	}
	cents, err := core.ParseDecimalToCents(raw)
	if err != nil {
		return err
	}
	a.cents, a.set = cents, true
	return nil
}

type tripRequest struct {
	Name      string `json:"name"`
	StartDate string `json:"start_date"`
	Type      string `json:"trip_type"`
}

func (req tripRequest) toTrip() (core.Trip, error) {
	date, err := core.ParseDate(strings.TrimSpace(req.StartDate))
	if err != nil {
		return core.Trip{}, fmt.Errorf("start date: %w", err)
	}
	tt := core.TripType(strings.ToLower(strings.TrimSpace(req.Type)))
	if tt == "" {
		tt = core.FamilyTrip
	}
	return core.Trip{Name: strings.TrimSpace(req.Name), StartDate: date, Type: tt}, nil
}

type familyRequest struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

func (req familyRequest) toFamily(tripID, familyID int64) core.Family {
	return core.Family{ID: familyID, TripID: tripID, Name: strings.TrimSpace(req.Name), Members: req.Members}
}

type expenseRequest struct {
	PayerID     int64  `json:"payer_id"`
	Description string `json:"description"`
	Amount      amount `json:"amount"`
	Date        string `json:"date"`
}

func (req expenseRequest) toExpense(tripID int64) (core.Expense, error) {
	if !req.Amount.set {
		return core.Expense{}, core.ErrInvalidAmount
	}
	date, err := core.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		return core.Expense{}, fmt.Errorf("date: %w", err)
	}
	return core.Expense{
		TripID:      tripID,
		PayerID:     req.PayerID,
		Description: strings.TrimSpace(req.Description),
		Amount:      core.Money{Cents: req.Amount.cents},
		Date:        date,
	}, nil
}
