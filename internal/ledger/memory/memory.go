package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tripsplit/internal/core"
	"tripsplit/internal/ledger"
	"tripsplit/internal/settlement"
)

// Store keeps trips, families and expenses in process memory. Slices keep
// insertion order, which is the settlement tie-break order.
type Store struct {
	mu       sync.Mutex
	nextID   int64
	trips    []core.Trip
	families []core.Family
	expenses []core.Expense
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) CreateTrip(_ context.Context, t core.Trip) (core.Trip, error) {
	if err := t.Validate(); err != nil {
		return core.Trip{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.id()
	t.Status = core.TripInactive
	t.CreatedAt = time.Now().UTC()
	s.trips = append(s.trips, t)
	return t, nil
}

func (s *Store) GetTrip(_ context.Context, id int64) (core.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.tripIndex(id)
	if i < 0 {
		return core.Trip{}, fmt.Errorf("trip %d: %w", id, ledger.ErrNotFound)
	}
	return s.trips[i], nil
}

func (s *Store) ListTrips(_ context.Context) ([]core.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Trip(nil), s.trips...), nil
}

func (s *Store) ActivateTrip(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tripIndex(id) < 0 {
		return fmt.Errorf("trip %d: %w", id, ledger.ErrNotFound)
	}
	for i := range s.trips {
		switch {
		case s.trips[i].ID == id:
			s.trips[i].Status = core.TripActive
		case s.trips[i].Status == core.TripActive:
			s.trips[i].Status = core.TripInactive
		}
	}
	return nil
}

func (s *Store) GetActiveTrip(_ context.Context) (core.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trips {
		if t.Status == core.TripActive {
			return t, nil
		}
	}
	return core.Trip{}, fmt.Errorf("active trip: %w", ledger.ErrNotFound)
}

func (s *Store) AddFamily(_ context.Context, f core.Family) (core.Family, error) {
	if err := f.Validate(); err != nil {
		return core.Family{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tripIndex(f.TripID) < 0 {
		return core.Family{}, fmt.Errorf("trip %d: %w", f.TripID, ledger.ErrNotFound)
	}
	if s.nameTaken(f.TripID, f.Name, 0) {
		return core.Family{}, fmt.Errorf("%q: %w", f.Name, ledger.ErrDuplicateFamily)
	}
	f.ID = s.id()
	s.families = append(s.families, f)
	return f, nil
}

func (s *Store) UpdateFamily(_ context.Context, f core.Family) error {
	if err := f.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.familyIndex(f.TripID, f.ID)
	if i < 0 {
		return fmt.Errorf("family %d: %w", f.ID, ledger.ErrNotFound)
	}
	if s.nameTaken(f.TripID, f.Name, f.ID) {
		return fmt.Errorf("%q: %w", f.Name, ledger.ErrDuplicateFamily)
	}
	s.families[i].Name = f.Name
	s.families[i].Members = f.Members
	return nil
}

func (s *Store) DeleteFamily(_ context.Context, tripID, familyID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.familyIndex(tripID, familyID)
	if i < 0 {
		return fmt.Errorf("family %d: %w", familyID, ledger.ErrNotFound)
	}
	for _, e := range s.expenses {
		if e.PayerID == familyID {
			return fmt.Errorf("family %d: %w", familyID, ledger.ErrFamilyHasExpenses)
		}
	}
	s.families = append(s.families[:i], s.families[i+1:]...)
	return nil
}

func (s *Store) ListFamilies(_ context.Context, tripID int64) ([]core.Family, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Family
	for _, f := range s.families {
		if f.TripID == tripID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *Store) AddExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tripIndex(e.TripID) < 0 {
		return core.Expense{}, fmt.Errorf("trip %d: %w", e.TripID, ledger.ErrNotFound)
	}
	payer := s.familyIndex(e.TripID, e.PayerID)
	if payer < 0 {
		return core.Expense{}, fmt.Errorf("family %d: %w", e.PayerID, ledger.ErrPayerNotInTrip)
	}
	e.ID = s.id()
	e.PayerName = s.families[payer].Name
	s.expenses = append(s.expenses, e)
	return e, nil
}

func (s *Store) DeleteExpense(_ context.Context, tripID, expenseID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.expenses {
		if e.ID == expenseID && e.TripID == tripID {
			s.expenses = append(s.expenses[:i], s.expenses[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("expense %d: %w", expenseID, ledger.ErrNotFound)
}

func (s *Store) ListExpenses(_ context.Context, tripID int64) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Expense
	for _, e := range s.expenses {
		if e.TripID != tripID {
			continue
		}
		if i := s.familyIndex(tripID, e.PayerID); i >= 0 {
			e.PayerName = s.families[i].Name
		}
		out = append(out, e)
	}
	return out, nil
}

// Participants implements ledger.ParticipantReader under a single lock, so
// the head counts and totals always come from the same state.
func (s *Store) Participants(_ context.Context, tripID int64) ([]settlement.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tripIndex(tripID) < 0 {
		return nil, fmt.Errorf("trip %d: %w", tripID, ledger.ErrNotFound)
	}
	paid := make(map[int64]int64)
	for _, e := range s.expenses {
		if e.TripID == tripID {
			paid[e.PayerID] += e.Amount.Cents
		}
	}
	var out []settlement.Participant
	for _, f := range s.families {
		if f.TripID != tripID {
			continue
		}
		out = append(out, settlement.Participant{
			Name:       f.Name,
			HeadCount:  f.Members,
			AmountPaid: core.Money{Cents: paid[f.ID]}.Decimal(),
		})
	}
	return out, nil
}

func (s *Store) tripIndex(id int64) int {
	for i, t := range s.trips {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) familyIndex(tripID, familyID int64) int {
	for i, f := range s.families {
		if f.ID == familyID && f.TripID == tripID {
			return i
		}
	}
	return -1
}

func (s *Store) nameTaken(tripID int64, name string, exceptID int64) bool {
	for _, f := range s.families {
		if f.TripID == tripID && f.ID != exceptID && strings.EqualFold(f.Name, name) {
			return true
		}
	}
	return false
}
