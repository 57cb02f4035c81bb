package services

import (
	"context"
	"fmt"
	"log/slog"

	"tripsplit/internal/amqp"
	"tripsplit/internal/core"
	"tripsplit/internal/ledger"
	"tripsplit/internal/report"
	"tripsplit/internal/settlement"
)

// Publisher announces that a trip changed. *amqp.Client satisfies it.
type Publisher interface {
	PublishTripChanged(ctx context.Context, tripID int64, reason string) error
}

// TripService orchestrates trip operations across the store, the
// settlement engine and event publishing.
type TripService struct {
	store     ledger.Store
	archiver  ledger.Archiver
	publisher Publisher
}

// NewTripService builds the service. archiver and publisher may be nil:
// archive operations then return ledger.ErrUnsupported and no events are
// published.
func NewTripService(store ledger.Store, archiver ledger.Archiver, publisher Publisher) *TripService {
	return &TripService{
		store:     store,
		archiver:  archiver,
		publisher: publisher,
	}
}

func (s *TripService) CreateTrip(ctx context.Context, t core.Trip) (core.Trip, error) {
	if err := t.Validate(); err != nil {
		return core.Trip{}, err
	}
	created, err := s.store.CreateTrip(ctx, t)
	if err != nil {
		return core.Trip{}, fmt.Errorf("create trip: %w", err)
	}
	slog.InfoContext(ctx, "Trip created", "trip_id", created.ID, "name", created.Name, "type", created.Type)
	s.publish(ctx, created.ID, amqp.ReasonTripCreated)
	return created, nil
}

func (s *TripService) ListTrips(ctx context.Context) ([]core.Trip, error) {
	return s.store.ListTrips(ctx)
}

func (s *TripService) GetTrip(ctx context.Context, id int64) (core.Trip, error) {
	return s.store.GetTrip(ctx, id)
}

// ActivateTrip makes id the active trip. The active trip is only a UI
// convenience; every other operation names its trip explicitly.
func (s *TripService) ActivateTrip(ctx context.Context, id int64) error {
	if err := s.store.ActivateTrip(ctx, id); err != nil {
		return fmt.Errorf("activate trip: %w", err)
	}
	s.publish(ctx, id, amqp.ReasonTripActivated)
	return nil
}

func (s *TripService) GetActiveTrip(ctx context.Context) (core.Trip, error) {
	return s.store.GetActiveTrip(ctx)
}

func (s *TripService) AddFamily(ctx context.Context, f core.Family) (core.Family, error) {
	if err := f.Validate(); err != nil {
		return core.Family{}, err
	}
	if err := s.requireOpen(ctx, f.TripID); err != nil {
		return core.Family{}, err
	}
	added, err := s.store.AddFamily(ctx, f)
	if err != nil {
		return core.Family{}, fmt.Errorf("add family: %w", err)
	}
	slog.InfoContext(ctx, "Family added", "trip_id", f.TripID, "family_id", added.ID, "members", added.Members)
	s.publish(ctx, f.TripID, amqp.ReasonFamilyChanged)
	return added, nil
}

func (s *TripService) UpdateFamily(ctx context.Context, f core.Family) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if err := s.requireOpen(ctx, f.TripID); err != nil {
		return err
	}
	if err := s.store.UpdateFamily(ctx, f); err != nil {
		return fmt.Errorf("update family: %w", err)
	}
	s.publish(ctx, f.TripID, amqp.ReasonFamilyChanged)
	return nil
}

func (s *TripService) DeleteFamily(ctx context.Context, tripID, familyID int64) error {
	if err := s.requireOpen(ctx, tripID); err != nil {
		return err
	}
	if err := s.store.DeleteFamily(ctx, tripID, familyID); err != nil {
		return fmt.Errorf("delete family: %w", err)
	}
	s.publish(ctx, tripID, amqp.ReasonFamilyChanged)
	return nil
}

func (s *TripService) ListFamilies(ctx context.Context, tripID int64) ([]core.Family, error) {
	if _, err := s.store.GetTrip(ctx, tripID); err != nil {
		return nil, err
	}
	return s.store.ListFamilies(ctx, tripID)
}

func (s *TripService) AddExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if err := s.requireOpen(ctx, e.TripID); err != nil {
		return core.Expense{}, err
	}
	added, err := s.store.AddExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("add expense: %w", err)
	}
	slog.InfoContext(ctx, "Expense added",
		"trip_id", e.TripID,
		"expense_id", added.ID,
		"payer_id", added.PayerID,
		"amount", added.Amount.String())
	s.publish(ctx, e.TripID, amqp.ReasonExpenseChanged)
	return added, nil
}

func (s *TripService) DeleteExpense(ctx context.Context, tripID, expenseID int64) error {
	if err := s.requireOpen(ctx, tripID); err != nil {
		return err
	}
	if err := s.store.DeleteExpense(ctx, tripID, expenseID); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	s.publish(ctx, tripID, amqp.ReasonExpenseChanged)
	return nil
}

func (s *TripService) ListExpenses(ctx context.Context, tripID int64) ([]core.Expense, error) {
	if _, err := s.store.GetTrip(ctx, tripID); err != nil {
		return nil, err
	}
	return s.store.ListExpenses(ctx, tripID)
}

// Summary returns the cost overview of a trip.
func (s *TripService) Summary(ctx context.Context, tripID int64) (core.TripSummary, error) {
	return summarize(ctx, s.store, tripID)
}

// Settle computes the transactions that even out the trip.
func (s *TripService) Settle(ctx context.Context, tripID int64) ([]settlement.Transaction, error) {
	return settle(ctx, s.store, tripID)
}

// Report gathers everything needed to render or export the trip report.
func (s *TripService) Report(ctx context.Context, tripID int64) (report.Report, error) {
	return buildReport(ctx, s.store, tripID)
}

func (s *TripService) ArchiveTrip(ctx context.Context, tripID int64) (core.ArchiveEntry, error) {
	if s.archiver == nil {
		return core.ArchiveEntry{}, ledger.ErrUnsupported
	}
	if err := s.requireOpen(ctx, tripID); err != nil {
		return core.ArchiveEntry{}, err
	}
	entry, err := s.archiver.ArchiveTrip(ctx, tripID)
	if err != nil {
		return core.ArchiveEntry{}, fmt.Errorf("archive trip: %w", err)
	}
	s.publish(ctx, tripID, amqp.ReasonTripArchived)
	return entry, nil
}

func (s *TripService) ListArchives(ctx context.Context) ([]core.ArchiveEntry, error) {
	if s.archiver == nil {
		return nil, ledger.ErrUnsupported
	}
	return s.archiver.ListArchives(ctx)
}

// ArchiveReport opens an archive and builds the report of the trip it holds.
func (s *TripService) ArchiveReport(ctx context.Context, archiveID int64) (report.Report, error) {
	if s.archiver == nil {
		return report.Report{}, ledger.ErrUnsupported
	}
	view, err := s.archiver.OpenArchive(ctx, archiveID)
	if err != nil {
		return report.Report{}, err
	}
	defer func() {
		if err := view.Close(); err != nil {
			slog.WarnContext(ctx, "Failed to close archive", "archive_id", archiveID, "error", err)
		}
	}()
	return buildReport(ctx, view, view.TripID())
}

// SettleArchive computes the settlement of an archived trip.
func (s *TripService) SettleArchive(ctx context.Context, archiveID int64) ([]settlement.Transaction, error) {
	r, err := s.ArchiveReport(ctx, archiveID)
	if err != nil {
		return nil, err
	}
	return r.Transactions, nil
}

func (s *TripService) DeleteArchive(ctx context.Context, archiveID int64) error {
	if s.archiver == nil {
		return ledger.ErrUnsupported
	}
	return s.archiver.DeleteArchive(ctx, archiveID)
}

// ErrTripArchived is returned when changing or re-archiving a trip that has
// been archived.
var ErrTripArchived = ledger.ErrTripArchived

func (s *TripService) requireOpen(ctx context.Context, tripID int64) error {
	trip, err := s.store.GetTrip(ctx, tripID)
	if err != nil {
		return err
	}
	if trip.Status == core.TripArchived {
		return fmt.Errorf("trip %d: %w", tripID, ErrTripArchived)
	}
	return nil
}

func (s *TripService) publish(ctx context.Context, tripID int64, reason string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishTripChanged(ctx, tripID, reason); err != nil {
		slog.ErrorContext(ctx, "Failed to publish trip changed message",
			"trip_id", tripID, "reason", reason, "error", err)
	}
}

func summarize(ctx context.Context, r ledger.Reader, tripID int64) (core.TripSummary, error) {
	trip, err := r.GetTrip(ctx, tripID)
	if err != nil {
		return core.TripSummary{}, err
	}
	participants, err := r.Participants(ctx, tripID)
	if err != nil {
		return core.TripSummary{}, fmt.Errorf("read participants: %w", err)
	}
	return summaryOf(trip, participants), nil
}

func summaryOf(trip core.Trip, participants []settlement.Participant) core.TripSummary {
	return core.TripSummary{
		Trip:          trip,
		FamilyCount:   len(participants),
		TotalMembers:  settlement.TotalHeadCount(participants),
		TotalExpenses: core.FromDecimal(settlement.TotalPaid(participants)),
		PerHeadCost:   settlement.PerHeadCost(participants),
	}
}

func settle(ctx context.Context, r ledger.Reader, tripID int64) ([]settlement.Transaction, error) {
	if _, err := r.GetTrip(ctx, tripID); err != nil {
		return nil, err
	}
	participants, err := r.Participants(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("read participants: %w", err)
	}
	txs, err := settlement.Settle(participants)
	if err != nil {
		return nil, fmt.Errorf("settle trip %d: %w", tripID, err)
	}
	return txs, nil
}

func buildReport(ctx context.Context, r ledger.Reader, tripID int64) (report.Report, error) {
	trip, err := r.GetTrip(ctx, tripID)
	if err != nil {
		return report.Report{}, err
	}
	participants, err := r.Participants(ctx, tripID)
	if err != nil {
		return report.Report{}, fmt.Errorf("read participants: %w", err)
	}
	txs, err := settlement.Settle(participants)
	if err != nil {
		return report.Report{}, fmt.Errorf("settle trip %d: %w", tripID, err)
	}
	families, err := r.ListFamilies(ctx, tripID)
	if err != nil {
		return report.Report{}, fmt.Errorf("list families: %w", err)
	}
	expenses, err := r.ListExpenses(ctx, tripID)
	if err != nil {
		return report.Report{}, fmt.Errorf("list expenses: %w", err)
	}
	return report.Report{
		Summary:      summaryOf(trip, participants),
		Families:     families,
		Expenses:     expenses,
		Transactions: txs,
	}, nil
}
