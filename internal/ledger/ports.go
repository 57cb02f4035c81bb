// Package ledger defines the store ports for trips, families and expenses.
// Backends live in subpackages (memory) and in internal/storage.
package ledger

import (
	"context"
	"errors"

	"tripsplit/internal/core"
	"tripsplit/internal/report"
	"tripsplit/internal/settlement"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateFamily   = errors.New("family name already used in this trip")
	ErrFamilyHasExpenses = errors.New("family still pays for recorded expenses")
	ErrPayerNotInTrip    = errors.New("payer does not belong to the trip")
	ErrUnsupported       = errors.New("operation not supported by this backend")
	ErrTripArchived      = errors.New("trip is archived")
)

// Ports for outbound adapters.
type (
	TripStore interface {
		CreateTrip(ctx context.Context, t core.Trip) (core.Trip, error)
		GetTrip(ctx context.Context, id int64) (core.Trip, error)
		ListTrips(ctx context.Context) ([]core.Trip, error)
		// ActivateTrip marks the trip active and every other trip inactive.
		ActivateTrip(ctx context.Context, id int64) error
		GetActiveTrip(ctx context.Context) (core.Trip, error)
	}

	FamilyStore interface {
		AddFamily(ctx context.Context, f core.Family) (core.Family, error)
		UpdateFamily(ctx context.Context, f core.Family) error
		DeleteFamily(ctx context.Context, tripID, familyID int64) error
		// ListFamilies returns the trip's families in insertion order.
		ListFamilies(ctx context.Context, tripID int64) ([]core.Family, error)
	}

	ExpenseStore interface {
		AddExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		DeleteExpense(ctx context.Context, tripID, expenseID int64) error
		// ListExpenses returns the trip's expenses with PayerName filled in.
		ListExpenses(ctx context.Context, tripID int64) ([]core.Expense, error)
	}

	// ParticipantReader aggregates a trip into settlement input: one
	// participant per family in insertion order, with the total that family
	// paid for this trip only.
	ParticipantReader interface {
		Participants(ctx context.Context, tripID int64) ([]settlement.Participant, error)
	}

	// Archiver snapshots trips into standalone files.
	Archiver interface {
		ArchiveTrip(ctx context.Context, tripID int64) (core.ArchiveEntry, error)
		ListArchives(ctx context.Context) ([]core.ArchiveEntry, error)
		// OpenArchive returns a read-only view of an archived trip.
		OpenArchive(ctx context.Context, archiveID int64) (ArchiveView, error)
		DeleteArchive(ctx context.Context, archiveID int64) error
	}

	// Reader is the read side needed to summarise, settle and report a trip.
	Reader interface {
		GetTrip(ctx context.Context, id int64) (core.Trip, error)
		ListFamilies(ctx context.Context, tripID int64) ([]core.Family, error)
		ListExpenses(ctx context.Context, tripID int64) ([]core.Expense, error)
		ParticipantReader
	}

	// ArchiveView is an archived trip opened for reading. TripID is the id
	// the trip had when it was archived.
	ArchiveView interface {
		Reader
		TripID() int64
		Close() error
	}

	// ReportExporter publishes a trip report to an external destination.
	ReportExporter interface {
		ExportReport(ctx context.Context, r report.Report) (ref string, err error)
	}

	// Store is what a backend must provide to serve the API.
	Store interface {
		TripStore
		FamilyStore
		ExpenseStore
		ParticipantReader
	}
)
