package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tripsplit/internal/amqp"
	"tripsplit/internal/core"
	"tripsplit/internal/ledger"
	"tripsplit/internal/ledger/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *recordingPublisher) PublishTripChanged(_ context.Context, _ int64, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, reason)
	return p.err
}

func newTestService(t *testing.T, pub Publisher) (*TripService, core.Trip) {
	t.Helper()
	svc := NewTripService(memory.New(), nil, pub)
	trip, err := svc.CreateTrip(context.Background(), core.Trip{
		Name: "Dolomiti", StartDate: core.NewDate(2025, 7, 20), Type: core.FamilyTrip,
	})
	if err != nil {
		t.Fatalf("CreateTrip: %v", err)
	}
	return svc, trip
}

func addFamily(t *testing.T, svc *TripService, tripID int64, name string, members int) core.Family {
	t.Helper()
	f, err := svc.AddFamily(context.Background(), core.Family{TripID: tripID, Name: name, Members: members})
	if err != nil {
		t.Fatalf("AddFamily(%s): %v", name, err)
	}
	return f
}

func addExpense(t *testing.T, svc *TripService, tripID, payerID int64, amount string) {
	t.Helper()
	cents, err := core.ParseDecimalToCents(amount)
	if err != nil {
		t.Fatalf("ParseDecimalToCents(%s): %v", amount, err)
	}
	if _, err := svc.AddExpense(context.Background(), core.Expense{
		TripID: tripID, PayerID: payerID, Description: "spesa",
		Amount: core.Money{Cents: cents}, Date: core.NewDate(2025, 7, 21),
	}); err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
}

func TestTripService_SummaryAndSettle(t *testing.T) {
	ctx := context.Background()
	svc, trip := newTestService(t, nil)

	a := addFamily(t, svc, trip.ID, "A", 2)
	b := addFamily(t, svc, trip.ID, "B", 3)
	addFamily(t, svc, trip.ID, "C", 1)
	addExpense(t, svc, trip.ID, a.ID, "600")
	addExpense(t, svc, trip.ID, b.ID, "120")

	sum, err := svc.Summary(ctx, trip.ID)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.FamilyCount != 3 || sum.TotalMembers != 6 || sum.TotalExpenses.Cents != 72000 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if sum.PerHeadCost.StringFixed(2) != "120.00" {
		t.Fatalf("expected per head 120.00, got %s", sum.PerHeadCost)
	}

	txs, err := svc.Settle(ctx, trip.ID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	// A paid 600 for 2 heads (+360), B 120 for 3 (-240), C 0 for 1 (-120).
	want := []struct {
		payer, receiver, amount string
	}{
		{"B", "A", "240.00"},
		{"C", "A", "120.00"},
	}
	if len(txs) != len(want) {
		t.Fatalf("expected %d transactions, got %+v", len(want), txs)
	}
	for i, w := range want {
		got := txs[i]
		if got.Payer != w.payer || got.Receiver != w.receiver || got.Amount.StringFixed(2) != w.amount {
			t.Errorf("transaction %d = %s→%s %s, want %s→%s %s",
				i, got.Payer, got.Receiver, got.Amount.StringFixed(2), w.payer, w.receiver, w.amount)
		}
	}
}

func TestTripService_SettleScopedToTrip(t *testing.T) {
	ctx := context.Background()
	svc, trip := newTestService(t, nil)
	other, err := svc.CreateTrip(ctx, core.Trip{Name: "Mare", StartDate: core.NewDate(2025, 8, 1), Type: core.IndividualTrip})
	if err != nil {
		t.Fatalf("CreateTrip: %v", err)
	}

	a := addFamily(t, svc, trip.ID, "A", 1)
	addFamily(t, svc, trip.ID, "B", 1)
	x := addFamily(t, svc, other.ID, "X", 1)
	addFamily(t, svc, other.ID, "Y", 1)
	addExpense(t, svc, trip.ID, a.ID, "100")
	addExpense(t, svc, other.ID, x.ID, "5000")

	sum, err := svc.Summary(ctx, trip.ID)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.PerHeadCost.StringFixed(2) != "50.00" {
		t.Fatalf("per head cost leaked across trips: %s", sum.PerHeadCost)
	}
}

func TestTripService_EmptyTripSettles(t *testing.T) {
	svc, trip := newTestService(t, nil)
	txs, err := svc.Settle(context.Background(), trip.ID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("expected no transactions, got %+v", txs)
	}

	rep, err := svc.Report(context.Background(), trip.ID)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if !rep.Settled() {
		t.Fatal("empty trip should be settled")
	}
}

func TestTripService_Errors(t *testing.T) {
	ctx := context.Background()
	svc, trip := newTestService(t, nil)

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"unknown trip settle", func() error { _, err := svc.Settle(ctx, 999); return err }, ledger.ErrNotFound},
		{"unknown trip families", func() error { _, err := svc.ListFamilies(ctx, 999); return err }, ledger.ErrNotFound},
		{"invalid family", func() error {
			_, err := svc.AddFamily(ctx, core.Family{TripID: trip.ID, Name: "Zero", Members: 0})
			return err
		}, core.ErrInvalidMembers},
		{"invalid trip", func() error {
			_, err := svc.CreateTrip(ctx, core.Trip{Name: "", StartDate: core.NewDate(2025, 1, 1), Type: core.FamilyTrip})
			return err
		}, core.ErrEmptyName},
		{"archive unsupported", func() error { _, err := svc.ArchiveTrip(ctx, trip.ID); return err }, ledger.ErrUnsupported},
		{"archives unsupported", func() error { _, err := svc.ListArchives(ctx); return err }, ledger.ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestTripService_PublishesChanges(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc, trip := newTestService(t, pub)

	f := addFamily(t, svc, trip.ID, "A", 2)
	addExpense(t, svc, trip.ID, f.ID, "10")
	if err := svc.ActivateTrip(ctx, trip.ID); err != nil {
		t.Fatalf("ActivateTrip: %v", err)
	}

	want := []string{amqp.ReasonTripCreated, amqp.ReasonFamilyChanged, amqp.ReasonExpenseChanged, amqp.ReasonTripActivated}
	if len(pub.events) != len(want) {
		t.Fatalf("expected events %v, got %v", want, pub.events)
	}
	for i := range want {
		if pub.events[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, pub.events[i], want[i])
		}
	}
}

func TestTripService_PublishFailureDoesNotFailRequest(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("connection refused")}
	svc, trip := newTestService(t, pub)

	if _, err := svc.AddFamily(context.Background(), core.Family{TripID: trip.ID, Name: "A", Members: 1}); err != nil {
		t.Fatalf("AddFamily should succeed when publishing fails: %v", err)
	}
}

type fakeArchiver struct {
	ledger.Archiver
	archived []int64
}

func (f *fakeArchiver) ArchiveTrip(_ context.Context, tripID int64) (core.ArchiveEntry, error) {
	f.archived = append(f.archived, tripID)
	return core.ArchiveEntry{ID: 1, TripName: "Dolomiti"}, nil
}

func TestTripService_ArchiveDelegates(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	trip, err := store.CreateTrip(ctx, core.Trip{Name: "Dolomiti", StartDate: core.NewDate(2025, 8, 1), Type: core.FamilyTrip})
	if err != nil {
		t.Fatalf("CreateTrip: %v", err)
	}
	arch := &fakeArchiver{}
	pub := &recordingPublisher{}
	svc := NewTripService(store, arch, pub)

	entry, err := svc.ArchiveTrip(ctx, trip.ID)
	if err != nil {
		t.Fatalf("ArchiveTrip: %v", err)
	}
	if entry.ID != 1 || len(arch.archived) != 1 || arch.archived[0] != trip.ID {
		t.Fatalf("unexpected archive result %+v, calls %v", entry, arch.archived)
	}
	if len(pub.events) != 1 || pub.events[0] != amqp.ReasonTripArchived {
		t.Fatalf("expected trip archived event, got %v", pub.events)
	}

	if _, err := svc.ArchiveTrip(ctx, 999); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown trip, got %v", err)
	}
}

func TestTripService_ArchiveRejectsArchivedTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	trip, err := store.CreateTrip(ctx, core.Trip{Name: "Old", StartDate: core.NewDate(2024, 1, 1), Type: core.FamilyTrip})
	if err != nil {
		t.Fatalf("CreateTrip: %v", err)
	}
	arch := &fakeArchiver{}
	svc := NewTripService(archivedStore{store}, arch, nil)

	if _, err := svc.ArchiveTrip(ctx, trip.ID); !errors.Is(err, ErrTripArchived) {
		t.Fatalf("expected ErrTripArchived, got %v", err)
	}
	if len(arch.archived) != 0 {
		t.Fatalf("archiver called for an archived trip: %v", arch.archived)
	}
}

// archivedStore reports every trip as archived.
type archivedStore struct {
	*memory.Store
}

func (s archivedStore) GetTrip(ctx context.Context, id int64) (core.Trip, error) {
	t, err := s.Store.GetTrip(ctx, id)
	t.Status = core.TripArchived
	return t, err
}

func TestTripService_RejectsChangesToArchivedTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	trip, err := store.CreateTrip(ctx, core.Trip{Name: "Old", StartDate: core.NewDate(2024, 1, 1), Type: core.FamilyTrip})
	if err != nil {
		t.Fatalf("CreateTrip: %v", err)
	}
	svc := NewTripService(archivedStore{store}, nil, nil)

	_, err = svc.AddFamily(ctx, core.Family{TripID: trip.ID, Name: "A", Members: 1})
	if !errors.Is(err, ErrTripArchived) {
		t.Fatalf("expected ErrTripArchived, got %v", err)
	}
	if err := svc.DeleteExpense(ctx, trip.ID, 1); !errors.Is(err, ErrTripArchived) {
		t.Fatalf("expected ErrTripArchived, got %v", err)
	}
}
