package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tripsplit/internal/core"
	"tripsplit/internal/ledger"
	"tripsplit/internal/settlement"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339

type SQLiteRepository struct {
	db         *sql.DB
	path       string
	archiveDir string
	readOnly   bool
}

var (
	_ ledger.Store    = (*SQLiteRepository)(nil)
	_ ledger.Archiver = (*SQLiteRepository)(nil)
)

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// migrates it. Archives are written to archiveDir, or next to the database
// when archiveDir is empty.
func NewSQLiteRepository(dbPath, archiveDir string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	if archiveDir == "" {
		archiveDir = filepath.Dir(dbPath)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := openDB(dbPath, false)
	if err != nil {
		return nil, err
	}

	return &SQLiteRepository{db: db, path: dbPath, archiveDir: archiveDir}, nil
}

func openDB(path string, readOnly bool) (*sql.DB, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if readOnly {
		dsn += "&mode=ro"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) writable() error {
	if r.readOnly {
		return fmt.Errorf("archived trip is read-only: %w", ledger.ErrUnsupported)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrip(row rowScanner) (core.Trip, error) {
	var (
		t                    core.Trip
		startDate, createdAt string
		tripType, status     string
	)
	if err := row.Scan(&t.ID, &t.Name, &startDate, &tripType, &status, &createdAt); err != nil {
		return core.Trip{}, err
	}
	d, err := core.ParseDate(startDate)
	if err != nil {
		return core.Trip{}, fmt.Errorf("parse start date %q: %w", startDate, err)
	}
	t.StartDate = d
	t.Type = core.TripType(tripType)
	t.Status = core.TripStatus(status)
	t.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return t, nil
}

const tripColumns = `id, name, start_date, trip_type, status, created_at`

func (r *SQLiteRepository) CreateTrip(ctx context.Context, t core.Trip) (core.Trip, error) {
	if err := r.writable(); err != nil {
		return core.Trip{}, err
	}
	if err := t.Validate(); err != nil {
		return core.Trip{}, err
	}
	t.Status = core.TripInactive
	t.CreatedAt = time.Now().UTC().Truncate(time.Second)

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO trips (name, start_date, trip_type, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.Name, t.StartDate.String(), string(t.Type), string(t.Status), t.CreatedAt.Format(timeLayout))
	if err != nil {
		return core.Trip{}, fmt.Errorf("create trip: %w", err)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return core.Trip{}, fmt.Errorf("trip id: %w", err)
	}

	slog.InfoContext(ctx, "Trip saved to SQLite", "trip_id", t.ID, "name", t.Name, "type", t.Type)
	return t, nil
}

func (r *SQLiteRepository) GetTrip(ctx context.Context, id int64) (core.Trip, error) {
	t, err := scanTrip(r.db.QueryRowContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Trip{}, fmt.Errorf("trip %d: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return core.Trip{}, fmt.Errorf("get trip: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) ListTrips(ctx context.Context) ([]core.Trip, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+tripColumns+` FROM trips ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	defer rows.Close()

	var trips []core.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

func (r *SQLiteRepository) ActivateTrip(ctx context.Context, id int64) error {
	if err := r.writable(); err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE trips SET status = 'inactive' WHERE status = 'active' AND id <> ?`, id); err != nil {
		return fmt.Errorf("deactivate trips: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE trips SET status = 'active' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("activate trip: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("trip %d: %w", id, ledger.ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Trip activated", "trip_id", id)
	return nil
}

func (r *SQLiteRepository) GetActiveTrip(ctx context.Context) (core.Trip, error) {
	t, err := scanTrip(r.db.QueryRowContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE status = 'active' LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Trip{}, fmt.Errorf("active trip: %w", ledger.ErrNotFound)
	}
	if err != nil {
		return core.Trip{}, fmt.Errorf("get active trip: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) AddFamily(ctx context.Context, f core.Family) (core.Family, error) {
	if err := r.writable(); err != nil {
		return core.Family{}, err
	}
	if err := f.Validate(); err != nil {
		return core.Family{}, err
	}
	if _, err := r.GetTrip(ctx, f.TripID); err != nil {
		return core.Family{}, err
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO families (trip_id, name, members) VALUES (?, ?, ?)`, f.TripID, f.Name, f.Members)
	if isUniqueViolation(err) {
		return core.Family{}, fmt.Errorf("%q: %w", f.Name, ledger.ErrDuplicateFamily)
	}
	if err != nil {
		return core.Family{}, fmt.Errorf("add family: %w", err)
	}
	if f.ID, err = res.LastInsertId(); err != nil {
		return core.Family{}, fmt.Errorf("family id: %w", err)
	}

	slog.InfoContext(ctx, "Family saved to SQLite", "trip_id", f.TripID, "family_id", f.ID, "members", f.Members)
	return f, nil
}

func (r *SQLiteRepository) UpdateFamily(ctx context.Context, f core.Family) error {
	if err := r.writable(); err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE families SET name = ?, members = ? WHERE id = ? AND trip_id = ?`, f.Name, f.Members, f.ID, f.TripID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%q: %w", f.Name, ledger.ErrDuplicateFamily)
	}
	if err != nil {
		return fmt.Errorf("update family: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("family %d: %w", f.ID, ledger.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) DeleteFamily(ctx context.Context, tripID, familyID int64) error {
	if err := r.writable(); err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var paid int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM expenses WHERE payer_id = ?`, familyID).Scan(&paid); err != nil {
		return fmt.Errorf("count family expenses: %w", err)
	}
	if paid > 0 {
		return fmt.Errorf("family %d: %w", familyID, ledger.ErrFamilyHasExpenses)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM families WHERE id = ? AND trip_id = ?`, familyID, tripID)
	if err != nil {
		return fmt.Errorf("delete family: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("family %d: %w", familyID, ledger.ErrNotFound)
	}
	return tx.Commit()
}

func (r *SQLiteRepository) ListFamilies(ctx context.Context, tripID int64) ([]core.Family, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, trip_id, name, members FROM families WHERE trip_id = ? ORDER BY id`, tripID)
	if err != nil {
		return nil, fmt.Errorf("list families: %w", err)
	}
	defer rows.Close()

	var families []core.Family
	for rows.Next() {
		var f core.Family
		if err := rows.Scan(&f.ID, &f.TripID, &f.Name, &f.Members); err != nil {
			return nil, fmt.Errorf("scan family: %w", err)
		}
		families = append(families, f)
	}
	return families, rows.Err()
}

func (r *SQLiteRepository) AddExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := r.writable(); err != nil {
		return core.Expense{}, err
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if _, err := r.GetTrip(ctx, e.TripID); err != nil {
		return core.Expense{}, err
	}

	err := r.db.QueryRowContext(ctx,
		`SELECT name FROM families WHERE id = ? AND trip_id = ?`, e.PayerID, e.TripID).Scan(&e.PayerName)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("family %d: %w", e.PayerID, ledger.ErrPayerNotInTrip)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("lookup payer: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (trip_id, payer_id, description, amount_cents, expense_date) VALUES (?, ?, ?, ?, ?)`,
		e.TripID, e.PayerID, e.Description, e.Amount.Cents, e.Date.String())
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return core.Expense{}, fmt.Errorf("expense id: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"expense_id", e.ID,
		"trip_id", e.TripID,
		"payer", e.PayerName,
		"amount_cents", e.Amount.Cents)
	return e, nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, tripID, expenseID int64) error {
	if err := r.writable(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ? AND trip_id = ?`, expenseID, tripID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("expense %d: %w", expenseID, ledger.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, tripID int64) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.trip_id, e.payer_id, f.name, e.description, e.amount_cents, e.expense_date
		FROM expenses e
		JOIN families f ON f.id = e.payer_id
		WHERE e.trip_id = ?
		ORDER BY e.expense_date, e.id`, tripID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		var (
			e    core.Expense
			date string
		)
		if err := rows.Scan(&e.ID, &e.TripID, &e.PayerID, &e.PayerName, &e.Description, &e.Amount.Cents, &date); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		if e.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("parse expense date %q: %w", date, err)
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// Participants implements ledger.ParticipantReader. Trip lookup and
// aggregation run in one transaction so they see the same snapshot.
func (r *SQLiteRepository) Participants(ctx context.Context, tripID int64) ([]settlement.Participant, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM trips WHERE id = ?`, tripID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trip %d: %w", tripID, ledger.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get trip: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT f.name, f.members, COALESCE(SUM(e.amount_cents), 0)
		FROM families f
		LEFT JOIN expenses e ON e.payer_id = f.id AND e.trip_id = f.trip_id
		WHERE f.trip_id = ?
		GROUP BY f.id, f.name, f.members
		ORDER BY f.id`, tripID)
	if err != nil {
		return nil, fmt.Errorf("participant totals: %w", err)
	}
	defer rows.Close()

	var out []settlement.Participant
	for rows.Next() {
		var (
			p     settlement.Participant
			cents int64
		)
		if err := rows.Scan(&p.Name, &p.HeadCount, &cents); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		p.AmountPaid = core.Money{Cents: cents}.Decimal()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, tx.Commit()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
