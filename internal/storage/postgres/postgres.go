// Package postgres is a PostgreSQL backend for trips, families and
// expenses. Archiving is only available with the SQLite backend.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tripsplit/internal/core"
	"tripsplit/internal/ledger"
	"tripsplit/internal/settlement"
)

const uniqueViolation = "23505"

type DB struct {
	pool *pgxpool.Pool
}

var _ ledger.Store = (*DB)(nil)

func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

// RunMigrations creates the schema if it does not exist yet.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS trips (
			id         BIGSERIAL PRIMARY KEY,
			name       TEXT NOT NULL,
			start_date DATE NOT NULL,
			trip_type  TEXT NOT NULL CHECK (trip_type IN ('family', 'individual')),
			status     TEXT NOT NULL DEFAULT 'inactive',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS families (
			id      BIGSERIAL PRIMARY KEY,
			trip_id BIGINT NOT NULL REFERENCES trips (id) ON DELETE CASCADE,
			name    TEXT NOT NULL,
			members INTEGER NOT NULL CHECK (members >= 1)
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_families_trip_name ON families (trip_id, lower(name));
		CREATE TABLE IF NOT EXISTS expenses (
			id           BIGSERIAL PRIMARY KEY,
			trip_id      BIGINT NOT NULL REFERENCES trips (id) ON DELETE CASCADE,
			payer_id     BIGINT NOT NULL REFERENCES families (id),
			description  TEXT NOT NULL,
			amount_cents BIGINT NOT NULL CHECK (amount_cents > 0),
			expense_date DATE NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_expenses_trip ON expenses (trip_id);
	`)
	return err
}

func scanTrip(row pgx.Row) (core.Trip, error) {
	var (
		t                core.Trip
		start            time.Time
		tripType, status string
	)
	if err := row.Scan(&t.ID, &t.Name, &start, &tripType, &status, &t.CreatedAt); err != nil {
		return core.Trip{}, err
	}
	t.StartDate = core.Date{Time: start.UTC()}
	t.Type = core.TripType(tripType)
	t.Status = core.TripStatus(status)
	return t, nil
}

const tripColumns = `id, name, start_date, trip_type, status, created_at`

func (db *DB) CreateTrip(ctx context.Context, t core.Trip) (core.Trip, error) {
	if err := t.Validate(); err != nil {
		return core.Trip{}, err
	}
	created, err := scanTrip(db.pool.QueryRow(ctx,
		`INSERT INTO trips (name, start_date, trip_type, status)
		 VALUES ($1, $2, $3, 'inactive')
		 RETURNING `+tripColumns,
		t.Name, t.StartDate.Time, string(t.Type)))
	if err != nil {
		return core.Trip{}, fmt.Errorf("create trip: %w", err)
	}
	slog.InfoContext(ctx, "Trip saved to Postgres", "trip_id", created.ID, "name", created.Name)
	return created, nil
}

func (db *DB) GetTrip(ctx context.Context, id int64) (core.Trip, error) {
	t, err := scanTrip(db.pool.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Trip{}, fmt.Errorf("trip %d: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return core.Trip{}, fmt.Errorf("get trip: %w", err)
	}
	return t, nil
}

func (db *DB) ListTrips(ctx context.Context) ([]core.Trip, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+tripColumns+` FROM trips ORDER BY id`)
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

func (db *DB) ActivateTrip(ctx context.Context, id int64) error {
	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE trips SET status = 'inactive' WHERE status = 'active' AND id <> $1`, id); err != nil {
			return fmt.Errorf("deactivate trips: %w", err)
		}
		ct, err := tx.Exec(ctx, `UPDATE trips SET status = 'active' WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("activate trip: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("trip %d: %w", id, ledger.ErrNotFound)
		}
		return nil
	})
}

func (db *DB) GetActiveTrip(ctx context.Context) (core.Trip, error) {
	t, err := scanTrip(db.pool.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE status = 'active' LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Trip{}, fmt.Errorf("active trip: %w", ledger.ErrNotFound)
	}
	if err != nil {
		return core.Trip{}, fmt.Errorf("get active trip: %w", err)
	}
	return t, nil
}

func (db *DB) AddFamily(ctx context.Context, f core.Family) (core.Family, error) {
	if err := f.Validate(); err != nil {
		return core.Family{}, err
	}
	if _, err := db.GetTrip(ctx, f.TripID); err != nil {
		return core.Family{}, err
	}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO families (trip_id, name, members) VALUES ($1, $2, $3) RETURNING id`,
		f.TripID, f.Name, f.Members).Scan(&f.ID)
	if isUniqueViolation(err) {
		return core.Family{}, fmt.Errorf("%q: %w", f.Name, ledger.ErrDuplicateFamily)
	}
	if err != nil {
		return core.Family{}, fmt.Errorf("add family: %w", err)
	}
	return f, nil
}

func (db *DB) UpdateFamily(ctx context.Context, f core.Family) error {
	if err := f.Validate(); err != nil {
		return err
	}
	ct, err := db.pool.Exec(ctx,
		`UPDATE families SET name = $1, members = $2 WHERE id = $3 AND trip_id = $4`, f.Name, f.Members, f.ID, f.TripID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%q: %w", f.Name, ledger.ErrDuplicateFamily)
	}
	if err != nil {
		return fmt.Errorf("update family: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("family %d: %w", f.ID, ledger.ErrNotFound)
	}
	return nil
}

func (db *DB) DeleteFamily(ctx context.Context, tripID, familyID int64) error {
	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		var paid bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM expenses WHERE payer_id = $1)`, familyID).Scan(&paid); err != nil {
			return fmt.Errorf("check family expenses: %w", err)
		}
		if paid {
			return fmt.Errorf("family %d: %w", familyID, ledger.ErrFamilyHasExpenses)
		}
		ct, err := tx.Exec(ctx, `DELETE FROM families WHERE id = $1 AND trip_id = $2`, familyID, tripID)
		if err != nil {
			return fmt.Errorf("delete family: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("family %d: %w", familyID, ledger.ErrNotFound)
		}
		return nil
	})
}

func (db *DB) ListFamilies(ctx context.Context, tripID int64) ([]core.Family, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, trip_id, name, members FROM families WHERE trip_id = $1 ORDER BY id`, tripID)
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

func (db *DB) AddExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if _, err := db.GetTrip(ctx, e.TripID); err != nil {
		return core.Expense{}, err
	}
	err := db.pool.QueryRow(ctx,
		`SELECT name FROM families WHERE id = $1 AND trip_id = $2`, e.PayerID, e.TripID).Scan(&e.PayerName)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("family %d: %w", e.PayerID, ledger.ErrPayerNotInTrip)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("lookup payer: %w", err)
	}

	err = db.pool.QueryRow(ctx,
		`INSERT INTO expenses (trip_id, payer_id, description, amount_cents, expense_date)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		e.TripID, e.PayerID, e.Description, e.Amount.Cents, e.Date.Time).Scan(&e.ID)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	return e, nil
}

func (db *DB) DeleteExpense(ctx context.Context, tripID, expenseID int64) error {
	ct, err := db.pool.Exec(ctx, `DELETE FROM expenses WHERE id = $1 AND trip_id = $2`, expenseID, tripID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("expense %d: %w", expenseID, ledger.ErrNotFound)
	}
	return nil
}

func (db *DB) ListExpenses(ctx context.Context, tripID int64) ([]core.Expense, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT e.id, e.trip_id, e.payer_id, f.name, e.description, e.amount_cents, e.expense_date
		FROM expenses e
		JOIN families f ON f.id = e.payer_id
		WHERE e.trip_id = $1
		ORDER BY e.expense_date, e.id`, tripID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		var (
			e    core.Expense
			date time.Time
		)
		if err := rows.Scan(&e.ID, &e.TripID, &e.PayerID, &e.PayerName, &e.Description, &e.Amount.Cents, &date); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.Date = core.Date{Time: date.UTC()}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// Participants implements ledger.ParticipantReader inside a repeatable-read
// transaction.
func (db *DB) Participants(ctx context.Context, tripID int64) ([]settlement.Participant, error) {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM trips WHERE id = $1)`, tripID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("get trip: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("trip %d: %w", tripID, ledger.ErrNotFound)
	}

	rows, err := tx.Query(ctx, `
		SELECT f.name, f.members, COALESCE(SUM(e.amount_cents), 0)::BIGINT
		FROM families f
		LEFT JOIN expenses e ON e.payer_id = f.id AND e.trip_id = f.trip_id
		WHERE f.trip_id = $1
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
	return out, tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
