package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"tripsplit/internal/core"
	"tripsplit/internal/ledger"
)

// ArchiveTrip copies a trip with its families and expenses into a new
// database file and records it in archived_trips. The trip is then marked
// archived in the main database.
func (r *SQLiteRepository) ArchiveTrip(ctx context.Context, tripID int64) (core.ArchiveEntry, error) {
	if err := r.writable(); err != nil {
		return core.ArchiveEntry{}, err
	}
	trip, err := r.GetTrip(ctx, tripID)
	if err != nil {
		return core.ArchiveEntry{}, err
	}
	if trip.Status == core.TripArchived {
		return core.ArchiveEntry{}, fmt.Errorf("trip %d: %w", tripID, ledger.ErrTripArchived)
	}

	if err := os.MkdirAll(r.archiveDir, 0755); err != nil {
		return core.ArchiveEntry{}, fmt.Errorf("create archive directory: %w", err)
	}
	now := time.Now().UTC().Truncate(time.Second)
	path := filepath.Join(r.archiveDir, archiveFileName(tripID, now))
	if _, err := os.Stat(path); err == nil {
		return core.ArchiveEntry{}, fmt.Errorf("archive %s already exists", path)
	}

	if err := RunMigrations(path); err != nil {
		return core.ArchiveEntry{}, fmt.Errorf("prepare archive: %w", err)
	}
	if err := r.copyTrip(ctx, tripID, path); err != nil {
		os.Remove(path)
		return core.ArchiveEntry{}, err
	}

	entry := core.ArchiveEntry{TripName: trip.Name, Path: path, ArchivedAt: now}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		os.Remove(path)
		return core.ArchiveEntry{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO archived_trips (trip_id, trip_name, archive_path, archived_at) VALUES (?, ?, ?, ?)`,
		tripID, entry.TripName, entry.Path, now.Format(timeLayout))
	if err != nil {
		os.Remove(path)
		return core.ArchiveEntry{}, fmt.Errorf("record archive: %w", err)
	}
	if entry.ID, err = res.LastInsertId(); err != nil {
		os.Remove(path)
		return core.ArchiveEntry{}, fmt.Errorf("archive id: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE trips SET status = 'archived' WHERE id = ?`, tripID); err != nil {
		os.Remove(path)
		return core.ArchiveEntry{}, fmt.Errorf("mark trip archived: %w", err)
	}
	if err := tx.Commit(); err != nil {
		os.Remove(path)
		return core.ArchiveEntry{}, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Trip archived", "trip_id", tripID, "archive_id", entry.ID, "path", path)
	return entry, nil
}

// copyTrip attaches the archive file on a dedicated connection and copies
// the trip's rows into it.
func (r *SQLiteRepository) copyTrip(ctx context.Context, tripID int64, path string) error {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `ATTACH DATABASE ? AS archive`, path); err != nil {
		return fmt.Errorf("attach archive: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.Background(), `DETACH DATABASE archive`); err != nil {
			slog.Warn("Failed to detach archive", "path", path, "error", err)
		}
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		`INSERT INTO archive.trips (id, name, start_date, trip_type, status, created_at)
		 SELECT id, name, start_date, trip_type, 'archived', created_at FROM main.trips WHERE id = ?`,
		`INSERT INTO archive.families (id, trip_id, name, members)
		 SELECT id, trip_id, name, members FROM main.families WHERE trip_id = ?`,
		`INSERT INTO archive.expenses (id, trip_id, payer_id, description, amount_cents, expense_date)
		 SELECT id, trip_id, payer_id, description, amount_cents, expense_date FROM main.expenses WHERE trip_id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, tripID); err != nil {
			return fmt.Errorf("copy trip rows: %w", err)
		}
	}
	return tx.Commit()
}

func archiveFileName(tripID int64, at time.Time) string {
	return fmt.Sprintf("trip_archive_%d_%s.db", tripID, at.Format("20060102_150405"))
}

func (r *SQLiteRepository) ListArchives(ctx context.Context) ([]core.ArchiveEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, trip_name, archive_path, archived_at FROM archived_trips ORDER BY archived_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	defer rows.Close()

	var out []core.ArchiveEntry
	for rows.Next() {
		var (
			e  core.ArchiveEntry
			at string
		)
		if err := rows.Scan(&e.ID, &e.TripName, &e.Path, &at); err != nil {
			return nil, fmt.Errorf("scan archive: %w", err)
		}
		e.ArchivedAt, _ = time.Parse(timeLayout, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) archive(ctx context.Context, archiveID int64) (path string, tripID int64, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT archive_path, trip_id FROM archived_trips WHERE id = ?`, archiveID).Scan(&path, &tripID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, fmt.Errorf("archive %d: %w", archiveID, ledger.ErrNotFound)
	}
	if err != nil {
		return "", 0, fmt.Errorf("get archive: %w", err)
	}
	return path, tripID, nil
}

// archiveView is a read-only repository over one archive file.
type archiveView struct {
	*SQLiteRepository
	tripID int64
}

func (v archiveView) TripID() int64 { return v.tripID }

func (r *SQLiteRepository) OpenArchive(ctx context.Context, archiveID int64) (ledger.ArchiveView, error) {
	path, tripID, err := r.archive(ctx, archiveID)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("archive file %s: %w", path, ledger.ErrNotFound)
	}
	db, err := openDB(path, true)
	if err != nil {
		return nil, err
	}
	return archiveView{
		SQLiteRepository: &SQLiteRepository{db: db, path: path, readOnly: true},
		tripID:           tripID,
	}, nil
}

// DeleteArchive removes the archive file and its record. A file that is
// already gone is not an error.
func (r *SQLiteRepository) DeleteArchive(ctx context.Context, archiveID int64) error {
	if err := r.writable(); err != nil {
		return err
	}
	path, _, err := r.archive(ctx, archiveID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove archive file: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM archived_trips WHERE id = ?`, archiveID); err != nil {
		return fmt.Errorf("delete archive record: %w", err)
	}

	slog.InfoContext(ctx, "Archive deleted", "archive_id", archiveID, "path", path)
	return nil
}
