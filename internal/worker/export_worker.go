package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tripsplit/internal/amqp"
	"tripsplit/internal/core"
	"tripsplit/internal/ledger"
	"tripsplit/internal/report"
)

// Reporter builds trip reports. *services.TripService satisfies it.
type Reporter interface {
	ListTrips(ctx context.Context) ([]core.Trip, error)
	Report(ctx context.Context, tripID int64) (report.Report, error)
}

// ExportWorker recomputes trip reports and pushes them to an exporter.
type ExportWorker struct {
	reporter Reporter
	exporter ledger.ReportExporter
}

func NewExportWorker(reporter Reporter, exporter ledger.ReportExporter) *ExportWorker {
	return &ExportWorker{
		reporter: reporter,
		exporter: exporter,
	}
}

// HandleTripChanged processes a single trip changed message from AMQP.
// A trip that no longer exists is acknowledged without exporting.
func (w *ExportWorker) HandleTripChanged(ctx context.Context, msg *amqp.TripChangedMessage) error {
	slog.InfoContext(ctx, "Processing trip changed message",
		"message_id", msg.MessageID,
		"trip_id", msg.TripID,
		"reason", msg.Reason)

	err := w.ExportTrip(ctx, msg.TripID)
	if errors.Is(err, ledger.ErrNotFound) {
		slog.WarnContext(ctx, "Trip not found, skipping export", "trip_id", msg.TripID)
		return nil
	}
	return err
}

// ExportTrip builds the trip report and exports it.
func (w *ExportWorker) ExportTrip(ctx context.Context, tripID int64) error {
	rep, err := w.reporter.Report(ctx, tripID)
	if err != nil {
		return fmt.Errorf("build report for trip %d: %w", tripID, err)
	}

	ref, err := w.exporter.ExportReport(ctx, rep)
	if err != nil {
		return fmt.Errorf("export report for trip %d: %w", tripID, err)
	}

	slog.InfoContext(ctx, "Exported trip report",
		"trip_id", tripID,
		"ref", ref,
		"transactions", len(rep.Transactions),
		"total", rep.Summary.TotalExpenses.String())
	return nil
}

// ExportAll exports every trip. It keeps going past individual failures and
// returns them joined.
func (w *ExportWorker) ExportAll(ctx context.Context) error {
	trips, err := w.reporter.ListTrips(ctx)
	if err != nil {
		return fmt.Errorf("list trips: %w", err)
	}

	var errs []error
	exported := 0
	for _, t := range trips {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.ExportTrip(ctx, t.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to export trip", "trip_id", t.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		exported++
	}

	slog.InfoContext(ctx, "Export pass completed",
		"total", len(trips),
		"exported", exported,
		"errors", len(errs))
	return errors.Join(errs...)
}
