package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"tripsplit/internal/config"
	applog "tripsplit/internal/log"
)

func discardLogger() *applog.Logger {
	lc := applog.DefaultConfig()
	lc.Output = io.Discard
	return applog.New(lc)
}

func TestShutdownOnDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	called := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		errc <- ShutdownOnDone(ctx, discardLogger(), time.Second, func(sctx context.Context) error {
			if _, ok := sctx.Deadline(); !ok {
				t.Error("shutdown context has no deadline")
			}
			close(called)
			return nil
		})
	}()

	select {
	case <-called:
		t.Fatal("shutdown ran before cancellation")
	case <-time.After(20 * time.Millisecond):
	}

	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("ShutdownOnDone: %v", err)
	}
	<-called
}

func TestShutdownOnDone_ReturnsShutdownError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	want := errors.New("drain failed")
	err := ShutdownOnDone(ctx, discardLogger(), time.Second, func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestSetupLogger(t *testing.T) {
	logger := SetupLogger(&config.Config{LogLevel: "debug", LogFormat: "json"}, "tripsplit")
	if logger.Component() != "tripsplit" {
		t.Fatalf("component = %q", logger.Component())
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug level not enabled")
	}
}
