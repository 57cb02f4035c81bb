package google

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tripsplit/internal/report"
)

func TestTabName(t *testing.T) {
	if got := TabName("Trip", 7); got != "Trip 7" {
		t.Fatalf("expected 'Trip 7', got %q", got)
	}
}

func TestQuoteTab(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Trip 1", "'Trip 1'"},
		{"Luca's trip", "'Luca''s trip'"},
	}
	for _, tt := range tests {
		if got := quoteTab(tt.in); got != tt.want {
			t.Errorf("quoteTab(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNew_RequiresSpreadsheetID(t *testing.T) {
	if _, err := New(context.Background(), Options{}); err == nil || !strings.Contains(err.Error(), "spreadsheet id") {
		t.Fatalf("expected missing spreadsheet id error, got %v", err)
	}
}

func TestLoadCredentials(t *testing.T) {
	ctx := context.Background()
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	got, err := loadCredentials(ctx, Options{CredentialsJSON: `{"type":"service_account"}`})
	if err != nil || string(got) != `{"type":"service_account"}` {
		t.Fatalf("inline credentials: got %q, err %v", got, err)
	}

	path := filepath.Join(t.TempDir(), "sa.json")
	if err := os.WriteFile(path, []byte(`{"file":true}`), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err = loadCredentials(ctx, Options{CredentialsFile: path})
	if err != nil || string(got) != `{"file":true}` {
		t.Fatalf("file credentials: got %q, err %v", got, err)
	}

	if _, err := loadCredentials(ctx, Options{}); err == nil {
		t.Fatal("expected error without credentials")
	}
	if _, err := loadCredentials(ctx, Options{CredentialsFile: filepath.Join(t.TempDir(), "missing.json")}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestExportReport_Uninitialized(t *testing.T) {
	c := &Client{}
	if _, err := c.ExportReport(context.Background(), report.Report{}); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
}
