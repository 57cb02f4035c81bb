package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const tripCSV = `name,head_count,amount_paid
A,2,600
B,3,"120,00"
C,1,0
`

func TestRun_Text(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(nil, strings.NewReader(tripCSV), &out, &errOut); code != 0 {
		t.Fatalf("exit %d: %s", code, errOut.String())
	}
	want := "Per head cost: 120.00\nB → A: 240.00\nC → A: 120.00\n"
	if out.String() != want {
		t.Fatalf("got:\n%s\nwant:\n%s", out.String(), want)
	}
}

func TestRun_JSONFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trip.csv")
	if err := os.WriteFile(path, []byte(tripCSV), 0o600); err != nil {
		t.Fatal(err)
	}

	var out, errOut bytes.Buffer
	if code := run([]string{"-json", path}, nil, &out, &errOut); code != 0 {
		t.Fatalf("exit %d: %s", code, errOut.String())
	}
	var res jsonResult
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.PerHeadCost != "120.00" || res.Settled || len(res.Transactions) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Balances[0] != (jsonBalance{Name: "A", Balance: "360.00"}) {
		t.Fatalf("unexpected first balance %+v", res.Balances[0])
	}
}

func TestRun_Settled(t *testing.T) {
	var out, errOut bytes.Buffer
	in := "A,1,50\nB,1,50\n"
	if code := run(nil, strings.NewReader(in), &out, &errOut); code != 0 {
		t.Fatalf("exit %d: %s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "No settlements needed") {
		t.Fatalf("expected settled message, got %q", out.String())
	}
}

func TestRun_OmitsSubCentTransfers(t *testing.T) {
	var out, errOut bytes.Buffer
	in := "A,3,0.01\nB,7,0\nC,11,0.02\n"
	if code := run(nil, strings.NewReader(in), &out, &errOut); code != 0 {
		t.Fatalf("exit %d: %s", code, errOut.String())
	}
	want := "Per head cost: 0.00\nB → A: 0.01\n"
	if out.String() != want {
		t.Fatalf("got:\n%s\nwant:\n%s", out.String(), want)
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		in   string
		code int
	}{
		{"unknown flag", []string{"-x"}, "", 2},
		{"missing file", []string{"/does/not/exist.csv"}, "", 1},
		{"bad head count", nil, "A,two,10\n", 1},
		{"bad amount", nil, "A,2,ten\n", 1},
		{"wrong column count", nil, "A,2\n", 1},
		{"zero heads", nil, "A,0,10\nB,1,0\n", 1},
		{"negative amount", nil, "A,1,-10\nB,1,0\n", 1},
		{"duplicate name", nil, "A,1,10\nA,1,0\n", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			if code := run(tt.args, strings.NewReader(tt.in), &out, &errOut); code != tt.code {
				t.Fatalf("exit %d, want %d (stderr %q)", code, tt.code, errOut.String())
			}
			if errOut.Len() == 0 {
				t.Fatal("expected a message on stderr")
			}
		})
	}
}
