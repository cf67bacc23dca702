package analysis

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/zigator-go/zigator/internal/storage"
)

func TestLessColumnValueOrdersNullThenNumericThenLexicographic(t *testing.T) {
	values := []storage.ColumnValue{
		{Value: "0x0a: NWK Network Update", Valid: true},
		{Value: "", Valid: false},
		{Value: "0x01: MAC Association Request", Valid: true},
		{Value: "abc", Valid: true},
		{Value: "0b010: MAC Acknowledgment", Valid: true},
	}

	n := len(values)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if lessColumnValue(values[j], values[i]) {
				values[i], values[j] = values[j], values[i]
			}
		}
	}

	if values[0].Valid {
		t.Fatalf("expected NULL value first, got %+v", values[0])
	}
	if values[1].Value != "0x01: MAC Association Request" {
		t.Fatalf("expected lowest-numbered value (0x01 = 1) second, got %+v", values[1])
	}
	if values[2].Value != "0b010: MAC Acknowledgment" {
		t.Fatalf("expected 0b010 (= 2) between 0x01 and 0x0a, got %+v", values[2])
	}
	if values[3].Value != "0x0a: NWK Network Update" {
		t.Fatalf("unexpected order: %+v", values)
	}
	if values[4].Value != "abc" {
		t.Fatalf("expected non-numeric value last, got %+v", values[4])
	}
}

func TestLeadingNumericPrefix(t *testing.T) {
	cases := []struct {
		in      string
		wantOK  bool
		wantVal uint64
	}{
		{"0x1f: foo", true, 0x1f},
		{"0b101: bar", true, 0b101},
		{"42 things", true, 42},
		{"0x: empty", false, 0},
		{"no digits", false, 0},
	}
	for _, c := range cases {
		v, ok := leadingNumericPrefix(c.in)
		if ok != c.wantOK {
			t.Fatalf("%q: got ok=%v, want %v", c.in, ok, c.wantOK)
		}
		if ok && v != c.wantVal {
			t.Fatalf("%q: got %d, want %d", c.in, v, c.wantVal)
		}
	}
}

// fakeStore is a minimal storage.Store that answers DistinctColumnValues
// with a fixed, per-column map, exercising Run/writeOneFile without a real
// database.
type fakeStore struct {
	storage.Store
	values map[string][]storage.ColumnValue
}

func (f *fakeStore) DistinctColumnValues(ctx context.Context, col string, conditions []storage.Condition) ([]storage.ColumnValue, error) {
	return f.values[col], nil
}

func TestRunWritesOneTSVFilePerPacketType(t *testing.T) {
	outDir := t.TempDir()
	store := &fakeStore{values: map[string][]storage.ColumnValue{
		"mac_frametype": {{Value: "0b000: MAC Beacon", Valid: true}},
	}}

	if err := Run(context.Background(), store, outDir, 2, zerolog.Nop()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != len(packetTypes) {
		t.Fatalf("got %d output files, want %d", len(entries), len(packetTypes))
	}

	data, err := os.ReadFile(filepath.Join(outDir, "mac_beacon.tsv"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "mac_frametype, 0b000: MAC Beacon\t1\n") {
		t.Fatalf("unexpected mac_beacon.tsv content: %q", string(data))
	}
}

func TestInspectedColumnsExcludesIgnoredColumns(t *testing.T) {
	cols := inspectedColumns()
	for _, col := range cols {
		if ignoredColumns[col] {
			t.Fatalf("expected %s to be excluded from inspectedColumns", col)
		}
	}
}
