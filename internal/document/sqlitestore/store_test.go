package sqlitestore

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/sheetbridge/sheetbridge/internal/address"
	"github.com/sheetbridge/sheetbridge/internal/document"
)

// testDBPath returns a temporary path for test databases
func testDBPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "book.db")
}

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := OpenWithConfig(path, &Config{PollInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("OpenWithConfig() failed: %v", err)
	}
	return s
}

// TestOpen_Schema verifies the schema tables exist after Open.
func TestOpen_Schema(t *testing.T) {
	s := openTestStore(t, testDBPath(t))
	defer s.Close()

	for _, table := range []string{"sheets", "cells", "sheet_tables", "bindings"} {
		var count int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
		if err := s.conn.QueryRow(query, table).Scan(&count); err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}

	if err := s.InitSchema(); err != nil {
		t.Errorf("second InitSchema() failed: %v", err)
	}
}

// TestStore_SaveLoad verifies every value kind and structure survives storage.
func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, testDBPath(t))
	defer s.Close()

	empty, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(empty.Sheets) != 0 {
		t.Fatalf("new database has sheets: %+v", empty.Sheets)
	}

	in := &document.Snapshot{
		Sheets: []document.SheetSnapshot{
			{
				Name:   "Data",
				Tables: []document.TableSnapshot{{Name: "People", Range: "A1:C2"}},
				Cells: map[string]document.Value{
					"A1": "Name", "B1": "Age", "C1": "Active",
					"A2": "ann", "B2": 30.5, "C2": true,
					"E9": "1",
				},
			},
			{Name: "Empty"},
		},
		Bindings: []document.BindingSnapshot{{ID: "totals", Sheet: "Data", Range: "E1:E2"}},
	}
	if err := s.Save(ctx, in); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	out, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(out.Sheets) != 2 || out.Sheets[0].Name != "Data" || out.Sheets[1].Name != "Empty" {
		t.Fatalf("sheets = %+v", out.Sheets)
	}
	if !reflect.DeepEqual(out.Sheets[0].Cells, in.Sheets[0].Cells) {
		t.Errorf("cells = %v, want %v", out.Sheets[0].Cells, in.Sheets[0].Cells)
	}
	if !reflect.DeepEqual(out.Sheets[0].Tables, in.Sheets[0].Tables) {
		t.Errorf("tables = %v", out.Sheets[0].Tables)
	}
	if !reflect.DeepEqual(out.Bindings, in.Bindings) {
		t.Errorf("bindings = %v", out.Bindings)
	}

	count, err := s.CellCount(ctx)
	if err != nil {
		t.Fatalf("CellCount() failed: %v", err)
	}
	if count != 7 {
		t.Errorf("CellCount() = %d, want 7", count)
	}

	// A second save replaces everything.
	if err := s.Save(ctx, &document.Snapshot{Sheets: []document.SheetSnapshot{{Name: "Only"}}}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if count, _ := s.CellCount(ctx); count != 0 {
		t.Errorf("CellCount() after replace = %d, want 0", count)
	}
}

// TestStore_ExternalEdit verifies commits by another connection reach table handlers.
func TestStore_ExternalEdit(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t)

	book, err := document.Open(ctx, openTestStore(t, path))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer book.Close()

	sheet, err := book.AddSheet(ctx, "Data")
	if err != nil {
		t.Fatalf("AddSheet() failed: %v", err)
	}
	if err := sheet.SetRange(ctx, address.Ref{}, [][]document.Value{{"Name", "Age"}, {"ann", 30}}); err != nil {
		t.Fatalf("SetRange() failed: %v", err)
	}
	table, err := sheet.AddTable(ctx, "People", address.MustParseRange("A1:B2"), true)
	if err != nil {
		t.Fatalf("AddTable() failed: %v", err)
	}

	events := make(chan document.TableChangedEvent, 10)
	table.OnChanged(func(ev document.TableChangedEvent) {
		if ev.Source == document.SourceRemote {
			events <- ev
		}
	})

	other := openTestStore(t, path)
	defer other.Close()
	if _, err := other.RawDB().Exec(
		`UPDATE cells SET value = '31' WHERE sheet = 'Data' AND row_idx = 1 AND col_idx = 1`,
	); err != nil {
		t.Fatalf("UPDATE failed: %v", err)
	}

	select {
	case ev := <-events:
		if ev.ChangeType != document.RangeEdited || ev.Address != "B2" {
			t.Errorf("event = %s %s, want RangeEdited B2", ev.ChangeType, ev.Address)
		}
		if ev.Details == nil || ev.Details.ValueBefore != 30.0 || ev.Details.ValueAfter != 31.0 {
			t.Errorf("details = %+v, want 30 -> 31", ev.Details)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for external edit")
	}
}

// TestStore_CorruptCell verifies unknown cell kinds fail the load.
func TestStore_CorruptCell(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, testDBPath(t))
	defer s.Close()

	if err := s.Save(ctx, &document.Snapshot{Sheets: []document.SheetSnapshot{{Name: "S"}}}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if _, err := s.conn.Exec(`INSERT INTO cells (sheet, row_idx, col_idx, kind, value) VALUES ('S', 0, 0, 'x', '?')`); err != nil {
		t.Fatalf("INSERT failed: %v", err)
	}
	if _, err := s.Load(ctx); err == nil {
		t.Error("Load() succeeded with an unknown cell kind")
	}
}

// TestStore_WatchAfterClose verifies a closed store refuses to watch.
func TestStore_WatchAfterClose(t *testing.T) {
	s := openTestStore(t, testDBPath(t))
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
	if err := s.Watch(context.Background(), func() {}); err != ErrClosed {
		t.Errorf("Watch() error = %v, want ErrClosed", err)
	}
}

func TestEncodeDecodeValue(t *testing.T) {
	tests := []struct {
		in   document.Value
		kind string
	}{
		{"text", "s"},
		{42.0, "n"},
		{-0.125, "n"},
		{false, "b"},
		{"", ""},
	}
	for _, tt := range tests {
		kind, raw, err := encodeValue(tt.in)
		if err != nil {
			t.Fatalf("encodeValue(%v) failed: %v", tt.in, err)
		}
		if kind != tt.kind {
			t.Errorf("encodeValue(%v) kind = %q, want %q", tt.in, kind, tt.kind)
		}
		if kind == "" {
			continue
		}
		got, err := decodeValue(kind, raw)
		if err != nil {
			t.Fatalf("decodeValue(%q, %q) failed: %v", kind, raw, err)
		}
		if got != tt.in {
			t.Errorf("decodeValue(encodeValue(%v)) = %v", tt.in, got)
		}
	}
}
