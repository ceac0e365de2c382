package yamlstore

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sheetbridge/sheetbridge/internal/address"
	"github.com/sheetbridge/sheetbridge/internal/document"
)

func newTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := NewWithConfig(path, &Config{DebounceInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	return s
}

// seedBook creates sheet Data with table People (Name, Age) and one row.
func seedBook(t *testing.T, book *document.Book) *document.Table {
	t.Helper()
	ctx := context.Background()
	sheet, err := book.AddSheet(ctx, "Data")
	if err != nil {
		t.Fatalf("AddSheet() failed: %v", err)
	}
	if err := sheet.SetRange(ctx, address.Ref{}, [][]document.Value{{"Name", "Age"}}); err != nil {
		t.Fatalf("SetRange() failed: %v", err)
	}
	table, err := sheet.AddTable(ctx, "People", address.MustParseRange("A1:B1"), true)
	if err != nil {
		t.Fatalf("AddTable() failed: %v", err)
	}
	if _, err := table.AddRow(ctx, -1, []document.Value{"ann", 30}); err != nil {
		t.Fatalf("AddRow() failed: %v", err)
	}
	return table
}

// TestStore_LoadMissing verifies a missing file loads as an empty workbook.
func TestStore_LoadMissing(t *testing.T) {
	s := newTestStore(t, filepath.Join(t.TempDir(), "book.yaml"))
	defer s.Close()

	snap, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(snap.Sheets) != 0 {
		t.Errorf("Load() = %+v, want empty", snap)
	}
}

// TestStore_Persist verifies a workbook survives reopening.
func TestStore_Persist(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "book.yaml")

	book, err := document.Open(ctx, newTestStore(t, path))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	table := seedBook(t, book)
	if _, err := table.AddRow(ctx, -1, []document.Value{"true", true}); err != nil {
		t.Fatalf("AddRow() failed: %v", err)
	}
	if err := book.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	if !strings.Contains(string(data), "version: 1") {
		t.Errorf("file lacks version header:\n%s", data)
	}

	reopened, err := document.Open(ctx, newTestStore(t, path))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer reopened.Close()

	people, err := reopened.Table("People")
	if err != nil {
		t.Fatalf("Table() failed: %v", err)
	}
	rows, err := people.Rows()
	if err != nil {
		t.Fatalf("Rows() failed: %v", err)
	}
	want := []document.Row{
		{Index: 0, Values: []document.Value{"ann", 30.0}},
		{Index: 1, Values: []document.Value{"true", true}},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("Rows() = %v, want %v", rows, want)
	}
}

// TestStore_LoadInvalid verifies unreadable files are reported.
func TestStore_LoadInvalid(t *testing.T) {
	tests := map[string]string{
		"syntax":  "sheets: [",
		"version": "version: 99\nsheets: []\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "book.yaml")
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatalf("WriteFile() failed: %v", err)
			}
			s := newTestStore(t, path)
			defer s.Close()
			if _, err := s.Load(context.Background()); err == nil {
				t.Error("Load() succeeded")
			}
		})
	}
}

// TestStore_ExternalEdit verifies another writer's save reaches table handlers.
func TestStore_ExternalEdit(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "book.yaml")

	book, err := document.Open(ctx, newTestStore(t, path))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer book.Close()
	table := seedBook(t, book)

	events := make(chan document.TableChangedEvent, 10)
	table.OnChanged(func(ev document.TableChangedEvent) {
		if ev.Source == document.SourceRemote {
			events <- ev
		}
	})

	other := newTestStore(t, path)
	defer other.Close()
	snap, err := other.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	snap.Sheets[0].Cells["A2"] = "zoe"
	if err := other.Save(ctx, snap); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	select {
	case ev := <-events:
		if ev.ChangeType != document.RangeEdited || ev.Address != "A2" {
			t.Errorf("event = %s %s, want RangeEdited A2", ev.ChangeType, ev.Address)
		}
		if ev.Details == nil || ev.Details.ValueAfter != "zoe" {
			t.Errorf("details = %+v, want after zoe", ev.Details)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for external edit")
	}
}

// TestStore_WatchAfterClose verifies a closed store refuses to watch.
func TestStore_WatchAfterClose(t *testing.T) {
	s := newTestStore(t, filepath.Join(t.TempDir(), "book.yaml"))
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := s.Watch(context.Background(), func() {}); err != ErrClosed {
		t.Errorf("Watch() error = %v, want ErrClosed", err)
	}
}

// TestStore_WatchStopsWithContext verifies cancelling the context ends reporting.
func TestStore_WatchStopsWithContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.yaml")
	s := newTestStore(t, path)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	calls := make(chan struct{}, 10)
	if err := s.Watch(ctx, func() { calls <- struct{}{} }); err != nil {
		t.Fatalf("Watch() failed: %v", err)
	}

	if err := s.Save(context.Background(), &document.Snapshot{}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for change callback")
	}

	cancel()
	s.wg.Wait()
	for len(calls) > 0 {
		<-calls
	}

	if err := s.Save(context.Background(), &document.Snapshot{}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	select {
	case <-calls:
		t.Error("callback fired after context cancel")
	case <-time.After(200 * time.Millisecond):
	}
}
