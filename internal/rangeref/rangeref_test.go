package rangeref

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/sheetbridge/sheetbridge/internal/address"
	"github.com/sheetbridge/sheetbridge/internal/document"
)

func newBook(t *testing.T) *document.Book {
	t.Helper()
	book := document.New()
	t.Cleanup(func() { _ = book.Close() })
	return book
}

func syncBook(t *testing.T, book *document.Book) {
	t.Helper()
	if err := book.Sync(context.Background()); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
}

func totalsParams() Params {
	return Params{Sheet: "Summary", Binding: "totals", Row: 1, Column: 1, Rows: 2, Columns: 2}
}

func TestParams_Validate(t *testing.T) {
	tests := map[string]func(p *Params){
		"no sheet":     func(p *Params) { p.Sheet = "" },
		"no binding":   func(p *Params) { p.Binding = "  " },
		"negative row": func(p *Params) { p.Row = -1 },
		"zero rows":    func(p *Params) { p.Rows = 0 },
		"zero columns": func(p *Params) { p.Columns = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			p := totalsParams()
			mutate(&p)
			if err := p.Validate(); err == nil {
				t.Error("Validate() accepted invalid params")
			}
		})
	}
	if got := totalsParams().Range().String(); got != "B2:C3" {
		t.Errorf("Range() = %s, want B2:C3", got)
	}
}

// TestNew_LoadsExistingValues verifies the state starts from the sheet.
func TestNew_LoadsExistingValues(t *testing.T) {
	ctx := context.Background()
	book := newBook(t)
	sheet, _ := book.AddSheet(ctx, "Summary")
	if err := sheet.SetRange(ctx, address.MustParse("B2"), [][]document.Value{{"a", 1}, {true, ""}}); err != nil {
		t.Fatalf("SetRange() failed: %v", err)
	}

	r, err := New(ctx, book, totalsParams())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer r.Close()

	want := [][]document.Value{{"a", 1.0}, {true, ""}}
	if got := r.Value(); !reflect.DeepEqual(got, want) {
		t.Errorf("Value() = %v, want %v", got, want)
	}
}

// TestNew_CreatesSheetAndBinding verifies a missing sheet is created and bound.
func TestNew_CreatesSheetAndBinding(t *testing.T) {
	ctx := context.Background()
	book := newBook(t)

	r, err := New(ctx, book, totalsParams())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer r.Close()

	if _, ok := book.LookupSheet("Summary"); !ok {
		t.Error("sheet Summary was not created")
	}
	b, err := book.Binding("totals")
	if err != nil {
		t.Fatalf("Binding() failed: %v", err)
	}
	_, rng, _ := b.Range()
	if rng.String() != "B2:C3" {
		t.Errorf("binding range = %s", rng)
	}
	want := [][]document.Value{{"", ""}, {"", ""}}
	if got := r.Value(); !reflect.DeepEqual(got, want) {
		t.Errorf("Value() = %v, want %v", got, want)
	}
}

// TestNew_ReusesBinding verifies a second ref over the same cells shares the binding.
func TestNew_ReusesBinding(t *testing.T) {
	ctx := context.Background()
	book := newBook(t)

	first, err := New(ctx, book, totalsParams())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer first.Close()
	second, err := New(ctx, book, totalsParams())
	if err != nil {
		t.Fatalf("New() second failed: %v", err)
	}
	defer second.Close()

	other := totalsParams()
	other.Rows = 3
	if _, err := New(ctx, book, other); !errors.Is(err, document.ErrExists) {
		t.Errorf("New() with a different range error = %v, want ErrExists", err)
	}
}

// TestSetValue verifies writes reach the sheet and the state.
func TestSetValue(t *testing.T) {
	ctx := context.Background()
	book := newBook(t)
	r, err := New(ctx, book, totalsParams())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer r.Close()

	if err := r.SetValue(ctx, [][]document.Value{{"x", 2}, {false, 3.5}}); err != nil {
		t.Fatalf("SetValue() failed: %v", err)
	}
	want := [][]document.Value{{"x", 2.0}, {false, 3.5}}
	if got := r.Value(); !reflect.DeepEqual(got, want) {
		t.Errorf("Value() = %v, want %v", got, want)
	}

	sheet, _ := book.Sheet("Summary")
	if v, _ := sheet.Cell(address.MustParse("C3")); v != 3.5 {
		t.Errorf("C3 = %v, want 3.5", v)
	}

	if err := r.SetValue(ctx, [][]document.Value{{"only one row", 1}}); !errors.Is(err, document.ErrShape) {
		t.Errorf("SetValue(1 row) error = %v, want ErrShape", err)
	}
	if err := r.SetValue(ctx, [][]document.Value{{1}, {2}}); !errors.Is(err, document.ErrShape) {
		t.Errorf("SetValue(1 column) error = %v, want ErrShape", err)
	}
	if got := r.Value(); !reflect.DeepEqual(got, want) {
		t.Errorf("Value() after failed writes = %v, want %v", got, want)
	}
}

// TestDataChanged verifies edits through the sheet refresh the state.
func TestDataChanged(t *testing.T) {
	ctx := context.Background()
	book := newBook(t)
	r, err := New(ctx, book, totalsParams())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer r.Close()

	var mu sync.Mutex
	var seen [][][]document.Value
	r.OnChange(func(v [][]document.Value) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, v)
	})

	sheet, _ := book.Sheet("Summary")
	if err := sheet.SetRange(ctx, address.MustParse("B2"), [][]document.Value{{"edited"}}); err != nil {
		t.Fatalf("SetRange() failed: %v", err)
	}
	// Outside the binding.
	if err := sheet.SetRange(ctx, address.MustParse("E9"), [][]document.Value{{"ignored"}}); err != nil {
		t.Fatalf("SetRange() failed: %v", err)
	}
	syncBook(t, book)

	want := [][]document.Value{{"edited", ""}, {"", ""}}
	if got := r.Value(); !reflect.DeepEqual(got, want) {
		t.Errorf("Value() = %v, want %v", got, want)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || !reflect.DeepEqual(seen[0], want) {
		t.Errorf("OnChange saw %v", seen)
	}
}

// TestOnChange_Order verifies watchers run in registration order.
func TestOnChange_Order(t *testing.T) {
	ctx := context.Background()
	book := newBook(t)
	r, err := New(ctx, book, totalsParams())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer r.Close()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 8; i++ {
		r.OnChange(func([][]document.Value) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, i)
		})
	}
	stop := r.OnChange(func([][]document.Value) { t.Error("removed watcher was called") })
	stop()

	if err := r.SetValue(ctx, [][]document.Value{{1, 2}, {3, 4}}); err != nil {
		t.Fatalf("SetValue() failed: %v", err)
	}
	syncBook(t, book)

	mu.Lock()
	defer mu.Unlock()
	want := []int{0, 1, 2, 3, 4, 5, 6, 7}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("watcher order = %v, want %v", order, want)
	}
}

// TestClose_Concurrent verifies Close can be called from several goroutines.
func TestClose_Concurrent(t *testing.T) {
	r, err := New(context.Background(), newBook(t), totalsParams())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Close()
		}()
	}
	wg.Wait()
}

// TestClose_StopsUpdates verifies a closed ref keeps its last state.
func TestClose_StopsUpdates(t *testing.T) {
	ctx := context.Background()
	book := newBook(t)
	r, err := New(ctx, book, totalsParams())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	r.Close()

	sheet, _ := book.Sheet("Summary")
	if err := sheet.SetRange(ctx, address.MustParse("B2"), [][]document.Value{{"late"}}); err != nil {
		t.Fatalf("SetRange() failed: %v", err)
	}
	syncBook(t, book)

	if got := r.Value()[0][0]; got != "" {
		t.Errorf("Value()[0][0] = %v, want empty", got)
	}
	r.Close()
}

// TestCellRef verifies typed access to a single cell.
func TestCellRef(t *testing.T) {
	ctx := context.Background()
	book := newBook(t)

	count, err := NewCell[float64](ctx, book, CellParams{Sheet: "Summary", Binding: "count", Row: 0, Column: 0})
	if err != nil {
		t.Fatalf("NewCell() failed: %v", err)
	}
	defer count.Close()

	if got := count.Get(); got != 0 {
		t.Errorf("Get() on empty cell = %v, want 0", got)
	}
	if err := count.Set(ctx, 12); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if got := count.Get(); got != 12 {
		t.Errorf("Get() = %v, want 12", got)
	}

	if _, err := NewCell[string](ctx, book, CellParams{Sheet: "Summary", Binding: "count", Row: 0, Column: 1}); !errors.Is(err, document.ErrExists) {
		t.Errorf("NewCell() over another cell error = %v, want ErrExists", err)
	}

	label, err := NewCell[string](ctx, book, CellParams{Sheet: "Summary", Binding: "count-text", Row: 0, Column: 0})
	if err != nil {
		t.Fatalf("NewCell() failed: %v", err)
	}
	defer label.Close()
	if got := label.Get(); got != "" {
		t.Errorf("string Get() on a number = %q, want empty", got)
	}
}
