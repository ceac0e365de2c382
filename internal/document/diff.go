package document

import (
	"github.com/google/uuid"

	"github.com/sheetbridge/sheetbridge/internal/address"
)

// changes holds the notifications produced by moving from one model to the next.
type changes struct {
	tables   []TableChangedEvent
	bindings []BindingDataChangedEvent
}

func (c changes) empty() bool {
	return len(c.tables) == 0 && len(c.bindings) == 0
}

// diff compares two models and describes the difference as notifications.
//
// For every table present in next:
//   - a grown row count yields RowInserted at the first row that differs,
//   - a shrunk row count yields RowDeleted at the first row that differs,
//   - otherwise each edited cell is collected; a single edit yields RangeEdited
//     with details, several edits yield one RangeEdited over their bounding box.
//
// Tables missing from next yield RowDeleted over their former body. Bindings
// whose values differ yield BindingDataChanged.
func diff(prev, next *model, source Source) changes {
	var out changes

	for _, t := range next.tables {
		old := prev.table(t.name)
		if old == nil || !sameName(old.sheet, t.sheet) {
			if t.rowCount() > 0 {
				out.tables = append(out.tables, tableEvent(t, RowInserted, bodyRange(t, 0, t.rowCount()), source, nil))
			}
			continue
		}
		if ev, ok := diffTable(prev, next, old, t, source); ok {
			out.tables = append(out.tables, ev)
		}
	}

	for _, old := range prev.tables {
		if t := next.table(old.name); t == nil && old.rowCount() > 0 {
			out.tables = append(out.tables, tableEvent(old, RowDeleted, bodyRange(old, 0, old.rowCount()), source, nil))
		}
	}

	for _, b := range next.bindings {
		old := prev.binding(b.id)
		if old == nil {
			continue
		}
		before := prev.sheet(old.sheet)
		after := next.sheet(b.sheet)
		if before == nil || after == nil {
			continue
		}
		if old.rng != b.rng || !gridsEqual(before.grid(old.rng), after.grid(b.rng)) {
			out.bindings = append(out.bindings, BindingDataChangedEvent{
				ID:      uuid.NewString(),
				Binding: b.id,
				Source:  source,
			})
		}
	}

	return out
}

func diffTable(prev, next *model, old, t *tableModel, source Source) (TableChangedEvent, bool) {
	oldRows := prev.tableRows(old)
	newRows := next.tableRows(t)

	if delta := len(newRows) - len(oldRows); delta != 0 {
		first := firstDifferentRow(oldRows, newRows)
		if delta > 0 {
			return tableEvent(t, RowInserted, bodyRange(t, first, delta), source, nil), true
		}
		return tableEvent(old, RowDeleted, bodyRange(old, first, -delta), source, nil), true
	}

	before := prev.sheet(old.sheet)
	after := next.sheet(t.sheet)

	if old.rng.Start != t.rng.Start || old.rng.Cols() != t.rng.Cols() {
		// Moved or resized: report the whole table.
		return tableEvent(t, RangeEdited, t.rng.String(), source, nil), true
	}

	var edited []address.Ref
	var details *ChangeDetails
	for r := 0; r < t.rng.Rows(); r++ {
		for c := 0; c < t.rng.Cols(); c++ {
			ref := t.rng.Start.Offset(r, c)
			a, b := before.get(ref), after.get(ref)
			if Equal(a, b) {
				continue
			}
			edited = append(edited, ref)
			details = &ChangeDetails{ValueBefore: a, ValueAfter: b}
		}
	}

	switch len(edited) {
	case 0:
		return TableChangedEvent{}, false
	case 1:
		return tableEvent(t, RangeEdited, edited[0].String(), source, details), true
	default:
		box, _ := address.Bounding(edited)
		return tableEvent(t, RangeEdited, box.String(), source, nil), true
	}
}

func tableEvent(t *tableModel, typ ChangeType, addr string, source Source, details *ChangeDetails) TableChangedEvent {
	return TableChangedEvent{
		ID:         uuid.NewString(),
		Table:      t.name,
		Sheet:      t.sheet,
		ChangeType: typ,
		Address:    addr,
		Source:     source,
		Details:    details,
	}
}

// bodyRange renders count data rows starting at data row index first.
func bodyRange(t *tableModel, first, count int) string {
	start := t.rng.Start.Offset(first+1, 0)
	return address.FromIndexes(start.Row, start.Col, count, t.cols()).String()
}

func firstDifferentRow(a, b [][]Value) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if !rowsEqual(a[i], b[i]) {
			return i
		}
	}
	return n
}

func rowsEqual(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func gridsEqual(a, b [][]Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !rowsEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}
