package document

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sheetbridge/sheetbridge/internal/address"
)

// model is the complete workbook state. Mutations work on a clone so that a
// failed save leaves the previous state untouched.
type model struct {
	sheets   []*sheetModel
	tables   []*tableModel
	bindings []*bindingModel
}

type sheetModel struct {
	name  string
	cells map[address.Ref]Value
}

type tableModel struct {
	name  string
	sheet string
	// rng includes the header row.
	rng address.Range
}

type bindingModel struct {
	id    string
	sheet string
	rng   address.Range
}

func newModel() *model {
	return &model{}
}

func (m *model) clone() *model {
	c := &model{
		sheets:   make([]*sheetModel, len(m.sheets)),
		tables:   make([]*tableModel, len(m.tables)),
		bindings: make([]*bindingModel, len(m.bindings)),
	}
	for i, s := range m.sheets {
		cells := make(map[address.Ref]Value, len(s.cells))
		for ref, v := range s.cells {
			cells[ref] = v
		}
		c.sheets[i] = &sheetModel{name: s.name, cells: cells}
	}
	for i, t := range m.tables {
		tc := *t
		c.tables[i] = &tc
	}
	for i, b := range m.bindings {
		bc := *b
		c.bindings[i] = &bc
	}
	return c
}

func sameName(a, b string) bool {
	return strings.EqualFold(a, b)
}

func (m *model) sheet(name string) *sheetModel {
	for _, s := range m.sheets {
		if sameName(s.name, name) {
			return s
		}
	}
	return nil
}

func (m *model) table(name string) *tableModel {
	for _, t := range m.tables {
		if sameName(t.name, name) {
			return t
		}
	}
	return nil
}

func (m *model) binding(id string) *bindingModel {
	for _, b := range m.bindings {
		if sameName(b.id, id) {
			return b
		}
	}
	return nil
}

func (m *model) addSheet(name string) (*sheetModel, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("sheet name cannot be empty")
	}
	if m.sheet(name) != nil {
		return nil, fmt.Errorf("sheet %q: %w", name, ErrExists)
	}
	s := &sheetModel{name: name, cells: make(map[address.Ref]Value)}
	m.sheets = append(m.sheets, s)
	return s, nil
}

func (s *sheetModel) get(ref address.Ref) Value {
	if v, ok := s.cells[ref]; ok {
		return v
	}
	return ""
}

func (s *sheetModel) set(ref address.Ref, v Value) {
	if isEmpty(v) {
		delete(s.cells, ref)
		return
	}
	s.cells[ref] = v
}

func (s *sheetModel) grid(rng address.Range) [][]Value {
	out := make([][]Value, rng.Rows())
	for r := range out {
		row := make([]Value, rng.Cols())
		for c := range row {
			row[c] = s.get(rng.Start.Offset(r, c))
		}
		out[r] = row
	}
	return out
}

// rowCount is the number of data rows below the header.
func (t *tableModel) rowCount() int {
	return t.rng.Rows() - 1
}

func (t *tableModel) cols() int {
	return t.rng.Cols()
}

func (t *tableModel) bodyRow(index int) address.Range {
	start := t.rng.Start.Offset(index+1, 0)
	return address.Range{Start: start, End: start.Offset(0, t.cols()-1)}
}

// shiftColumns moves every cell in the table's columns at or below fromRow by
// delta rows. The rows vacated by a negative shift must already be empty.
func (s *sheetModel) shiftColumns(t *tableModel, fromRow, delta int) {
	refs := make([]address.Ref, 0)
	for ref := range s.cells {
		if ref.Row >= fromRow && ref.Col >= t.rng.Start.Col && ref.Col <= t.rng.End.Col {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if delta > 0 {
			return refs[i].Row > refs[j].Row
		}
		return refs[i].Row < refs[j].Row
	})
	for _, ref := range refs {
		v := s.cells[ref]
		delete(s.cells, ref)
		s.cells[ref.Offset(delta, 0)] = v
	}
}

// insertRow inserts a data row at index (-1 appends) and returns its index.
func (m *model) insertRow(t *tableModel, index int, values []Value) (int, error) {
	if len(values) != t.cols() {
		return 0, fmt.Errorf("table %q has %d columns, got %d values: %w", t.name, t.cols(), len(values), ErrShape)
	}
	count := t.rowCount()
	if index < 0 {
		index = count
	}
	if index > count {
		return 0, fmt.Errorf("insert at %d in table %q with %d rows: %w", index, t.name, count, ErrOutOfRange)
	}

	s := m.sheet(t.sheet)
	row := t.rng.Start.Row + 1 + index
	s.shiftColumns(t, row, 1)
	t.rng.End.Row++
	for c, v := range values {
		s.set(address.Ref{Row: row, Col: t.rng.Start.Col + c}, v)
	}
	return index, nil
}

func (m *model) deleteRow(t *tableModel, index int) error {
	if index < 0 || index >= t.rowCount() {
		return fmt.Errorf("delete row %d in table %q with %d rows: %w", index, t.name, t.rowCount(), ErrOutOfRange)
	}
	s := m.sheet(t.sheet)
	row := t.rng.Start.Row + 1 + index
	for c := t.rng.Start.Col; c <= t.rng.End.Col; c++ {
		delete(s.cells, address.Ref{Row: row, Col: c})
	}
	s.shiftColumns(t, row+1, -1)
	t.rng.End.Row--
	return nil
}

func (m *model) setRow(t *tableModel, index int, values []Value) error {
	if index < 0 || index >= t.rowCount() {
		return fmt.Errorf("row %d in table %q with %d rows: %w", index, t.name, t.rowCount(), ErrOutOfRange)
	}
	if len(values) != t.cols() {
		return fmt.Errorf("table %q has %d columns, got %d values: %w", t.name, t.cols(), len(values), ErrShape)
	}
	s := m.sheet(t.sheet)
	start := t.bodyRow(index).Start
	for c, v := range values {
		s.set(start.Offset(0, c), v)
	}
	return nil
}

func (m *model) tableRows(t *tableModel) [][]Value {
	if t.rowCount() == 0 {
		return nil
	}
	s := m.sheet(t.sheet)
	body := address.Range{Start: t.rng.Start.Offset(1, 0), End: t.rng.End}
	return s.grid(body)
}

func (m *model) headers(t *tableModel) []string {
	s := m.sheet(t.sheet)
	out := make([]string, t.cols())
	for c := range out {
		out[c] = FormatValue(s.get(t.rng.Start.Offset(0, c)))
	}
	return out
}

// overlapsTable reports whether rng intersects any existing table on sheet.
func (m *model) overlapsTable(sheet string, rng address.Range) *tableModel {
	for _, t := range m.tables {
		if !sameName(t.sheet, sheet) {
			continue
		}
		if rng.Start.Row <= t.rng.End.Row && rng.End.Row >= t.rng.Start.Row &&
			rng.Start.Col <= t.rng.End.Col && rng.End.Col >= t.rng.Start.Col {
			return t
		}
	}
	return nil
}
