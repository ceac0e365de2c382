package document

import (
	"fmt"

	"github.com/sheetbridge/sheetbridge/internal/address"
)

// Snapshot is the serializable form of a workbook. Backends store and load
// snapshots; cells are keyed by their A1 address and empty cells are omitted.
type Snapshot struct {
	Sheets   []SheetSnapshot   `yaml:"sheets" json:"sheets"`
	Bindings []BindingSnapshot `yaml:"bindings,omitempty" json:"bindings,omitempty"`
}

// SheetSnapshot is one worksheet.
type SheetSnapshot struct {
	Name   string           `yaml:"name" json:"name"`
	Tables []TableSnapshot  `yaml:"tables,omitempty" json:"tables,omitempty"`
	Cells  map[string]Value `yaml:"cells,omitempty" json:"cells,omitempty"`
}

// TableSnapshot places a named table over a range whose first row is the header.
type TableSnapshot struct {
	Name  string `yaml:"name" json:"name"`
	Range string `yaml:"range" json:"range"`
}

// BindingSnapshot is a named range binding.
type BindingSnapshot struct {
	ID    string `yaml:"id" json:"id"`
	Sheet string `yaml:"sheet" json:"sheet"`
	Range string `yaml:"range" json:"range"`
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := &Snapshot{
		Sheets:   make([]SheetSnapshot, len(s.Sheets)),
		Bindings: append([]BindingSnapshot(nil), s.Bindings...),
	}
	for i, sh := range s.Sheets {
		cells := make(map[string]Value, len(sh.Cells))
		for k, v := range sh.Cells {
			cells[k] = v
		}
		out.Sheets[i] = SheetSnapshot{
			Name:   sh.Name,
			Tables: append([]TableSnapshot(nil), sh.Tables...),
			Cells:  cells,
		}
	}
	return out
}

// snapshot converts the model into its serializable form.
func (m *model) snapshot() *Snapshot {
	snap := &Snapshot{Sheets: make([]SheetSnapshot, 0, len(m.sheets))}
	for _, s := range m.sheets {
		sheet := SheetSnapshot{Name: s.name, Cells: make(map[string]Value, len(s.cells))}
		for ref, v := range s.cells {
			sheet.Cells[ref.String()] = v
		}
		for _, t := range m.tables {
			if sameName(t.sheet, s.name) {
				sheet.Tables = append(sheet.Tables, TableSnapshot{Name: t.name, Range: t.rng.String()})
			}
		}
		snap.Sheets = append(snap.Sheets, sheet)
	}
	for _, b := range m.bindings {
		snap.Bindings = append(snap.Bindings, BindingSnapshot{ID: b.id, Sheet: b.sheet, Range: b.rng.String()})
	}
	return snap
}

// modelFromSnapshot validates a snapshot and builds a model from it.
func modelFromSnapshot(snap *Snapshot) (*model, error) {
	m := newModel()
	if snap == nil {
		return m, nil
	}

	for _, sh := range snap.Sheets {
		s, err := m.addSheet(sh.Name)
		if err != nil {
			return nil, err
		}
		for key, raw := range sh.Cells {
			ref, err := address.Parse(key)
			if err != nil {
				return nil, fmt.Errorf("sheet %q: %w", sh.Name, err)
			}
			v, err := Normalize(raw)
			if err != nil {
				return nil, fmt.Errorf("sheet %q cell %s: %w", sh.Name, key, err)
			}
			s.set(ref, v)
		}
		for _, ts := range sh.Tables {
			rng, err := address.ParseRange(ts.Range)
			if err != nil {
				return nil, fmt.Errorf("table %q: %w", ts.Name, err)
			}
			if ts.Name == "" {
				return nil, fmt.Errorf("sheet %q has a table without a name", sh.Name)
			}
			if m.table(ts.Name) != nil {
				return nil, fmt.Errorf("table %q: %w", ts.Name, ErrExists)
			}
			if other := m.overlapsTable(sh.Name, rng); other != nil {
				return nil, fmt.Errorf("table %q overlaps table %q", ts.Name, other.name)
			}
			m.tables = append(m.tables, &tableModel{name: ts.Name, sheet: s.name, rng: rng})
		}
	}

	for _, bs := range snap.Bindings {
		if bs.ID == "" {
			return nil, fmt.Errorf("binding without an id")
		}
		if m.binding(bs.ID) != nil {
			return nil, fmt.Errorf("binding %q: %w", bs.ID, ErrExists)
		}
		s := m.sheet(bs.Sheet)
		if s == nil {
			return nil, fmt.Errorf("binding %q sheet %q: %w", bs.ID, bs.Sheet, ErrNotFound)
		}
		rng, err := address.ParseRange(bs.Range)
		if err != nil {
			return nil, fmt.Errorf("binding %q: %w", bs.ID, err)
		}
		m.bindings = append(m.bindings, &bindingModel{id: bs.ID, sheet: s.name, rng: rng})
	}

	return m, nil
}
