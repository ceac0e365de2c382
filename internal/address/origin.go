package address

// Origin is the zero-based position of a table's first header cell. Table data
// coordinates are relative to the row below the header.
type Origin struct {
	Row int
	Col int
}

// Ref returns the header cell the origin points at.
func (o Origin) Ref() Ref {
	return Ref{Row: o.Row, Col: o.Col}
}

// HeaderRange returns the range of a header row with the given column count.
func (o Origin) HeaderRange(columns int) Range {
	return FromIndexes(o.Row, o.Col, 1, columns)
}

// ToTable translates a sheet cell into table data coordinates. ok is false for
// the header row and for cells above or left of the table.
func (o Origin) ToTable(ref Ref) (row, col int, ok bool) {
	row = ref.Row - o.Row - 1
	col = ref.Col - o.Col
	if row < 0 || col < 0 {
		return 0, 0, false
	}
	return row, col, true
}

// ToSheet translates table data coordinates into the sheet cell holding them.
func (o Origin) ToSheet(row, col int) Ref {
	return Ref{Row: o.Row + 1 + row, Col: o.Col + col}
}
