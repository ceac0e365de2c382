package address

import (
	"fmt"
	"strings"
)

// Range is an inclusive rectangle of cells.
type Range struct {
	Start Ref
	End   Ref
}

// FromIndexes builds the range starting at (row, col) spanning rows x cols
// cells. Non-positive sizes are treated as 1.
func FromIndexes(row, col, rows, cols int) Range {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	return Range{
		Start: Ref{Row: row, Col: col},
		End:   Ref{Row: row + rows - 1, Col: col + cols - 1},
	}
}

// ParseRange parses "A1:C4" or a single cell reference. Reversed corners are
// normalized so that Start is always the top-left cell.
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	first, second, found := strings.Cut(s, ":")
	// The sheet qualifier belongs to the first corner only.
	if strings.ContainsRune(second, '!') {
		return Range{}, fmt.Errorf("%w: %q qualifies its second corner with a sheet", ErrInvalidAddress, s)
	}
	start, err := Parse(first)
	if err != nil {
		return Range{}, err
	}
	if !found {
		return Range{Start: start, End: start}, nil
	}
	if strings.Contains(second, ":") {
		return Range{}, fmt.Errorf("%w: %q has more than two corners", ErrInvalidAddress, s)
	}
	end, err := Parse(second)
	if err != nil {
		return Range{}, err
	}

	return normalize(Range{Start: start, End: end}), nil
}

// MustParseRange is like ParseRange but panics on error.
func MustParseRange(s string) Range {
	r, err := ParseRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

func normalize(r Range) Range {
	if r.Start.Row > r.End.Row {
		r.Start.Row, r.End.Row = r.End.Row, r.Start.Row
	}
	if r.Start.Col > r.End.Col {
		r.Start.Col, r.End.Col = r.End.Col, r.Start.Col
	}
	return r
}

// Rows returns the number of rows covered by the range.
func (r Range) Rows() int { return r.End.Row - r.Start.Row + 1 }

// Cols returns the number of columns covered by the range.
func (r Range) Cols() int { return r.End.Col - r.Start.Col + 1 }

// Contains reports whether ref lies inside the range.
func (r Range) Contains(ref Ref) bool {
	return ref.Row >= r.Start.Row && ref.Row <= r.End.Row &&
		ref.Col >= r.Start.Col && ref.Col <= r.End.Col
}

// String renders the range in A1 notation. Single cells render without a colon.
func (r Range) String() string {
	if r.Start == r.End {
		return r.Start.String()
	}
	return r.Start.String() + ":" + r.End.String()
}

// Bounding returns the smallest range containing every ref. ok is false when
// refs is empty.
func Bounding(refs []Ref) (r Range, ok bool) {
	if len(refs) == 0 {
		return Range{}, false
	}
	r = Range{Start: refs[0], End: refs[0]}
	for _, ref := range refs[1:] {
		r.Start.Row = min(r.Start.Row, ref.Row)
		r.Start.Col = min(r.Start.Col, ref.Col)
		r.End.Row = max(r.End.Row, ref.Row)
		r.End.Col = max(r.End.Col, ref.Col)
	}
	return r, true
}
