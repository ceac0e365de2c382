package address

import (
	"errors"
	"testing"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		in   string
		want Range
	}{
		{"A1:C4", Range{Start: Ref{0, 0}, End: Ref{3, 2}}},
		{"C4:A1", Range{Start: Ref{0, 0}, End: Ref{3, 2}}},
		{"A4:C1", Range{Start: Ref{0, 0}, End: Ref{3, 2}}},
		{"B2", Range{Start: Ref{1, 1}, End: Ref{1, 1}}},
		{"Data!$A$1:$B$2", Range{Start: Ref{0, 0}, End: Ref{1, 1}}},
		{"'My Sheet'!B2:C3", Range{Start: Ref{1, 1}, End: Ref{2, 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRange(tt.in)
			if err != nil {
				t.Fatalf("ParseRange(%q) failed: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseRange(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseRange_Malformed(t *testing.T) {
	malformed := []string{
		"", ":", "A1:", ":B2", "A1:B2:C3", "A1-B2",
		"A1:B2!C3", "A1:Sheet2!B2", "Sheet1!A1:Sheet1!B2", "A1:!B2",
	}
	for _, in := range malformed {
		if _, err := ParseRange(in); !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("ParseRange(%q) error = %v, want ErrInvalidAddress", in, err)
		}
	}
}

func TestRange_String(t *testing.T) {
	if got := FromIndexes(0, 0, 1, 3).String(); got != "A1:C1" {
		t.Errorf("header range = %q, want A1:C1", got)
	}
	if got := FromIndexes(4, 1, 1, 1).String(); got != "B5" {
		t.Errorf("single cell range = %q, want B5", got)
	}
	if got := FromIndexes(2, 2, 0, -1).String(); got != "C3" {
		t.Errorf("degenerate range = %q, want C3", got)
	}
}

func TestRange_ContainsAndSize(t *testing.T) {
	rng := FromIndexes(1, 1, 3, 2) // B2:C4

	if rng.Rows() != 3 || rng.Cols() != 2 {
		t.Fatalf("size = %dx%d, want 3x2", rng.Rows(), rng.Cols())
	}
	for _, in := range []string{"B2", "C4", "B3"} {
		if !rng.Contains(MustParse(in)) {
			t.Errorf("%s should be inside %s", in, rng)
		}
	}
	for _, in := range []string{"A2", "D4", "B5", "B1"} {
		if rng.Contains(MustParse(in)) {
			t.Errorf("%s should be outside %s", in, rng)
		}
	}
}

func TestBounding(t *testing.T) {
	if _, ok := Bounding(nil); ok {
		t.Error("Bounding(nil) should report ok=false")
	}

	got, ok := Bounding([]Ref{MustParse("C3"), MustParse("A5"), MustParse("B2")})
	if !ok {
		t.Fatal("Bounding() reported ok=false")
	}
	if got.String() != "A2:C5" {
		t.Errorf("Bounding() = %s, want A2:C5", got)
	}
}

func TestOrigin_Mapping(t *testing.T) {
	o := Origin{Row: 2, Col: 1} // header at B3

	if got := o.HeaderRange(3).String(); got != "B3:D3" {
		t.Errorf("HeaderRange(3) = %s, want B3:D3", got)
	}
	if got := o.ToSheet(0, 0).String(); got != "B4" {
		t.Errorf("ToSheet(0,0) = %s, want B4", got)
	}

	row, col, ok := o.ToTable(MustParse("C6"))
	if !ok || row != 2 || col != 1 {
		t.Errorf("ToTable(C6) = (%d, %d, %v), want (2, 1, true)", row, col, ok)
	}

	for _, in := range []string{"B3", "A4", "Z1"} {
		if _, _, ok := o.ToTable(MustParse(in)); ok {
			t.Errorf("ToTable(%s) should report ok=false", in)
		}
	}
}

func TestOrigin_RoundTrip(t *testing.T) {
	origins := []Origin{{0, 0}, {3, 5}, {10, 0}}
	for _, o := range origins {
		for row := 0; row < 20; row++ {
			for col := 0; col < 10; col++ {
				r, c, ok := o.ToTable(o.ToSheet(row, col))
				if !ok || r != row || c != col {
					t.Fatalf("origin %+v: (%d,%d) -> (%d,%d,%v)", o, row, col, r, c, ok)
				}
			}
		}
	}
}
