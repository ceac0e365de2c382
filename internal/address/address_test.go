package address

import (
	"errors"
	"testing"
)

// TestColumnLetters_Known verifies the bijective base-26 boundaries.
func TestColumnLetters_Known(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{1, "A"},
		{2, "B"},
		{26, "Z"},
		{27, "AA"},
		{28, "AB"},
		{52, "AZ"},
		{53, "BA"},
		{702, "ZZ"},
		{703, "AAA"},
		{16384, "XFD"},
		{0, ""},
		{-5, ""},
	}

	for _, tt := range tests {
		if got := ColumnLetters(tt.n); got != tt.want {
			t.Errorf("ColumnLetters(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

// TestColumnLetters_RoundTrip checks number -> letters -> number for a wide range.
func TestColumnLetters_RoundTrip(t *testing.T) {
	for n := 1; n <= 20000; n++ {
		letters := ColumnLetters(n)
		got, err := ColumnNumber(letters)
		if err != nil {
			t.Fatalf("ColumnNumber(%q) failed: %v", letters, err)
		}
		if got != n {
			t.Fatalf("round trip %d -> %q -> %d", n, letters, got)
		}
	}
}

// TestColumnNumber_Invalid verifies rejection of empty and non-letter input.
func TestColumnNumber_Invalid(t *testing.T) {
	for _, in := range []string{"", "A1", "1", "Ä", "A B", "ZZZZZZZZZZ"} {
		if _, err := ColumnNumber(in); !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("ColumnNumber(%q) error = %v, want ErrInvalidAddress", in, err)
		}
	}
}

// TestColumnNumber_CaseInsensitive verifies lowercase letters are accepted.
func TestColumnNumber_CaseInsensitive(t *testing.T) {
	got, err := ColumnNumber("ab")
	if err != nil {
		t.Fatalf("ColumnNumber() failed: %v", err)
	}
	if got != 28 {
		t.Errorf("ColumnNumber(ab) = %d, want 28", got)
	}
}

// TestParse_Valid covers the accepted reference forms.
func TestParse_Valid(t *testing.T) {
	tests := []struct {
		in   string
		want Ref
	}{
		{"A1", Ref{Row: 0, Col: 0}},
		{"B3", Ref{Row: 2, Col: 1}},
		{"b3", Ref{Row: 2, Col: 1}},
		{"$B$3", Ref{Row: 2, Col: 1}},
		{"AA10", Ref{Row: 9, Col: 26}},
		{"Sheet1!C5", Ref{Row: 4, Col: 2}},
		{"'My Sheet'!C5", Ref{Row: 4, Col: 2}},
		{"  D4 ", Ref{Row: 3, Col: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

// TestParse_Malformed verifies that malformed strings are rejected.
func TestParse_Malformed(t *testing.T) {
	malformed := []string{
		"",
		"A",
		"1",
		"11A",
		"A0",
		"A-1",
		"A1B",
		"A1.5",
		"$",
		"!A1",
		"''!A1",
		"A 1",
		"*1",
	}

	for _, in := range malformed {
		t.Run(in, func(t *testing.T) {
			if _, err := Parse(in); !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("Parse(%q) error = %v, want ErrInvalidAddress", in, err)
			}
		})
	}
}

// TestRef_StringRoundTrip verifies that String and Parse are inverses.
func TestRef_StringRoundTrip(t *testing.T) {
	for row := 0; row < 50; row += 7 {
		for col := 0; col < 1000; col += 13 {
			ref := Ref{Row: row, Col: col}
			got, err := Parse(ref.String())
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", ref.String(), err)
			}
			if got != ref {
				t.Fatalf("round trip %+v -> %q -> %+v", ref, ref.String(), got)
			}
		}
	}
}
