package address

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidAddress is returned for strings that are not valid A1 references.
var ErrInvalidAddress = errors.New("invalid address")

// Ref is a zero-based cell coordinate.
type Ref struct {
	Row int
	Col int
}

// String returns the A1 form of the reference, e.g. Ref{Row: 2, Col: 1} -> "B3".
func (r Ref) String() string {
	return ColumnLetters(r.Col+1) + strconv.Itoa(r.Row+1)
}

// Offset returns the reference moved by the given number of rows and columns.
func (r Ref) Offset(rows, cols int) Ref {
	return Ref{Row: r.Row + rows, Col: r.Col + cols}
}

// ColumnLetters converts a 1-based column number to its letters (1 -> "A").
// Non-positive numbers yield the empty string.
func ColumnLetters(n int) string {
	if n <= 0 {
		return ""
	}

	var buf [16]byte
	i := len(buf)
	for n > 0 {
		n--
		i--
		buf[i] = byte('A' + n%26)
		n /= 26
	}
	return string(buf[i:])
}

// ColumnNumber converts column letters to a 1-based column number ("A" -> 1).
// Letters are case-insensitive.
func ColumnNumber(letters string) (int, error) {
	if letters == "" {
		return 0, fmt.Errorf("%w: empty column", ErrInvalidAddress)
	}

	n := 0
	for i := 0; i < len(letters); i++ {
		c := letters[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
			c -= 'a' - 'A'
		default:
			return 0, fmt.Errorf("%w: column %q contains %q", ErrInvalidAddress, letters, letters[i])
		}
		if n > (math.MaxInt32-26)/26 {
			return 0, fmt.Errorf("%w: column %q out of range", ErrInvalidAddress, letters)
		}
		n = n*26 + int(c-'A') + 1
	}
	return n, nil
}

// Parse parses an A1 cell reference. A sheet qualifier and '$' markers are
// accepted and ignored.
func Parse(addr string) (Ref, error) {
	s, err := stripSheet(strings.TrimSpace(addr))
	if err != nil {
		return Ref{}, err
	}

	s = strings.TrimPrefix(s, "$")
	split := 0
	for split < len(s) && isLetter(s[split]) {
		split++
	}
	if split == 0 {
		return Ref{}, fmt.Errorf("%w: %q has no column letters", ErrInvalidAddress, addr)
	}
	letters, digits := s[:split], strings.TrimPrefix(s[split:], "$")
	if digits == "" {
		return Ref{}, fmt.Errorf("%w: %q has no row number", ErrInvalidAddress, addr)
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return Ref{}, fmt.Errorf("%w: %q has a malformed row", ErrInvalidAddress, addr)
		}
	}

	col, err := ColumnNumber(letters)
	if err != nil {
		return Ref{}, err
	}
	row, err := strconv.Atoi(digits)
	if err != nil || row < 1 {
		return Ref{}, fmt.Errorf("%w: %q row must be a positive integer", ErrInvalidAddress, addr)
	}

	return Ref{Row: row - 1, Col: col - 1}, nil
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(addr string) Ref {
	ref, err := Parse(addr)
	if err != nil {
		panic(err)
	}
	return ref
}

// stripSheet removes an optional "Sheet!" or "'Sheet name'!" prefix.
func stripSheet(s string) (string, error) {
	idx := strings.LastIndexByte(s, '!')
	if idx < 0 {
		return s, nil
	}
	sheet := strings.Trim(s[:idx], "'")
	if sheet == "" {
		return "", fmt.Errorf("%w: %q has an empty sheet name", ErrInvalidAddress, s)
	}
	return s[idx+1:], nil
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}
