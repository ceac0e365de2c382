// Package address converts between zero-based (row, column) coordinates and
// spreadsheet A1 notation.
//
// # Columns
//
// Column letters are a bijective base-26 numeral: there is no zero digit, so
// after "Z" (26) comes "AA" (27), after "AZ" (52) comes "BA" (53), and after
// "ZZ" (702) comes "AAA" (703).
//
//	address.ColumnLetters(28)   // "AB"
//	address.ColumnNumber("AB")  // 28, nil
//
// # Cells and ranges
//
// Ref is a zero-based coordinate. Its A1 form uses a 1-based row:
//
//	ref, err := address.Parse("C5")   // Ref{Row: 4, Col: 2}
//	ref.String()                      // "C5"
//
//	rng, err := address.ParseRange("A1:C4")
//	rng.Rows(), rng.Cols()            // 4, 3
//
// Sheet qualifiers ("Sheet1!C5", "'My Sheet'!C5") and absolute markers
// ("$C$5") are accepted and dropped.
//
// # Table origins
//
// A table is anchored at an Origin: the zero-based position of its header row's
// first cell. Data row 0 is the row directly below the header.
//
//	o := address.Origin{Row: 2, Col: 1}   // header at B3
//	o.ToSheet(0, 0)                       // Ref for B4
//	o.ToTable(address.MustParse("C6"))    // row 2, col 1, true
package address
