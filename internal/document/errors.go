package document

import "errors"

var (
	// ErrNotFound is returned when a sheet, table or binding does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExists is returned when creating an item whose name is taken.
	ErrExists = errors.New("already exists")

	// ErrOutOfRange is returned for row indexes outside a table.
	ErrOutOfRange = errors.New("index out of range")

	// ErrShape is returned when a value grid does not match its target range.
	ErrShape = errors.New("shape mismatch")

	// ErrInvalidValue is returned for cell values of unsupported types.
	ErrInvalidValue = errors.New("invalid cell value")

	// ErrClosed is returned by operations on a closed book.
	ErrClosed = errors.New("book closed")
)
