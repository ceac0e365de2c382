package document

// ChangeType classifies a table change notification.
type ChangeType string

const (
	// RowInserted indicates one or more rows were added to a table.
	RowInserted ChangeType = "RowInserted"
	// RowDeleted indicates one or more rows were removed from a table.
	RowDeleted ChangeType = "RowDeleted"
	// RangeEdited indicates cell values inside a table changed.
	RangeEdited ChangeType = "RangeEdited"
)

// Source tells whether a change came from this process or from another writer.
type Source string

const (
	SourceLocal  Source = "Local"
	SourceRemote Source = "Remote"
)

// ChangeDetails carries the before and after value of a single edited cell.
type ChangeDetails struct {
	ValueBefore Value
	ValueAfter  Value
}

// TableChangedEvent is delivered to table change handlers.
type TableChangedEvent struct {
	// ID uniquely identifies the notification.
	ID string
	// Table and Sheet name the table that changed.
	Table string
	Sheet string
	// ChangeType is RowInserted, RowDeleted or RangeEdited.
	ChangeType ChangeType
	// Address is the affected area in A1 notation, relative to the sheet.
	Address string
	// Source is SourceLocal for changes made through this book.
	Source Source
	// Details is only set when exactly one cell was edited.
	Details *ChangeDetails
}

// BindingDataChangedEvent is delivered when values inside a binding change.
type BindingDataChangedEvent struct {
	ID      string
	Binding string
	Source  Source
}

// TableChangedHandler receives table notifications.
type TableChangedHandler func(TableChangedEvent)

// BindingDataChangedHandler receives binding notifications.
type BindingDataChangedHandler func(BindingDataChangedEvent)
