// Package tablestore keeps an in-memory row cache of a workbook table.
//
// A Store owns one table. Init creates the sheet and table when they are
// missing and loads every row. From then on the store listens to the table's
// change notifications: inserted or deleted rows and multi-cell edits rebuild
// the cache from the document, a single-cell edit patches the cached row.
//
// Mutations write to the document first and touch the cache only after the
// write succeeded. Failures are logged and returned.
//
// Example:
//
//	store, err := tablestore.New(book, tablestore.Params{
//	    TableName: "People",
//	    SheetName: "Data",
//	    Columns: []tablestore.ColumnDef{
//	        {Label: "Name", Key: "name"},
//	        {Label: "Age", Key: "age"},
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	if err := store.Init(ctx); err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	store.AddRow(ctx, tablestore.RowData{"name": "ann", "age": 30})
package tablestore
