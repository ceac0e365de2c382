package main

import (
	"context"
	"fmt"

	"github.com/sheetbridge/sheetbridge/internal/config"
	"github.com/sheetbridge/sheetbridge/internal/document"
	"github.com/sheetbridge/sheetbridge/internal/document/sqlitestore"
	"github.com/sheetbridge/sheetbridge/internal/document/yamlstore"
	"github.com/sheetbridge/sheetbridge/internal/tablestore"
)

// session is an open workbook with the configured table loaded.
type session struct {
	book  *document.Book
	store *tablestore.Store
}

// openBackend returns the workbook backend selected by the config.
func openBackend(c *config.Config) (document.Backend, error) {
	switch c.Workbook.Backend {
	case config.BackendYAML:
		return yamlstore.NewWithConfig(c.Workbook.Path, &yamlstore.Config{
			DebounceInterval: c.Workbook.Debounce,
			Logger:           logger,
		})
	case config.BackendSQLite:
		return sqlitestore.OpenWithConfig(c.Workbook.Path, &sqlitestore.Config{
			PollInterval: c.Workbook.PollInterval,
			Logger:       logger,
		})
	case config.BackendMemory:
		return document.NewMemoryBackend(nil), nil
	default:
		return nil, fmt.Errorf("unknown workbook backend %q", c.Workbook.Backend)
	}
}

// tableParams converts the table settings into store params.
func tableParams(c *config.Config) tablestore.Params {
	cols := make([]tablestore.ColumnDef, len(c.Table.Columns))
	for i, col := range c.Table.Columns {
		cols[i] = tablestore.ColumnDef{Label: col.Label, Key: col.Key}
	}
	return tablestore.Params{
		TableName: c.Table.Name,
		SheetName: c.Table.Sheet,
		Columns:   cols,
		Row:       c.Table.Row,
		Column:    c.Table.Column,
		Logger:    logger,
	}
}

// openSession opens the workbook and initializes the table store, creating
// the sheet and table when they are missing.
func openSession(ctx context.Context) (*session, error) {
	backend, err := openBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	book, err := document.Open(ctx, backend, document.WithLogger(logger))
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}

	store, err := tablestore.New(book, tableParams(cfg))
	if err != nil {
		_ = book.Close()
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		_ = book.Close()
		return nil, err
	}
	return &session{book: book, store: store}, nil
}

// Close waits for pending notifications and releases the workbook.
func (s *session) Close() error {
	_ = s.book.Sync(context.Background())
	s.store.Close()
	return s.book.Close()
}
