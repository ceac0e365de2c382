package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Watch implements document.Backend.
//
// It pins one connection and polls PRAGMA data_version on it. The value
// changes whenever any other connection commits, which includes this
// store's own saves; callers are expected to ignore reloads that change
// nothing.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	conn, err := s.conn.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to pin watch connection: %w", err)
	}
	last, err := dataVersion(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return err
	}

	s.wg.Add(1)
	go s.pollDataVersion(ctx, conn, last, onChange)
	return nil
}

// pollDataVersion calls onChange whenever the data version moves. Query
// errors are logged and polling continues.
func (s *Store) pollDataVersion(ctx context.Context, conn *sql.Conn, last int64, onChange func()) {
	defer s.wg.Done()
	defer conn.Close()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return

		case <-ticker.C:
			version, err := dataVersion(ctx, conn)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("failed to read data version", "error", err)
				continue
			}
			if version == last {
				continue
			}
			last = version
			s.logger.Debug("database changed", "data_version", version)
			onChange()
		}
	}
}

func dataVersion(ctx context.Context, conn *sql.Conn) (int64, error) {
	var v int64
	if err := conn.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to query data_version: %w", err)
	}
	return v, nil
}
