package tablestore

import (
	"github.com/sheetbridge/sheetbridge/internal/address"
	"github.com/sheetbridge/sheetbridge/internal/document"
)

// handleTableChanged keeps the cache in step with table notifications.
// Row insertions and deletions, and edits without details, rebuild the
// cache. A single-cell edit patches the cached row. Failures are logged and
// swallowed.
func (s *Store) handleTableChanged(ev document.TableChangedEvent) {
	if s.ctx.Err() != nil {
		return
	}
	log := s.logger.With("change", string(ev.ChangeType), "address", ev.Address, "source", string(ev.Source))

	switch ev.ChangeType {
	case document.RowInserted, document.RowDeleted:
		log.Debug("rows changed, reloading")
		s.reloadFor(ev)

	case document.RangeEdited:
		if ev.Details == nil {
			log.Debug("range edited, reloading")
			s.reloadFor(ev)
			return
		}
		if document.Equal(ev.Details.ValueBefore, ev.Details.ValueAfter) {
			return
		}
		s.patchFor(ev)

	default:
		log.Debug("ignoring change")
	}
}

func (s *Store) reloadFor(ev document.TableChangedEvent) {
	// loadRows logs its own failures.
	_ = s.loadRows(s.ctx, ev.Source)
}

// patchFor writes a single edited cell into the cached row. The document
// already holds the value, so nothing is written back.
func (s *Store) patchFor(ev document.TableChangedEvent) {
	ref, err := address.Parse(ev.Address)
	if err != nil {
		s.logger.Warn("cannot parse edited address", "address", ev.Address, "error", err)
		return
	}

	s.opMu.Lock()
	s.mu.Lock()
	row, col, ok := s.origin.ToTable(ref)
	if !ok || col >= len(s.columns) || col >= s.width {
		s.mu.Unlock()
		s.opMu.Unlock()
		s.logger.Debug("edit outside cached columns", "address", ev.Address)
		return
	}
	n, cached := s.rows[row]
	if !cached {
		s.mu.Unlock()
		s.opMu.Unlock()
		s.logger.Info("edit in uncached row, reloading", "address", ev.Address, "row", row)
		s.reloadFor(ev)
		return
	}
	key := s.columns[col].Key
	n.Data[key] = ev.Details.ValueAfter
	node := n.clone()
	s.mu.Unlock()

	s.logger.Debug("cell patched", "row", row, "key", key)
	s.notify(Change{Kind: Patched, Index: row, Key: key, Row: node.clone(), Source: ev.Source})
	s.opMu.Unlock()
}
