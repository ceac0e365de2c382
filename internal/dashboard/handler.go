package dashboard

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/sheetbridge/sheetbridge/internal/document"
	"github.com/sheetbridge/sheetbridge/internal/tablestore"
)

// ColumnData describes one table column.
type ColumnData struct {
	Label string `json:"label"`
	Key   string `json:"key"`
}

// RowData is one cached row.
type RowData struct {
	Index int                `json:"index"`
	Data  tablestore.RowData `json:"data"`
}

// RowsData is the full cache, served by /api/rows.
type RowsData struct {
	Table   string       `json:"table"`
	Columns []ColumnData `json:"columns"`
	Rows    []RowData    `json:"rows"`
}

// RowUpdateData describes a single row change.
type RowUpdateData struct {
	Index  int                `json:"index"`
	Key    string             `json:"key,omitempty"`
	Data   tablestore.RowData `json:"data,omitempty"`
	Source string             `json:"source"`
}

// ReloadData describes a cache rebuild.
type ReloadData struct {
	Rows   int    `json:"rows"`
	Source string `json:"source"`
}

// StatsData contains cache statistics
type StatsData struct {
	Table         string         `json:"table"`
	Rows          int            `json:"rows"`
	Columns       int            `json:"columns"`
	Changes       map[string]int `json:"changes"`
	LocalChanges  int            `json:"local_changes"`
	RemoteChanges int            `json:"remote_changes"`
}

func snapshotOf(source RowSource) RowsData {
	cols := source.Columns()
	rows := source.Rows()
	out := RowsData{
		Table:   source.TableName(),
		Columns: make([]ColumnData, len(cols)),
		Rows:    make([]RowData, len(rows)),
	}
	for i, c := range cols {
		out.Columns[i] = ColumnData{Label: c.Label, Key: c.Key}
	}
	for i, r := range rows {
		out.Rows[i] = RowData{Index: r.Index, Data: r.Data}
	}
	return out
}

// Handler turns row cache changes into dashboard messages.
type Handler struct {
	server *Server
	source RowSource
	logger *slog.Logger

	mu    sync.Mutex
	stats StatsData
}

// NewHandler creates a handler for source and makes its statistics the
// server's welcome message. Call it before the server starts.
func NewHandler(server *Server, source RowSource, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		server: server,
		source: source,
		logger: logger.With("component", "dashboard-handler"),
		stats: StatsData{
			Table:   source.TableName(),
			Columns: len(source.Columns()),
			Changes: make(map[string]int),
		},
	}
	server.welcome = func() (Message, bool) {
		return h.statsMessage()
	}
	return h
}

// Attach subscribes the handler to the source and returns a function that
// detaches it.
func (h *Handler) Attach() func() {
	return h.source.Subscribe(h.OnChange)
}

// OnChange broadcasts c followed by updated statistics.
func (h *Handler) OnChange(c tablestore.Change) {
	h.mu.Lock()
	h.stats.Changes[c.Kind.String()]++
	if c.Source == document.SourceRemote {
		h.stats.RemoteChanges++
	} else {
		h.stats.LocalChanges++
	}
	h.mu.Unlock()

	var (
		typ  MessageType
		data any
	)
	switch c.Kind {
	case tablestore.Reloaded:
		typ = MessageTypeRowsReloaded
		data = ReloadData{Rows: len(h.source.Rows()), Source: string(c.Source)}
	case tablestore.Inserted:
		typ = MessageTypeRowInserted
		data = RowUpdateData{Index: c.Index, Data: c.Row.Data, Source: string(c.Source)}
	case tablestore.Updated:
		typ = MessageTypeRowUpdated
		data = RowUpdateData{Index: c.Index, Data: c.Row.Data, Source: string(c.Source)}
	case tablestore.Deleted:
		typ = MessageTypeRowDeleted
		data = RowUpdateData{Index: c.Index, Source: string(c.Source)}
	case tablestore.Patched:
		typ = MessageTypeCellPatched
		data = RowUpdateData{Index: c.Index, Key: c.Key, Data: c.Row.Data, Source: string(c.Source)}
	default:
		h.logger.Warn("unknown change kind", "kind", int(c.Kind))
		return
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to marshal change", "error", err)
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: time.Now(), Data: dataJSON})

	if msg, ok := h.statsMessage(); ok {
		h.server.Broadcast(msg)
	}
}

func (h *Handler) statsMessage() (Message, bool) {
	stats := h.Stats()
	dataJSON, err := json.Marshal(stats)
	if err != nil {
		h.logger.Error("failed to marshal stats", "error", err)
		return Message{}, false
	}
	return Message{Type: MessageTypeStats, Timestamp: time.Now(), Data: dataJSON}, true
}

// Stats returns the current statistics.
func (h *Handler) Stats() StatsData {
	rows := len(h.source.Rows())

	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.stats
	out.Rows = rows
	out.Changes = make(map[string]int, len(h.stats.Changes))
	for k, v := range h.stats.Changes {
		out.Changes[k] = v
	}
	return out
}
