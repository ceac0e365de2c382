package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/sheetbridge/sheetbridge/internal/document"
	"github.com/sheetbridge/sheetbridge/internal/tablestore"
)

func newTestStore(t *testing.T) (*document.Book, *tablestore.Store) {
	t.Helper()
	book := document.New()
	t.Cleanup(func() { _ = book.Close() })

	store, err := tablestore.New(book, tablestore.Params{
		TableName: "People",
		SheetName: "Data",
		Columns: []tablestore.ColumnDef{
			{Label: "Name", Key: "name"},
			{Label: "Age", Key: "age"},
		},
	})
	if err != nil {
		t.Fatalf("tablestore.New() failed: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	t.Cleanup(store.Close)
	return book, store
}

// startTestServer mounts the dashboard on an httptest server.
func startTestServer(t *testing.T, store *tablestore.Store) (*Server, *Handler, *httptest.Server) {
	t.Helper()
	server := NewServer(store, &Config{Port: 0})
	handler := NewHandler(server, store, nil)
	server.StartBroadcasting()
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = server.Stop()
	})
	return server, handler, ts
}

func dial(t *testing.T, ctx context.Context, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestServerStartStop(t *testing.T) {
	_, store := newTestStore(t)
	server := NewServer(store, &Config{Port: 0, Host: "127.0.0.1"})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if addr := server.Addr(); addr == "" || strings.HasSuffix(addr, ":0") {
		t.Errorf("Addr() = %q, want a bound port", addr)
	}

	resp, err := http.Get("http://" + server.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()
	var health struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if health.Status != "ok" || health.Clients != 0 {
		t.Errorf("health = %+v", health)
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

// TestWebSocketWelcome verifies a new client first receives the statistics.
func TestWebSocketWelcome(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, store := newTestStore(t)
	if _, err := store.AddRow(ctx, tablestore.RowData{"name": "ann", "age": 30}); err != nil {
		t.Fatalf("AddRow() failed: %v", err)
	}
	server, _, ts := startTestServer(t, store)

	conn := dial(t, ctx, ts)
	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeStats {
		t.Fatalf("Expected welcome message type %s, got %s", MessageTypeStats, msg.Type)
	}
	var stats StatsData
	if err := json.Unmarshal(msg.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal stats: %v", err)
	}
	if stats.Table != "People" || stats.Rows != 1 || stats.Columns != 2 {
		t.Errorf("stats = %+v", stats)
	}

	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}
}

// TestHandlerChanges verifies row cache changes reach clients in order.
func TestHandlerChanges(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	book, store := newTestStore(t)
	_, handler, ts := startTestServer(t, store)
	detach := handler.Attach()
	defer detach()

	conn := dial(t, ctx, ts)
	readMessage(t, ctx, conn)

	if _, err := store.AddRow(ctx, tablestore.RowData{"name": "ann", "age": 30}); err != nil {
		t.Fatalf("AddRow() failed: %v", err)
	}
	if err := book.Sync(ctx); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if _, err := store.UpdateRowValue(ctx, 0, 1, 31); err != nil {
		t.Fatalf("UpdateRowValue() failed: %v", err)
	}

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeRowInserted {
		t.Fatalf("Expected %s, got %s", MessageTypeRowInserted, msg.Type)
	}
	var inserted RowUpdateData
	if err := json.Unmarshal(msg.Data, &inserted); err != nil {
		t.Fatalf("Failed to unmarshal row data: %v", err)
	}
	if inserted.Index != 0 || inserted.Data["name"] != "ann" || inserted.Source != "Local" {
		t.Errorf("inserted = %+v", inserted)
	}

	want := []MessageType{
		MessageTypeStats,
		MessageTypeRowsReloaded, MessageTypeStats,
		MessageTypeCellPatched, MessageTypeStats,
	}
	var last Message
	for _, typ := range want {
		last = readMessage(t, ctx, conn)
		if last.Type != typ {
			t.Fatalf("Expected %s, got %s", typ, last.Type)
		}
	}

	var stats StatsData
	if err := json.Unmarshal(last.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal stats: %v", err)
	}
	if stats.LocalChanges != 3 || stats.Changes["inserted"] != 1 || stats.Changes["patched"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

// TestRowsEndpoint verifies /api/rows returns the cached rows.
func TestRowsEndpoint(t *testing.T) {
	ctx := context.Background()
	_, store := newTestStore(t)
	for _, name := range []string{"ann", "bob"} {
		if _, err := store.AddRow(ctx, tablestore.RowData{"name": name}); err != nil {
			t.Fatalf("AddRow() failed: %v", err)
		}
	}
	_, _, ts := startTestServer(t, store)

	resp, err := http.Get(ts.URL + "/api/rows")
	if err != nil {
		t.Fatalf("GET /api/rows failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var rows RowsData
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		t.Fatalf("Failed to decode rows: %v", err)
	}
	if rows.Table != "People" || len(rows.Columns) != 2 || len(rows.Rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	if rows.Rows[1].Index != 1 || rows.Rows[1].Data["name"] != "bob" {
		t.Errorf("second row = %+v", rows.Rows[1])
	}

	post, err := http.Post(ts.URL+"/api/rows", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/rows failed: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", post.StatusCode)
	}
}

func TestRootAndNotFound(t *testing.T) {
	_, store := newTestStore(t)
	_, _, ts := startTestServer(t, store)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET / failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET / status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "<h1>People</h1>") {
		t.Errorf("GET / should name the table, got %s", body)
	}

	resp, err = http.Get(ts.URL + "/missing")
	if err != nil {
		t.Fatalf("GET /missing failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /missing status = %d, want 404", resp.StatusCode)
	}
}

// TestBroadcastAfterStop verifies Broadcast never blocks once stopped.
func TestBroadcastAfterStop(t *testing.T) {
	_, store := newTestStore(t)
	server := NewServer(store, &Config{Port: 0})
	server.StartBroadcasting()
	if err := server.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			server.Broadcast(Message{Type: MessageTypeStats})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked after Stop")
	}
}
