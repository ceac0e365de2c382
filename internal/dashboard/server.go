// Package dashboard serves a live view of a table's row cache over WebSocket.
//
// The server broadcasts row cache changes to connected clients, answers
// /api/rows with the current rows and /health with its client count.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/sheetbridge/sheetbridge/internal/tablestore"
)

// MessageType names the kind of payload a Message carries.
type MessageType string

const (
	// MessageTypeRowsReloaded: the cache was rebuilt from the workbook.
	MessageTypeRowsReloaded MessageType = "rows_reloaded"

	// MessageTypeRowInserted: a row was added and later rows moved down.
	MessageTypeRowInserted MessageType = "row_inserted"

	// MessageTypeRowUpdated: all values of a row were replaced.
	MessageTypeRowUpdated MessageType = "row_updated"

	// MessageTypeRowDeleted: a row was removed and later rows moved up.
	MessageTypeRowDeleted MessageType = "row_deleted"

	// MessageTypeCellPatched: one cell of a row changed.
	MessageTypeCellPatched MessageType = "cell_patched"

	// MessageTypeStats: change counters, sent after every change and on connect.
	MessageTypeStats MessageType = "stats"
)

// Message is one JSON frame sent to WebSocket clients.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// RowSource is the row cache the dashboard shows.
type RowSource interface {
	TableName() string
	Columns() []tablestore.ColumnDef
	Rows() []tablestore.RowNode
	Subscribe(fn func(tablestore.Change)) func()
}

// Server fans row cache changes out to WebSocket clients.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	source   RowSource

	clients   map[*websocket.Conn]struct{}
	clientsMu sync.RWMutex

	broadcast    chan Message
	welcome      func() (Message, bool)
	writeTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *slog.Logger
}

// Config configures a Server.
type Config struct {
	// Port to listen on (default: 8080, 0 picks a free port)
	Port int

	// Host to bind (default: all interfaces)
	Host string

	// WriteTimeout bounds a single client write; slower clients are dropped (default: 5s)
	WriteTimeout time.Duration

	// Logger for server activity (default: slog.Default())
	Logger *slog.Logger
}

// DefaultConfig listens on :8080 with a 5s write timeout.
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		WriteTimeout: 5 * time.Second,
		Logger:       slog.Default(),
	}
}

// NewServer creates a dashboard server for source.
func NewServer(source RowSource, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:         net.JoinHostPort(config.Host, fmt.Sprint(config.Port)),
		source:       source,
		clients:      make(map[*websocket.Conn]struct{}),
		broadcast:    make(chan Message, 100),
		writeTimeout: config.WriteTimeout,
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger.With("component", "dashboard"),
	}
}

// Handler returns the HTTP routes of the dashboard.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/rows", s.handleRows)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// Start listens on the configured address and serves Handler in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
	}

	s.StartBroadcasting()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("dashboard listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "error", err)
		}
	}()

	return nil
}

// StartBroadcasting runs the broadcast loop without a listener, for servers
// mounted through Handler.
func (s *Server) StartBroadcasting() {
	s.wg.Add(1)
	go s.broadcastLoop()
}

// Stop closes every client and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.logger.Info("stopping dashboard")

	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shut down dashboard: %w", err)
		}
	}

	s.wg.Wait()

	s.logger.Info("dashboard stopped")
	return nil
}

// Broadcast queues msg for every connected client. A full queue drops the message.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
		return
	default:
		s.logger.Warn("broadcast channel full, dropping message", "type", string(msg.Type))
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.broadcast:
			frame, err := encode(msg)
			if err != nil {
				s.logger.Error("failed to encode message", "type", string(msg.Type), "error", err)
				continue
			}
			s.deliver(frame)
		}
	}
}

// deliver writes frame to every client. Clients that miss the write
// deadline are dropped.
func (s *Server) deliver(frame []byte) {
	for _, conn := range s.snapshotClients() {
		ctx, cancel := context.WithTimeout(s.ctx, s.writeTimeout)
		err := conn.Write(ctx, websocket.MessageText, frame)
		cancel()
		if err != nil {
			s.logger.Warn("dropping slow client", "error", err)
			s.removeClient(conn)
		}
	}
}

func (s *Server) snapshotClients() []*websocket.Conn {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	return conns
}

// encode stamps msg if needed and renders it as a text frame.
func encode(msg Message) ([]byte, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return json.Marshal(msg)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	// The welcome must be the first frame and no later broadcast may miss
	// the client, so both happen under the lock.
	s.clientsMu.Lock()
	if err := s.sendWelcome(r.Context(), conn); err != nil {
		s.clientsMu.Unlock()
		s.logger.Warn("failed to send welcome", "error", err)
		_ = conn.Close(websocket.StatusInternalError, "")
		return
	}
	s.clients[conn] = struct{}{}
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Info("client connected", "clients", clientCount)

	go s.readLoop(conn)
}

func (s *Server) sendWelcome(ctx context.Context, conn *websocket.Conn) error {
	if s.welcome == nil {
		return nil
	}
	msg, ok := s.welcome()
	if !ok {
		return nil
	}
	frame, err := encode(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, frame)
}

// readLoop drains client frames until the client goes away.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	_, known := s.clients[conn]
	delete(s.clients, conn)
	remaining := len(s.clients)
	s.clientsMu.Unlock()

	if !known {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("client disconnected", "clients", remaining)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

// handleRows answers with the current cache contents.
func (s *Server) handleRows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshotOf(s.source)); err != nil {
		s.logger.Warn("failed to write rows", "error", err)
	}
}

// rootPage is a minimal live view that logs every frame it receives.
const rootPage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>%[1]s</title></head>
<body>
<h1>%[1]s</h1>
<p><a href="/api/rows">rows</a> | <a href="/health">health</a></p>
<pre id="log"></pre>
<script>
const log = document.getElementById("log");
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = (ev) => { log.textContent = ev.data + "\n" + log.textContent; };
ws.onclose = () => { log.textContent = "disconnected\n" + log.textContent; };
</script>
</body>
</html>`

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, rootPage, html.EscapeString(s.source.TableName()))
}

// Addr is the bound address once started, the configured one before.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount reports how many WebSocket clients are connected.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
