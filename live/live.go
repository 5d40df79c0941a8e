// Package live streams optimization progress to WebSocket clients, so a run
// on a remote box can be watched from a browser or a small dashboard.
package live

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeTimeout = 5 * time.Second

	// sendBuffer bounds how far a client may fall behind before it is
	// dropped. Snapshots supersede each other, so a small buffer is plenty.
	sendBuffer = 16
)

// Broadcaster fans progress snapshots out to every connected client. Each
// connection has a single writer goroutine draining a send channel, so writes
// are never concurrent on one conn. Slow or dead clients are dropped rather
// than stalling the search.
type Broadcaster struct {
	log      *zap.SugaredLogger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
	last    []byte
}

// NewBroadcaster creates a Broadcaster.
func NewBroadcaster(log *zap.SugaredLogger) *Broadcaster {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Broadcaster{
		log: log,
		upgrader: websocket.Upgrader{
			// Progress data is not sensitive; allow dashboards from anywhere.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

// ServeHTTP upgrades the connection and registers the client. New clients
// receive the latest snapshot first; it is queued on the send channel before
// the client becomes visible to Publish, so the writer goroutine stays the
// connection's only writer.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warnw("websocket upgrade failed", "error", err)
		return
	}

	send := make(chan []byte, sendBuffer)
	b.mu.Lock()
	if b.last != nil {
		send <- b.last
	}
	b.clients[conn] = send
	b.mu.Unlock()
	b.log.Infow("live client connected", "remote", conn.RemoteAddr().String())

	go b.writeLoop(conn, send)

	// Drain reads so pings and close frames are processed; drop the client
	// when the connection dies.
	go func() {
		defer b.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Publish marshals the snapshot and queues it for all connected clients.
// Clients whose send buffer is full are dropped.
func (b *Broadcaster) Publish(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		b.log.Warnw("failed to marshal progress update", "error", err)
		return
	}

	var slow []*websocket.Conn
	b.mu.Lock()
	b.last = data
	for conn, send := range b.clients {
		select {
		case send <- data:
		default:
			slow = append(slow, conn)
		}
	}
	b.mu.Unlock()

	for _, c := range slow {
		b.log.Infow("dropping slow live client", "remote", c.RemoteAddr().String())
		b.drop(c)
	}
}

// Close disconnects all clients.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(b.clients))
	for c := range b.clients {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		b.drop(c)
	}
}

// writeLoop is the sole writer for one connection. It exits when the send
// channel is closed by drop or when a write fails.
func (b *Broadcaster) writeLoop(conn *websocket.Conn, send <-chan []byte) {
	defer b.drop(conn)
	for data := range send {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// drop unregisters a connection and closes it. Safe to call more than once;
// the send channel is closed exactly once, under the registration it guards.
func (b *Broadcaster) drop(conn *websocket.Conn) {
	b.mu.Lock()
	send, ok := b.clients[conn]
	delete(b.clients, conn)
	b.mu.Unlock()
	if ok {
		close(send)
		_ = conn.Close()
	}
}
