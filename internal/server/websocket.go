package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/voxmem/voxmem/internal/engine"
)

// TraceFeed broadcasts engine trace events to connected WebSocket clients.
// It implements engine.TraceSink, so it can be fanned into the engine's
// sink alongside the debug ring buffer.
type TraceFeed struct {
	clients    map[feedClient]bool
	broadcast  chan engine.TraceEvent
	register   chan feedClient
	unregister chan feedClient
	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc

	allowedOrigins []string
}

// feedClient allows both real connections and mocks in tests.
type feedClient interface {
	sendChannel() chan []byte
	close()
}

type wsClient struct {
	feed *TraceFeed
	conn *websocket.Conn //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	send chan []byte
}

func (c *wsClient) sendChannel() chan []byte { return c.send }

func (c *wsClient) close() {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}
}

// NewTraceFeed creates a trace feed. port is used to build the allowed
// WebSocket origins (localhost only).
func NewTraceFeed(port int) *TraceFeed {
	ctx, cancel := context.WithCancel(context.Background())
	return &TraceFeed{
		clients:    make(map[feedClient]bool),
		broadcast:  make(chan engine.TraceEvent, 256),
		register:   make(chan feedClient),
		unregister: make(chan feedClient),
		ctx:        ctx,
		cancel:     cancel,
		allowedOrigins: []string{
			fmt.Sprintf("localhost:%d", port),
			fmt.Sprintf("127.0.0.1:%d", port),
		},
	}
}

// Record implements engine.TraceSink. Events are dropped rather than
// blocking the engine when the broadcast channel is full.
func (f *TraceFeed) Record(ev engine.TraceEvent) {
	select {
	case f.broadcast <- ev:
	default:
		log.Println("WARNING: trace feed channel full, dropping event")
	}
}

// Run processes registration and broadcast messages until Stop is called.
func (f *TraceFeed) Run() {
	for {
		select {
		case client := <-f.register:
			f.mu.Lock()
			f.clients[client] = true
			count := len(f.clients)
			f.mu.Unlock()
			log.Printf("Trace feed client connected (total: %d)", count)

		case client := <-f.unregister:
			f.mu.Lock()
			if _, ok := f.clients[client]; ok {
				delete(f.clients, client)
				close(client.sendChannel())
			}
			count := len(f.clients)
			f.mu.Unlock()
			log.Printf("Trace feed client disconnected (total: %d)", count)

		case ev := <-f.broadcast:
			data, err := json.Marshal(ev)
			if err != nil {
				log.Printf("ERROR: failed to marshal trace event: %v", err)
				continue
			}
			f.mu.Lock()
			for client := range f.clients {
				select {
				case client.sendChannel() <- data:
				default:
					// Slow client; disconnect rather than stall the feed.
					close(client.sendChannel())
					delete(f.clients, client)
				}
			}
			f.mu.Unlock()

		case <-f.ctx.Done():
			return
		}
	}
}

// Stop shuts down the feed and closes all client connections.
func (f *TraceFeed) Stop() {
	f.cancel()

	f.mu.Lock()
	for client := range f.clients {
		close(client.sendChannel())
		client.close()
	}
	f.clients = make(map[feedClient]bool)
	f.mu.Unlock()
}

// detach hands the client to the unregister loop without blocking after the
// feed has stopped.
func (f *TraceFeed) detach(c feedClient) {
	select {
	case f.unregister <- c:
	case <-f.ctx.Done():
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (f *TraceFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{ //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		OriginPatterns: f.allowedOrigins,
	})
	if err != nil {
		log.Printf("ERROR: WebSocket upgrade failed: %v", err)
		return
	}

	client := &wsClient{
		feed: f,
		conn: conn,
		send: make(chan []byte, 256),
	}

	f.register <- client

	go client.writePump()
	go client.readPump()
}

// writePump sends buffered events to the connection.
func (c *wsClient) writePump() {
	defer func() {
		c.feed.detach(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}()

	for message := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, message) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		cancel()
		if err != nil {
			log.Printf("ERROR: WebSocket write failed: %v", err)
			return
		}
	}
}

// readPump drains inbound messages to detect disconnects. The feed is
// one-directional; client messages are ignored.
func (c *wsClient) readPump() {
	defer func() {
		c.feed.detach(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}()

	for {
		if _, _, err := c.conn.Read(context.Background()); err != nil { //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
			return
		}
	}
}

var _ engine.TraceSink = (*TraceFeed)(nil)
