// Package observe streams chunk lifecycle events to websocket clients.
package observe

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"chunkstream/internal/world"
)

// Event types.
const (
	EventChunkReady  = "chunk_ready"
	EventChunkUnload = "chunk_unload"
	EventTick        = "tick"
)

// Event is one JSON message on the feed.
type Event struct {
	Type   string              `json:"type"`
	Tick   uint64              `json:"tick,omitempty"`
	Chunk  *[2]int             `json:"chunk,omitempty"` // chunk x, z
	Viewer *[2]int             `json:"viewer,omitempty"`
	Stats  *world.ManagerStats `json:"stats,omitempty"`
}

// ChunkReady builds the event sent when a chunk becomes active.
func ChunkReady(c world.ChunkCoord) Event {
	return Event{Type: EventChunkReady, Chunk: &[2]int{c.X, c.Z}}
}

// ChunkUnload builds the event sent when a chunk leaves the active set.
func ChunkUnload(c world.ChunkCoord) Event {
	return Event{Type: EventChunkUnload, Chunk: &[2]int{c.X, c.Z}}
}

// Tick builds the per-tick summary event.
func Tick(tick uint64, viewer world.ChunkCoord, st world.ManagerStats) Event {
	return Event{Type: EventTick, Tick: tick, Viewer: &[2]int{viewer.X, viewer.Z}, Stats: &st}
}

const clientBuffer = 256

// Hub fans events out to every connected client. A client whose buffer
// fills up is disconnected instead of stalling the publisher.
type Hub struct {
	log      *log.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[uint64]chan []byte
	closed  bool

	nextID  atomic.Uint64
	dropped atomic.Uint64
}

// NewHub creates an empty hub. A nil logger means log.Default().
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients: make(map[uint64]chan []byte),
	}
}

// Publish encodes ev once and queues it for every client without blocking.
func (h *Hub) Publish(ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		h.log.Printf("observe: encode %s: %v", ev.Type, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, out := range h.clients {
		select {
		case out <- b:
		default:
			close(out)
			delete(h.clients, id)
			h.dropped.Add(1)
			h.log.Printf("observe: dropping slow client %d", id)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns how many clients were disconnected for falling behind.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, out := range h.clients {
		close(out)
		delete(h.clients, id)
	}
}

func (h *Hub) register() (uint64, chan []byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, nil, false
	}
	id := h.nextID.Add(1)
	out := make(chan []byte, clientBuffer)
	h.clients[id] = out
	return id, out, true
}

func (h *Hub) unregister(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if out, ok := h.clients[id]; ok {
		close(out)
		delete(h.clients, id)
	}
}

// Handler upgrades the request and streams events until either side goes away.
// Messages sent by the client are read and discarded.
func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id, out, ok := h.register()
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
			return
		}
		defer h.unregister(id)

		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for b := range out {
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					_ = conn.Close()
					return
				}
			}
			// Dropped or hub closed.
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
			_ = conn.Close()
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		h.unregister(id)

		select {
		case <-writerDone:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// ListenAndServe serves the feed at /events on addr until ctx ends.
func (h *Hub) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/events", h.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	h.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
