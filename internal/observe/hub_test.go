package observe

import (
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chunkstream/internal/world"
)

var quietLogger = log.New(io.Discard, "", 0)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", h.Clients(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("decode %s: %v", msg, err)
	}
	return ev
}

func TestHubBroadcasts(t *testing.T) {
	h := NewHub(quietLogger)
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()
	defer h.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	waitClients(t, h, 2)

	h.Publish(ChunkReady(world.ChunkCoord{X: 3, Z: -4}))
	h.Publish(Tick(7, world.ChunkCoord{X: 1, Z: 1}, world.ManagerStats{Active: 9, Loaded: 12}))

	for _, conn := range []*websocket.Conn{a, b} {
		ev := readEvent(t, conn)
		if ev.Type != EventChunkReady || ev.Chunk == nil || *ev.Chunk != [2]int{3, -4} {
			t.Errorf("first event = %+v", ev)
		}
		ev = readEvent(t, conn)
		if ev.Type != EventTick || ev.Tick != 7 || ev.Stats == nil || ev.Stats.Active != 9 {
			t.Errorf("second event = %+v", ev)
		}
	}
}

func TestHubForgetsClosedClients(t *testing.T) {
	h := NewHub(quietLogger)
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()
	defer h.Close()

	conn := dial(t, srv)
	waitClients(t, h, 1)
	_ = conn.Close()
	waitClients(t, h, 0)
}

func TestHubDropsSlowClient(t *testing.T) {
	h := NewHub(quietLogger)
	_, out, ok := h.register()
	if !ok {
		t.Fatal("register failed")
	}
	for _i := 0; _i < clientBuffer+1; _i++ {
		h.Publish(ChunkUnload(world.ChunkCoord{}))
	}
	if h.Clients() != 0 || h.Dropped() != 1 {
		t.Errorf("clients %d dropped %d, want 0 and 1", h.Clients(), h.Dropped())
	}
	n := 0
	for range out {
		n++
	}
	if n != clientBuffer {
		t.Errorf("buffered %d events, want %d", n, clientBuffer)
	}
}

func TestHubClosedRefusesClients(t *testing.T) {
	h := NewHub(quietLogger)
	h.Close()
	if _, _, ok := h.register(); ok {
		t.Error("closed hub accepted a client")
	}
}
