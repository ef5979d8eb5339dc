package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"attendancehub/pkg/interfaces"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	frames []string
	conns  []interfaces.Connection
	got    chan struct{}
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{got: make(chan struct{}, 100)}
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, conn interfaces.Connection, data []byte) {
	d.mu.Lock()
	d.frames = append(d.frames, string(data))
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	d.got <- struct{}{}
}

func startHandler(t *testing.T) (*Registry, *recordingDispatcher, string) {
	t.Helper()
	registry := NewRegistry()
	dispatcher := newRecordingDispatcher()
	server := httptest.NewServer(NewHandler(registry, dispatcher))
	t.Cleanup(server.Close)
	return registry, dispatcher, "ws" + strings.TrimPrefix(server.URL, "http")
}

func waitForConnections(t *testing.T, registry *Registry, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if registry.GetStats()["total_connections"] == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d registered connections, got %d", want, registry.GetStats()["total_connections"])
}

func TestHandler_RegistersWithoutQueryParameters(t *testing.T) {
	registry, _, url := startHandler(t)

	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()

	waitForConnections(t, registry, 1)
	if registry.GetStats()["unidentified"] != 1 {
		t.Error("a new connection should be registered unidentified")
	}
}

func TestHandler_ForwardsTextFrames(t *testing.T) {
	registry, dispatcher, url := startHandler(t)

	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()

	frame := `{"event":"identify","payload":{"clientType":"lt-1","source":"hardware"}}`
	if err := client.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	_ = client.WriteMessage(websocket.BinaryMessage, []byte{0x01})
	_ = client.WriteMessage(websocket.TextMessage, []byte("not json"))

	for i := 0; i < 2; i++ {
		select {
		case <-dispatcher.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d frames dispatched", i)
		}
	}

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	if dispatcher.frames[0] != frame || dispatcher.frames[1] != "not json" {
		t.Errorf("unexpected dispatched frames %q", dispatcher.frames)
	}
	if dispatcher.conns[0].ID() != dispatcher.conns[1].ID() {
		t.Error("frames from one socket should carry the same connection")
	}
	if got := registry.Connections(); len(got) != 1 || got[0].ID() != dispatcher.conns[0].ID() {
		t.Error("dispatched connection should be the registered one")
	}
}

func TestHandler_UnregistersOnClose(t *testing.T) {
	registry, _, url := startHandler(t)

	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	waitForConnections(t, registry, 1)

	_ = client.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	_ = client.Close()

	waitForConnections(t, registry, 0)
}

func TestHandler_ConcurrentConnections(t *testing.T) {
	registry, _, url := startHandler(t)

	const numClients = 10
	clients := make([]*websocket.Conn, 0, numClients)
	for i := 0; i < numClients; i++ {
		c, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial %d failed: %v", i, err)
		}
		clients = append(clients, c)
	}
	waitForConnections(t, registry, numClients)

	for _, c := range clients {
		_ = c.Close()
	}
	waitForConnections(t, registry, 0)
}
