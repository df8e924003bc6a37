package preview

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, h *Hub) (*websocket.Conn, *httptest.Server) {
	t.Helper()

	ts := httptest.NewServer(h)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		ts.Close()
		t.Fatalf("Dial() error = %v", err)
	}
	return conn, ts
}

func waitClients(h *Hub, want int) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == want {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return h.ClientCount() == want
}

func TestHub_Broadcast(t *testing.T) {
	t.Parallel()

	h := NewHub(quiet)
	a, tsA := dialHub(t, h)
	defer tsA.Close()
	defer a.Close()
	b, tsB := dialHub(t, h)
	defer tsB.Close()
	defer b.Close()

	if !waitClients(h, 2) {
		t.Fatalf("ClientCount() = %d, want 2", h.ClientCount())
	}

	h.Broadcast(Message{Type: TypeReload})

	for _, conn := range []*websocket.Conn{a, b} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error = %v", err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Type != TypeReload || msg.HTML != "" {
			t.Errorf("message = %+v", msg)
		}
		if strings.Contains(string(data), `"html"`) {
			t.Errorf("empty html should be omitted: %s", data)
		}
	}
}

func TestHub_ClientLeaves(t *testing.T) {
	t.Parallel()

	h := NewHub(quiet)
	conn, ts := dialHub(t, h)
	defer ts.Close()

	if !waitClients(h, 1) {
		t.Fatal("client never registered")
	}
	_ = conn.Close()

	if !waitClients(h, 0) {
		t.Errorf("ClientCount() = %d after disconnect, want 0", h.ClientCount())
	}
}

func TestHub_Close(t *testing.T) {
	t.Parallel()

	h := NewHub(nil)
	conn, ts := dialHub(t, h)
	defer ts.Close()
	defer conn.Close()

	if !waitClients(h, 1) {
		t.Fatal("client never registered")
	}
	h.Close()
	h.Close()

	if h.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after Close, want 0", h.ClientCount())
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection should be closed by the hub")
	}
}
