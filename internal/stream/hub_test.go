package stream

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"rai-sim-lab/internal/domain"
)

func dialTestHub(t *testing.T, hub *Hub) (*websocket.Conn, func()) {
	t.Helper()

	srv := httptest.NewServer(hub)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func TestHub_BroadcastReachesSubscriber(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	conn, cleanup := dialTestHub(t, hub)
	defer cleanup()

	snap := &domain.TickSnapshot{RunID: "run1", Tick: 42, ETHUSDPrice: 300}

	// The subscriber registers asynchronously on upgrade; broadcast until the
	// message arrives or the deadline hits.
	received := make(chan []byte, 1)
	go func() {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err == nil {
			received <- msg
		}
	}()

	deadline := time.After(5 * time.Second)
	for {
		hub.Broadcast(snap)
		select {
		case msg := <-received:
			var got domain.TickSnapshot
			if err := json.Unmarshal(msg, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.RunID != "run1" || got.Tick != 42 {
				t.Fatalf("unexpected snapshot: %+v", got)
			}
			return
		case <-deadline:
			t.Fatal("subscriber never received the broadcast")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestHub_BroadcastWithoutSubscribers(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	// Must not panic or block.
	hub.Broadcast(&domain.TickSnapshot{RunID: "run1"})
}
