package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/tasksync/tasksync/internal/schema"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// startHub serves a running hub over httptest and returns its ws:// URL.
func startHub(t *testing.T) (*Hub, string) {
	t.Helper()

	hub := NewHub(&Config{Logger: quietLogger()})
	hub.Start()
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Stop()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
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

// waitForClients polls until the hub reports n clients.
func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", n, hub.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_WelcomeAndBroadcast(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)

	if msg := readMessage(t, conn); msg.Type != MessageTypeStats {
		t.Errorf("Expected welcome message type %s, got %s", MessageTypeStats, msg.Type)
	}
	waitForClients(t, hub, 1)

	hub.Broadcast(Message{Type: MessageTypeSyncComplete})

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeSyncComplete {
		t.Errorf("Expected %s, got %s", MessageTypeSyncComplete, msg.Type)
	}
	if msg.Timestamp.IsZero() {
		t.Error("broadcast loop did not stamp the message")
	}
}

func TestHub_MultipleClients(t *testing.T) {
	hub, url := startHub(t)

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dial(t, url)
		readMessage(t, conns[i])
	}
	waitForClients(t, hub, 3)

	hub.Broadcast(Message{Type: MessageTypeTaskUpdate})
	for i, conn := range conns {
		if msg := readMessage(t, conn); msg.Type != MessageTypeTaskUpdate {
			t.Errorf("client %d got %s", i, msg.Type)
		}
	}

	_ = conns[0].Close(websocket.StatusNormalClosure, "")
	waitForClients(t, hub, 2)
}

func TestHub_DropsWhenFull(t *testing.T) {
	hub := NewHub(&Config{Buffer: 1, Logger: quietLogger()})
	defer hub.Stop()

	// Loop not started: the second message has nowhere to go.
	hub.Broadcast(Message{Type: MessageTypeStats})
	hub.Broadcast(Message{Type: MessageTypeStats})

	if got := len(hub.broadcast); got != 1 {
		t.Errorf("queued %d messages, want 1", got)
	}
}

func TestHandler_Stats(t *testing.T) {
	hub := NewHub(&Config{Logger: quietLogger()})
	defer hub.Stop()
	h := NewHandler(hub, quietLogger())

	h.UpdateStats([]*schema.Task{
		{ID: "a", Title: "A"},
		{ID: "b", Title: "B", IsCompleted: true},
	})
	h.OnTaskCreated(&schema.Task{ID: "c", Title: "C"})
	h.OnTaskUpdated(&schema.Task{ID: "a", Title: "A", IsCompleted: true})
	h.OnTaskDeleted(&schema.Task{ID: "b"})
	h.OnSyncComplete(2, 1,
		[]*schema.Task{{ID: "d", Title: "D"}},
		[]string{"c"},
		time.Millisecond)

	want := StatsData{Total: 2, Completed: 1, Pending: 1}
	if got := h.Stats(); got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}

func TestHandler_WelcomeCarriesStats(t *testing.T) {
	hub, url := startHub(t)
	h := NewHandler(hub, quietLogger())
	h.UpdateStats([]*schema.Task{{ID: "a", IsCompleted: true}, {ID: "b"}})

	conn := dial(t, url)
	msg := readMessage(t, conn)

	var stats StatsData
	if err := json.Unmarshal(msg.Data, &stats); err != nil {
		t.Fatalf("welcome data: %v", err)
	}
	if stats != (StatsData{Total: 2, Completed: 1, Pending: 1}) {
		t.Errorf("welcome stats = %+v", stats)
	}
}

func TestHandler_SyncCompleteMessage(t *testing.T) {
	hub, url := startHub(t)
	h := NewHandler(hub, quietLogger())

	conn := dial(t, url)
	readMessage(t, conn)
	waitForClients(t, hub, 1)

	h.OnSyncComplete(3, 0, []*schema.Task{{ID: "x", Title: "X"}}, nil, time.Second)

	// task_update for x, then sync_complete, then stats.
	var got []MessageType
	var sync SyncCompleteData
	for range 3 {
		msg := readMessage(t, conn)
		got = append(got, msg.Type)
		if msg.Type == MessageTypeSyncComplete {
			if err := json.Unmarshal(msg.Data, &sync); err != nil {
				t.Fatalf("sync data: %v", err)
			}
		}
	}
	want := []MessageType{MessageTypeTaskUpdate, MessageTypeSyncComplete, MessageTypeStats}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("message order = %v, want %v", got, want)
		}
	}
	if sync.Received != 3 || sync.Updated != 1 {
		t.Errorf("sync data = %+v", sync)
	}
}
