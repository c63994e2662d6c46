package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()

	server := NewServer(&Config{
		Addr:   "127.0.0.1:0",
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })

	time.Sleep(100 * time.Millisecond)
	return server
}

func dialTestClient(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{
		Addr:   "127.0.0.1:0",
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
	})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if server.GetAddr() == "" {
		t.Fatal("Server address is empty")
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWebSocketConnection(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dialTestClient(t, ctx, server)
	time.Sleep(100 * time.Millisecond)

	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}
}

func TestHandlerBroadcastsHoleStatus(t *testing.T) {
	server := startTestServer(t)
	handler := NewHandler(server, log.New(os.Stderr, "[test] ", log.LstdFlags))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialTestClient(t, ctx, server)
	time.Sleep(100 * time.Millisecond)

	handler.HoleStatusChanged("panel_x", "H001", "completed", "done")

	// A status change broadcasts the event itself plus refreshed stats.
	var statusMsg, statsMsg *Message
	for statusMsg == nil || statsMsg == nil {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Failed to read message: %v", err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Failed to unmarshal message: %v", err)
		}
		switch msg.Type {
		case MessageTypeHoleStatus:
			statusMsg = &msg
		case MessageTypeStats:
			statsMsg = &msg
		}
	}

	var status HoleStatusData
	if err := json.Unmarshal(statusMsg.Data, &status); err != nil {
		t.Fatalf("Failed to unmarshal status data: %v", err)
	}
	if status.ProjectID != "panel_x" || status.HoleID != "H001" || status.Status != "completed" {
		t.Errorf("Unexpected status data: %+v", status)
	}

	var stats StatsData
	if err := json.Unmarshal(statsMsg.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal stats data: %v", err)
	}
	if stats.HolesByStatus["completed"] != 1 {
		t.Errorf("Expected 1 completed hole in stats, got %+v", stats)
	}
}

func TestHandlerTracksStats(t *testing.T) {
	server := startTestServer(t)
	handler := NewHandler(server, log.New(os.Stderr, "[test] ", log.LstdFlags))

	handler.ProjectCreated("panel_x", 5, 1)
	handler.HoleStatusChanged("panel_x", "H001", "measuring", "")
	handler.SyncCompleted("panel_x", "fs_to_db", 5, 20*time.Millisecond)

	stats := handler.GetStats()
	if stats.Projects != 1 {
		t.Errorf("Expected 1 project, got %d", stats.Projects)
	}
	if stats.HolesByStatus["pending"] != 5 {
		t.Errorf("Expected 5 pending holes, got %d", stats.HolesByStatus["pending"])
	}
	if stats.HolesByStatus["measuring"] != 1 {
		t.Errorf("Expected 1 measuring hole, got %d", stats.HolesByStatus["measuring"])
	}
	if stats.SyncPasses != 1 {
		t.Errorf("Expected 1 sync pass, got %d", stats.SyncPasses)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := startTestServer(t)

	resp, err := http.Get("http://" + server.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("Health check failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body["status"])
	}
}
