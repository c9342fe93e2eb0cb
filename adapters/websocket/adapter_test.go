package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"campkit/core"
	"campkit/realtime"
)

func dial(t *testing.T, server *httptest.Server, query string, header http.Header) (*gorillaws.Conn, error) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + query
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, header)
	return conn, err
}

func waitForSubscribers(t *testing.T, hub *realtime.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() < n {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandlerStreamsFilteredEvents(t *testing.T) {
	hub := realtime.NewHub()
	server := httptest.NewServer(Handler(hub, Options{}))
	defer server.Close()

	conn, err := dial(t, server, "?user=alice&types=badge_awarded", nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()
	waitForSubscribers(t, hub, 1)

	hub.Broadcast(context.Background(), core.NewPointsAdded("alice", core.ActionEcoAction, 10, 10))
	hub.Broadcast(context.Background(), core.NewBadgeAwarded("bob", core.BadgeExplorer))
	hub.Broadcast(context.Background(), core.NewBadgeAwarded("alice", core.BadgeEcoWarrior))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	var received core.Event
	if err := json.Unmarshal(msg, &received); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if received.UserID != "alice" || received.Badge != core.BadgeEcoWarrior {
		t.Fatalf("unexpected event: %+v", received)
	}
}

func TestHandlerRejectsUnknownOrigin(t *testing.T) {
	hub := realtime.NewHub()
	server := httptest.NewServer(Handler(hub, Options{AllowedOrigins: []string{"https://camp.example"}}))
	defer server.Close()

	_, err := dial(t, server, "", http.Header{"Origin": []string{"https://evil.example"}})
	if err == nil {
		t.Fatal("expected handshake failure for foreign origin")
	}
	conn, err := dial(t, server, "", http.Header{"Origin": []string{"https://camp.example"}})
	if err != nil {
		t.Fatalf("dial allowed origin: %v", err)
	}
	conn.Close()
}

func TestHandlerUnsubscribesOnDisconnect(t *testing.T) {
	hub := realtime.NewHub()
	server := httptest.NewServer(Handler(hub, Options{}))
	defer server.Close()

	conn, err := dial(t, server, "", nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	waitForSubscribers(t, hub, 1)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber not released after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
