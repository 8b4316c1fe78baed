package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestSessionStreamBroadcastsChanges(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()
	ctx := context.Background()

	sess, dmToken, err := srv.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/sessions/" + sess.ID
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()
	defer resp.Body.Close()

	// registration happens on the server goroutine after the handshake
	waitForSubscriber(t, srv, sess.ID)

	if _, err := srv.AddCombatant(ctx, sess.ID, AddCombatantData{Name: "Orc", Initiative: 12}, dmToken); err != nil {
		t.Fatalf("add combatant: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Type != EventCombatantAdded || ev.SessionID != sess.ID {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func waitForSubscriber(t *testing.T, srv *Server, sessionID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		srv.hub.mu.Lock()
		n := len(srv.hub.sessions[sessionID])
		srv.hub.mu.Unlock()
		if n > 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSessionStreamRejectsUnknownSession(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/sessions/no-such-session"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatalf("expected dial to fail for unknown session")
	}
	if resp == nil || resp.StatusCode != 404 {
		t.Fatalf("expected 404 handshake response, got %+v", resp)
	}
	if resp != nil {
		resp.Body.Close()
	}
}
