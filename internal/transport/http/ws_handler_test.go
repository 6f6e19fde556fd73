package http

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quiz-leaderboard-service/internal/app"
	"quiz-leaderboard-service/internal/infra/memory"
)

func TestWebSocketCommitFlow(t *testing.T) {
	service := app.NewLeaderboardService(memory.NewSlotStore())
	server := httptest.NewServer(NewRouter(service, nil, RouterConfig{}))
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws?bookId=book-1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Expect the current leaderboard first.
	_, payload := readNext(conn, t, "leaderboard")
	if entries, _ := payload["entries"].([]any); len(entries) != 0 {
		t.Fatalf("expected empty initial leaderboard, got %v", payload)
	}

	commit := map[string]any{
		"type": "commit",
		"payload": map[string]any{
			"submitterId": "u1",
			"displayName": "Alice",
			"score":       100,
			"difficulty":  "advanced",
			"submittedAt": "2026-05-01T10:00:00Z",
		},
	}
	if err := conn.WriteJSON(commit); err != nil {
		t.Fatalf("write commit: %v", err)
	}

	// Expect commitResult and a leaderboard update, in either order.
	commitSeen := false
	leaderboardSeen := false
	for i := 0; i < 3 && !(commitSeen && leaderboardSeen); i++ {
		typ, payload := readNext(conn, t, "")
		switch typ {
		case "commitResult":
			commitSeen = true
			if rank, _ := payload["finalRank"].(float64); rank != 1 {
				t.Fatalf("expected final rank 1, got %v", payload)
			}
		case "leaderboard":
			leaderboardSeen = true
			if entries, _ := payload["entries"].([]any); len(entries) != 1 {
				t.Fatalf("expected one entry, got %v", payload)
			}
		}
	}
	if !commitSeen || !leaderboardSeen {
		t.Fatalf("expected commitResult and leaderboard, got commitResult=%v leaderboard=%v", commitSeen, leaderboardSeen)
	}

	if err := conn.WriteJSON(map[string]any{"type": "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readNext(conn, t, "error")
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}
