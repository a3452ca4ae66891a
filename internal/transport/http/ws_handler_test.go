package http

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWebSocketRoomFlow(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, "host")

	alice := dialRoom(t, env, room.ID, "alice", "Alice")
	defer alice.Close()
	typ, payload := readNext(t, alice, "connected")
	if typ != "connected" || payload["participant"] == nil {
		t.Fatalf("expected connected payload, got %s %v", typ, payload)
	}

	bob := dialRoom(t, env, room.ID, "bob", "Bob")
	defer bob.Close()
	readNext(t, bob, "connected")

	// Alice hears about Bob joining.
	readUntil(t, alice, "room.updated", func(p map[string]any) bool {
		return p["update_type"] == "participant_joined"
	})

	var state struct {
		Online []string `json:"online"`
	}
	env.do(t, http.MethodGet, "/rooms/"+room.ID+"/state", "", nil, &state)
	if len(state.Online) != 2 {
		t.Fatalf("expected two online participants, got %v", state.Online)
	}

	if err := alice.WriteJSON(map[string]any{"type": "start"}); err != nil {
		t.Fatalf("write start: %v", err)
	}
	readUntil(t, alice, "error", nil)

	if status := env.do(t, http.MethodPost, "/rooms/"+room.ID+"/start", "host", nil, nil); status != http.StatusOK {
		t.Fatalf("start status %d", status)
	}
	started := readUntil(t, alice, "question.started", nil)
	if started["question_number"] != float64(1) {
		t.Fatalf("unexpected question.started %v", started)
	}

	answer := map[string]any{
		"type":    "answer",
		"payload": map[string]any{"question_id": "q1", "answer": "o2", "response_time": 5},
	}
	if err := alice.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	result := readUntil(t, alice, "answer_result", nil)
	participant := result["participant"].(map[string]any)
	if participant["total_score"] != float64(120) || result["rank"] != float64(1) {
		t.Fatalf("unexpected answer_result %v", result)
	}

	answered := readUntil(t, bob, "participant.answered", nil)
	if answered["answer"].(map[string]any)["speed_rating"] != "lightning" {
		t.Fatalf("unexpected participant.answered %v", answered)
	}

	if err := alice.WriteJSON(answer); err != nil {
		t.Fatalf("write duplicate: %v", err)
	}
	errPayload := readUntil(t, alice, "error", nil)
	if !strings.Contains(errPayload["message"].(string), "already answered") {
		t.Fatalf("unexpected error %v", errPayload)
	}
}

func TestWebSocketCloseDisconnectsParticipant(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, "host")

	conn := dialRoom(t, env, room.ID, "alice", "Alice")
	readNext(t, conn, "connected")
	participant, err := env.service.FindParticipant(context.Background(), room.ID, "alice")
	if err != nil {
		t.Fatalf("find participant: %v", err)
	}
	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		p, _ := env.service.GetParticipant(context.Background(), participant.ID)
		if p.Status == "disconnected" {
			// Reconnecting through the socket revives the seat.
			again := dialRoom(t, env, room.ID, "alice", "")
			defer again.Close()
			readNext(t, again, "connected")
			p, _ = env.service.GetParticipant(context.Background(), participant.ID)
			if p.Status != "joined" {
				t.Fatalf("expected joined after reconnect, got %s", p.Status)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("participant was never disconnected")
}

func TestWebSocketRejectsMissingUser(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, "host")
	u := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/rooms/" + room.ID + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", resp)
	}
}

func dialRoom(t *testing.T, env *testEnv, roomID, user, name string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/rooms/" + roomID + "/ws?user_id=" + user + "&name=" + name
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readNext(t *testing.T, conn *websocket.Conn, expect string) (string, map[string]any) {
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

// readUntil skips messages until one of type typ matches accept (nil accepts any).
func readUntil(t *testing.T, conn *websocket.Conn, typ string, accept func(map[string]any) bool) map[string]any {
	t.Helper()
	for i := 0; i < 20; i++ {
		got, payload := readNext(t, conn, "")
		if got == typ && (accept == nil || accept(payload)) {
			return payload
		}
	}
	t.Fatalf("no %s message within 20 reads", typ)
	return nil
}
