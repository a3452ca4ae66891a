package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/broadcast"
	"quiz-room-service/internal/domain"
	"quiz-room-service/internal/infra/memory"
)

type testEnv struct {
	server  *httptest.Server
	service *app.RoomService
	hub     *broadcast.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	hub := broadcast.NewHub()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	service := app.NewRoomService(memory.NewRoomStore(), quizzes, memory.NewPresenceStore(), hub, app.DefaultOptions(), logger)

	health := NewHealth(map[string]Pinger{
		"store": PingFunc(func(context.Context) error { return nil }),
	}, logger)
	router := NewRouter(NewAPI(service, logger), NewWSHandler(service, hub, logger), health, logger)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testEnv{server: server, service: service, hub: hub}
}

// do sends a JSON request as user and decodes the response into out when set.
func (e *testEnv) do(t *testing.T, method, path, user string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if user != "" {
		req.Header.Set(headerUserID, user)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) createRoom(t *testing.T, host string) domain.Room {
	t.Helper()
	var room domain.Room
	status := e.do(t, http.MethodPost, "/rooms", host, map[string]any{"quiz_id": "quiz-1", "is_public": true}, &room)
	if status != http.StatusCreated {
		t.Fatalf("create room status %d", status)
	}
	return room
}

func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Arithmetic",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3", Correct: false},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5", Correct: false},
					},
				},
				{
					ID:     "q2",
					Prompt: "What is 3 * 3?",
					Options: []domain.Option{
						{ID: "o1", Text: "9", Correct: true},
						{ID: "o2", Text: "6", Correct: false},
					},
				},
			},
		},
	}
}
