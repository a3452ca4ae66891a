package broadcast

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"quiz-room-service/internal/domain"
)

func TestHubDeliversToRoomSubscribers(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("room-1")
	defer cancel()
	other, cancelOther := hub.Subscribe("room-2")
	defer cancelOther()

	_ = hub.Publish(context.Background(), Event{Name: EventRoomUpdated, RoomID: "room-1"})

	select {
	case ev := <-ch:
		if ev.Name != EventRoomUpdated {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected event for room-1")
	}
	select {
	case ev := <-other:
		t.Fatalf("room-2 should not see room-1 events, got %+v", ev)
	default:
	}
}

func TestHubDropsOldestForSlowSubscriber(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("room-1")
	defer cancel()

	for i := 0; i < 20; i++ {
		_ = hub.Publish(context.Background(), Event{Name: "n", RoomID: "room-1", Payload: i})
	}

	var last Event
	for len(ch) > 0 {
		last = <-ch
	}
	if last.Payload != 19 {
		t.Fatalf("expected newest event to survive, got %+v", last.Payload)
	}
}

func TestHubCancelUnsubscribes(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("room-1")
	cancel()
	cancel()

	if hub.Subscribers("room-1") != 0 {
		t.Fatalf("expected no subscribers after cancel")
	}
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
}

func TestQuizCompletedPayload(t *testing.T) {
	started := time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)
	ended := started.Add(95 * time.Second)
	one, two := 1, 2
	avg := 4.5
	room := domain.Room{ID: "r1", Code: "ABCDEF", TotalQuestions: 2, StartedAt: &started, EndedAt: &ended}
	ranked := []domain.Participant{
		{ID: "p1", UserID: "u1", TotalScore: 220, CorrectAnswers: 2, TotalQuestions: 2, Position: &one, AverageResponseTime: &avg},
		{ID: "p2", UserID: "u2", TotalScore: 100, CorrectAnswers: 1, TotalQuestions: 2, Position: &two},
	}

	ev := QuizCompleted(room, ranked)
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Event   string `json:"event"`
		Payload struct {
			Leaderboard []struct {
				Position int     `json:"position"`
				Accuracy float64 `json:"accuracy"`
			} `json:"leaderboard"`
			StartedAt       string  `json:"started_at"`
			DurationSeconds float64 `json:"duration_seconds"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Event != EventQuizCompleted {
		t.Fatalf("event name %q", decoded.Event)
	}
	if decoded.Payload.DurationSeconds != 95 {
		t.Fatalf("duration = %v", decoded.Payload.DurationSeconds)
	}
	if decoded.Payload.StartedAt != "2026-10-17T10:00:00Z" {
		t.Fatalf("started_at = %q", decoded.Payload.StartedAt)
	}
	lb := decoded.Payload.Leaderboard
	if len(lb) != 2 || lb[0].Position != 1 || lb[1].Position != 2 || lb[1].Accuracy != 50 {
		t.Fatalf("unexpected leaderboard %+v", lb)
	}
}

func TestQuestionStartedHidesCorrectness(t *testing.T) {
	now := time.Now()
	room := domain.Room{ID: "r1", CurrentQuestion: 1, TotalQuestions: 3, QuestionTimeLimit: 30, QuestionStartedAt: &now}
	q := domain.Question{ID: "q1", Prompt: "Pick", Options: []domain.Option{{ID: "o1", Text: "yes", Correct: true}}}

	raw, err := json.Marshal(QuestionStarted(room, q))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var generic map[string]any
	_ = json.Unmarshal(raw, &generic)
	payload := generic["payload"].(map[string]any)
	question := payload["question"].(map[string]any)
	opt := question["options"].([]any)[0].(map[string]any)
	if _, leaked := opt["correct"]; leaked {
		t.Fatalf("correct flag leaked to clients: %v", opt)
	}
	if payload["time_limit"].(float64) != 30 || payload["question_number"].(float64) != 1 {
		t.Fatalf("unexpected payload %v", payload)
	}
}
