package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/broadcast"
	"quiz-room-service/internal/domain"
)

func TestStatusForErrorKinds(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.Validation("bad"), http.StatusBadRequest},
		{domain.ErrOptionNotFound, http.StatusBadRequest},
		{domain.ErrRoomNotFound, http.StatusNotFound},
		{domain.ErrDuplicateAnswer, http.StatusConflict},
		{domain.ErrRoomFull, http.StatusConflict},
		{domain.ErrNotEnoughParticipants, http.StatusPreconditionFailed},
		{fmt.Errorf("wrapped: %w", domain.ErrNotHost), http.StatusPreconditionFailed},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestRoomLifecycleOverREST(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, "host")
	if len(room.Code) != 6 || room.Status != domain.RoomWaiting || room.TotalQuestions != 2 {
		t.Fatalf("unexpected room %+v", room)
	}

	var byCode domain.Room
	if status := env.do(t, http.MethodGet, "/rooms/code/"+strings.ToLower(room.Code), "", nil, &byCode); status != http.StatusOK || byCode.ID != room.ID {
		t.Fatalf("lookup by code status=%d room=%+v", status, byCode)
	}

	base := "/rooms/" + room.ID
	var alice, bob domain.Participant
	if status := env.do(t, http.MethodPost, base+"/join", "alice", map[string]any{"display_name": "Alice"}, &alice); status != http.StatusCreated {
		t.Fatalf("join alice status %d", status)
	}
	if status := env.do(t, http.MethodPost, base+"/join", "alice", nil, nil); status != http.StatusConflict {
		t.Fatalf("expected duplicate join conflict, got %d", status)
	}
	if status := env.do(t, http.MethodPost, base+"/start", "host", nil, nil); status != http.StatusPreconditionFailed {
		t.Fatalf("expected start to need two participants, got %d", status)
	}
	if status := env.do(t, http.MethodPost, base+"/join", "bob", map[string]any{"display_name": "Bob"}, &bob); status != http.StatusCreated {
		t.Fatalf("join bob status %d", status)
	}
	if status := env.do(t, http.MethodPost, base+"/start", "alice", nil, nil); status != http.StatusPreconditionFailed {
		t.Fatalf("expected non-host start to fail, got %d", status)
	}
	if status := env.do(t, http.MethodPost, base+"/start", "host", nil, nil); status != http.StatusOK {
		t.Fatalf("start status %d", status)
	}

	var question struct {
		Active         bool           `json:"active"`
		QuestionNumber int            `json:"question_number"`
		Question       map[string]any `json:"question"`
	}
	env.do(t, http.MethodGet, base+"/question", "", nil, &question)
	if !question.Active || question.QuestionNumber != 1 || question.Question["id"] != "q1" {
		t.Fatalf("unexpected question %+v", question)
	}
	for _, opt := range question.Question["options"].([]any) {
		if _, leaked := opt.(map[string]any)["correct"]; leaked {
			t.Fatalf("question view leaked correctness")
		}
	}

	var res struct {
		Participant domain.Participant `json:"participant"`
		Rank        int                `json:"rank"`
		SpeedRating string             `json:"speed_rating"`
	}
	status := env.do(t, http.MethodPost, base+"/answers", "alice", map[string]any{"answer": "o2", "response_time": 5}, &res)
	if status != http.StatusCreated || res.Participant.TotalScore != 120 || res.Rank != 1 || res.SpeedRating != "lightning" {
		t.Fatalf("unexpected answer status=%d res=%+v", status, res)
	}
	if status := env.do(t, http.MethodPost, base+"/answers", "alice", map[string]any{"answer": "o1"}, nil); status != http.StatusConflict {
		t.Fatalf("expected duplicate answer conflict, got %d", status)
	}
	if status := env.do(t, http.MethodPost, base+"/answers", "bob", map[string]any{"question_id": "q2", "answer": "o1"}, nil); status != http.StatusPreconditionFailed {
		t.Fatalf("expected inactive question to be rejected, got %d", status)
	}
	if status := env.do(t, http.MethodPost, base+"/answers", "bob", map[string]any{"answer": "o9"}, nil); status != http.StatusBadRequest {
		t.Fatalf("expected unknown option to be rejected, got %d", status)
	}

	var adv struct {
		Advanced bool `json:"advanced"`
	}
	env.do(t, http.MethodPost, base+"/advance", "host", nil, &adv)
	if !adv.Advanced {
		t.Fatalf("expected second question")
	}
	var done struct {
		Advanced    bool                 `json:"advanced"`
		Leaderboard []broadcast.Standing `json:"leaderboard"`
	}
	env.do(t, http.MethodPost, base+"/advance", "host", nil, &done)
	if done.Advanced || len(done.Leaderboard) != 2 || done.Leaderboard[0].UserID != "alice" || done.Leaderboard[0].Position != 1 {
		t.Fatalf("unexpected completion %+v", done)
	}
	if status := env.do(t, http.MethodPost, base+"/advance", "host", nil, nil); status != http.StatusPreconditionFailed {
		t.Fatalf("expected advance after completion to fail, got %d", status)
	}

	var board []broadcast.Standing
	if status := env.do(t, http.MethodPost, base+"/finalize", "", nil, &board); status != http.StatusOK || len(board) != 2 || board[1].UserID != "bob" {
		t.Fatalf("finalize status=%d board=%+v", status, board)
	}

	var rank struct {
		Rank int `json:"rank"`
	}
	env.do(t, http.MethodGet, "/participants/"+bob.ID+"/rank", "", nil, &rank)
	if rank.Rank != 2 {
		t.Fatalf("expected bob rank 2, got %d", rank.Rank)
	}
}

func TestParticipantActionsRequireOwner(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, "host")
	var alice domain.Participant
	env.do(t, http.MethodPost, "/rooms/"+room.ID+"/join", "alice", nil, &alice)

	if status := env.do(t, http.MethodPost, "/participants/"+alice.ID+"/ready", "mallory", nil, nil); status != http.StatusNotFound {
		t.Fatalf("expected foreign ready to be rejected, got %d", status)
	}
	var ready domain.Participant
	if status := env.do(t, http.MethodPost, "/participants/"+alice.ID+"/ready", "alice", nil, &ready); status != http.StatusOK || ready.Status != domain.ParticipantReady {
		t.Fatalf("ready status=%d participant=%+v", status, ready)
	}
}

func TestRequestValidation(t *testing.T) {
	env := newTestEnv(t)
	if status := env.do(t, http.MethodPost, "/rooms", "", map[string]any{"quiz_id": "quiz-1"}, nil); status != http.StatusBadRequest {
		t.Fatalf("expected missing user to be rejected, got %d", status)
	}
	if status := env.do(t, http.MethodPost, "/rooms", "host", map[string]any{"quiz_id": "quiz-1", "max_participants": 1}, nil); status != http.StatusBadRequest {
		t.Fatalf("expected small room to be rejected, got %d", status)
	}
	if status := env.do(t, http.MethodPost, "/rooms", "host", map[string]any{"quiz_id": "nope"}, nil); status != http.StatusNotFound {
		t.Fatalf("expected unknown quiz, got %d", status)
	}
	if status := env.do(t, http.MethodGet, "/rooms/missing", "", nil, nil); status != http.StatusNotFound {
		t.Fatalf("expected unknown room, got %d", status)
	}
}

func TestListRoomsAndHealth(t *testing.T) {
	env := newTestEnv(t)
	env.createRoom(t, "host")

	var rooms []domain.Room
	if status := env.do(t, http.MethodGet, "/rooms?available=true", "", nil, &rooms); status != http.StatusOK || len(rooms) != 1 {
		t.Fatalf("list status=%d rooms=%d", status, len(rooms))
	}

	var health map[string]struct {
		Status string `json:"status"`
	}
	if status := env.do(t, http.MethodGet, "/healthz", "", nil, &health); status != http.StatusOK || health["store"].Status != "ok" {
		t.Fatalf("health status=%d body=%+v", status, health)
	}
}

func TestAnswerBodyCannotCarryBonus(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, "host")
	base := "/rooms/" + room.ID
	env.do(t, http.MethodPost, base+"/join", "alice", nil, nil)
	env.do(t, http.MethodPost, base+"/join", "bob", nil, nil)
	if status := env.do(t, http.MethodPost, base+"/start", "host", nil, nil); status != http.StatusOK {
		t.Fatalf("start status %d", status)
	}

	forged := map[string]any{"question_id": "q1", "answer": "o1", "response_time": 1, "speed_bonus": 1000000}
	if status := env.do(t, http.MethodPost, base+"/answers", "alice", forged, nil); status != http.StatusBadRequest {
		t.Fatalf("expected client-supplied bonus to be rejected, got %d", status)
	}

	var res app.AnswerResult
	wrong := map[string]any{"question_id": "q1", "answer": "o1", "response_time": 1}
	if status := env.do(t, http.MethodPost, base+"/answers", "alice", wrong, &res); status != http.StatusCreated {
		t.Fatalf("answer status %d", status)
	}
	if res.Answer.IsCorrect || res.Answer.SpeedBonus != 0 || res.Participant.TotalScore != 0 {
		t.Fatalf("wrong answer scored: %+v", res)
	}
}
