// Package broadcast builds room event payloads and fans them out to
// subscribers of a room topic.
package broadcast

import (
	"context"
	"time"

	"quiz-room-service/internal/domain"
	"quiz-room-service/internal/scoring"
)

// Event names published on a room topic.
const (
	EventRoomUpdated         = "room.updated"
	EventQuestionStarted     = "question.started"
	EventParticipantAnswered = "participant.answered"
	EventQuizCompleted       = "quiz.completed"
)

// Event is one message published on a room's topic. Payload only carries
// JSON-serializable data.
type Event struct {
	Name    string `json:"event"`
	RoomID  string `json:"room_id"`
	Payload any    `json:"payload"`
}

// Publisher delivers events to everyone subscribed to the event's room.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Timestamp renders t as an ISO-8601 string in UTC.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func optionalTimestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := Timestamp(*t)
	return &s
}

type RoomUpdatedPayload struct {
	RoomID           string         `json:"room_id"`
	Code             string         `json:"code"`
	Status           string         `json:"status"`
	CurrentQuestion  int            `json:"current_question"`
	TotalQuestions   int            `json:"total_questions"`
	ParticipantCount int            `json:"participant_count"`
	UpdateType       string         `json:"update_type"`
	Data             map[string]any `json:"data,omitempty"`
	Timestamp        string         `json:"timestamp"`
}

// RoomUpdated describes a room state change. participantCount counts active
// participants.
func RoomUpdated(room domain.Room, participantCount int, updateType string, data map[string]any, now time.Time) Event {
	return Event{
		Name:   EventRoomUpdated,
		RoomID: room.ID,
		Payload: RoomUpdatedPayload{
			RoomID:           room.ID,
			Code:             room.Code,
			Status:           string(room.Status),
			CurrentQuestion:  room.CurrentQuestion,
			TotalQuestions:   room.TotalQuestions,
			ParticipantCount: participantCount,
			UpdateType:       updateType,
			Data:             data,
			Timestamp:        Timestamp(now),
		},
	}
}

type OptionView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type QuestionView struct {
	ID      string       `json:"id"`
	Prompt  string       `json:"prompt"`
	Options []OptionView `json:"options"`
}

// NewQuestionView strips correctness flags before a question leaves the server.
func NewQuestionView(q domain.Question) QuestionView {
	opts := make([]OptionView, 0, len(q.Options))
	for _, o := range q.Options {
		opts = append(opts, OptionView{ID: o.ID, Text: o.Text})
	}
	return QuestionView{ID: q.ID, Prompt: q.Prompt, Options: opts}
}

type QuestionStartedPayload struct {
	RoomID         string       `json:"room_id"`
	Question       QuestionView `json:"question"`
	TimeLimit      int          `json:"time_limit"`
	QuestionNumber int          `json:"question_number"`
	TotalQuestions int          `json:"total_questions"`
	StartedAt      *string      `json:"started_at"`
}

func QuestionStarted(room domain.Room, question domain.Question) Event {
	return Event{
		Name:   EventQuestionStarted,
		RoomID: room.ID,
		Payload: QuestionStartedPayload{
			RoomID:         room.ID,
			Question:       NewQuestionView(question),
			TimeLimit:      room.QuestionTimeLimit,
			QuestionNumber: room.CurrentQuestion,
			TotalQuestions: room.TotalQuestions,
			StartedAt:      optionalTimestamp(room.QuestionStartedAt),
		},
	}
}

type ParticipantSummary struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	DisplayName    string `json:"display_name"`
	TotalScore     int    `json:"total_score"`
	CorrectAnswers int    `json:"correct_answers"`
	TotalQuestions int    `json:"total_questions"`
	SpeedBonus     int    `json:"speed_bonus"`
}

func summarize(p domain.Participant) ParticipantSummary {
	return ParticipantSummary{
		ID:             p.ID,
		UserID:         p.UserID,
		DisplayName:    p.DisplayName,
		TotalScore:     p.TotalScore,
		CorrectAnswers: p.CorrectAnswers,
		TotalQuestions: p.TotalQuestions,
		SpeedBonus:     p.SpeedBonus,
	}
}

type AnswerDetails struct {
	QuestionID     string   `json:"question_id"`
	QuestionNumber int      `json:"question_number"`
	IsCorrect      bool     `json:"is_correct"`
	PointsEarned   int      `json:"points_earned"`
	SpeedBonus     int      `json:"speed_bonus"`
	ResponseTime   *float64 `json:"response_time"`
	SpeedRating    string   `json:"speed_rating"`
	IsQuick        bool     `json:"is_quick"`
	AnsweredAt     string   `json:"answered_at"`
}

type ParticipantAnsweredPayload struct {
	RoomID      string             `json:"room_id"`
	Participant ParticipantSummary `json:"participant"`
	Answer      AnswerDetails      `json:"answer"`
	Rank        int                `json:"rank"`
}

func ParticipantAnswered(room domain.Room, p domain.Participant, a domain.Answer, rank int) Event {
	return Event{
		Name:   EventParticipantAnswered,
		RoomID: room.ID,
		Payload: ParticipantAnsweredPayload{
			RoomID:      room.ID,
			Participant: summarize(p),
			Answer: AnswerDetails{
				QuestionID:     a.QuestionID,
				QuestionNumber: a.QuestionNumber,
				IsCorrect:      a.IsCorrect,
				PointsEarned:   a.PointsEarned,
				SpeedBonus:     a.SpeedBonus,
				ResponseTime:   a.ResponseTime,
				SpeedRating:    scoring.SpeedRating(a.ResponseTime, room.QuestionTimeLimit),
				IsQuick:        scoring.IsQuickAnswer(a.ResponseTime, room.QuestionTimeLimit),
				AnsweredAt:     Timestamp(a.AnsweredAt),
			},
			Rank: rank,
		},
	}
}

type Standing struct {
	Position            int      `json:"position"`
	ParticipantID       string   `json:"participant_id"`
	UserID              string   `json:"user_id"`
	DisplayName         string   `json:"display_name"`
	TotalScore          int      `json:"total_score"`
	CorrectAnswers      int      `json:"correct_answers"`
	TotalQuestions      int      `json:"total_questions"`
	Accuracy            float64  `json:"accuracy"`
	AverageResponseTime *float64 `json:"average_response_time"`
	SpeedBonus          int      `json:"speed_bonus"`
}

// Standings renders participants already in leaderboard order. A stored
// position wins over the slice index.
func Standings(ordered []domain.Participant) []Standing {
	out := make([]Standing, 0, len(ordered))
	for i, p := range ordered {
		pos := i + 1
		if p.Position != nil {
			pos = *p.Position
		}
		out = append(out, Standing{
			Position:            pos,
			ParticipantID:       p.ID,
			UserID:              p.UserID,
			DisplayName:         p.DisplayName,
			TotalScore:          p.TotalScore,
			CorrectAnswers:      p.CorrectAnswers,
			TotalQuestions:      p.TotalQuestions,
			Accuracy:            p.Accuracy(),
			AverageResponseTime: p.AverageResponseTime,
			SpeedBonus:          p.SpeedBonus,
		})
	}
	return out
}

type QuizCompletedPayload struct {
	RoomID          string     `json:"room_id"`
	Code            string     `json:"code"`
	Leaderboard     []Standing `json:"leaderboard"`
	TotalQuestions  int        `json:"total_questions"`
	StartedAt       *string    `json:"started_at"`
	EndedAt         *string    `json:"ended_at"`
	DurationSeconds float64    `json:"duration_seconds"`
}

// QuizCompleted carries the frozen leaderboard of a finished room.
func QuizCompleted(room domain.Room, ranked []domain.Participant) Event {
	var duration float64
	if room.StartedAt != nil && room.EndedAt != nil {
		duration = domain.Round2(room.EndedAt.Sub(*room.StartedAt).Seconds())
	}
	return Event{
		Name:   EventQuizCompleted,
		RoomID: room.ID,
		Payload: QuizCompletedPayload{
			RoomID:          room.ID,
			Code:            room.Code,
			Leaderboard:     Standings(ranked),
			TotalQuestions:  room.TotalQuestions,
			StartedAt:       optionalTimestamp(room.StartedAt),
			EndedAt:         optionalTimestamp(room.EndedAt),
			DurationSeconds: duration,
		},
	}
}
