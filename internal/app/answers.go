package app

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quiz-room-service/internal/broadcast"
	"quiz-room-service/internal/domain"
	"quiz-room-service/internal/scoring"
)

// AnswerSubmission is what a participant sends for the active question.
// QuestionID defaults to the active question. ResponseTime (seconds) is
// derived from the question start when omitted. SpeedBonus is for trusted
// in-process callers: when set it replaces the derived bonus of a correct
// answer, capped at the largest configured bonus.
type AnswerSubmission struct {
	QuestionID   string
	Answer       string
	ResponseTime *float64
	SpeedBonus   *int
}

// AnswerResult summarizes the outcome of a submission for a single user.
type AnswerResult struct {
	Answer      domain.Answer      `json:"answer"`
	Participant domain.Participant `json:"participant"`
	Rank        int                `json:"rank"`
	SpeedRating string             `json:"speed_rating"`
	IsQuick     bool               `json:"is_quick"`
}

// SubmitAnswer records a participant's answer to the room's active question
// and updates their running score.
func (s *RoomService) SubmitAnswer(ctx context.Context, roomID, participantID string, sub AnswerSubmission) (AnswerResult, error) {
	if sub.ResponseTime != nil && *sub.ResponseTime < 0 {
		return AnswerResult{}, domain.Validation("response time must not be negative")
	}
	if sub.SpeedBonus != nil && *sub.SpeedBonus < 0 {
		return AnswerResult{}, domain.Validation("speed bonus must not be negative")
	}

	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return AnswerResult{}, err
	}
	if room.Status != domain.RoomInProgress {
		return AnswerResult{}, domain.ErrRoomNotInProgress
	}
	participant, err := s.rooms.GetParticipant(ctx, participantID)
	if err != nil {
		return AnswerResult{}, err
	}
	if participant.RoomID != room.ID {
		return AnswerResult{}, domain.ErrParticipantNotFound
	}
	if !participant.Status.Active() {
		return AnswerResult{}, domain.ErrParticipantInactive
	}

	quiz, err := s.quizzes.GetQuiz(ctx, room.QuizID)
	if err != nil {
		return AnswerResult{}, err
	}
	question, err := activeQuestion(quiz, room, sub.QuestionID)
	if err != nil {
		return AnswerResult{}, err
	}

	answered, err := s.rooms.HasAnswered(ctx, participant.ID, question.ID)
	if err != nil {
		return AnswerResult{}, err
	}
	if answered {
		return AnswerResult{}, domain.ErrDuplicateAnswer
	}

	correct, err := question.IsCorrect(sub.Answer)
	if err != nil {
		return AnswerResult{}, err
	}

	now := s.now()
	responseTime := sub.ResponseTime
	if responseTime == nil && room.QuestionStartedAt != nil {
		elapsed := now.Sub(*room.QuestionStartedAt).Seconds()
		if elapsed < 0 {
			elapsed = 0
		}
		elapsed = domain.Round2(elapsed)
		responseTime = &elapsed
	}
	outcome := s.engine.Score(correct, responseTime, room.QuestionTimeLimit, sub.SpeedBonus)

	answer := domain.Answer{
		ID:             uuid.NewString(),
		TenantID:       room.TenantID,
		RoomID:         room.ID,
		ParticipantID:  participant.ID,
		QuestionID:     question.ID,
		QuestionNumber: room.CurrentQuestion,
		Answer:         sub.Answer,
		IsCorrect:      correct,
		PointsEarned:   outcome.Points,
		SpeedBonus:     outcome.SpeedBonus,
		ResponseTime:   responseTime,
		AnsweredAt:     now,
	}
	updated, err := s.rooms.RecordAnswer(ctx, answer)
	if err != nil {
		return AnswerResult{}, err
	}

	all, err := s.rooms.ListParticipants(ctx, room.ID)
	if err != nil {
		return AnswerResult{}, err
	}
	rank := domain.CurrentRank(updated, all)

	s.logger.Info("answer recorded",
		zap.String("room_id", room.ID),
		zap.String("participant_id", participant.ID),
		zap.Int("question_number", answer.QuestionNumber),
		zap.Bool("correct", correct),
		zap.Int("awarded", answer.Awarded()),
		zap.Int("total_score", updated.TotalScore),
	)
	s.publish(ctx, broadcast.ParticipantAnswered(room, updated, answer, rank))

	return AnswerResult{
		Answer:      answer,
		Participant: updated,
		Rank:        rank,
		SpeedRating: outcome.Rating,
		IsQuick:     scoring.IsQuickAnswer(responseTime, room.QuestionTimeLimit),
	}, nil
}

// HasAnsweredQuestion reports whether the participant already answered.
func (s *RoomService) HasAnsweredQuestion(ctx context.Context, participantID, questionID string) (bool, error) {
	return s.rooms.HasAnswered(ctx, participantID, questionID)
}

func activeQuestion(quiz domain.Quiz, room domain.Room, questionID string) (domain.Question, error) {
	current, ok := quiz.QuestionAt(room.CurrentQuestion)
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotActive
	}
	if questionID == "" || questionID == current.ID {
		return current, nil
	}
	for _, q := range quiz.Questions {
		if q.ID == questionID {
			return domain.Question{}, domain.ErrQuestionNotActive
		}
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}
