package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"quiz-room-service/internal/broadcast"
	"quiz-room-service/internal/domain"
)

// BeginCountdown moves a startable room into the starting grace state.
func (s *RoomService) BeginCountdown(ctx context.Context, roomID, hostID string) (domain.Room, error) {
	if _, err := s.hostedRoom(ctx, roomID, hostID); err != nil {
		return domain.Room{}, err
	}
	room, _, err := s.rooms.TransitionRoom(ctx, roomID, func(r *domain.Room, ps []domain.Participant) error {
		if err := r.CheckStartable(domain.CountActive(ps), false); err != nil {
			return err
		}
		r.Status = domain.RoomStarting
		r.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return domain.Room{}, err
	}
	s.logTransition(room)
	s.publishRoomUpdated(ctx, room, "countdown", nil)
	return room, nil
}

// Start puts the room in progress, activates the first question and moves
// every seated participant to playing in the same step.
func (s *RoomService) Start(ctx context.Context, roomID, hostID string) (domain.Room, error) {
	if _, err := s.hostedRoom(ctx, roomID, hostID); err != nil {
		return domain.Room{}, err
	}
	room, _, err := s.rooms.TransitionRoom(ctx, roomID, func(r *domain.Room, ps []domain.Participant) error {
		if err := r.CheckStartable(domain.CountActive(ps), true); err != nil {
			return err
		}
		now := s.now()
		r.Status = domain.RoomInProgress
		r.StartedAt = &now
		r.CurrentQuestion = 1
		r.QuestionStartedAt = &now
		r.UpdatedAt = now
		for i := range ps {
			if ps[i].Status.Active() {
				ps[i].Status = domain.ParticipantPlaying
			}
		}
		return nil
	})
	if err != nil {
		return domain.Room{}, err
	}

	s.logTransition(room)
	s.publishRoomUpdated(ctx, room, "started", nil)
	s.publishQuestion(ctx, room)
	return room, nil
}

// AdvanceResult reports whether a next question was activated; false means
// the room just completed.
type AdvanceResult struct {
	Advanced    bool                 `json:"advanced"`
	Room        domain.Room          `json:"room"`
	Leaderboard []domain.Participant `json:"leaderboard,omitempty"`
}

// Advance activates the next question. When none remain it completes the
// room, finishes every remaining participant and freezes positions, all in
// one step.
func (s *RoomService) Advance(ctx context.Context, roomID, hostID string) (AdvanceResult, error) {
	if _, err := s.hostedRoom(ctx, roomID, hostID); err != nil {
		return AdvanceResult{}, err
	}
	advanced := false
	room, participants, err := s.rooms.TransitionRoom(ctx, roomID, func(r *domain.Room, ps []domain.Participant) error {
		if r.Status != domain.RoomInProgress {
			return domain.ErrRoomNotInProgress
		}
		now := s.now()
		r.UpdatedAt = now
		if r.CurrentQuestion < r.TotalQuestions {
			r.CurrentQuestion++
			r.QuestionStartedAt = &now
			advanced = true
			return nil
		}
		r.Status = domain.RoomCompleted
		r.EndedAt = &now
		completeParticipants(ps, now)
		return nil
	})
	if err != nil {
		return AdvanceResult{}, err
	}

	if advanced {
		s.logger.Info("question advanced",
			zap.String("room_id", room.ID),
			zap.Int("current_question", room.CurrentQuestion),
			zap.Int("total_questions", room.TotalQuestions),
		)
		s.publishRoomUpdated(ctx, room, "question_advanced", nil)
		s.publishQuestion(ctx, room)
		return AdvanceResult{Advanced: true, Room: room}, nil
	}

	s.logTransition(room)
	ranked := standings(participants)
	s.logger.Info("room finalized", zap.String("room_id", room.ID), zap.Int("ranked", len(ranked)))
	s.publishRoomUpdated(ctx, room, "completed", nil)
	s.publish(ctx, broadcast.QuizCompleted(room, ranked))
	return AdvanceResult{Advanced: false, Room: room, Leaderboard: ranked}, nil
}

// completeParticipants finishes everyone still in the room with the score
// they had (disconnected participants included; missed questions count as
// unanswered) and assigns final positions.
func completeParticipants(ps []domain.Participant, now time.Time) {
	for i := range ps {
		if ps[i].Status != domain.ParticipantFinished {
			ps[i].Status = domain.ParticipantFinished
			ps[i].FinishedAt = &now
		}
	}
	for i, p := range standings(ps) {
		pos := i + 1
		for j := range ps {
			if ps[j].ID == p.ID {
				ps[j].Position = &pos
			}
		}
	}
}

// standings returns the finished participants in final order.
func standings(ps []domain.Participant) []domain.Participant {
	finished := make([]domain.Participant, 0, len(ps))
	for _, p := range ps {
		if p.Status == domain.ParticipantFinished {
			finished = append(finished, p)
		}
	}
	domain.SortStandings(finished)
	return finished
}

// Finalize assigns 1-based positions to the finished participants of a
// completed room. Running it again on unchanged data yields the same result.
func (s *RoomService) Finalize(ctx context.Context, roomID string) ([]domain.Participant, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status != domain.RoomCompleted {
		return nil, domain.ErrRoomNotCompleted
	}
	participants, err := s.rooms.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	finished := standings(participants)

	positions := make(map[string]int, len(finished))
	for i := range finished {
		pos := i + 1
		finished[i].Position = &pos
		positions[finished[i].ID] = pos
	}
	if err := s.rooms.SetPositions(ctx, roomID, positions); err != nil {
		return nil, err
	}
	s.logger.Info("room finalized", zap.String("room_id", roomID), zap.Int("ranked", len(finished)))
	return finished, nil
}

// Leaderboard returns the room's participants in live ranking order.
func (s *RoomService) Leaderboard(ctx context.Context, roomID string) ([]domain.Participant, error) {
	if _, err := s.rooms.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	participants, err := s.rooms.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	domain.SortStandings(participants)
	return participants, nil
}

// CurrentQuestion returns the active question and its 1-based number. ok is
// false when the room has not started.
func (s *RoomService) CurrentQuestion(ctx context.Context, roomID string) (q domain.Question, number int, ok bool, err error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return domain.Question{}, 0, false, err
	}
	if room.CurrentQuestion == 0 {
		return domain.Question{}, 0, false, nil
	}
	quiz, err := s.quizzes.GetQuiz(ctx, room.QuizID)
	if err != nil {
		return domain.Question{}, 0, false, err
	}
	q, ok = quiz.QuestionAt(room.CurrentQuestion)
	return q, room.CurrentQuestion, ok, nil
}

// CancelRoom aborts a room that has not completed yet.
func (s *RoomService) CancelRoom(ctx context.Context, roomID, hostID string) (domain.Room, error) {
	if _, err := s.hostedRoom(ctx, roomID, hostID); err != nil {
		return domain.Room{}, err
	}
	return s.cancel(ctx, roomID, "cancelled")
}

func (s *RoomService) cancel(ctx context.Context, roomID, reason string) (domain.Room, error) {
	room, err := s.rooms.UpdateRoom(ctx, roomID, func(r *domain.Room) error {
		if r.Status.Closed() {
			return domain.ErrRoomClosed
		}
		now := s.now()
		r.Status = domain.RoomCancelled
		r.EndedAt = &now
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.Room{}, err
	}
	s.logTransition(room)
	s.publishRoomUpdated(ctx, room, "cancelled", map[string]any{"reason": reason})
	return room, nil
}

// CancelStaleRooms cancels rooms that never left the lobby within maxAge.
func (s *RoomService) CancelStaleRooms(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)
	cancelled := 0
	for _, status := range []domain.RoomStatus{domain.RoomWaiting, domain.RoomStarting} {
		rooms, err := s.rooms.ListRooms(ctx, domain.RoomFilter{Status: status, CreatedBefore: cutoff})
		if err != nil {
			return cancelled, err
		}
		for _, room := range rooms {
			_, err := s.cancel(ctx, room.ID, "stale")
			if errors.Is(err, domain.ErrRoomClosed) {
				continue
			}
			if err != nil {
				return cancelled, err
			}
			cancelled++
		}
	}
	return cancelled, nil
}

func (s *RoomService) publishQuestion(ctx context.Context, room domain.Room) {
	quiz, err := s.quizzes.GetQuiz(ctx, room.QuizID)
	if err != nil {
		s.logger.Warn("load quiz for question event failed", zap.String("room_id", room.ID), zap.Error(err))
		return
	}
	q, ok := quiz.QuestionAt(room.CurrentQuestion)
	if !ok {
		return
	}
	s.publish(ctx, broadcast.QuestionStarted(room, q))
}

func (s *RoomService) logTransition(room domain.Room) {
	s.logger.Info("room transition",
		zap.String("room_id", room.ID),
		zap.String("code", room.Code),
		zap.String("status", string(room.Status)),
	)
}
