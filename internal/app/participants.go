package app

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quiz-room-service/internal/domain"
)

// Join adds the user to a waiting room.
func (s *RoomService) Join(ctx context.Context, roomID, userID, displayName string) (domain.Participant, error) {
	if userID == "" {
		return domain.Participant{}, domain.Validation("user id is required")
	}
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return domain.Participant{}, err
	}
	if room.Status != domain.RoomWaiting {
		return domain.Participant{}, domain.ErrRoomNotWaiting
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = userID
	}

	participant, err := s.rooms.AddParticipant(ctx, domain.Participant{
		ID:          uuid.NewString(),
		TenantID:    room.TenantID,
		RoomID:      room.ID,
		UserID:      userID,
		DisplayName: displayName,
		Status:      domain.ParticipantJoined,
		JoinedAt:    s.now(),
	})
	if err != nil {
		return domain.Participant{}, err
	}
	s.logger.Info("participant joined",
		zap.String("room_id", room.ID),
		zap.String("participant_id", participant.ID),
		zap.String("user_id", userID),
	)
	s.publishRoomUpdated(ctx, room, "participant_joined", map[string]any{
		"participant_id": participant.ID,
		"user_id":        participant.UserID,
		"display_name":   participant.DisplayName,
	})
	return participant, nil
}

// HasParticipant reports whether the user already joined the room.
func (s *RoomService) HasParticipant(ctx context.Context, roomID, userID string) (bool, error) {
	_, err := s.rooms.FindParticipant(ctx, roomID, userID)
	if errors.Is(err, domain.ErrParticipantNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *RoomService) GetParticipant(ctx context.Context, participantID string) (domain.Participant, error) {
	return s.rooms.GetParticipant(ctx, participantID)
}

func (s *RoomService) FindParticipant(ctx context.Context, roomID, userID string) (domain.Participant, error) {
	return s.rooms.FindParticipant(ctx, roomID, userID)
}

// SetReady marks a joined participant as ready.
func (s *RoomService) SetReady(ctx context.Context, participantID string) (domain.Participant, error) {
	p, err := s.rooms.UpdateParticipant(ctx, participantID, func(p *domain.Participant) error {
		switch p.Status {
		case domain.ParticipantJoined, domain.ParticipantReady:
			p.Status = domain.ParticipantReady
			return nil
		default:
			return domain.ErrParticipantInactive
		}
	})
	if err != nil {
		return domain.Participant{}, err
	}
	s.notifyParticipant(ctx, p, "participant_ready")
	return p, nil
}

// Disconnect marks an active participant as disconnected. Finished
// participants keep their status. No answer is recorded for questions
// missed while away.
func (s *RoomService) Disconnect(ctx context.Context, participantID string) (domain.Participant, error) {
	changed := false
	p, err := s.rooms.UpdateParticipant(ctx, participantID, func(p *domain.Participant) error {
		if p.Status.Active() {
			p.Status = domain.ParticipantDisconnected
			changed = true
		}
		return nil
	})
	if err != nil {
		return domain.Participant{}, err
	}
	if changed {
		s.notifyParticipant(ctx, p, "participant_disconnected")
	}
	return p, nil
}

// Reconnect brings a disconnected participant back into the room.
func (s *RoomService) Reconnect(ctx context.Context, participantID string) (domain.Participant, error) {
	current, err := s.rooms.GetParticipant(ctx, participantID)
	if err != nil {
		return domain.Participant{}, err
	}
	if current.Status != domain.ParticipantDisconnected {
		return current, nil
	}
	room, err := s.rooms.GetRoom(ctx, current.RoomID)
	if err != nil {
		return domain.Participant{}, err
	}
	if room.Status.Closed() {
		return domain.Participant{}, domain.ErrRoomClosed
	}
	active, _, err := s.activeCount(ctx, room.ID)
	if err != nil {
		return domain.Participant{}, err
	}
	if active >= room.MaxParticipants {
		return domain.Participant{}, domain.ErrRoomFull
	}

	p, err := s.rooms.UpdateParticipant(ctx, participantID, func(p *domain.Participant) error {
		if p.Status != domain.ParticipantDisconnected {
			return nil
		}
		if room.Status == domain.RoomInProgress {
			p.Status = domain.ParticipantPlaying
		} else {
			p.Status = domain.ParticipantJoined
		}
		return nil
	})
	if err != nil {
		return domain.Participant{}, err
	}
	s.notifyParticipant(ctx, p, "participant_reconnected")
	return p, nil
}

// Finish freezes a participant's run and recomputes the average response time.
func (s *RoomService) Finish(ctx context.Context, participantID string) (domain.Participant, error) {
	p, changed, err := s.finish(ctx, participantID)
	if err != nil {
		return domain.Participant{}, err
	}
	if changed {
		s.notifyParticipant(ctx, p, "participant_finished")
	}
	return p, nil
}

func (s *RoomService) finish(ctx context.Context, participantID string) (domain.Participant, bool, error) {
	answers, err := s.rooms.ListAnswers(ctx, participantID)
	if err != nil {
		return domain.Participant{}, false, err
	}
	changed := false
	p, err := s.rooms.UpdateParticipant(ctx, participantID, func(p *domain.Participant) error {
		if p.Status == domain.ParticipantFinished {
			return nil
		}
		now := s.now()
		p.Status = domain.ParticipantFinished
		p.FinishedAt = &now
		p.AverageResponseTime = domain.AverageResponseTime(answers)
		changed = true
		return nil
	})
	return p, changed, err
}

// Connect records a live connection for the participant and revives it if it
// was disconnected.
func (s *RoomService) Connect(ctx context.Context, participantID string) (domain.Participant, error) {
	p, err := s.rooms.GetParticipant(ctx, participantID)
	if err != nil {
		return domain.Participant{}, err
	}
	if err := s.presence.Touch(ctx, p.RoomID, p.ID); err != nil {
		return domain.Participant{}, err
	}
	if p.Status == domain.ParticipantDisconnected {
		return s.Reconnect(ctx, p.ID)
	}
	return p, nil
}

// Leave drops the participant's live connection and disconnects it unless the
// room is already over.
func (s *RoomService) Leave(ctx context.Context, participantID string) {
	p, err := s.rooms.GetParticipant(ctx, participantID)
	if err != nil {
		return
	}
	if err := s.presence.Drop(ctx, p.RoomID, p.ID); err != nil {
		s.logger.Warn("drop presence failed", zap.String("participant_id", p.ID), zap.Error(err))
	}
	room, err := s.rooms.GetRoom(ctx, p.RoomID)
	if err != nil || room.Status.Closed() {
		return
	}
	if _, err := s.Disconnect(ctx, p.ID); err != nil {
		s.logger.Warn("disconnect failed", zap.String("participant_id", p.ID), zap.Error(err))
	}
}

// CurrentRank is the participant's competition rank within its room.
func (s *RoomService) CurrentRank(ctx context.Context, participantID string) (int, error) {
	p, err := s.rooms.GetParticipant(ctx, participantID)
	if err != nil {
		return 0, err
	}
	all, err := s.rooms.ListParticipants(ctx, p.RoomID)
	if err != nil {
		return 0, err
	}
	return domain.CurrentRank(p, all), nil
}

func (s *RoomService) notifyParticipant(ctx context.Context, p domain.Participant, updateType string) {
	room, err := s.rooms.GetRoom(ctx, p.RoomID)
	if err != nil {
		s.logger.Warn("load room for event failed", zap.String("room_id", p.RoomID), zap.Error(err))
		return
	}
	s.logger.Info(updateType,
		zap.String("room_id", room.ID),
		zap.String("participant_id", p.ID),
		zap.String("status", string(p.Status)),
	)
	s.publishRoomUpdated(ctx, room, updateType, map[string]any{
		"participant_id": p.ID,
		"status":         string(p.Status),
	})
}
