package memory

import (
	"context"
	"maps"
	"sort"
	"sync"

	"quiz-room-service/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomRepository. A single
// lock serializes writes, which gives the same atomicity as the SQL store's
// transactions.
type RoomStore struct {
	mu           sync.RWMutex
	rooms        map[string]domain.Room
	codes        map[string]string
	participants map[string]domain.Participant
	members      map[memberKey]string
	answers      map[string][]domain.Answer
	answered     map[answerKey]struct{}
}

type memberKey struct{ roomID, userID string }

type answerKey struct{ participantID, questionID string }

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms:        make(map[string]domain.Room),
		codes:        make(map[string]string),
		participants: make(map[string]domain.Participant),
		members:      make(map[memberKey]string),
		answers:      make(map[string][]domain.Answer),
		answered:     make(map[answerKey]struct{}),
	}
}

func (s *RoomStore) CreateRoom(_ context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[room.Code]; ok {
		return domain.ErrRoomCodeTaken
	}
	room.Settings = maps.Clone(room.Settings)
	s.rooms[room.ID] = room
	s.codes[room.Code] = room.ID
	return nil
}

func (s *RoomStore) CodeExists(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.codes[code]
	return ok, nil
}

func (s *RoomStore) GetRoom(_ context.Context, id string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return cloneRoom(room), nil
}

func (s *RoomStore) GetRoomByCode(_ context.Context, code string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codes[code]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return cloneRoom(s.rooms[id]), nil
}

func (s *RoomStore) ListRooms(_ context.Context, filter domain.RoomFilter) ([]domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Room, 0)
	for _, room := range s.rooms {
		if filter.TenantID != "" && room.TenantID != filter.TenantID {
			continue
		}
		if filter.Public && !room.IsPublic {
			continue
		}
		if filter.Status != "" && room.Status != filter.Status {
			continue
		}
		if !filter.CreatedBefore.IsZero() && !room.CreatedAt.Before(filter.CreatedBefore) {
			continue
		}
		if filter.Available && s.activeLocked(room.ID) >= room.MaxParticipants {
			continue
		}
		out = append(out, cloneRoom(room))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *RoomStore) UpdateRoom(_ context.Context, id string, mutate func(*domain.Room) error) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	draft := cloneRoom(room)
	if err := mutate(&draft); err != nil {
		return domain.Room{}, err
	}
	s.rooms[id] = draft
	return cloneRoom(draft), nil
}

func (s *RoomStore) TransitionRoom(_ context.Context, id string, mutate func(*domain.Room, []domain.Participant) error) (domain.Room, []domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return domain.Room{}, nil, domain.ErrRoomNotFound
	}
	draft := cloneRoom(room)
	participants := s.participantsLocked(id)
	if err := mutate(&draft, participants); err != nil {
		return domain.Room{}, nil, err
	}
	for _, p := range participants {
		if current, ok := s.participants[p.ID]; !ok || current.RoomID != id {
			return domain.Room{}, nil, domain.ErrParticipantNotFound
		}
	}
	s.rooms[id] = draft
	for _, p := range participants {
		s.participants[p.ID] = p
	}
	return cloneRoom(draft), append([]domain.Participant(nil), participants...), nil
}

func (s *RoomStore) DeleteRoom(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return domain.ErrRoomNotFound
	}
	for pid, p := range s.participants {
		if p.RoomID != id {
			continue
		}
		for _, a := range s.answers[pid] {
			delete(s.answered, answerKey{pid, a.QuestionID})
		}
		delete(s.answers, pid)
		delete(s.members, memberKey{p.RoomID, p.UserID})
		delete(s.participants, pid)
	}
	delete(s.codes, room.Code)
	delete(s.rooms, id)
	return nil
}

func (s *RoomStore) AddParticipant(_ context.Context, p domain.Participant) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[p.RoomID]
	if !ok {
		return domain.Participant{}, domain.ErrRoomNotFound
	}
	if _, ok := s.members[memberKey{p.RoomID, p.UserID}]; ok {
		return domain.Participant{}, domain.ErrAlreadyJoined
	}
	if room.Status != domain.RoomWaiting {
		return domain.Participant{}, domain.ErrRoomNotWaiting
	}
	if s.activeLocked(room.ID) >= room.MaxParticipants {
		return domain.Participant{}, domain.ErrRoomFull
	}
	s.participants[p.ID] = p
	s.members[memberKey{p.RoomID, p.UserID}] = p.ID
	return p, nil
}

func (s *RoomStore) GetParticipant(_ context.Context, id string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p, nil
}

func (s *RoomStore) FindParticipant(_ context.Context, roomID, userID string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.members[memberKey{roomID, userID}]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return s.participants[id], nil
}

func (s *RoomStore) ListParticipants(_ context.Context, roomID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.participantsLocked(roomID), nil
}

func (s *RoomStore) participantsLocked(roomID string) []domain.Participant {
	out := make([]domain.Participant, 0)
	for _, p := range s.participants {
		if p.RoomID == roomID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *RoomStore) UpdateParticipant(_ context.Context, id string, mutate func(*domain.Participant) error) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	draft := p
	if err := mutate(&draft); err != nil {
		return domain.Participant{}, err
	}
	s.participants[id] = draft
	return draft, nil
}

func (s *RoomStore) SetPositions(_ context.Context, roomID string, positions map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range positions {
		if p, ok := s.participants[id]; !ok || p.RoomID != roomID {
			return domain.ErrParticipantNotFound
		}
	}
	for id, pos := range positions {
		p := s.participants[id]
		pos := pos
		p.Position = &pos
		s.participants[id] = p
	}
	return nil
}

func (s *RoomStore) RecordAnswer(_ context.Context, a domain.Answer) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[a.ParticipantID]
	if !ok || p.RoomID != a.RoomID {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	room, ok := s.rooms[a.RoomID]
	if !ok {
		return domain.Participant{}, domain.ErrRoomNotFound
	}
	if err := domain.CheckAnswerable(room, p, a.QuestionNumber); err != nil {
		return domain.Participant{}, err
	}
	key := answerKey{a.ParticipantID, a.QuestionID}
	if _, dup := s.answered[key]; dup {
		return domain.Participant{}, domain.ErrDuplicateAnswer
	}
	s.answered[key] = struct{}{}
	s.answers[a.ParticipantID] = append(s.answers[a.ParticipantID], a)

	p.TotalScore += a.Awarded()
	p.SpeedBonus += a.SpeedBonus
	if a.IsCorrect {
		p.CorrectAnswers++
	}
	p.TotalQuestions++
	p.AverageResponseTime = domain.AverageResponseTime(s.answers[a.ParticipantID])
	s.participants[p.ID] = p
	return p, nil
}

func (s *RoomStore) HasAnswered(_ context.Context, participantID, questionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.answered[answerKey{participantID, questionID}]
	return ok, nil
}

func (s *RoomStore) ListAnswers(_ context.Context, participantID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Answer(nil), s.answers[participantID]...), nil
}

func (s *RoomStore) activeLocked(roomID string) int {
	n := 0
	for _, p := range s.participants {
		if p.RoomID == roomID && p.Status.Active() {
			n++
		}
	}
	return n
}

func cloneRoom(room domain.Room) domain.Room {
	room.Settings = maps.Clone(room.Settings)
	return room
}
