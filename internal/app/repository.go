package app

import (
	"context"

	"quiz-room-service/internal/domain"
)

// RoomRepository persists rooms, their participants and answers (in-memory,
// Postgres, etc). Update methods run mutate against the current record and
// persist only when it returns nil, so a rejected transition changes nothing.
type RoomRepository interface {
	CreateRoom(ctx context.Context, room domain.Room) error
	CodeExists(ctx context.Context, code string) (bool, error)
	GetRoom(ctx context.Context, id string) (domain.Room, error)
	GetRoomByCode(ctx context.Context, code string) (domain.Room, error)
	ListRooms(ctx context.Context, filter domain.RoomFilter) ([]domain.Room, error)
	UpdateRoom(ctx context.Context, id string, mutate func(*domain.Room) error) (domain.Room, error)
	// TransitionRoom runs mutate against the room and its participants (in
	// join order) while holding the room, then persists the room and every
	// participant together. Participants that join concurrently wait for it.
	TransitionRoom(ctx context.Context, id string, mutate func(*domain.Room, []domain.Participant) error) (domain.Room, []domain.Participant, error)
	// DeleteRoom removes the room with its participants and answers.
	DeleteRoom(ctx context.Context, id string) error

	// AddParticipant inserts p while the room is waiting and has a free seat.
	// A second row for the same (room, user) pair yields ErrAlreadyJoined.
	AddParticipant(ctx context.Context, p domain.Participant) (domain.Participant, error)
	GetParticipant(ctx context.Context, id string) (domain.Participant, error)
	FindParticipant(ctx context.Context, roomID, userID string) (domain.Participant, error)
	ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error)
	UpdateParticipant(ctx context.Context, id string, mutate func(*domain.Participant) error) (domain.Participant, error)
	SetPositions(ctx context.Context, roomID string, positions map[string]int) error

	// RecordAnswer stores the answer and atomically folds it into the
	// participant's counters. Under the same lock it re-checks that the room
	// is in progress on answer.QuestionNumber and that the participant is
	// active (domain.CheckAnswerable). A second answer to the same question
	// yields ErrDuplicateAnswer and leaves the participant untouched.
	RecordAnswer(ctx context.Context, answer domain.Answer) (domain.Participant, error)
	HasAnswered(ctx context.Context, participantID, questionID string) (bool, error)
	ListAnswers(ctx context.Context, participantID string) ([]domain.Answer, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// PresenceTracker records which participants hold a live connection to a room.
type PresenceTracker interface {
	Touch(ctx context.Context, roomID, participantID string) error
	Drop(ctx context.Context, roomID, participantID string) error
	Online(ctx context.Context, roomID string) ([]string, error)
}
