package app

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quiz-room-service/internal/broadcast"
	"quiz-room-service/internal/domain"
	"quiz-room-service/internal/scoring"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Options tunes room defaults.
type Options struct {
	CodeLength             int
	DefaultMaxParticipants int
	// DefaultTimeLimit is the per-question limit in seconds.
	DefaultTimeLimit int
	Scoring          scoring.Rules
}

// DefaultOptions mirrors the shipped config defaults.
func DefaultOptions() Options {
	return Options{
		CodeLength:             6,
		DefaultMaxParticipants: 10,
		DefaultTimeLimit:       30,
		Scoring:                scoring.DefaultRules(),
	}
}

// RoomService contains the multiplayer room use cases: registry, participant
// lifecycle, answer recording and progression.
type RoomService struct {
	rooms    RoomRepository
	quizzes  QuizRepository
	presence PresenceTracker
	events   broadcast.Publisher
	engine   *scoring.Engine
	opts     Options
	logger   *zap.Logger
	now      func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewRoomService(rooms RoomRepository, quizzes QuizRepository, presence PresenceTracker, events broadcast.Publisher, opts Options, logger *zap.Logger) *RoomService {
	return NewRoomServiceWithClock(rooms, quizzes, presence, events, opts, logger, time.Now)
}

// NewRoomServiceWithClock allows deterministic timestamps in tests.
func NewRoomServiceWithClock(rooms RoomRepository, quizzes QuizRepository, presence PresenceTracker, events broadcast.Publisher, opts Options, logger *zap.Logger, now func() time.Time) *RoomService {
	defaults := DefaultOptions()
	if opts.CodeLength <= 0 {
		opts.CodeLength = defaults.CodeLength
	}
	if opts.DefaultMaxParticipants <= 0 {
		opts.DefaultMaxParticipants = defaults.DefaultMaxParticipants
	}
	if opts.DefaultTimeLimit <= 0 {
		opts.DefaultTimeLimit = defaults.DefaultTimeLimit
	}
	if opts.Scoring == (scoring.Rules{}) {
		opts.Scoring = defaults.Scoring
	}
	return &RoomService{
		rooms:    rooms,
		quizzes:  quizzes,
		presence: presence,
		events:   events,
		engine:   scoring.NewEngine(opts.Scoring),
		opts:     opts,
		logger:   logger,
		now:      now,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateRoomInput describes a new room.
type CreateRoomInput struct {
	TenantID          string
	Name              string
	QuizID            string
	HostID            string
	MaxParticipants   int
	IsPublic          bool
	Settings          map[string]any
	QuestionTimeLimit int
}

// CreateRoom registers a waiting room under a fresh unique code.
func (s *RoomService) CreateRoom(ctx context.Context, in CreateRoomInput) (domain.Room, error) {
	if in.QuizID == "" {
		return domain.Room{}, domain.Validation("quiz id is required")
	}
	if in.HostID == "" {
		return domain.Room{}, domain.Validation("host id is required")
	}
	if in.MaxParticipants == 0 {
		in.MaxParticipants = s.opts.DefaultMaxParticipants
	}
	if in.MaxParticipants < domain.MinParticipants {
		return domain.Room{}, domain.Validation("max participants must be at least 2")
	}
	if in.QuestionTimeLimit == 0 {
		in.QuestionTimeLimit = s.opts.DefaultTimeLimit
	}
	if in.QuestionTimeLimit < 0 {
		return domain.Room{}, domain.Validation("question time limit must be positive")
	}

	quiz, err := s.quizzes.GetQuiz(ctx, in.QuizID)
	if err != nil {
		return domain.Room{}, err
	}
	if len(quiz.Questions) == 0 {
		return domain.Room{}, domain.Validation("quiz has no questions")
	}

	for {
		code, err := s.uniqueCode(ctx)
		if err != nil {
			return domain.Room{}, err
		}
		now := s.now()
		name := strings.TrimSpace(in.Name)
		if name == "" {
			name = quiz.Title
		}
		if name == "" {
			name = "Room " + code
		}
		room := domain.Room{
			ID:                uuid.NewString(),
			TenantID:          in.TenantID,
			Code:              code,
			Name:              name,
			QuizID:            quiz.ID,
			HostID:            in.HostID,
			MaxParticipants:   in.MaxParticipants,
			Status:            domain.RoomWaiting,
			TotalQuestions:    len(quiz.Questions),
			QuestionTimeLimit: in.QuestionTimeLimit,
			IsPublic:          in.IsPublic,
			Settings:          in.Settings,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		err = s.rooms.CreateRoom(ctx, room)
		if errors.Is(err, domain.ErrRoomCodeTaken) {
			// Lost a race for the code; draw again.
			continue
		}
		if err != nil {
			return domain.Room{}, err
		}
		s.logger.Info("room created",
			zap.String("room_id", room.ID),
			zap.String("code", room.Code),
			zap.String("quiz_id", room.QuizID),
			zap.String("host_id", room.HostID),
		)
		return room, nil
	}
}

// uniqueCode draws random codes until one is not in use. There is no retry cap.
func (s *RoomService) uniqueCode(ctx context.Context) (string, error) {
	for {
		code := s.randomCode()
		exists, err := s.rooms.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
}

func (s *RoomService) randomCode() string {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	b := make([]byte, s.opts.CodeLength)
	for i := range b {
		b[i] = codeAlphabet[s.rnd.Intn(len(codeAlphabet))]
	}
	return string(b)
}

func (s *RoomService) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	return s.rooms.GetRoom(ctx, roomID)
}

// GetRoomByCode looks a room up by its code, ignoring case.
func (s *RoomService) GetRoomByCode(ctx context.Context, code string) (domain.Room, error) {
	return s.rooms.GetRoomByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

// ListPublicRooms returns public rooms still waiting for players.
func (s *RoomService) ListPublicRooms(ctx context.Context, tenantID string) ([]domain.Room, error) {
	return s.rooms.ListRooms(ctx, domain.RoomFilter{TenantID: tenantID, Public: true, Status: domain.RoomWaiting})
}

// ListAvailableRooms returns public waiting rooms that still have a free seat.
func (s *RoomService) ListAvailableRooms(ctx context.Context, tenantID string) ([]domain.Room, error) {
	return s.rooms.ListRooms(ctx, domain.RoomFilter{TenantID: tenantID, Public: true, Status: domain.RoomWaiting, Available: true})
}

// RoomState is a room together with its participants and live connections.
type RoomState struct {
	Room         domain.Room          `json:"room"`
	Participants []domain.Participant `json:"participants"`
	Online       []string             `json:"online"`
}

func (s *RoomService) RoomState(ctx context.Context, roomID string) (RoomState, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return RoomState{}, err
	}
	participants, err := s.rooms.ListParticipants(ctx, roomID)
	if err != nil {
		return RoomState{}, err
	}
	domain.SortStandings(participants)
	online, err := s.presence.Online(ctx, roomID)
	if err != nil {
		return RoomState{}, err
	}
	return RoomState{Room: room, Participants: participants, Online: online}, nil
}

// DeleteRoom removes a room with everything it owns.
func (s *RoomService) DeleteRoom(ctx context.Context, roomID, hostID string) error {
	room, err := s.hostedRoom(ctx, roomID, hostID)
	if err != nil {
		return err
	}
	if err := s.rooms.DeleteRoom(ctx, room.ID); err != nil {
		return err
	}
	s.logger.Info("room deleted", zap.String("room_id", room.ID), zap.String("code", room.Code))
	return nil
}

func (s *RoomService) hostedRoom(ctx context.Context, roomID, hostID string) (domain.Room, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return domain.Room{}, err
	}
	if room.HostID != hostID {
		return domain.Room{}, domain.ErrNotHost
	}
	return room, nil
}

func (s *RoomService) activeCount(ctx context.Context, roomID string) (int, []domain.Participant, error) {
	participants, err := s.rooms.ListParticipants(ctx, roomID)
	if err != nil {
		return 0, nil, err
	}
	return domain.CountActive(participants), participants, nil
}

// publish hands an event to the transport. State is already committed, so a
// delivery failure is logged rather than returned.
func (s *RoomService) publish(ctx context.Context, event broadcast.Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("publish event failed",
			zap.String("event", event.Name),
			zap.String("room_id", event.RoomID),
			zap.Error(err),
		)
	}
}

func (s *RoomService) publishRoomUpdated(ctx context.Context, room domain.Room, updateType string, data map[string]any) {
	active, _, err := s.activeCount(ctx, room.ID)
	if err != nil {
		s.logger.Warn("count participants failed", zap.String("room_id", room.ID), zap.Error(err))
	}
	s.publish(ctx, broadcast.RoomUpdated(room, active, updateType, data, s.now()))
}
