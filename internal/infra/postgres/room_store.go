package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-room-service/internal/domain"
)

const uniqueViolation = "23505"

var activeStatuses = []string{
	string(domain.ParticipantJoined),
	string(domain.ParticipantReady),
	string(domain.ParticipantPlaying),
}

type roomRow struct {
	bun.BaseModel `bun:"table:quiz_rooms,alias:r"`

	ID                string         `bun:"id,pk"`
	TenantID          string         `bun:"tenant_id"`
	Code              string         `bun:"code"`
	Name              string         `bun:"name"`
	QuizID            string         `bun:"quiz_id"`
	HostID            string         `bun:"host_id"`
	MaxParticipants   int            `bun:"max_participants"`
	Status            string         `bun:"status"`
	CurrentQuestion   int            `bun:"current_question"`
	TotalQuestions    int            `bun:"total_questions"`
	QuestionStartedAt *time.Time     `bun:"question_started_at"`
	QuestionTimeLimit int            `bun:"question_time_limit"`
	IsPublic          bool           `bun:"is_public"`
	Settings          map[string]any `bun:"settings,type:jsonb"`
	StartedAt         *time.Time     `bun:"started_at"`
	EndedAt           *time.Time     `bun:"ended_at"`
	CreatedAt         time.Time      `bun:"created_at"`
	UpdatedAt         time.Time      `bun:"updated_at"`
}

func roomRowFrom(r domain.Room) *roomRow {
	return &roomRow{
		ID:                r.ID,
		TenantID:          r.TenantID,
		Code:              r.Code,
		Name:              r.Name,
		QuizID:            r.QuizID,
		HostID:            r.HostID,
		MaxParticipants:   r.MaxParticipants,
		Status:            string(r.Status),
		CurrentQuestion:   r.CurrentQuestion,
		TotalQuestions:    r.TotalQuestions,
		QuestionStartedAt: r.QuestionStartedAt,
		QuestionTimeLimit: r.QuestionTimeLimit,
		IsPublic:          r.IsPublic,
		Settings:          r.Settings,
		StartedAt:         r.StartedAt,
		EndedAt:           r.EndedAt,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func (r *roomRow) domain() domain.Room {
	return domain.Room{
		ID:                r.ID,
		TenantID:          r.TenantID,
		Code:              r.Code,
		Name:              r.Name,
		QuizID:            r.QuizID,
		HostID:            r.HostID,
		MaxParticipants:   r.MaxParticipants,
		Status:            domain.RoomStatus(r.Status),
		CurrentQuestion:   r.CurrentQuestion,
		TotalQuestions:    r.TotalQuestions,
		QuestionStartedAt: r.QuestionStartedAt,
		QuestionTimeLimit: r.QuestionTimeLimit,
		IsPublic:          r.IsPublic,
		Settings:          r.Settings,
		StartedAt:         r.StartedAt,
		EndedAt:           r.EndedAt,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

type participantRow struct {
	bun.BaseModel `bun:"table:quiz_room_participants,alias:p"`

	ID                  string     `bun:"id,pk"`
	TenantID            string     `bun:"tenant_id"`
	RoomID              string     `bun:"room_id"`
	UserID              string     `bun:"user_id"`
	DisplayName         string     `bun:"display_name"`
	TotalScore          int        `bun:"total_score"`
	CorrectAnswers      int        `bun:"correct_answers"`
	TotalQuestions      int        `bun:"total_questions"`
	Position            *int       `bun:"position"`
	AverageResponseTime *float64   `bun:"average_response_time"`
	SpeedBonus          int        `bun:"speed_bonus"`
	Status              string     `bun:"status"`
	JoinedAt            time.Time  `bun:"joined_at"`
	FinishedAt          *time.Time `bun:"finished_at"`
}

func participantRowFrom(p domain.Participant) *participantRow {
	return &participantRow{
		ID:                  p.ID,
		TenantID:            p.TenantID,
		RoomID:              p.RoomID,
		UserID:              p.UserID,
		DisplayName:         p.DisplayName,
		TotalScore:          p.TotalScore,
		CorrectAnswers:      p.CorrectAnswers,
		TotalQuestions:      p.TotalQuestions,
		Position:            p.Position,
		AverageResponseTime: p.AverageResponseTime,
		SpeedBonus:          p.SpeedBonus,
		Status:              string(p.Status),
		JoinedAt:            p.JoinedAt,
		FinishedAt:          p.FinishedAt,
	}
}

func (p *participantRow) domain() domain.Participant {
	return domain.Participant{
		ID:                  p.ID,
		TenantID:            p.TenantID,
		RoomID:              p.RoomID,
		UserID:              p.UserID,
		DisplayName:         p.DisplayName,
		TotalScore:          p.TotalScore,
		CorrectAnswers:      p.CorrectAnswers,
		TotalQuestions:      p.TotalQuestions,
		Position:            p.Position,
		AverageResponseTime: p.AverageResponseTime,
		SpeedBonus:          p.SpeedBonus,
		Status:              domain.ParticipantStatus(p.Status),
		JoinedAt:            p.JoinedAt,
		FinishedAt:          p.FinishedAt,
	}
}

type answerRow struct {
	bun.BaseModel `bun:"table:quiz_room_answers,alias:a"`

	ID             string    `bun:"id,pk"`
	TenantID       string    `bun:"tenant_id"`
	RoomID         string    `bun:"room_id"`
	ParticipantID  string    `bun:"participant_id"`
	QuestionID     string    `bun:"question_id"`
	QuestionNumber int       `bun:"question_number"`
	Answer         string    `bun:"answer"`
	IsCorrect      bool      `bun:"is_correct"`
	PointsEarned   int       `bun:"points_earned"`
	SpeedBonus     int       `bun:"speed_bonus"`
	ResponseTime   *float64  `bun:"response_time"`
	AnsweredAt     time.Time `bun:"answered_at"`
}

func answerRowFrom(a domain.Answer) *answerRow {
	return &answerRow{
		ID:             a.ID,
		TenantID:       a.TenantID,
		RoomID:         a.RoomID,
		ParticipantID:  a.ParticipantID,
		QuestionID:     a.QuestionID,
		QuestionNumber: a.QuestionNumber,
		Answer:         a.Answer,
		IsCorrect:      a.IsCorrect,
		PointsEarned:   a.PointsEarned,
		SpeedBonus:     a.SpeedBonus,
		ResponseTime:   a.ResponseTime,
		AnsweredAt:     a.AnsweredAt,
	}
}

func (a *answerRow) domain() domain.Answer {
	return domain.Answer{
		ID:             a.ID,
		TenantID:       a.TenantID,
		RoomID:         a.RoomID,
		ParticipantID:  a.ParticipantID,
		QuestionID:     a.QuestionID,
		QuestionNumber: a.QuestionNumber,
		Answer:         a.Answer,
		IsCorrect:      a.IsCorrect,
		PointsEarned:   a.PointsEarned,
		SpeedBonus:     a.SpeedBonus,
		ResponseTime:   a.ResponseTime,
		AnsweredAt:     a.AnsweredAt,
	}
}

// RoomStore persists rooms, participants and answers with bun. Read-modify-write
// operations lock the target row inside a transaction.
type RoomStore struct {
	db *bun.DB
}

func NewRoomStore(db *bun.DB) *RoomStore {
	return &RoomStore{db: db}
}

func (s *RoomStore) CreateRoom(ctx context.Context, room domain.Room) error {
	_, err := s.db.NewInsert().Model(roomRowFrom(room)).Exec(ctx)
	if isUniqueViolation(err) {
		return domain.ErrRoomCodeTaken
	}
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

func (s *RoomStore) CodeExists(ctx context.Context, code string) (bool, error) {
	return s.db.NewSelect().Model((*roomRow)(nil)).Where("code = ?", code).Exists(ctx)
}

func (s *RoomStore) GetRoom(ctx context.Context, id string) (domain.Room, error) {
	return getRoom(ctx, s.db.NewSelect().Where("r.id = ?", id))
}

func (s *RoomStore) GetRoomByCode(ctx context.Context, code string) (domain.Room, error) {
	return getRoom(ctx, s.db.NewSelect().Where("r.code = ?", code))
}

func getRoom(ctx context.Context, q *bun.SelectQuery) (domain.Room, error) {
	row := new(roomRow)
	err := q.Model(row).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("select room: %w", err)
	}
	return row.domain(), nil
}

func (s *RoomStore) ListRooms(ctx context.Context, filter domain.RoomFilter) ([]domain.Room, error) {
	var rows []roomRow
	q := s.db.NewSelect().Model(&rows)
	if filter.TenantID != "" {
		q = q.Where("r.tenant_id = ?", filter.TenantID)
	}
	if filter.Public {
		q = q.Where("r.is_public")
	}
	if filter.Status != "" {
		q = q.Where("r.status = ?", string(filter.Status))
	}
	if !filter.CreatedBefore.IsZero() {
		q = q.Where("r.created_at < ?", filter.CreatedBefore)
	}
	if filter.Available {
		q = q.Where("(SELECT count(*) FROM quiz_room_participants AS p WHERE p.room_id = r.id AND p.status IN (?)) < r.max_participants", bun.In(activeStatuses))
	}
	if err := q.OrderExpr("r.created_at DESC, r.id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	out := make([]domain.Room, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].domain())
	}
	return out, nil
}

func (s *RoomStore) UpdateRoom(ctx context.Context, id string, mutate func(*domain.Room) error) (domain.Room, error) {
	var updated domain.Room
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(roomRow)
		err := tx.NewSelect().Model(row).Where("r.id = ?", id).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		room := row.domain()
		if err := mutate(&room); err != nil {
			return err
		}
		if _, err := tx.NewUpdate().Model(roomRowFrom(room)).WherePK().Exec(ctx); err != nil {
			return err
		}
		updated = room
		return nil
	})
	return updated, err
}

func (s *RoomStore) TransitionRoom(ctx context.Context, id string, mutate func(*domain.Room, []domain.Participant) error) (domain.Room, []domain.Participant, error) {
	var (
		room         domain.Room
		participants []domain.Participant
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(roomRow)
		err := tx.NewSelect().Model(row).Where("r.id = ?", id).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		var rows []participantRow
		err = tx.NewSelect().Model(&rows).
			Where("p.room_id = ?", id).
			OrderExpr("p.joined_at ASC, p.id ASC").
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			return err
		}

		draft := row.domain()
		ps := make([]domain.Participant, 0, len(rows))
		for i := range rows {
			ps = append(ps, rows[i].domain())
		}
		if err := mutate(&draft, ps); err != nil {
			return err
		}

		if _, err := tx.NewUpdate().Model(roomRowFrom(draft)).WherePK().Exec(ctx); err != nil {
			return err
		}
		for _, p := range ps {
			res, err := tx.NewUpdate().Model(participantRowFrom(p)).
				WherePK().
				Where("room_id = ?", id).
				Exec(ctx)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return domain.ErrParticipantNotFound
			}
		}
		room, participants = draft, ps
		return nil
	})
	if err != nil {
		return domain.Room{}, nil, err
	}
	return room, participants, nil
}

func (s *RoomStore) DeleteRoom(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().Model((*roomRow)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (s *RoomStore) AddParticipant(ctx context.Context, p domain.Participant) (domain.Participant, error) {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		room := new(roomRow)
		err := tx.NewSelect().Model(room).Where("r.id = ?", p.RoomID).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		joined, err := tx.NewSelect().Model((*participantRow)(nil)).
			Where("room_id = ? AND user_id = ?", p.RoomID, p.UserID).
			Exists(ctx)
		if err != nil {
			return err
		}
		if joined {
			return domain.ErrAlreadyJoined
		}
		if domain.RoomStatus(room.Status) != domain.RoomWaiting {
			return domain.ErrRoomNotWaiting
		}
		active, err := tx.NewSelect().Model((*participantRow)(nil)).
			Where("room_id = ? AND status IN (?)", p.RoomID, bun.In(activeStatuses)).
			Count(ctx)
		if err != nil {
			return err
		}
		if active >= room.MaxParticipants {
			return domain.ErrRoomFull
		}
		_, err = tx.NewInsert().Model(participantRowFrom(p)).Exec(ctx)
		if isUniqueViolation(err) {
			return domain.ErrAlreadyJoined
		}
		return err
	})
	if err != nil {
		return domain.Participant{}, err
	}
	return p, nil
}

func (s *RoomStore) GetParticipant(ctx context.Context, id string) (domain.Participant, error) {
	return getParticipant(ctx, s.db, "p.id = ?", id)
}

func (s *RoomStore) FindParticipant(ctx context.Context, roomID, userID string) (domain.Participant, error) {
	return getParticipant(ctx, s.db, "p.room_id = ? AND p.user_id = ?", roomID, userID)
}

func getParticipant(ctx context.Context, db bun.IDB, where string, args ...interface{}) (domain.Participant, error) {
	row := new(participantRow)
	err := db.NewSelect().Model(row).Where(where, args...).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("select participant: %w", err)
	}
	return row.domain(), nil
}

func (s *RoomStore) ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	var rows []participantRow
	err := s.db.NewSelect().Model(&rows).
		Where("p.room_id = ?", roomID).
		OrderExpr("p.joined_at ASC, p.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	out := make([]domain.Participant, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].domain())
	}
	return out, nil
}

func (s *RoomStore) UpdateParticipant(ctx context.Context, id string, mutate func(*domain.Participant) error) (domain.Participant, error) {
	var updated domain.Participant
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(participantRow)
		err := tx.NewSelect().Model(row).Where("p.id = ?", id).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrParticipantNotFound
		}
		if err != nil {
			return err
		}
		p := row.domain()
		if err := mutate(&p); err != nil {
			return err
		}
		if _, err := tx.NewUpdate().Model(participantRowFrom(p)).WherePK().Exec(ctx); err != nil {
			return err
		}
		updated = p
		return nil
	})
	return updated, err
}

func (s *RoomStore) SetPositions(ctx context.Context, roomID string, positions map[string]int) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for id, pos := range positions {
			res, err := tx.NewUpdate().Model((*participantRow)(nil)).
				Set("position = ?", pos).
				Where("id = ? AND room_id = ?", id, roomID).
				Exec(ctx)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return domain.ErrParticipantNotFound
			}
		}
		return nil
	})
}

// RecordAnswer inserts the answer and folds it into the participant's
// counters with in-place increments, so concurrent answers never lose points.
func (s *RoomStore) RecordAnswer(ctx context.Context, a domain.Answer) (domain.Participant, error) {
	var updated domain.Participant
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// Shares the lock TransitionRoom and UpdateRoom take, so an answer
		// cannot land after the room moved on or completed.
		room := new(roomRow)
		err := tx.NewSelect().Model(room).Where("r.id = ?", a.RoomID).For("SHARE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		participant := new(participantRow)
		err = tx.NewSelect().Model(participant).Where("p.id = ? AND p.room_id = ?", a.ParticipantID, a.RoomID).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrParticipantNotFound
		}
		if err != nil {
			return err
		}
		if err := domain.CheckAnswerable(room.domain(), participant.domain(), a.QuestionNumber); err != nil {
			return err
		}

		_, err = tx.NewInsert().Model(answerRowFrom(a)).Exec(ctx)
		if isUniqueViolation(err) {
			return domain.ErrDuplicateAnswer
		}
		if err != nil {
			return err
		}

		correct := 0
		if a.IsCorrect {
			correct = 1
		}
		_, err = tx.NewUpdate().Model((*participantRow)(nil)).
			Set("total_score = total_score + ?", a.Awarded()).
			Set("speed_bonus = speed_bonus + ?", a.SpeedBonus).
			Set("correct_answers = correct_answers + ?", correct).
			Set("total_questions = total_questions + 1").
			Set("average_response_time = (SELECT ROUND(AVG(response_time)::numeric, 2)::double precision FROM quiz_room_answers WHERE participant_id = ?)", a.ParticipantID).
			Where("id = ?", a.ParticipantID).
			Exec(ctx)
		if err != nil {
			return err
		}
		updated, err = getParticipant(ctx, tx, "p.id = ?", a.ParticipantID)
		return err
	})
	if err != nil {
		return domain.Participant{}, err
	}
	return updated, nil
}

func (s *RoomStore) HasAnswered(ctx context.Context, participantID, questionID string) (bool, error) {
	return s.db.NewSelect().Model((*answerRow)(nil)).
		Where("participant_id = ? AND question_id = ?", participantID, questionID).
		Exists(ctx)
}

func (s *RoomStore) ListAnswers(ctx context.Context, participantID string) ([]domain.Answer, error) {
	var rows []answerRow
	err := s.db.NewSelect().Model(&rows).
		Where("a.participant_id = ?", participantID).
		OrderExpr("a.answered_at ASC, a.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	out := make([]domain.Answer, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].domain())
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation
}
