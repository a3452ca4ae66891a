package domain

import (
	"math"
	"sort"
	"time"
)

type RoomStatus string

const (
	RoomWaiting    RoomStatus = "waiting"
	RoomStarting   RoomStatus = "starting"
	RoomInProgress RoomStatus = "in_progress"
	RoomCompleted  RoomStatus = "completed"
	RoomCancelled  RoomStatus = "cancelled"
)

// Closed reports whether the room reached a terminal status.
func (s RoomStatus) Closed() bool {
	return s == RoomCompleted || s == RoomCancelled
}

type ParticipantStatus string

const (
	ParticipantJoined       ParticipantStatus = "joined"
	ParticipantReady        ParticipantStatus = "ready"
	ParticipantPlaying      ParticipantStatus = "playing"
	ParticipantFinished     ParticipantStatus = "finished"
	ParticipantDisconnected ParticipantStatus = "disconnected"
)

// Active reports whether the participant counts towards room capacity.
func (s ParticipantStatus) Active() bool {
	return s == ParticipantJoined || s == ParticipantReady || s == ParticipantPlaying
}

// Room is one multiplayer play-through of a quiz.
type Room struct {
	ID                string         `json:"id"`
	TenantID          string         `json:"tenant_id,omitempty"`
	Code              string         `json:"code"`
	Name              string         `json:"name"`
	QuizID            string         `json:"quiz_id"`
	HostID            string         `json:"host_id"`
	MaxParticipants   int            `json:"max_participants"`
	Status            RoomStatus     `json:"status"`
	CurrentQuestion   int            `json:"current_question"`
	TotalQuestions    int            `json:"total_questions"`
	QuestionStartedAt *time.Time     `json:"question_started_at,omitempty"`
	QuestionTimeLimit int            `json:"question_time_limit"`
	IsPublic          bool           `json:"is_public"`
	Settings          map[string]any `json:"settings,omitempty"`
	StartedAt         *time.Time     `json:"started_at,omitempty"`
	EndedAt           *time.Time     `json:"ended_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// CanStart reports whether the room may leave the waiting state given the
// number of active participants.
func (r Room) CanStart(active int) bool {
	return r.Status == RoomWaiting && r.participantBoundsOK(active)
}

func (r Room) participantBoundsOK(active int) bool {
	return active >= MinParticipants && active <= r.MaxParticipants
}

// CheckStartable explains why CanStart would be false. Status takes
// precedence over participant bounds.
func (r Room) CheckStartable(active int, allowStarting bool) error {
	switch {
	case r.Status == RoomWaiting:
	case r.Status == RoomStarting && allowStarting:
	case r.Status.Closed():
		return ErrRoomClosed
	default:
		return ErrRoomStarted
	}
	if active < MinParticipants {
		return ErrNotEnoughParticipants
	}
	if active > r.MaxParticipants {
		return ErrTooManyParticipants
	}
	return nil
}

// MinParticipants is the smallest number of active participants a room
// needs to start.
const MinParticipants = 2

// Participant is a user's membership and running score within one room.
type Participant struct {
	ID                  string            `json:"id"`
	TenantID            string            `json:"tenant_id,omitempty"`
	RoomID              string            `json:"room_id"`
	UserID              string            `json:"user_id"`
	DisplayName         string            `json:"display_name"`
	TotalScore          int               `json:"total_score"`
	CorrectAnswers      int               `json:"correct_answers"`
	TotalQuestions      int               `json:"total_questions"`
	Position            *int              `json:"position,omitempty"`
	AverageResponseTime *float64          `json:"average_response_time,omitempty"`
	SpeedBonus          int               `json:"speed_bonus"`
	Status              ParticipantStatus `json:"status"`
	JoinedAt            time.Time         `json:"joined_at"`
	FinishedAt          *time.Time        `json:"finished_at,omitempty"`
}

// Accuracy is the share of answered questions that were correct, in percent.
func (p Participant) Accuracy() float64 {
	if p.TotalQuestions == 0 {
		return 0
	}
	return Round2(float64(p.CorrectAnswers) * 100 / float64(p.TotalQuestions))
}

// Answer is one participant's response to one question of a room.
type Answer struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id,omitempty"`
	RoomID         string    `json:"room_id"`
	ParticipantID  string    `json:"participant_id"`
	QuestionID     string    `json:"question_id"`
	QuestionNumber int       `json:"question_number"`
	Answer         string    `json:"answer"`
	IsCorrect      bool      `json:"is_correct"`
	PointsEarned   int       `json:"points_earned"`
	SpeedBonus     int       `json:"speed_bonus"`
	ResponseTime   *float64  `json:"response_time,omitempty"`
	AnsweredAt     time.Time `json:"answered_at"`
}

// Awarded is what the answer adds to the participant's total score.
func (a Answer) Awarded() int {
	return a.PointsEarned + a.SpeedBonus
}

// RoomFilter narrows room listings.
type RoomFilter struct {
	TenantID string
	Public   bool
	Status   RoomStatus
	// Available additionally requires free capacity.
	Available     bool
	CreatedBefore time.Time
}

// AverageResponseTime is the arithmetic mean of all non-nil response times,
// rounded to two decimals; nil when there are none.
func AverageResponseTime(answers []Answer) *float64 {
	var sum float64
	var n int
	for _, a := range answers {
		if a.ResponseTime == nil {
			continue
		}
		sum += *a.ResponseTime
		n++
	}
	if n == 0 {
		return nil
	}
	avg := Round2(sum / float64(n))
	return &avg
}

// Round2 rounds to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// SortStandings orders participants by score desc, then average response time
// asc (missing times last). Join time and id make the order total.
func SortStandings(ps []Participant) {
	sort.SliceStable(ps, func(i, j int) bool {
		return standingLess(ps[i], ps[j])
	})
}

func standingLess(a, b Participant) bool {
	if a.TotalScore != b.TotalScore {
		return a.TotalScore > b.TotalScore
	}
	switch {
	case a.AverageResponseTime != nil && b.AverageResponseTime == nil:
		return true
	case a.AverageResponseTime == nil && b.AverageResponseTime != nil:
		return false
	case a.AverageResponseTime != nil && *a.AverageResponseTime != *b.AverageResponseTime:
		return *a.AverageResponseTime < *b.AverageResponseTime
	}
	if !a.JoinedAt.Equal(b.JoinedAt) {
		return a.JoinedAt.Before(b.JoinedAt)
	}
	return a.ID < b.ID
}

// CurrentRank is the competition rank of p among the room's participants:
// one plus the number of others with a strictly greater score.
func CurrentRank(p Participant, all []Participant) int {
	rank := 1
	for _, other := range all {
		if other.ID != p.ID && other.TotalScore > p.TotalScore {
			rank++
		}
	}
	return rank
}

// CountActive counts participants holding a seat in the room.
func CountActive(ps []Participant) int {
	n := 0
	for _, p := range ps {
		if p.Status.Active() {
			n++
		}
	}
	return n
}

// CheckAnswerable reports whether p may answer question number n of room
// right now.
func CheckAnswerable(room Room, p Participant, n int) error {
	if room.Status != RoomInProgress {
		return ErrRoomNotInProgress
	}
	if room.CurrentQuestion != n {
		return ErrQuestionNotActive
	}
	if !p.Status.Active() {
		return ErrParticipantInactive
	}
	return nil
}
