package domain

import "errors"

// Error kinds. Every concrete error below unwraps to exactly one of them so
// transports can map failures with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
	ErrPrecondition = errors.New("precondition failed")
)

// Error is a domain failure tagged with its kind.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Validation builds an ad-hoc validation error for malformed input.
func Validation(msg string) error {
	return newError(ErrValidation, msg)
}

var (
	// ErrRoomNotFound is returned when a room id or code is unknown.
	ErrRoomNotFound = newError(ErrNotFound, "room not found")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = newError(ErrNotFound, "participant not found in room")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = newError(ErrNotFound, "quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = newError(ErrNotFound, "question not found")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = newError(ErrValidation, "option not found")

	ErrRoomCodeTaken   = newError(ErrConflict, "room code already in use")
	ErrAlreadyJoined   = newError(ErrConflict, "user already joined this room")
	ErrRoomFull        = newError(ErrConflict, "room is full")
	ErrDuplicateAnswer = newError(ErrConflict, "question already answered")
	ErrRoomStarted     = newError(ErrConflict, "room already started")

	ErrNotEnoughParticipants = newError(ErrPrecondition, "not enough participants to start")
	ErrTooManyParticipants   = newError(ErrPrecondition, "too many participants to start")
	ErrRoomNotWaiting        = newError(ErrPrecondition, "room is not accepting participants")
	ErrRoomNotInProgress     = newError(ErrPrecondition, "room is not in progress")
	ErrRoomNotCompleted      = newError(ErrPrecondition, "room is not completed")
	ErrRoomClosed            = newError(ErrPrecondition, "room is already completed or cancelled")
	ErrQuestionNotActive     = newError(ErrPrecondition, "question is not the active question")
	ErrParticipantInactive   = newError(ErrPrecondition, "participant is not playing")
	ErrNotHost               = newError(ErrPrecondition, "only the host can do this")
)
