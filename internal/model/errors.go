package model

import (
	"errors"

	"realmsync.io/internal/protocol"
)

// Kind classifies errors for the wire and for logging.
type Kind int

const (
	KindAuth Kind = iota + 1
	KindValidation
	KindConflict
	KindState
	KindPermission
	KindRateLimit
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindState:
		return "state"
	case KindPermission:
		return "permission"
	case KindRateLimit:
		return "rate_limit"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is returned by every component operation that is rejected.
// Two errors match under errors.Is when their codes are equal.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newErr(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func AuthError(msg string) *Error { return newErr(KindAuth, protocol.ErrAuth, msg) }

func ValidationError(msg string) *Error { return newErr(KindValidation, protocol.ErrBadRequest, msg) }

func ConflictError(code, msg string) *Error { return newErr(KindConflict, code, msg) }

func StateError(code, msg string) *Error { return newErr(KindState, code, msg) }

func PermissionError(msg string) *Error { return newErr(KindPermission, protocol.ErrNoPermission, msg) }

func RateLimitError(msg string) *Error { return newErr(KindRateLimit, protocol.ErrRateLimit, msg) }

func NotFound(msg string) *Error { return StateError(protocol.ErrNotFound, msg) }

func InvalidTarget(msg string) *Error { return newErr(KindValidation, protocol.ErrInvalidTarget, msg) }

// Sentinels for errors.Is checks.
var (
	ErrAuth             = AuthError("")
	ErrValidation       = ValidationError("")
	ErrNotFound         = NotFound("")
	ErrStale            = StateError(protocol.ErrStale, "")
	ErrInvalidTarget    = InvalidTarget("")
	ErrPermission       = PermissionError("")
	ErrRateLimited      = RateLimitError("")
	ErrAlreadyQueued    = ConflictError(protocol.ErrAlreadyQueued, "")
	ErrPartyFull        = ConflictError(protocol.ErrPartyFull, "")
	ErrAlreadyInParty   = ConflictError(protocol.ErrAlreadyInParty, "")
	ErrTradeActive      = ConflictError(protocol.ErrTradeActive, "")
	ErrAlreadyGuilded   = ConflictError(protocol.ErrAlreadyGuilded, "")
	ErrNameTaken        = ConflictError(protocol.ErrNameTaken, "")
	ErrDuplicateRequest = ConflictError(protocol.ErrDuplicateRequest, "")
	ErrDuplicateInvite  = ConflictError(protocol.ErrDuplicateInvite, "")
	ErrUsernameTaken    = ConflictError(protocol.ErrUsernameTaken, "")
	ErrMovement         = newErr(KindValidation, protocol.ErrMovementRejected, "")
	ErrOutOfRange       = newErr(KindValidation, protocol.ErrTradeOutOfRange, "")
	ErrQueueType        = newErr(KindValidation, protocol.ErrQueueTypeUnknown, "")
	ErrNoResource       = newErr(KindState, protocol.ErrNoResource, "")

	// ErrPlayerNotFound is returned by stores for unknown players and accounts.
	ErrPlayerNotFound = errors.New("player not found")
)

// Wrap returns sentinel with a concrete message while keeping errors.Is matching.
func Wrap(sentinel *Error, msg string) *Error {
	return newErr(sentinel.Kind, sentinel.Code, msg)
}

// AsError extracts the typed error, mapping anything else to an internal error.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newErr(KindInternal, protocol.ErrInternal, "internal error")
}
