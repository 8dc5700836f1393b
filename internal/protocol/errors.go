package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrUnknownType     = "E_UNKNOWN_TYPE"
	ErrAuth            = "E_AUTH"

	// Rule/action layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrNoPermission  = "E_NO_PERMISSION"
	ErrNoResource    = "E_NO_RESOURCE"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrRateLimit     = "E_RATE_LIMIT"
	ErrConflict      = "E_CONFLICT"
	ErrStale         = "E_STALE"
	ErrNotFound      = "E_NOT_FOUND"
	ErrInternal      = "E_INTERNAL"

	// Conflicts with a dedicated code.
	ErrAlreadyQueued    = "E_ALREADY_QUEUED"
	ErrPartyFull        = "E_PARTY_FULL"
	ErrAlreadyInParty   = "E_ALREADY_IN_PARTY"
	ErrTradeActive      = "E_TRADE_ACTIVE"
	ErrAlreadyGuilded   = "E_ALREADY_GUILDED"
	ErrNameTaken        = "E_NAME_TAKEN"
	ErrDuplicateRequest = "E_DUPLICATE_REQUEST"
	ErrAlreadyFriends   = "E_ALREADY_FRIENDS"
	ErrDuplicateInvite  = "E_DUPLICATE_INVITE"
	ErrUsernameTaken    = "E_USERNAME_TAKEN"
	ErrMovementRejected = "E_MOVEMENT_REJECTED"
	ErrTradeOutOfRange  = "E_TRADE_OUT_OF_RANGE"
	ErrQueueTypeUnknown = "E_QUEUE_TYPE_UNKNOWN"
	ErrSessionReplaced  = "E_SESSION_REPLACED"
	ErrSlowConsumer     = "E_SLOW_CONSUMER"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:  {},
	ErrUnknownType:      {},
	ErrAuth:             {},
	ErrBadRequest:       {},
	ErrNoPermission:     {},
	ErrNoResource:       {},
	ErrInvalidTarget:    {},
	ErrRateLimit:        {},
	ErrConflict:         {},
	ErrStale:            {},
	ErrNotFound:         {},
	ErrInternal:         {},
	ErrAlreadyQueued:    {},
	ErrPartyFull:        {},
	ErrAlreadyInParty:   {},
	ErrTradeActive:      {},
	ErrAlreadyGuilded:   {},
	ErrNameTaken:        {},
	ErrDuplicateRequest: {},
	ErrAlreadyFriends:   {},
	ErrDuplicateInvite:  {},
	ErrUsernameTaken:    {},
	ErrMovementRejected: {},
	ErrTradeOutOfRange:  {},
	ErrQueueTypeUnknown: {},
	ErrSessionReplaced:  {},
	ErrSlowConsumer:     {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
