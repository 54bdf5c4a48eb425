package arena

import "errors"

// Arena errors
var (
	ErrNotJoined                = errors.New("participant has not joined the arena")
	ErrAlreadyJoined            = errors.New("participant already joined the arena")
	ErrInsufficientParticipants = errors.New("not enough participants")
	ErrAuthExpired              = errors.New("media service authorization expired")
	ErrAlreadyCompleted         = errors.New("challenge already completed")
	ErrStoreUnavailable         = errors.New("arena store unavailable")
	ErrAdminOnly                = errors.New("operation restricted to administrators")
	ErrVersionConflict          = errors.New("arena state was modified concurrently")

	ErrTeamsFormed       = errors.New("teams have already been formed")
	ErrTeamsNotFormed    = errors.New("teams have not been formed yet")
	ErrAlreadyActive     = errors.New("arena is already active")
	ErrInvalidTeamSize   = errors.New("invalid team size")
	ErrNoActiveChallenge = errors.New("no active challenge")
	ErrChallengeExpired  = errors.New("challenge has expired")
	ErrAccountNotLinked  = errors.New("no linked media account")
	ErrEmptyCatalog      = errors.New("challenge catalog is empty")
)

// Validation outcomes that are results, not errors.
const (
	ReasonNoEventsInWindow  = "no watch events in window"
	ReasonNoQualifyingEvent = "no qualifying watch event"
)
