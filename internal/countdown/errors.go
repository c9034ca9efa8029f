// internal/countdown/errors.go
package countdown

import "errors"

// Precondition failures callers surface to players verbatim. These are
// expected game events, distinct from storage or serialization errors.
var (
	ErrLobbyExists      = errors.New("a lobby is already open in this channel")
	ErrGameActive       = errors.New("a game is already active in this channel")
	ErrNoLobby          = errors.New("no open lobby in this channel")
	ErrNoActiveGame     = errors.New("no active game in this channel")
	ErrTimeUp           = errors.New("time is up for this round")
	ErrAlreadySubmitted = errors.New("answer already submitted this round")
	ErrNotHost          = errors.New("only the lobby host can do that")
	ErrBadSettings      = errors.New("invalid lobby settings")
)
