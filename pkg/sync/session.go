package sync

import "errors"

var (
	// ErrNotAuthenticated is returned by Start for a session with no token.
	ErrNotAuthenticated = errors.New("sync: session not authenticated")

	// ErrConnectionUnavailable is reported through the degraded callback once
	// the reconnect budget is exhausted. The supervisor keeps retrying at the
	// maximum backoff interval regardless.
	ErrConnectionUnavailable = errors.New("sync: connection unavailable")

	// ErrNotConnected is returned by Emit when no connection is open.
	ErrNotConnected = errors.New("sync: not connected")

	errAlreadyBound = errors.New("sync: event router already bound")
)

// Session identifies one authenticated user. It is created at login and
// destroyed at logout; its lifetime drives the supervisor's connection.
type Session struct {
	Token    string
	TenantID string
}

// Authenticated reports whether the session carries a token.
func (s Session) Authenticated() bool { return s.Token != "" }

// Status is the connection state of a supervisor.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusOpen         Status = "open"
	StatusReconnecting Status = "reconnecting"
	StatusClosed       Status = "closed"
)
