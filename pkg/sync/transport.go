package sync

import (
	"context"

	"github.com/logaxpapp/randc-client-sub001/pkg/model"
)

// Conn is one live push channel. Read blocks until the next envelope arrives
// or the channel dies; after Close, Read returns promptly with an error.
type Conn interface {
	Read() (model.Envelope, error)
	Emit(event string, payload any) error
	Close() error
}

// Dialer opens a push channel for an authenticated session. One Dial call is
// one connection attempt; the supervisor owns retries and backoff.
type Dialer interface {
	Dial(ctx context.Context, session Session) (Conn, error)
}
