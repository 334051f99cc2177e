package gateway

import (
	"context"
	"errors"

	"github.com/wanderparty/tripchat/pkg/internal/models"
)

// Transport dials the bidirectional event channel. The production
// implementation speaks websocket; tests plug in fakes.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

// Conn is one established channel.
type Conn interface {
	Send(ev models.Event) error
	Receive() (models.Event, error)
	Close() error
}

var (
	// ErrUnauthorized marks an authentication failure. It is never
	// retried: the session goes straight to the error state.
	ErrUnauthorized = errors.New("gateway: unauthorized")

	// ErrConnectTimeout marks a dial attempt that outlived the configured
	// connect timeout.
	ErrConnectTimeout = errors.New("gateway: connect timed out")

	// ErrNotConnected is returned synchronously when sending without an
	// established channel.
	ErrNotConnected = errors.New("gateway: not connected")
)
