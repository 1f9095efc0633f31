package subscription

import (
	"errors"
	"log/slog"
	"time"

	"github.com/smartbulb/smartbulb-go/pkg/log"
	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// Subscription errors.
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrTooManySubscriptions = errors.New("maximum subscriptions reached")
	ErrTooManyItems         = errors.New("maximum monitored items reached")
	ErrManagerClosed        = errors.New("subscription manager closed")
)

// Default limits and parameters.
const (
	DefaultMaxSubscriptions   = 100
	DefaultMaxItems           = 1000
	DefaultPublishingInterval = 1000 * time.Millisecond
	MinPublishingInterval     = 50 * time.Millisecond
)

// Config holds subscription manager configuration.
type Config struct {
	// MaxSubscriptions caps subscriptions per manager.
	MaxSubscriptions int

	// MaxItemsPerSubscription caps monitored items per subscription.
	MaxItemsPerSubscription int

	// Logger receives operational messages. Nil discards them.
	Logger *slog.Logger

	// ProtocolLogger receives subscription state events (optional).
	ProtocolLogger log.Logger

	// ConnectionID tags protocol log events.
	ConnectionID string
}

// DefaultConfig returns the default subscription configuration.
func DefaultConfig() Config {
	return Config{
		MaxSubscriptions:        DefaultMaxSubscriptions,
		MaxItemsPerSubscription: DefaultMaxItems,
	}
}

// Revise applies the server limits to requested parameters.
func Revise(p wire.SubscriptionParameters) wire.SubscriptionParameters {
	if p.PublishingInterval == 0 {
		p.PublishingInterval = uint32(DefaultPublishingInterval / time.Millisecond)
	}
	if min := uint32(MinPublishingInterval / time.Millisecond); p.PublishingInterval < min {
		p.PublishingInterval = min
	}
	if p.KeepAliveCount == 0 {
		p.KeepAliveCount = 1
	}
	if p.LifetimeCount < 3*p.KeepAliveCount {
		p.LifetimeCount = 3 * p.KeepAliveCount
	}
	return p
}

// ReviseQueueSize returns the queue depth used for a requested size.
func ReviseQueueSize(q uint32) uint32 {
	if q == 0 {
		return 1
	}
	return q
}

// StatusOf maps subscription errors to wire status codes.
func StatusOf(err error) wire.Status {
	switch {
	case err == nil:
		return wire.StatusGood
	case errors.Is(err, ErrSubscriptionNotFound):
		return wire.StatusBadSubscriptionIDInvalid
	case errors.Is(err, ErrTooManySubscriptions), errors.Is(err, ErrTooManyItems):
		return wire.StatusBadTooManyOperations
	case errors.Is(err, ErrManagerClosed):
		return wire.StatusBadConnectionClosed
	}
	return wire.StatusBadUnexpectedError
}
