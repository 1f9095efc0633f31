package transport

import (
	"context"
	"sync"
	"time"
)

// Keep-alive defaults.
const (
	DefaultPingInterval   = 15 * time.Second
	DefaultPongTimeout    = 5 * time.Second
	DefaultMaxMissedPongs = 3
)

// KeepAliveConfig configures connection liveness pings.
type KeepAliveConfig struct {
	// PingInterval is the time between pings.
	PingInterval time.Duration

	// PongTimeout is how long a ping may go unanswered before it counts
	// as missed.
	PongTimeout time.Duration

	// MaxMissedPongs consecutive misses declare the peer dead.
	MaxMissedPongs int
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

func (c KeepAliveConfig) withDefaults() KeepAliveConfig {
	def := DefaultKeepAliveConfig()
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = def.PongTimeout
	}
	if c.MaxMissedPongs <= 0 {
		c.MaxMissedPongs = def.MaxMissedPongs
	}
	return c
}

// DetectionDelay is the worst case time to notice a dead peer.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return time.Duration(c.MaxMissedPongs)*c.PingInterval + c.PongTimeout
}

// KeepAlive pings a peer on a fixed interval and calls onTimeout once
// when too many pings in a row go unanswered.
type KeepAlive struct {
	config    KeepAliveConfig
	send      func(seq uint32) error
	onTimeout func()

	mu       sync.Mutex
	seq      uint32
	inFlight *ping
	missed   int
	latency  time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

type ping struct {
	seq    uint32
	sentAt time.Time
}

// NewKeepAlive creates a keep-alive monitor. Zero config fields take
// their defaults. send transmits one ping; onTimeout may be nil.
func NewKeepAlive(config KeepAliveConfig, send func(seq uint32) error, onTimeout func()) *KeepAlive {
	return &KeepAlive{
		config:    config.withDefaults(),
		send:      send,
		onTimeout: onTimeout,
		stop:      make(chan struct{}),
	}
}

// Start pings in the background until ctx is done, Stop is called or
// the peer times out.
func (ka *KeepAlive) Start(ctx context.Context) {
	go ka.run(ctx)
}

// Stop ends the ping loop. Safe to call more than once.
func (ka *KeepAlive) Stop() {
	ka.stopOnce.Do(func() { close(ka.stop) })
}

// PongReceived answers the outstanding ping if seq matches it. Late pongs
// for pings already counted as missed are ignored.
func (ka *KeepAlive) PongReceived(seq uint32) {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if ka.inFlight == nil || ka.inFlight.seq != seq {
		return
	}
	ka.latency = time.Since(ka.inFlight.sentAt)
	ka.inFlight = nil
	ka.missed = 0
}

// LastLatency returns the round trip time of the last answered ping.
func (ka *KeepAlive) LastLatency() time.Duration {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.latency
}

func (ka *KeepAlive) run(ctx context.Context) {
	ticker := time.NewTicker(ka.config.PingInterval)
	defer ticker.Stop()

	ka.sendNext()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ka.stop:
			return
		case <-ticker.C:
		}

		if ka.expired() {
			if ka.onTimeout != nil {
				ka.onTimeout()
			}
			return
		}
		ka.sendNext()
	}
}

// expired counts a timed-out ping as missed and reports whether the
// miss limit is reached.
func (ka *KeepAlive) expired() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if p := ka.inFlight; p != nil && time.Since(p.sentAt) >= ka.config.PongTimeout {
		ka.missed++
		ka.inFlight = nil
	}
	return ka.missed >= ka.config.MaxMissedPongs
}

func (ka *KeepAlive) sendNext() {
	ka.mu.Lock()
	ka.seq++
	p := &ping{seq: ka.seq, sentAt: time.Now()}
	ka.inFlight = p
	ka.mu.Unlock()

	// A send failure surfaces as a missed pong.
	_ = ka.send(p.seq)
}
