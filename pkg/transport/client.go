package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smartbulb/smartbulb-go/pkg/log"
	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// DefaultConnectTimeout bounds Dial when ctx has no deadline.
const DefaultConnectTimeout = 10 * time.Second

// ClientConfig configures outgoing connections.
type ClientConfig struct {
	// MaxMessageSize caps frame payloads. Zero selects DefaultMaxMessageSize.
	MaxMessageSize uint32

	// ConnectTimeout applies when ctx carries no deadline.
	ConnectTimeout time.Duration

	// Logger receives frame and control events. Optional.
	Logger log.Logger
}

// Dial connects to a server at address (host:port).
func Dial(ctx context.Context, address string, config ClientConfig) (*ClientConn, error) {
	if _, ok := ctx.Deadline(); !ok {
		timeout := config.ConnectTimeout
		if timeout <= 0 {
			timeout = DefaultConnectTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	nc, err := (&net.Dialer{}).DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return newClientConn(nc, config), nil
}

func newClientConn(nc net.Conn, config ClientConfig) *ClientConn {
	c := &ClientConn{
		id:     uuid.NewString(),
		nc:     nc,
		framer: NewFramer(nc, config.MaxMessageSize),
		logger: config.Logger,
		closed: make(chan struct{}),
	}
	if c.logger != nil {
		c.framer.SetLogger(c.logger, c.id, log.RoleClient)
	}
	return c
}

// ClientConn is the client side of a connection. Receive may only be
// called from one goroutine at a time; Send is safe for concurrent use.
type ClientConn struct {
	id     string
	nc     net.Conn
	framer *Framer
	logger log.Logger

	readMu    sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
}

// ConnID returns the locally assigned connection identifier.
func (c *ClientConn) ConnID() string { return c.id }

// LocalAddr returns the local network address.
func (c *ClientConn) LocalAddr() net.Addr { return c.nc.LocalAddr() }

// RemoteAddr returns the server's address.
func (c *ClientConn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// Done is closed when the connection closes.
func (c *ClientConn) Done() <-chan struct{} { return c.closed }

func (c *ClientConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Send writes one frame to the server.
func (c *ClientConn) Send(data []byte) error {
	if c.isClosed() {
		return ErrConnectionClosed
	}
	return c.framer.WriteFrame(data)
}

// Receive reads one frame. A zero timeout blocks until a frame arrives
// or the connection closes.
func (c *ClientConn) Receive(timeout time.Duration) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if c.isClosed() {
		return nil, ErrConnectionClosed
	}
	if timeout > 0 {
		_ = c.nc.SetReadDeadline(time.Now().Add(timeout))
		defer c.nc.SetReadDeadline(time.Time{})
	}
	return c.framer.ReadFrame()
}

// Close closes the connection. Safe to call more than once.
func (c *ClientConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.nc.Close()
	})
	return err
}

// SendPing sends a ping carrying seq.
func (c *ClientConn) SendPing(seq uint32) error {
	return c.sendControl(wire.ControlPing, seq)
}

// SendClose asks the server to close the connection.
func (c *ClientConn) SendClose() error {
	return c.sendControl(wire.ControlClose, 0)
}

func (c *ClientConn) sendControl(typ wire.ControlMessageType, seq uint32) error {
	msg := &wire.ControlMessage{Type: typ, Sequence: seq}
	data, err := wire.EncodeControlMessage(msg)
	if err != nil {
		return err
	}
	if err := c.Send(data); err != nil {
		return err
	}
	logControl(c.logger, c.id, log.RoleClient, msg, log.DirectionOut)
	return nil
}
