package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/smartbulb/smartbulb-go/pkg/log"
	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// ErrConnectionClosed is returned by operations on a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// ErrServerRunning is returned by Start on a started server.
var ErrServerRunning = errors.New("server already running")

const maxAcceptDelay = time.Second

// ServerConfig configures a TCP server.
type ServerConfig struct {
	// Address to listen on, e.g. ":4841" or "127.0.0.1:0".
	Address string

	// MaxMessageSize caps frame payloads. Zero selects DefaultMaxMessageSize.
	MaxMessageSize uint32

	// MaxConnections caps concurrent connections. Zero means unlimited.
	MaxConnections int

	// Logger receives frame, state and control events. Optional.
	Logger log.Logger

	OnConnect    ConnectHandler
	OnMessage    MessageHandler
	OnDisconnect DisconnectHandler

	// OnError reports accept and read failures. conn is nil for accept
	// errors.
	OnError func(conn *ServerConn, err error)
}

// Server accepts TCP connections from clients.
type Server struct {
	config   ServerConfig
	listener net.Listener
	conns    connSet

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a server. Start must be called to begin accepting.
func NewServer(config ServerConfig) *Server {
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	return &Server{config: config, conns: connSet{m: make(map[*ServerConn]struct{})}}
}

// Start listens on the configured address and begins accepting connections.
// Cancelling ctx stops in-flight reads but not the listener; call Stop.
func (s *Server) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerRunning
	}
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("listen %s: %w", s.config.Address, err)
	}
	s.listener = ln
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.serve()
	return nil
}

// Stop closes the listener and every connection, then waits for the
// connection goroutines to exit. Safe to call more than once.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()
	err := s.listener.Close()
	s.conns.closeAll()
	s.wg.Wait()
	return err
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	return s.conns.len()
}

func (s *Server) serve() {
	defer s.wg.Done()

	var delay time.Duration
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}
			s.reportError(nil, fmt.Errorf("accept: %w", err))
			delay = min(max(2*delay, 5*time.Millisecond), maxAcceptDelay)
			time.Sleep(delay)
			continue
		}
		delay = 0

		if limit := s.config.MaxConnections; limit > 0 && s.conns.len() >= limit {
			s.reportError(nil, fmt.Errorf("rejected %s: connection limit %d reached", nc.RemoteAddr(), limit))
			nc.Close()
			continue
		}

		c := s.newConn(nc)
		s.conns.add(c)
		s.wg.Add(1)
		go s.run(c)
	}
}

func (s *Server) newConn(nc net.Conn) *ServerConn {
	c := &ServerConn{
		id:     uuid.NewString(),
		nc:     nc,
		remote: nc.RemoteAddr(),
		framer: NewFramer(nc, s.config.MaxMessageSize),
		server: s,
		closed: make(chan struct{}),
	}
	if s.config.Logger != nil {
		c.framer.SetLogger(s.config.Logger, c.id, log.RoleServer)
	}
	return c
}

// run owns one connection from registration to OnDisconnect.
func (s *Server) run(c *ServerConn) {
	defer s.wg.Done()

	s.logState(c, "", "CONNECTED")
	if s.config.OnConnect != nil {
		s.config.OnConnect(c)
	}

	c.readLoop()
	c.Close()
	s.conns.remove(c)

	s.logState(c, "CONNECTED", "DISCONNECTED")
	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(c)
	}
}

func (s *Server) logState(c *ServerConn, from, to string) {
	if s.config.Logger == nil {
		return
	}
	s.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		LocalRole:    log.RoleServer,
		RemoteAddr:   c.remote.String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: from,
			NewState: to,
		},
	})
}

func (s *Server) reportError(c *ServerConn, err error) {
	if s.config.OnError != nil {
		s.config.OnError(c, err)
	}
}

type connSet struct {
	mu sync.RWMutex
	m  map[*ServerConn]struct{}
}

func (cs *connSet) add(c *ServerConn) {
	cs.mu.Lock()
	cs.m[c] = struct{}{}
	cs.mu.Unlock()
}

func (cs *connSet) remove(c *ServerConn) {
	cs.mu.Lock()
	delete(cs.m, c)
	cs.mu.Unlock()
}

func (cs *connSet) len() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.m)
}

func (cs *connSet) closeAll() {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	for c := range cs.m {
		c.Close()
	}
}

// ServerConn is the server side of one client connection.
type ServerConn struct {
	id     string
	nc     net.Conn
	remote net.Addr
	framer *Framer
	server *Server

	closed    chan struct{}
	closeOnce sync.Once
}

// RemoteAddr returns the client's address.
func (c *ServerConn) RemoteAddr() net.Addr { return c.remote }

// ConnID returns the unique connection identifier.
func (c *ServerConn) ConnID() string { return c.id }

// Done is closed when the connection closes.
func (c *ServerConn) Done() <-chan struct{} { return c.closed }

// Send writes one frame to the client.
func (c *ServerConn) Send(data []byte) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}
	return c.framer.WriteFrame(data)
}

// Close closes the connection. Safe to call more than once.
func (c *ServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.nc.Close()
	})
	return err
}

func (c *ServerConn) readLoop() {
	for {
		data, err := c.framer.ReadFrame()
		if err != nil {
			if !c.stopping() && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) {
				c.server.reportError(c, err)
			}
			return
		}

		if ctrl, ok := decodeControl(data); ok {
			if stop := c.control(ctrl); stop {
				return
			}
			continue
		}
		if h := c.server.config.OnMessage; h != nil {
			h(c, data)
		}
	}
}

func (c *ServerConn) stopping() bool {
	select {
	case <-c.closed:
		return true
	case <-c.server.ctx.Done():
		return true
	default:
		return false
	}
}

func decodeControl(data []byte) (*wire.ControlMessage, bool) {
	if k, err := wire.PeekKind(data); err != nil || k != wire.KindControl {
		return nil, false
	}
	msg, err := wire.DecodeControlMessage(data)
	return msg, err == nil
}

// control answers a ping with a pong and a close with a close ack. It
// reports whether the connection should stop reading.
func (c *ServerConn) control(msg *wire.ControlMessage) bool {
	logger := c.server.config.Logger
	logControl(logger, c.id, log.RoleServer, msg, log.DirectionIn)

	var reply *wire.ControlMessage
	switch msg.Type {
	case wire.ControlPing:
		reply = &wire.ControlMessage{Type: wire.ControlPong, Sequence: msg.Sequence}
	case wire.ControlClose:
		reply = &wire.ControlMessage{Type: wire.ControlClose}
	default:
		return false
	}
	if data, err := wire.EncodeControlMessage(reply); err == nil && c.Send(data) == nil {
		logControl(logger, c.id, log.RoleServer, reply, log.DirectionOut)
	}
	return msg.Type == wire.ControlClose
}

var controlLogTypes = map[wire.ControlMessageType]log.ControlMsgType{
	wire.ControlPing:  log.ControlMsgPing,
	wire.ControlPong:  log.ControlMsgPong,
	wire.ControlClose: log.ControlMsgClose,
}

func logControl(logger log.Logger, connID string, role log.Role, msg *wire.ControlMessage, dir log.Direction) {
	if logger == nil {
		return
	}
	typ, ok := controlLogTypes[msg.Type]
	if !ok {
		return
	}
	logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		LocalRole:    role,
		ControlMsg:   &log.ControlMsgEvent{Type: typ, Sequence: msg.Sequence},
	})
}
