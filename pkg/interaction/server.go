package interaction

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smartbulb/smartbulb-go/pkg/log"
	"github.com/smartbulb/smartbulb-go/pkg/model"
	"github.com/smartbulb/smartbulb-go/pkg/subscription"
	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// Peer is one client connection as seen by the server.
type Peer interface {
	ConnID() string
	Send(data []byte) error
}

// FreshReader serves reads that must reflect the latest device state.
// It is consulted for Read requests with MaxAge 0.
type FreshReader interface {
	ReadFresh(id wire.NodeID) (wire.DataValue, error)
}

// ServerConfig configures the interaction server.
type ServerConfig struct {
	// Space is the address space requests are served from.
	Space *model.AddressSpace

	// Fresh handles MaxAge 0 reads. Nil serves them from Space.
	Fresh FreshReader

	// Subscriptions configures each connection's subscription manager.
	Subscriptions subscription.Config

	// Logger receives operational messages.
	Logger *slog.Logger

	// ProtocolLogger receives decoded message events (optional).
	ProtocolLogger log.Logger
}

// Server handles incoming requests and manages per-connection
// subscriptions.
type Server struct {
	config ServerConfig
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session

	notificationsSent atomic.Uint64
	requestsHandled   atomic.Uint64
}

type session struct {
	peer Peer
	subs *subscription.Manager
}

// NewServer creates an interaction server.
func NewServer(config ServerConfig) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		config:   config,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// Connect registers a new connection.
func (s *Server) Connect(p Peer) {
	subCfg := s.config.Subscriptions
	if subCfg.Logger == nil {
		subCfg.Logger = s.logger
	}
	if subCfg.ProtocolLogger == nil {
		subCfg.ProtocolLogger = s.config.ProtocolLogger
	}
	subCfg.ConnectionID = p.ConnID()

	sess := &session{peer: p}
	sess.subs = subscription.NewManager(s.config.Space, func(msg *wire.NotificationMessage) error {
		return s.sendNotification(sess, msg)
	}, subCfg)

	s.mu.Lock()
	s.sessions[p.ConnID()] = sess
	s.mu.Unlock()
}

// Disconnect drops a connection and deletes its subscriptions.
func (s *Server) Disconnect(p Peer) {
	s.mu.Lock()
	sess, ok := s.sessions[p.ConnID()]
	delete(s.sessions, p.ConnID())
	s.mu.Unlock()

	if ok {
		sess.subs.Close()
	}
}

// SessionCount returns the number of connected clients.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// SubscriptionCount returns the number of subscriptions across all
// connections.
func (s *Server) SubscriptionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sess := range s.sessions {
		n += sess.subs.Count()
	}
	return n
}

// NotificationsSent returns the number of notification messages delivered.
func (s *Server) NotificationsSent() uint64 {
	return s.notificationsSent.Load()
}

// RequestsHandled returns the number of requests answered.
func (s *Server) RequestsHandled() uint64 {
	return s.requestsHandled.Load()
}

// Close deletes every connection's subscriptions.
func (s *Server) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.subs.Close()
	}
}

// HandleMessage decodes one frame from p, dispatches it and sends the
// response back.
func (s *Server) HandleMessage(ctx context.Context, p Peer, data []byte) {
	start := time.Now()
	s.logWire(p.ConnID(), log.DirectionIn, data, nil)

	msg, err := wire.DecodeMessage(data)
	if err != nil {
		s.logger.Warn("undecodable message", "conn", p.ConnID(), "error", err)
		return
	}
	req, err := msg.Request()
	if err != nil {
		s.logger.Warn("invalid request", "conn", p.ConnID(), "error", err)
		if msg.Kind == wire.KindRequest && msg.MessageID != 0 {
			s.respond(p, wire.NewErrorResponse(msg.MessageID, wire.StatusBadDecodingError, err.Error()), start)
		}
		return
	}

	s.mu.RLock()
	sess := s.sessions[p.ConnID()]
	s.mu.RUnlock()

	resp := s.handle(ctx, sess, req)
	s.respond(p, resp, start)
}

// HandleRequest processes a request from the given connection. Subscription
// operations need a connection registered with Connect.
func (s *Server) HandleRequest(ctx context.Context, connID string, req *wire.Request) *wire.Response {
	s.mu.RLock()
	sess := s.sessions[connID]
	s.mu.RUnlock()
	return s.handle(ctx, sess, req)
}

func (s *Server) handle(ctx context.Context, sess *session, req *wire.Request) *wire.Response {
	s.requestsHandled.Add(1)
	if sess != nil {
		sess.subs.Touch()
	}

	switch req.Operation {
	case wire.OpRead:
		return s.handleRead(req)
	case wire.OpCall:
		return s.handleCall(ctx, req)
	case wire.OpBrowse:
		return s.handleBrowse(req)
	case wire.OpCreateSubscription:
		return s.handleCreateSubscription(sess, req)
	case wire.OpDeleteSubscription:
		return s.handleDeleteSubscription(sess, req)
	default:
		return wire.NewErrorResponse(req.MessageID, wire.StatusBadServiceUnsupported, "unknown operation")
	}
}

func (s *Server) handleRead(req *wire.Request) *wire.Response {
	var body wire.ReadRequest
	if err := req.DecodeBody(&body); err != nil {
		return wire.NewErrorResponse(req.MessageID, wire.StatusBadDecodingError, err.Error())
	}

	results := make([]wire.DataValue, len(body.NodeIDs))
	for i, id := range body.NodeIDs {
		results[i] = s.readOne(id, body.MaxAge == 0)
	}
	return s.response(req.MessageID, &wire.ReadResponse{Results: results})
}

func (s *Server) readOne(id wire.NodeID, fresh bool) wire.DataValue {
	if fresh && s.config.Fresh != nil {
		dv, err := s.config.Fresh.ReadFresh(id)
		if err == nil {
			return dv
		}
		// Nodes outside the fresh reader's scope fall through to the space.
	}
	attr, err := s.config.Space.Attribute(id)
	if err != nil {
		return wire.BadValue(model.StatusOf(err))
	}
	if !attr.Access().CanRead() {
		return wire.BadValue(wire.StatusBadAttributeIDInvalid)
	}
	return attr.Value()
}

func (s *Server) handleCall(ctx context.Context, req *wire.Request) *wire.Response {
	var body wire.CallRequest
	if err := req.DecodeBody(&body); err != nil {
		return wire.NewErrorResponse(req.MessageID, wire.StatusBadDecodingError, err.Error())
	}

	method, err := s.config.Space.Method(body.ObjectID, body.MethodID)
	if err != nil {
		return wire.NewErrorResponse(req.MessageID, model.StatusOf(err), err.Error())
	}
	outputs, err := method.Call(ctx, body.Arguments)
	if err != nil {
		s.logger.Debug("method call failed", "method", body.MethodID, "error", err)
		return wire.NewErrorResponse(req.MessageID, model.StatusOf(err), err.Error())
	}
	return s.response(req.MessageID, &wire.CallResponse{Outputs: outputs})
}

func (s *Server) handleBrowse(req *wire.Request) *wire.Response {
	var body wire.BrowseRequest
	if err := req.DecodeBody(&body); err != nil {
		return wire.NewErrorResponse(req.MessageID, wire.StatusBadDecodingError, err.Error())
	}
	refs, err := s.config.Space.Browse(body.NodeID)
	if err != nil {
		return wire.NewErrorResponse(req.MessageID, model.StatusOf(err), err.Error())
	}
	return s.response(req.MessageID, &wire.BrowseResponse{References: refs})
}

func (s *Server) handleCreateSubscription(sess *session, req *wire.Request) *wire.Response {
	if sess == nil {
		return wire.NewErrorResponse(req.MessageID, wire.StatusBadConnectionClosed, "no session")
	}
	var body wire.CreateSubscriptionRequest
	if err := req.DecodeBody(&body); err != nil {
		return wire.NewErrorResponse(req.MessageID, wire.StatusBadDecodingError, err.Error())
	}
	result, err := sess.subs.Create(&body)
	if err != nil {
		return wire.NewErrorResponse(req.MessageID, subscription.StatusOf(err), err.Error())
	}
	return s.response(req.MessageID, result)
}

func (s *Server) handleDeleteSubscription(sess *session, req *wire.Request) *wire.Response {
	if sess == nil {
		return wire.NewErrorResponse(req.MessageID, wire.StatusBadConnectionClosed, "no session")
	}
	var body wire.DeleteSubscriptionRequest
	if err := req.DecodeBody(&body); err != nil {
		return wire.NewErrorResponse(req.MessageID, wire.StatusBadDecodingError, err.Error())
	}
	if err := sess.subs.Delete(body.SubscriptionID); err != nil {
		return wire.NewErrorResponse(req.MessageID, subscription.StatusOf(err), err.Error())
	}
	resp, _ := wire.NewResponse(req.MessageID, nil)
	return resp
}

// response builds a Good response, or BadUnexpectedError if the body
// cannot be encoded.
func (s *Server) response(messageID uint32, body any) *wire.Response {
	resp, err := wire.NewResponse(messageID, body)
	if err != nil {
		return wire.NewErrorResponse(messageID, wire.StatusBadUnexpectedError, fmt.Sprintf("encode response: %v", err))
	}
	return resp
}

func (s *Server) respond(p Peer, resp *wire.Response, start time.Time) {
	data, err := wire.EncodeResponse(resp)
	if err != nil {
		s.logger.Error("failed to encode response", "conn", p.ConnID(), "error", err)
		return
	}
	elapsed := time.Since(start)
	s.logWire(p.ConnID(), log.DirectionOut, data, &elapsed)
	if err := p.Send(data); err != nil {
		s.logger.Debug("failed to send response", "conn", p.ConnID(), "error", err)
	}
}

func (s *Server) sendNotification(sess *session, msg *wire.NotificationMessage) error {
	data, err := wire.EncodeNotification(msg)
	if err != nil {
		return err
	}
	s.logWire(sess.peer.ConnID(), log.DirectionOut, data, nil)
	if err := sess.peer.Send(data); err != nil {
		return err
	}
	s.notificationsSent.Add(1)
	return nil
}

func (s *Server) logWire(connID string, dir log.Direction, data []byte, elapsed *time.Duration) {
	logWire(s.config.ProtocolLogger, connID, log.RoleServer, dir, data, elapsed)
}

// logWire records a decoded message event. Frames that do not decode are
// already covered by the transport's frame events.
func logWire(logger log.Logger, connID string, role log.Role, dir log.Direction, data []byte, elapsed *time.Duration) {
	if logger == nil {
		return
	}
	msg, err := wire.DecodeMessage(data)
	if err != nil {
		return
	}
	ev := log.MessageEventFor(msg)
	if ev == nil {
		return
	}
	ev.ProcessingTime = elapsed
	var nodeID string
	if len(ev.NodeIDs) == 1 {
		nodeID = ev.NodeIDs[0]
	}
	logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		LocalRole:    role,
		NodeID:       nodeID,
		Message:      ev,
	})
}
