package interaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smartbulb/smartbulb-go/pkg/log"
	"github.com/smartbulb/smartbulb-go/pkg/transport"
	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// Client errors.
var (
	ErrRequestTimeout  = errors.New("request timed out")
	ErrClientClosed    = errors.New("client is closed")
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// StatusError is a non-good status returned by the server.
type StatusError = wire.StatusError

// DefaultRequestTimeout bounds each request round trip.
const DefaultRequestTimeout = 10 * time.Second

// maxEarlyNotifications bounds the notifications held per subscription
// while its creation reply is processed.
const maxEarlyNotifications = 64

// ClientConfig configures a client.
type ClientConfig struct {
	// RequestTimeout bounds each request. Zero means DefaultRequestTimeout.
	RequestTimeout time.Duration

	// Transport configures the underlying connection.
	Transport transport.ClientConfig

	// KeepAlive enables connection liveness pings when PingInterval > 0.
	KeepAlive transport.KeepAliveConfig

	// Logger receives operational messages.
	Logger *slog.Logger

	// ProtocolLogger receives decoded message events (optional).
	ProtocolLogger log.Logger
}

// DefaultClientConfig returns the default client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		RequestTimeout: DefaultRequestTimeout,
		KeepAlive:      transport.DefaultKeepAliveConfig(),
	}
}

// Client issues requests to a smart bulb server over one connection.
type Client struct {
	conn      transport.ClientConnection
	config    ClientConfig
	logger    *slog.Logger
	keepAlive *transport.KeepAlive

	nextMsgID atomic.Uint32

	pendingMu sync.Mutex
	pending   map[uint32]chan *wire.Response

	subsMu sync.Mutex
	subs   map[uint32]*Subscription

	// Notifications for unknown subscriptions are held while a create is
	// in flight; the server may publish before the reply is processed.
	creating int
	early    map[uint32][]*wire.NotificationMessage

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the server at address and returns a ready client.
// The address is either host:port or an sb.tcp endpoint URL.
func Dial(ctx context.Context, address string, config ClientConfig) (*Client, error) {
	ep, err := transport.ParseEndpoint(address)
	if err != nil {
		return nil, err
	}
	if config.Transport.Logger == nil {
		config.Transport.Logger = config.ProtocolLogger
	}
	conn, err := transport.Dial(ctx, ep.Address(), config.Transport)
	if err != nil {
		return nil, err
	}
	return NewClient(conn, config), nil
}

// NewClient wraps an established connection and starts its receive loop.
func NewClient(conn transport.ClientConnection, config ClientConfig) *Client {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Client{
		conn:    conn,
		config:  config,
		logger:  logger,
		pending: make(map[uint32]chan *wire.Response),
		subs:    make(map[uint32]*Subscription),
		done:    make(chan struct{}),
	}

	if config.KeepAlive.PingInterval > 0 {
		c.keepAlive = transport.NewKeepAlive(config.KeepAlive, conn.SendPing, func() {
			c.logger.Warn("keep-alive timeout, closing connection")
			c.shutdown()
		})
		c.keepAlive.Start(context.Background())
	}

	go c.receiveLoop()
	return c
}

// Done is closed when the client shuts down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close asks the server to close the connection and releases the client.
// Safe to call more than once.
func (c *Client) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}
	_ = c.conn.SendClose()
	c.shutdown()
	return nil
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.keepAlive != nil {
			c.keepAlive.Stop()
		}
		_ = c.conn.Close()

		c.subsMu.Lock()
		subs := c.subs
		c.subs = make(map[uint32]*Subscription)
		c.subsMu.Unlock()
		for _, sub := range subs {
			sub.end(wire.StatusBadConnectionClosed)
		}
	})
}

func (c *Client) receiveLoop() {
	for {
		data, err := c.conn.Receive(0)
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Debug("receive loop ended", "error", err)
			}
			c.shutdown()
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	msg, err := wire.DecodeMessage(data)
	if err != nil {
		c.logger.Warn("undecodable message from server", "error", err)
		return
	}
	if msg.Kind != wire.KindControl {
		logWire(c.config.ProtocolLogger, c.conn.ConnID(), log.RoleClient, log.DirectionIn, data, nil)
	}

	switch msg.Kind {
	case wire.KindResponse:
		resp, err := msg.Response()
		if err != nil {
			return
		}
		if err := c.handleResponse(resp); err != nil {
			c.logger.Debug("dropped response", "msg_id", resp.MessageID, "error", err)
		}
	case wire.KindNotification:
		notif, err := msg.Notification()
		if err != nil {
			c.logger.Warn("bad notification", "error", err)
			return
		}
		c.handleNotification(notif)
	case wire.KindControl:
		ctrl, err := msg.Control()
		if err != nil {
			return
		}
		switch ctrl.Type {
		case wire.ControlPong:
			if c.keepAlive != nil {
				c.keepAlive.PongReceived(ctrl.Sequence)
			}
		case wire.ControlClose:
			c.shutdown()
		}
	}
}

func (c *Client) handleResponse(resp *wire.Response) error {
	c.pendingMu.Lock()
	ch, ok := c.pending[resp.MessageID]
	c.pendingMu.Unlock()
	if !ok {
		return ErrUnexpectedReply
	}
	select {
	case ch <- resp:
	default:
	}
	return nil
}

func (c *Client) handleNotification(notif *wire.NotificationMessage) {
	id := notif.SubscriptionID
	c.subsMu.Lock()
	sub, ok := c.subs[id]
	queue, held := c.early[id]
	if held || (!ok && c.creating > 0) {
		if len(queue) < maxEarlyNotifications {
			if c.early == nil {
				c.early = make(map[uint32][]*wire.NotificationMessage)
			}
			c.early[id] = append(queue, notif)
		}
		c.subsMu.Unlock()
		return
	}
	c.subsMu.Unlock()

	if ok {
		c.dispatchNotification(sub, notif)
	}
}

func (c *Client) dispatchNotification(sub *Subscription, notif *wire.NotificationMessage) {
	if notif.Status.IsBad() {
		c.subsMu.Lock()
		delete(c.subs, sub.ID)
		c.subsMu.Unlock()
		c.logger.Info("subscription ended by server", "subscription", sub.ID, "status", notif.Status)
		sub.end(notif.Status)
		return
	}
	sub.deliver(notif)
}

// replayEarly delivers the notifications held for sub in arrival order.
// The receive loop keeps queueing behind them until the queue drains.
func (c *Client) replayEarly(sub *Subscription) {
	for {
		c.subsMu.Lock()
		queue := c.early[sub.ID]
		if len(queue) == 0 {
			delete(c.early, sub.ID)
			c.subsMu.Unlock()
			return
		}
		c.early[sub.ID] = queue[1:]
		c.subsMu.Unlock()
		c.dispatchNotification(sub, queue[0])
	}
}

func (c *Client) nextMessageID() uint32 {
	for {
		if id := c.nextMsgID.Add(1); id != 0 {
			return id
		}
	}
}

// roundTrip sends a request and waits for the matching response. A non-good
// response status is returned as a *StatusError.
func (c *Client) roundTrip(ctx context.Context, op wire.Operation, body, result any) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	req, err := wire.NewRequest(c.nextMessageID(), op, body)
	if err != nil {
		return err
	}
	data, err := wire.EncodeRequest(req)
	if err != nil {
		return err
	}

	respCh := make(chan *wire.Response, 1)
	c.pendingMu.Lock()
	c.pending[req.MessageID] = respCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, req.MessageID)
		c.pendingMu.Unlock()
	}()

	logWire(c.config.ProtocolLogger, c.conn.ConnID(), log.RoleClient, log.DirectionOut, data, nil)
	if err := c.conn.Send(data); err != nil {
		return fmt.Errorf("send %s: %w", op, err)
	}

	timer := time.NewTimer(c.config.RequestTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClientClosed
	case <-timer.C:
		return fmt.Errorf("%s: %w", op, ErrRequestTimeout)
	case resp := <-respCh:
		if err := resp.Err(); err != nil {
			return err
		}
		if result == nil {
			return nil
		}
		if err := resp.DecodeBody(result); err != nil {
			return fmt.Errorf("%w: %v", ErrUnexpectedReply, err)
		}
		return nil
	}
}

// Read reads attribute values. The read asks for fresh values, so the
// result reflects method calls that completed before it.
func (c *Client) Read(ctx context.Context, ids ...wire.NodeID) ([]wire.DataValue, error) {
	return c.ReadMaxAge(ctx, 0, ids...)
}

// ReadMaxAge reads attribute values, accepting published values up to
// maxAge old.
func (c *Client) ReadMaxAge(ctx context.Context, maxAge time.Duration, ids ...wire.NodeID) ([]wire.DataValue, error) {
	var resp wire.ReadResponse
	req := &wire.ReadRequest{NodeIDs: ids, MaxAge: uint32(maxAge / time.Millisecond)}
	if err := c.roundTrip(ctx, wire.OpRead, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) != len(ids) {
		return nil, fmt.Errorf("%w: %d results for %d nodes", ErrUnexpectedReply, len(resp.Results), len(ids))
	}
	return resp.Results, nil
}

// ReadValue reads one attribute. A bad per-node status is returned as a
// *StatusError.
func (c *Client) ReadValue(ctx context.Context, id wire.NodeID) (wire.DataValue, error) {
	results, err := c.Read(ctx, id)
	if err != nil {
		return wire.DataValue{}, err
	}
	dv := results[0]
	if dv.Status.IsBad() {
		return dv, &StatusError{Status: dv.Status, Message: id.String()}
	}
	return dv, nil
}

// Call invokes a method on an object.
func (c *Client) Call(ctx context.Context, object, method wire.NodeID, args ...wire.Variant) ([]wire.Variant, error) {
	var resp wire.CallResponse
	req := &wire.CallRequest{ObjectID: object, MethodID: method, Arguments: args}
	if err := c.roundTrip(ctx, wire.OpCall, req, &resp); err != nil {
		return nil, err
	}
	return resp.Outputs, nil
}

// Browse lists the children of a node.
func (c *Client) Browse(ctx context.Context, id wire.NodeID) ([]wire.Reference, error) {
	var resp wire.BrowseResponse
	if err := c.roundTrip(ctx, wire.OpBrowse, &wire.BrowseRequest{NodeID: id}, &resp); err != nil {
		return nil, err
	}
	return resp.References, nil
}

// CreateSubscription creates a subscription monitoring the given items.
// Items with a zero ClientHandle are numbered from 1 in order.
func (c *Client) CreateSubscription(ctx context.Context, params wire.SubscriptionParameters, items []wire.MonitoredItemCreate) (*Subscription, error) {
	reqItems := make([]wire.MonitoredItemCreate, len(items))
	copy(reqItems, items)
	for i := range reqItems {
		if reqItems[i].ClientHandle == 0 {
			reqItems[i].ClientHandle = uint32(i + 1)
		}
	}

	c.subsMu.Lock()
	c.creating++
	c.subsMu.Unlock()
	defer func() {
		c.subsMu.Lock()
		c.creating--
		if c.creating == 0 {
			c.early = nil
		}
		c.subsMu.Unlock()
	}()

	var resp wire.CreateSubscriptionResponse
	req := &wire.CreateSubscriptionRequest{Parameters: params, Items: reqItems}
	if err := c.roundTrip(ctx, wire.OpCreateSubscription, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) != len(reqItems) {
		return nil, fmt.Errorf("%w: %d item results for %d items", ErrUnexpectedReply, len(resp.Items), len(reqItems))
	}

	sub := newSubscription(c, resp.SubscriptionID, resp.Revised)
	for i, result := range resp.Items {
		sub.add(newMonitoredItem(reqItems[i], result))
	}

	c.subsMu.Lock()
	c.subs[sub.ID] = sub
	_, held := c.early[sub.ID]
	c.subsMu.Unlock()

	if held {
		c.replayEarly(sub)
	}
	return sub, nil
}

// DeleteSubscription deletes a subscription by ID.
func (c *Client) DeleteSubscription(ctx context.Context, id uint32) error {
	c.subsMu.Lock()
	sub, ok := c.subs[id]
	delete(c.subs, id)
	c.subsMu.Unlock()

	err := c.roundTrip(ctx, wire.OpDeleteSubscription, &wire.DeleteSubscriptionRequest{SubscriptionID: id}, nil)
	if ok {
		sub.end(wire.StatusGood)
	}
	return err
}

// IsNotFound reports whether err carries BadNodeIDUnknown.
func IsNotFound(err error) bool {
	return errors.Is(err, wire.StatusBadNodeIDUnknown)
}
