package interaction

import (
	"context"
	"sync"

	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// Subscription is the client side of a server subscription.
type Subscription struct {
	ID      uint32
	Revised wire.SubscriptionParameters

	client *Client

	mu         sync.Mutex
	items      []*MonitoredItem
	byHandle   map[uint32]*MonitoredItem
	lastSeq    uint32
	keepAlives int
	status     wire.Status

	endOnce sync.Once
	done    chan struct{}
}

func newSubscription(c *Client, id uint32, revised wire.SubscriptionParameters) *Subscription {
	return &Subscription{
		ID:       id,
		Revised:  revised,
		client:   c,
		byHandle: make(map[uint32]*MonitoredItem),
		done:     make(chan struct{}),
	}
}

func (s *Subscription) add(item *MonitoredItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, item)
	s.byHandle[item.ClientHandle] = item
}

// Items returns the monitored items in creation order, including items the
// server rejected.
func (s *Subscription) Items() []*MonitoredItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*MonitoredItem, len(s.items))
	copy(out, s.items)
	return out
}

// Item returns the item with the given client handle.
func (s *Subscription) Item(clientHandle uint32) (*MonitoredItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.byHandle[clientHandle]
	return item, ok
}

// LastSequence returns the sequence number of the last data notification.
func (s *Subscription) LastSequence() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeq
}

// KeepAlives returns the number of keep-alive notifications received.
func (s *Subscription) KeepAlives() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keepAlives
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Status returns the status the subscription ended with. It is Good while
// the subscription is active and after an explicit Delete.
func (s *Subscription) Status() wire.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Delete deletes the subscription on the server.
func (s *Subscription) Delete(ctx context.Context) error {
	return s.client.DeleteSubscription(ctx, s.ID)
}

func (s *Subscription) deliver(notif *wire.NotificationMessage) {
	s.mu.Lock()
	if notif.IsKeepAlive() {
		s.keepAlives++
		s.mu.Unlock()
		return
	}
	s.lastSeq = notif.SequenceNumber
	targets := make([]*MonitoredItem, len(notif.Items))
	for i, n := range notif.Items {
		targets[i] = s.byHandle[n.ClientHandle]
	}
	s.mu.Unlock()

	for i, n := range notif.Items {
		if targets[i] != nil {
			targets[i].push(n.Value)
		}
	}
}

func (s *Subscription) end(status wire.Status) {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.status = status
		s.mu.Unlock()
		close(s.done)
	})
}

// MonitoredItem is one monitored attribute of a subscription. Values are
// buffered up to the item's queue size, discarding the oldest.
type MonitoredItem struct {
	ClientHandle uint32
	NodeID       wire.NodeID
	Result       wire.MonitoredItemResult

	depth int

	mu      sync.Mutex
	buffer  []wire.DataValue
	handler func(wire.DataValue)
}

func newMonitoredItem(req wire.MonitoredItemCreate, result wire.MonitoredItemResult) *MonitoredItem {
	depth := int(req.QueueSize)
	if depth < 1 {
		depth = 1
	}
	return &MonitoredItem{
		ClientHandle: req.ClientHandle,
		NodeID:       req.NodeID,
		Result:       result,
		depth:        depth,
	}
}

// OK reports whether the server accepted the item.
func (m *MonitoredItem) OK() bool {
	return m.Result.Status.IsGood()
}

// OnNotification registers fn to receive every value as it arrives. Values
// delivered to fn are still buffered for DequeueValues.
func (m *MonitoredItem) OnNotification(fn func(wire.DataValue)) {
	m.mu.Lock()
	m.handler = fn
	m.mu.Unlock()
}

// DequeueValues removes and returns the buffered values, oldest first.
func (m *MonitoredItem) DequeueValues() []wire.DataValue {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.buffer
	m.buffer = nil
	return out
}

func (m *MonitoredItem) push(dv wire.DataValue) {
	m.mu.Lock()
	if len(m.buffer) >= m.depth {
		m.buffer = append(m.buffer[:0], m.buffer[len(m.buffer)-m.depth+1:]...)
	}
	m.buffer = append(m.buffer, dv)
	handler := m.handler
	m.mu.Unlock()

	if handler != nil {
		handler(dv)
	}
}
