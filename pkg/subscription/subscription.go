package subscription

import (
	"sort"
	"sync"
	"time"

	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// Subscription is a publishing cycle over a set of monitored items.
type Subscription struct {
	ID     uint32
	Params wire.SubscriptionParameters

	mu         sync.Mutex
	items      []*MonitoredItem
	enqueued   uint64
	sequence   uint32
	emptyTicks uint32
	idleTicks  uint32

	publish func(*wire.NotificationMessage)
	expired func(*Subscription)

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func newSubscription(id uint32, params wire.SubscriptionParameters) *Subscription {
	return &Subscription{
		ID:     id,
		Params: params,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Items returns the subscription's monitored items.
func (s *Subscription) Items() []*MonitoredItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*MonitoredItem, len(s.items))
	copy(out, s.items)
	return out
}

// enqueue queues a value on an item of this subscription.
func (s *Subscription) enqueue(item *MonitoredItem, dv wire.DataValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueued++
	item.push(s.enqueued, dv)
}

// touch resets the lifetime counter.
func (s *Subscription) touch() {
	s.mu.Lock()
	s.idleTicks = 0
	s.mu.Unlock()
}

func (s *Subscription) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.Params.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			msg, expired := s.tick(now)
			if msg != nil && s.publish != nil {
				s.publish(msg)
			}
			if expired {
				if s.expired != nil {
					s.expired(s)
				}
				return
			}
		}
	}
}

// tick runs one publishing interval. It returns the message to send, if
// any, and whether the subscription's lifetime ran out.
func (s *Subscription) tick(now time.Time) (*wire.NotificationMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.idleTicks++
	if s.idleTicks >= s.Params.LifetimeCount {
		return &wire.NotificationMessage{
			SubscriptionID: s.ID,
			SequenceNumber: s.sequence + 1,
			PublishTime:    now,
			Status:         wire.StatusBadTimeout,
		}, true
	}

	items := s.drainLocked()
	if len(items) > 0 {
		s.emptyTicks = 0
		s.sequence++
		return &wire.NotificationMessage{
			SubscriptionID: s.ID,
			SequenceNumber: s.sequence,
			PublishTime:    now,
			Items:          items,
		}, false
	}

	s.emptyTicks++
	if s.emptyTicks < s.Params.KeepAliveCount {
		return nil, false
	}
	s.emptyTicks = 0
	// Keep-alives carry the next sequence number without consuming it.
	return &wire.NotificationMessage{
		SubscriptionID: s.ID,
		SequenceNumber: s.sequence + 1,
		PublishTime:    now,
	}, false
}

// drainLocked removes up to MaxNotificationsPerPublish queued values in
// enqueue order.
func (s *Subscription) drainLocked() []wire.ItemNotification {
	type pending struct {
		item *MonitoredItem
		qv   queuedValue
	}
	var all []pending
	for _, item := range s.items {
		for _, qv := range item.queue {
			all = append(all, pending{item: item, qv: qv})
		}
	}
	if len(all) == 0 {
		return nil
	}
	sort.Slice(all, func(i, j int) bool { return all[i].qv.seq < all[j].qv.seq })

	limit := len(all)
	if max := int(s.Params.MaxNotificationsPerPublish); max > 0 && max < limit {
		limit = max
	}

	taken := make(map[*MonitoredItem]int)
	out := make([]wire.ItemNotification, 0, limit)
	for _, p := range all[:limit] {
		out = append(out, wire.ItemNotification{ClientHandle: p.item.ClientHandle, Value: p.qv.value})
		taken[p.item]++
	}
	// Each item's queue is already in seq order, so its taken values form a prefix.
	for item, n := range taken {
		item.queue = append(item.queue[:0], item.queue[n:]...)
	}
	return out
}

// halt stops the publishing loop and detaches the item listeners.
func (s *Subscription) halt() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.mu.Lock()
		for _, item := range s.items {
			if item.cancel != nil {
				item.cancel()
			}
		}
		s.mu.Unlock()
	})
}
