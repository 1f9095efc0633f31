package subscription

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smartbulb/smartbulb-go/pkg/log"
	"github.com/smartbulb/smartbulb-go/pkg/model"
	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// AttributeSource resolves attribute nodes for monitored items.
// *model.AddressSpace implements it.
type AttributeSource interface {
	Attribute(id wire.NodeID) (*model.AttributeNode, error)
}

// PublishFunc delivers a notification message to the subscriber.
type PublishFunc func(msg *wire.NotificationMessage) error

// Manager owns the subscriptions of one connection.
type Manager struct {
	mu sync.Mutex

	config  Config
	source  AttributeSource
	publish PublishFunc
	logger  *slog.Logger

	subscriptions map[uint32]*Subscription
	nextSubID     uint32
	nextItemID    uint32
	closed        bool
}

// NewManager creates a subscription manager.
func NewManager(source AttributeSource, publish PublishFunc, config Config) *Manager {
	if config.MaxSubscriptions <= 0 {
		config.MaxSubscriptions = DefaultMaxSubscriptions
	}
	if config.MaxItemsPerSubscription <= 0 {
		config.MaxItemsPerSubscription = DefaultMaxItems
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		config:        config,
		source:        source,
		publish:       publish,
		logger:        logger,
		subscriptions: make(map[uint32]*Subscription),
	}
}

// Create creates a subscription with its monitored items and starts its
// publishing cycle. Items that cannot be created get a bad status in the
// response; the subscription is created regardless.
func (m *Manager) Create(req *wire.CreateSubscriptionRequest) (*wire.CreateSubscriptionResponse, error) {
	if len(req.Items) > m.config.MaxItemsPerSubscription {
		return nil, fmt.Errorf("%w: %d items requested, limit %d", ErrTooManyItems, len(req.Items), m.config.MaxItemsPerSubscription)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	if len(m.subscriptions) >= m.config.MaxSubscriptions {
		return nil, ErrTooManySubscriptions
	}
	m.nextSubID++
	sub := newSubscription(m.nextSubID, Revise(req.Parameters))
	sub.publish = m.deliver
	sub.expired = m.expire

	resp := &wire.CreateSubscriptionResponse{
		SubscriptionID: sub.ID,
		Revised:        sub.Params,
		Items:          make([]wire.MonitoredItemResult, len(req.Items)),
	}

	sub.mu.Lock()
	for i, itemReq := range req.Items {
		m.nextItemID++
		item := newMonitoredItem(m.nextItemID, itemReq)
		result := wire.MonitoredItemResult{
			Status:                  wire.StatusGood,
			RevisedSamplingInterval: itemReq.SamplingInterval,
			RevisedQueueSize:        item.QueueSize,
		}
		if result.RevisedSamplingInterval == 0 {
			result.RevisedSamplingInterval = sub.Params.PublishingInterval
		}

		attr, err := m.source.Attribute(itemReq.NodeID)
		switch {
		case err != nil:
			result.Status = model.StatusOf(err)
		case !attr.Access().CanSubscribe():
			result.Status = wire.StatusBadAttributeIDInvalid
		default:
			result.MonitoredItemID = item.ID
			sub.items = append(sub.items, item)
			// Listen before sampling so no change falls between the two.
			item.cancel = attr.OnChange(func(_ wire.NodeID, dv wire.DataValue) {
				sub.enqueue(item, dv)
			})
			sub.enqueued++
			item.push(sub.enqueued, attr.Value())
		}
		resp.Items[i] = result
	}
	sub.mu.Unlock()

	m.subscriptions[sub.ID] = sub
	go sub.run()

	m.logger.Debug("subscription created",
		"subscription", sub.ID,
		"interval", sub.Params.Interval(),
		"items", len(sub.items))
	m.logState(sub.ID, "", "ACTIVE", "")
	return resp, nil
}

// Delete removes a subscription and stops its publishing cycle.
func (m *Manager) Delete(id uint32) error {
	sub := m.remove(id)
	if sub == nil {
		return ErrSubscriptionNotFound
	}
	sub.halt()
	<-sub.done
	m.logger.Debug("subscription deleted", "subscription", id)
	m.logState(id, "ACTIVE", "DELETED", "")
	return nil
}

// Get returns a subscription by ID.
func (m *Manager) Get(id uint32) (*Subscription, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subscriptions[id]
	return sub, ok
}

// Count returns the number of active subscriptions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscriptions)
}

// Touch records client activity, resetting every subscription's lifetime.
func (m *Manager) Touch() {
	m.mu.Lock()
	subs := make([]*Subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.Unlock()

	for _, sub := range subs {
		sub.touch()
	}
}

// Close deletes all subscriptions. Used when the connection goes away.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	subs := m.subscriptions
	m.subscriptions = make(map[uint32]*Subscription)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.halt()
		<-sub.done
	}
}

func (m *Manager) remove(id uint32) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subscriptions[id]
	if !ok {
		return nil
	}
	delete(m.subscriptions, id)
	return sub
}

// expire runs on the subscription's own goroutine, so it must not wait
// for the loop to finish.
func (m *Manager) expire(sub *Subscription) {
	if m.remove(sub.ID) == nil {
		return
	}
	sub.halt()
	m.logger.Info("subscription expired", "subscription", sub.ID, "lifetime", sub.Params.LifetimeCount)
	m.logState(sub.ID, "ACTIVE", "EXPIRED", "lifetime elapsed")
}

func (m *Manager) deliver(msg *wire.NotificationMessage) {
	if m.publish == nil {
		return
	}
	if err := m.publish(msg); err != nil {
		m.logger.Debug("publish failed", "subscription", msg.SubscriptionID, "error", err)
	}
}

func (m *Manager) logState(id uint32, oldState, newState, reason string) {
	if m.config.ProtocolLogger == nil {
		return
	}
	desc := fmt.Sprintf("subscription %d", id)
	if reason != "" {
		desc += ": " + reason
	}
	m.config.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: m.config.ConnectionID,
		Layer:        log.LayerService,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySubscription,
			OldState: oldState,
			NewState: newState,
			Reason:   desc,
		},
	})
}
