package subscription

import (
	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// queuedValue is a value waiting to be published. Seq orders values across
// all items of a subscription.
type queuedValue struct {
	seq   uint64
	value wire.DataValue
}

// MonitoredItem watches one attribute node. Its queue is guarded by the
// owning subscription's mutex.
type MonitoredItem struct {
	ID            uint32
	ClientHandle  uint32
	NodeID        wire.NodeID
	QueueSize     uint32
	DiscardOldest bool

	queue   []queuedValue
	last    wire.DataValue
	hasLast bool
	cancel  func()
}

func newMonitoredItem(id uint32, req wire.MonitoredItemCreate) *MonitoredItem {
	return &MonitoredItem{
		ID:            id,
		ClientHandle:  req.ClientHandle,
		NodeID:        req.NodeID,
		QueueSize:     ReviseQueueSize(req.QueueSize),
		DiscardOldest: req.DiscardOldest,
	}
}

// push queues a value. It reports false when the value matches the last one
// seen and nothing was queued.
func (m *MonitoredItem) push(seq uint64, dv wire.DataValue) bool {
	if m.hasLast && m.last.SameAs(dv) {
		return false
	}
	m.last = dv
	m.hasLast = true

	qv := queuedValue{seq: seq, value: dv}
	if uint32(len(m.queue)) < m.QueueSize {
		m.queue = append(m.queue, qv)
		return true
	}
	if m.DiscardOldest {
		copy(m.queue, m.queue[1:])
		m.queue[len(m.queue)-1] = qv
	} else {
		m.queue[len(m.queue)-1] = qv
	}
	return true
}

// Pending returns the number of queued values.
func (m *MonitoredItem) Pending() int {
	return len(m.queue)
}
