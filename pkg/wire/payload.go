package wire

import "time"

// ReadRequest is the body of an OpRead request.
//
// MaxAge is in milliseconds. Zero asks the server for a fresh value
// rather than the last published one.
type ReadRequest struct {
	NodeIDs []NodeID `cbor:"1,keyasint"`
	MaxAge  uint32   `cbor:"2,keyasint,omitempty"`
}

// ReadResponse carries one result per requested node, in request order.
type ReadResponse struct {
	Results []DataValue `cbor:"1,keyasint"`
}

// CallRequest is the body of an OpCall request.
type CallRequest struct {
	ObjectID  NodeID    `cbor:"1,keyasint"`
	MethodID  NodeID    `cbor:"2,keyasint"`
	Arguments []Variant `cbor:"3,keyasint,omitempty"`
}

// CallResponse carries the method outputs.
type CallResponse struct {
	Outputs []Variant `cbor:"1,keyasint,omitempty"`
}

// NodeClass identifies what kind of node a reference points to.
type NodeClass uint8

const (
	NodeClassObject   NodeClass = 1
	NodeClassVariable NodeClass = 2
	NodeClassMethod   NodeClass = 4
)

// String returns the node class name.
func (c NodeClass) String() string {
	switch c {
	case NodeClassObject:
		return "Object"
	case NodeClassVariable:
		return "Variable"
	case NodeClassMethod:
		return "Method"
	default:
		return "Unknown"
	}
}

// BrowseRequest is the body of an OpBrowse request.
type BrowseRequest struct {
	NodeID NodeID `cbor:"1,keyasint"`
}

// Reference describes one child of a browsed node.
type Reference struct {
	NodeID      NodeID    `cbor:"1,keyasint"`
	BrowseName  string    `cbor:"2,keyasint"`
	DisplayName string    `cbor:"3,keyasint"`
	NodeClass   NodeClass `cbor:"4,keyasint"`
	DataType    DataType  `cbor:"5,keyasint,omitempty"`
}

// BrowseResponse lists the children of the browsed node.
type BrowseResponse struct {
	References []Reference `cbor:"1,keyasint"`
}

// SubscriptionParameters configures the publishing cycle of a subscription.
//
// PublishingInterval is in milliseconds. LifetimeCount and KeepAliveCount
// are counted in publishing intervals.
type SubscriptionParameters struct {
	PublishingInterval         uint32 `cbor:"1,keyasint"`
	LifetimeCount              uint32 `cbor:"2,keyasint"`
	KeepAliveCount             uint32 `cbor:"3,keyasint"`
	MaxNotificationsPerPublish uint32 `cbor:"4,keyasint"`
	Priority                   uint8  `cbor:"5,keyasint,omitempty"`
}

// Interval returns the publishing interval as a duration.
func (p SubscriptionParameters) Interval() time.Duration {
	return time.Duration(p.PublishingInterval) * time.Millisecond
}

// MonitoredItemCreate requests monitoring of one attribute node.
type MonitoredItemCreate struct {
	NodeID           NodeID `cbor:"1,keyasint"`
	ClientHandle     uint32 `cbor:"2,keyasint"`
	SamplingInterval uint32 `cbor:"3,keyasint,omitempty"`
	QueueSize        uint32 `cbor:"4,keyasint,omitempty"`
	DiscardOldest    bool   `cbor:"5,keyasint,omitempty"`
}

// CreateSubscriptionRequest is the body of an OpCreateSubscription request.
type CreateSubscriptionRequest struct {
	Parameters SubscriptionParameters `cbor:"1,keyasint"`
	Items      []MonitoredItemCreate  `cbor:"2,keyasint,omitempty"`
}

// MonitoredItemResult is the per-item outcome of subscription creation.
type MonitoredItemResult struct {
	Status                  Status `cbor:"1,keyasint,omitempty"`
	MonitoredItemID         uint32 `cbor:"2,keyasint,omitempty"`
	RevisedSamplingInterval uint32 `cbor:"3,keyasint,omitempty"`
	RevisedQueueSize        uint32 `cbor:"4,keyasint,omitempty"`
}

// CreateSubscriptionResponse returns the subscription ID and revised values.
type CreateSubscriptionResponse struct {
	SubscriptionID uint32                 `cbor:"1,keyasint"`
	Revised        SubscriptionParameters `cbor:"2,keyasint"`
	Items          []MonitoredItemResult  `cbor:"3,keyasint,omitempty"`
}

// DeleteSubscriptionRequest is the body of an OpDeleteSubscription request.
type DeleteSubscriptionRequest struct {
	SubscriptionID uint32 `cbor:"1,keyasint"`
}

// ItemNotification is one queued value for a monitored item.
type ItemNotification struct {
	ClientHandle uint32    `cbor:"1,keyasint"`
	Value        DataValue `cbor:"2,keyasint"`
}

// NotificationMessage is pushed by the server for a subscription.
//
// A message with no items is a keep-alive. A bad Status reports that the
// subscription itself has ended, for example after its lifetime expired.
type NotificationMessage struct {
	SubscriptionID uint32             `cbor:"1,keyasint"`
	SequenceNumber uint32             `cbor:"2,keyasint"`
	PublishTime    time.Time          `cbor:"3,keyasint"`
	Items          []ItemNotification `cbor:"4,keyasint,omitempty"`
	Status         Status             `cbor:"5,keyasint,omitempty"`
}

// IsKeepAlive returns true if the message carries no data.
func (n *NotificationMessage) IsKeepAlive() bool {
	return len(n.Items) == 0 && n.Status.IsGood()
}
