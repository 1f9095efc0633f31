// Package subscription implements server-side subscriptions with
// monitored items.
//
// A subscription groups monitored items under one publishing cycle. Each
// monitored item watches one attribute node and queues its values; every
// publishing interval the subscription drains the queues into a single
// notification message.
//
// # Parameters
//
// Requested parameters are revised before use:
//   - PublishingInterval: 0 selects the default, values below the minimum
//     are raised to it
//   - KeepAliveCount: at least 1
//   - LifetimeCount: at least three times KeepAliveCount
//   - QueueSize: at least 1
//
// # Sampling
//
// Items are exception based: a value is queued when the attribute's value
// or status changes, never on a timer. The current value is queued when the
// item is created so the first publish primes the client.
//
// # Queue Overflow
//
// When an item queue is full, DiscardOldest drops the oldest value,
// otherwise the newest queued value is replaced.
//
// # Keep-Alive and Lifetime
//
// After KeepAliveCount publishing intervals without data an empty
// notification is sent. After LifetimeCount intervals without any client
// request the subscription is deleted and a final notification with
// status BadTimeout is sent.
//
// # Lifecycle
//
// Subscriptions belong to one connection and do not survive it.
package subscription
