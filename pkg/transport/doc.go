// Package transport carries protocol messages over TCP.
//
// The transport layer handles:
//   - length-prefixed message framing
//   - connection accept and lifecycle callbacks on the server
//   - keep-alive ping/pong for connection liveness
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      CBOR Messages             │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// # Endpoints
//
// Servers are addressed by endpoint URLs of the form
//
//	sb.tcp://<host>:<port>/<path>
//
// The default endpoint is sb.tcp://localhost:4841/SmartBulbServer.
//
// # Keep-Alive
//
// Clients ping the server at a fixed interval. A connection is considered
// dead after MaxMissedPongs consecutive pings go unanswered.
package transport
