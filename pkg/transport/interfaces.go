package transport

import "time"

// ClientConnection is what a protocol client needs from its connection.
// *ClientConn satisfies it; tests may substitute an in-memory pipe.
type ClientConnection interface {
	ConnID() string
	Send(data []byte) error
	Receive(timeout time.Duration) ([]byte, error)
	SendPing(seq uint32) error
	SendClose() error
	Close() error
}

// Handler callbacks run on the connection's read goroutine. A slow
// OnMessage delays further frames from the same client only.
type (
	ConnectHandler    func(c *ServerConn)
	MessageHandler    func(c *ServerConn, data []byte)
	DisconnectHandler func(c *ServerConn)
)

var _ ClientConnection = (*ClientConn)(nil)
