package log

import (
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileLogger appends events to a CBOR stream, one item per event. Events
// are written as they arrive so a crash loses at most the event in flight.
type FileLogger struct {
	mu    sync.Mutex
	enc   *cbor.Encoder
	close func() error
}

// NewFileLogger opens path for appending, creating it with mode 0644.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{enc: NewEncoder(f), close: f.Close}, nil
}

// NewStreamLogger writes events to w. Close leaves w open.
func NewStreamLogger(w io.Writer) *FileLogger {
	return &FileLogger{enc: NewEncoder(w), close: func() error { return nil }}
}

// Log writes event. Encoding errors are dropped; the connection being
// logged must not fail because its log did.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.enc != nil {
		_ = l.enc.Encode(event)
	}
}

// Close releases the file. Later Log calls are ignored and further Close
// calls return nil.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.enc == nil {
		return nil
	}
	l.enc = nil
	return l.close()
}

var _ Logger = (*FileLogger)(nil)
