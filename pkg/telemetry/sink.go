package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Sink receives monitored entries.
type Sink interface {
	Record(e Entry) error
}

// Flusher is implemented by sinks that buffer. Monitor flushes them when it
// returns.
type Flusher interface {
	Flush()
}

// WriterSink writes one "[HH:MM:SS] label: value" line per entry.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Record implements Sink.
func (s *WriterSink) Record(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "[%s] %s: %s\n", e.Timestamp.Format(time.TimeOnly), e.Label(), FormatValue(e.Value))
	return err
}

// Measurement is the InfluxDB measurement written by InfluxSink.
const Measurement = "smartbulb_telemetry"

// Influx defaults.
const (
	DefaultInfluxBatchSize     = 100
	DefaultInfluxFlushInterval = 10 * time.Second

	influxPingTimeout = 5 * time.Second
)

var (
	// ErrInfluxDisabled is returned by ConnectInflux for a disabled config.
	ErrInfluxDisabled = errors.New("influxdb disabled")

	// ErrInfluxUnhealthy is returned when the server does not answer pings.
	ErrInfluxUnhealthy = errors.New("influxdb not healthy")
)

// PointWriter is the write half of an InfluxDB client. api.WriteAPI
// satisfies it.
type PointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// InfluxConfig configures the InfluxDB connection.
type InfluxConfig struct {
	Enabled       bool
	URL           string
	Token         string
	Org           string
	Bucket        string
	BatchSize     uint
	FlushInterval time.Duration
	Logger        *slog.Logger
}

// InfluxSink writes entries as InfluxDB points tagged with device and
// attribute. Bad values are skipped.
type InfluxSink struct {
	writer PointWriter
	client influxdb2.Client
}

// NewInfluxSink creates a sink over an existing writer.
func NewInfluxSink(w PointWriter) *InfluxSink {
	return &InfluxSink{writer: w}
}

// ConnectInflux connects to InfluxDB, verifies it with a ping and returns a
// sink using the non-blocking batched write API. Async write errors are
// logged.
func ConnectInflux(ctx context.Context, cfg InfluxConfig) (*InfluxSink, error) {
	if !cfg.Enabled {
		return nil, ErrInfluxDisabled
	}
	batch := cfg.BatchSize
	if batch == 0 {
		batch = DefaultInfluxBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = DefaultInfluxFlushInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batch).
			SetFlushInterval(uint(flush.Milliseconds())))

	pctx, cancel := context.WithTimeout(ctx, influxPingTimeout)
	defer cancel()
	healthy, err := client.Ping(pctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influxdb ping: %w", err)
	}
	if !healthy {
		client.Close()
		return nil, ErrInfluxUnhealthy
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			logger.Warn("influxdb write failed", "error", err)
		}
	}()

	return &InfluxSink{writer: writeAPI, client: client}, nil
}

// Record implements Sink.
func (s *InfluxSink) Record(e Entry) error {
	if e.Value.Status.IsBad() {
		return nil
	}
	value, ok := fieldValue(e)
	if !ok {
		return fmt.Errorf("unsupported value type %s for %s", e.Value.Value.Type, e.Label())
	}
	s.writer.WritePoint(Point(e, value))
	return nil
}

// Point builds the InfluxDB point for e.
func Point(e Entry, value any) *write.Point {
	return write.NewPoint(
		Measurement,
		map[string]string{
			"device":    e.Device,
			"attribute": e.Attribute,
		},
		map[string]any{"value": value},
		e.Timestamp,
	)
}

func fieldValue(e Entry) (any, bool) {
	v := e.Value.Value
	if f, ok := v.Double(); ok {
		return f, true
	}
	if i, ok := v.Int32(); ok {
		return int64(i), true
	}
	if s, ok := v.Str(); ok {
		return s, true
	}
	if b, ok := v.Bool(); ok {
		return b, true
	}
	return nil, false
}

// Flush implements Flusher.
func (s *InfluxSink) Flush() {
	s.writer.Flush()
}

// Close flushes pending points and closes the client if the sink owns one.
func (s *InfluxSink) Close() {
	s.writer.Flush()
	if s.client != nil {
		s.client.Close()
	}
}
