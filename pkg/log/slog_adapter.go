package log

import (
	"context"
	"log/slog"
	"strings"
)

// SlogAdapter writes protocol events to an slog.Logger. Each payload kind
// is rendered as its own attribute group ("frame", "message", "state",
// "control", "error").
type SlogAdapter struct {
	logger *slog.Logger
	level  slog.Level
}

// NewSlogAdapter creates a SlogAdapter writing debug records to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger, level: slog.LevelDebug}
}

// Log writes the event as one "protocol" record.
func (a *SlogAdapter) Log(event Event) {
	ctx := context.Background()
	if !a.logger.Enabled(ctx, a.level) {
		return
	}

	attrs := make([]slog.Attr, 0, 8)
	attrs = append(attrs,
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	)
	attrs = appendNonEmpty(attrs, "device_id", event.DeviceID)
	attrs = appendNonEmpty(attrs, "node_id", event.NodeID)
	if g, ok := payloadGroup(event); ok {
		attrs = append(attrs, g)
	}

	a.logger.LogAttrs(ctx, a.level, "protocol", attrs...)
}

func payloadGroup(event Event) (slog.Attr, bool) {
	switch {
	case event.Frame != nil:
		return slog.Group("frame",
			slog.Int("size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated),
		), true

	case event.Message != nil:
		m := event.Message
		attrs := []any{
			slog.Uint64("id", uint64(m.MessageID)),
			slog.String("type", m.Type.String()),
		}
		if m.Operation != nil {
			attrs = append(attrs, slog.String("operation", m.Operation.String()))
		}
		if len(m.NodeIDs) > 0 {
			attrs = append(attrs, slog.String("nodes", strings.Join(m.NodeIDs, ",")))
		}
		if m.Status != nil {
			attrs = append(attrs, slog.String("status", m.Status.String()))
		}
		if m.SubscriptionID != nil {
			attrs = append(attrs, slog.Uint64("subscription", uint64(*m.SubscriptionID)))
		}
		if m.ProcessingTime != nil {
			attrs = append(attrs, slog.Duration("processing_time", *m.ProcessingTime))
		}
		return slog.Group("message", attrs...), true

	case event.StateChange != nil:
		sc := event.StateChange
		attrs := []any{
			slog.String("entity", sc.Entity.String()),
			slog.String("old_state", sc.OldState),
			slog.String("new_state", sc.NewState),
		}
		if sc.Reason != "" {
			attrs = append(attrs, slog.String("reason", sc.Reason))
		}
		return slog.Group("state", attrs...), true

	case event.ControlMsg != nil:
		return slog.Group("control",
			slog.String("type", event.ControlMsg.Type.String()),
			slog.Uint64("sequence", uint64(event.ControlMsg.Sequence)),
		), true

	case event.Error != nil:
		e := event.Error
		attrs := []any{
			slog.String("layer", e.Layer.String()),
			slog.String("message", e.Message),
		}
		if e.Status != nil {
			attrs = append(attrs, slog.String("status", e.Status.String()))
		}
		if e.Context != "" {
			attrs = append(attrs, slog.String("context", e.Context))
		}
		return slog.Group("error", attrs...), true
	}
	return slog.Attr{}, false
}

func appendNonEmpty(attrs []slog.Attr, key, value string) []slog.Attr {
	if value == "" {
		return attrs
	}
	return append(attrs, slog.String(key, value))
}

var _ Logger = (*SlogAdapter)(nil)
