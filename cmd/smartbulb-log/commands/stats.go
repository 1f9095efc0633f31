package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/smartbulb/smartbulb-go/pkg/log"
	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Requests          map[wire.Operation]int
	Responses         map[wire.Status]int
	Notifications     int
	NotifiedItems     int
	Devices           map[string]int
	Connections       map[string]*ConnectionStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	RemoteAddr string
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	Requests   int

	// TotalProcessing sums the processing time of logged responses.
	TotalProcessing time.Duration
	Responses       int
}

func newStats() *Stats {
	return &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Requests:          make(map[wire.Operation]int),
		Responses:         make(map[wire.Status]int),
		Devices:           make(map[string]int),
		Connections:       make(map[string]*ConnectionStats),
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	if event.DeviceID != "" {
		s.Devices[event.DeviceID]++
	}
	if event.Error != nil {
		s.Errors++
	}

	if event.ConnectionID == "" {
		s.addMessage(nil, event.Message)
		return
	}
	conn, ok := s.Connections[event.ConnectionID]
	if !ok {
		conn = &ConnectionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Connections[event.ConnectionID] = conn
	}
	conn.Events++
	if event.Timestamp.After(conn.LastSeen) {
		conn.LastSeen = event.Timestamp
	}
	if conn.RemoteAddr == "" {
		conn.RemoteAddr = event.RemoteAddr
	}
	s.addMessage(conn, event.Message)
}

func (s *Stats) addMessage(conn *ConnectionStats, msg *log.MessageEvent) {
	if msg == nil {
		return
	}
	switch msg.Type {
	case log.MessageTypeRequest:
		if msg.Operation != nil {
			s.Requests[*msg.Operation]++
		}
		if conn != nil {
			conn.Requests++
		}
	case log.MessageTypeResponse:
		if msg.Status != nil {
			s.Responses[*msg.Status]++
		}
		if conn != nil && msg.ProcessingTime != nil {
			conn.TotalProcessing += *msg.ProcessingTime
			conn.Responses++
		}
	case log.MessageTypeNotification:
		s.Notifications++
		s.NotifiedItems += msg.ItemCount
	}
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, opts FilterOptions, w io.Writer) error {
	reader, err := openFiltered(path, opts)
	if err != nil {
		return err
	}
	defer reader.Close()

	stats := newStats()
	if err := forEach(reader, func(event log.Event) error {
		stats.add(event)
		return nil
	}); err != nil {
		return err
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Smart Bulb Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerService} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryControl, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}

	if len(stats.Requests) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Requests by Operation:")
		for op := wire.OpRead; op <= wire.OpDeleteSubscription; op++ {
			if count := stats.Requests[op]; count > 0 {
				fmt.Fprintf(w, "  %-20s %d\n", op.String()+":", count)
			}
		}
	}

	if len(stats.Responses) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Responses by Status:")
		statuses := make([]wire.Status, 0, len(stats.Responses))
		for st := range stats.Responses {
			statuses = append(statuses, st)
		}
		sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
		for _, st := range statuses {
			fmt.Fprintf(w, "  %-26s %d\n", st.String()+":", stats.Responses[st])
		}
	}

	if stats.Notifications > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Notifications: %d (%d items)\n", stats.Notifications, stats.NotifiedItems)
	}

	if len(stats.Devices) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Events by Device:")
		ids := make([]string, 0, len(stats.Devices))
		for id := range stats.Devices {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(w, "  %-12s %d\n", id+":", stats.Devices[id])
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		type connInfo struct {
			id    string
			stats *ConnectionStats
		}
		conns := make([]connInfo, 0, len(stats.Connections))
		for id, cs := range stats.Connections {
			conns = append(conns, connInfo{id, cs})
		}
		sort.Slice(conns, func(i, j int) bool {
			return conns[i].stats.FirstSeen.Before(conns[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, c := range conns {
			duration := c.stats.LastSeen.Sub(c.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenConnID(c.id), c.stats.Events, duration)
			if c.stats.RemoteAddr != "" {
				fmt.Fprintf(w, "           Remote: %s\n", c.stats.RemoteAddr)
			}
			if c.stats.Requests > 0 {
				fmt.Fprintf(w, "           Requests: %d\n", c.stats.Requests)
			}
			if c.stats.Responses > 0 {
				avg := c.stats.TotalProcessing / time.Duration(c.stats.Responses)
				fmt.Fprintf(w, "           Avg processing: %s\n", formatDuration(avg))
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
