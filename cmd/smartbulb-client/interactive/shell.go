// Package interactive provides the interactive command-line interface of
// smartbulb-client.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chzyer/readline"

	"github.com/smartbulb/smartbulb-go/pkg/discovery"
	"github.com/smartbulb/smartbulb-go/pkg/model"
	"github.com/smartbulb/smartbulb-go/pkg/telemetry"
	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// Conn is the protocol surface used by the shell. *interaction.Client
// satisfies it.
type Conn interface {
	telemetry.Conn
	Browse(ctx context.Context, id wire.NodeID) ([]wire.Reference, error)
	ReadMaxAge(ctx context.Context, maxAge time.Duration, ids ...wire.NodeID) ([]wire.DataValue, error)
}

// Session holds the state shared by shell commands.
type Session struct {
	Conn      Conn
	Expected  []discovery.Expected
	Discovery discovery.Config
	Monitor   telemetry.MonitorConfig
	Logger    *slog.Logger

	// Sinks are added to the console sink of every monitor run.
	Sinks []telemetry.Sink

	telemetry *telemetry.Client
	reg       *discovery.Registry
}

// NewSession creates a session. reg is the result of an earlier discovery
// and may be nil.
func NewSession(conn Conn, reg *discovery.Registry) *Session {
	return &Session{Conn: conn, reg: reg}
}

// Registry returns the current discovery result.
func (s *Session) Registry() *discovery.Registry {
	return s.reg
}

func (s *Session) client() *telemetry.Client {
	if s.telemetry == nil {
		s.telemetry = telemetry.New(s.Conn, telemetry.Config{Logger: s.Logger})
	}
	return s.telemetry
}

// Shell handles interactive mode for smartbulb-client.
type Shell struct {
	rl *readline.Instance
}

// New creates the shell and takes over the terminal.
func New() (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "client> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("discover"),
			readline.PcItem("read"),
			readline.PcItem("call",
				readline.PcItem("PRO_001",
					readline.PcItem(discovery.NodeTurnOn),
					readline.PcItem(discovery.NodeTurnOff),
					readline.PcItem(discovery.NodeSetBrightness),
				),
			),
			readline.PcItem("browse"),
			readline.PcItem("structure"),
			readline.PcItem("monitor"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{rl: rl}, nil
}

// Stderr returns a writer that coordinates with the prompt.
func (s *Shell) Stderr() io.Writer {
	return s.rl.Stderr()
}

// Run starts the command loop and returns when the user exits or ctx is
// done.
func (s *Shell) Run(ctx context.Context, session *Session) {
	defer s.rl.Close()

	out := s.rl.Stdout()
	printHelp(out)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(out, "Exiting...")
			return
		}

		if quit := session.Execute(ctx, out, line); quit {
			fmt.Fprintln(out, "Exiting...")
			return
		}
	}
}

// Execute runs one command line. It returns true when the user asked to
// quit.
func (s *Session) Execute(ctx context.Context, out io.Writer, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		printHelp(out)

	case "discover", "d":
		s.cmdDiscover(ctx, out)

	case "read", "r":
		s.cmdRead(ctx, out, args)

	case "call", "c":
		s.cmdCall(ctx, out, args)

	case "get", "g":
		s.cmdGet(ctx, out, args)

	case "browse", "b":
		s.cmdBrowse(ctx, out, args)

	case "structure":
		if s.requireDiscovery(out) {
			telemetry.PrintStructure(out, s.reg)
		}

	case "monitor", "m":
		s.cmdMonitor(ctx, out, args)

	case "quit", "exit", "q":
		return true

	default:
		fmt.Fprintf(out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, `
Smart Bulb Client Commands:
  Discovery:
    discover                 - Probe namespaces for the expected devices
    structure                - Show resolved node IDs per device
    browse [node-id]         - List references of a node (default: Objects)
    get <node-id> [max-age-ms]
                             - Read one node; max age 0 asks for a fresh value

  Devices:
    read [device]            - Read State, Temperature and Brightness
    call <device> <method> [level]
                             - Invoke TurnOn, TurnOff or SetBrightness
    monitor [seconds]        - Subscribe and print changes for a while

  General:
    help                     - Show this help
    quit                     - Exit the client`)
}

func (s *Session) requireDiscovery(out io.Writer) bool {
	if s.reg == nil {
		fmt.Fprintln(out, "No devices discovered yet. Run 'discover' first.")
		return false
	}
	return true
}

func (s *Session) cmdDiscover(ctx context.Context, out io.Writer) {
	cfg := s.Discovery
	if cfg.Logger == nil {
		cfg.Logger = s.Logger
	}
	s.reg = discovery.NewEngine(s.Conn, cfg).Discover(ctx, s.Expected)

	for _, e := range s.reg.Entries() {
		if e.Found() {
			fmt.Fprintf(out, "  %-24s found in namespace %d\n", e.Name, e.Namespace)
		} else {
			fmt.Fprintf(out, "  %-24s not found\n", e.Name)
		}
	}
	fmt.Fprintf(out, "Discovered %d of %d devices\n", s.reg.FoundCount(), s.reg.Len())
}

func (s *Session) lookup(out io.Writer, prefix string) (*discovery.Entry, bool) {
	e, ok := s.reg.Lookup(prefix)
	if !ok {
		fmt.Fprintf(out, "Unknown device: %s\n", prefix)
		return nil, false
	}
	if !e.Found() {
		fmt.Fprintf(out, "%s was not found during discovery\n", e.Name)
		return nil, false
	}
	return e, true
}

func (s *Session) cmdRead(ctx context.Context, out io.Writer, args []string) {
	if !s.requireDiscovery(out) {
		return
	}
	reg := s.reg
	if len(args) > 0 {
		e, ok := s.lookup(out, args[0])
		if !ok {
			return
		}
		reg = discovery.NewRegistry(e)
	}
	s.client().BulkRead(ctx, reg, out)
}

func (s *Session) cmdCall(ctx context.Context, out io.Writer, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(out, "Usage: call <device> <method> [level]")
		return
	}
	if !s.requireDiscovery(out) {
		return
	}
	e, ok := s.lookup(out, args[0])
	if !ok {
		return
	}
	method, ok := e.Node(args[1])
	if !ok {
		fmt.Fprintf(out, "%s has no method %s\n", e.Name, args[1])
		return
	}

	var callArgs []wire.Variant
	if len(args) > 2 {
		level, err := strconv.Atoi(args[2])
		if err != nil {
			fmt.Fprintf(out, "Invalid level %q: must be an integer\n", args[2])
			return
		}
		arg, err := wire.NewVariant(level)
		if err != nil {
			fmt.Fprintf(out, "%s.%s failed: %v\n", e.Prefix, args[1], err)
			return
		}
		callArgs = append(callArgs, arg)
	}

	if _, err := s.Conn.Call(ctx, e.Object(), method, callArgs...); err != nil {
		fmt.Fprintf(out, "%s.%s failed: %v\n", e.Prefix, args[1], err)
		return
	}
	fmt.Fprintf(out, "%s.%s: %s\n", e.Prefix, args[1], wire.StatusGood)
}

func (s *Session) cmdBrowse(ctx context.Context, out io.Writer, args []string) {
	id := model.ObjectsFolderID
	if len(args) > 0 {
		parsed, err := wire.ParseNodeID(args[0])
		if err != nil {
			fmt.Fprintf(out, "Invalid node ID %q: %v\n", args[0], err)
			return
		}
		id = parsed
	}

	refs, err := s.Conn.Browse(ctx, id)
	if err != nil {
		fmt.Fprintf(out, "Browse %s failed: %v\n", id, err)
		return
	}
	if len(refs) == 0 {
		fmt.Fprintf(out, "%s has no references\n", id)
		return
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE ID\tCLASS\tBROWSE NAME\tDATA TYPE")
	for _, r := range refs {
		dataType := "-"
		if r.DataType != wire.TypeNull {
			dataType = r.DataType.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.NodeID, r.NodeClass, r.BrowseName, dataType)
	}
	tw.Flush()
}

func (s *Session) cmdGet(ctx context.Context, out io.Writer, args []string) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(out, "Usage: get <node-id> [max-age-ms]")
		return
	}
	id, err := wire.ParseNodeID(args[0])
	if err != nil {
		fmt.Fprintf(out, "Invalid node ID %q: %v\n", args[0], err)
		return
	}
	var maxAge time.Duration
	if len(args) == 2 {
		ms, err := strconv.Atoi(args[1])
		if err != nil || ms < 0 {
			fmt.Fprintf(out, "Invalid max age %q: must be a non-negative number of milliseconds\n", args[1])
			return
		}
		maxAge = time.Duration(ms) * time.Millisecond
	}

	results, err := s.Conn.ReadMaxAge(ctx, maxAge, id)
	if err != nil {
		fmt.Fprintf(out, "Read %s failed: %v\n", id, err)
		return
	}
	dv := results[0]
	if dv.Status.IsBad() {
		fmt.Fprintf(out, "%s: %s\n", id, dv.Status)
		return
	}
	fmt.Fprintf(out, "%s = %s (%s)\n", id, dv.Value, dv.Value.Type)
}

func (s *Session) cmdMonitor(ctx context.Context, out io.Writer, args []string) {
	if !s.requireDiscovery(out) {
		return
	}
	cfg := s.Monitor
	if cfg.Window <= 0 {
		cfg = telemetry.DefaultMonitorConfig()
	}
	if len(args) > 0 {
		secs, err := strconv.Atoi(args[0])
		if err != nil || secs <= 0 {
			fmt.Fprintf(out, "Invalid duration %q: must be a positive number of seconds\n", args[0])
			return
		}
		cfg.Window = time.Duration(secs) * time.Second
	}
	cfg.Sinks = append([]telemetry.Sink{telemetry.NewWriterSink(out)}, s.Sinks...)

	fmt.Fprintf(out, "Monitoring for %s...\n", cfg.Window)
	entries, err := s.client().Monitor(ctx, s.reg, cfg)
	if err != nil {
		fmt.Fprintf(out, "Monitoring stopped: %v\n", err)
	}
	fmt.Fprintf(out, "Received %d notifications\n", len(entries))
}
