// Package interactive provides the interactive command-line interface of
// smartbulb-server.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/chzyer/readline"

	"github.com/smartbulb/smartbulb-go/pkg/bulb"
	"github.com/smartbulb/smartbulb-go/pkg/registry"
	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// Fleet is the device registry as driven by the shell.
type Fleet interface {
	Devices() []registry.Info
	Snapshots() []bulb.Snapshot
	Invoke(ctx context.Context, deviceID, method string, args []wire.Variant) error
	InjectFault(deviceID string) error
}

// Stats reports protocol server counters.
type Stats interface {
	SessionCount() int
	SubscriptionCount() int
	NotificationsSent() uint64
	RequestsHandled() uint64
}

// Shell handles interactive mode for smartbulb-server.
type Shell struct {
	rl *readline.Instance
}

// New creates the shell and takes over the terminal.
func New() (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "server> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("devices"),
			readline.PcItem("status"),
			readline.PcItem("on"),
			readline.PcItem("off"),
			readline.PcItem("dim"),
			readline.PcItem("fault"),
			readline.PcItem("stats"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{rl: rl}, nil
}

// Stdout returns a writer that coordinates with the prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Stderr returns a writer that coordinates with the prompt. Use it for log
// output.
func (s *Shell) Stderr() io.Writer {
	return s.rl.Stderr()
}

// Run starts the command loop. It calls cancel when the user exits.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc, fleet Fleet, stats Stats) {
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
			cancel()
			return
		}

		if quit := Execute(ctx, out, fleet, stats, line); quit {
			fmt.Fprintln(out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line. It returns true when the user asked to
// quit.
func Execute(ctx context.Context, out io.Writer, fleet Fleet, stats Stats, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		printHelp(out)

	case "devices", "ls":
		cmdDevices(out, fleet)

	case "status", "s":
		cmdStatus(out, fleet)

	case "on":
		cmdInvoke(ctx, out, fleet, args, registry.MethodTurnOn)

	case "off":
		cmdInvoke(ctx, out, fleet, args, registry.MethodTurnOff)

	case "dim":
		cmdInvoke(ctx, out, fleet, args, registry.MethodSetBrightness)

	case "fault":
		cmdFault(out, fleet, args)

	case "stats":
		cmdStats(out, stats)

	case "quit", "exit", "q":
		return true

	default:
		fmt.Fprintf(out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, `
Smart Bulb Server Commands:
  Devices:
    devices            - List devices and their node IDs
    status             - Show state, temperature and brightness
    on <id>            - Turn a device on
    off <id>           - Turn a device off
    dim <id> <level>   - Set brightness (0-100) of a dimmable device
    fault <id>         - Put a device into the ERROR state (terminal)

  Server:
    stats              - Show connection and subscription counters

  General:
    help               - Show this help
    quit               - Stop the server`)
}

func cmdDevices(out io.Writer, fleet Fleet) {
	for _, d := range fleet.Devices() {
		kind := "standard"
		if d.Dimmable {
			kind = "dimmable"
		}
		fmt.Fprintf(out, "%s  %s (%s)  folder %s\n", d.ID, d.Name, kind, d.Folder)
		for _, name := range d.Capabilities().Nodes {
			fmt.Fprintf(out, "    %-14s %s\n", name, d.Nodes[name])
		}
	}
}

func cmdStatus(out io.Writer, fleet Fleet) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tSTATE\tTEMPERATURE\tBRIGHTNESS")
	for _, s := range fleet.Snapshots() {
		brightness := "-"
		if s.Dimmable {
			brightness = fmt.Sprintf("%d%%", s.Brightness)
		}
		fmt.Fprintf(tw, "%s\t%s\t%.1f°C\t%s\n", s.ID, s.State, s.Temperature, brightness)
	}
	tw.Flush()
}

func cmdInvoke(ctx context.Context, out io.Writer, fleet Fleet, args []string, method string) {
	var callArgs []wire.Variant
	switch {
	case method == registry.MethodSetBrightness && len(args) != 2:
		fmt.Fprintln(out, "Usage: dim <id> <level>")
		return
	case method != registry.MethodSetBrightness && len(args) != 1:
		fmt.Fprintf(out, "Usage: %s <id>\n", strings.ToLower(strings.TrimPrefix(method, "Turn")))
		return
	}
	if method == registry.MethodSetBrightness {
		level, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(out, "Invalid level %q: must be an integer\n", args[1])
			return
		}
		arg, err := wire.NewVariant(level)
		if err != nil {
			fmt.Fprintf(out, "%s(%s) failed: %s (%v)\n", method, args[0], registry.StatusOf(err), err)
			return
		}
		callArgs = []wire.Variant{arg}
	}

	if err := fleet.Invoke(ctx, args[0], method, callArgs); err != nil {
		fmt.Fprintf(out, "%s(%s) failed: %s (%v)\n", method, args[0], registry.StatusOf(err), err)
		return
	}
	fmt.Fprintf(out, "%s(%s): %s\n", method, args[0], wire.StatusGood)
}

func cmdFault(out io.Writer, fleet Fleet, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(out, "Usage: fault <id>")
		return
	}
	if err := fleet.InjectFault(args[0]); err != nil {
		fmt.Fprintf(out, "fault %s failed: %v\n", args[0], err)
		return
	}
	fmt.Fprintf(out, "%s is now in ERROR\n", args[0])
}

func cmdStats(out io.Writer, stats Stats) {
	fmt.Fprintf(out, "Connections:        %d\n", stats.SessionCount())
	fmt.Fprintf(out, "Subscriptions:      %d\n", stats.SubscriptionCount())
	fmt.Fprintf(out, "Requests handled:   %d\n", stats.RequestsHandled())
	fmt.Fprintf(out, "Notifications sent: %d\n", stats.NotificationsSent())
}
