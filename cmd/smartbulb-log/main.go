// Command smartbulb-log views and analyzes protocol log files.
//
// Log files are written by smartbulb-server when started with
// -protocol-log (or server.protocol_log in the configuration).
//
// Usage:
//
//	smartbulb-log <command> [flags] <file.sblog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSON lines or CSV
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Every command accepts the same selection flags: -conn-id, -device-id,
// -node-id, -operation, -time-start, -time-end, -layer, -direction and
// -category.
//
// Examples:
//
//	# View all events
//	smartbulb-log view server.sblog
//
//	# View traffic touching one attribute
//	smartbulb-log view -node-id "ns=2;s=PRO_001_Brightness" server.sblog
//
//	# View only Call requests
//	smartbulb-log view -operation call server.sblog
//
//	# Export wire-layer events to CSV
//	smartbulb-log export -format csv -layer wire -o wire.csv server.sblog
//
//	# Keep one connection in a new file
//	smartbulb-log filter -conn-id 5f0c2a9e-... -o conn.sblog server.sblog
//
//	# Show statistics for one device
//	smartbulb-log stats -device-id PRO_001 server.sblog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/smartbulb/smartbulb-go/cmd/smartbulb-log/commands"
)

const usage = `smartbulb-log - Smart Bulb Protocol Log Analyzer

Usage:
  smartbulb-log <command> [flags] <file.sblog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSON lines or CSV
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "smartbulb-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// newFlagSet creates a flag set with the shared selection flags.
func newFlagSet(name, summary string) (*flag.FlagSet, *commands.FilterOptions) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "smartbulb-log %s - %s\n\nUsage:\n  smartbulb-log %s [flags] <file.sblog>\n\nFlags:\n", name, summary, name)
		fs.PrintDefaults()
	}

	opts := &commands.FilterOptions{}
	fs.StringVar(&opts.ConnID, "conn-id", "", "Filter by connection ID")
	fs.StringVar(&opts.DeviceID, "device-id", "", "Filter by device ID (e.g. PRO_001)")
	fs.StringVar(&opts.NodeID, "node-id", "", "Filter by node ID (e.g. \"ns=2;s=PRO_001_State\")")
	fs.StringVar(&opts.Operation, "operation", "", "Filter requests by operation (read, call, browse, createsubscription, deletesubscription)")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, wire, service)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (message, control, state, error)")
	return fs, opts
}

// logPath parses args and returns the single positional log file.
func logPath(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	fs, opts := newFlagSet("view", "View log file in human-readable format")
	path := logPath(fs, args)

	if err := commands.RunView(path, *opts, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs, opts := newFlagSet("export", "Export log file to JSON lines or CSV")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path := logPath(fs, args)

	if err := commands.RunExport(path, *format, *output, *opts); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs, opts := newFlagSet("filter", "Filter log file and write to new file")
	output := fs.String("o", "", "Output file (required)")
	path := logPath(fs, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	if err := commands.RunFilter(path, *output, *opts, os.Stdout); err != nil {
		fail(err)
	}
}

func runStats(args []string) {
	fs, opts := newFlagSet("stats", "Show statistics about the log file")
	path := logPath(fs, args)

	if err := commands.RunStats(path, *opts, os.Stdout); err != nil {
		fail(err)
	}
}
