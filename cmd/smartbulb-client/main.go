// Command smartbulb-client discovers the simulated smart bulbs of a server
// and drives them through reads, method calls and change subscriptions.
//
// The client has no schema knowledge. It probes namespace indexes for the
// State attribute of every expected device and derives the other node IDs
// from the namespace that answered.
//
// Demonstration flow:
//  1. Discovery
//  2. Bulk read of every found device
//  3. Method exercise (dim, turn off and on)
//  4. Final read and the discovered structure
//  5. Optional monitoring of State, Temperature and Brightness
//
// Usage:
//
//	smartbulb-client [flags]
//
// Flags:
//
//	-config string      YAML configuration file
//	-server string      Server address host:port or sb.tcp URL
//	-mdns               Find the server over mDNS
//	-monitor            Monitor without asking
//	-window duration    Monitoring window (overrides client.monitor_window)
//	-influx             Write monitored values to InfluxDB
//	-log-level string   Log level: debug, info, warn, error
//	-interactive        Start the interactive shell after discovery
//
// Examples:
//
//	# Run the demonstration against a local server
//	smartbulb-client
//
//	# Locate the server over mDNS and monitor for 30 seconds
//	smartbulb-client -mdns -monitor -window 30s
//
//	# Explore a server by hand
//	smartbulb-client -server sb.tcp://bulbs.local:4841/SmartBulbServer -interactive
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/smartbulb/smartbulb-go/cmd/smartbulb-client/interactive"
	"github.com/smartbulb/smartbulb-go/internal/logging"
	"github.com/smartbulb/smartbulb-go/pkg/config"
	"github.com/smartbulb/smartbulb-go/pkg/discovery"
	"github.com/smartbulb/smartbulb-go/pkg/interaction"
	"github.com/smartbulb/smartbulb-go/pkg/telemetry"
	"github.com/smartbulb/smartbulb-go/pkg/version"
)

const serviceName = "smartbulb-client"

var (
	configFile = flag.String("config", "", "YAML configuration file")
	server     = flag.String("server", "", "Server address host:port or sb.tcp URL")
	withMDNS   = flag.Bool("mdns", false, "Find the server over mDNS")
	monitor    = flag.Bool("monitor", false, "Monitor without asking")
	window     = flag.Duration("window", 0, "Monitoring window (overrides client.monitor_window)")
	withInflux = flag.Bool("influx", false, "Write monitored values to InfluxDB")
	logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error")
	interact   = flag.Bool("interactive", false, "Start the interactive shell after discovery")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	applyFlags(cfg)

	var shell *interactive.Shell
	var logOut io.Writer = os.Stderr
	if *interact {
		shell, err = interactive.New()
		if err != nil {
			log.Fatalf("Failed to start shell: %v", err)
		}
		logOut = shell.Stderr()
		log.SetOutput(logOut)
	}
	logger := newLogger(cfg, logOut)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	address, err := resolveServer(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to locate server: %v", err)
	}

	ccfg := interaction.DefaultClientConfig()
	if cfg.Client.RequestTimeout > 0 {
		ccfg.RequestTimeout = cfg.Client.RequestTimeout
	}
	ccfg.Logger = logger.With("component", "interaction")

	client, err := interaction.Dial(ctx, address, ccfg)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", address, err)
	}
	defer client.Close()
	log.Printf("Connected to %s", address)

	dcfg := discovery.Config{Candidates: cfg.Client.Candidates, Logger: logger.With("component", "discovery")}

	fmt.Println("\n=== DISCOVERING DEVICES ===")
	reg := discovery.NewEngine(client, dcfg).Discover(ctx, cfg.Expected())
	fmt.Printf("Discovered %d of %d devices\n", reg.FoundCount(), reg.Len())

	var sinks []telemetry.Sink
	if cfg.InfluxDB.Enabled {
		icfg := cfg.InfluxConfig()
		icfg.Logger = logger.With("component", "influxdb")
		sink, err := telemetry.ConnectInflux(ctx, icfg)
		if err != nil {
			log.Printf("Warning: InfluxDB sink disabled: %v", err)
		} else {
			defer sink.Close()
			sinks = append(sinks, sink)
		}
	}

	if shell != nil {
		session := interactive.NewSession(client, reg)
		session.Expected = cfg.Expected()
		session.Discovery = dcfg
		session.Monitor = cfg.MonitorConfig()
		session.Logger = logger.With("component", "telemetry")
		session.Sinks = sinks
		shell.Run(ctx, session)
		return
	}

	tc := telemetry.New(client, telemetry.Config{Logger: logger.With("component", "telemetry")})
	runDemo(ctx, tc, reg, cfg, os.Stdout)

	if !*monitor && !askYesNo(os.Stdin, os.Stdout, "\nStart monitoring? (y/n): ") {
		return
	}

	mcfg := cfg.MonitorConfig()
	mcfg.Sinks = append([]telemetry.Sink{telemetry.NewWriterSink(os.Stdout)}, sinks...)
	fmt.Printf("\n=== MONITORING FOR %s ===\n", mcfg.Window)
	entries, err := tc.Monitor(ctx, reg, mcfg)
	if err != nil {
		log.Printf("Monitoring stopped: %v", err)
	}
	fmt.Printf("Monitoring complete: %d notifications\n", len(entries))
}

func applyFlags(cfg *config.Config) {
	if *server != "" {
		cfg.Client.ServerAddress = *server
		cfg.Client.UseMDNS = false
	}
	if *withMDNS {
		cfg.Client.UseMDNS = true
	}
	if *window > 0 {
		cfg.Client.MonitorWindow = *window
	}
	if *withInflux {
		cfg.InfluxDB.Enabled = true
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
}

func newLogger(cfg *config.Config, out io.Writer) *slog.Logger {
	if out == os.Stderr {
		return logging.New(cfg.Logging, serviceName, version.Current)
	}
	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: logging.ParseLevel(cfg.Logging.Level)})
	return slog.New(handler).With("service", serviceName, "version", version.Current)
}

// resolveServer returns the configured address, or browses mDNS for the
// first compatible server.
func resolveServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (string, error) {
	if !cfg.Client.UseMDNS {
		return cfg.Client.ServerAddress, nil
	}
	browser, err := discovery.NewBrowser(discovery.BrowserConfig{
		Interface: cfg.MDNS.Interface,
		Version:   version.Current,
		Logger:    logger.With("component", "mdns"),
	})
	if err != nil {
		return "", err
	}
	log.Printf("Browsing for %s...", discovery.ServiceType)
	svc, err := browser.FindServer(ctx)
	if err != nil {
		return "", err
	}
	log.Printf("Found %s", svc)
	return svc.Endpoint().String(), nil
}

// runDemo reads, exercises the methods and reads again. Failures are
// reported and the flow continues.
func runDemo(ctx context.Context, tc *telemetry.Client, reg *discovery.Registry, cfg *config.Config, out io.Writer) {
	fmt.Fprintln(out)
	tc.BulkRead(ctx, reg, out)

	ecfg := cfg.ExerciseConfig()
	ecfg.Out = out
	steps := tc.ExerciseMethods(ctx, reg, ecfg)
	failed := 0
	for _, s := range steps {
		if !s.OK() {
			failed++
		}
	}
	if failed > 0 {
		fmt.Fprintf(out, "%d of %d steps failed\n", failed, len(steps))
	}

	fmt.Fprintln(out)
	tc.BulkRead(ctx, reg, out)

	fmt.Fprintln(out)
	telemetry.PrintStructure(out, reg)
}

func askYesNo(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
