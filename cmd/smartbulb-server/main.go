// Command smartbulb-server runs a fleet of simulated smart bulbs behind the
// attribute/method protocol.
//
// The server exposes every bulb as a folder with State, Temperature and
// (dimmable bulbs only) Brightness attributes plus TurnOn, TurnOff and
// SetBrightness methods. Temperatures drift on a periodic tick and clients
// can subscribe to changes.
//
// Optional surfaces:
//   - mDNS advertising of _smartbulb._tcp
//   - Prometheus metrics on /metrics
//   - MQTT bridge publishing device state and accepting commands
//   - Protocol event log (.sblog), readable with smartbulb-log
//
// Usage:
//
//	smartbulb-server [flags]
//
// Flags:
//
//	-config string      YAML configuration file
//	-listen string      Listen address (overrides server.address)
//	-log-level string   Log level: debug, info, warn, error
//	-protocol-log path  Write protocol events to a .sblog file
//	-mdns               Advertise the server over mDNS
//	-metrics            Serve Prometheus metrics
//	-mqtt               Enable the MQTT bridge
//	-interactive        Start the interactive shell
//
// Examples:
//
//	# Start the default three-bulb fleet
//	smartbulb-server
//
//	# Advertise over mDNS and expose metrics
//	smartbulb-server -mdns -metrics
//
//	# Mirror devices to a local MQTT broker, with a shell
//	smartbulb-server -mqtt -interactive
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/smartbulb/smartbulb-go/cmd/smartbulb-server/interactive"
	"github.com/smartbulb/smartbulb-go/internal/logging"
	"github.com/smartbulb/smartbulb-go/pkg/config"
	"github.com/smartbulb/smartbulb-go/pkg/discovery"
	"github.com/smartbulb/smartbulb-go/pkg/interaction"
	sblog "github.com/smartbulb/smartbulb-go/pkg/log"
	"github.com/smartbulb/smartbulb-go/pkg/metrics"
	"github.com/smartbulb/smartbulb-go/pkg/model"
	"github.com/smartbulb/smartbulb-go/pkg/mqttbridge"
	"github.com/smartbulb/smartbulb-go/pkg/registry"
	"github.com/smartbulb/smartbulb-go/pkg/transport"
	"github.com/smartbulb/smartbulb-go/pkg/version"
)

const serviceName = "smartbulb-server"

var (
	configFile  = flag.String("config", "", "YAML configuration file")
	listen      = flag.String("listen", "", "Listen address (overrides server.address)")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
	protocolLog = flag.String("protocol-log", "", "Write protocol events to a .sblog file")
	withMDNS    = flag.Bool("mdns", false, "Advertise the server over mDNS")
	withMetrics = flag.Bool("metrics", false, "Serve Prometheus metrics")
	withMQTT    = flag.Bool("mqtt", false, "Enable the MQTT bridge")
	interact    = flag.Bool("interactive", false, "Start the interactive shell")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	applyFlags(cfg)

	log.Println("Smart Bulb Server")
	log.Println("=================")

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

	protoLogger, closeProto := openProtocolLog(cfg.Server.ProtocolLog, logger)
	defer closeProto()

	space := model.NewAddressSpace("urn:smartbulb:" + cfg.Server.Name)

	rcfg := cfg.RegistryConfig()
	rcfg.Logger = logger.With("component", "registry")
	rcfg.ProtocolLogger = protoLogger
	reg, err := registry.New(space, rcfg)
	if err != nil {
		log.Fatalf("Failed to build device registry: %v", err)
	}
	checkProfile(reg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := reg.Start(ctx); err != nil {
		log.Fatalf("Failed to start device registry: %v", err)
	}
	defer reg.Stop()

	srv := interaction.NewServer(interaction.ServerConfig{
		Space:          space,
		Fresh:          reg,
		Logger:         logger.With("component", "interaction"),
		ProtocolLogger: protoLogger,
	})
	defer srv.Close()

	tsrv := transport.NewServer(transport.ServerConfig{
		Address:      cfg.Server.Address,
		Logger:       protoLogger,
		OnConnect:    func(c *transport.ServerConn) { srv.Connect(c) },
		OnMessage:    func(c *transport.ServerConn, data []byte) { srv.HandleMessage(ctx, c, data) },
		OnDisconnect: func(c *transport.ServerConn) { srv.Disconnect(c) },
	})
	if err := tsrv.Start(ctx); err != nil {
		log.Fatalf("Failed to start listener: %v", err)
	}
	defer tsrv.Stop()

	endpoint := endpointFor(tsrv.Addr(), cfg.Server.Path)
	log.Printf("Server started on: %s", endpoint)
	log.Printf("Namespace URI: %s", cfg.Server.NamespaceURIs[0])
	printDevices(log.Writer(), reg)

	if cfg.Metrics.Enabled {
		m := metrics.New(version.Current)
		m.WatchRegistry(reg)
		m.WatchServer(srv)
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Address, logger.With("component", "metrics")); err != nil {
				logger.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	if cfg.MDNS.Enabled {
		adv := discovery.NewAdvertiser(discovery.AdvertiserConfig{
			Interface: cfg.MDNS.Interface,
			TTL:       discovery.DefaultTTL,
			Logger:    logger.With("component", "mdns"),
		})
		err := adv.Advertise(discovery.ServerInfo{
			Instance:     cfg.MDNS.Instance,
			Port:         endpoint.Port,
			Path:         endpoint.Path,
			NamespaceURI: cfg.Server.NamespaceURIs[0],
			Version:      version.Current,
		})
		if err != nil {
			log.Printf("Warning: mDNS advertising failed: %v", err)
		} else {
			log.Printf("Advertising %s as %q", discovery.ServiceType, cfg.MDNS.Instance)
			defer adv.Stop()
		}
	}

	if cfg.MQTT.Enabled {
		bcfg := cfg.BridgeConfig()
		bcfg.Logger = logger.With("component", "mqtt")
		bridge := mqttbridge.New(reg, bcfg)
		if err := bridge.Start(ctx); err != nil {
			log.Printf("Warning: MQTT bridge disabled: %v", err)
		} else {
			log.Printf("MQTT bridge connected to %s (prefix %s)", bcfg.Broker, bcfg.TopicPrefix)
			defer bridge.Stop()
		}
	}

	if shell != nil {
		go shell.Run(ctx, cancel, reg, srv)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
	}

	log.Println("Stopping server...")
	cancel()
	log.Println("Server stopped.")
}

func applyFlags(cfg *config.Config) {
	if *listen != "" {
		cfg.Server.Address = *listen
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *protocolLog != "" {
		cfg.Server.ProtocolLog = *protocolLog
	}
	if *withMDNS {
		cfg.MDNS.Enabled = true
	}
	if *withMetrics {
		cfg.Metrics.Enabled = true
	}
	if *withMQTT {
		cfg.MQTT.Enabled = true
	}
}

func newLogger(cfg *config.Config, out io.Writer) *slog.Logger {
	if out == os.Stderr {
		return logging.New(cfg.Logging, serviceName, version.Current)
	}
	// The shell owns the terminal; route records through it.
	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: logging.ParseLevel(cfg.Logging.Level)})
	return slog.New(handler).With("service", serviceName, "version", version.Current)
}

// openProtocolLog opens the .sblog file. Debug logging also mirrors protocol
// events to slog.
func openProtocolLog(path string, logger *slog.Logger) (sblog.Logger, func()) {
	var loggers []sblog.Logger
	closeFn := func() {}

	if path != "" {
		fl, err := sblog.NewFileLogger(path)
		if err != nil {
			log.Fatalf("Failed to open protocol log: %v", err)
		}
		log.Printf("Protocol log: %s", path)
		loggers = append(loggers, fl)
		closeFn = func() { _ = fl.Close() }
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		loggers = append(loggers, sblog.NewSlogAdapter(logger.With("component", "protocol")))
	}

	if len(loggers) == 0 {
		return nil, closeFn
	}
	return sblog.NewMultiLogger(loggers...), closeFn
}

func checkProfile(reg *registry.Registry, logger *slog.Logger) {
	profile, err := version.LoadCurrentProfile()
	if err != nil {
		logger.Warn("device profile unavailable", "error", err)
		return
	}
	for _, res := range reg.CheckProfile(profile) {
		for _, e := range res.Errors {
			logger.Error("device does not match profile", "profile", profile.Version, "problem", e)
		}
		for _, w := range res.Warnings {
			logger.Warn("device deviates from profile", "profile", profile.Version, "problem", w)
		}
	}
}

func endpointFor(addr net.Addr, path string) transport.Endpoint {
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return transport.Endpoint{Host: addr.String(), Port: transport.DefaultPort, Path: path}
	}
	if host == "" || host == "::" || host == "0.0.0.0" {
		if h, err := os.Hostname(); err == nil {
			host = h
		}
	}
	port, _ := strconv.Atoi(portStr)
	return transport.Endpoint{Host: host, Port: port, Path: path}
}

func printDevices(w io.Writer, reg *registry.Registry) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Available devices:")
	for _, d := range reg.Devices() {
		if d.Dimmable {
			fmt.Fprintf(w, "- %s (dimmable)\n", d.Name)
		} else {
			fmt.Fprintf(w, "- %s\n", d.Name)
		}
		for _, name := range d.Capabilities().Nodes {
			fmt.Fprintf(w, "    %-14s %s\n", name, d.Nodes[name])
		}
	}
	fmt.Fprintln(w)
}
