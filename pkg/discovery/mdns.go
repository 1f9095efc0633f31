package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/smartbulb/smartbulb-go/pkg/transport"
	"github.com/smartbulb/smartbulb-go/pkg/version"
)

// Service type and domain advertised by servers.
const (
	ServiceType = "_smartbulb._tcp"
	Domain      = "local."
)

// DefaultTTL is the record TTL used when none is configured.
const DefaultTTL = 120 * time.Second

// DefaultBrowseTimeout bounds FindServer when the context has no deadline.
const DefaultBrowseTimeout = 5 * time.Second

// ErrNoServer is returned when browsing ends without a compatible server.
var ErrNoServer = errors.New("no compatible server found")

// ErrNotAdvertising is returned by Update before Advertise.
var ErrNotAdvertising = errors.New("not advertising")

// AdvertiserConfig configures the mDNS advertiser.
type AdvertiserConfig struct {
	// Interface restricts advertising to one network interface. Empty means all.
	Interface string

	// TTL of the published records.
	TTL time.Duration

	Logger *slog.Logger
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{TTL: DefaultTTL}
}

// Advertiser publishes a server instance of ServiceType.
type Advertiser struct {
	config AdvertiserConfig
	logger *slog.Logger

	mu     sync.Mutex
	server *zeroconf.Server
	info   ServerInfo
}

// NewAdvertiser creates an advertiser. Nothing is published until Advertise.
func NewAdvertiser(config AdvertiserConfig) *Advertiser {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Advertiser{config: config, logger: logger}
}

// Advertise publishes info, replacing any previous registration.
func (a *Advertiser) Advertise(info ServerInfo) error {
	if info.Instance == "" {
		return errors.New("instance name required")
	}
	txt, err := EncodeServerTXT(info)
	if err != nil {
		return err
	}
	port := info.Port
	if port == 0 {
		port = transport.DefaultPort
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		info.Instance,
		ServiceType,
		Domain,
		port,
		TXTRecordsToStrings(txt),
		interfaces(a.config.Interface),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", ServiceType, err)
	}

	a.server = server
	a.info = info
	a.logger.Info("mDNS advertising", "instance", info.Instance, "port", port, "path", info.Path)
	return nil
}

// Update replaces the TXT records of the current registration.
func (a *Advertiser) Update(info ServerInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return ErrNotAdvertising
	}
	txt, err := EncodeServerTXT(info)
	if err != nil {
		return err
	}
	a.server.SetText(TXTRecordsToStrings(txt))
	a.info.Path = info.Path
	a.info.NamespaceURI = info.NamespaceURI
	a.info.Version = info.Version
	return nil
}

// Advertising reports whether a registration is active.
func (a *Advertiser) Advertising() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// Stop withdraws the registration. It is safe to call more than once.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
		a.logger.Info("mDNS advertising stopped", "instance", a.info.Instance)
	}
}

// interfaces returns the named interface, or nil for all interfaces.
func interfaces(name string) []net.Interface {
	if name == "" {
		return nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// Service is a browsed server instance.
type Service struct {
	Instance     string
	Host         string
	Port         int
	Addresses    []string
	Path         string
	NamespaceURI string
	Version      string
}

// Endpoint returns the sb.tcp endpoint of the service, preferring the first
// resolved address over the host name.
func (s *Service) Endpoint() transport.Endpoint {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	path := s.Path
	if path == "" {
		path = transport.DefaultPath
	}
	return transport.Endpoint{Host: host, Port: s.Port, Path: path}
}

// Address returns host:port for dialing.
func (s *Service) Address() string {
	return s.Endpoint().Address()
}

func (s *Service) String() string {
	return s.Instance + " (" + s.Endpoint().String() + ", v" + s.Version + ")"
}

// BrowserConfig configures the mDNS browser.
type BrowserConfig struct {
	// Interface restricts browsing to one network interface.
	Interface string

	// Version is the local protocol version used for compatibility checks.
	// Empty means version.Current.
	Version string

	Logger *slog.Logger
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{Version: version.Current}
}

// Browser finds servers advertising ServiceType.
type Browser struct {
	config BrowserConfig
	logger *slog.Logger
	local  version.ProtocolVersion
}

// NewBrowser creates a browser.
func NewBrowser(config BrowserConfig) (*Browser, error) {
	v := config.Version
	if v == "" {
		v = version.Current
	}
	local, err := version.Parse(v)
	if err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Browser{config: config, logger: logger, local: local}, nil
}

// Browse streams services until ctx is done. Entries seen on several
// interfaces are merged into one Service; only the first sighting of an
// instance is emitted.
func (b *Browser) Browse(ctx context.Context) (<-chan *Service, error) {
	out := make(chan *Service)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(out)

		services := make(map[string]*Service)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc, err := entryToService(entry)
				if err != nil {
					b.logger.Debug("ignoring mDNS entry", "instance", entry.Instance, "error", err)
					continue
				}
				if existing, found := services[svc.Instance]; found {
					existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
					continue
				}
				services[svc.Instance] = svc
				select {
				case out <- svc:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					removed = nil
					continue
				}
				if existing, found := services[entry.Instance]; found {
					existing.Addresses = removeAddresses(existing.Addresses, entry)
					if len(existing.Addresses) == 0 {
						delete(services, entry.Instance)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func(entries, removed chan *zeroconf.ServiceEntry) {
		if err := zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, b.options()...); err != nil {
			b.logger.Debug("mDNS browse ended", "error", err)
		}
	}(entries, removed)

	return out, nil
}

// FindServer returns the first browsed service with a compatible major
// version. Without a context deadline, DefaultBrowseTimeout applies.
func (b *Browser) FindServer(ctx context.Context) (*Service, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultBrowseTimeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	services, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	for svc := range services {
		if b.Compatible(svc) {
			return svc, nil
		}
		b.logger.Info("skipping incompatible server", "instance", svc.Instance, "version", svc.Version)
	}
	return nil, ErrNoServer
}

// Compatible reports whether svc speaks the browser's major version.
func (b *Browser) Compatible(svc *Service) bool {
	return b.local.Accepts(svc.Version) == nil
}

func (b *Browser) options() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if ifaces := interfaces(b.config.Interface); ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}
	return opts
}

func entryToService(entry *zeroconf.ServiceEntry) (*Service, error) {
	info, err := DecodeServerTXT(StringsToTXTRecords(entry.Text))
	if err != nil {
		return nil, err
	}
	if entry.Port <= 0 || entry.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", entry.Port)
	}

	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return &Service{
		Instance:     entry.Instance,
		Host:         entry.HostName,
		Port:         entry.Port,
		Addresses:    addrs,
		Path:         info.Path,
		NamespaceURI: info.NamespaceURI,
		Version:      info.Version,
	}, nil
}

// mergeAddresses appends addresses not already present.
func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses drops the addresses carried by entry.
func removeAddresses(addresses []string, entry *zeroconf.ServiceEntry) []string {
	drop := make(map[string]bool)
	for _, ip := range entry.AddrIPv4 {
		drop[ip.String()] = true
	}
	for _, ip := range entry.AddrIPv6 {
		drop[ip.String()] = true
	}
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !drop[addr] {
			result = append(result, addr)
		}
	}
	return result
}
