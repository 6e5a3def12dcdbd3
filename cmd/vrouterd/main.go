// Command vrouterd runs the IPv4 forwarding-plane router as a standalone
// daemon: it loads a YAML configuration, opens a link-layer transport for
// every configured interface (one TAP device each by default, or a live
// pcap capture with --driver=pcap), and drives the forwarding engine against
// them until signaled to stop.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/go-netroute/vrouter/arpcache"
	"github.com/go-netroute/vrouter/config"
	"github.com/go-netroute/vrouter/forwarding"
	"github.com/go-netroute/vrouter/ifaceset"
	"github.com/go-netroute/vrouter/internal/pcapdriver"
	"github.com/go-netroute/vrouter/internal/tapdriver"
	"github.com/go-netroute/vrouter/nat"
	"github.com/go-netroute/vrouter/routetable"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	var flags rootFlags
	root := &cobra.Command{
		Use:   "vrouterd",
		Short: "IPv4 forwarding-plane router daemon",
	}
	registerFlags(root.PersistentFlags(), &flags)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "print version information and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("vrouterd %s (%s)\n", version, commit)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "run the router until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(flags)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(flags rootFlags) error {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(flags.logLevel),
	}))

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}

	deployment, err := build(cfg, log, flags.driver)
	if err != nil {
		return err
	}
	defer deployment.driver.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()

	if flags.metricsAddr != "" {
		startMetricsServer(log, flags.metricsAddr)
	}

	go deployment.arp.Run(stop)
	if deployment.nat != nil {
		go deployment.nat.Run(stop)
	}

	log.Info("vrouterd started", slog.Int("interfaces", len(cfg.Interfaces)))
	deployment.driver.Run(stop, deployment.engine.HandleFrame)
	log.Info("vrouterd stopped")
	return nil
}

func startMetricsServer(log *slog.Logger, addr string) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("failed to start metrics listener", slog.String("err", err.Error()))
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Info("metrics server listening", slog.String("addr", listener.Addr().String()))
		if err := http.Serve(listener, mux); err != nil {
			log.Error("metrics server stopped", slog.String("err", err.Error()))
		}
	}()
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// transport adapts either tapdriver.Driver or pcapdriver.Driver to a single
// shape deployment can hold and run, working around the two packages'
// FrameHandler types being distinct named types with identical underlying
// signatures.
type transport struct {
	sendFrame func(ifaceName string, frame []byte) error
	run       func(stop <-chan struct{}, handle func(ifaceName string, frame []byte))
	closeFn   func() error
}

func (t *transport) SendFrame(ifaceName string, frame []byte) error { return t.sendFrame(ifaceName, frame) }
func (t *transport) Run(stop <-chan struct{}, handle func(ifaceName string, frame []byte)) {
	t.run(stop, handle)
}
func (t *transport) Close() error { return t.closeFn() }

func tapTransport(d *tapdriver.Driver) *transport {
	return &transport{
		sendFrame: d.SendFrame,
		run:       func(stop <-chan struct{}, handle func(string, []byte)) { d.Run(stop, handle) },
		closeFn:   d.Close,
	}
}

func pcapTransport(d *pcapdriver.Driver) *transport {
	return &transport{
		sendFrame: d.SendFrame,
		run:       func(stop <-chan struct{}, handle func(string, []byte)) { d.Run(stop, handle) },
		closeFn:   d.Close,
	}
}

// deployment bundles everything build wires together for run to drive.
type deployment struct {
	engine *forwarding.Engine
	arp    *arpcache.Cache
	nat    *nat.Table
	driver *transport
}

// build turns a loaded configuration into a runnable deployment: interface
// set, routing table, optional NAT overlay, link-layer transport, and the
// forwarding engine wired across all of them. The transport is either
// per-interface TAP devices or, with --driver=pcap, live libpcap captures
// against the host's own NICs.
func build(cfg config.File, log *slog.Logger, driverName string) (*deployment, error) {
	ifaces, err := buildIfaceSet(cfg)
	if err != nil {
		return nil, err
	}
	routes, err := buildRouteTable(cfg)
	if err != nil {
		return nil, err
	}

	driver, err := openTransport(cfg, driverName)
	if err != nil {
		return nil, err
	}

	var engine *forwarding.Engine
	arpCache := arpcache.New(ifaces, driver.SendFrame, func(pkt arpcache.QueuedPacket, requestedInterface string) {
		log.Warn("dropping packet after ARP resolution failed", slog.String("interface", requestedInterface))
	}, log)
	engine = forwarding.New(ifaces, routes, arpCache, driver, log)

	var natTable *nat.Table
	if cfg.NAT.Enabled {
		natTable, err = buildNAT(cfg, ifaces, log)
		if err != nil {
			return nil, err
		}
		engine.EnableNAT(natTable, cfg.NAT.ExternalInterface)
	}

	return &deployment{engine: engine, arp: arpCache, nat: natTable, driver: driver}, nil
}

// openTransport builds the link-layer transport named by driverName: "tap"
// opens one TAP device per configured interface, "pcap" attaches a live
// libpcap capture to each configured interface name directly.
func openTransport(cfg config.File, driverName string) (*transport, error) {
	switch driverName {
	case "", "tap":
		links, err := openTaps(cfg)
		if err != nil {
			return nil, err
		}
		return tapTransport(tapdriver.NewDriver(links...)), nil
	case "pcap":
		names := make([]string, 0, len(cfg.Interfaces))
		for _, ifc := range cfg.Interfaces {
			names = append(names, ifc.Name)
		}
		d, err := pcapdriver.Open(names)
		if err != nil {
			return nil, fmt.Errorf("vrouterd: opening pcap driver: %w", err)
		}
		return pcapTransport(d), nil
	default:
		return nil, fmt.Errorf("vrouterd: unknown --driver %q, want tap or pcap", driverName)
	}
}

func openTaps(cfg config.File) ([]tapdriver.Link, error) {
	links := make([]tapdriver.Link, 0, len(cfg.Interfaces))
	for _, ifc := range cfg.Interfaces {
		prefix, _, err := ifc.Prefix()
		if err != nil {
			return nil, err
		}
		tap, err := tapdriver.NewTap(ifc.Name, prefix)
		if err != nil {
			return nil, fmt.Errorf("vrouterd: opening tap %q: %w", ifc.Name, err)
		}
		links = append(links, tap)
	}
	return links, nil
}

func buildIfaceSet(cfg config.File) (*ifaceset.Set, error) {
	ifaces := make([]ifaceset.Interface, 0, len(cfg.Interfaces))
	for _, ifc := range cfg.Interfaces {
		mac, err := config.ParseMAC(ifc.MAC)
		if err != nil {
			return nil, err
		}
		ip, err := config.ParseIPv4(ifc.IPv4)
		if err != nil {
			return nil, err
		}
		ifaces = append(ifaces, ifaceset.Interface{Name: ifc.Name, MAC: mac, IPv4: ip})
	}
	return ifaceset.New(ifaces)
}

func buildRouteTable(cfg config.File) (*routetable.Table, error) {
	routes := routetable.New()
	for _, r := range cfg.Routes {
		dest, err := config.ParseIPv4(r.Dest)
		if err != nil {
			return nil, err
		}
		mask, err := config.ParseIPv4(r.Mask)
		if err != nil {
			return nil, err
		}
		var gw [4]byte
		if r.Gateway != "" {
			gw, err = config.ParseIPv4(r.Gateway)
			if err != nil {
				return nil, err
			}
		}
		routes.Insert(routetable.Route{Dest: dest, Mask: mask, Gateway: gw, Interface: r.Interface})
	}
	return routes, nil
}

func buildNAT(cfg config.File, ifaces *ifaceset.Set, log *slog.Logger) (*nat.Table, error) {
	ext, ok := ifaces.ByName(cfg.NAT.ExternalInterface)
	if !ok {
		return nil, fmt.Errorf("vrouterd: nat external interface %q not found", cfg.NAT.ExternalInterface)
	}
	tbl := nat.NewWithAuxWindow(ext.IPv4, cfg.NAT.AuxWindowMin, cfg.NAT.AuxWindowMax, log)

	icmpTimeout, err := config.ParseDuration(cfg.NAT.ICMPTimeout, nat.DefaultICMPTimeout)
	if err != nil {
		return nil, err
	}
	tcpTimeout, err := config.ParseDuration(cfg.NAT.TCPTransitoryTimeout, nat.DefaultTCPTransitoryTimeout)
	if err != nil {
		return nil, err
	}
	tbl.SetTimeouts(icmpTimeout, tcpTimeout)
	return tbl, nil
}
