package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/cipforge/adapter/internal/config"
	"github.com/cipforge/adapter/internal/logging"
	"github.com/cipforge/adapter/internal/metrics"
	"github.com/cipforge/adapter/pkg/cip"
	"github.com/cipforge/adapter/pkg/encap"
	"github.com/cipforge/adapter/pkg/netloop"
	"github.com/cipforge/adapter/pkg/objects/assembly"
	"github.com/cipforge/adapter/pkg/objects/connmgr"
	"github.com/cipforge/adapter/pkg/objects/identity"
	"github.com/cipforge/adapter/pkg/objects/tcpip"
)

func main() {
	var configPath string
	var logLevel string

	rootCmd := &cobra.Command{
		Use:   "adapter",
		Short: "CIP/EtherNet-IP message router and cyclic I/O adapter",
		Long: `adapter runs a single-threaded CIP/EtherNet-IP message router: explicit
messaging over TCP (port 44818), unsolicited discovery over UDP broadcast
(port 2222), and cyclic I/O over UDP connections negotiated through the
Connection Manager's Forward_Open service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML configuration file (defaults built in when omitted)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, logLevel string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(logLevel)
	metricsReg := metrics.New()

	tcpAddr, err := parseAddr(cfg.TCPAddr)
	if err != nil {
		return fmt.Errorf("adapter: tcp_addr: %w", err)
	}
	udpAddr, err := parseAddr(cfg.UDPAddr)
	if err != nil {
		return fmt.Errorf("adapter: udp_addr: %w", err)
	}

	tcpFD, err := netloop.ListenTCP(tcpAddr, cfg.MaxTCPSockets)
	if err != nil {
		return fmt.Errorf("adapter: listen tcp: %w", err)
	}
	udpFD, err := netloop.ListenUDPBroadcast(udpAddr)
	if err != nil {
		return fmt.Errorf("adapter: listen udp: %w", err)
	}

	router := cip.NewRouter()
	identityCfg := encap.Identity{
		VendorID:     cfg.Identity.VendorID,
		DeviceType:   cfg.Identity.DeviceType,
		ProductCode:  cfg.Identity.ProductCode,
		RevisionMaj:  cfg.Identity.RevisionMaj,
		RevisionMin:  cfg.Identity.RevisionMin,
		SerialNumber: cfg.Identity.SerialNumber,
		ProductName:  cfg.Identity.ProductName,
	}
	adapter := encap.New(router, identityCfg)

	assemblies := assembly.NewAssemblyObject()
	for _, a := range cfg.Assemblies {
		assemblies.RegisterAssembly(a.InstanceID, make([]byte, a.Size))
	}

	loopCfg := netloop.Config{
		TickMs:        cfg.TickMs,
		BufferSize:    cfg.BufferSize,
		TimeToLive:    cfg.TimeToLive,
		MaxTCPSockets: cfg.MaxTCPSockets,
	}

	// connMgr and loop are mutually referential: the loop's periodic tick
	// drives connMgr.Manage, and connMgr allocates its cyclic I/O sockets
	// through the loop's UDP Socket Factory. Constructing the loop first
	// with a closure over connMgr (assigned a moment later, before the
	// loop ever calls it) breaks the cycle without a setter on either side.
	var connMgr *connmgr.ConnectionManager
	loop := netloop.New(loopCfg, logger, tcpFD, udpFD, adapter, func() {
		metricsReg.ConnectionManagerTicks.Inc()
		connMgr.Manage()
	})
	connMgr = connmgr.New(loop, func(instanceID uint32, data []byte, from unix.Sockaddr) {
		_ = from
		_ = assemblies.SetAttributeSingle(instanceID, 3, data)
	})

	registerClasses(router, cfg, assemblies, connMgr)

	go func() {
		logger.Infof("metrics listening on %s", cfg.MetricsAddr)
		if err := metricsReg.Serve(cfg.MetricsAddr); err != nil {
			logger.Warnf("metrics server stopped: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		<-sigChan
		logger.Infof("shutting down")
		close(done)
	}()

	logger.Infof("tcp listening on %s, udp listening on %s", cfg.TCPAddr, cfg.UDPAddr)
	for {
		select {
		case <-done:
			return nil
		default:
		}
		if err := loop.ProcessOnce(); err != nil {
			logger.Errorf("netloop: %v", err)
			return err
		}
	}
}

func registerClasses(router *cip.Router, cfg config.Config, assemblies *assembly.AssemblyObject, connMgr *connmgr.ConnectionManager) {
	idObj := identity.New(identity.Identity{
		VendorID:     cip.UINT(cfg.Identity.VendorID),
		DeviceType:   cip.UINT(cfg.Identity.DeviceType),
		ProductCode:  cip.UINT(cfg.Identity.ProductCode),
		RevisionMaj:  cip.USINT(cfg.Identity.RevisionMaj),
		RevisionMin:  cip.USINT(cfg.Identity.RevisionMin),
		SerialNumber: cip.UDINT(cfg.Identity.SerialNumber),
		ProductName:  cfg.Identity.ProductName,
	})
	router.RegisterClass(cip.NewClass(cip.ClassIdentity, "Identity", 1, idObj))

	tcpipObj := tcpip.New(tcpip.Config{
		IPAddress:   parseIPToUDINT(cfg.Interface.IPAddress),
		NetworkMask: parseIPToUDINT(cfg.Interface.NetworkMask),
		Gateway:     parseIPToUDINT(cfg.Interface.Gateway),
		HostName:    cfg.Interface.HostName,
	})
	router.RegisterClass(cip.NewClass(cip.ClassTCPIPInterface, "TCP/IP Interface", 1, tcpipObj))

	router.RegisterClass(cip.NewClass(cip.ClassAssembly, "Assembly", 1, assemblies))
	router.RegisterClass(cip.NewClass(cip.ClassConnectionMgr, "Connection Manager", 1, connMgr))
}

// parseIPToUDINT packs a dotted-quad string into the little-endian UDINT the
// TCP/IP Interface Object's Interface Configuration attribute expects. An
// empty or malformed string yields 0 (unconfigured).
func parseIPToUDINT(s string) cip.UDINT {
	if s == "" {
		return 0
	}
	var a, b, c, d uint32
	if n, _ := fmt.Sscanf(s, "%d.%d.%d.%d", &a, &b, &c, &d); n != 4 {
		return 0
	}
	return cip.UDINT(a | b<<8 | c<<16 | d<<24)
}

// parseAddr parses "a.b.c.d:port" into the SockaddrInet4 the netloop
// listener constructors take; this adapter runs bound to concrete literal
// addresses rather than resolving hostnames, matching the embedded-device
// target this code is modeled on.
func parseAddr(s string) (unix.SockaddrInet4, error) {
	var addr unix.SockaddrInet4
	var a, b, c, d, port int
	if _, err := fmt.Sscanf(s, "%d.%d.%d.%d:%d", &a, &b, &c, &d, &port); err != nil {
		return addr, fmt.Errorf("expected ip:port, got %q: %w", s, err)
	}
	addr.Addr = [4]byte{byte(a), byte(b), byte(c), byte(d)}
	addr.Port = port
	return addr, nil
}
