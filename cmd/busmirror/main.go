package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bridgeworks/busmirror/internal/broker"
	"github.com/bridgeworks/busmirror/internal/busvalue"
	"github.com/bridgeworks/busmirror/internal/clock"
	"github.com/bridgeworks/busmirror/internal/config"
	"github.com/bridgeworks/busmirror/internal/logging"
	"github.com/bridgeworks/busmirror/internal/mirror"
	"github.com/bridgeworks/busmirror/internal/objectbus"
	"github.com/bridgeworks/busmirror/internal/registrator"
)

// itemInterface is the D-Bus interface every mirrored object implements
// (GetValue/SetValue/GetItems/PropertiesChanged).
const itemInterface = "com.victronenergy.BusItem"

// version and commit are set at build time via ldflags:
//
//	-X main.version=$(VERSION) -X main.commit=$(COMMIT)
var version = "dev"
var commit = "unknown"

func versionString() string {
	if commit != "" && commit != "unknown" {
		return version + " (" + commit + ")"
	}
	return version
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogJSON, cfg.Debug)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()
	go dumpStacksOnSIGUSR1(ctx, log)

	fmt.Println("busmirror " + versionString())
	fmt.Println("=============================================")
	for k, v := range cfg.Values() {
		fmt.Printf("%s=%s\n", k, v)
	}
	fmt.Println("=============================================")

	values := busvalue.New(cfg.PortalIDOverride)
	portalID, err := values.PortalID()
	if err != nil {
		log.Error("failed to derive portal id", "error", err)
		os.Exit(1)
	}
	log.Info("derived portal id", "portal_id", portalID)

	bus, err := objectbus.Connect(cfg.BusAddress, itemInterface)
	if err != nil {
		log.Error("failed to connect to object bus", "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	var reg registrator.Registrator
	if cfg.InitBroker {
		reg = registrator.New(registrator.Config{
			TokenURL:     cfg.RegistrarTokenURL,
			Endpoint:     cfg.RegistrarEndpoint,
			ClientID:     cfg.RegistrarClientID,
			ClientSecret: cfg.RegistrarSecret,
		})
		log.Info("cloud registration enabled", "endpoint", cfg.RegistrarEndpoint)
	} else {
		reg = registrator.NewNoop("")
	}

	b := broker.New(broker.Config{
		Host:       cfg.BrokerHost,
		ClientID:   reg.ClientID(),
		Username:   cfg.BrokerUser,
		Password:   cfg.BrokerPassword,
		CACertPath: cfg.BrokerCACert,
		KeepAlive:  cfg.KeepAlive,
	})

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, log)
	}

	o := mirror.New(bus, b, reg, clock.Real{}, log, cfg.VendorPrefix, portalID)

	log.Info("busmirror started", "version", version, "commit", commit, "vendor_prefix", cfg.VendorPrefix)

	if err := o.Run(ctx); err != nil {
		log.Error("busmirror exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("busmirror shutdown complete")
}

// serveMetrics exposes Prometheus metrics over HTTP until the process exits.
func serveMetrics(addr string, log *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server exited", "error", err)
	}
}

// dumpStacksOnSIGUSR1 writes every goroutine's stack to the log whenever the
// process receives SIGUSR1, a diagnostic aid for investigating a stuck
// dispatcher without restarting the bridge.
func dumpStacksOnSIGUSR1(ctx context.Context, log *logging.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1)
	defer signal.Stop(sigCh)

	buf := make([]byte, 1<<20)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			n := runtime.Stack(buf, true)
			log.Info("SIGUSR1 stack dump", "stacks", string(buf[:n]))
		}
	}
}
