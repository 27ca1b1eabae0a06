// Package config loads busmirror's configuration from command-line flags and
// environment variables, the same flat-flag surface as the Python bridge this
// was distilled from (argparse, one level, no subcommands — see DESIGN.md for
// why no third-party flag library is used here).
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all busmirror configuration. It is populated once at startup
// and is immutable afterwards — unlike the teacher's Config, there are no
// runtime-mutable settings here, so no mutex is needed.
type Config struct {
	// Object bus
	BusAddress   string // overrides the system/session bus auto-detection; empty = auto
	VendorPrefix string // only services whose name starts with this are mirrored

	// Broker
	BrokerHost     string
	BrokerUser     string
	BrokerPassword string
	BrokerCACert   string
	KeepAlive      time.Duration

	// Cloud registration
	InitBroker         bool
	RegistrarTokenURL  string
	RegistrarEndpoint  string
	RegistrarClientID  string
	RegistrarSecret    string

	// Metrics
	MetricsAddr string

	// Logging
	LogJSON bool
	Debug   bool

	// Testing
	PortalIDOverride string
}

// defaults mirror the Python argparse defaults in dbus_mqtt.py.
const (
	defaultVendorPrefix = "com.victronenergy."
	defaultKeepAlive    = 60 * time.Second
)

// Load parses flags (falling back to BUSMIRROR_* environment variables for
// their defaults) and returns a Config. Flags take precedence over env vars,
// following the teacher's envStr/envBool/envDuration precedence convention.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("busmirror", flag.ContinueOnError)

	cfg := &Config{}
	fs.StringVar(&cfg.BusAddress, "bus-address", envStr("BUSMIRROR_BUS_ADDRESS", ""), "object-bus address override (default: auto-detect session/system bus)")
	fs.StringVar(&cfg.VendorPrefix, "vendor-prefix", envStr("BUSMIRROR_VENDOR_PREFIX", defaultVendorPrefix), "only services under this bus-name prefix are mirrored")
	fs.StringVar(&cfg.BrokerHost, "broker-host", envStr("BUSMIRROR_BROKER_HOST", ""), "MQTT broker host[:port]")
	fs.StringVar(&cfg.BrokerUser, "broker-user", envStr("BUSMIRROR_BROKER_USER", ""), "MQTT broker username")
	fs.StringVar(&cfg.BrokerPassword, "broker-password", envStr("BUSMIRROR_BROKER_PASSWORD", ""), "MQTT broker password")
	fs.StringVar(&cfg.BrokerCACert, "broker-ca-cert", envStr("BUSMIRROR_BROKER_CA_CERT", ""), "path to CA certificate for broker TLS")
	fs.DurationVar(&cfg.KeepAlive, "keep-alive", envDuration("BUSMIRROR_KEEP_ALIVE", defaultKeepAlive), "MQTT keep-alive interval")
	fs.BoolVar(&cfg.InitBroker, "init-broker", envBool("BUSMIRROR_INIT_BROKER", false), "register bridging credentials with the cloud broker at startup")
	fs.StringVar(&cfg.RegistrarTokenURL, "registrar-token-url", envStr("BUSMIRROR_REGISTRAR_TOKEN_URL", ""), "OAuth2 token endpoint for cloud registration")
	fs.StringVar(&cfg.RegistrarEndpoint, "registrar-endpoint", envStr("BUSMIRROR_REGISTRAR_ENDPOINT", ""), "cloud registration HTTP endpoint")
	fs.StringVar(&cfg.RegistrarClientID, "registrar-client-id", envStr("BUSMIRROR_REGISTRAR_CLIENT_ID", ""), "OAuth2 client id for cloud registration")
	fs.StringVar(&cfg.RegistrarSecret, "registrar-client-secret", envStr("BUSMIRROR_REGISTRAR_CLIENT_SECRET", ""), "OAuth2 client secret for cloud registration")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", envStr("BUSMIRROR_METRICS_ADDR", ""), "address to serve Prometheus /metrics on (empty disables it)")
	fs.BoolVar(&cfg.LogJSON, "log-json", envBool("BUSMIRROR_LOG_JSON", false), "emit logs as JSON")
	fs.BoolVar(&cfg.Debug, "debug", envBool("BUSMIRROR_DEBUG", false), "set logging level to debug")
	fs.StringVar(&cfg.PortalIDOverride, "portal-id-override", envStr("BUSMIRROR_PORTAL_ID_OVERRIDE", ""), "override the derived portal id (testing only)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration for invalid values.
func (c *Config) Validate() error {
	var errs []error
	if c.BrokerHost == "" {
		errs = append(errs, fmt.Errorf("-broker-host (or BUSMIRROR_BROKER_HOST) is required"))
	}
	if c.VendorPrefix == "" {
		errs = append(errs, fmt.Errorf("-vendor-prefix must not be empty"))
	}
	if c.KeepAlive <= 0 {
		errs = append(errs, fmt.Errorf("-keep-alive must be > 0, got %s", c.KeepAlive))
	}
	if c.InitBroker && (c.RegistrarTokenURL == "" || c.RegistrarEndpoint == "") {
		errs = append(errs, fmt.Errorf("-init-broker requires -registrar-token-url and -registrar-endpoint"))
	}
	return errors.Join(errs...)
}

// Values returns all configuration as a string map for startup display.
func (c *Config) Values() map[string]string {
	return map[string]string{
		"BUSMIRROR_BUS_ADDRESS":    c.BusAddress,
		"BUSMIRROR_VENDOR_PREFIX":  c.VendorPrefix,
		"BUSMIRROR_BROKER_HOST":    c.BrokerHost,
		"BUSMIRROR_BROKER_USER":    c.BrokerUser,
		"BUSMIRROR_BROKER_CA_CERT": c.BrokerCACert,
		"BUSMIRROR_KEEP_ALIVE":     c.KeepAlive.String(),
		"BUSMIRROR_INIT_BROKER":    fmt.Sprintf("%t", c.InitBroker),
		"BUSMIRROR_METRICS_ADDR":   c.MetricsAddr,
		"BUSMIRROR_LOG_JSON":       fmt.Sprintf("%t", c.LogJSON),
		"BUSMIRROR_DEBUG":          fmt.Sprintf("%t", c.Debug),
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
