package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
	"gopkg.in/yaml.v3"
)

// Relay configures the dashboard relay process.
type Relay struct {
	Port             string `env:"PORT" default:"8765"`
	UDPAddr          string `env:"RELAY_UDP_ADDR" default:":9021"`
	CommandTarget    string `env:"RELAY_COMMAND_TARGET" default:"10.0.0.255:9022"`
	CommandBroadcast bool   `env:"RELAY_COMMAND_BROADCAST" default:"true"`
	LogLevel         string `env:"LOG_LEVEL" default:"info"`
	LogFormat        string `env:"LOG_FORMAT" default:"text"`

	// Empty means every origin is accepted.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS"`

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"1000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"50"`
	ConnectionRatePerIP     float64 `env:"CONNECTION_RATE_PER_IP" default:"10"`
	ConnectionBurstPerIP    int     `env:"CONNECTION_BURST_PER_IP" default:"20"`

	BroadcastSendTimeout time.Duration `env:"BROADCAST_SEND_TIMEOUT" default:"5s"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Agent configures the access-point agent process.
type Agent struct {
	ListenPort int    `env:"AGENT_LISTEN_PORT" default:"9001"`
	TargetIP   string `env:"AGENT_TARGET_IP" default:"127.0.0.1"`
	TargetPort int    `env:"AGENT_TARGET_PORT" default:"9000"`

	// Hostname names the telemetry topic; empty means os.Hostname.
	Hostname          string        `env:"AGENT_HOSTNAME"`
	TelemetryInterval time.Duration `env:"AGENT_TELEMETRY_INTERVAL" default:"1s"`
	CommandTimeout    time.Duration `env:"AGENT_COMMAND_TIMEOUT" default:"5s"`
	SysfsRoot         string        `env:"AGENT_SYSFS_ROOT" default:"/sys"`
	LeasesFile        string        `env:"AGENT_LEASES_FILE" default:"/tmp/dhcp.leases"`

	// MetricsAddr enables a Prometheus listener when set, e.g. ":9102".
	MetricsAddr string `env:"AGENT_METRICS_ADDR"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`
}

// ListenAddr is the UDP address steering commands are received on.
func (a *Agent) ListenAddr() string {
	return net.JoinHostPort("", strconv.Itoa(a.ListenPort))
}

// TargetAddr is the UDP address telemetry and responses are sent to.
func (a *Agent) TargetAddr() string {
	return net.JoinHostPort(a.TargetIP, strconv.Itoa(a.TargetPort))
}

// agentFile is the YAML form of the agent config. Only keys present in the file
// override the environment.
type agentFile struct {
	OSC struct {
		IP         *string `yaml:"ip"`
		Port       *int    `yaml:"port"`
		ListenPort *int    `yaml:"listen_port"`
	} `yaml:"osc"`
	Telemetry struct {
		Hostname   *string        `yaml:"hostname"`
		Interval   *time.Duration `yaml:"interval"`
		LeasesFile *string        `yaml:"leases_file"`
	} `yaml:"telemetry"`
	MetricsAddr *string `yaml:"metrics_addr"`
}

func LoadRelay() (*Relay, error) {
	loadDotEnv()

	var cfg Relay
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validateRelay(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadAgent reads the environment and then applies the YAML file at path, if any.
func LoadAgent(path string) (*Agent, error) {
	loadDotEnv()

	var cfg Agent
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if path != "" {
		if err := applyAgentFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	if err := validateAgent(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}
}

func applyAgentFile(cfg *Agent, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var file agentFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if file.OSC.IP != nil {
		cfg.TargetIP = *file.OSC.IP
	}
	if file.OSC.Port != nil {
		cfg.TargetPort = *file.OSC.Port
	}
	if file.OSC.ListenPort != nil {
		cfg.ListenPort = *file.OSC.ListenPort
	}
	if file.Telemetry.Hostname != nil {
		cfg.Hostname = *file.Telemetry.Hostname
	}
	if file.Telemetry.Interval != nil {
		cfg.TelemetryInterval = *file.Telemetry.Interval
	}
	if file.Telemetry.LeasesFile != nil {
		cfg.LeasesFile = *file.Telemetry.LeasesFile
	}
	if file.MetricsAddr != nil {
		cfg.MetricsAddr = *file.MetricsAddr
	}
	return nil
}

func validateRelay(cfg *Relay) error {
	if err := validatePort("PORT", cfg.Port); err != nil {
		return err
	}
	if _, _, err := net.SplitHostPort(cfg.UDPAddr); err != nil {
		return fmt.Errorf("RELAY_UDP_ADDR must be host:port: %w", err)
	}
	if _, _, err := net.SplitHostPort(cfg.CommandTarget); err != nil {
		return fmt.Errorf("RELAY_COMMAND_TARGET must be host:port: %w", err)
	}
	if cfg.MaxWebSocketConnections <= 0 {
		return errors.New("MAX_WEBSOCKET_CONNECTIONS must be positive")
	}
	if cfg.MaxConnectionsPerIP <= 0 {
		return errors.New("MAX_CONNECTIONS_PER_IP must be positive")
	}
	if cfg.ConnectionRatePerIP <= 0 || cfg.ConnectionBurstPerIP <= 0 {
		return errors.New("CONNECTION_RATE_PER_IP and CONNECTION_BURST_PER_IP must be positive")
	}
	if cfg.BroadcastSendTimeout <= 0 {
		return errors.New("BROADCAST_SEND_TIMEOUT must be positive")
	}
	return validateLogFormat(cfg.LogFormat)
}

func validateAgent(cfg *Agent) error {
	if err := validatePort("AGENT_LISTEN_PORT", strconv.Itoa(cfg.ListenPort)); err != nil {
		return err
	}
	if err := validatePort("AGENT_TARGET_PORT", strconv.Itoa(cfg.TargetPort)); err != nil {
		return err
	}
	if net.ParseIP(cfg.TargetIP) == nil {
		return fmt.Errorf("AGENT_TARGET_IP must be an IP address, got %q", cfg.TargetIP)
	}
	if cfg.TelemetryInterval <= 0 {
		return errors.New("AGENT_TELEMETRY_INTERVAL must be positive")
	}
	return validateLogFormat(cfg.LogFormat)
}

func validatePort(name, value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("%s must be a port between 1 and 65535, got %q", name, value)
	}
	return nil
}

func validateLogFormat(format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", format)
	}
	return nil
}
