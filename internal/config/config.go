package config

// Configuration loading and validation for rtegdb

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tturner/rtegdb/internal/errors"
)

// DefaultPath is the configuration file used when --config is not given.
const DefaultPath = "rtegdb.yaml"

// HexUint32 is a 32-bit value written as hex in YAML ("0x20000000").
// Decimal values are accepted as well.
type HexUint32 uint32

// UnmarshalYAML accepts 0x-prefixed hex or decimal scalars.
func (h *HexUint32) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number", node.Line)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(node.Value), 0, 32)
	if err != nil {
		return fmt.Errorf("line %d: invalid 32-bit value %q", node.Line, node.Value)
	}
	*h = HexUint32(v)
	return nil
}

// MarshalYAML writes the value as 0x%08X.
func (h HexUint32) MarshalYAML() (any, error) {
	return fmt.Sprintf("0x%08X", uint32(h)), nil
}

// ServerSection describes the GDB server connection.
type ServerSection struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// MaxMessageSize caps the receive size below the server's PacketSize.
	MaxMessageSize int           `yaml:"max_message_size"`
	Detach         bool          `yaml:"detach"`
	// Gateway reaches a GDB server on a remote host through SSH,
	// e.g. "ssh://user@lab-pc?key=~/.ssh/id_ed25519". Host and Port are
	// then resolved on the gateway host.
	Gateway  string        `yaml:"gateway,omitempty"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// TimeoutConfig holds protocol timeouts in milliseconds. Zero keeps the
// built-in default.
type TimeoutConfig struct {
	ReceiveMs int `yaml:"receive_ms"`
	LongMs    int `yaml:"long_ms"`
	SendMs    int `yaml:"send_ms"`
	ConsoleMs int `yaml:"console_ms"`
}

// StructureSection describes the g_rtedbg structure on the target.
type StructureSection struct {
	Address HexUint32 `yaml:"address"`
	// Size of the structure in bytes; 0 reads it from the header.
	Size int `yaml:"size"`
	// Filter replaces the restored filter after each transfer.
	Filter       *HexUint32 `yaml:"filter,omitempty"`
	Clear        bool       `yaml:"clear"`
	DelayMs      int        `yaml:"delay_ms"`
	SnapshotFile string     `yaml:"snapshot_file"`
	FilterNames  string     `yaml:"filter_names,omitempty"`
	// Upload copies each snapshot to this path on the gateway host.
	Upload string `yaml:"upload,omitempty"`
}

// ScriptsSection names command files and the decode command.
type ScriptsSection struct {
	// Start runs once after connecting.
	Start string `yaml:"start,omitempty"`
	// Decode is a shell command run after each successful transfer.
	Decode string `yaml:"decode,omitempty"`
	// CommandDir holds the 0.cmd .. 9.cmd files of the monitor.
	CommandDir string `yaml:"command_dir"`
}

type LoggingSection struct {
	Level         string `yaml:"level"`
	File          string `yaml:"file,omitempty"`
	Format        string `yaml:"format"`
	Communication bool   `yaml:"communication"`
	// LogEvery prints only every n-th console message of repeated
	// operations such as benchmark reads. The log file keeps them all.
	LogEvery int `yaml:"log_every"`
}

type CaptureSection struct {
	PCAP string `yaml:"pcap,omitempty"`
}

// BenchmarkSection configures the transfer speed test.
type BenchmarkSection struct {
	Repetitions int           `yaml:"repetitions"`
	MaxDuration time.Duration `yaml:"max_duration"`
	CSV         string        `yaml:"csv"`
	JSON        string        `yaml:"json,omitempty"`
}

// Config is the complete tool configuration.
type Config struct {
	Server    ServerSection    `yaml:"server"`
	Structure StructureSection `yaml:"structure"`
	Scripts   ScriptsSection   `yaml:"scripts"`
	Logging   LoggingSection   `yaml:"logging"`
	Capture   CaptureSection   `yaml:"capture"`
	Benchmark BenchmarkSection `yaml:"benchmark"`
}

// CreateDefaultConfig returns the configuration written by "config init".
func CreateDefaultConfig() *Config {
	cfg := &Config{
		Server: ServerSection{
			Host: "127.0.0.1",
			Port: 2331,
		},
		Structure: StructureSection{
			Address: 0x20000000,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unset fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Structure.SnapshotFile == "" {
		cfg.Structure.SnapshotFile = "data.bin"
	}
	if cfg.Scripts.CommandDir == "" {
		cfg.Scripts.CommandDir = "."
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.LogEvery == 0 {
		cfg.Logging.LogEvery = 1
	}
	if cfg.Benchmark.Repetitions == 0 {
		cfg.Benchmark.Repetitions = 1000
	}
	if cfg.Benchmark.MaxDuration == 0 {
		cfg.Benchmark.MaxDuration = 20 * time.Second
	}
	if cfg.Benchmark.CSV == "" {
		cfg.Benchmark.CSV = "speed_test.csv"
	}
}

const defaultHeader = `# rtegdb configuration
#
# server.port is the GDB server port of the debug probe software.
# structure.address is the address of the g_rtedbg structure (see the map file).
# structure.filter, when present, is written after every transfer instead of
# the filter value found on the target.
# server.gateway (ssh://user@host or socks5://host:port) reaches a GDB server
# that is not directly routable; structure.upload then copies each snapshot to
# the SSH gateway host.
`

// WriteDefaultConfig writes the default configuration to path.
func WriteDefaultConfig(path string) error {
	data, err := yaml.Marshal(CreateDefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	data = append([]byte(defaultHeader), data...)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// LoadConfig reads, defaults and validates the configuration at path. A
// missing file is created with defaults when autoCreate is set.
func LoadConfig(path string, autoCreate bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.WrapConfigError(fmt.Errorf("read config file: %w", err), path)
		}
		if !autoCreate {
			return nil, errors.WrapConfigError(fmt.Errorf("config file not found: %s", path), path)
		}
		if err := WriteDefaultConfig(path); err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapConfigError(fmt.Errorf("read created config file: %w", err), path)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapConfigError(fmt.Errorf("parse YAML: %w", err), path)
	}
	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges.
func Validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1..65535, got %d", cfg.Server.Port)
	}
	if n := cfg.Server.MaxMessageSize; n != 0 && (n < 256 || n > 65535) {
		return fmt.Errorf("server.max_message_size must be 0 or 256..65535, got %d", n)
	}
	t := cfg.Server.Timeouts
	if t.ReceiveMs < 0 || t.LongMs < 0 || t.SendMs < 0 || t.ConsoleMs < 0 {
		return fmt.Errorf("server.timeouts must not be negative")
	}
	if cfg.Structure.Address%4 != 0 {
		return fmt.Errorf("structure.address 0x%08X is not word aligned", uint32(cfg.Structure.Address))
	}
	if n := cfg.Structure.Size; n != 0 && (n%4 != 0 || n < 80) {
		return fmt.Errorf("structure.size must be 0 or a multiple of 4 of at least 80, got %d", n)
	}
	if cfg.Structure.DelayMs < 0 {
		return fmt.Errorf("structure.delay_ms must not be negative")
	}
	if cfg.Structure.Upload != "" {
		gw := strings.TrimSpace(cfg.Server.Gateway)
		if gw == "" || strings.HasPrefix(gw, "socks5") {
			return fmt.Errorf("structure.upload requires an SSH server.gateway")
		}
	}
	switch cfg.Logging.Level {
	case "silent", "error", "info", "verbose", "debug":
	default:
		return fmt.Errorf("logging.level must be silent, error, info, verbose or debug, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.LogEvery < 1 {
		return fmt.Errorf("logging.log_every must be positive")
	}
	if cfg.Benchmark.Repetitions < 1 {
		return fmt.Errorf("benchmark.repetitions must be positive")
	}
	return nil
}

// Timeout converts a millisecond setting.
func Timeout(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
