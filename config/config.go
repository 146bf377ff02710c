package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix selects the environment variables Load reads, e.g.
// STATIC_PORT or STATIC_DOCUMENT_ROOT.
const EnvPrefix = "STATIC"

// Config holds all application configuration.
type Config struct {
	Host            string        `yaml:"host" config:"host"`
	Port            int           `yaml:"port" config:"port"`
	DocumentRoot    string        `yaml:"document_root" config:"document.root"`
	DefaultDocument string        `yaml:"default_document" config:"default.document"`
	ReadBufferSize  int           `yaml:"read_buffer_size" config:"read.buffer.size"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" config:"idle.timeout"`
	MaxConnections  int           `yaml:"max_connections" config:"max.connections"`
	MaxWorkers      int           `yaml:"max_workers" config:"max.workers"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" config:"shutdown.timeout"`
	StatsInterval   time.Duration `yaml:"stats_interval" config:"stats.interval"`
	GCPercent       int           `yaml:"gc_percent" config:"gc.percent"`
	MemoryLimit     int64         `yaml:"memory_limit" config:"memory.limit"`
	Env             string        `yaml:"env" config:"env"`
	LogLevel        string        `yaml:"log_level" config:"log.level"`
	LogFormat       string        `yaml:"log_format" config:"log.format"`
}

// Default returns the built-in configuration: port 8000, ./www, no
// timeouts and no admission limits.
func Default() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            8000,
		DocumentRoot:    "www",
		DefaultDocument: "index.html",
		ReadBufferSize:  1024,
		Env:             "development",
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load builds a Config from the defaults, the optional YAML file at path
// and STATIC_* environment variables, in that order, and validates it.
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	m := NewManager()
	m.LoadFromEnv(EnvPrefix)
	if err := m.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}
	return cfg, nil
}

// New loads configuration from flags, the config file they name and env vars.
// It exits the process on invalid input.
func New() *Config {
	cfg, err := Parse(os.Args[1:], os.Stderr)
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	return cfg
}

// Parse reads command-line flags. Flags that are explicitly set override
// the file and environment layers.
func Parse(args []string, output io.Writer) (*Config, error) {
	fs := flag.NewFlagSet("static-server", flag.ContinueOnError)
	fs.SetOutput(output)

	def := Default()
	configPath := fs.String("config", "", "YAML configuration file")
	host := fs.String("host", def.Host, "IPv4 address to bind")
	port := fs.Int("port", def.Port, "TCP port")
	root := fs.String("root", def.DocumentRoot, "document root directory")
	index := fs.String("index", def.DefaultDocument, "document served for /")
	readBuf := fs.Int("read-buffer", def.ReadBufferSize, "per-connection read buffer size in bytes")
	idle := fs.Duration("idle-timeout", def.IdleTimeout, "close connections idle this long (0 disables)")
	maxConns := fs.Int("max-conns", def.MaxConnections, "maximum concurrent connections (0 is unbounded)")
	maxWorkers := fs.Int("max-workers", def.MaxWorkers, "maximum tracked workers (0 is unbounded)")
	shutdown := fs.Duration("shutdown-timeout", def.ShutdownTimeout, "bound on draining workers at shutdown (0 waits forever)")
	statsEvery := fs.Duration("stats-interval", def.StatsInterval, "log counters this often (0 disables)")
	gcPercent := fs.Int("gc-percent", def.GCPercent, "GOGC target percentage (0 keeps the runtime default)")
	memLimit := fs.Int64("memory-limit", def.MemoryLimit, "soft memory limit in bytes (0 is none)")
	env := fs.String("env", def.Env, "Environment (development/production)")
	level := fs.String("log-level", def.LogLevel, "debug, info, warn or error")
	format := fs.String("log-format", def.LogFormat, "text or json")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := load(*configPath)
	if err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = *host
		case "port":
			cfg.Port = *port
		case "root":
			cfg.DocumentRoot = *root
		case "index":
			cfg.DefaultDocument = *index
		case "read-buffer":
			cfg.ReadBufferSize = *readBuf
		case "idle-timeout":
			cfg.IdleTimeout = *idle
		case "max-conns":
			cfg.MaxConnections = *maxConns
		case "max-workers":
			cfg.MaxWorkers = *maxWorkers
		case "shutdown-timeout":
			cfg.ShutdownTimeout = *shutdown
		case "stats-interval":
			cfg.StatsInterval = *statsEvery
		case "gc-percent":
			cfg.GCPercent = *gcPercent
		case "memory-limit":
			cfg.MemoryLimit = *memLimit
		case "env":
			cfg.Env = *env
		case "log-level":
			cfg.LogLevel = *level
		case "log-format":
			cfg.LogFormat = *format
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.DocumentRoot == "" {
		return fmt.Errorf("document root must not be empty")
	}
	if c.DefaultDocument == "" || strings.ContainsAny(c.DefaultDocument, `/\`) {
		return fmt.Errorf("invalid default document: %q", c.DefaultDocument)
	}
	if c.ReadBufferSize < 16 {
		return fmt.Errorf("read buffer too small: %d", c.ReadBufferSize)
	}
	if c.IdleTimeout < 0 || c.ShutdownTimeout < 0 || c.StatsInterval < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.GCPercent < 0 || c.MemoryLimit < 0 {
		return fmt.Errorf("runtime tuning must not be negative")
	}
	if c.MaxConnections < 0 || c.MaxWorkers < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %q", c.LogFormat)
	}
	return nil
}

// Addr returns the host:port the server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
