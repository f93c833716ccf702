package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the bot process
type Config struct {
	// IRC connection
	IRCServer   string // host:port
	IRCNick     string
	IRCUser     string
	IRCChannel  string
	IRCUseTLS   bool
	IRCPassword string

	// Variant table (monitored log files, dump templates, role/race vocab)
	VariantsPath string

	// Persistence (file cursors, mailbox, turncount thresholds)
	DataPath string

	// Tailer settings
	PollInterval time.Duration

	// Federation
	Peers        []string // nicks of peer bot processes
	Admins       []string // nicks allowed to administer other players' settings
	QueryTimeout time.Duration
	MaxPending   int // cap on concurrently outstanding peer queries

	// Observability
	LogLevel       string
	LogFile        string
	TracingEnabled bool
	OTLPEndpoint   string
	OTLPProtocol   string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		IRCServer:   getEnv("IRC_SERVER", "irc.libera.chat:6697"),
		IRCNick:     getEnv("IRC_NICK", "Beholder"),
		IRCUser:     getEnv("IRC_USER", "beholder"),
		IRCChannel:  getEnv("IRC_CHANNEL", "#hardfought"),
		IRCUseTLS:   getEnvBool("IRC_TLS", true),
		IRCPassword: getEnv("IRC_PASSWORD", ""),

		VariantsPath: getEnv("VARIANTS_PATH", "configs/variants.yaml"),
		DataPath:     getEnv("DATA_PATH", "beholder.db"),

		PollInterval: time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 3)) * time.Second,

		Peers:        parseNickList(getEnv("PEERS", "")),
		Admins:       parseNickList(getEnv("ADMINS", "")),
		QueryTimeout: time.Duration(getEnvInt("QUERY_TIMEOUT_SECONDS", 5)) * time.Second,
		MaxPending:   getEnvInt("MAX_PENDING_QUERIES", 64),

		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFile:        getEnv("LOG_FILE", ""),
		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", ""),
		OTLPProtocol:   getEnv("OTLP_PROTOCOL", "grpc"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.IRCServer == "" {
		return fmt.Errorf("IRC_SERVER is required")
	}
	if c.IRCNick == "" {
		return fmt.Errorf("IRC_NICK is required")
	}
	if c.IRCChannel == "" {
		return fmt.Errorf("IRC_CHANNEL is required")
	}
	if c.VariantsPath == "" {
		return fmt.Errorf("VARIANTS_PATH is required")
	}
	if c.DataPath == "" {
		return fmt.Errorf("DATA_PATH is required")
	}
	if c.PollInterval < time.Second {
		return fmt.Errorf("POLL_INTERVAL_SECONDS must be at least 1")
	}
	if c.QueryTimeout < time.Second {
		return fmt.Errorf("QUERY_TIMEOUT_SECONDS must be at least 1")
	}
	if c.MaxPending < 1 {
		return fmt.Errorf("MAX_PENDING_QUERIES must be at least 1")
	}

	return nil
}

// IsAdmin reports whether the given nick is a configured administrator
func (c *Config) IsAdmin(nick string) bool {
	for _, a := range c.Admins {
		if strings.EqualFold(a, nick) {
			return true
		}
	}
	return false
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// parseNickList parses a comma- or semicolon-separated list of nicks
func parseNickList(s string) []string {
	if s == "" {
		return nil
	}

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';'
	})

	result := make([]string, 0, len(fields))
	for _, f := range fields {
		trimmed := strings.TrimSpace(f)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
