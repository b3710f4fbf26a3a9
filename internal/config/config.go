package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the process configuration read from the environment. CLI flags
// are applied on top by cmd/mockllm.
type Config struct {
	Host     string
	Port     int
	GRPCPort int // 0 disables the gRPC listener
	Profile  string
	LogLevel string

	// Resolver selection. ResponseModule wins over ResolverAddr, which wins
	// over ConfigFile.
	ConfigFile     string
	ResponseModule string // name of a registered callback
	ResolverAddr   string // host:port of a remote mockllm.v1.Resolver

	ChunkSize int // 0 streams one character per chunk

	// Latency for callback mode. Table mode reads it from the config file.
	LagPreset  string
	LagEnabled bool
	LagFactor  float64
}

// DefaultConfigFile is used when neither flag nor env names a config file.
const DefaultConfigFile = "responses.yml"

func getEnvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvStr(k string, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func LoadConfig() Config {
	cfg := Config{
		Host:     getEnvStr("HOST", "0.0.0.0"),
		Port:     getEnvInt("PORT", 8000),
		GRPCPort: getEnvInt("GRPC_PORT", 0),
		Profile:  getEnvStr("PROFILE", "default"),
		LogLevel: getEnvStr("LOG_LEVEL", ""),

		// MOCKLLM_RESPONSES_FILE is the legacy name of MOCKLLM_CONFIG_FILE.
		ConfigFile:     getEnvStr("MOCKLLM_CONFIG_FILE", getEnvStr("MOCKLLM_RESPONSES_FILE", "")),
		ResponseModule: getEnvStr("MOCKLLM_RESPONSE_MODULE", ""),
		ResolverAddr:   getEnvStr("MOCKLLM_RESOLVER_ADDR", ""),

		ChunkSize: getEnvInt("CHUNK_SIZE", 0),

		LagPreset:  strings.ToLower(getEnvStr("LAG_PRESET", "")),
		LagEnabled: getBool("LAG_ENABLED", false),
		LagFactor:  getEnvFloat("LAG_FACTOR", DefaultLagFactor),
	}
	ApplyLagPreset(&cfg)
	return cfg
}

// ResolvedConfigFile returns the config file to load in table mode, falling
// back to responses.yml in the working directory.
func (c Config) ResolvedConfigFile() string {
	if c.ConfigFile != "" {
		return c.ConfigFile
	}
	return DefaultConfigFile
}

// Mode reports which resolver the process will run with.
func (c Config) Mode() string {
	if c.ResponseModule != "" || c.ResolverAddr != "" {
		return "callback"
	}
	return "table"
}

// Settings returns the latency settings used when no config file is loaded.
func (c Config) Settings() Settings {
	return Settings{LagEnabled: c.LagEnabled, LagFactor: c.LagFactor}
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.GRPCPort < 0 || c.GRPCPort > 65535 {
		return fmt.Errorf("config: invalid grpc port %d", c.GRPCPort)
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("config: chunk size must be >= 0, got %d", c.ChunkSize)
	}
	if c.LagFactor <= 0 {
		return fmt.Errorf("config: lag factor must be > 0, got %v", c.LagFactor)
	}
	return nil
}
