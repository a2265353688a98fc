// Package config loads the dispatcher's TOML configuration from
// platform-appropriate locations.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the dispatcher's full configuration, loaded from TOML.
type Config struct {
	// ListenAddr is the HTTP API bind address.
	ListenAddr string `toml:"listen_addr"`
	// DataDir overrides the platform data directory when set.
	DataDir string `toml:"data_dir"`
	// FileDir is the root of the local file store jobs reference.
	FileDir string `toml:"file_dir"`
	// LogLevel is one of ERROR, WARN, INFO, DEBUG.
	LogLevel string `toml:"log_level"`

	Dispatch  DispatchConfig  `toml:"dispatch"`
	SNMP      SNMPConfig      `toml:"snmp"`
	Monitor   MonitorConfig   `toml:"monitor"`
	Discovery DiscoveryConfig `toml:"discovery"`
}

// DispatchConfig holds the queue processor timings.
type DispatchConfig struct {
	TickSeconds        int `toml:"tick_seconds"`
	IdleMaxWaitSeconds int `toml:"idle_max_wait_seconds"`
	IdlePollSeconds    int `toml:"idle_poll_seconds"`
}

// SNMPConfig holds the management-protocol probe settings.
type SNMPConfig struct {
	Community      string `toml:"community"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// MonitorConfig holds the periodic monitoring loop settings.
type MonitorConfig struct {
	SupplyIntervalSeconds int `toml:"supply_interval_seconds"`
	SNMPIntervalSeconds   int `toml:"snmp_interval_seconds"`
}

// DiscoveryConfig controls mDNS printer discovery.
type DiscoveryConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		ListenAddr: "127.0.0.1:8632",
		FileDir:    "files",
		LogLevel:   "INFO",
		Dispatch: DispatchConfig{
			TickSeconds:        5,
			IdleMaxWaitSeconds: 300,
			IdlePollSeconds:    2,
		},
		SNMP: SNMPConfig{
			Community:      "public",
			TimeoutSeconds: 5,
		},
		Monitor: MonitorConfig{
			SupplyIntervalSeconds: 10,
			SNMPIntervalSeconds:   30,
		},
		Discovery: DiscoveryConfig{Enabled: false},
	}
}

// TickInterval returns the dispatch scheduler period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Dispatch.TickSeconds) * time.Second
}

// IdleMaxWait returns the post-dispatch spooler drain bound.
func (c *Config) IdleMaxWait() time.Duration {
	return time.Duration(c.Dispatch.IdleMaxWaitSeconds) * time.Second
}

// IdlePoll returns the spooler polling cadence.
func (c *Config) IdlePoll() time.Duration {
	return time.Duration(c.Dispatch.IdlePollSeconds) * time.Second
}

// SupplyInterval returns the supply monitor period.
func (c *Config) SupplyInterval() time.Duration {
	return time.Duration(c.Monitor.SupplyIntervalSeconds) * time.Second
}

// SNMPInterval returns the SNMP watcher period.
func (c *Config) SNMPInterval() time.Duration {
	return time.Duration(c.Monitor.SNMPIntervalSeconds) * time.Second
}

// SNMPTimeout returns the per-probe SNMP timeout.
func (c *Config) SNMPTimeout() time.Duration {
	return time.Duration(c.SNMP.TimeoutSeconds) * time.Second
}

// Load finds and parses fleetprint.toml, falling back to defaults when no
// file exists in any search path. A file that exists but fails to parse is
// an error; silent fallback would hide typos from operators.
func Load() (*Config, string, error) {
	path, data, err := FindConfigFile("fleetprint.toml")
	if err != nil {
		return Default(), "", nil
	}
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, path, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, path, nil
}

// LoadFile parses a specific config file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// FindConfigFile searches platform-appropriate locations for the named
// config file and returns the first hit.
func FindConfigFile(filename string) (string, []byte, error) {
	for _, path := range SearchPaths(filename) {
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}
	return "", nil, fmt.Errorf("%s not found in any search path", filename)
}

// SearchPaths returns the ordered list of locations to look for a config
// file: system directory, user config directory, executable directory,
// then the working directory.
func SearchPaths(filename string) []string {
	var paths []string

	switch runtime.GOOS {
	case "windows":
		paths = append(paths, filepath.Join(os.Getenv("ProgramData"), "FleetPrint", filename))
	case "darwin":
		paths = append(paths, filepath.Join("/Library/Application Support", "FleetPrint", filename))
	default:
		paths = append(paths, filepath.Join("/etc/fleetprint", filename))
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		switch runtime.GOOS {
		case "windows":
			paths = append(paths, filepath.Join(homeDir, "AppData", "Local", "FleetPrint", filename))
		case "darwin":
			paths = append(paths, filepath.Join(homeDir, "Library", "Application Support", "FleetPrint", filename))
		default:
			paths = append(paths, filepath.Join(homeDir, ".config", "fleetprint", filename))
		}
	}

	if exePath, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exePath), filename))
	}

	paths = append(paths, filepath.Join(".", filename))
	return paths
}

// DataDirectory returns the directory for the database and spool files,
// honoring an explicit override first. Service mode uses system paths,
// interactive mode the user's profile.
func DataDirectory(override string, isService bool) (string, error) {
	if override != "" {
		if err := os.MkdirAll(override, 0o755); err != nil {
			return "", fmt.Errorf("failed to create data directory: %w", err)
		}
		return override, nil
	}

	var dataDir string
	if isService {
		switch runtime.GOOS {
		case "windows":
			dataDir = filepath.Join(os.Getenv("ProgramData"), "FleetPrint")
		default:
			dataDir = "/var/lib/fleetprint"
		}
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not get user home directory: %w", err)
		}
		switch runtime.GOOS {
		case "windows":
			dataDir = filepath.Join(homeDir, "AppData", "Local", "FleetPrint")
		case "darwin":
			dataDir = filepath.Join(homeDir, "Library", "Application Support", "FleetPrint")
		default:
			dataDir = filepath.Join(homeDir, ".local", "share", "fleetprint")
		}
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}
