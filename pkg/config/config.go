package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when neither file, env, nor flags provide a value.
const (
	DefaultPageSize           = 10
	DefaultProvisionalTimeout = 30 * time.Second
)

// Load reads the YAML config at path (if path is non-empty), applies
// environment overrides, and fills defaults. A missing file is an error; an
// empty path yields env + defaults only.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

// applyEnv overlays TRELLIS_* environment variables onto cfg. Env wins over
// file values; flags (handled by the caller) win over both.
func applyEnv(cfg *Config) {
	if v := os.Getenv("TRELLIS_ADDR"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("TRELLIS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("TRELLIS_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("TRELLIS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TRELLIS_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Timeline.PageSize = n
		}
	}
	if v := os.Getenv("TRELLIS_PROVISIONAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeline.ProvisionalTimeout = Duration(d)
		}
	}
	if v := os.Getenv("TRELLIS_ADMINS"); v != "" {
		cfg.Security.Admins = nil
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				cfg.Security.Admins = append(cfg.Security.Admins, id)
			}
		}
	}
	if v := os.Getenv("TRELLIS_MAINTENANCE_CRON"); v != "" {
		cfg.Maintenance.Cron = v
		cfg.Maintenance.Enabled = true
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = "./data"
	}
	if cfg.Timeline.PageSize <= 0 {
		cfg.Timeline.PageSize = DefaultPageSize
	}
	if cfg.Timeline.ProvisionalTimeout.Std() <= 0 {
		cfg.Timeline.ProvisionalTimeout = Duration(DefaultProvisionalTimeout)
	}
	if cfg.Security.RateLimit.RPS <= 0 {
		cfg.Security.RateLimit.RPS = 25
	}
	if cfg.Security.RateLimit.Burst <= 0 {
		cfg.Security.RateLimit.Burst = 50
	}
}

// ParseCommandFlags registers and parses the standard command-line flags,
// returning the values plus a map of which flags the user explicitly set.
func ParseCommandFlags() (addr, db, cfgPath string, set map[string]bool) {
	addrFlag := flag.String("addr", "", "listen address (host:port)")
	dbFlag := flag.String("db", "", "pebble database path")
	cfgFlag := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	set = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return *addrFlag, *dbFlag, *cfgFlag, set
}

// ResolveConfigPath picks the config path: explicit flag wins, then the
// TRELLIS_CONFIG env var, then empty (env + defaults).
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet {
		return flagVal
	}
	if v := os.Getenv("TRELLIS_CONFIG"); v != "" {
		return v
	}
	return ""
}
