package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/stake-plus/dao-monitor/src/data"
	"gopkg.in/yaml.v3"
)

// Options controls where Load looks for values.
type Options struct {
	// EnvFile is loaded into the process environment if present. Existing
	// variables win. Empty means ".env".
	EnvFile string
	// File is an optional flat YAML document of setting names to values.
	File string
	// Settings is the settings table snapshot, if a database is configured.
	Settings *data.Settings
	// Lookup replaces os.LookupEnv, for tests.
	Lookup func(string) (string, bool)
}

type resolver struct {
	settings *data.Settings
	lookup   func(string) (string, bool)
	file     map[string]string
}

// GetSetting resolves one value: settings table, environment, file, default.
func (r resolver) GetSetting(name, envKey, defaultValue string) string {
	if v := r.settings.Get(name); v != "" {
		return v
	}
	if envKey != "" {
		if v, ok := r.lookup(envKey); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	if v := r.file[name]; v != "" {
		return v
	}
	return defaultValue
}

func (r resolver) getBoolSetting(name, envKey string, defaultValue bool) bool {
	return parseBoolDefault(r.GetSetting(name, envKey, ""), defaultValue)
}

func (r resolver) getDuration(name, envKey string, defaultValue time.Duration) (time.Duration, error) {
	raw := r.GetSetting(name, envKey, "")
	if raw == "" {
		return defaultValue, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	// Bare integers are milliseconds.
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", envKey, raw)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func (r resolver) getInt(name, envKey string, defaultValue int) (int, error) {
	raw := r.GetSetting(name, envKey, "")
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", envKey, raw)
	}
	return n, nil
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// LoadEnvFile loads a dotenv file without overriding existing variables.
// A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func readFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	out := make(map[string]string, len(doc))
	for k, v := range doc {
		switch val := v.(type) {
		case nil:
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprint(item))
			}
			out[strings.ToLower(k)] = strings.Join(parts, ",")
		default:
			out[strings.ToLower(k)] = fmt.Sprint(val)
		}
	}
	return out, nil
}

// Load builds the configuration. It does not validate it.
func Load(opts Options) (*Config, error) {
	lookup := opts.Lookup
	if lookup == nil {
		if err := LoadEnvFile(opts.EnvFile); err != nil {
			log.Printf("config: %v", err)
		}
		lookup = os.LookupEnv
	}
	if opts.File == "" {
		if v, ok := lookup("MONITOR_CONFIG"); ok {
			opts.File = v
		}
	}
	file, err := readFile(opts.File)
	if err != nil {
		return nil, err
	}
	r := resolver{settings: opts.Settings, lookup: lookup, file: file}

	cfg := defaults()
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg.Env = strings.ToLower(r.GetSetting("monitor_env", "MONITOR_ENV", cfg.Env))
	cfg.LogLevel = r.GetSetting("log_level", "LOG_LEVEL", cfg.LogLevel)
	cfg.LogEncoding = r.GetSetting("log_encoding", "LOG_ENCODING", cfg.LogEncoding)

	cfg.Interval, err = r.getDuration("monitor_interval", "MONITOR_INTERVAL", cfg.Interval)
	collect(err)
	cfg.Pace, err = r.getDuration("monitor_pace", "MONITOR_PACE", cfg.Pace)
	collect(err)
	cfg.Window, err = r.getInt("monitor_window", "MONITOR_WINDOW", cfg.Window)
	collect(err)
	cfg.AnnounceDenied = r.getBoolSetting("monitor_announce_denied", "MONITOR_ANNOUNCE_DENIED", false)
	cfg.ExtraDestinations = r.GetSetting("monitor_destinations", "MONITOR_DESTINATIONS", "")

	cfg.SubgraphURL = r.GetSetting("subgraph_url", "SUBGRAPH_URL", cfg.SubgraphURL)
	cfg.DetailURL = r.GetSetting("detail_url", "DETAIL_URL", cfg.DetailURL)
	cfg.HTTPTimeout, err = r.getDuration("http_timeout", "HTTP_TIMEOUT", cfg.HTTPTimeout)
	collect(err)
	cfg.HTTPRetryAttempts, err = r.getInt("http_retry_attempts", "HTTP_RETRY_ATTEMPTS", cfg.HTTPRetryAttempts)
	collect(err)

	cfg.StoreBackend = strings.ToLower(r.GetSetting("store_backend", "STORE_BACKEND", cfg.StoreBackend))
	cfg.StorePath = r.GetSetting("store_path", "STORE_PATH", cfg.StorePath)
	cfg.MySQLDSN = r.GetSetting("mysql_dsn", "MYSQL_DSN", "")

	cfg.RedisURL = r.GetSetting("redis_url", "REDIS_URL", "")
	cfg.SendCacheBackend = strings.ToLower(r.GetSetting("send_cache_backend", "SEND_CACHE_BACKEND", cfg.SendCacheBackend))
	cfg.SendCacheTTL, err = r.getDuration("send_cache_ttl", "SEND_CACHE_TTL", cfg.SendCacheTTL)
	collect(err)
	cfg.DispatchConcurrency, err = r.getInt("dispatch_concurrency", "DISPATCH_CONCURRENCY", cfg.DispatchConcurrency)
	collect(err)

	suffix := strings.ToUpper(cfg.Env)
	cfg.Telegram = TelegramConfig{
		Token:  r.GetSetting("telegram_token_"+cfg.Env, "TELEGRAM_CURVE_PROPOSAL_MONITOR_"+suffix+"_KEY", ""),
		ChatID: r.GetSetting("telegram_group_id_"+cfg.Env, "TELEGRAM_"+suffix+"_GROUP_ID", ""),
	}
	cfg.Discord = DiscordConfig{
		Token:     r.GetSetting("discord_token_"+cfg.Env, "DISCORD_"+suffix+"_TOKEN", ""),
		ChannelID: r.GetSetting("discord_channel_id_"+cfg.Env, "DISCORD_"+suffix+"_CHANNEL_ID", ""),
	}

	cfg.Probe.Phrase = r.GetSetting("probe_phrase", "PROBE_PHRASE", cfg.Probe.Phrase)
	cfg.Probe.Reply = r.GetSetting("probe_reply", "PROBE_REPLY", cfg.Probe.Reply)
	cfg.Probe.Delay, err = r.getDuration("probe_delay", "PROBE_DELAY", cfg.Probe.Delay)
	collect(err)

	cfg.API.Enabled = r.getBoolSetting("api_enabled", "API_ENABLED", false)
	cfg.API.Addr = r.GetSetting("api_addr", "API_ADDR", cfg.API.Addr)
	cfg.API.JWTSecret = r.GetSetting("api_jwt_secret", "API_JWT_SECRET", "")
	if origins := r.GetSetting("api_allow_origins", "API_ALLOW_ORIGINS", ""); origins != "" {
		cfg.API.AllowOrigins = splitList(origins)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return &cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
