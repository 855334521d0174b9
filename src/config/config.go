// Package config assembles the monitor configuration. Every value is looked
// up in the settings table first, then the environment, then the optional
// YAML file, then falls back to a default.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stake-plus/dao-monitor/src/notify"
	"github.com/stake-plus/dao-monitor/src/services/monitor"
	"github.com/stake-plus/dao-monitor/src/source"
)

// ErrInvalid is returned by Validate for unusable configurations.
var ErrInvalid = errors.New("config: invalid")

const (
	EnvProd = "prod"
	EnvTest = "test"

	StoreFile  = "file"
	StoreMySQL = "mysql"

	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// TelegramConfig holds the credentials picked by the environment selector.
type TelegramConfig struct {
	Token  string
	ChatID string
}

// DiscordConfig holds the credentials picked by the environment selector.
type DiscordConfig struct {
	Token     string
	ChannelID string
}

// ProbeConfig is the liveness probe wording.
type ProbeConfig struct {
	Phrase string
	Reply  string
	Delay  time.Duration
}

// APIConfig configures the operator HTTP API.
type APIConfig struct {
	Enabled      bool
	Addr         string
	JWTSecret    string
	AllowOrigins []string
}

// Config is the full runtime configuration.
type Config struct {
	Env         string
	LogLevel    string
	LogEncoding string

	Interval       time.Duration
	Pace           time.Duration
	Window         int
	AnnounceDenied bool
	DryRun         bool

	SubgraphURL       string
	DetailURL         string
	HTTPTimeout       time.Duration
	HTTPRetryAttempts int

	StoreBackend string
	StorePath    string
	MySQLDSN     string

	RedisURL         string
	SendCacheBackend string
	SendCacheTTL     time.Duration
	StreamMaxLen     int64

	// DispatchConcurrency bounds parallel deliveries per announcement.
	DispatchConcurrency int

	Telegram          TelegramConfig
	Discord           DiscordConfig
	ExtraDestinations string
	Probe             ProbeConfig
	API               APIConfig
}

// Destinations lists where announcements go. A dry run only prints.
func (c *Config) Destinations() ([]notify.Destination, error) {
	if c.DryRun {
		return []notify.Destination{{Kind: "stdout"}}, nil
	}
	var dests []notify.Destination
	if c.Telegram.Token != "" && c.Telegram.ChatID != "" {
		dests = append(dests, notify.Destination{Kind: "telegram", Target: c.Telegram.ChatID})
	}
	if c.Discord.Token != "" && c.Discord.ChannelID != "" {
		dests = append(dests, notify.Destination{Kind: "discord", Target: c.Discord.ChannelID})
	}
	extra, err := notify.ParseDestinations(c.ExtraDestinations)
	if err != nil {
		return nil, err
	}
	for _, d := range extra {
		dup := false
		for _, existing := range dests {
			if existing == d {
				dup = true
				break
			}
		}
		if !dup {
			dests = append(dests, d)
		}
	}
	return dests, nil
}

// Validate reports the first problem that would prevent the monitor from
// running correctly.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Env != EnvProd && c.Env != EnvTest {
		add("MONITOR_ENV must be %q or %q, got %q", EnvProd, EnvTest, c.Env)
	}
	if c.Interval < monitor.MinInterval {
		add("MONITOR_INTERVAL must be at least %s, got %s", monitor.MinInterval, c.Interval)
	}
	if c.DispatchConcurrency < 1 {
		add("DISPATCH_CONCURRENCY must be at least 1, got %d", c.DispatchConcurrency)
	}
	if c.Pace < 0 {
		add("MONITOR_PACE must not be negative")
	}
	if c.Window <= 0 || c.Window > 1000 {
		add("MONITOR_WINDOW must be between 1 and 1000, got %d", c.Window)
	}
	switch c.StoreBackend {
	case StoreFile:
		if strings.TrimSpace(c.StorePath) == "" {
			add("STORE_PATH is required for the file store")
		}
	case StoreMySQL:
		if c.MySQLDSN == "" {
			add("MYSQL_DSN is required for the mysql store")
		}
	default:
		add("STORE_BACKEND must be %q or %q, got %q", StoreFile, StoreMySQL, c.StoreBackend)
	}
	switch c.SendCacheBackend {
	case CacheMemory:
	case CacheRedis:
		if c.RedisURL == "" {
			add("REDIS_URL is required for the redis send cache")
		}
	default:
		add("SEND_CACHE_BACKEND must be %q or %q, got %q", CacheMemory, CacheRedis, c.SendCacheBackend)
	}
	if c.API.Enabled && len(c.API.JWTSecret) < 16 {
		add("API_JWT_SECRET must be at least 16 characters when the API is enabled")
	}

	dests, err := c.Destinations()
	if err != nil {
		add("MONITOR_DESTINATIONS: %v", err)
	}
	if err == nil && len(dests) == 0 {
		add("no destinations configured")
	}
	for _, d := range dests {
		switch d.Kind {
		case "telegram":
			if c.Telegram.Token == "" {
				add("destination %s needs a telegram token", d)
			}
		case "discord":
			if c.Discord.Token == "" {
				add("destination %s needs a discord token", d)
			}
		case "redis":
			if c.RedisURL == "" {
				add("destination %s needs REDIS_URL", d)
			}
		case "stdout":
		default:
			add("destination %s has unknown kind", d)
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func defaults() Config {
	return Config{
		Env:               EnvProd,
		LogLevel:          "info",
		LogEncoding:       "console",
		Interval:          time.Minute,
		Pace:              time.Second,
		Window:            source.DefaultWindow,
		SubgraphURL:       source.DefaultSubgraphURL,
		DetailURL:         source.DefaultDetailURL,
		HTTPTimeout:       30 * time.Second,
		HTTPRetryAttempts: 3,
		StoreBackend:      StoreFile,
		StorePath:         "notified_ids.json",
		SendCacheBackend:  CacheMemory,
		SendCacheTTL:      notify.DefaultSendTTL,
		StreamMaxLen:      10000,

		DispatchConcurrency: 4,
		Probe: ProbeConfig{
			Phrase: "bot u with us",
			Reply:  "yep",
			Delay:  945 * time.Millisecond,
		},
		API: APIConfig{
			Addr:         ":8080",
			AllowOrigins: []string{"*"},
		},
	}
}
