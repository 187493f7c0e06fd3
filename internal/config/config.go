// Package config loads process configuration from defaults, an optional YAML
// file, a .env file and MATCHCHAT_* environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/and161185/matchchat/internal/model"
)

const envPrefix = "MATCHCHAT"

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	HTTP    HTTP    `mapstructure:"http"`
	GRPC    GRPC    `mapstructure:"grpc"`
	DB      DB      `mapstructure:"db"`
	Store   Store   `mapstructure:"store"`
	JWT     JWT     `mapstructure:"jwt"`
	Match   Match   `mapstructure:"match"`
	History History `mapstructure:"history"`
	WS      WS      `mapstructure:"ws"`
	Log     Log     `mapstructure:"log"`
	Health  Health  `mapstructure:"health"`
	Limit   Limit   `mapstructure:"limit"`
}

type HTTP struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type GRPC struct {
	Addr       string `mapstructure:"addr"`
	TLSCert    string `mapstructure:"tls_cert"`
	TLSKey     string `mapstructure:"tls_key"`
	Reflection bool   `mapstructure:"reflection"`
}

type DB struct {
	DSN     string        `mapstructure:"dsn"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Store struct {
	Driver string `mapstructure:"driver"`
}

type JWT struct {
	Key    string        `mapstructure:"key"`
	Leeway time.Duration `mapstructure:"leeway"`
}

type Match struct {
	MinTier string `mapstructure:"min_tier"`
}

type History struct {
	PageSize    int `mapstructure:"page_size"`
	MaxPageSize int `mapstructure:"max_page_size"`
}

type WS struct {
	SendBuffer      int           `mapstructure:"send_buffer"`
	WriteWait       time.Duration `mapstructure:"write_wait"`
	PongWait        time.Duration `mapstructure:"pong_wait"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type Log struct {
	Development bool `mapstructure:"development"`
}

type Health struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Limit throttles sends per user. MaxSends 0 disables it.
type Limit struct {
	Window   time.Duration `mapstructure:"window"`
	MaxSends int           `mapstructure:"max_sends"`
	BlockFor time.Duration `mapstructure:"block_for"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 5*time.Second)
	v.SetDefault("grpc.addr", ":8081")
	v.SetDefault("grpc.tls_cert", "")
	v.SetDefault("grpc.tls_key", "")
	v.SetDefault("grpc.reflection", false)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.timeout", 3*time.Second)
	v.SetDefault("store.driver", DriverPostgres)
	v.SetDefault("jwt.key", "")
	v.SetDefault("jwt.leeway", 30*time.Second)
	v.SetDefault("match.min_tier", model.TierPremium.String())
	v.SetDefault("history.page_size", 50)
	v.SetDefault("history.max_page_size", 200)
	v.SetDefault("ws.send_buffer", 256)
	v.SetDefault("ws.write_wait", 10*time.Second)
	v.SetDefault("ws.pong_wait", 60*time.Second)
	v.SetDefault("ws.max_message_bytes", 64*1024)
	v.SetDefault("ws.allowed_origins", []string{})
	v.SetDefault("log.development", false)
	v.SetDefault("health.interval", 10*time.Second)
	v.SetDefault("limit.window", 10*time.Second)
	v.SetDefault("limit.max_sends", 20)
	v.SetDefault("limit.block_for", 30*time.Second)
}

// Load reads configuration. path may be empty; a missing .env file is ignored.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate fails fast on settings the process cannot start with.
func (c *Config) Validate() error {
	var problems []error
	if c.JWT.Key == "" {
		problems = append(problems, errors.New("jwt.key is required"))
	}
	switch c.Store.Driver {
	case DriverPostgres:
		if c.DB.DSN == "" {
			problems = append(problems, errors.New("db.dsn is required for the postgres store"))
		}
	case DriverMemory:
	default:
		problems = append(problems, fmt.Errorf("store.driver %q is not one of postgres, memory", c.Store.Driver))
	}
	if _, err := model.ParseTier(c.Match.MinTier); err != nil {
		problems = append(problems, fmt.Errorf("match.min_tier: %w", err))
	}
	if c.History.PageSize <= 0 || c.History.MaxPageSize < c.History.PageSize {
		problems = append(problems, errors.New("history: need 0 < page_size <= max_page_size"))
	}
	if c.Limit.MaxSends < 0 || (c.Limit.MaxSends > 0 && c.Limit.Window <= 0) {
		problems = append(problems, errors.New("limit: need max_sends >= 0 and a positive window"))
	}
	if (c.GRPC.TLSCert == "") != (c.GRPC.TLSKey == "") {
		problems = append(problems, errors.New("grpc.tls_cert and grpc.tls_key go together"))
	}
	return errors.Join(problems...)
}

// MinLikeTier is the lowest tier allowed to like.
func (c *Config) MinLikeTier() model.Tier {
	t, err := model.ParseTier(c.Match.MinTier)
	if err != nil {
		return model.TierPremium
	}
	return t
}
