package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type GRPC struct {
	Addr          string `yaml:"addr"`
	DeadlineGuard string `yaml:"deadlineGuard"` // 10s
}

type HTTP struct {
	Addr           string   `yaml:"addr"`
	ReadTimeout    string   `yaml:"readTimeout"`
	WriteTimeout   string   `yaml:"writeTimeout"`
	IdleTimeout    string   `yaml:"idleTimeout"`
	RequestTimeout string   `yaml:"requestTimeout"` // chi Timeout для /api
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // messenger
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	Level     string `yaml:"level"`     // debug|info|warn|error
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Postgres struct {
	DSN             string `yaml:"dsn"`
	MaxConns        int32  `yaml:"maxConns"`
	MinConns        int32  `yaml:"minConns"`
	MaxConnLifetime string `yaml:"maxConnLifetime"`
	Migrate         bool   `yaml:"migrate"`
}

type Auth struct {
	Issuer         string `yaml:"issuer"`
	Audience       string `yaml:"audience"`
	AccessTTL      string `yaml:"accessTTL"`
	ClockSkew      string `yaml:"clockSkew"`
	PrivateKeyPath string `yaml:"privateKeyPath"` // пусто — эфемерный ключ (только dev)
	PublicKeyPath  string `yaml:"publicKeyPath"`
}

type WS struct {
	PingEvery     string `yaml:"pingEvery"`
	WriteTimeout  string `yaml:"writeTimeout"`
	ReadLimit     int64  `yaml:"readLimit"`
	RecentPerRoom int    `yaml:"recentPerRoom"` // окно дедупликации по message id
}

type Messages struct {
	MaxLength int `yaml:"maxLength"`
}

type Scheduler struct {
	Enabled      bool   `yaml:"enabled"`
	SessionPurge string `yaml:"sessionPurge"` // cron spec
}

type Config struct {
	HTTP      HTTP      `yaml:"http"`
	GRPC      GRPC      `yaml:"grpc"`
	Logging   Logging   `yaml:"logging"`
	Postgres  Postgres  `yaml:"postgres"`
	Auth      Auth      `yaml:"auth"`
	WS        WS        `yaml:"ws"`
	Messages  Messages  `yaml:"messages"`
	Scheduler Scheduler `yaml:"scheduler"`
}

// LoadConfig: .env (если есть) -> CONFIG_PATH (./config/config.yaml) -> env overrides -> validate.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	return Load(path)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("POSTGRES_DSN")); v != "" {
		c.Postgres.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		c.HTTP.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_ENV")); v != "" {
		c.Logging.Env = v
	}
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.GRPC.Addr == "" {
		return errors.New("grpc.addr is required")
	}
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if c.Postgres.MinConns > 0 && c.Postgres.MaxConns > 0 && c.Postgres.MinConns > c.Postgres.MaxConns {
		return errors.New("postgres.minConns must not exceed postgres.maxConns")
	}
	if (c.Auth.PrivateKeyPath == "") != (c.Auth.PublicKeyPath == "") {
		return errors.New("auth.privateKeyPath and auth.publicKeyPath must be set together")
	}
	if c.Messages.MaxLength < 0 {
		return errors.New("messages.maxLength must be positive")
	}
	// установка дефолтов, если значения не указаны
	if c.Logging.Service == "" {
		c.Logging.Service = "messenger"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "cwrk-planet"
	}
	if c.Auth.Audience == "" {
		c.Auth.Audience = "messenger"
	}
	if c.Messages.MaxLength == 0 {
		c.Messages.MaxLength = 4000
	}
	if c.Scheduler.SessionPurge == "" {
		c.Scheduler.SessionPurge = "@hourly"
	}
	return nil
}

// helper для парсинга timeout-ов
func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}

func (h HTTP) Timeouts() (read, write, idle, request time.Duration) {
	return parseDurationOr(10*time.Second, h.ReadTimeout),
		parseDurationOr(15*time.Second, h.WriteTimeout),
		parseDurationOr(60*time.Second, h.IdleTimeout),
		parseDurationOr(30*time.Second, h.RequestTimeout)
}

func (g GRPC) Guard() time.Duration { return parseDurationOr(10*time.Second, g.DeadlineGuard) }

func (p Postgres) ConnLifetime() time.Duration {
	return parseDurationOr(30*time.Minute, p.MaxConnLifetime)
}

func (a Auth) TTL() time.Duration  { return parseDurationOr(24*time.Hour, a.AccessTTL) }
func (a Auth) Skew() time.Duration { return parseDurationOr(30*time.Second, a.ClockSkew) }

func (w WS) Ping() time.Duration  { return parseDurationOr(15*time.Second, w.PingEvery) }
func (w WS) Write() time.Duration { return parseDurationOr(5*time.Second, w.WriteTimeout) }
