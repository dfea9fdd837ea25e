// Package config loads the process configuration from the environment and an optional .env file.
package config

import (
	stderrors "errors"
	"io/fs"
	"net"
	"strings"
	"time"

	authconfig "carelog/internal/auth/config"
	"carelog/internal/shared/errors"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Driver names shared by the store, feed and blob sections.
const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverLocal  = "local"
	DriverS3     = "s3"
)

type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"localhost"`
	Port            string        `env:"PORT" envDefault:"3000"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RateLimit       int           `env:"RATE_LIMIT" envDefault:"120"`
	RateWindow      time.Duration `env:"RATE_WINDOW" envDefault:"1m"`
}

// Addr is host:port for fiber's Listen.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

type MongoConfig struct {
	URI            string        `env:"URI" envDefault:"mongodb://localhost:27017"`
	Database       string        `env:"DATABASE" envDefault:"carelog"`
	Collection     string        `env:"COLLECTION" envDefault:"documents"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"30s"`
}

type RedisConfig struct {
	Host            string        `env:"HOST" envDefault:"localhost"`
	Port            string        `env:"PORT" envDefault:"6379"`
	Password        string        `env:"PASSWORD"`
	Database        int           `env:"DB" envDefault:"0"`
	MaxRetries      int           `env:"MAX_RETRIES" envDefault:"3"`
	PoolSize        int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns    int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	EnableTLS       bool          `env:"TLS" envDefault:"false"`
	ConnMaxIdleTime time.Duration `env:"CONN_MAX_IDLE_TIME" envDefault:"30m"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"1h"`
}

func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, r.Port)
}

// StoreConfig selects the document backend and tunes live queries.
type StoreConfig struct {
	Driver         string        `env:"DRIVER" envDefault:"mongo"`
	RetryDelay     time.Duration `env:"RETRY_DELAY" envDefault:"500ms"`
	MaxRetryDelay  time.Duration `env:"MAX_RETRY_DELAY" envDefault:"30s"`
	ResyncInterval time.Duration `env:"RESYNC_INTERVAL" envDefault:"0s"`
}

// FeedConfig selects how change notices travel between writers and listeners.
type FeedConfig struct {
	Driver        string `env:"DRIVER" envDefault:"local"`
	ChannelPrefix string `env:"CHANNEL_PREFIX" envDefault:"carelog:changes:"`
}

type BlobConfig struct {
	Driver          string        `env:"DRIVER" envDefault:"memory"`
	Bucket          string        `env:"BUCKET" envDefault:"carelog-photos"`
	Region          string        `env:"REGION" envDefault:"us-east-1"`
	Endpoint        string        `env:"ENDPOINT"`
	AccessKeyID     string        `env:"ACCESS_KEY_ID"`
	SecretAccessKey string        `env:"SECRET_ACCESS_KEY"`
	PathStyle       bool          `env:"PATH_STYLE" envDefault:"false"`
	URLExpiry       time.Duration `env:"URL_EXPIRY" envDefault:"15m"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"text"`
}

// PolicyConfig holds the CEL expression that guards document routes.
type PolicyConfig struct {
	Rule string `env:"RULE"`
}

// Config is the whole process configuration.
type Config struct {
	Server ServerConfig      `envPrefix:"SERVER_"`
	Mongo  MongoConfig       `envPrefix:"MONGODB_"`
	Redis  RedisConfig       `envPrefix:"REDIS_"`
	Store  StoreConfig       `envPrefix:"STORE_"`
	Feed   FeedConfig        `envPrefix:"FEED_"`
	Blob   BlobConfig        `envPrefix:"BLOB_"`
	Log    LogConfig         `envPrefix:"LOG_"`
	Policy PolicyConfig      `envPrefix:"POLICY_"`
	Auth   authconfig.Config `envPrefix:"AUTH_"`
}

// Load reads envFiles (missing files are skipped) and then the environment, which wins.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !isMissing(err) {
			return nil, errors.NewConfigurationError("failed to read env file").WithDetail("file", f).WithCause(err)
		}
	}
	return Parse(env.Options{})
}

// Parse builds a Config from the environment only. Tests pass Environment to avoid the process env.
func Parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg, opts); err != nil {
		return nil, errors.NewConfigurationError("failed to load configuration").WithCause(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isMissing(err error) bool {
	return stderrors.Is(err, fs.ErrNotExist)
}

func oneOf(section, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return errors.NewConfigurationError("unknown " + section + " driver").
		WithDetail("driver", value).
		WithDetail("allowed", strings.Join(allowed, ","))
}

// Validate checks driver names and the values each selected driver needs.
func (c *Config) Validate() error {
	if err := oneOf("store", c.Store.Driver, DriverMongo, DriverMemory); err != nil {
		return err
	}
	if err := oneOf("feed", c.Feed.Driver, DriverLocal, DriverRedis); err != nil {
		return err
	}
	if err := oneOf("blob", c.Blob.Driver, DriverS3, DriverMemory); err != nil {
		return err
	}
	if c.Server.Port == "" {
		return errors.NewConfigurationError("SERVER_PORT is required")
	}
	if c.UsesMongo() && c.Mongo.URI == "" {
		return errors.NewConfigurationError("MONGODB_URI is required")
	}
	if c.Blob.Driver == DriverS3 && c.Blob.Bucket == "" {
		return errors.NewConfigurationError("BLOB_BUCKET is required for the s3 driver")
	}
	if c.Store.RetryDelay <= 0 || c.Store.MaxRetryDelay < c.Store.RetryDelay {
		return errors.NewConfigurationError("STORE_MAX_RETRY_DELAY must not be below STORE_RETRY_DELAY")
	}
	if c.Store.ResyncInterval < 0 {
		return errors.NewConfigurationError("STORE_RESYNC_INTERVAL must not be negative")
	}
	return c.Auth.Validate()
}

// UsesMongo reports whether any component needs a MongoDB client.
func (c *Config) UsesMongo() bool {
	return c.Store.Driver == DriverMongo || c.Auth.Store == DriverMongo
}
