// Package config loads process configuration from the environment.
//
// Both binaries read the same Config; each uses the sections it needs.
// A .env file in the working directory is loaded first when present.
package config

import (
	stderrors "errors"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"chatreel/internal/pkg/errors"
)

type Config struct {
	Log      LogConfig
	HTTP     HTTPConfig
	Ledger   LedgerConfig
	Queue    QueueConfig
	Storage  StorageConfig
	Signing  SigningConfig
	Renderer RendererConfig
	Sweeper  SweeperConfig
	Webhook  WebhookConfig
	Download DownloadConfig
}

// Load reads .env (if any), parses the environment and applies Sanitize.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !stderrors.As(err, &pathErr) {
			return Config{}, errors.Wrap(err, "config.load", "load .env file")
		}
	}
	return Parse()
}

// Parse reads the environment without touching .env.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, errors.WrapWithCode(err, errors.CodeValidation, "config.parse", "parse config")
	}
	cfg.Sanitize()
	return cfg, nil
}

// Sanitize clamps values into their supported ranges.
func (c *Config) Sanitize() {
	c.Log.Sanitize()
	c.HTTP.Sanitize()
	c.Ledger.Sanitize()
	c.Queue.Sanitize()
	c.Storage.Sanitize()
	c.Signing.Sanitize()
	c.Renderer.Sanitize()
	c.Sweeper.Sanitize()
	c.Webhook.Sanitize()
	c.Download.Sanitize()
	c.alignTimeouts()
}

// timeoutHeadroom separates nested deadlines: long-poll cap, route timeout,
// server write timeout.
const timeoutHeadroom = 5 * time.Second

// alignTimeouts keeps a download long-poll from being cut off by the route
// timeout or by the server's write deadline.
func (c *Config) alignTimeouts() {
	if floor := c.Download.MaxWait + timeoutHeadroom; c.HTTP.RequestTimeout < floor {
		c.HTTP.RequestTimeout = floor
	}
	if floor := c.HTTP.RequestTimeout + timeoutHeadroom; c.HTTP.WriteTimeout > 0 && c.HTTP.WriteTimeout < floor {
		c.HTTP.WriteTimeout = floor
	}
}

// ValidateAPI reports settings the API cannot start without.
func (c *Config) ValidateAPI() error {
	if err := c.Ledger.validate(); err != nil {
		return err
	}
	if err := c.Storage.validate(); err != nil {
		return err
	}
	if !c.Storage.NativeSigning() && c.Signing.Secret == "" {
		return errors.ValidationField("URL_SIGNING_SECRET", "required unless STORAGE_PROVIDER=gcs")
	}
	if c.Queue.Enabled && c.Queue.RedisAddr == "" {
		return errors.ValidationField("REDIS_ADDR", "required when QUEUE_ENABLED=true")
	}
	if c.EmbeddedWorker() {
		if !c.Sweeper.Enabled {
			return errors.ValidationField("SWEEPER_ENABLED", "the in-memory ledger is only served by the sweeper")
		}
		return c.Renderer.validate()
	}
	return nil
}

// EmbeddedWorker reports whether the API renders jobs itself. That is the
// case with the memory ledger, which no separate worker can see.
func (c *Config) EmbeddedWorker() bool {
	return c.Ledger.Driver == LedgerMemory
}

// ValidateWorker reports settings the worker cannot start without.
func (c *Config) ValidateWorker() error {
	if err := c.ValidateAPI(); err != nil {
		return err
	}
	if c.Ledger.Driver == LedgerMemory {
		return errors.ValidationField("LEDGER", "the worker needs a shared ledger; memory is API-only")
	}
	if !c.Sweeper.Enabled && !c.Queue.Enabled {
		return errors.ValidationField("SWEEPER_ENABLED", "a worker without queue needs the sweeper to find jobs")
	}
	return c.Renderer.validate()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
