package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatreel/internal/pkg/errors"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/chatreel")
	t.Setenv("URL_SIGNING_SECRET", "s")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, LedgerPostgres, cfg.Ledger.Driver)
	assert.True(t, cfg.Queue.Enabled)
	assert.Equal(t, 2*time.Second, cfg.Queue.EnqueueTimeout)
	assert.Equal(t, "chatreel:render", cfg.Queue.Name)
	assert.Equal(t, StorageLocalFS, cfg.Storage.Provider)
	assert.Equal(t, 60, cfg.Signing.TTLMinutes)
	assert.Equal(t, RendererHTTP, cfg.Renderer.Mode)
	assert.Equal(t, 1, cfg.Renderer.Concurrency)
	assert.Equal(t, 3*time.Second, cfg.Sweeper.Interval)
	assert.Equal(t, 5, cfg.Sweeper.Batch)
	assert.Equal(t, 15*time.Minute, cfg.Ledger.StaleAfter)
	assert.Equal(t, 10*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, 20*time.Second, cfg.Download.DefaultWait)
	assert.Equal(t, 10*time.Second, cfg.Download.MaxWait)
	assert.Equal(t, 1500*time.Millisecond, cfg.Download.PollEvery)

	assert.NoError(t, cfg.ValidateAPI())
	assert.NoError(t, cfg.ValidateWorker())
}

func TestSanitizeClamps(t *testing.T) {
	t.Setenv("RENDER_CONCURRENCY", "12")
	t.Setenv("SWEEPER_INTERVAL", "10ms")
	t.Setenv("SWEEPER_BATCH", "0")
	t.Setenv("QUEUE_ENQUEUE_TIMEOUT", "30s")
	t.Setenv("SIGNED_URL_TTL_MIN", "99999")
	t.Setenv("RENDERER_MODE", "COMMAND")
	t.Setenv("STORAGE_PROVIDER", " GCS ")
	t.Setenv("DOWNLOAD_POLL_EVERY", "1h")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Renderer.Concurrency)
	assert.Equal(t, time.Second, cfg.Sweeper.Interval)
	assert.Equal(t, 1, cfg.Sweeper.Batch)
	assert.Equal(t, 5*time.Second, cfg.Queue.EnqueueTimeout)
	assert.Equal(t, 1440, cfg.Signing.TTLMinutes)
	assert.Equal(t, RendererCommand, cfg.Renderer.Mode)
	assert.Equal(t, StorageGCS, cfg.Storage.Provider)
	assert.True(t, cfg.Storage.NativeSigning())
	assert.Equal(t, cfg.Download.MaxWait, cfg.Download.PollEvery)
}

func TestSanitizeAlignsTimeouts(t *testing.T) {
	tests := []struct {
		name        string
		maxWait     string
		wantRequest time.Duration
		wantWrite   time.Duration
	}{
		{"defaults already fit", "10s", 30 * time.Second, 60 * time.Second},
		{"long poll raises both", "2m", 2*time.Minute + 5*time.Second, 2*time.Minute + 10*time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DOWNLOAD_MAX_WAIT", tt.maxWait)
			cfg, err := Parse()
			require.NoError(t, err)
			assert.Equal(t, tt.wantRequest, cfg.HTTP.RequestTimeout)
			assert.Equal(t, tt.wantWrite, cfg.HTTP.WriteTimeout)
			assert.Greater(t, cfg.HTTP.RequestTimeout, cfg.Download.MaxWait)
		})
	}
}

func TestParseRejectsMalformedValues(t *testing.T) {
	t.Setenv("SWEEPER_INTERVAL", "soon")
	_, err := Parse()
	assert.True(t, errors.IsValidation(err))
}

func TestValidate(t *testing.T) {
	base := func() Config {
		var c Config
		c.Ledger = LedgerConfig{Driver: LedgerPostgres, DatabaseURL: "postgres://x"}
		c.Storage = StorageConfig{Provider: StorageLocalFS, LocalRoot: "/data"}
		c.Signing = SigningConfig{Secret: "s"}
		c.Renderer = RendererConfig{Mode: RendererHTTP, BaseURL: "http://r"}
		c.Sweeper = SweeperConfig{Enabled: true}
		return c
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		api       bool
		worker    bool
		wantField string
	}{
		{"valid", func(*Config) {}, true, true, ""},
		{"missing database", func(c *Config) { c.Ledger.DatabaseURL = "" }, false, false, "DATABASE_URL"},
		{"memory ledger is api only", func(c *Config) { c.Ledger = LedgerConfig{Driver: LedgerMemory} }, true, false, "LEDGER"},
		{"missing signing secret", func(c *Config) { c.Signing.Secret = "" }, false, false, "URL_SIGNING_SECRET"},
		{"gcs signs natively", func(c *Config) {
			c.Signing.Secret = ""
			c.Storage = StorageConfig{Provider: StorageGCS, GCSBucket: "b"}
		}, true, true, ""},
		{"gcs needs bucket", func(c *Config) { c.Storage = StorageConfig{Provider: StorageGCS} }, false, false, "GCS_BUCKET"},
		{"unknown provider", func(c *Config) { c.Storage.Provider = "s3" }, false, false, "STORAGE_PROVIDER"},
		{"embedded worker needs a renderer", func(c *Config) {
			c.Ledger = LedgerConfig{Driver: LedgerMemory}
			c.Renderer = RendererConfig{Mode: RendererCommand}
		}, false, false, "RENDERER_COMMAND"},
		{"command needs path", func(c *Config) { c.Renderer = RendererConfig{Mode: RendererCommand} }, true, false, "RENDERER_COMMAND"},
		{"queue needs redis", func(c *Config) { c.Queue = QueueConfig{Enabled: true} }, false, false, "REDIS_ADDR"},
		{"worker needs queue or sweeper", func(c *Config) { c.Sweeper.Enabled = false }, true, false, "SWEEPER_ENABLED"},
		{"queue-only worker", func(c *Config) {
			c.Sweeper.Enabled = false
			c.Queue = QueueConfig{Enabled: true, RedisAddr: "localhost:6379"}
		}, true, true, ""},
		{"embedded worker needs the sweeper", func(c *Config) {
			c.Ledger = LedgerConfig{Driver: LedgerMemory}
			c.Sweeper.Enabled = false
		}, false, false, "SWEEPER_ENABLED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)

			apiErr := c.ValidateAPI()
			workerErr := c.ValidateWorker()
			assert.Equal(t, tt.api, apiErr == nil, "api: %v", apiErr)
			assert.Equal(t, tt.worker, workerErr == nil, "worker: %v", workerErr)

			if tt.wantField != "" {
				err := workerErr
				if apiErr != nil {
					err = apiErr
				}
				assert.Equal(t, tt.wantField, errors.GetFields(err)["field"])
			}
		})
	}
}
