package config

import (
	"time"

	"chatreel/internal/pkg/errors"
	"chatreel/internal/signing"
)

type LogConfig struct {
	Level     string `env:"LOG_LEVEL"  envDefault:"info"`
	Format    string `env:"LOG_FORMAT" envDefault:"json"`
	AddSource bool   `env:"LOG_SOURCE" envDefault:"false"`
}

func (l *LogConfig) Sanitize() {
	l.Level = lower(l.Level)
	if l.Format = lower(l.Format); l.Format != "text" {
		l.Format = "json"
	}
}

type HTTPConfig struct {
	Port            string        `env:"HTTP_PORT"             envDefault:"8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT"     envDefault:"30s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT"    envDefault:"60s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT"     envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"      envDefault:"30s"`
	// RequestTimeout bounds the /render routes; Config.Sanitize keeps it
	// above the download long-poll cap.
	RequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT"  envDefault:"30s"`
	AllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS"  envSeparator:","`
}

func (h *HTTPConfig) Sanitize() {
	if h.Port == "" {
		h.Port = "8080"
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 30 * time.Second
	}
	if h.RequestTimeout <= 0 {
		h.RequestTimeout = 30 * time.Second
	}
}

const (
	LedgerPostgres = "postgres"
	LedgerMemory   = "memory"
)

type LedgerConfig struct {
	// Driver is postgres or memory. Memory keeps jobs in the API process,
	// which then runs the render pipeline itself.
	Driver        string        `env:"LEDGER"            envDefault:"postgres"`
	DatabaseURL   string        `env:"DATABASE_URL"`
	RunMigrations bool          `env:"RUN_MIGRATIONS"    envDefault:"true"`
	StaleAfter    time.Duration `env:"SWEEPER_STALE_AFTER" envDefault:"15m"`
}

func (l *LedgerConfig) Sanitize() {
	if l.Driver = lower(l.Driver); l.Driver != LedgerMemory {
		l.Driver = LedgerPostgres
	}
	if l.StaleAfter < time.Minute {
		l.StaleAfter = time.Minute
	}
}

func (l *LedgerConfig) validate() error {
	if l.Driver == LedgerPostgres && l.DatabaseURL == "" {
		return errors.ValidationField("DATABASE_URL", "required when LEDGER=postgres")
	}
	return nil
}

type QueueConfig struct {
	Enabled        bool          `env:"QUEUE_ENABLED"         envDefault:"true"`
	RedisAddr      string        `env:"REDIS_ADDR"            envDefault:"localhost:6379"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	Name           string        `env:"JOB_QUEUE_NAME"        envDefault:"chatreel:render"`
	EnqueueTimeout time.Duration `env:"QUEUE_ENQUEUE_TIMEOUT" envDefault:"2s"`
	Consumers      int           `env:"QUEUE_CONSUMERS"       envDefault:"2"`
	PopTimeout     time.Duration `env:"QUEUE_POP_TIMEOUT"     envDefault:"5s"`
}

func (q *QueueConfig) Sanitize() {
	if q.EnqueueTimeout <= 0 {
		q.EnqueueTimeout = 2 * time.Second
	}
	if q.EnqueueTimeout > 5*time.Second {
		q.EnqueueTimeout = 5 * time.Second
	}
	q.Consumers = clampInt(q.Consumers, 1, 16)
	if q.PopTimeout < time.Second {
		q.PopTimeout = time.Second
	}
	if q.Name == "" {
		q.Name = "chatreel:render"
	}
}

const (
	StorageLocalFS = "localfs"
	StorageGDrive  = "gdrive"
	StorageGCS     = "gcs"
)

type StorageConfig struct {
	Provider  string `env:"STORAGE_PROVIDER"   envDefault:"localfs"`
	LocalRoot string `env:"STORAGE_LOCAL_ROOT" envDefault:"/data"`

	GCSBucket          string `env:"GCS_BUCKET"`
	GCSCredentialsFile string `env:"GCS_CREDENTIALS_FILE"`
	// GCSSigningAccount and GCSSigningKeyFile override the signer identity;
	// empty values let the client library detect it from the credentials.
	GCSSigningAccount string `env:"GCS_SIGNING_ACCOUNT"`
	GCSSigningKeyFile string `env:"GCS_SIGNING_KEY_FILE"`

	GDriveClientID     string `env:"GDRIVE_CLIENT_ID"`
	GDriveClientSecret string `env:"GDRIVE_CLIENT_SECRET"`
	GDriveRefreshToken string `env:"GDRIVE_REFRESH_TOKEN"`
	GDriveFolderID     string `env:"GDRIVE_FOLDER_ID"`
}

func (s *StorageConfig) Sanitize() {
	s.Provider = lower(s.Provider)
	if s.Provider == "" {
		s.Provider = StorageLocalFS
	}
}

// NativeSigning reports whether the provider mints its own signed URLs.
func (s *StorageConfig) NativeSigning() bool { return s.Provider == StorageGCS }

func (s *StorageConfig) validate() error {
	switch s.Provider {
	case StorageLocalFS:
		if s.LocalRoot == "" {
			return errors.ValidationField("STORAGE_LOCAL_ROOT", "required for localfs")
		}
	case StorageGCS:
		if s.GCSBucket == "" {
			return errors.ValidationField("GCS_BUCKET", "required for gcs")
		}
	case StorageGDrive:
		if s.GDriveClientID == "" || s.GDriveClientSecret == "" || s.GDriveRefreshToken == "" {
			return errors.ValidationField("GDRIVE_REFRESH_TOKEN", "gdrive needs client id, secret and refresh token")
		}
	default:
		return errors.ValidationField("STORAGE_PROVIDER", "unknown storage provider: "+s.Provider)
	}
	return nil
}

type SigningConfig struct {
	Secret        string `env:"URL_SIGNING_SECRET"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL"    envDefault:"http://localhost:8080"`
	TTLMinutes    int    `env:"SIGNED_URL_TTL_MIN" envDefault:"60"`
}

func (s *SigningConfig) Sanitize() {
	s.TTLMinutes = signing.ClampTTL(s.TTLMinutes)
}

const (
	RendererHTTP    = "http"
	RendererCommand = "command"
)

type RendererConfig struct {
	Mode        string        `env:"RENDERER_MODE"         envDefault:"http"`
	BaseURL     string        `env:"RENDERER_HTTP_BASEURL" envDefault:"http://localhost:3000"`
	Command     string        `env:"RENDERER_COMMAND"`
	Composition string        `env:"RENDERER_COMPOSITION"  envDefault:"MessageConversation"`
	Timeout     time.Duration `env:"RENDER_TIMEOUT"        envDefault:"10m"`
	Concurrency int           `env:"RENDER_CONCURRENCY"    envDefault:"1"`
	WorkDir     string        `env:"WORK_DIR"              envDefault:"/tmp"`
}

func (r *RendererConfig) Sanitize() {
	if r.Mode = lower(r.Mode); r.Mode != RendererCommand {
		r.Mode = RendererHTTP
	}
	r.Concurrency = clampInt(r.Concurrency, 1, 4)
	if r.Timeout <= 0 {
		r.Timeout = 10 * time.Minute
	}
	if r.WorkDir == "" {
		r.WorkDir = "/tmp"
	}
	if r.Composition == "" {
		r.Composition = "MessageConversation"
	}
}

func (r *RendererConfig) validate() error {
	if r.Mode == RendererCommand && r.Command == "" {
		return errors.ValidationField("RENDERER_COMMAND", "required when RENDERER_MODE=command")
	}
	if r.Mode == RendererHTTP && r.BaseURL == "" {
		return errors.ValidationField("RENDERER_HTTP_BASEURL", "required when RENDERER_MODE=http")
	}
	return nil
}

type SweeperConfig struct {
	Enabled  bool          `env:"SWEEPER_ENABLED"  envDefault:"true"`
	Interval time.Duration `env:"SWEEPER_INTERVAL" envDefault:"3s"`
	Batch    int           `env:"SWEEPER_BATCH"    envDefault:"5"`
}

func (s *SweeperConfig) Sanitize() {
	if s.Interval < time.Second {
		s.Interval = time.Second
	}
	s.Batch = clampInt(s.Batch, 1, 50)
}

type WebhookConfig struct {
	Secret  string        `env:"WEBHOOK_SECRET"`
	Timeout time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"10s"`
}

func (w *WebhookConfig) Sanitize() {
	if w.Timeout <= 0 || w.Timeout > time.Minute {
		w.Timeout = 10 * time.Second
	}
}

type DownloadConfig struct {
	DefaultWait time.Duration `env:"DOWNLOAD_DEFAULT_WAIT" envDefault:"20s"`
	MaxWait     time.Duration `env:"DOWNLOAD_MAX_WAIT"     envDefault:"10s"`
	PollEvery   time.Duration `env:"DOWNLOAD_POLL_EVERY"   envDefault:"1500ms"`
}

func (d *DownloadConfig) Sanitize() {
	if d.DefaultWait < time.Second {
		d.DefaultWait = time.Second
	}
	if d.DefaultWait > 10*time.Minute {
		d.DefaultWait = 10 * time.Minute
	}
	if d.MaxWait <= 0 {
		d.MaxWait = 10 * time.Second
	}
	if d.MaxWait > 10*time.Minute {
		d.MaxWait = 10 * time.Minute
	}
	if d.PollEvery < 100*time.Millisecond {
		d.PollEvery = 100 * time.Millisecond
	}
	if d.PollEvery > d.MaxWait {
		d.PollEvery = d.MaxWait
	}
}
