package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"chatreel/internal/httpapi/handlers"
	"chatreel/internal/httpkit"
	"chatreel/internal/metrics"
	"chatreel/internal/pkg/logger"
	"chatreel/internal/pkg/middleware"
	"chatreel/internal/signing"
)

// DefaultRequestTimeout bounds the render routes. The effective timeout is
// raised to stay longPollHeadroom above the download long-poll cap.
const (
	DefaultRequestTimeout = 30 * time.Second
	longPollHeadroom      = 5 * time.Second
)

type Options struct {
	Handlers       handlers.Deps
	AllowedOrigins []string
	RequestTimeout time.Duration
	Log            *logger.Logger
}

// requestTimeout is the /render route timeout, never shorter than the
// download long-poll cap plus headroom.
func (o Options) requestTimeout() time.Duration {
	timeout := o.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if floor := o.Handlers.Download.MaxWait + longPollHeadroom; timeout < floor {
		timeout = floor
	}
	return timeout
}

func NewRouter(o Options) http.Handler {
	log := o.Log
	if log == nil {
		log = logger.Nop()
	}
	if o.Handlers.Log == nil {
		o.Handlers.Log = log
	}
	timeout := o.requestTimeout()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logging(log))

	origins := httpkit.NormalizeList(o.AllowedOrigins)
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders: []string{"Location", "Retry-After", "X-Request-ID"},
		MaxAgeSeconds:  600,
	}))

	h := handlers.New(o.Handlers)
	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
		return middleware.WrapHandler(log, fn)
	}

	// ---- HEALTH ----
	r.Get("/health", h.Health)
	r.Get("/health/queue", h.QueueHealth)
	r.Handle("/metrics", metrics.Handler())

	// ---- RENDER ----
	r.Route("/render", func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		r.Post("/", wrap(h.PostRender))
		r.Get("/{jobId}/status", wrap(h.GetRenderStatus))
		r.Get("/{jobId}/download", wrap(h.DownloadRender))
	})

	// ---- SIGNED OBJECTS ----
	r.Get(signing.ObjectsPath+"*", wrap(h.StreamObject))

	return r
}
