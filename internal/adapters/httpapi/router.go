// Package httpapi exposes the Service over HTTP with gin.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"statefacts/pkg/domain"
)

// Service is the subset of core.Service the handlers call.
type Service interface {
	Composite(ctx context.Context, code string) (domain.CompositeView, error)
	CompositeAll(ctx context.Context, filter domain.Filter) ([]domain.CompositeView, error)
	Field(ctx context.Context, code, field string) (domain.FieldView, error)
	PickRandomFact(ctx context.Context, code string) (string, error)
	AppendFacts(ctx context.Context, code string, req domain.AppendRequest) (domain.FactDocument, error)
	ReplaceFact(ctx context.Context, code string, req domain.ReplaceRequest) (domain.FactDocument, error)
	DeleteFact(ctx context.Context, code string, req domain.DeleteRequest) (domain.FactDocument, error)
	Ready(ctx context.Context) error
}

// Options configures the router.
type Options struct {
	Logger *slog.Logger
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
	// VarsHandler is mounted at /debug/vars when set.
	VarsHandler http.Handler
	// WriteRateLimit caps POST, PATCH and DELETE requests per second
	// across all clients; zero disables the limiter.
	WriteRateLimit float64
	WriteRateBurst int
	// Tracing enables the otelgin middleware.
	Tracing     bool
	ServiceName string
}

// Handlers holds the route handlers.
type Handlers struct {
	svc    Service
	logger *slog.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(svc Service, opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &Handlers{svc: svc, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(logger))
	if opts.Tracing {
		name := opts.ServiceName
		if name == "" {
			name = "statefacts"
		}
		r.Use(otelgin.Middleware(name))
	}

	var limiter gin.HandlerFunc
	if opts.WriteRateLimit > 0 {
		burst := max(opts.WriteRateBurst, 1)
		limiter = limitWrites(rate.NewLimiter(rate.Limit(opts.WriteRateLimit), burst))
	}
	write := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		if limiter == nil {
			return []gin.HandlerFunc{handler}
		}
		return []gin.HandlerFunc{limiter, handler}
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	if opts.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}
	if opts.VarsHandler != nil {
		r.GET("/debug/vars", gin.WrapH(opts.VarsHandler))
	}

	states := r.Group("/states")
	states.GET("", h.ListStates)
	states.GET("/", h.ListStates)
	states.GET("/:state", h.GetState)
	states.GET("/:state/funfact", h.RandomFact)
	states.POST("/:state/funfact", write(h.AppendFacts)...)
	states.PATCH("/:state/funfact", write(h.ReplaceFact)...)
	states.DELETE("/:state/funfact", write(h.DeleteFact)...)
	for _, field := range []string{domain.FieldCapital, domain.FieldNickname, domain.FieldPopulation, domain.FieldAdmission} {
		states.GET("/:state/"+field, h.GetField(field))
	}

	r.NoRoute(notFound)
	return r
}

// Server wraps the router in an http.Server with conservative timeouts.
func Server(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
