package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/tuanvumaihuynh/versioned-catalog/internal/config"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/dispatch"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/http/apierr"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/http/metric"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/http/middleware"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/http/swagger"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage/db"
)

var tracer = otel.Tracer("internal/http")

// Dispatcher runs a catalog operation on its read or write path.
type Dispatcher interface {
	CheckConfigured() error
	Dispatch(ctx context.Context, req dispatch.Request) (dispatch.Result, error)
}

// Service represents the HTTP service.
type Service struct {
	cfg     config.HTTP
	logger  *slog.Logger
	metrics *metric.Metrics

	dispatcher   Dispatcher
	acceleration func() bool
	health       db.HealthChecker
}

type CleanupFunc func(ctx context.Context) error

// New returns the HTTP service. acceleration reports whether an acceleration
// endpoint is configured. health may be nil when the backing store cannot
// report its health.
func New(
	cfg config.HTTP,
	log *slog.Logger,
	dispatcher Dispatcher,
	acceleration func() bool,
	health db.HealthChecker,
) *Service {
	return &Service{
		cfg:          cfg,
		logger:       log.With(slog.String("service", "http")),
		metrics:      metric.New(prometheus.DefaultRegisterer),
		dispatcher:   dispatcher,
		acceleration: acceleration,
		health:       health,
	}
}

func (s *Service) Run(ctx context.Context) (CleanupFunc, error) {
	handler, err := s.Handler(ctx)
	if err != nil {
		return nil, err
	}
	return s.RunWithServer(ctx, handler)
}

// Handler builds the router with every middleware and route registered.
func (s *Service) Handler(ctx context.Context) (http.Handler, error) {
	r := chi.NewRouter()
	s.RegisterMiddlewares(r)

	if s.cfg.Swagger {
		if err := swagger.Register(ctx, r); err != nil {
			return nil, fmt.Errorf("register swagger: %w", err)
		}
	}

	s.RegisterHandlers(r)

	return r, nil
}

func (s *Service) RunWithServer(ctx context.Context, handler http.Handler) (CleanupFunc, error) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 16, // 64 KB
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}, nil
}

func (s *Service) RegisterMiddlewares(r chi.Router) {
	r.Use(
		middleware.Recoverer(s.logger),
		middleware.Trace(tracer),
		middleware.Metrics(s.metrics),
		middleware.CorrelationID(),
		middleware.Cors(s.cfg.AllowedOrigins),
		middleware.Acceleration(s.acceleration),
		middleware.Logging(s.logger),
	)
}

func (s *Service) RegisterHandlers(r chi.Router) {
	h := newProductHandler(s.dispatcher, s.handleResponseError)

	// A missing table is reported before the body, the query or the route
	// is looked at.
	r.Route("/products", func(r chi.Router) {
		r.Post("/", h.requireConfigured(h.CreateProduct))
		r.Get("/", h.requireConfigured(h.ListProducts))
		r.Get("/{id}", h.requireConfigured(h.GetProduct))
		r.Put("/{id}", h.requireConfigured(h.UpdateProduct))
		r.Delete("/{id}", h.requireConfigured(h.DeleteProduct))
	})

	r.NotFound(h.requireConfigured(h.Unknown))
	r.MethodNotAllowed(h.requireConfigured(h.Unknown))

	r.Get("/healthz", s.handleHealth)

	r.Handle(middleware.MetricsPath, promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorLog: log.Default(),
	}))
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if ok, err := s.health.IsHealthy(r.Context()); !ok {
			s.logger.WarnContext(r.Context(), "health check failed", slog.Any("error", err))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Service) handleResponseError(w http.ResponseWriter, r *http.Request, err error) {
	res := apierr.New(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(res.StatusCode)

	logLevel := slog.LevelInfo
	if res.StatusCode >= 500 {
		logLevel = slog.LevelError
	} else if res.StatusCode >= 400 {
		logLevel = slog.LevelWarn
	}
	s.logger.Log(r.Context(), logLevel, "http response error", slog.Any("error", err))

	if err := json.NewEncoder(w).Encode(res); err != nil {
		s.logger.ErrorContext(r.Context(), "error encoding error response",
			slog.Any("error", err))
	}
}
