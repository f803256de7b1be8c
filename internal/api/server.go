// Package api provides the HTTP surface for wavault: the webhook endpoints
// the messaging gateway pushes into, the read-only archive API, and media
// file serving.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wavault/wavault/internal/config"
	"github.com/wavault/wavault/internal/scheduler"
	"github.com/wavault/wavault/internal/store"
)

// ArchiveStore defines the store operations the API needs.
type ArchiveStore interface {
	GetStats() (*StoreStats, error)
	ListConversations(offset, limit int) ([]store.Conversation, int64, error)
	GetConversationByWaID(waID string) (*store.Conversation, error)
	ListMessages(conversationID int64, offset, limit int) ([]store.Message, int64, error)
}

// StoreStats is an alias for store.Stats so the response shape follows the source type.
type StoreStats = store.Stats

// Ingestor processes one raw webhook body. Implemented by ingest.Processor.
type Ingestor interface {
	Process(ctx context.Context, body []byte) (int, error)
}

// RequestLogger records raw webhook bodies. Implemented by weblog.Logger.
type RequestLogger interface {
	Append(body []byte) error
}

// MaintenanceScheduler defines the scheduler operations the API needs.
type MaintenanceScheduler interface {
	Status() []TaskStatus
	IsRunning() bool
}

// TaskStatus is an alias for scheduler.TaskStatus so the response shape follows the source type.
type TaskStatus = scheduler.TaskStatus

// Server represents the HTTP server.
type Server struct {
	cfg         *config.Config
	store       ArchiveStore
	ingestor    Ingestor
	weblog      RequestLogger
	scheduler   MaintenanceScheduler
	logger *slog.Logger
	router chi.Router
	server *http.Server

	// The ingest path and the read API carry separate limiters so a
	// reconnecting gateway flushing its queue cannot starve API readers,
	// and a misbehaving API client cannot drop webhooks.
	webhookLimiter *RateLimiter
	apiLimiter     *RateLimiter
}

// NewServer creates a new HTTP server. weblog and sched may be nil.
func NewServer(cfg *config.Config, st ArchiveStore, ing Ingestor, wl RequestLogger, sched MaintenanceScheduler, logger *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		store:     st,
		ingestor:  ing,
		weblog:    wl,
		scheduler: sched,
		logger:    logger,
	}
	s.router = s.setupRouter()
	return s
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	// CORS middleware (config-driven; disabled when no origins configured)
	corsConfig := CORSConfig{
		AllowedOrigins:   s.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: s.cfg.Server.CORSCredentials,
		MaxAge:           s.cfg.Server.CORSMaxAge,
	}
	if corsConfig.MaxAge == 0 && len(corsConfig.AllowedOrigins) > 0 {
		corsConfig.MaxAge = 86400
	}
	r.Use(CORSMiddleware(corsConfig))

	// The gateway retries aggressively after an outage, so the webhook
	// bucket is deeper than the interactive one.
	s.webhookLimiter = NewRateLimiter(50, 100)
	s.apiLimiter = NewRateLimiter(10, 20)

	// Health check (no auth, no rate limit)
	r.Get("/health", s.handleHealth)

	// Webhook endpoints: the gateway cannot send credentials, so these stay
	// open. The GET handshake proves endpoint ownership instead.
	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(s.webhookLimiter))
		r.Get("/webhook", s.handleWebhookVerify)
		r.Post("/webhook", s.handleWebhookReceive)
	})

	// Decrypted media files
	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(s.apiLimiter))
		r.Get("/media/*", s.handleMedia)
	})

	// Read API (auth required)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RateLimitMiddleware(s.apiLimiter))
		r.Use(s.authMiddleware)

		r.Get("/stats", s.handleStats)
		r.Get("/conversations", s.handleListConversations)
		r.Get("/conversations/{waID}/messages", s.handleListMessages)
		r.Get("/scheduler/status", s.handleSchedulerStatus)
	})

	return r
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	bindAddr := s.cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	addr := net.JoinHostPort(bindAddr, strconv.Itoa(s.cfg.Server.Port))

	if s.cfg.Server.APIKey == "" {
		s.logger.Warn("read API running without authentication; set [server] api_key in config.toml")
	}
	if s.cfg.Webhook.VerifyToken == "" {
		s.logger.Warn("webhook verification disabled; set [webhook] verify_token in config.toml")
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// loggerMiddleware logs HTTP requests.
func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// authMiddleware validates the API key on the read API.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key configured
		if s.cfg.Server.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			authHeader = r.Header.Get("X-API-Key")
		}
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			authHeader = authHeader[7:]
		}

		if subtle.ConstantTimeCompare([]byte(authHeader), []byte(s.cfg.Server.APIKey)) != 1 {
			s.logger.Warn("unauthorized API request",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
