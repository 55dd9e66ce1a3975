package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/assaytrack/apiserver/config"
	"github.com/assaytrack/apiserver/internal/db"
	"github.com/assaytrack/apiserver/internal/handlers"
	"github.com/assaytrack/apiserver/internal/mq"
	"github.com/assaytrack/apiserver/internal/notify"
	"github.com/assaytrack/apiserver/internal/services"
	"github.com/assaytrack/apiserver/internal/storage"
	"github.com/assaytrack/apiserver/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     *mq.MQ
}

// New constructs a Server with all repositories, services, and routes
// wired up.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	jwtSecret := strings.TrimSpace(cfg.Auth.JWTSecret)
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	objectStore, err := storage.FromConfig(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	broker, err := mq.FromConfig(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	sampleRepo := store.NewSampleRepository(dbConn)
	reportRepo := store.NewReportRepository(dbConn)
	documentRepo := store.NewDocumentRepository(dbConn)
	statsRepo := store.NewStatsRepository(dbConn)

	errorCounter := NewErrorCounter()
	notifier := notify.New(broker, logger)

	userService := services.NewUserService(userRepo)
	sampleService := services.NewSampleService(sampleRepo, cfg.App.SampleCodePrefix, logger)
	reportService := services.NewReportService(reportRepo, sampleRepo, notifier, cfg.App.FrontendBaseURL, logger)
	documentService := services.NewDocumentService(documentRepo, sampleRepo, objectStore, logger)
	statsService := services.NewStatsService(statsRepo, errorCounter)

	authMiddleware := handlers.RequireAuth(userService, jwtSecret)
	optionalAuth := handlers.OptionalAuth(userService, jwtSecret)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
		errorCounter.Middleware,
	)
	if len(cfg.App.CORSOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.App.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, userService, jwtSecret)
	})
	router.Route("/samples", func(r chi.Router) {
		r.Use(authMiddleware)
		handlers.SampleRouter(r, sampleService, documentService)
	})
	router.Route("/reports", func(r chi.Router) {
		// Verification and lookup by code stay public so QR scans work
		// without a session; identity is resolved when a token is sent.
		r.Group(func(r chi.Router) {
			r.Use(optionalAuth)
			handlers.PublicReportRouter(r, reportService)
		})
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			handlers.ReportRouter(r, reportService)
		})
	})
	router.Route("/documents", func(r chi.Router) {
		r.Use(authMiddleware)
		handlers.DocumentRouter(r, documentService)
	})
	router.Route("/stats", func(r chi.Router) {
		r.Use(authMiddleware)
		handlers.StatsRouter(r, statsService)
	})
	router.Route("/users", func(r chi.Router) {
		r.Use(authMiddleware)
		handlers.UserRouter(r, userService)
	})
	router.Route("/files", func(r chi.Router) {
		handlers.FileRouter(r, documentService)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		broker:     broker,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.broker != nil {
		_ = s.broker.Close()
	}
	return s.httpServer.Close()
}
