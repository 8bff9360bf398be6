package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/codegenie/apiserver/config"
	"github.com/codegenie/apiserver/internal/handlers"
	"github.com/codegenie/apiserver/internal/inference"
	"github.com/codegenie/apiserver/internal/logging"
	"github.com/codegenie/apiserver/internal/mail"
	"github.com/codegenie/apiserver/internal/services"
	"github.com/codegenie/apiserver/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        logging.Logger
	resources  closers
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	jwtSecret := strings.TrimSpace(cfg.JWTSecret)
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	log := logging.New(os.Stdout, cfg.Log.Format, cfg.Log.Level).With("service", "codegenie")
	s := &Server{log: log}
	if err := s.wire(ctx, cfg, jwtSecret); err != nil {
		_ = s.resources.Close()
		return nil, err
	}

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout(cfg) + writeMargin,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

const (
	minRequestTimeout = 60 * time.Second
	// requestMargin leaves room to record history and write the error body
	// after the model call gives up.
	requestMargin = 10 * time.Second
	writeMargin   = 5 * time.Second
)

// requestTimeout bounds a request's context. It outlasts the model client
// so a slow model surfaces as an upstream error, not a dropped connection.
func requestTimeout(cfg config.Config) time.Duration {
	return max(minRequestTimeout, cfg.Models.Timeout+requestMargin)
}

func (s *Server) wire(ctx context.Context, cfg config.Config, jwtSecret string) error {
	stores, closeStores, err := OpenStores(ctx, cfg, s.log)
	if err != nil {
		return err
	}
	s.resources.add(closeStores)

	created, err := stores.InitAll(ctx)
	if err != nil {
		return err
	}
	if len(created) > 0 {
		s.log.Info(ctx, "initialized collections", "collections", created)
	}

	objects, err := storage.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open avatar storage: %w", err)
	}
	s.resources.add(objects.Close)

	mailer, queue, err := newMailer(ctx, cfg, s.log)
	if err != nil {
		return err
	}
	if queue != nil {
		s.resources.add(queue.Close)
	}
	if queue != nil && cfg.Mail.Transport == "memory" {
		s.startMailWorker(mail.NewWorker(queue, cfg.Mail.Channel, mail.NewSMTPMailer(cfg.SMTP), s.log))
	}

	if cfg.Models.Token == "" {
		s.log.Warn(ctx, "HF_TOKEN not set, model server requests are unauthenticated")
	}
	gateway := inference.NewGateway(
		inference.NewCatalog(cfg.Models.Catalog, cfg.Models.ServerURL),
		inference.NewHTTPClient(cfg.Models.Token, cfg.Models.Timeout),
		s.log,
	)

	userService := services.NewUserService(stores.Users, stores.Activity, stores.History, stores.Feedback, s.log)
	recoveryService := services.NewRecoveryService(stores.Users, mailer, cfg.OTPValidity, s.log)
	activityService := services.NewActivityService(stores.Activity, stores.History, stores.Feedback, s.log)
	dashboardService := services.NewDashboardService(stores.Users, stores.Activity, stores.History, stores.Feedback)
	avatarService := services.NewAvatarService(objects, cfg.Avatar.MaxBytes)

	authMiddleware := handlers.RequireAuth(jwtSecret)
	knownSubject := handlers.KnownSubject(userService, s.log)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(requestTimeout(cfg)),
	)
	router.Get("/healthz", handlers.Healthz)
	handlers.GatewayRouter(router, handlers.NewGatewayHandler(gateway, activityService, s.log),
		handlers.OptionalAuth(jwtSecret), knownSubject)
	handlers.FeedbackRouter(router, handlers.NewFeedbackHandler(activityService, s.log), authMiddleware, knownSubject)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, handlers.NewAuthHandler(userService, recoveryService, jwtSecret, cfg.TokenTTL, cfg.ExposeOTP, s.log))
	})
	router.Route("/me", func(r chi.Router) {
		r.Use(authMiddleware, knownSubject)
		handlers.MeRouter(r, handlers.NewMeHandler(dashboardService, activityService, avatarService, s.log))
	})
	router.Route("/admin", func(r chi.Router) {
		handlers.AdminRouter(r, handlers.NewAdminHandler(userService, dashboardService, activityService, avatarService, s.log), authMiddleware)
	})

	s.router = router
	return nil
}

// startMailWorker drains the in-process mail queue until the server shuts
// down.
func (s *Server) startMailWorker(worker *mail.Worker) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error(ctx, "mail worker stopped", "error", err)
		}
	}()
	s.resources.add(func() error {
		cancel()
		<-done
		return nil
	})
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.log.Info(context.Background(), "server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx is
// done, then releases the stores and the mail queue.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	return errors.Join(err, s.resources.Close())
}
