// Package server wires the doggos handlers into an API server and a probe server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vyrodovalexey/doggos/internal/auth"
	"github.com/vyrodovalexey/doggos/internal/config"
	"github.com/vyrodovalexey/doggos/internal/handler"
	"github.com/vyrodovalexey/doggos/internal/middleware"
	"github.com/vyrodovalexey/doggos/internal/session"
)

// Server runs the API server and, when a probe port is configured, a
// separate probe server for /health, /ready and /metrics.
type Server struct {
	httpServer    *http.Server
	probeServer   *http.Server
	router        *mux.Router
	probeRouter   *mux.Router
	config        *config.Config
	logger        *zap.Logger
	authenticator auth.Authenticator
	sessions      *session.Manager
	probes        *handler.ProbeHandler
	liveView      *handler.LiveViewHandler

	apiListener   net.Listener
	probeListener net.Listener

	stopOnce sync.Once
	stopped  chan struct{}
}

// New creates a new Server. A nil authenticator serves every caller from the
// anonymous session.
func New(
	cfg *config.Config,
	logger *zap.Logger,
	sessions *session.Manager,
	authenticator auth.Authenticator,
) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		probeRouter:   mux.NewRouter(),
		config:        cfg,
		logger:        logger,
		authenticator: authenticator,
		sessions:      sessions,
		probes:        handler.NewProbeHandler(logger),
		stopped:       make(chan struct{}),
	}

	// Dog names may contain "/", which clients send as %2F.
	s.router.UseEncodedPath()

	s.setupMiddleware()
	s.setupRoutes()
	s.setupProbeRoutes()
	s.setupHTTPServers()

	return s
}

// setupMiddleware configures the API middleware chain, outermost first.
func (s *Server) setupMiddleware() {
	s.router.Use(mux.MiddlewareFunc(middleware.Recovery(s.logger)))
	s.router.Use(mux.MiddlewareFunc(middleware.RequestID()))

	if s.config.MetricsEnabled {
		s.router.Use(mux.MiddlewareFunc(middleware.Metrics()))
	}

	s.router.Use(mux.MiddlewareFunc(middleware.Logging(s.logger)))
	s.router.Use(mux.MiddlewareFunc(middleware.CORS(middleware.DefaultCORSConfig())))

	if s.authenticator != nil {
		s.router.Use(mux.MiddlewareFunc(middleware.Auth(s.authenticator, s.logger)))
	}
}

// setupRoutes configures the API routes.
func (s *Server) setupRoutes() {
	s.probes.RegisterRoutes(s.router)

	handler.NewDogHandler(s.sessions, s.logger).RegisterRoutes(s.router)

	s.liveView = handler.NewLiveViewHandler(s.sessions, s.logger)
	s.liveView.RegisterRoutes(s.router)

	if s.config.MetricsEnabled {
		s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
}

// setupProbeRoutes configures the unauthenticated probe routes.
func (s *Server) setupProbeRoutes() {
	s.probeRouter.Use(mux.MiddlewareFunc(middleware.Recovery(s.logger)))
	s.probeRouter.Use(mux.MiddlewareFunc(middleware.Logging(s.logger)))

	s.probes.RegisterRoutes(s.probeRouter)

	if s.config.MetricsEnabled {
		s.probeRouter.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
}

// setupHTTPServers configures the API server and the optional probe server.
func (s *Server) setupHTTPServers() {
	s.httpServer = &http.Server{
		Addr:              s.config.Address(),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	if s.config.ProbePort == 0 {
		return
	}

	s.probeServer = &http.Server{
		Addr:              s.config.ProbeAddress(),
		Handler:           s.probeRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

// Listen binds the configured ports and marks the server ready.
func (s *Server) Listen() error {
	apiListener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}

	if s.probeServer != nil {
		probeListener, err := net.Listen("tcp", s.probeServer.Addr)
		if err != nil {
			_ = apiListener.Close()
			return fmt.Errorf("listen on probe %s: %w", s.probeServer.Addr, err)
		}
		s.probeListener = probeListener
	}

	s.apiListener = apiListener
	s.probes.SetReady(true)

	s.logger.Info("server listening",
		zap.String("address", apiListener.Addr().String()),
		zap.String("probe_address", s.ProbeAddr()),
		zap.Bool("metrics_enabled", s.config.MetricsEnabled),
		zap.Bool("auth_enabled", s.authenticator != nil),
	)
	return nil
}

// Serve serves on the bound listeners until Shutdown. Either server failing
// stops the other.
func (s *Server) Serve() error {
	if s.apiListener == nil {
		return errors.New("server is not listening")
	}

	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		return serve(s.httpServer, s.apiListener, "api")
	})

	if s.probeListener != nil {
		g.Go(func() error {
			return serve(s.probeServer, s.probeListener, "probe")
		})
	}

	// A failed server takes the other one down with it.
	g.Go(func() error {
		select {
		case <-ctx.Done():
			s.closeServers()
		case <-s.stopped:
		}
		return nil
	})

	err := g.Wait()
	if err != nil {
		s.logger.Error("server stopped", zap.Error(err))
	}
	return err
}

// Start binds the configured ports and serves until Shutdown.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// closeServers closes both servers without draining.
func (s *Server) closeServers() {
	_ = s.httpServer.Close()
	if s.probeServer != nil {
		_ = s.probeServer.Close()
	}
}

func serve(srv *http.Server, l net.Listener, name string) error {
	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}

// Shutdown stops accepting requests, closes live view streams, drains both
// servers and ends every session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	s.probes.SetReady(false)

	s.liveView.CloseAllConnections()

	var g errgroup.Group
	g.Go(func() error {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("api server shutdown: %w", err)
		}
		return nil
	})
	if s.probeServer != nil {
		g.Go(func() error {
			if err := s.probeServer.Shutdown(ctx); err != nil {
				return fmt.Errorf("probe server shutdown: %w", err)
			}
			return nil
		})
	}
	err := g.Wait()
	s.stopOnce.Do(func() { close(s.stopped) })

	s.sessions.Close()

	if err != nil {
		return err
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Addr returns the bound API address, or "" before Listen.
func (s *Server) Addr() string {
	if s.apiListener == nil {
		return ""
	}
	return s.apiListener.Addr().String()
}

// ProbeAddr returns the bound probe address, or "" when there is none.
func (s *Server) ProbeAddr() string {
	if s.probeListener == nil {
		return ""
	}
	return s.probeListener.Addr().String()
}

// Router returns the API router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ProbeRouter returns the probe router.
func (s *Server) ProbeRouter() *mux.Router {
	return s.probeRouter
}
