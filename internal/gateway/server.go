package gateway

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wudi/portway/internal/config"
	"github.com/wudi/portway/internal/logging"
	"github.com/wudi/portway/internal/metrics"
	"github.com/wudi/portway/internal/middleware"
)

const shutdownTimeout = 30 * time.Second

// Server hosts the ingress listener and the admin API, and drives config
// reloads from SIGHUP and the file watcher.
type Server struct {
	gateway    *Gateway
	metrics    *metrics.Metrics
	configPath string
	startTime  time.Time

	ingress *http.Server
	admin   *http.Server // nil when admin shares the ingress port
	watcher *config.Watcher
}

// NewServer wires the gateway behind the middleware stack. When admin_port
// is zero the admin API and /metrics are mounted on the ingress port.
func NewServer(cfg *config.Config, configPath string) (*Server, error) {
	m := metrics.New()
	g, err := New(cfg, m)
	if err != nil {
		return nil, err
	}

	s := &Server{
		gateway:    g,
		metrics:    m,
		configPath: configPath,
		startTime:  time.Now(),
	}

	admin := s.adminHandler()

	var ingress http.Handler = g
	if cfg.Gateway.AdminPort == 0 {
		ingress = s.dispatch(admin)
	} else {
		s.admin = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.AdminPort),
			Handler: admin,
		}
	}

	handler := middleware.NewChain(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.AccessLog(),
		middleware.Throttle(cfg.Gateway.GlobalRateLimit),
	).Then(ingress)

	s.ingress = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Gateway.ReadTimeout,
		WriteTimeout: cfg.Gateway.WriteTimeout,
	}
	return s, nil
}

// dispatch routes admin paths to the admin handler when both APIs share
// one port.
func (s *Server) dispatch(admin http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		if p == "/metrics" || p == "/admin" || strings.HasPrefix(p, "/admin/") {
			if p == "/admin" {
				r.URL.Path = "/admin/"
			}
			admin.ServeHTTP(w, r)
			return
		}
		s.gateway.ServeHTTP(w, r)
	})
}

// Run starts the listeners and blocks until SIGINT or SIGTERM, then shuts
// down gracefully. SIGHUP reloads the configuration from disk.
func (s *Server) Run() error {
	cfg := s.gateway.Config()

	if cfg.Gateway.WatchConfig && s.configPath != "" {
		watcher, err := config.NewWatcher(s.configPath, s.gateway.Reload)
		if err != nil {
			return fmt.Errorf("config watcher: %w", err)
		}
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("config watcher: %w", err)
		}
		s.watcher = watcher
	}

	g, runCtx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		logging.Info("ingress listening", zap.String("addr", s.ingress.Addr))
		if err := s.ingress.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if s.admin != nil {
		g.Go(func() error {
			logging.Info("admin listening", zap.String("addr", s.admin.Addr))
			if err := s.admin.ListenAndServe(); err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		defer signal.Stop(sigs)

		for {
			select {
			case <-runCtx.Done():
				return nil
			case sig := <-sigs:
				if sig == syscall.SIGHUP {
					s.reloadFromDisk()
					continue
				}
				logging.Info("shutting down", zap.String("signal", sig.String()))
				s.shutdown()
				return nil
			}
		}
	})

	err := g.Wait()

	if s.watcher != nil {
		s.watcher.Stop()
	}
	s.gateway.Close()
	logging.Sync()
	return err
}

func (s *Server) reloadFromDisk() {
	if s.configPath == "" {
		logging.Warn("reload requested but no config path is set")
		return
	}

	cfg, err := config.NewLoader().Load(s.configPath)
	if err != nil {
		logging.Error("reload rejected, keeping previous configuration", zap.Error(err))
		return
	}
	if err := s.gateway.Reload(cfg); err != nil {
		logging.Error("reload rejected, keeping previous configuration", zap.Error(err))
	}
}

func (s *Server) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.ingress.Shutdown(ctx); err != nil {
		logging.Warn("ingress shutdown", zap.Error(err))
	}
	if s.admin != nil {
		if err := s.admin.Shutdown(ctx); err != nil {
			logging.Warn("admin shutdown", zap.Error(err))
		}
	}
}
