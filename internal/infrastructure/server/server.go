// Package server wires configuration, logging, metrics, the domain
// managers, and the HTTP router into a runnable service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/updrift/updrift/internal/api/http"
	"github.com/updrift/updrift/internal/api/middleware"
	"github.com/updrift/updrift/internal/api/ws"
	"github.com/updrift/updrift/internal/domain/catalog"
	"github.com/updrift/updrift/internal/domain/registry"
	"github.com/updrift/updrift/internal/domain/resolver"
	"github.com/updrift/updrift/internal/domain/streamer"
	"github.com/updrift/updrift/internal/infrastructure/config"
	"github.com/updrift/updrift/internal/infrastructure/logging"
	"github.com/updrift/updrift/internal/infrastructure/monitoring"
	"github.com/updrift/updrift/internal/persistence"
	"github.com/updrift/updrift/internal/shared/types"
	"github.com/updrift/updrift/internal/storage"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	httpSrv  *http.Server
	registry *registry.Manager
	catalog  *catalog.Manager
	logger   *logging.Logger
	config   *config.Config
	stop     context.CancelFunc
}

// NewServer builds a server from configuration: artifact store and snapshot
// gateway first, then the managers restored from the last snapshot, then the
// router.
func NewServer(cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}

	logger.Info("initializing updrift server",
		zap.String("port", cfg.Server.Port),
		zap.String("storage_root", cfg.Storage.Root),
		zap.String("snapshot_root", cfg.Snapshot.Root),
	)

	metrics := monitoring.NewMetrics()

	store, err := storage.New(cfg.Storage.Root)
	if err != nil {
		return nil, fmt.Errorf("init artifact store: %w", err)
	}
	snapshots, err := persistence.New(cfg.Snapshot.Root, cfg.Snapshot.Compress)
	if err != nil {
		return nil, fmt.Errorf("init snapshot store: %w", err)
	}

	hub := ws.NewHub(logger.Logger).WithMetrics(metrics)

	reg := registry.NewManager(store, snapshots, logger.Logger).
		WithEvents(hub).
		WithMetrics(metrics)
	cat := catalog.NewManager(store, reg, snapshots, logger.Logger).
		WithEvents(hub).
		WithMetrics(metrics)
	reg.SetPackageRecorder(cat)

	// Reload the last snapshot before anything is shared.
	states, err := snapshots.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	if len(states) > 0 {
		apps := make([]types.AppInfo, 0, len(states))
		versions := make(map[string][]types.VersionInfo, len(states))
		packages := make(map[string][]types.UpdatePackageInfo, len(states))
		for _, st := range states {
			apps = append(apps, st.App)
			versions[st.App.AppID] = st.Versions
			packages[st.App.AppID] = st.Packages
		}
		reg.Restore(apps, versions)
		cat.Restore(packages)
		logger.Info("snapshot restored", zap.Int("apps", len(states)))
	}

	res := resolver.New(reg, cat, store, logger.Logger).WithMetrics(metrics)
	str := streamer.New(cat, store, logger.Logger)

	ctx, stop := context.WithCancel(context.Background())
	if cfg.Storage.Watch {
		watcher, err := storage.NewWatcher(store, logger.Logger)
		if err != nil {
			logger.Warn("store watcher unavailable", zap.Error(err))
		} else {
			go watcher.Run(ctx)
		}
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(reg, cat, res, str, store, metrics, logger.Logger)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Registration and publishing
	router.POST("/apps", handlers.RegisterApp)
	router.GET("/apps", handlers.ListApps)
	router.GET("/apps/:id/versions", handlers.ListVersions)
	router.POST("/apps/:id/versions", handlers.PublishVersion)
	router.POST("/apps/:id/packages/incremental", handlers.PublishIncremental)

	// Client-facing resolution and delivery
	router.POST("/updates/check", handlers.CheckUpdate)
	router.GET("/packages/:id", handlers.GetPackage)
	router.GET("/packages/:id/download", handlers.DownloadPackage)

	// Publish-event feed
	router.GET("/events", hub.HandleConnection)

	logger.Info("server initialized")

	return &Server{
		httpSrv: &http.Server{
			Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		registry: reg,
		catalog:  cat,
		logger:   logger,
		config:   cfg,
		stop:     stop,
	}, nil
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run() error {
	s.logger.Info("starting http server", zap.String("addr", s.httpSrv.Addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close gracefully shuts the server down, draining in-flight streams.
func (s *Server) Close() error {
	s.logger.Info("shutting down server")
	s.stop()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := s.httpSrv.Shutdown(ctx)

	s.logger.Sync()
	return err
}
