package serve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/omnibot/context-service/internal/config"
	"github.com/omnibot/context-service/internal/plugin/route/contexts"
	"github.com/omnibot/context-service/internal/plugin/route/system"
	storemetrics "github.com/omnibot/context-service/internal/plugin/store/metrics"
	registrymigrate "github.com/omnibot/context-service/internal/registry/migrate"
	registryroute "github.com/omnibot/context-service/internal/registry/route"
	registrystore "github.com/omnibot/context-service/internal/registry/store"
	"github.com/omnibot/context-service/internal/secrets"
	"github.com/omnibot/context-service/internal/security"
	"github.com/omnibot/context-service/internal/service"
)

// Server holds the running server state so tests and the serve command can
// inspect and stop it.
type Server struct {
	Config  *config.Config
	Store   registrystore.EntryStore
	Service *service.ContextService
	Router  *gin.Engine

	// Port is the actual listening port, useful when configured with port 0.
	Port int

	httpServer *http.Server
}

// StartServer wires up the store, service and HTTP routes and starts
// listening. The returned server is ready to accept requests.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	ctx = config.WithContext(ctx, cfg)

	labels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid metrics labels: %w", err)
	}
	security.InitMetrics(labels)

	if cfg.MigrateAtStart {
		if err := registrymigrate.RunAll(ctx); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}

	loader, err := registrystore.Select(cfg.StoreType)
	if err != nil {
		return nil, err
	}
	store, err := loader(ctx)
	if err != nil {
		return nil, fmt.Errorf("store %q: %w", cfg.StoreType, err)
	}
	store = storemetrics.Wrap(store)

	svc := service.New(store, log.Default(), service.Options{
		HistoryLimit: cfg.HistoryLimit,
		TTL:          cfg.ContextTTL,
		StoreTimeout: cfg.StoreTimeout,
	})

	apiKeys, err := resolveAPIKeys(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if len(apiKeys) == 0 {
		log.Warn("No API keys configured, authentication is disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(security.RequestIDMiddleware())
	if cfg.ManagementAccessLog {
		router.Use(security.AccessLogMiddleware())
	} else {
		router.Use(security.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(security.MetricsMiddleware())
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	for _, loader := range registryroute.Loaders(registryroute.RouteTypeMain) {
		if err := loader(router); err != nil {
			return nil, err
		}
	}
	contexts.MountRoutes(router, svc, security.APIKeyMiddleware(apiKeys))
	for _, loader := range registryroute.Loaders(registryroute.RouteTypeManagement) {
		if err := loader(router); err != nil {
			return nil, err
		}
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Listener.Port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", cfg.Listener.Port, err)
	}
	port := listener.Addr().(*net.TCPAddr).Port

	s := &Server{
		Config:  cfg,
		Store:   store,
		Service: svc,
		Router:  router,
		Port:    port,
		httpServer: &http.Server{
			Handler:           router,
			ReadHeaderTimeout: cfg.Listener.ReadHeaderTimeout,
		},
	}

	tls := cfg.Listener.TLSCertFile != "" && cfg.Listener.TLSKeyFile != ""
	go func() {
		var serveErr error
		if tls {
			serveErr = s.httpServer.ServeTLS(listener, cfg.Listener.TLSCertFile, cfg.Listener.TLSKeyFile)
		} else {
			serveErr = s.httpServer.Serve(listener)
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			log.Error("HTTP server error", "err", serveErr)
		}
	}()

	system.MarkReady()
	scheme := "http"
	if tls {
		scheme = "https"
	}
	log.Info("Server started", "url", fmt.Sprintf("%s://localhost:%d", scheme, port), "store", cfg.StoreType)
	return s, nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// resolveAPIKeys merges statically configured API keys with keys stored in
// Secrets Manager. The secret payload maps client IDs to key values; the
// returned map is inverted for constant-time lookup by key.
func resolveAPIKeys(ctx context.Context, cfg *config.Config) (map[string]string, error) {
	keys := map[string]string{}
	for key, clientID := range cfg.APIKeys {
		keys[key] = clientID
	}
	if cfg.APIKeysSecret == "" {
		return keys, nil
	}

	provider, err := secrets.NewManager(ctx, cfg.AWSRegion, cfg.SecretsCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("secrets manager: %w", err)
	}
	secret, err := provider.GetSecret(ctx, cfg.APIKeysSecret)
	if err != nil {
		return nil, fmt.Errorf("load API keys from secret %q: %w", cfg.APIKeysSecret, err)
	}
	for clientID, key := range secret {
		keys[key] = clientID
	}
	return keys, nil
}
