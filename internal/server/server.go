// ABOUTME: Server orchestrator that wires the store, backend client, identity and web front-end
// ABOUTME: Manages listeners (TCP or tailnet), periodic cleanup and graceful shutdown

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/cosint-web/internal/api"
	"github.com/2389/cosint-web/internal/auth"
	"github.com/2389/cosint-web/internal/config"
	"github.com/2389/cosint-web/internal/dedupe"
	"github.com/2389/cosint-web/internal/identity"
	"github.com/2389/cosint-web/internal/registry"
	"github.com/2389/cosint-web/internal/store"
	"github.com/2389/cosint-web/internal/web"
)

const (
	// sweepInterval is how often expired sessions and cache rows are deleted
	sweepInterval = 10 * time.Minute

	// shutdownTimeout bounds graceful shutdown
	shutdownTimeout = 5 * time.Second
)

// Server runs the cosint-web HTTP server.
type Server struct {
	config      *config.Config
	store       *store.SQLiteStore
	backend     *api.Client
	hub         *registry.Hub
	dedupe      *dedupe.Cache
	web         *web.App
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// siteURL is the origin reported at startup; a tailnet DNS name replaces
	// it when no site URL is configured
	siteURL string

	shutdownOnce sync.Once
	shutdownErr  error
}

// determineSiteURL resolves the external origin from config.
func determineSiteURL(cfg *config.Config) string {
	if cfg.Site.URL != "" {
		return strings.TrimRight(cfg.Site.URL, "/")
	}
	if cfg.Site.PublicHost != "" {
		return "https://" + cfg.Site.PublicHost
	}
	if !cfg.Tailscale.Enabled {
		return "http://" + cfg.Server.HTTPAddr
	}
	if cfg.Tailscale.HTTPS || cfg.Tailscale.Funnel {
		return "https://" + cfg.Tailscale.Hostname
	}
	return "http://" + cfg.Tailscale.Hostname
}

// initStore opens the SQLite store, in memory when no path is configured.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = ":memory:"
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a new Server with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	backend, err := api.New(api.Options{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.Timeout,
		RateLimit: cfg.API.RateLimit,
		Burst:     cfg.API.Burst,
		Cache:     s,
		CacheTTL:  cfg.API.CacheTTL,
		Logger:    logger,
	})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("creating backend client: %w", err)
	}

	provider := identity.New(identity.Config{
		URL:       cfg.Identity.URL,
		AnonKey:   cfg.Identity.AnonKey,
		JWTSecret: cfg.Identity.JWTSecret,
		Timeout:   cfg.API.Timeout,
	}, logger)

	sessions := auth.NewManager(s, provider, logger)
	hub := registry.NewHub(logger)
	dedupeCache := dedupe.New(5*time.Minute, 100_000) // TTL 5min, max 100k entries

	app := web.New(backend, provider, sessions, hub, dedupeCache, web.Config{
		SiteURL:       cfg.Site.URL,
		PublicHost:    cfg.Site.PublicHost,
		OAuthProvider: cfg.Identity.OAuthProvider,
		StreamTimeout: cfg.Chat.StreamTimeout,
		TrackedBills:  true,
	}, logger)

	srv := &Server{
		config:  cfg,
		store:   s,
		backend: backend,
		hub:     hub,
		dedupe:  dedupeCache,
		web:     app,
		logger:  logger.With("component", "server"),
		siteURL: determineSiteURL(cfg),
	}

	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("GET /health", srv.handleHealth)
	mux.HandleFunc("GET /health/ready", srv.handleReady)

	app.RegisterRoutes(mux)

	srv.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Open streams only end when their workspace closes, and
	// http.Server.Shutdown waits for them.
	srv.httpServer.RegisterOnShutdown(app.Close)

	return srv, nil
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// SiteURL returns the external origin the server believes it is reached on.
func (s *Server) SiteURL() string {
	return s.siteURL
}

// setupTCPListener creates a standard TCP listener.
func (s *Server) setupTCPListener() (net.Listener, error) {
	s.logger.Info("starting server", "http_addr", s.config.Server.HTTPAddr, "api", s.backend.BaseURL())

	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates a listener based on configuration (Tailscale or TCP).
func (s *Server) setupListener(ctx context.Context) (net.Listener, error) {
	if s.config.Tailscale.Enabled {
		if s.config.Server.HTTPAddr != "" {
			s.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", s.config.Server.HTTPAddr)
		}
		return s.setupTailscaleListener(ctx)
	}
	return s.setupTCPListener()
}

// Run starts the server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String(), "site_url", s.siteURL)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.sweepLoop(sweepCtx)

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := s.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// sweepLoop periodically deletes expired sessions and cached bundles.
func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Server) sweep(ctx context.Context) {
	sessions, err := s.store.DeleteExpiredSessions(ctx)
	if err != nil {
		s.logger.Error("failed to delete expired sessions", "error", err)
	}
	cached, err := s.store.DeleteExpiredCache(ctx)
	if err != nil {
		s.logger.Error("failed to delete expired cache entries", "error", err)
	}
	if sessions > 0 || cached > 0 {
		s.logger.Debug("swept expired rows", "sessions", sessions, "cache", cached)
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "cosint-web", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable (get one at https://login.tailscale.com/admin/settings/keys)")
	}
	return authKey, nil
}

// setupTailscaleListener joins the tailnet and returns the HTTP listener.
func (s *Server) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := s.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	s.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	s.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := s.tsnetServer.Up(ctx)
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}

	s.logTailscaleStatus(tsCfg.Hostname, status)
	s.updateSiteURLFromStatus(status)

	return s.createTailscaleHTTPListener(tsCfg)
}

// logTailscaleStatus logs info about the tailscale node status.
func (s *Server) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		s.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	s.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// updateSiteURLFromStatus uses the tailnet DNS name as the site origin
// unless one is configured. Sign-in callbacks still follow the request origin.
func (s *Server) updateSiteURLFromStatus(status *ipnstate.Status) {
	if s.config.Site.URL != "" || s.config.Site.PublicHost != "" {
		return
	}
	if status.Self == nil || status.Self.DNSName == "" {
		return
	}
	scheme := "http"
	if s.config.Tailscale.HTTPS || s.config.Tailscale.Funnel {
		scheme = "https"
	}
	siteURL := scheme + "://" + strings.TrimSuffix(status.Self.DNSName, ".")
	if siteURL != s.siteURL {
		s.logger.Info("using tailscale DNS name as site URL", "old", s.siteURL, "new", siteURL)
		s.siteURL = siteURL
	}
}

// createTailscaleHTTPListener creates the appropriate HTTP listener based on config.
func (s *Server) createTailscaleHTTPListener(tsCfg config.TailscaleConfig) (net.Listener, error) {
	switch {
	case tsCfg.Funnel:
		s.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := s.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			_ = s.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale funnel port: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		return s.createTailscaleTLSListener()
	default:
		ln, err := s.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			_ = s.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// createTailscaleTLSListener creates a TLS listener using Tailscale's auto-provisioned certs.
func (s *Server) createTailscaleTLSListener() (net.Listener, error) {
	s.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := s.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := s.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// Shutdown gracefully stops the server and releases resources. It is safe
// to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.logger.Info("shutting down server")

		var result *multierror.Error
		if err := s.httpServer.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("HTTP shutdown: %w", err))
		}

		// Already called from RegisterOnShutdown; covers a server that never served.
		s.web.Close()
		s.hub.Close()
		s.dedupe.Close()

		if s.tsnetServer != nil {
			if err := s.tsnetServer.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("tailscale shutdown: %w", err))
			}
		}
		if err := s.store.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("store close: %w", err))
		}

		s.shutdownErr = result.ErrorOrNil()
	})
	return s.shutdownErr
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the COSINT backend answers its health check.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := s.backend.Health(ctx); err != nil {
		s.logger.Warn("backend not ready", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "backend unavailable: %v", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
