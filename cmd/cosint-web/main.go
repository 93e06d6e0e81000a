// ABOUTME: Entry point for the cosint-web server
// ABOUTME: Serves the COSINT terminal, dashboards and sign-in flow to browsers

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/2389/cosint-web/internal/config"
	"github.com/2389/cosint-web/internal/identity"
	"github.com/2389/cosint-web/internal/server"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                _       _                       _
  ___ ___  ___ (_)_ __ | |_      __      _____ | |__
 / __/ _ \/ __|| | '_ \| __|____ \ \ /\ / / _ \| '_ \
| (_| (_) \__ \| | | | | ||_____| \ V  V /  __/| |_) |
 \___\___/|___/|_|_| |_|\__|      \_/\_/ \___||_.__/
`

// getConfigPath returns the path to the web config file.
// Priority: COSINT_CONFIG env var > XDG_CONFIG_HOME/cosint/web.yaml > ~/.config/cosint/web.yaml
func getConfigPath() string {
	if envPath := os.Getenv("COSINT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "web.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "cosint", "web.yaml")
}

// getDataPath returns the path to the cosint data directory.
// Priority: XDG_DATA_HOME/cosint > ~/.local/share/cosint
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "cosint")
}

// loadConfig reads the config file, or falls back to COSINT_* environment
// variables when there is none.
func loadConfig(path string) (*config.Config, string, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg, err := config.FromEnv()
		if err != nil {
			return nil, "", fmt.Errorf("loading config from environment: %w", err)
		}
		return cfg, "(environment)", nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: cosint-web <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                  Start the web server")
		fmt.Println("  init                   Create a new config file interactively")
		fmt.Println("  health                 Check server and backend health")
		fmt.Println("  token --user ID        Sign a development access token")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "token":
		err = runToken(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	cfg, source, err := loadConfig(getConfigPath())
	if err != nil {
		return err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(getDataPath(), "web.db")
	}
	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", source)
	green.Print("    ▶ ")
	fmt.Printf("Backend:   %s\n", cfg.API.BaseURL)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	} else {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	}

	if !cfg.Identity.Configured() {
		yellow.Print("    ! ")
		fmt.Println("Identity provider not configured; sign-in is disabled")
	}

	fmt.Println()

	logger.Info("starting cosint-web",
		"config", source,
		"http_addr", cfg.Server.HTTPAddr,
		"api", cfg.API.BaseURL,
	)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(&colorHandler{mu: &sync.Mutex{}, out: os.Stdout, level: level})
}

// colorHandler writes one colorized line per record. Writes are serialized
// across handlers derived with WithAttrs.
type colorHandler struct {
	mu    *sync.Mutex
	out   io.Writer
	level slog.Level
	attrs []slog.Attr
	group string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	writeAttr := func(a slog.Attr) {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
	for _, a := range h.attrs {
		writeAttr(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(h.qualify(a))
		return true
	})
	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, buf.String())
	return err
}

func (h *colorHandler) clone() *colorHandler {
	return &colorHandler{mu: h.mu, out: h.out, level: h.level, attrs: h.attrs, group: h.group}
}

// qualify prefixes the key with the open group. Attrs added through
// WithAttrs are qualified once, when added.
func (h *colorHandler) qualify(a slog.Attr) slog.Attr {
	if h.group != "" {
		a.Key = h.group + "." + a.Key
	}
	return a
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	c.attrs = append([]slog.Attr{}, h.attrs...)
	for _, a := range attrs {
		c.attrs = append(c.attrs, h.qualify(a))
	}
	return c
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	c := h.clone()
	if c.group != "" {
		name = c.group + "." + name
	}
	c.group = name
	return c
}

// runHealth checks the running server's liveness and backend readiness.
func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig(getConfigPath())
	if err != nil {
		return err
	}

	base := fmt.Sprintf("http://%s", cfg.Server.HTTPAddr)
	if cfg.Site.URL != "" {
		base = strings.TrimRight(cfg.Site.URL, "/")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	for _, check := range []struct{ name, path string }{
		{"server", "/health"},
		{"backend", "/health/ready"},
	} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+check.path, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("%s health check failed: %w", check.name, err)
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s unhealthy: status %d: %s", check.name, resp.StatusCode, strings.TrimSpace(string(body)))
		}
		fmt.Printf("%s: healthy\n", check.name)
	}
	return nil
}

// runToken signs an access token with the configured JWT secret, for
// pointing cosint-tui or curl at a backend that shares the secret.
func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	userID := fs.String("user", "", "user ID (token subject)")
	email := fs.String("email", "", "email claim")
	name := fs.String("name", "", "full_name metadata")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if strings.TrimSpace(*userID) == "" {
		return fmt.Errorf("--user flag is required")
	}

	cfg, _, err := loadConfig(getConfigPath())
	if err != nil {
		return err
	}
	if cfg.Identity.JWTSecret == "" {
		return fmt.Errorf("identity.jwt_secret not configured (required to sign tokens)")
	}

	u := &identity.User{ID: *userID, Email: *email, Role: "authenticated"}
	if *name != "" {
		u.UserMetadata = map[string]any{"full_name": *name}
	}

	token, err := identity.NewJWTVerifier([]byte(cfg.Identity.JWTSecret)).Generate(u, *ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Println(token)
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("cosint-web configuration setup")
	fmt.Println("==============================")
	fmt.Println()

	defaultDbPath := filepath.Join(getDataPath(), "web.db")

	outputFile := prompt(reader, "Config file path", getConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", config.DefaultHTTPAddr)
	siteURL := prompt(reader, "Public site URL (leave empty to use the request origin)", "")

	fmt.Println("\n--- Backend Configuration ---")
	apiURL := prompt(reader, "COSINT backend URL", config.DefaultAPIBaseURL)

	fmt.Println("\n--- Identity Provider ---")
	identityURL := prompt(reader, "Identity provider URL (leave empty to disable sign-in)", "")
	var anonKey, jwtSecret, oauthProvider string
	if identityURL != "" {
		anonKey = prompt(reader, "Anon key", "")
		jwtSecret = prompt(reader, "JWT secret (optional, verifies tokens locally)", "")
		oauthProvider = prompt(reader, "OAuth provider", config.DefaultOAuthProvider)
	}

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	fmt.Println("\n--- Tailscale Configuration ---")
	tailscaleEnabled := yes(prompt(reader, "Enable Tailscale?", "no"))

	var tsHostname, tsAuthKey string
	var tsEphemeral, tsFunnel bool
	if tailscaleEnabled {
		tsHostname = prompt(reader, "Tailscale hostname", "cosint")
		tsAuthKey = prompt(reader, "Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
		tsEphemeral = yes(prompt(reader, "Ephemeral node?", "no"))
		tsFunnel = yes(prompt(reader, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	cfg := config.Config{
		Server:   config.ServerConfig{HTTPAddr: httpAddr},
		Site:     config.SiteConfig{URL: siteURL},
		Database: config.DatabaseConfig{Path: dbPath},
		API: config.APIConfig{
			BaseURL:     apiURL,
			TimeoutRaw:  config.DefaultAPITimeout.String(),
			CacheTTLRaw: config.DefaultCacheTTL.String(),
		},
		Identity: config.IdentityConfig{
			URL:           identityURL,
			AnonKey:       anonKey,
			JWTSecret:     jwtSecret,
			OAuthProvider: oauthProvider,
		},
		Tailscale: config.TailscaleConfig{
			Enabled:   tailscaleEnabled,
			Hostname:  tsHostname,
			AuthKey:   tsAuthKey,
			Ephemeral: tsEphemeral,
			Funnel:    tsFunnel,
		},
		Chat:    config.ChatConfig{StreamTimeoutRaw: config.DefaultStreamTimeout.String()},
		Logging: config.LoggingConfig{Level: logLevel, Format: logFormat},
	}

	if err := writeConfig(outputFile, &cfg); err != nil {
		return err
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  cosint-web serve\n")

	return nil
}

// writeConfig saves cfg as YAML. The file may hold the anon key and JWT
// secret, so it is only readable by the owner.
func writeConfig(path string, cfg *config.Config) error {
	body, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	header := "# cosint-web configuration\n# Generated by cosint-web init\n\n"
	if err := os.WriteFile(path, append([]byte(header), body...), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func yes(answer string) bool {
	answer = strings.ToLower(answer)
	return answer == "yes" || answer == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
