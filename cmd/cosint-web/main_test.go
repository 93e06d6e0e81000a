// ABOUTME: Tests for the cosint-web command helpers
// ABOUTME: Covers config writing and loading, path resolution and the color log handler

package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/cosint-web/internal/config"
)

func TestWriteConfigLoadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "web.yaml")

	cfg := config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:4000"},
		Database: config.DatabaseConfig{Path: "/tmp/web.db"},
		API: config.APIConfig{
			BaseURL:     "https://api.example.com",
			TimeoutRaw:  config.DefaultAPITimeout.String(),
			CacheTTLRaw: config.DefaultCacheTTL.String(),
		},
		Identity: config.IdentityConfig{URL: "https://id.example.com", AnonKey: "anon"},
		Chat:     config.ChatConfig{StreamTimeoutRaw: config.DefaultStreamTimeout.String()},
		Logging:  config.LoggingConfig{Level: "debug", Format: "json"},
	}
	require.NoError(t, writeConfig(path, &cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# cosint-web configuration"))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:4000", loaded.Server.HTTPAddr)
	assert.Equal(t, "https://api.example.com", loaded.API.BaseURL)
	assert.Equal(t, config.DefaultAPITimeout, loaded.API.Timeout)
	assert.Equal(t, config.DefaultStreamTimeout, loaded.Chat.StreamTimeout)
	assert.True(t, loaded.Identity.Configured())
	assert.Equal(t, config.DefaultOAuthProvider, loaded.Identity.OAuthProvider)
	assert.Equal(t, "json", loaded.Logging.Format)
}

func TestLoadConfigFallsBackToEnvironment(t *testing.T) {
	t.Setenv("COSINT_API_URL", "https://env.example.com")

	cfg, source, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "(environment)", source)
	assert.Equal(t, "https://env.example.com", cfg.API.BaseURL)
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("COSINT_CONFIG", "/etc/cosint/web.yaml")
	assert.Equal(t, "/etc/cosint/web.yaml", getConfigPath())

	t.Setenv("COSINT_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, "/xdg/cosint/web.yaml", getConfigPath())
}

func TestGetDataPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	assert.Equal(t, "/data/cosint", getDataPath())
}

func TestColorHandler(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer
	logger := slog.New(&colorHandler{mu: &sync.Mutex{}, out: &out, level: slog.LevelInfo})

	logger.Debug("hidden")
	logger.With("component", "web").WithGroup("req").Info("served", "status", 200)
	logger.Error("failed")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "INF served")
	assert.Contains(t, lines[0], " component=web")
	assert.Contains(t, lines[0], "req.status=200")
	assert.Contains(t, lines[1], "ERR failed")
}

func TestColorHandlerEnabled(t *testing.T) {
	h := &colorHandler{mu: &sync.Mutex{}, out: &bytes.Buffer{}, level: slog.LevelWarn}
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestYes(t *testing.T) {
	assert.True(t, yes("Y"))
	assert.True(t, yes("yes"))
	assert.False(t, yes("no"))
	assert.False(t, yes(""))
}
