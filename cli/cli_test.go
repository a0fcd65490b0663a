package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/simple-items-server/config"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "itemsd", cmd.Use)

	for _, name := range []string{"serve", "version"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestFlags(t *testing.T) {
	cmd := NewRootCommand()

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	for _, name := range []string{"backend", "port"} {
		assert.NotNil(t, serve.Flags().Lookup(name), name)
		assert.NotNil(t, cmd.Flags().Lookup(name), "root accepts %s", name)
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "itemsd dev\n", out.String())
}

func TestLoadConfigFlagsWin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "itemsd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"7000\"\nstore:\n  backend: sqlite\n"), 0o644))
	t.Setenv("STORE_BACKEND", "redis")

	cfg, err := loadConfig(&ServeOptions{RootOptions: &RootOptions{ConfigPath: path}, Backend: "memory"})
	require.NoError(t, err)
	assert.Equal(t, config.BackendMemory, cfg.Store.Backend)
	assert.Equal(t, "7000", cfg.Port)

	cfg, err = loadConfig(&ServeOptions{RootOptions: &RootOptions{ConfigPath: path}, Port: "9999"})
	require.NoError(t, err)
	assert.Equal(t, config.BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "9999", cfg.Port)
}

func TestLoadConfigFlagOverridesBadEnv(t *testing.T) {
	t.Setenv("STORE_BACKEND", "cassandra")

	cfg, err := loadConfig(&ServeOptions{RootOptions: &RootOptions{}, Backend: "memory"})
	require.NoError(t, err)
	assert.Equal(t, config.BackendMemory, cfg.Store.Backend)

	_, err = loadConfig(&ServeOptions{RootOptions: &RootOptions{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cassandra")
}

func TestServeRejectsUnknownBackend(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"serve", "--backend", "cassandra"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cassandra")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, config.LogConfig{Level: "warn", Format: "json"})
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "v", entry["k"])

	assert.True(t, NewLogger(io.Discard, config.LogConfig{Level: "debug"}).Enabled(context.Background(), slog.LevelDebug))
}

func TestServeLifecycle(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Store.Backend = config.BackendMemory

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serveListener(ctx, ln, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	url := "http://" + ln.Addr().String()
	resp, err := http.Post(url+"/items", "application/json", bytes.NewBufferString(`{"name":"widget"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
