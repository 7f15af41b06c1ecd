package main

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitstore.org/internal/appconf"
)

func testConfig(t *testing.T) appconf.Config {
	t.Helper()
	return appconf.Config{
		Env:             appconf.Test,
		DataDir:         t.TempDir(),
		LogLevel:        "error",
		LogFormat:       "text",
		Port:            8080,
		SuggestionLimit: 7,
		APIKeys:         []string{"test"},
		RateLimit:       100,
	}
}

func TestParseAPIKeys(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "Single key", input: "test-key", expected: []string{"test-key"}},
		{name: "Multiple keys", input: "key1,key2,key3", expected: []string{"key1", "key2", "key3"}},
		{name: "Keys with spaces", input: " key1 , key2 , key3 ", expected: []string{"key1", "key2", "key3"}},
		{name: "Empty string", input: "", expected: []string{}},
		{name: "Single key with whitespace", input: "  test-key  ", expected: []string{"test-key"}},
		{name: "Trailing comma", input: "key1,", expected: []string{"key1", ""}},
		{name: "Only commas", input: ",,", expected: []string{"", "", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseAPIKeys(tt.input))
		})
	}
}

func TestBuildApplication(t *testing.T) {
	cfg := testConfig(t)

	coreApp, err := BuildApplication(cfg, os.Stderr)
	require.NoError(t, err, "BuildApplication should not return an error")
	defer func() { _ = coreApp.Close() }()

	assert.NotNil(t, coreApp.Logger, "Logger should be initialized")
	assert.Equal(t, cfg, coreApp.Config, "Config should match input")
	assert.Len(t, coreApp.Resolver.Providers(), 3)
}

func TestBuildApplicationErrorHandling(t *testing.T) {
	t.Run("rejects an unknown log level", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.LogLevel = "loud"

		_, err := BuildApplication(cfg, os.Stderr)
		assert.ErrorContains(t, err, "invalid log level")
	})

	t.Run("rejects an invalid configuration", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.SuggestionLimit = 0

		_, err := BuildApplication(cfg, os.Stderr)
		assert.ErrorContains(t, err, "failed to build application")
	})
}

func TestCreateServer(t *testing.T) {
	coreApp, err := BuildApplication(testConfig(t), os.Stderr)
	require.NoError(t, err)
	defer func() { _ = coreApp.Close() }()

	srv, api := CreateServer(coreApp)
	defer api.Shutdown()

	assert.Equal(t, ":8080", srv.Addr, "Server address should match port")
	assert.NotNil(t, srv.Handler, "Server handler should be set")
	assert.NotNil(t, srv.ErrorLog)
	assert.Equal(t, time.Minute, srv.IdleTimeout, "IdleTimeout should be 1 minute")
	assert.Equal(t, 5*time.Second, srv.ReadTimeout, "ReadTimeout should be 5 seconds")
	assert.Equal(t, 10*time.Second, srv.WriteTimeout, "WriteTimeout should be 10 seconds")
}

func TestCreateServerHandlerResponds(t *testing.T) {
	tests := []struct {
		name      string
		env       appconf.Environment
		path      string
		wantCode  int
		wantReqID bool
	}{
		{name: "health", env: appconf.Test, path: "/healthz", wantCode: http.StatusOK, wantReqID: true},
		{name: "resource", env: appconf.Test, path: "/resource/data/favs", wantCode: http.StatusOK, wantReqID: true},
		{name: "debug outside production", env: appconf.Development, path: "/debug/schema", wantCode: http.StatusOK},
		{name: "debug hidden in production", env: appconf.Production, path: "/debug/schema", wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Env = tt.env

			coreApp, err := BuildApplication(cfg, os.Stderr)
			require.NoError(t, err)
			defer func() { _ = coreApp.Close() }()

			srv, api := CreateServer(coreApp)
			defer api.Shutdown()

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantReqID {
				assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
			}
		})
	}
}

func TestWatchStreamOutlivesWriteTimeout(t *testing.T) {
	coreApp, err := BuildApplication(testConfig(t), os.Stderr)
	require.NoError(t, err)
	defer func() { _ = coreApp.Close() }()

	srv, api := CreateServer(coreApp)
	defer api.Shutdown()

	ts := httptest.NewUnstartedServer(srv.Handler)
	ts.Config.WriteTimeout = 200 * time.Millisecond
	ts.Start()
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/watch/data/history?descendants=true", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.True(t, strings.HasPrefix(lines.Text(), ": watching"))

	time.Sleep(4 * ts.Config.WriteTimeout)

	insert, err := http.NewRequest(http.MethodPost, ts.URL+"/resource/data/history", strings.NewReader(`{"text":"berri"}`))
	require.NoError(t, err)
	insert.Header.Set("X-API-Key", "test")
	insertResp, err := ts.Client().Do(insert)
	require.NoError(t, err)
	_ = insertResp.Body.Close()
	require.Equal(t, http.StatusCreated, insertResp.StatusCode)

	var event string
	for lines.Scan() {
		if line := lines.Text(); strings.HasPrefix(line, "event: ") {
			event = strings.TrimPrefix(line, "event: ")
			break
		}
	}
	require.NoError(t, lines.Err())
	assert.Equal(t, "change", event)
}

func TestRunStopsWhenContextIsCancelled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Port = 0 // Use port 0 to get a random available port

	coreApp, err := BuildApplication(cfg, os.Stderr)
	require.NoError(t, err)

	srv, api := CreateServer(coreApp)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, srv, coreApp, api)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err, "Server should shutdown cleanly")
	case <-time.After(10 * time.Second):
		t.Fatal("Test timeout - server did not shutdown")
	}
}

func TestRunReportsListenErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Port = 0

	coreApp, err := BuildApplication(cfg, os.Stderr)
	require.NoError(t, err)

	// Hold the port so the server cannot bind it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	srv, api := CreateServer(coreApp)
	srv.Addr = ln.Addr().String()

	err = Run(context.Background(), srv, coreApp, api)
	assert.Error(t, err)
}

func TestConfigFileLoading(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transitstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 3000\nrate_limit: 5\nlog_format: text\n"), 0o600))

	load := func(t *testing.T, args ...string) appconf.Config {
		t.Helper()
		opts := &rootOptions{}
		cmd := &cobra.Command{Use: "transitstore"}
		opts.bindFlags(cmd)
		require.NoError(t, cmd.ParseFlags(args))

		cfg, err := opts.loadConfig(cmd)
		require.NoError(t, err)
		return cfg
	}

	t.Run("file values apply", func(t *testing.T) {
		cfg := load(t, "--config", path)
		assert.Equal(t, 3000, cfg.Port)
		assert.Equal(t, 5, cfg.RateLimit)
		assert.Equal(t, "text", cfg.LogFormat)
		assert.Equal(t, appconf.Development, cfg.Env)
	})

	t.Run("flags override the file", func(t *testing.T) {
		cfg := load(t, "--config", path, "--port", "5000", "--env", "test", "--api-keys", "a, b", "--data-dir", dir)
		assert.Equal(t, 5000, cfg.Port)
		assert.Equal(t, appconf.Test, cfg.Env)
		assert.Equal(t, []string{"a", "b"}, cfg.APIKeys)
		assert.Equal(t, dir, cfg.DataDir)
		assert.Equal(t, 5, cfg.RateLimit)
	})

	t.Run("invalid flag value", func(t *testing.T) {
		opts := &rootOptions{}
		cmd := &cobra.Command{Use: "transitstore"}
		opts.bindFlags(cmd)
		require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--rate-limit", "-1"}))

		_, err := opts.loadConfig(cmd)
		var cfgErr *appconf.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "rate_limit", cfgErr.Field)
	})
}
