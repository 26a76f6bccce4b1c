package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadhq/intake/internal/correlation"
	"github.com/squadhq/intake/internal/poller"
)

func startCorrelationServer(t *testing.T) (*correlation.MemoryStore, string) {
	t.Helper()
	store := correlation.NewMemoryStore()
	mux := http.NewServeMux()
	correlation.NewHandler(store).Register(mux, "")
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return store, srv.URL
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "intake.yaml")
	content := "poll:\n  initial_delay: 5ms\n  interval: 10ms\n  deadline: 200ms\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	showRecord = false
	pollTimeout = 0

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := rootCmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestStatusCommand(t *testing.T) {
	store, url := startCorrelationServer(t)
	cfg := writeConfig(t)

	out, err := execute(t, "status", "1-abc", "--server", url, "--config", cfg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ready":false,"timestamp":null}`, out)

	_, err = store.Put(context.Background(), "1-abc", map[string]any{"clientDraft": "Plan ready"})
	require.NoError(t, err)

	out, err = execute(t, "status", "1-abc", "--server", url, "--config", cfg, "--show")
	require.NoError(t, err)
	assert.Contains(t, out, `"ready": true`)
	assert.Contains(t, out, `"clientDraft": "Plan ready"`)
}

func TestPollCommand(t *testing.T) {
	store, url := startCorrelationServer(t)
	cfg := writeConfig(t)

	_, err := store.Put(context.Background(), "2-def", map[string]any{"clientDraft": "Automate invoice capture"})
	require.NoError(t, err)

	out, err := execute(t, "poll", "2-def", "--server", url, "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Outcome: ready")
	assert.Contains(t, out, "Automate invoice capture")

	out, err = execute(t, "poll", "3-missing", "--server", url, "--config", cfg, "--timeout", "50ms")
	require.NoError(t, err)
	assert.Contains(t, out, "Outcome: timed_out")
	assert.Contains(t, out, poller.DefaultFallbackMessage)
}

func TestConfigFileDrivesPollPolicy(t *testing.T) {
	cfg := writeConfig(t)
	_, url := startCorrelationServer(t)

	_, err := execute(t, "status", "x", "--server", url, "--config", cfg)
	require.NoError(t, err)

	policy := pollPolicy()
	assert.Equal(t, 5*time.Millisecond, policy.InitialDelay)
	assert.Equal(t, 10*time.Millisecond, policy.Interval)
	assert.Equal(t, 200*time.Millisecond, policy.Deadline)
	assert.Equal(t, "clientDraft", policy.SummaryField)
}
