package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hydroexec/internal/ir"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hydroexec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadValid(t *testing.T) {
	path := writeConfig(t, `
engine:
  queue_depth: 16
  max_telemetry_age: 5s
  tier: read-only
thresholds:
  vibration_ceiling_mm_s: 2.5
audit:
  db_path: audit.db
  durable: true
notify:
  webhooks:
    - type: slack
      url_env: HYDRO_SLACK_URL
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Engine.QueueDepth)
	assert.Equal(t, 5*time.Second, cfg.Engine.MaxTelemetryAge)
	assert.Equal(t, ir.TierReadOnly, cfg.Tier())
	assert.Equal(t, 2.5, cfg.Thresholds.VibrationCeilingMmS)
	assert.Equal(t, "audit.db", cfg.Audit.DBPath)
	assert.True(t, cfg.Audit.Durable)
	require.Len(t, cfg.Notify.Webhooks, 1)
	assert.Equal(t, "HYDRO_SLACK_URL", cfg.Notify.Webhooks[0].URLEnv)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Parse([]byte("audit:\n  db_path: x.db\n"))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Engine, cfg.Engine)
	assert.Equal(t, def.Thresholds, cfg.Thresholds)
	assert.Equal(t, def.Market, cfg.Market)
	assert.Equal(t, ir.TierAdvisory, cfg.Tier())
	assert.Equal(t, DefaultNotifyTimeout, cfg.Notify.Timeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read")
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad yaml", "engine: [", "parse yaml"},
		{"queue depth", "engine:\n  queue_depth: 0\n", "queue_depth"},
		{"tier", "engine:\n  tier: root\n", "engine.tier"},
		{"derate", "thresholds:\n  derate: 1.5\n", "thresholds.derate"},
		{"alpha", "engine:\n  baseline_alpha: 0\n", "baseline_alpha"},
		{"fraction", "market:\n  balanced_fraction: 2\n", "market.balanced_fraction"},
		{"settlement", "finance:\n  settlement_hours: 0\n", "settlement_hours"},
		{"webhook type", "notify:\n  webhooks:\n    - type: pager\n", "notify.webhooks[0].type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWebhookResolveURL(t *testing.T) {
	t.Setenv("HYDRO_TEST_HOOK", "https://hooks.example/abc")
	assert.Equal(t, "https://hooks.example/abc", WebhookConfig{URLEnv: "HYDRO_TEST_HOOK", URL: "ignored"}.ResolveURL())
	assert.Equal(t, "https://direct.example", WebhookConfig{URL: "https://direct.example"}.ResolveURL())
	assert.Equal(t, "", WebhookConfig{URLEnv: "HYDRO_TEST_HOOK_UNSET"}.ResolveURL())
}

func TestWatchReloads(t *testing.T) {
	path := writeConfig(t, "engine:\n  queue_depth: 8\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) { changes <- c })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	// An invalid write is ignored.
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  queue_depth: -1\n"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  queue_depth: 32\n"), 0o644))

	// A write can surface as several events (truncate, then data), so wait
	// for the final content rather than the first callback.
	deadline := time.After(5 * time.Second)
	for seen := false; !seen; {
		select {
		case cfg := <-changes:
			assert.Positive(t, cfg.Engine.QueueDepth, "invalid config must never be delivered")
			seen = cfg.Engine.QueueDepth == 32
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

// startWatch runs Watch on path and returns the delivered configs and a
// stop func that cancels the watcher and waits for it to return.
func startWatch(t *testing.T, path string, opts ...WatchOption) (<-chan *Config, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan *Config, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) { changes <- c }, opts...)
	}()
	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	return changes, func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("Watch did not return after cancel")
		}
	}
}

func awaitDepth(t *testing.T, changes <-chan *Config, depth int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.Engine.QueueDepth == depth {
				return
			}
		case <-deadline:
			t.Fatalf("no reload to queue_depth %d observed", depth)
		}
	}
}

// saveByRename replaces path the way editors with atomic save do.
func saveByRename(t *testing.T, path, body string) {
	t.Helper()
	tmp := path + ".swp"
	require.NoError(t, os.WriteFile(tmp, []byte(body), 0o644))
	require.NoError(t, os.Rename(tmp, path))
}

func TestWatchSurvivesRenameOverSave(t *testing.T) {
	path := writeConfig(t, "engine:\n  queue_depth: 8\n")
	changes, stop := startWatch(t, path, WithDebounce(20*time.Millisecond))
	defer stop()

	saveByRename(t, path, "engine:\n  queue_depth: 32\n")
	awaitDepth(t, changes, 32)

	// The watch must still be live after the inode was replaced.
	saveByRename(t, path, "engine:\n  queue_depth: 64\n")
	awaitDepth(t, changes, 64)

	require.NoError(t, os.WriteFile(path, []byte("engine:\n  queue_depth: 128\n"), 0o644))
	awaitDepth(t, changes, 128)
}

func TestWatchDebouncesBursts(t *testing.T) {
	path := writeConfig(t, "engine:\n  queue_depth: 8\n")
	changes, stop := startWatch(t, path, WithDebounce(300*time.Millisecond))
	defer stop()

	for depth := 10; depth <= 50; depth += 10 {
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("engine:\n  queue_depth: %d\n", depth)), 0o644))
		time.Sleep(10 * time.Millisecond)
	}
	// Neighbouring files never trigger a reload.
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.yaml"), []byte("x: 1\n"), 0o644))

	select {
	case cfg := <-changes:
		assert.Equal(t, 50, cfg.Engine.QueueDepth, "a burst reloads once with the final content")
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
	select {
	case cfg := <-changes:
		t.Fatalf("unexpected second reload: queue_depth %d", cfg.Engine.QueueDepth)
	case <-time.After(600 * time.Millisecond):
	}
}

func TestWatchSkipsUnchangedContent(t *testing.T) {
	body := "engine:\n  queue_depth: 8\n"
	path := writeConfig(t, body)
	changes, stop := startWatch(t, path, WithDebounce(20*time.Millisecond))
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	select {
	case cfg := <-changes:
		t.Fatalf("identical save reloaded: queue_depth %d", cfg.Engine.QueueDepth)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatchMissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "absent", "hydroexec.yaml"), func(*Config) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent")
}
