package di

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigertag/tigertag-server/internal/config"
	"github.com/tigertag/tigertag-server/internal/di/providers"
)

func testConfig(t *testing.T, plugins ...config.PluginConfig) *config.Config {
	t.Helper()
	data := t.TempDir()
	return &config.Config{
		App:    config.AppConfig{Environment: "development"},
		Logger: config.LoggerConfig{Level: "error"},
		Store:  config.StoreConfig{DataPath: data, DBPath: filepath.Join(data, "tigertag.db")},
		Pipeline: config.PipelineConfig{
			ConfidenceThreshold: config.DefaultConfidenceThreshold,
			Workers:             2,
		},
		Server:  config.ServerConfig{Enabled: false, Port: "0"},
		Plugins: plugins,
	}
}

func TestRunOnce(t *testing.T) {
	photos := t.TempDir()
	f, err := os.Create(filepath.Join(photos, "beach.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, 2, 2))))
	require.NoError(t, f.Close())

	cfg := testConfig(t,
		config.PluginConfig{Kind: config.KindScanner, ID: "PHOTOS", Name: "directory", Enabled: true, Props: map[string]string{"PATH": photos}},
		config.PluginConfig{Kind: config.KindNotifier, ID: "LOG", Name: "log", Enabled: true, Props: map[string]string{}},
	)
	injector := NewContainerWithConfig(cfg)
	t.Cleanup(func() { injector.Shutdown() })

	require.NoError(t, Bootstrap(injector))

	summary, err := RunOnce(context.Background(), injector)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Discovered)
	assert.Equal(t, 1, summary.Processed)

	st := do.MustInvoke[*providers.StoreHandle](injector)
	res, err := st.GetResource(context.Background(), filepath.Join(photos, "beach.png"))
	require.NoError(t, err)
	assert.NotEqual(t, "rescan", res.Fingerprint)
}

func TestBootstrap_UnknownEngine(t *testing.T) {
	cfg := testConfig(t,
		config.PluginConfig{Kind: config.KindEngine, ID: "X", Name: "nope", Enabled: true, Props: map[string]string{"PREFIX": "x"}},
	)
	injector := NewContainerWithConfig(cfg)
	t.Cleanup(func() { injector.Shutdown() })

	err := Bootstrap(injector)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown engine "nope"`)
}

func TestServe_DisabledWorkers(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.ScanInterval = time.Hour
	injector := NewContainerWithConfig(cfg)

	require.NoError(t, Bootstrap(injector))
	require.NoError(t, Serve(injector))

	watcher := do.MustInvoke[*providers.FileWatcherHandle](injector)
	assert.Nil(t, watcher.Watcher, "watching is off by default")
	server := do.MustInvoke[*providers.HTTPServerHandle](injector)
	assert.Nil(t, server.Server)

	injector.Shutdown()
}
