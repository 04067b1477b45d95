package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carmarket/crawler/internal/config"
)

// One New call per process; the progress sink registers Prometheus
// collectors on the default registry.
func TestNewWithMemoryProviders(t *testing.T) {
	cfg := config.Config{
		Server:    config.ServerConfig{Port: 8080, TimeoutSeconds: 5},
		Crawler:   config.CrawlerConfig{StartURL: "https://suchen.mobile.de", MaxPages: 2},
		DB:        config.DBConfig{Provider: "memory"},
		Archive:   config.ArchiveConfig{Provider: "none"},
		Publisher: config.PublisherConfig{Provider: "none"},
		Worker:    config.WorkerConfig{Enabled: true, IntervalMinutes: 30},
	}
	require.NoError(t, cfg.Validate())

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Engine)
	assert.NotNil(t, a.Hub)
	assert.NotNil(t, a.Server)
	assert.NotNil(t, a.Cars)
	assert.NotNil(t, a.Runs)
	assert.NotNil(t, a.Scheduler)
	assert.False(t, a.Engine.Running())
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	cfg := config.Config{
		Server:    config.ServerConfig{Port: 8080},
		Crawler:   config.CrawlerConfig{StartURL: "https://suchen.mobile.de", MaxPages: 2},
		DB:        config.DBConfig{Provider: "sqlite"},
		Archive:   config.ArchiveConfig{Provider: "none"},
		Publisher: config.PublisherConfig{Provider: "none"},
	}

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown db provider")
}
