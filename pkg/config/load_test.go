package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authpipe/pkg/config"
)

type sampleConfig struct {
	BaseURL string        `yaml:"base_url" env:"SAMPLE_BASE_URL" env-default:"http://localhost:8080" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout" env:"SAMPLE_TIMEOUT" env-default:"5s" validate:"gt=0"`
}

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg, err := config.Load[sampleConfig](context.Background(), "sample", "")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("SAMPLE_BASE_URL", "https://api.example.com")
	t.Setenv("SAMPLE_TIMEOUT", "250ms")

	cfg, err := config.Load[sampleConfig](context.Background(), "sample", "")
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.BaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_url: https://file.example.com\ntimeout: 2s\n"), 0o600))

	cfg, err := config.Load[sampleConfig](context.Background(), "sample", path)
	require.NoError(t, err)

	assert.Equal(t, "https://file.example.com", cfg.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
}

func TestLoadMissingFileFallsBackToEnv(t *testing.T) {
	cfg, err := config.Load[sampleConfig](context.Background(), "sample", filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
}

func TestLoadValidationFailure(t *testing.T) {
	t.Setenv("SAMPLE_BASE_URL", "not a url")

	cfg, err := config.Load[sampleConfig](context.Background(), "sample", "")
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Equal(t, []string{"sampleConfig.BaseURL"}, config.ValidationErrors(err))
}
