package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Empty(t, cfg.S3Endpoint)
	assert.Equal(t, "/tmp", cfg.ScratchDir)
	assert.Equal(t, "build.sh", cfg.BuildScript)
	assert.Equal(t, "exec", cfg.BuildRunner)
	assert.Empty(t, cfg.SetupCommand)
	assert.Equal(t, 3, cfg.RetryMax)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBaseDelay)
	assert.Equal(t, 10*time.Second, cfg.RetryMaxDelay)
}

func TestLoadFromCustom(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"LOG_LEVEL":                   "debug",
		"LOG_FORMAT":                  "text",
		"AWS_REGION":                  "eu-west-1",
		"ZIPBUILDER_S3_ENDPOINT":      "http://localhost:9000",
		"ZIPBUILDER_SCRATCH_DIR":      "/var/scratch",
		"ZIPBUILDER_BUILD_SCRIPT":     "scripts/build.sh",
		"ZIPBUILDER_BUILD_RUNNER":     "shell",
		"ZIPBUILDER_SETUP_COMMAND":    "npm install --no-save esbuild",
		"ZIPBUILDER_RETRY_MAX":        "5",
		"ZIPBUILDER_RETRY_BASE_DELAY": "1s",
		"ZIPBUILDER_RETRY_MAX_DELAY":  "30s",
	})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "http://localhost:9000", cfg.S3Endpoint)
	assert.Equal(t, "/var/scratch", cfg.ScratchDir)
	assert.Equal(t, "scripts/build.sh", cfg.BuildScript)
	assert.Equal(t, "shell", cfg.BuildRunner)
	assert.Equal(t, "npm install --no-save esbuild", cfg.SetupCommand)

	policy := cfg.RetryPolicy()
	assert.Equal(t, 5, policy.MaxRetries)
	assert.Equal(t, time.Second, policy.BaseDelay)
	assert.Equal(t, 30*time.Second, policy.MaxDelay)
}

func TestLoadFromRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
		want    string
	}{
		{"runner", map[string]string{"ZIPBUILDER_BUILD_RUNNER": "docker"}, "ZIPBUILDER_BUILD_RUNNER"},
		{"format", map[string]string{"LOG_FORMAT": "xml"}, "LOG_FORMAT"},
		{"retry max", map[string]string{"ZIPBUILDER_RETRY_MAX": "-1"}, "ZIPBUILDER_RETRY_MAX"},
		{"retry parse", map[string]string{"ZIPBUILDER_RETRY_MAX": "many"}, "failed to parse config"},
		{"delay parse", map[string]string{"ZIPBUILDER_RETRY_BASE_DELAY": "soon"}, "failed to parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.environ)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
