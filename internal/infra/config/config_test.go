package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envSource(env map[string]string, file map[string]string) source {
	if file == nil {
		file = map[string]string{}
	}
	return source{
		file: file,
		lookupE: func(k string) (string, bool) {
			v, ok := env[k]
			return v, ok
		},
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := load(envSource(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "memory", cfg.GatewayMode)
	assert.Equal(t, 1500*time.Millisecond, cfg.UnblockSettleDelay)
	assert.Equal(t, []string{"admin", "owner", "manager"}, cfg.EditorRoles)
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}, cfg.RetryBackoff)
	assert.Equal(t, 7, cfg.BufferDays)
	assert.Equal(t, cfg.S3Endpoint, cfg.S3PublicEndpoint)
	assert.True(t, cfg.IsDev())
}

func TestFileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hostboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":9090"
gateway_mode: http
platform_base_url: https://platform.example.com/
kafka_brokers:
  - k1:9092
  - k2:9092
buffer_days: 3
`), 0o600))

	src, err := newSource(path)
	require.NoError(t, err)
	src.lookupE = func(k string) (string, bool) {
		if k == "HTTP_ADDR" {
			return ":7070", true
		}
		return "", false
	}

	cfg, err := load(src)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.Equal(t, "http", cfg.GatewayMode)
	assert.Equal(t, "https://platform.example.com", cfg.PlatformBaseURL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 3, cfg.BufferDays)
}

func TestInvalidValues(t *testing.T) {
	_, err := load(envSource(map[string]string{"UNBLOCK_SETTLE_DELAY": "soon", "BUFFER_DAYS": "x"}, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNBLOCK_SETTLE_DELAY")
	assert.Contains(t, err.Error(), "BUFFER_DAYS")

	_, err = load(envSource(map[string]string{"GATEWAY_MODE": "http"}, nil))
	assert.ErrorContains(t, err, "PLATFORM_BASE_URL")

	_, err = load(envSource(map[string]string{"PLATFORM_TOPIC": "platform.changes"}, nil))
	assert.ErrorContains(t, err, "KAFKA_BROKERS")
}

func TestNestedFileSectionsRejected(t *testing.T) {
	_, err := parseFile([]byte("s3:\n  bucket: x\n"))
	assert.Error(t, err)
}
