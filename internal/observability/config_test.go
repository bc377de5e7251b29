package observability

import (
	"testing"

	"github.com/smallbiznis/bizdash/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigUsesServiceConfig(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppVersion:  "1.4.0",
		Environment: "production",
		StoreDriver: config.StoreDriverRedis,
		Telemetry: config.TelemetryConfig{
			LogLevel:         "warn",
			LogFormat:        "console",
			OtelEnabled:      true,
			OtlpEndpoint:     "collector:4317",
			OtlpProtocol:     "grpc",
			TraceSampleRatio: 0.25,
		},
	})

	assert.Equal(t, "bizdash", cfg.ServiceName)
	assert.Equal(t, "1.4.0", cfg.Version)
	assert.Equal(t, config.StoreDriverRedis, cfg.StoreDriver)
	assert.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)
	assert.Equal(t, 0.25, cfg.OtelSamplingRatio)
	assert.False(t, cfg.Debug())

	assert.Equal(t, "redis", tracingConfig(cfg).StoreDriver)
	assert.Equal(t, "redis", loggerConfig(cfg).StoreDriver)
}

func TestDebugFollowsLevelAndEnvironment(t *testing.T) {
	assert.True(t, Config{LogLevel: "DEBUG", Environment: "production"}.Debug())
	assert.True(t, Config{Environment: "local"}.Debug())
	assert.False(t, Config{Environment: "staging"}.Debug())
}
