package observability

import (
	"strings"

	"github.com/smallbiznis/bizdash/internal/config"
)

// Config is the observability view of the service configuration.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	StoreDriver string

	LogLevel            string
	LogFormat           string
	LogSampleInitial    int
	LogSampleThereafter int

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "bizdash"
	}
	telemetry := cfg.Telemetry

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		StoreDriver:          cfg.StoreDriver,
		LogLevel:             telemetry.LogLevel,
		LogFormat:            telemetry.LogFormat,
		LogSampleInitial:     telemetry.LogSampleInitial,
		LogSampleThereafter:  telemetry.LogSampleThereafter,
		OtelEnabled:          telemetry.OtelEnabled,
		OtelExporterEndpoint: telemetry.OtlpEndpoint,
		OtelExporterProtocol: telemetry.OtlpProtocol,
		OtelSamplingRatio:    telemetry.TraceSampleRatio,
	}
}

// Debug reports whether verbose logging and gin debug mode apply: an explicit
// debug level, or a local or test environment.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
