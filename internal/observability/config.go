package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/mealsub/internal/config"
)

// Config groups what the logger, tracer and meter providers need to know.
type Config struct {
	Service ServiceInfo
	Log     LogConfig
	Otel    OtelConfig
}

type ServiceInfo struct {
	Name        string
	Environment string
	Version     string
}

type LogConfig struct {
	Level  string
	Format string
}

// OtelConfig drives both OTLP exporters. Protocol is "grpc" or "http".
type OtelConfig struct {
	Enabled     bool
	Endpoint    string
	Protocol    string
	SampleRatio float64
}

// LoadConfig starts from the application config and lets the standard
// OTEL_* and LOG_* variables override it.
func LoadConfig(cfg config.Config) Config {
	out := Config{
		Service: ServiceInfo{
			Name:        firstNonEmpty(cfg.AppName, "mealsub"),
			Environment: firstNonEmpty(os.Getenv("DEPLOYMENT_ENV"), cfg.Environment),
			Version:     firstNonEmpty(os.Getenv("SERVICE_VERSION"), cfg.AppVersion),
		},
		Log: LogConfig{
			Level:  strings.ToLower(firstNonEmpty(os.Getenv("LOG_LEVEL"), "info")),
			Format: strings.ToLower(firstNonEmpty(os.Getenv("LOG_FORMAT"), "json")),
		},
		Otel: OtelConfig{
			Enabled:  envFlag("OTEL_ENABLED"),
			Endpoint: firstNonEmpty(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), cfg.OTLPEndpoint),
			Protocol: strings.ToLower(firstNonEmpty(
				os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL"),
				os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL"),
				"grpc",
			)),
			SampleRatio: 0.1,
		},
	}

	if raw := strings.TrimSpace(os.Getenv("OTEL_SAMPLING_RATIO")); raw != "" {
		if ratio, err := strconv.ParseFloat(raw, 64); err == nil && ratio >= 0 && ratio <= 1 {
			out.Otel.SampleRatio = ratio
		}
	}
	return out
}

// Debug is true for LOG_LEVEL=debug and for non-production environments
// such as local or test.
func (c Config) Debug() bool {
	if c.Log.Level == "debug" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Service.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func envFlag(key string) bool {
	on, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && on
}
