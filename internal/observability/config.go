package observability

import (
	"cvedge/internal/config"
)

// Resolve fills the values observability needs but configuration may omit
func Resolve(cfg config.ObservabilityConfig, version string) config.ObservabilityConfig {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "cvedge"
	}
	// Use app version if service version not specified
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = version
	}
	if cfg.ServiceInstance == "" {
		cfg.ServiceInstance = cfg.ServiceName + "-1"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 1.0
	}
	if cfg.Prometheus.Endpoint == "" {
		cfg.Prometheus.Endpoint = "/metrics"
	}
	if cfg.Prometheus.Port == "" {
		cfg.Prometheus.Port = "9090"
	}
	return cfg
}
