package metrics

import (
	"fmt"
	"strings"
)

// Provider names a metric exporter.
type Provider string

const (
	PrometheusProvider Provider = "prometheus"
	OTLPProvider       Provider = "otlp"
)

// ProviderCfg configures one exporter. Endpoint and Insecure only apply to OTLP.
type ProviderCfg struct {
	Provider Provider
	Endpoint string
	Insecure bool
}

// Config is what NewMetricProvider builds from its options.
type Config struct {
	ServiceName string
	Providers   []ProviderCfg
}

type OptionFn func(config Config) Config

// PrometheusConfig exposes the meter provider through the default registry.
func PrometheusConfig() ProviderCfg {
	return ProviderCfg{Provider: PrometheusProvider}
}

// OTLPConfig pushes metrics to a collector over gRPC. A plain http:// URL
// disables TLS.
func OTLPConfig(endpoint string) ProviderCfg {
	return ProviderCfg{
		Provider: OTLPProvider,
		Endpoint: endpoint,
		Insecure: strings.HasPrefix(endpoint, "http://"),
	}
}

// ParseExporters turns configured exporter names into provider configs.
// Names are case-insensitive; duplicates are collapsed.
func ParseExporters(names []string, otlpEndpoint string) ([]ProviderCfg, error) {
	seen := make(map[Provider]bool, len(names))
	out := make([]ProviderCfg, 0, len(names))
	for _, raw := range names {
		p := Provider(strings.ToLower(strings.TrimSpace(raw)))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true

		switch p {
		case PrometheusProvider:
			out = append(out, PrometheusConfig())
		case OTLPProvider:
			if otlpEndpoint == "" {
				return nil, fmt.Errorf("metric exporter %q needs an otlp endpoint", p)
			}
			out = append(out, OTLPConfig(otlpEndpoint))
		default:
			return nil, fmt.Errorf("unknown metric exporter %q", raw)
		}
	}
	return out, nil
}

// HasPrometheus reports whether a /metrics endpoint should be served.
func HasPrometheus(cfgs []ProviderCfg) bool {
	for _, c := range cfgs {
		if c.Provider == PrometheusProvider {
			return true
		}
	}
	return false
}

func WithProviderConfig(providers ...ProviderCfg) OptionFn {
	return func(config Config) Config {
		config.Providers = append(config.Providers, providers...)
		return config
	}
}

func WithServiceName(serviceName string) OptionFn {
	return func(config Config) Config {
		config.ServiceName = serviceName
		return config
	}
}

const defaultPromPort = 9090

type PromServerConfig struct {
	port int
}

type PromOptionFn func(config PromServerConfig) PromServerConfig

// WithPort sets the /metrics listen port. Zero keeps the default.
func WithPort(port int) PromOptionFn {
	return func(config PromServerConfig) PromServerConfig {
		if port > 0 {
			config.port = port
		}
		return config
	}
}
