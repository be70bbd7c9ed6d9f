// Package httpclient provides the instrumented HTTP client JSON-RPC
// connections are dialed with.
package httpclient

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
)

type options struct {
	meterProvider  metric.MeterProvider
	endpoint       string
	roundTripper   http.RoundTripper
	requestTimeout time.Duration
	headers        map[string]string
}

// ClientOption configures New.
type ClientOption func(*options)

func newOptions(opts ...ClientOption) *options {
	o := &options{endpoint: "default", requestTimeout: defaultRequestTimeout}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) ClientOption {
	return func(o *options) { o.meterProvider = mp }
}

// WithEndpointName labels requests, e.g. "l1" or "l2".
func WithEndpointName(name string) ClientOption {
	return func(o *options) {
		if name != "" {
			o.endpoint = name
		}
	}
}

// WithRoundTripper replaces the base transport.
func WithRoundTripper(rt http.RoundTripper) ClientOption {
	return func(o *options) { o.roundTripper = rt }
}

// WithRequestTimeout bounds each JSON-RPC round trip. Zero keeps the default.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(o *options) {
		if d > 0 {
			o.requestTimeout = d
		}
	}
}

// WithHeaders adds headers to every request, e.g. an RPC provider key.
func WithHeaders(headers map[string]string) ClientOption {
	return func(o *options) { o.headers = headers }
}
