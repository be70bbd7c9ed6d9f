package app

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	tracerName = "github.com/fd1az/blockviz/business/blocks/app"
	meterName  = "github.com/fd1az/blockviz/business/blocks/app"
)

// appMetrics holds OTEL metric instruments shared by the store and the feed.
type appMetrics struct {
	blocksIngested     metric.Int64Counter
	duplicateBlocks    metric.Int64Counter
	navigationDuration metric.Float64Histogram
	navigationErrors   metric.Int64Counter
	pollErrors         metric.Int64Counter
	enrichmentFailures metric.Int64Counter
	feedMode           metric.Int64Gauge
}

func newAppMetrics() (*appMetrics, error) {
	meter := otel.Meter(meterName)
	m := &appMetrics{}
	var err error

	m.blocksIngested, err = meter.Int64Counter(
		"blockviz_blocks_ingested_total",
		metric.WithDescription("Blocks accepted into the window"),
	)
	if err != nil {
		return nil, fmt.Errorf("create blocks_ingested counter: %w", err)
	}

	m.duplicateBlocks, err = meter.Int64Counter(
		"blockviz_duplicate_blocks_total",
		metric.WithDescription("Blocks dropped because they were already stored"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duplicate_blocks counter: %w", err)
	}

	m.navigationDuration, err = meter.Float64Histogram(
		"blockviz_navigation_duration_ms",
		metric.WithDescription("Time to complete a navigation"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create navigation_duration histogram: %w", err)
	}

	m.navigationErrors, err = meter.Int64Counter(
		"blockviz_navigation_errors_total",
		metric.WithDescription("Failed or superseded navigations"),
	)
	if err != nil {
		return nil, fmt.Errorf("create navigation_errors counter: %w", err)
	}

	m.pollErrors, err = meter.Int64Counter(
		"blockviz_poll_errors_total",
		metric.WithDescription("Failed polling ticks"),
	)
	if err != nil {
		return nil, fmt.Errorf("create poll_errors counter: %w", err)
	}

	m.enrichmentFailures, err = meter.Int64Counter(
		"blockviz_enrichment_failures_total",
		metric.WithDescription("L1 origin lookups that failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("create enrichment_failures counter: %w", err)
	}

	m.feedMode, err = meter.Int64Gauge(
		"blockviz_feed_mode",
		metric.WithDescription("Feed mode (0=idle, 1=subscribed, 2=polling, 3=stopped)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create feed_mode gauge: %w", err)
	}

	return m, nil
}
