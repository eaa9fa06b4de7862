// Package metrics reports retriever and batch activity to a pluggable backend.
package metrics

import (
	"fmt"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// Metric names emitted by dynaquery.
const (
	Pages         = "dynaquery.pages"
	Items         = "dynaquery.items"
	PageLatencyMS = "dynaquery.page_latency_ms"
	BatchRequests = "dynaquery.batch.requests"
)

// Provider is the contract metric backends implement.
type Provider interface {
	Count(name string, value float64, tags []string) error
	Gauge(name string, value float64, tags []string) error
	Histogram(name string, value float64, tags []string) error
}

// Config selects and configures the backend.
type Config struct {
	Datadog DatadogConfig `yaml:"datadog"`
}

// DatadogConfig configures the statsd client.
type DatadogConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr" validate:"required_if=Enabled true"`
	Namespace string `yaml:"namespace"`
}

// NoopProvider discards every metric.
type NoopProvider struct{}

func (n *NoopProvider) Count(name string, value float64, tags []string) error     { return nil }
func (n *NoopProvider) Gauge(name string, value float64, tags []string) error     { return nil }
func (n *NoopProvider) Histogram(name string, value float64, tags []string) error { return nil }

// DatadogProvider sends metrics through a DogStatsD client.
type DatadogProvider struct {
	client statsd.ClientInterface
}

// NewDatadogProvider wraps an existing statsd client.
func NewDatadogProvider(client statsd.ClientInterface) *DatadogProvider {
	return &DatadogProvider{client: client}
}

func (d *DatadogProvider) Count(name string, value float64, tags []string) error {
	return d.client.Count(name, int64(value), tags, 1)
}

func (d *DatadogProvider) Gauge(name string, value float64, tags []string) error {
	return d.client.Gauge(name, value, tags, 1)
}

func (d *DatadogProvider) Histogram(name string, value float64, tags []string) error {
	return d.client.Histogram(name, value, tags, 1)
}

// Close flushes and closes the underlying client.
func (d *DatadogProvider) Close() error {
	return d.client.Close()
}

// Setup builds the provider described by cfg.
func Setup(cfg Config) (Provider, error) {
	if !cfg.Datadog.Enabled {
		return &NoopProvider{}, nil
	}

	opts := []statsd.Option{
		statsd.WithNamespace(cfg.Datadog.Namespace),
	}

	client, err := statsd.New(cfg.Datadog.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to datadog statsd: %w", err)
	}

	return &DatadogProvider{client: client}, nil
}
