package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes the entitlement and usage sync instruments.
type Metrics struct {
	usageMutations metric.Int64Counter
	storeFailures  metric.Int64Counter
	droppedWrites  metric.Int64Counter
	staleWrites    metric.Int64Counter
	loadFallbacks  metric.Int64Counter
	writeLatency   metric.Float64Histogram
	rateLimits     metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "bizdash"
	}
	meter := provider.Meter(name)

	usageMutations, err := meter.Int64Counter("bizdash_usage_mutations_total",
		metric.WithDescription("Local usage counter and plan mutations by kind."))
	if err != nil {
		return nil, err
	}
	storeFailures, err := meter.Int64Counter("bizdash_store_failures_total",
		metric.WithDescription("Failed usage store calls by operation."))
	if err != nil {
		return nil, err
	}
	droppedWrites, err := meter.Int64Counter("bizdash_sync_dropped_writes_total",
		metric.WithDescription("Writes abandoned after exhausting retries; local and persisted state diverge."))
	if err != nil {
		return nil, err
	}
	staleWrites, err := meter.Int64Counter("bizdash_sync_stale_writes_total",
		metric.WithDescription("Writes rejected by the store because a newer version was already persisted."))
	if err != nil {
		return nil, err
	}
	loadFallbacks, err := meter.Int64Counter("bizdash_state_load_fallbacks_total",
		metric.WithDescription("Account state loads that fell back to defaults."))
	if err != nil {
		return nil, err
	}
	writeLatency, err := meter.Float64Histogram("bizdash_sync_write_duration_seconds",
		metric.WithDescription("Latency of persisted writes including retries."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	rateLimits, err := meter.Int64Counter("bizdash_rate_limit_decisions_total",
		metric.WithDescription("Mutation rate limit decisions by route and outcome."))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		usageMutations: usageMutations,
		storeFailures:  storeFailures,
		droppedWrites:  droppedWrites,
		staleWrites:    staleWrites,
		loadFallbacks:  loadFallbacks,
		writeLatency:   writeLatency,
		rateLimits:     rateLimits,
	}, nil
}

// Noop returns instruments backed by a no-op provider.
func Noop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

// RecordUsageMutation counts a local mutation of the given kind.
func (m *Metrics) RecordUsageMutation(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("kind", strings.TrimSpace(kind)))
	m.usageMutations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordStoreFailure counts a failed store call.
func (m *Metrics) RecordStoreFailure(ctx context.Context, operation, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.storeFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDroppedWrite counts a write given up after its final attempt.
func (m *Metrics) RecordDroppedWrite(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("kind", strings.TrimSpace(kind)))
	m.droppedWrites.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordStaleWrite counts a write the store rejected as stale.
func (m *Metrics) RecordStaleWrite(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("kind", strings.TrimSpace(kind)))
	m.staleWrites.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLoadFallback counts a state load that used defaults.
func (m *Metrics) RecordLoadFallback(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.loadFallbacks.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// ObserveWrite records how long a write took to settle.
func (m *Metrics) ObserveWrite(ctx context.Context, kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("kind", strings.TrimSpace(kind)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.writeLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

// RecordRateLimit counts an allowed or denied mutation.
func (m *Metrics) RecordRateLimit(ctx context.Context, route, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("route", strings.TrimSpace(route)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.rateLimits.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// account_id is never a metric label.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"kind":        {},
	"operation":   {},
	"reason":      {},
	"outcome":     {},
	"plan":        {},
	"route":       {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
