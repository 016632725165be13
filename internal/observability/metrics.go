package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/exemplar"

	"github.com/ayesh156/roxeleye-crud/internal/config"
)

const meterName = "github.com/ayesh156/roxeleye-crud"

type AppMetrics struct {
	authRequests        metric.Int64Counter
	authReqDuration     metric.Float64Histogram
	tokenValidations    metric.Int64Counter
	authzDecisions      metric.Int64Counter
	userAdminMutations  metric.Int64Counter
	userListCacheEvents metric.Int64Counter
	itemOperations      metric.Int64Counter
	uploadEvents        metric.Int64Counter
	uploadBytes         metric.Float64Histogram
	uploadDuration      metric.Float64Histogram
	repositoryOps       metric.Int64Counter
	healthCheckResults  metric.Int64Counter
	healthCheckDuration metric.Float64Histogram
	dbStartupEvents     metric.Int64Counter
	dbStartupDuration   metric.Float64Histogram
	toolCommandRuns     metric.Int64Counter
	middlewareEvents    metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	latencyBuckets := sdkmetric.Stream{
		Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
			Boundaries: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	}
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
		sdkmetric.WithExemplarFilter(exemplar.TraceBasedFilter),
		sdkmetric.WithView(
			sdkmetric.NewView(sdkmetric.Instrument{Name: "auth.request.duration"}, latencyBuckets),
			sdkmetric.NewView(sdkmetric.Instrument{Name: "upload.duration"}, latencyBuckets),
		),
	)
	otel.SetMeterProvider(mp)

	if err := UseMeter(mp.Meter(meterName)); err != nil {
		_ = mp.Shutdown(ctx)
		return nil, err
	}
	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint, "interval", cfg.OTELMetricsExportInterval.String())
	return mp, nil
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	m := &AppMetrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
	}{
		{&m.authRequests, "auth.requests"},
		{&m.tokenValidations, "auth.token.validations"},
		{&m.authzDecisions, "authz.decisions"},
		{&m.userAdminMutations, "user.admin.mutations"},
		{&m.userListCacheEvents, "user.list.cache.events"},
		{&m.itemOperations, "item.operations"},
		{&m.uploadEvents, "upload.events"},
		{&m.repositoryOps, "repository.operations"},
		{&m.healthCheckResults, "health.check.results"},
		{&m.dbStartupEvents, "database.startup.events"},
		{&m.toolCommandRuns, "tool.command.runs"},
		{&m.middlewareEvents, "middleware.validation.events"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name)
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		unit string
		desc string
	}{
		{&m.authReqDuration, "auth.request.duration", "s", "Duration of auth endpoint requests in seconds"},
		{&m.uploadBytes, "upload.bytes", "By", "Size of uploaded images before transcoding"},
		{&m.uploadDuration, "upload.duration", "s", "Time spent validating and transcoding an upload"},
		{&m.healthCheckDuration, "health.check.duration", "s", "Duration of readiness dependency checks"},
		{&m.dbStartupDuration, "database.startup.duration", "s", "Duration of database startup stages"},
	}
	for _, h := range histograms {
		hist, err := meter.Float64Histogram(h.name, metric.WithUnit(h.unit), metric.WithDescription(h.desc))
		if err != nil {
			return nil, fmt.Errorf("create histogram %s: %w", h.name, err)
		}
		*h.dst = hist
	}
	return m, nil
}

// UseMeter points the Record helpers at instruments created from meter.
// A nil meter turns them back into no-ops.
func UseMeter(meter metric.Meter) error {
	var m *AppMetrics
	if meter != nil {
		var err error
		if m, err = newAppMetrics(meter); err != nil {
			return err
		}
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()
	return nil
}

func current() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordAuthRequest(ctx context.Context, operation, outcome string, duration time.Duration) {
	m := current()
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
	m.authRequests.Add(ctx, 1, attrs)
	m.authReqDuration.Record(ctx, duration.Seconds(), attrs)
}

func RecordTokenValidation(ctx context.Context, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.tokenValidations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordAuthzDecision(ctx context.Context, policy, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.authzDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("policy", policy),
		attribute.String("outcome", outcome),
	))
}

func RecordUserAdminMutation(ctx context.Context, action, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.userAdminMutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

func RecordUserListCacheEvent(ctx context.Context, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.userListCacheEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordItemOperation(ctx context.Context, action, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.itemOperations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

func RecordUploadEvent(ctx context.Context, namespace, stage, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.uploadEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("namespace", namespace),
		attribute.String("stage", stage),
		attribute.String("outcome", outcome),
	))
}

func RecordUploadSize(ctx context.Context, namespace string, size int64) {
	m := current()
	if m == nil {
		return
	}
	m.uploadBytes.Record(ctx, float64(size), metric.WithAttributes(attribute.String("namespace", namespace)))
}

func RecordUploadDuration(ctx context.Context, namespace, outcome string, duration time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.uploadDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("namespace", namespace),
		attribute.String("outcome", outcome),
	))
}

func RecordRepositoryOperation(ctx context.Context, entity, operation, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.repositoryOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func RecordHealthCheckResult(ctx context.Context, check, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.healthCheckResults.Add(ctx, 1, metric.WithAttributes(
		attribute.String("check", check),
		attribute.String("outcome", outcome),
	))
}

func RecordHealthCheckDuration(ctx context.Context, check string, duration time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.healthCheckDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("check", check)))
}

func RecordDatabaseStartupEvent(ctx context.Context, stage, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.dbStartupEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("outcome", outcome),
	))
}

func RecordDatabaseStartupDuration(ctx context.Context, stage string, duration time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.dbStartupDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
}

func RecordToolCommandRun(ctx context.Context, tool, command, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.toolCommandRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("command", command),
		attribute.String("outcome", outcome),
	))
}

func RecordMiddlewareValidationEvent(ctx context.Context, middleware, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.middlewareEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("middleware", middleware),
		attribute.String("outcome", outcome),
	))
}
