package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the credguard library.
// All Record methods are safe to call on a nil receiver, so optional
// wiring does not need call-site checks.
type Metrics struct {
	// HTTP Layer Metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Rate Limiting Metrics
	RateLimitChecked  metric.Int64Counter
	RateLimitExceeded metric.Int64Counter

	// Storage Metrics
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram

	// Encryption Metrics
	EncryptionOperationsTotal metric.Int64Counter
	EncryptionDuration        metric.Float64Histogram
	DecryptFailures           metric.Int64Counter
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	var err error
	m.HTTPRequestsTotal, err = inst.httpMeter.Int64Counter(
		"credguard.http.requests.total",
		metric.WithDescription("Total number of rate-limited HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.requests.total counter: %w", err)
	}

	m.HTTPRequestDuration, err = inst.httpMeter.Float64Histogram(
		"credguard.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.request.duration histogram: %w", err)
	}

	m.RateLimitChecked, err = inst.securityMeter.Int64Counter(
		"credguard.ratelimit.checked",
		metric.WithDescription("Number of rate-limit checks performed"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit.checked counter: %w", err)
	}

	m.RateLimitExceeded, err = inst.securityMeter.Int64Counter(
		"credguard.ratelimit.exceeded",
		metric.WithDescription("Number of requests rejected by the rate limiter"),
		metric.WithUnit("{rejection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit.exceeded counter: %w", err)
	}

	m.StorageOperationTotal, err = inst.storageMeter.Int64Counter(
		"credguard.storage.operation.total",
		metric.WithDescription("Total number of counter-store operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.total counter: %w", err)
	}

	m.StorageOperationDuration, err = inst.storageMeter.Float64Histogram(
		"credguard.storage.operation.duration",
		metric.WithDescription("Counter-store operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	m.EncryptionOperationsTotal, err = inst.securityMeter.Int64Counter(
		"credguard.encryption.operations.total",
		metric.WithDescription("Total number of cipher operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryption.operations.total counter: %w", err)
	}

	m.EncryptionDuration, err = inst.securityMeter.Float64Histogram(
		"credguard.encryption.duration",
		metric.WithDescription("Cipher operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryption.duration histogram: %w", err)
	}

	m.DecryptFailures, err = inst.securityMeter.Int64Counter(
		"credguard.encryption.decrypt.failures",
		metric.WithDescription("Number of credential fields that failed to decrypt"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryption.decrypt.failures counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with its duration
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.endpoint", endpoint),
		attribute.Int("http.status_code", statusCode),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, durationMs, attrs)
}

// RecordRateLimitCheck records the outcome of a rate-limit check
func (m *Metrics) RecordRateLimitCheck(ctx context.Context, limited bool) {
	if m == nil {
		return
	}
	m.RateLimitChecked.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool(AttrRateLimited, limited),
	))
	if limited {
		m.RateLimitExceeded.Add(ctx, 1)
	}
}

// RecordStorageOperation records a counter-store operation with its duration
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrStorageOperation, operation),
		attribute.String(AttrStorageResult, result),
	)
	m.StorageOperationTotal.Add(ctx, 1, attrs)
	m.StorageOperationDuration.Record(ctx, durationMs, attrs)
}

// RecordEncryptionOperation records a cipher operation with its duration
func (m *Metrics) RecordEncryptionOperation(ctx context.Context, operation string, durationMs float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrCipherOperation, operation),
	)
	m.EncryptionOperationsTotal.Add(ctx, 1, attrs)
	m.EncryptionDuration.Record(ctx, durationMs, attrs)
}

// RecordDecryptFailure records a field-level decrypt failure
func (m *Metrics) RecordDecryptFailure(ctx context.Context, field string) {
	if m == nil {
		return
	}
	m.DecryptFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrCredentialField, field),
	))
}
