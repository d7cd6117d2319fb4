package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/DanielPopoola/payment-security-core/internal/application"
	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/DanielPopoola/payment-security-core/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Dispatcher is the single entry point for processor operations. Apart from
// an unknown processor or payment method, every outcome comes back as a
// ProcessorResult. Nothing is retried here; callers own retries and pass the
// same idempotency key when they do.
type Dispatcher struct {
	registry *Registry
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

func NewDispatcher(registry *Registry, metrics *telemetry.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

func (d *Dispatcher) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.ProcessorResult, error) {
	p, err := d.registry.ProcessorFor(req.MethodType)
	if err != nil {
		return nil, err
	}
	if err := validateCreate(req); err != nil {
		return domain.FailedResult(p.Name(), domain.ProcessorErrValidation, err.Error()), nil
	}
	req.Currency = domain.NormalizeCurrency(req.Currency)

	return d.call(ctx, p, domain.OpCreatePayment, func(ctx context.Context) (*domain.ProcessorResult, error) {
		return p.CreatePayment(ctx, req)
	}), nil
}

func (d *Dispatcher) Capture(ctx context.Context, processor string, req domain.CaptureRequest) (*domain.ProcessorResult, error) {
	p, err := d.registry.ProcessorNamed(processor)
	if err != nil {
		return nil, err
	}
	if req.Amount != nil && p.Capabilities().SupportsCapture && !p.Capabilities().SupportsPartialCapture {
		d.metrics.ProcessorCall(p.Name(), domain.OpCapture, "not_supported", 0)
		return domain.FailedResult(p.Name(), domain.ProcessorErrNotSupported,
			p.Name()+" does not support partial capture"), nil
	}
	if req.Amount != nil && !req.Amount.IsPositive() {
		return domain.FailedResult(p.Name(), domain.ProcessorErrValidation, "capture amount must be positive"), nil
	}

	return d.call(ctx, p, domain.OpCapture, func(ctx context.Context) (*domain.ProcessorResult, error) {
		return p.Capture(ctx, req)
	}), nil
}

func (d *Dispatcher) Refund(ctx context.Context, processor string, req domain.RefundRequest) (*domain.ProcessorResult, error) {
	p, err := d.registry.ProcessorNamed(processor)
	if err != nil {
		return nil, err
	}
	if req.Amount != nil && !req.Amount.IsPositive() {
		return domain.FailedResult(p.Name(), domain.ProcessorErrValidation, "refund amount must be positive"), nil
	}

	return d.call(ctx, p, domain.OpRefund, func(ctx context.Context) (*domain.ProcessorResult, error) {
		return p.Refund(ctx, req)
	}), nil
}

func (d *Dispatcher) Void(ctx context.Context, processor string, req domain.VoidRequest) (*domain.ProcessorResult, error) {
	p, err := d.registry.ProcessorNamed(processor)
	if err != nil {
		return nil, err
	}

	return d.call(ctx, p, domain.OpVoid, func(ctx context.Context) (*domain.ProcessorResult, error) {
		return p.Void(ctx, req)
	}), nil
}

func (d *Dispatcher) GetStatus(ctx context.Context, processor, transactionID string) (*domain.ProcessorResult, error) {
	p, err := d.registry.ProcessorNamed(processor)
	if err != nil {
		return nil, err
	}

	return d.call(ctx, p, domain.OpGetStatus, func(ctx context.Context) (*domain.ProcessorResult, error) {
		return p.GetStatus(ctx, transactionID)
	}), nil
}

func (d *Dispatcher) Process3DSecure(ctx context.Context, processor string, req domain.ThreeDSecureRequest) (*domain.ProcessorResult, error) {
	p, err := d.registry.ProcessorNamed(processor)
	if err != nil {
		return nil, err
	}

	return d.call(ctx, p, domain.OpProcess3DSecure, func(ctx context.Context) (*domain.ProcessorResult, error) {
		return p.Process3DSecure(ctx, req)
	}), nil
}

// call checks the capability, runs fn inside a client span and folds any
// error into a failed result.
func (d *Dispatcher) call(
	ctx context.Context,
	p application.Processor,
	op domain.ProcessorOperation,
	fn func(ctx context.Context) (*domain.ProcessorResult, error),
) *domain.ProcessorResult {
	name := p.Name()

	if !p.Capabilities().Supports(op) {
		d.metrics.ProcessorCall(name, op, "not_supported", 0)
		return domain.NotSupportedResult(name, op)
	}

	ctx, span := telemetry.StartClientSpan(ctx, "processor."+string(op),
		attribute.String("processor.name", name),
		attribute.String("processor.operation", string(op)),
	)
	start := d.now()

	result, err := fn(ctx)
	elapsed := d.now().Sub(start)
	telemetry.EndSpan(span, err)

	switch {
	case err != nil:
		d.logger.Error("processor call failed",
			"processor", name,
			"operation", op,
			"error", err,
		)
		result = domain.FailedResult(name, errorCode(err), err.Error())
	case result == nil:
		result = domain.FailedResult(name, domain.ProcessorErrExternalService, "processor returned no result")
	}
	if result.Processor == "" {
		result.Processor = name
	}

	d.metrics.ProcessorCall(name, op, outcome(result), elapsed)
	d.logger.Debug("processor call completed",
		"processor", name,
		"operation", op,
		"success", result.Success,
		"status", result.Status,
		"duration", elapsed,
	)
	return result
}

func errorCode(err error) domain.ProcessorErrorCode {
	var coded domain.CodedError
	switch {
	case errors.As(err, &coded):
		return coded.ProcessorErrorCode()
	case domain.IsErrorCode(err, domain.ErrCodeValidation):
		return domain.ProcessorErrValidation
	case domain.IsErrorCode(err, domain.ErrCodeNotSupported):
		return domain.ProcessorErrNotSupported
	default:
		return domain.ProcessorErrExternalService
	}
}

func outcome(r *domain.ProcessorResult) string {
	switch {
	case r.Success:
		return "success"
	case r.ErrorCode == domain.ProcessorErrNotSupported:
		return "not_supported"
	default:
		return "failure"
	}
}

func validateCreate(req domain.CreatePaymentRequest) error {
	v := &domain.ValidationError{}
	if !req.Amount.IsPositive() {
		v.Add("amount", "must be greater than zero")
	}
	if !domain.ValidCurrency(req.Currency) {
		v.Add("currency", "must be a three-letter ISO 4217 code")
	}
	if req.IdempotencyKey == "" {
		v.Add("idempotency_key", "is required")
	}
	return v.Err()
}
