package webhooks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/stripeapp-backend/pkg/errors"
	"github.com/angelmondragon/stripeapp-backend/pkg/logger"
	"github.com/angelmondragon/stripeapp-backend/pkg/metrics"
)

const defaultHandlerTimeout = 10 * time.Second

// State is the terminal state a delivery reached in the pipeline.
type State string

const (
	StateAcknowledged State = "acknowledged"
	StateIgnored      State = "ignored"
	StateDuplicate    State = "duplicate"
	StateRejected     State = "rejected"
	StateInProgress   State = "in_progress"
	StateRetryable    State = "retryable"
	StateFatal        State = "fatal"
	StateUnavailable  State = "unavailable"
)

// Result summarizes one Process call.
type Result struct {
	State   State
	EventID string
	Type    string
	Kind    EventKind
}

// PipelineParams wires a provider's pipeline.
type PipelineParams struct {
	Provider       string
	Verifier       Verifier
	Claims         ClaimStore
	Handlers       Handlers
	HandlerTimeout time.Duration
	Logger         *logger.Logger
	Metrics        *metrics.WebhookMetrics
	Now            func() time.Time
}

// Pipeline verifies, claims and dispatches deliveries for one provider.
// Each Process call is independent; the claim store is the only point of
// coordination between concurrent deliveries.
type Pipeline struct {
	provider       string
	verifier       Verifier
	claims         ClaimStore
	handlers       Handlers
	handlerTimeout time.Duration
	logg           *logger.Logger
	metrics        *metrics.WebhookMetrics
	now            func() time.Time
}

func NewPipeline(params PipelineParams) (*Pipeline, error) {
	provider := strings.ToLower(strings.TrimSpace(params.Provider))
	if provider == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider is required")
	}
	if params.Verifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "verifier is required")
	}
	if params.Claims == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "claim store is required")
	}
	timeout := params.HandlerTimeout
	if timeout <= 0 {
		timeout = defaultHandlerTimeout
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Pipeline{
		provider:       provider,
		verifier:       params.Verifier,
		claims:         params.Claims,
		handlers:       params.Handlers,
		handlerTimeout: timeout,
		logg:           logg,
		metrics:        params.Metrics,
		now:            now,
	}, nil
}

func (p *Pipeline) Provider() string { return p.provider }

// Process runs one delivery through Received -> Verified -> Claimed ->
// Dispatched -> Acknowledged. A nil error means the caller should answer 200;
// otherwise the error's code selects the status.
func (p *Pipeline) Process(ctx context.Context, body []byte, header http.Header) (Result, error) {
	event, err := p.verifier.Verify(body, header, p.now())
	if err != nil {
		p.metrics.IncDelivery(p.provider, string(StateRejected))
		p.logg.Warn(p.logg.WithFields(ctx, map[string]any{"provider": p.provider, "reason": err.Error()}), "webhook rejected")
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeInvalidSignature, err, "signature verification failed")
		}
		return Result{State: StateRejected}, err
	}

	result := Result{EventID: event.ID(), Type: event.Type(), Kind: event.Kind()}
	ctx = p.logg.WithEvent(ctx, p.provider, event.ID(), event.Type())

	handler := p.handlers.For(event.Kind())
	if handler == nil {
		p.metrics.IncDelivery(p.provider, string(StateIgnored))
		p.logg.Info(ctx, "webhook event type not handled; acknowledging")
		result.State = StateIgnored
		return result, nil
	}

	claim := Claim{Provider: p.provider, EventID: event.ID(), EventType: event.Type(), ClaimedAt: p.now()}
	outcome, err := p.claims.TryClaim(ctx, claim)
	if err != nil {
		p.metrics.IncDelivery(p.provider, string(StateUnavailable))
		p.logg.Error(ctx, "webhook claim failed", err)
		result.State = StateUnavailable
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delivery store unavailable")
	}

	switch outcome {
	case AlreadySucceeded:
		p.metrics.IncDelivery(p.provider, string(StateDuplicate))
		p.logg.Info(ctx, "webhook already processed; ignoring redelivery")
		result.State = StateDuplicate
		return result, nil
	case InProgressElsewhere:
		p.metrics.IncDelivery(p.provider, string(StateInProgress))
		p.logg.Info(ctx, "webhook claimed by another delivery")
		result.State = StateInProgress
		return result, pkgerrors.New(pkgerrors.CodeEventInProgress, "event is being processed by another delivery")
	case Claimed:
	default:
		result.State = StateUnavailable
		return result, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("unexpected claim outcome %d", outcome))
	}

	handlerErr := p.dispatch(ctx, handler, event)

	// Record transitions must land even if the client has gone away.
	persistCtx := context.WithoutCancel(ctx)

	if handlerErr == nil {
		if err := p.claims.MarkSucceeded(persistCtx, claim); err != nil {
			p.logTransitionError(ctx, "failed to mark webhook delivery succeeded", err)
		}
		p.metrics.IncDelivery(p.provider, string(StateAcknowledged))
		p.logg.Info(ctx, "webhook processed")
		result.State = StateAcknowledged
		return result, nil
	}

	severity := SeverityOf(handlerErr)
	failure := Failure{Reason: handlerErr.Error(), Fatal: severity == SeverityFatal}
	if err := p.claims.MarkFailed(persistCtx, claim, failure); err != nil {
		p.logTransitionError(ctx, "failed to mark webhook delivery failed", err)
	}
	p.metrics.IncHandlerFailure(p.provider, event.Kind().String(), string(severity))

	code := pkgerrors.CodeHandlerRetryable
	result.State = StateRetryable
	if severity == SeverityFatal {
		code = pkgerrors.CodeHandlerFatal
		result.State = StateFatal
		p.logg.Error(p.logg.WithField(ctx, "operator_followup", true), "webhook handler failed permanently", handlerErr)
	} else {
		p.logg.Warn(p.logg.WithField(ctx, "reason", handlerErr.Error()), "webhook handler failed; awaiting redelivery")
	}
	p.metrics.IncDelivery(p.provider, string(result.State))
	return result, pkgerrors.Wrap(code, handlerErr, "webhook handler failed")
}

func (p *Pipeline) logTransitionError(ctx context.Context, msg string, err error) {
	if errors.Is(err, ErrClaimLost) {
		p.logg.Warn(p.logg.WithField(ctx, "reason", err.Error()), "webhook claim was taken over; outcome not recorded")
		return
	}
	p.logg.Error(ctx, msg, err)
}

// dispatch runs the handler under its own deadline, detached from the
// caller's cancellation. A handler that outlives the deadline is abandoned
// and the delivery reported Retryable; anything it commits afterwards is
// re-applied idempotently on redelivery.
func (p *Pipeline) dispatch(ctx context.Context, handler Handler, event *VerifiedEvent) error {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.handlerTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		p.metrics.ObserveHandler(p.provider, event.Kind().String(), time.Since(start))
	}()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Fatal(fmt.Errorf("handler panic: %v", r))
			}
		}()
		done <- handler.Handle(hctx, event)
	}()

	select {
	case err := <-done:
		return p.classifyDeadline(hctx, err)
	case <-hctx.Done():
	}
	select {
	case err := <-done:
		return p.classifyDeadline(hctx, err)
	default:
	}
	p.logg.Warn(ctx, "webhook handler exceeded its deadline; abandoning")
	return Retryable(fmt.Errorf("handler timed out after %s", p.handlerTimeout))
}

func (p *Pipeline) classifyDeadline(hctx context.Context, err error) error {
	if err != nil && errors.Is(hctx.Err(), context.DeadlineExceeded) && SeverityOf(err) != SeverityFatal {
		return Retryable(fmt.Errorf("handler timed out after %s: %w", p.handlerTimeout, err))
	}
	return err
}
