// Package dispatch runs one operation against the imaging service with
// bounded retry and linear backoff, then reconciles the result into the
// session.
//
// A dispatch resolves its filenames once, signals "processing" once, and
// retries the identical request until it succeeds or the attempt budget is
// spent. Before attempt n (n >= 1) it waits n × RetryStep. Only the terminal
// outcome is reported to the user.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/scanprep/internal/failure"
	"github.com/fpang/scanprep/internal/feedback"
	"github.com/fpang/scanprep/internal/metrics"
	"github.com/fpang/scanprep/internal/operation"
	"github.com/fpang/scanprep/internal/reconcile"
	"github.com/fpang/scanprep/internal/remote"
	"github.com/fpang/scanprep/internal/session"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryStep   = time.Second
)

// Service is the subset of the imaging API a dispatch calls.
type Service interface {
	Process(ctx context.Context, processType string, filenames []string) ([]string, error)
	Augment(ctx context.Context, augmentType string, filenames []string) ([]string, error)
	Detect(ctx context.Context, filenames []string) ([]remote.DetectionResult, error)
}

// Feedback receives the terminal status of a dispatch.
type Feedback interface {
	Signal(feedback.Tag)
	Notify(message string)
}

// Dispatcher runs operations for one session.
type Dispatcher struct {
	session    *session.Session
	service    Service
	feedback   Feedback
	reconciler *reconcile.Reconciler
	guard      *Guard

	maxAttempts int
	retryStep   time.Duration
	sleep       Sleeper
	metrics     io.Writer
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithMaxAttempts overrides the attempt budget (defaults to 3). Values below
// one are ignored.
func WithMaxAttempts(attempts int) Option {
	return func(d *Dispatcher) {
		if attempts >= 1 {
			d.maxAttempts = attempts
		}
	}
}

// WithRetryStep overrides the backoff step (defaults to 1s).
func WithRetryStep(step time.Duration) Option {
	return func(d *Dispatcher) {
		if step >= 0 {
			d.retryStep = step
		}
	}
}

// WithSleeper overrides how backoff waits are performed (useful for tests).
func WithSleeper(sleeper Sleeper) Option {
	return func(d *Dispatcher) {
		if sleeper != nil {
			d.sleep = sleeper
		}
	}
}

// WithGuard shares a single-flight guard with other components.
func WithGuard(g *Guard) Option {
	return func(d *Dispatcher) {
		if g != nil {
			d.guard = g
		}
	}
}

// WithMetrics writes one EMF record per dispatch to w.
func WithMetrics(w io.Writer) Option {
	return func(d *Dispatcher) {
		d.metrics = w
	}
}

// New creates a Dispatcher committing into s.
func New(s *session.Session, svc Service, fb Feedback, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		session:     s,
		service:     svc,
		feedback:    fb,
		reconciler:  reconcile.New(s),
		guard:       &Guard{},
		maxAttempts: DefaultMaxAttempts,
		retryStep:   DefaultRetryStep,
		sleep:       Sleep,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Guard returns the dispatcher's single-flight guard.
func (d *Dispatcher) Guard() *Guard {
	return d.guard
}

// Dispatch runs req to a terminal outcome. It returns ErrBusy without side
// effects if another command holds the guard.
func (d *Dispatcher) Dispatch(ctx context.Context, req operation.Request) (*reconcile.Outcome, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("unknown operation %q", req.Kind)
	}
	if !d.guard.TryAcquire() {
		log.Warn().Str("kind", string(req.Kind)).Msg("Dispatch rejected, another command is in flight")
		return nil, ErrBusy
	}
	defer d.guard.Release()

	if !d.session.HasOriginals() {
		err := failure.NoImagesUploaded(string(req.Kind))
		d.feedback.Notify(err.Message)
		d.feedback.Signal(feedback.Error)
		return nil, err
	}

	// Chaining kinds forget the previous derived set before resolving. Resolve
	// never reads Current for these kinds; if that changes, resolve first.
	if req.Kind.Chaining() {
		d.session.BeginChaining(req.Kind)
	}
	filenames := d.session.Resolve(req.Kind)

	log.Info().
		Str("kind", string(req.Kind)).
		Str("type", req.WireType()).
		Strs("filenames", filenames).
		Int("maxAttempts", d.maxAttempts).
		Msg("Dispatch started")
	d.feedback.Signal(feedback.Processing)

	startTime := time.Now()
	attempts := 0
	var lastErr error
	for attempt := 0; attempt < d.maxAttempts; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * d.retryStep
			log.Debug().Str("kind", string(req.Kind)).Int("attempt", attempt).Dur("wait", wait).Msg("Backing off before retry")
			if err := d.sleep(ctx, wait); err != nil {
				lastErr = err
				break
			}
		}

		attempts++
		out, err := d.attempt(ctx, req, filenames)
		if err == nil {
			d.record(req, "success", attempts, time.Since(startTime))
			log.Info().
				Str("kind", string(req.Kind)).
				Int("attempts", attempts).
				Dur("duration", time.Since(startTime)).
				Msg("Dispatch succeeded")
			d.feedback.Signal(feedback.Success)
			if msg := out.Message(); msg != "" {
				d.feedback.Notify(msg)
			}
			return out, nil
		}

		lastErr = err
		log.Warn().Err(err).Str("kind", string(req.Kind)).Int("attempt", attempt).Msg("Dispatch attempt failed")
		if ctx.Err() != nil {
			break
		}
	}

	fe := failure.Retag(string(req.Kind), lastErr)
	d.record(req, "error", attempts, time.Since(startTime))
	log.Error().
		Err(fe).
		Str("kind", string(req.Kind)).
		Int("attempts", attempts).
		Msg("Dispatch failed")
	d.feedback.Notify(fmt.Sprintf("Failed to perform %s: %s", req.Kind.Label(), fe.Message))
	d.feedback.Signal(feedback.Error)
	return nil, fe
}

func (d *Dispatcher) attempt(ctx context.Context, req operation.Request, filenames []string) (*reconcile.Outcome, error) {
	switch req.Kind {
	case operation.Detect:
		results, err := d.service.Detect(ctx, filenames)
		if err != nil {
			return nil, err
		}
		return d.reconciler.Detection(results), nil
	case operation.Augmentation:
		urls, err := d.service.Augment(ctx, req.WireType(), filenames)
		if err != nil {
			return nil, err
		}
		return d.reconciler.Images(req.Kind, urls), nil
	default:
		urls, err := d.service.Process(ctx, req.WireType(), filenames)
		if err != nil {
			return nil, err
		}
		return d.reconciler.Images(req.Kind, urls), nil
	}
}

func (d *Dispatcher) record(req operation.Request, result string, attempts int, elapsed time.Duration) {
	if d.metrics == nil {
		return
	}
	metrics.New(d.metrics, metrics.Namespace).
		Dimension("Operation", string(req.Kind)).
		Dimension("Result", result).
		Count("Dispatches").
		Metric("Attempts", float64(attempts), metrics.UnitCount).
		Metric("DispatchMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Property("type", req.WireType()).
		Property("sessionId", d.session.ID).
		Flush()
}
