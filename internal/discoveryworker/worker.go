package discoveryworker

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"lldsync/core-go/internal/lld"
	"lldsync/core-go/internal/sqlcgen"
)

// Queries is the minimal DB interface the discovery worker needs.
//
// *sqlcgen.Queries satisfies this.
type Queries interface {
	ClaimNextLLDValue(ctx context.Context) (sqlcgen.LLDValue, error)
	CompleteLLDValue(ctx context.Context, arg sqlcgen.CompleteLLDValueParams) error
}

// Processor reconciles one discovery value. *lld.Engine satisfies this.
type Processor interface {
	ProcessDiscoveryRule(ctx context.Context, ruleID int64, payload string, ts time.Time) (lld.Result, error)
}

const (
	valueProcessed = "processed"
	valueFailed    = "failed"
)

// Worker drains queued discovery values one at a time, so runs for the same
// rule never overlap within a worker.
type Worker struct {
	log          zerolog.Logger
	q            Queries
	engine       Processor
	pollInterval time.Duration
	maxRuntime   time.Duration
}

type Options struct {
	PollInterval time.Duration
	MaxRuntime   time.Duration
}

func New(log zerolog.Logger, q Queries, engine Processor, opts Options) *Worker {
	pi := opts.PollInterval
	if pi <= 0 {
		pi = 400 * time.Millisecond
	}
	mr := opts.MaxRuntime
	if mr <= 0 {
		mr = 30 * time.Second
	}

	return &Worker{
		log:          log,
		q:            q,
		engine:       engine,
		pollInterval: pi,
		maxRuntime:   mr,
	}
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.q == nil || w.engine == nil {
		return
	}

	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()

	var consecutiveFailures int
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		for {
			processed, err := w.runOnce(ctx)
			if err != nil {
				consecutiveFailures++
				break
			}
			consecutiveFailures = 0
			if !processed {
				break
			}
		}

		timer.Reset(backoffDuration(w.pollInterval, consecutiveFailures))
	}
}

func backoffDuration(base time.Duration, failures int) time.Duration {
	if base <= 0 {
		base = 400 * time.Millisecond
	}
	if failures <= 0 {
		return base
	}

	// Exponential-ish backoff: base * 2^failures, capped.
	if failures > 6 {
		failures = 6
	}
	d := base * time.Duration(1<<failures)
	if d > 10*time.Second {
		return 10 * time.Second
	}
	return d
}

// runOnce claims and processes a single value. It reports whether a value was
// claimed; the error is non-nil only for infrastructure failures.
func (w *Worker) runOnce(ctx context.Context) (bool, error) {
	value, err := w.q.ClaimNextLLDValue(ctx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		w.log.Error().Err(err).Msg("discovery worker failed to claim next value")
		return false, err
	}

	log := w.log.With().Str("value_id", value.ID).Int64("rule_id", value.ItemID).Logger()
	log.Debug().Msg("discovery value claimed")

	execCtx, cancel := context.WithTimeout(ctx, w.maxRuntime)
	defer cancel()

	res, err := w.engine.ProcessDiscoveryRule(execCtx, value.ItemID, value.Value, time.Unix(value.Clock, int64(value.NS)))
	if err != nil {
		// A rejected payload or a deleted rule is the value's fault; anything
		// else also backs the worker off.
		infra := !errors.Is(err, lld.ErrInvalidPayload) && !errors.Is(err, pgx.ErrNoRows)
		if infra {
			log.Error().Err(err).Str("run_id", res.RunID).Msg("discovery value failed")
		} else {
			log.Warn().Err(err).Str("run_id", res.RunID).Msg("discovery value rejected")
		}
		if cerr := w.complete(ctx, value.ID, valueFailed, err.Error()); cerr != nil {
			return true, cerr
		}
		if infra {
			return true, err
		}
		return true, nil
	}

	return true, w.complete(ctx, value.ID, valueProcessed, res.Error)
}

// complete records the outcome of a value. Rejection text from a successful
// run is kept as last_error.
func (w *Worker) complete(ctx context.Context, id, status, msg string) error {
	// Still mark the value when the worker is shutting down, so it is not
	// left "running".
	if ctx.Err() != nil {
		bg, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		ctx = bg
	}

	var lastErr *string
	if msg != "" {
		lastErr = &msg
	}
	if err := w.q.CompleteLLDValue(ctx, sqlcgen.CompleteLLDValueParams{
		ID:        id,
		Status:    status,
		LastError: lastErr,
	}); err != nil {
		w.log.Error().Err(err).Str("value_id", id).Msg("failed to complete discovery value")
		return err
	}
	return nil
}
