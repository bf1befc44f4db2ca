// Package dispatch executes outbound jobs: admission through the rate
// limiter, session selection, template construction, bounded retries with
// backoff, and cooperative cancellation between repetitions.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kardosh/multisend/internal/activity"
	"github.com/kardosh/multisend/internal/backoff"
	"github.com/kardosh/multisend/internal/model"
	"github.com/kardosh/multisend/internal/ratelimit"
	"github.com/kardosh/multisend/internal/session"
	"github.com/kardosh/multisend/internal/template"
	"github.com/kardosh/multisend/internal/transport"
)

// DefaultMaxRetries bounds send retries within one repetition.
const DefaultMaxRetries = 3

// Request is one dispatch call.
type Request struct {
	CallerID string          `json:"callerId"`
	Template string          `json:"template"`
	Target   string          `json:"target"`
	Params   template.Params `json:"params"`
	// Count is the number of repetitions, default 1.
	Count int `json:"count"`
	// Delay separates successive repetitions. The HTTP layer converts
	// from milliseconds before building a Request.
	Delay time.Duration `json:"-"`
	// PreferredIdentity selects the sending session when that identity is
	// connected; otherwise any connected session is used.
	PreferredIdentity string `json:"preferredIdentity,omitempty"`
}

// Result is the terminal outcome of a job.
type Result struct {
	JobID    string          `json:"jobId"`
	Status   model.JobStatus `json:"status"`
	Attempts []model.Attempt `json:"attempts"`
	Sent     int             `json:"sent"`
	Failed   int             `json:"failed"`
}

// Engine runs dispatch jobs. Each Dispatch call executes in its caller's
// goroutine; repetitions within a job are strictly sequential.
type Engine struct {
	reg        *session.Registry
	templates  *template.Registry
	limiter    *ratelimit.Limiter
	retryWait  backoff.Strategy
	audit      activity.Logger
	country    string
	maxRetries int

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error

	mu   sync.Mutex
	jobs map[string]*running
}

type running struct {
	mu        sync.Mutex
	job       model.DispatchJob
	cancel    chan struct{}
	cancelled bool
}

func (r *running) requestCancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.cancelled {
		r.cancelled = true
		close(r.cancel)
	}
}

func (r *running) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

func (r *running) record(a model.Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.job.Attempts = append(r.job.Attempts, a)
}

func (r *running) snapshot() model.DispatchJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.job
	j.Attempts = append([]model.Attempt(nil), r.job.Attempts...)
	return j
}

// Options tunes the engine.
type Options struct {
	MaxRetries     int
	RetryWait      backoff.Strategy
	DefaultCountry string
	Audit          activity.Logger
}

func NewEngine(reg *session.Registry, templates *template.Registry, limiter *ratelimit.Limiter, opts Options) *Engine {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryWait == nil {
		opts.RetryWait = backoff.Dispatch()
	}
	if opts.Audit == nil {
		opts.Audit = activity.Nop{}
	}
	return &Engine{
		reg:        reg,
		templates:  templates,
		limiter:    limiter,
		retryWait:  opts.RetryWait,
		audit:      opts.Audit,
		country:    opts.DefaultCountry,
		maxRetries: opts.MaxRetries,
		sleep:      sleepCtx,
		jobs:       make(map[string]*running),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Dispatch validates, admits, and runs one job to its terminal status.
// Validation and rate-limit rejections return before any attempt is made.
func (e *Engine) Dispatch(ctx context.Context, req Request) (*Result, error) {
	if req.Count <= 0 {
		req.Count = 1
	}
	if req.Delay < 0 {
		req.Delay = 0
	}

	build, err := e.templates.Get(req.Template)
	if err != nil {
		return nil, err
	}
	target, err := transport.NormalizeTarget(req.Target, e.country)
	if err != nil {
		return nil, err
	}
	payload, err := build(target, req.Params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrUnknownTemplate, err)
	}

	// Limits are checked before the session lookup so a blocked caller
	// hears about the block first, but the use is recorded only once a
	// session is available: a NoActiveSession rejection must not consume
	// the cooldown window or a quota slot.
	if err := e.limiter.Check(req.CallerID); err != nil {
		return nil, err
	}

	// No connected session at all fails fast, without retries.
	if _, err := e.reg.Pick(req.PreferredIdentity); err != nil {
		return nil, err
	}

	if err := e.limiter.Admit(req.CallerID); err != nil {
		return nil, err
	}

	r := &running{
		job: model.DispatchJob{
			ID:        uuid.NewString(),
			CallerID:  req.CallerID,
			Template:  req.Template,
			Target:    target,
			Identity:  req.PreferredIdentity,
			Count:     req.Count,
			DelayMs:   req.Delay.Milliseconds(),
			Status:    model.JobRunning,
			StartedAt: time.Now().UTC(),
		},
		cancel: make(chan struct{}),
	}
	e.track(r)
	defer e.untrack(r)

	res := e.run(ctx, r, req, target, payload)

	e.audit.Record(ctx, activity.Event{
		Actor:  req.CallerID,
		Action: "dispatch",
		Metadata: map[string]any{
			"jobId":    res.JobID,
			"template": req.Template,
			"target":   target,
			"status":   res.Status,
			"sent":     res.Sent,
			"failed":   res.Failed,
		},
		At: time.Now().UTC(),
	})
	return res, nil
}

func (e *Engine) run(ctx context.Context, r *running, req Request, target string, payload transport.Payload) *Result {
	log := slog.With("job", r.job.ID, "template", req.Template)
	sent, failed := 0, 0
	cancelled := false

repetitions:
	for rep := 1; rep <= req.Count; rep++ {
		// Cancellation is cooperative, observed between repetitions.
		if r.isCancelled() || ctx.Err() != nil {
			cancelled = true
			break
		}

		ok := e.repetition(ctx, r, rep, req.PreferredIdentity, target, payload, log)
		if ok {
			sent++
		} else {
			failed++
		}

		if ok && rep < req.Count && req.Delay > 0 {
			select {
			case <-r.cancel:
				cancelled = true
				break repetitions
			case <-ctx.Done():
				cancelled = true
				break repetitions
			case <-time.After(req.Delay):
			}
		}
	}

	r.mu.Lock()
	switch {
	case cancelled:
		r.job.Status = model.JobCancelled
	case failed == 0:
		r.job.Status = model.JobCompleted
	case sent > 0:
		r.job.Status = model.JobPartiallyCompleted
	default:
		r.job.Status = model.JobFailed
	}
	now := time.Now().UTC()
	r.job.FinishedAt = &now
	job := r.job
	attempts := append([]model.Attempt(nil), r.job.Attempts...)
	r.mu.Unlock()

	log.Info("job finished", "status", job.Status, "sent", sent, "failed", failed, "attempts", len(attempts))
	return &Result{
		JobID:    job.ID,
		Status:   job.Status,
		Attempts: attempts,
		Sent:     sent,
		Failed:   failed,
	}
}

// repetition sends one payload, retrying transient failures with backoff.
// The session is re-borrowed for every attempt: a reconnect may have
// replaced it since the last one.
func (e *Engine) repetition(ctx context.Context, r *running, rep int, preferred, target string, payload transport.Payload, log *slog.Logger) bool {
	for try := 1; try <= e.maxRetries; try++ {
		err := e.attempt(ctx, preferred, target, payload)
		r.record(model.Attempt{
			Repetition: rep,
			Try:        try,
			OK:         err == nil,
			ErrKind:    model.Kind(err),
			At:         time.Now().UTC(),
		})
		if err == nil {
			return true
		}

		log.Warn("send attempt failed", "repetition", rep, "try", try, "err", err)
		if try == e.maxRetries {
			return false
		}
		if e.sleep(ctx, e.retryWait.Delay(try)) != nil {
			return false
		}
	}
	return false
}

func (e *Engine) attempt(ctx context.Context, preferred, target string, payload transport.Payload) error {
	sess, err := e.reg.Pick(preferred)
	if err != nil {
		return err
	}
	_, err = sess.Send(ctx, target, payload)
	return err
}

// Cancel stops a running job at its next repetition boundary. Attempts
// already recorded are preserved.
func (e *Engine) Cancel(jobID string) error {
	e.mu.Lock()
	r, ok := e.jobs[jobID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("dispatch: job %s not running", jobID)
	}
	r.requestCancel()
	return nil
}

// Running returns snapshots of all in-flight jobs.
func (e *Engine) Running() []model.DispatchJob {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.DispatchJob, 0, len(e.jobs))
	for _, r := range e.jobs {
		out = append(out, r.snapshot())
	}
	return out
}

func (e *Engine) track(r *running) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs[r.job.ID] = r
}

func (e *Engine) untrack(r *running) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.jobs, r.job.ID)
}
