// Package gojob runs proactive credential refreshes on go-job queues.
package gojob

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-drive-gateway/core"
	glog "github.com/goliatone/go-logger/glog"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDRefresh = "gateway.credential.refresh"

	DedupDrop = job.DeduplicationPolicy("drop")

	paramExpiresAt = "expires_at_ms"
	paramReason    = "reason"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		BaseDelay:       time.Second,
		MaxDelay:        time.Minute,
		DeadLetterOnMax: true,
	}
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	if delay <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

// RefreshMessage builds the execution message for one refresh. Messages for
// the same expiry share an idempotency key so repeated scheduling collapses.
func RefreshMessage(state core.CredentialState, reason string) *job.ExecutionMessage {
	expiresAt := int64(0)
	if state.ExpiresAt != nil {
		expiresAt = state.ExpiresAt.UnixMilli()
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "proactive"
	}
	return &job.ExecutionMessage{
		JobID:      JobIDRefresh,
		ScriptPath: JobIDRefresh,
		Parameters: map[string]any{
			paramExpiresAt: expiresAt,
			paramReason:    reason,
		},
		IdempotencyKey: JobIDRefresh + ":" + strconv.FormatInt(expiresAt, 10),
		DedupPolicy:    DedupDrop,
	}
}

type RefreshScheduler struct {
	enqueuer queue.Enqueuer
	state    core.CredentialStateReader
}

func NewRefreshScheduler(enqueuer queue.Enqueuer, state core.CredentialStateReader) *RefreshScheduler {
	return &RefreshScheduler{enqueuer: enqueuer, state: state}
}

// Schedule enqueues a refresh for the current credential expiry.
func (s *RefreshScheduler) Schedule(ctx context.Context) error {
	if s == nil || s.enqueuer == nil || s.state == nil {
		return fmt.Errorf("gojob: refresh scheduler is not configured")
	}
	state := s.state.State()
	if !state.HasRefreshToken {
		return core.NewKindError(core.KindAuthError, "gojob: no refresh token available to schedule")
	}
	return s.enqueuer.Enqueue(ctx, RefreshMessage(state, "proactive"))
}

type RefreshJob struct {
	refresher core.CredentialRefresher
	policy    RetryPolicy
	logger    glog.Logger
}

type JobOption func(*RefreshJob)

func WithRetryPolicy(policy RetryPolicy) JobOption {
	return func(j *RefreshJob) {
		j.policy = policy
	}
}

func WithLogger(logger glog.Logger) JobOption {
	return func(j *RefreshJob) {
		_, j.logger = glog.Resolve("gateway.gojob", nil, logger)
	}
}

func NewRefreshJob(refresher core.CredentialRefresher, opts ...JobOption) *RefreshJob {
	_, logger := glog.Resolve("gateway.gojob", nil, nil)
	refreshJob := &RefreshJob{refresher: refresher, policy: DefaultRetryPolicy(), logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(refreshJob)
		}
	}
	return refreshJob
}

// Handle forces a refresh for delivery. Auth failures go straight to the
// dead letter queue; retryable failures are requeued with backoff.
func (j *RefreshJob) Handle(ctx context.Context, delivery queue.Delivery, attempt int) error {
	if j == nil || j.refresher == nil {
		return fmt.Errorf("gojob: refresh job is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	msg := delivery.Message()
	if msg == nil || strings.TrimSpace(msg.JobID) != JobIDRefresh {
		jobID := ""
		if msg != nil {
			jobID = msg.JobID
		}
		return delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: "unexpected job id " + jobID})
	}

	_, err := j.refresher.Refresh(ctx)
	if err == nil {
		j.logger.Info("credential refresh job succeeded", "attempt", attempt, "idempotency_key", msg.IdempotencyKey)
		return delivery.Ack(ctx)
	}

	kind := core.CauseKind(err)
	opts := queue.NackOptions{Reason: string(kind) + ": " + err.Error()}
	if kind.Retryable() {
		opts.Requeue = true
		opts.Delay = j.policy.backoff(attempt)
	} else {
		opts.DeadLetter = true
	}
	opts = j.policy.NormalizeAttempt(opts, attempt)
	j.logger.Error("credential refresh job failed",
		"attempt", attempt,
		"error_kind", string(kind),
		"requeue", opts.Requeue,
		"dead_letter", opts.DeadLetter,
		"error", err.Error(),
	)
	if nackErr := delivery.Nack(ctx, opts); nackErr != nil {
		return fmt.Errorf("gojob: nack refresh delivery: %w", nackErr)
	}
	return err
}

// Consume dequeues a single delivery and handles it.
func (j *RefreshJob) Consume(ctx context.Context, dequeuer queue.Dequeuer, attempt int) error {
	if dequeuer == nil {
		return fmt.Errorf("gojob: dequeuer is required")
	}
	delivery, err := dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	return j.Handle(ctx, delivery, attempt)
}

// WorkerHookAdapter logs go-job worker lifecycle events for refresh jobs.
type WorkerHookAdapter struct {
	logger glog.Logger
}

func NewWorkerHookAdapter(logger glog.Logger) *WorkerHookAdapter {
	_, resolved := glog.Resolve("gateway.gojob", nil, logger)
	return &WorkerHookAdapter{logger: resolved}
}

func (a *WorkerHookAdapter) OnStart(context.Context, worker.Event) {}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	if a == nil || a.logger == nil {
		return
	}
	a.logger.WithContext(ctx).Info("worker job succeeded", eventArgs(event)...)
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	if a == nil || a.logger == nil {
		return
	}
	a.logger.WithContext(ctx).Error("worker job failed", eventArgs(event)...)
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	if a == nil || a.logger == nil {
		return
	}
	a.logger.WithContext(ctx).Error("worker job failed, retrying", eventArgs(event)...)
}

func eventArgs(event worker.Event) []any {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	args := []any{"attempt", event.Attempt, "duration_ms", event.Duration.Milliseconds()}
	if message != nil {
		args = append(args, "job_id", message.JobID, "idempotency_key", message.IdempotencyKey)
	}
	if event.Delay > 0 {
		args = append(args, "delay_ms", event.Delay.Milliseconds())
	}
	if event.Err != nil {
		args = append(args, "error", event.Err.Error())
	}
	return args
}

var _ worker.Hook = (*WorkerHookAdapter)(nil)
