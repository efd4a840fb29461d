package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// InboundCall is the wire shape of a request from the caller.
type InboundCall struct {
	ID            string `json:"id,omitempty"`
	OperationName string `json:"operationName"`
	Arguments     Args   `json:"arguments,omitempty"`
}

type DispatcherOption func(*Dispatcher)

func WithRetryPolicy(policy RetryPolicy) DispatcherOption {
	return func(d *Dispatcher) {
		d.retry = policy
	}
}

func WithScopeEnforcement(enabled bool) DispatcherOption {
	return func(d *Dispatcher) {
		d.enforceScopes = enabled
	}
}

func WithRequestIDGenerator(next func() string) DispatcherOption {
	return func(d *Dispatcher) {
		if next != nil {
			d.requestID = next
		}
	}
}

func WithDispatcherLogger(logger Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithDispatcherLoggerProvider(provider LoggerProvider) DispatcherOption {
	return func(d *Dispatcher) {
		d.loggerProvider = provider
	}
}

func WithDispatcherMetrics(recorder MetricsRecorder) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = recorder
	}
}

// Dispatcher routes inbound calls through the registry. Every call returns an
// Envelope; nothing is thrown past Dispatch.
type Dispatcher struct {
	registry      *Registry
	credentials   CredentialProvider
	retry         RetryPolicy
	enforceScopes bool
	requestID     func() string

	logger         Logger
	loggerProvider LoggerProvider
	metrics        MetricsRecorder
	obs            observer
}

func NewDispatcher(registry *Registry, credentials CredentialProvider, opts ...DispatcherOption) (*Dispatcher, error) {
	if registry == nil {
		return nil, fmt.Errorf("core: operation registry is required")
	}
	if credentials == nil {
		return nil, fmt.Errorf("core: credential provider is required")
	}
	d := &Dispatcher{
		registry:      registry,
		credentials:   credentials,
		retry:         DefaultRetryPolicy(),
		enforceScopes: true,
		requestID:     uuid.NewString,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(d)
	}
	d.retry = d.retry.normalized()
	d.obs = newObserver("gateway.dispatcher", d.loggerProvider, d.logger, d.metrics)
	return d, nil
}

func (d *Dispatcher) Registry() *Registry {
	if d == nil {
		return nil
	}
	return d.registry
}

func (d *Dispatcher) Invoke(ctx context.Context, call InboundCall) Envelope {
	return d.Dispatch(ctx, call.OperationName, call.Arguments)
}

func (d *Dispatcher) Dispatch(ctx context.Context, name string, args Args) Envelope {
	if d == nil || d.registry == nil || d.credentials == nil {
		return Fail(KindUnknown, "dispatcher is not configured", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := time.Now()
	fields := map[string]any{
		"request_id": d.requestID(),
		"operation":  "unregistered",
	}
	if _, ok := d.registry.Lookup(name); ok {
		fields["operation"] = name
	} else {
		fields["requested_operation"] = name
	}

	envelope, attempts := d.dispatch(ctx, name, args)

	fields["attempts"] = attempts
	status := "success"
	if !envelope.IsSuccess() {
		status = "failure"
		fields["error_kind"] = string(envelope.Kind())
	}
	d.obs.observe(ctx, startedAt, "dispatch", status, envelope.Err(), fields)
	return envelope
}

func (d *Dispatcher) dispatch(ctx context.Context, name string, args Args) (Envelope, int) {
	descriptor, ok := d.registry.Lookup(name)
	if !ok {
		return Fail(KindUnknownOperation, fmt.Sprintf("unknown operation %q", name), nil), 0
	}
	if args == nil {
		args = Args{}
	}
	if err := descriptor.Contract.Validate(args); err != nil {
		return invalidArgument(err), 0
	}

	credential, err := d.credentials.EnsureValid(ctx)
	if err != nil {
		return Fail(KindAuthError, errorMessage(err), nil), 0
	}
	if failure, denied := d.checkScopes(descriptor, credential); denied {
		return failure, 0
	}

	policy := d.retry
	if !descriptor.Idempotent {
		policy.MaxAttempts = 1
	}
	for attempt := 1; ; attempt++ {
		raw, callErr := invokeHandler(ctx, descriptor, Call{
			Operation:  descriptor.Name,
			Args:       args.Clone(),
			Credential: credential,
		})
		envelope := NormalizeResult(raw, callErr)
		if envelope.IsSuccess() || !envelope.Kind().Retryable() || attempt >= policy.MaxAttempts {
			return envelope, attempt
		}
		if err := policy.sleep(ctx, policy.delay(attempt, retryAfterOf(callErr))); err != nil {
			return envelope, attempt
		}
		credential, err = d.credentials.EnsureValid(ctx)
		if err != nil {
			return Fail(KindAuthError, errorMessage(err), nil), attempt
		}
	}
}

// checkScopes only applies when the credential reports its granted scopes;
// any one of the descriptor's scopes is sufficient.
func (d *Dispatcher) checkScopes(descriptor OperationDescriptor, credential Credential) (Envelope, bool) {
	if !d.enforceScopes || len(descriptor.RequiredScopes) == 0 || len(credential.Scopes) == 0 {
		return Envelope{}, false
	}
	for _, scope := range descriptor.RequiredScopes {
		if credential.HasScope(scope) {
			return Envelope{}, false
		}
	}
	return Fail(KindAuthError, "credential lacks a required scope", map[string]any{
		"requiredScopes": append([]string(nil), descriptor.RequiredScopes...),
	}), true
}

func invokeHandler(ctx context.Context, descriptor OperationDescriptor, call Call) (result any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = nil
			err = fmt.Errorf("operation %q failed: %v", descriptor.Name, recovered)
		}
	}()
	return descriptor.Handler(ctx, call)
}

func invalidArgument(err error) Envelope {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr != nil {
		return Fail(KindInvalidArgument, richErr.Message, richErrorDetails(richErr))
	}
	return Fail(KindInvalidArgument, err.Error(), nil)
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr != nil && strings.TrimSpace(richErr.Message) != "" {
		return richErr.Message
	}
	return err.Error()
}
