// Package gocommand exposes the gateway commands and queries on the
// go-command registry and dispatcher.
package gocommand

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	gatewaycommand "github.com/goliatone/go-drive-gateway/command"
	"github.com/goliatone/go-drive-gateway/core"
	gatewayquery "github.com/goliatone/go-drive-gateway/query"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

var errNoRegistry = errors.New("gocommand: registry is not configured")

// ValidateMessageContract requires a non-empty Type() and runs Validate()
// when the message has one.
func ValidateMessageContract(msg any) error {
	typed, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: %T does not implement Type() string", msg)
	}
	if strings.TrimSpace(typed.Type()) == "" {
		return fmt.Errorf("gocommand: %T has an empty message type", msg)
	}
	return command.ValidateMessage(msg)
}

// RegistryAdapter guards a go-command registry so gateway wiring can run
// against a nil adapter without panicking.
type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) ready() (*command.Registry, error) {
	if a == nil || a.registry == nil {
		return nil, errNoRegistry
	}
	return a.registry, nil
}

func (a *RegistryAdapter) Registry() *command.Registry {
	registry, _ := a.ready()
	return registry
}

// RegisterCommand registers a command or query handler; go-command keeps
// both in the same table.
func (a *RegistryAdapter) RegisterCommand(handler any) error {
	registry, err := a.ready()
	if err != nil {
		return err
	}
	return registry.RegisterCommand(handler)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	registry, err := a.ready()
	if err != nil {
		return err
	}
	return registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors every registered command into a go-job queue
// registry, so the refresh command can also run as a queued job.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	registry, err := a.ready()
	return err == nil && registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	registry, err := a.ready()
	if err != nil {
		return err
	}
	return registry.Initialize()
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

// RegisterAndSubscribe subscribes cmd on the dispatcher and registers it.
// The subscription is dropped again when registration fails.
func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	return bind(adapter, cmd, func() commanddispatcher.Subscription {
		return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	})
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	return bind(adapter, qry, func() commanddispatcher.Subscription {
		return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	})
}

func bind(adapter *RegistryAdapter, handler any, subscribe func() commanddispatcher.Subscription) (commanddispatcher.Subscription, error) {
	if _, err := adapter.ready(); err != nil {
		return nil, err
	}
	subscription := subscribe()
	if err := adapter.RegisterCommand(handler); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// Services are the gateway dependencies behind the four handlers.
type Services struct {
	Invoker     gatewaycommand.Invoker
	Catalog     gatewayquery.CatalogReader
	Credentials interface {
		core.CredentialRefresher
		core.CredentialStateReader
	}
}

// Wiring holds the live subscriptions; Close unsubscribes them all.
type Wiring struct {
	subscriptions []commanddispatcher.Subscription
}

func (w *Wiring) Close() {
	if w == nil {
		return
	}
	for _, subscription := range w.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	w.subscriptions = nil
}

// RegisterGateway registers and subscribes the invoke and refresh commands
// and the catalog and credential state queries.
func RegisterGateway(adapter *RegistryAdapter, services Services, runnerOpts ...runner.Option) (*Wiring, error) {
	if services.Invoker == nil || services.Catalog == nil || services.Credentials == nil {
		return nil, fmt.Errorf("gocommand: invoker, catalog and credentials are required")
	}
	wiring := &Wiring{}
	track := func(subscription commanddispatcher.Subscription, err error) error {
		if err != nil {
			wiring.Close()
			return err
		}
		wiring.subscriptions = append(wiring.subscriptions, subscription)
		return nil
	}

	if err := track(RegisterAndSubscribe[gatewaycommand.InvokeOperationMessage](adapter,
		gatewaycommand.NewInvokeOperationCommand(services.Invoker), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(RegisterAndSubscribe[gatewaycommand.RefreshCredentialMessage](adapter,
		gatewaycommand.NewRefreshCredentialCommand(services.Credentials), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(RegisterAndSubscribeQuery[gatewayquery.ListOperationsMessage, []core.OperationSummary](adapter,
		gatewayquery.NewListOperationsQuery(services.Catalog), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(RegisterAndSubscribeQuery[gatewayquery.CredentialStateMessage, core.CredentialState](adapter,
		gatewayquery.NewCredentialStateQuery(services.Credentials), runnerOpts...)); err != nil {
		return nil, err
	}
	return wiring, nil
}

// Invoke dispatches an inbound call through the command bus and returns the
// collected envelope.
func Invoke(ctx context.Context, call core.InboundCall) (core.Envelope, error) {
	msg := gatewaycommand.InvokeOperationMessage{Call: call}
	if err := ValidateMessageContract(msg); err != nil {
		return core.Envelope{}, err
	}
	collector := command.NewResult[core.Envelope]()
	ctx = command.ContextWithResult(ctx, collector)
	if err := Dispatch(ctx, msg); err != nil {
		return core.Envelope{}, err
	}
	envelope, ok := collector.Load()
	if !ok {
		return core.Envelope{}, fmt.Errorf("gocommand: invoke produced no envelope")
	}
	return envelope, nil
}

func RefreshCredential(ctx context.Context, reason string) (core.CredentialState, error) {
	collector := command.NewResult[core.CredentialState]()
	ctx = command.ContextWithResult(ctx, collector)
	if err := Dispatch(ctx, gatewaycommand.RefreshCredentialMessage{Reason: reason}); err != nil {
		return core.CredentialState{}, err
	}
	state, _ := collector.Load()
	return state, nil
}

func ListOperations(ctx context.Context, prefix string) ([]core.OperationSummary, error) {
	return Query[gatewayquery.ListOperationsMessage, []core.OperationSummary](ctx, gatewayquery.ListOperationsMessage{Prefix: prefix})
}

func CredentialState(ctx context.Context) (core.CredentialState, error) {
	return Query[gatewayquery.CredentialStateMessage, core.CredentialState](ctx, gatewayquery.CredentialStateMessage{})
}
