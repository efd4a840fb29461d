package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-drive-gateway/core"
)

type Invoker interface {
	Invoke(ctx context.Context, call core.InboundCall) core.Envelope
}

// InvokeOperationCommand never fails for operation errors; they are stored
// as failure envelopes in the result collector.
type InvokeOperationCommand struct {
	invoker Invoker
}

func NewInvokeOperationCommand(invoker Invoker) *InvokeOperationCommand {
	return &InvokeOperationCommand{invoker: invoker}
}

func (c *InvokeOperationCommand) Execute(ctx context.Context, msg InvokeOperationMessage) error {
	if c == nil || c.invoker == nil {
		return core.NewInternalError("command: operation invoker is required")
	}
	storeResult(ctx, c.invoker.Invoke(ctx, msg.Call))
	return nil
}

type RefreshCredentialCommand struct {
	refresher core.CredentialRefresher
	state     core.CredentialStateReader
}

// NewRefreshCredentialCommand stores the post-refresh CredentialState when
// refresher also implements core.CredentialStateReader.
func NewRefreshCredentialCommand(refresher core.CredentialRefresher) *RefreshCredentialCommand {
	cmd := &RefreshCredentialCommand{refresher: refresher}
	if reader, ok := refresher.(core.CredentialStateReader); ok {
		cmd.state = reader
	}
	return cmd
}

func (c *RefreshCredentialCommand) Execute(ctx context.Context, _ RefreshCredentialMessage) error {
	if c == nil || c.refresher == nil {
		return core.NewInternalError("command: credential refresher is required")
	}
	if _, err := c.refresher.Refresh(ctx); err != nil {
		return err
	}
	if c.state != nil {
		storeResult(ctx, c.state.State())
	}
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}

var (
	_ gocmd.Commander[InvokeOperationMessage]   = (*InvokeOperationCommand)(nil)
	_ gocmd.Commander[RefreshCredentialMessage] = (*RefreshCredentialCommand)(nil)
)
