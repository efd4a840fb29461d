package command

import (
	"strings"

	"github.com/goliatone/go-drive-gateway/core"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TypeInvokeOperation   = "gateway.command.operation.invoke"
	TypeRefreshCredential = "gateway.command.credential.refresh"
)

// InvokeOperationMessage carries one inbound call. Argument validation is
// left to the dispatcher so failures still surface as envelopes.
type InvokeOperationMessage struct {
	Call core.InboundCall
}

func (InvokeOperationMessage) Type() string { return TypeInvokeOperation }

func (m InvokeOperationMessage) Validate() error {
	if strings.TrimSpace(m.Call.OperationName) == "" {
		return goerrors.NewValidation("command: invalid invoke message", goerrors.FieldError{
			Field:   "operationName",
			Message: "operation name is required",
		}).
			WithCode(core.KindInvalidArgument.HTTPStatus()).
			WithTextCode(core.KindInvalidArgument.TextCode())
	}
	return nil
}

type RefreshCredentialMessage struct {
	Reason string
}

func (RefreshCredentialMessage) Type() string { return TypeRefreshCredential }

func (RefreshCredentialMessage) Validate() error { return nil }
