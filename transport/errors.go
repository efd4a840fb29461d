package transport

import (
	"net/http"

	"github.com/goliatone/go-drive-gateway/core"
	goerrors "github.com/goliatone/go-errors"
)

// networkFailure covers everything between sending the request and holding
// the full response body. Retries treat it as Transient.
func networkFailure(source error, message string, metadata map[string]any) error {
	err := core.WrapKindError(source, core.KindTransient, message)
	if len(metadata) > 0 {
		err.WithMetadata(withAdapter(metadata))
	}
	return err
}

// internalFailure is a request the gateway itself built wrong.
func internalFailure(source error, message string, metadata map[string]any) error {
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, goerrors.CategoryInternal)
	} else {
		err = goerrors.Wrap(source, goerrors.CategoryInternal, message)
	}
	err = err.WithCode(http.StatusInternalServerError).WithTextCode(core.GatewayErrorInternal)
	err.WithMetadata(withAdapter(metadata))
	return err
}

func withAdapter(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata)+1)
	for key, value := range metadata {
		out[key] = value
	}
	out["adapter"] = KindJSON
	return out
}
