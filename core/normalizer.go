package core

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

// Normalize maps a raw handler outcome onto an Envelope. Precedence, first
// match wins:
//
//  1. a provider error body, as a *ProviderError anywhere in an error chain or
//     as a response.data.error map
//  2. any other error, keeping its message
//  3. a success map that carries a top-level "error" object
//  4. anything else, returned verbatim as Success data
//
// Envelopes pass through unchanged, so Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw any) Envelope {
	switch typed := raw.(type) {
	case Envelope:
		return typed
	case *Envelope:
		if typed == nil {
			return Success(nil)
		}
		return *typed
	case error:
		return normalizeError(typed)
	case map[string]any:
		return normalizeMap(typed)
	}
	return Success(raw)
}

// NormalizeResult folds the (value, error) pair returned by a handler.
func NormalizeResult(value any, err error) Envelope {
	if err != nil {
		return Normalize(err)
	}
	return Normalize(value)
}

func normalizeError(err error) Envelope {
	if err == nil {
		return Success(nil)
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) && providerErr != nil {
		return providerFailure(providerErr)
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr != nil {
		return Fail(kindFromRichError(richErr), richErr.Message, richErrorDetails(richErr))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Fail(KindTransient, err.Error(), nil)
	}
	return Fail(KindUnknown, err.Error(), nil)
}

func normalizeMap(raw map[string]any) Envelope {
	if providerErr, ok := providerErrorFromMap(raw); ok {
		return providerFailure(providerErr)
	}
	if embedded, ok := raw["error"].(map[string]any); ok {
		providerErr := errorObjectToProviderError(embedded)
		details := providerErr.Details()
		if details == nil {
			details = embedded
		}
		return Fail(providerErr.Kind(), providerErr.message(), details)
	}
	return Success(raw)
}

func providerFailure(err *ProviderError) Envelope {
	return Fail(err.Kind(), err.message(), err.Details())
}

func richErrorDetails(err *goerrors.Error) any {
	if err == nil || len(err.Metadata) == 0 {
		return nil
	}
	return err.Metadata["details"]
}
