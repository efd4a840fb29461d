package core

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// ErrorKind is the closed failure taxonomy carried by every Failure envelope.
type ErrorKind string

const (
	KindAuthError        ErrorKind = "AuthError"
	KindInvalidArgument  ErrorKind = "InvalidArgument"
	KindUnknownOperation ErrorKind = "UnknownOperation"
	KindNotFound         ErrorKind = "NotFound"
	KindRateLimited      ErrorKind = "RateLimited"
	KindTransient        ErrorKind = "Transient"
	KindUnknown          ErrorKind = "Unknown"
)

const (
	GatewayErrorAuth             = "GATEWAY_AUTH_ERROR"
	GatewayErrorInvalidArgument  = "GATEWAY_INVALID_ARGUMENT"
	GatewayErrorUnknownOperation = "GATEWAY_UNKNOWN_OPERATION"
	GatewayErrorNotFound         = "GATEWAY_NOT_FOUND"
	GatewayErrorRateLimited      = "GATEWAY_RATE_LIMITED"
	GatewayErrorTransient        = "GATEWAY_TRANSIENT"
	GatewayErrorUnknown          = "GATEWAY_UNKNOWN"
	GatewayErrorInternal         = "GATEWAY_INTERNAL_ERROR"
)

var ErrCredentialNotFound = errors.New("core: credential not found")

// Retryable reports whether a failure of this kind may be retried for
// idempotent operations.
func (k ErrorKind) Retryable() bool {
	return k == KindTransient || k == KindRateLimited
}

func (k ErrorKind) Valid() bool {
	switch k {
	case KindAuthError, KindInvalidArgument, KindUnknownOperation, KindNotFound,
		KindRateLimited, KindTransient, KindUnknown:
		return true
	default:
		return false
	}
}

func (k ErrorKind) Category() goerrors.Category {
	switch k {
	case KindAuthError:
		return goerrors.CategoryAuth
	case KindInvalidArgument:
		return goerrors.CategoryValidation
	case KindUnknownOperation, KindNotFound:
		return goerrors.CategoryNotFound
	case KindRateLimited:
		return goerrors.CategoryRateLimit
	case KindTransient:
		return goerrors.CategoryExternal
	default:
		return goerrors.CategoryInternal
	}
}

func (k ErrorKind) TextCode() string {
	switch k {
	case KindAuthError:
		return GatewayErrorAuth
	case KindInvalidArgument:
		return GatewayErrorInvalidArgument
	case KindUnknownOperation:
		return GatewayErrorUnknownOperation
	case KindNotFound:
		return GatewayErrorNotFound
	case KindRateLimited:
		return GatewayErrorRateLimited
	case KindTransient:
		return GatewayErrorTransient
	default:
		return GatewayErrorUnknown
	}
}

func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindAuthError:
		return http.StatusUnauthorized
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindUnknownOperation, KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewKindError builds a rich error tagged with the category, status and text
// code of kind.
func NewKindError(kind ErrorKind, message string) *goerrors.Error {
	return goerrors.New(message, kind.Category()).
		WithCode(kind.HTTPStatus()).
		WithTextCode(kind.TextCode())
}

// WrapKindError wraps source with the category, status and text code of kind.
func WrapKindError(source error, kind ErrorKind, message string) *goerrors.Error {
	if source == nil {
		return NewKindError(kind, message)
	}
	return goerrors.Wrap(source, kind.Category(), message).
		WithCode(kind.HTTPStatus()).
		WithTextCode(kind.TextCode())
}

// KindOf resolves the failure kind of err. Errors that carry no kind
// information resolve to KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Kind()
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return kindFromRichError(richErr)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindUnknown
}

// metaCauseKind records the kind of a failure that was rewrapped under a
// different kind, e.g. a Transient token endpoint error behind AuthError.
const metaCauseKind = "cause_kind"

// CauseKind resolves the kind of the failure underneath err. It differs from
// KindOf only for errors that recorded a cause kind, such as credential
// refresh failures.
func CauseKind(err error) ErrorKind {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr != nil {
		if raw, ok := richErr.Metadata[metaCauseKind].(string); ok && ErrorKind(raw).Valid() {
			return ErrorKind(raw)
		}
	}
	return KindOf(err)
}

func kindFromRichError(err *goerrors.Error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	switch strings.TrimSpace(err.TextCode) {
	case GatewayErrorAuth:
		return KindAuthError
	case GatewayErrorInvalidArgument:
		return KindInvalidArgument
	case GatewayErrorUnknownOperation:
		return KindUnknownOperation
	case GatewayErrorNotFound:
		return KindNotFound
	case GatewayErrorRateLimited:
		return KindRateLimited
	case GatewayErrorTransient:
		return KindTransient
	case GatewayErrorUnknown:
		return KindUnknown
	}
	switch err.Category {
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return KindAuthError
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return KindInvalidArgument
	case goerrors.CategoryNotFound:
		return KindNotFound
	case goerrors.CategoryRateLimit:
		return KindRateLimited
	case goerrors.CategoryExternal:
		return KindTransient
	default:
		return KindUnknown
	}
}

// gatewayErrorMapper converts any error into a go-errors value with a
// gateway text code.
func gatewayErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureGatewayError(richErr)
	}
	kind := KindOf(err)
	if kind != KindUnknown {
		return WrapKindError(err, kind, err.Error())
	}
	return ensureGatewayError(goerrors.MapToError(err, goerrors.DefaultErrorMappers()))
}

func ensureGatewayError(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	kind := kindFromRichError(err)
	if err.Code == 0 {
		err.Code = kind.HTTPStatus()
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = kind.TextCode()
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

// NewInternalError marks a wiring or programming fault. It never maps to a
// retryable kind.
func NewInternalError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(GatewayErrorInternal)
}
