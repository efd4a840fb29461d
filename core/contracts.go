package core

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// CredentialProvider is the slice of the lifecycle manager the dispatcher
// depends on.
type CredentialProvider interface {
	EnsureValid(ctx context.Context) (Credential, error)
}

// CredentialRefresher forces a refresh regardless of freshness.
type CredentialRefresher interface {
	Refresh(ctx context.Context) (Credential, error)
}

// CredentialStateReader exposes the token-free credential view.
type CredentialStateReader interface {
	State() CredentialState
}
