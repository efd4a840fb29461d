package query

import (
	"context"
	"strings"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-drive-gateway/core"
)

type CatalogReader interface {
	Summaries() []core.OperationSummary
}

type ListOperationsQuery struct {
	catalog CatalogReader
}

func NewListOperationsQuery(catalog CatalogReader) *ListOperationsQuery {
	return &ListOperationsQuery{catalog: catalog}
}

func (q *ListOperationsQuery) Query(_ context.Context, msg ListOperationsMessage) ([]core.OperationSummary, error) {
	if q == nil || q.catalog == nil {
		return nil, core.NewInternalError("query: operation catalog is required")
	}
	summaries := q.catalog.Summaries()
	prefix := strings.TrimSpace(msg.Prefix)
	if prefix == "" {
		return summaries, nil
	}
	filtered := make([]core.OperationSummary, 0, len(summaries))
	for _, summary := range summaries {
		if strings.HasPrefix(summary.Name, prefix) {
			filtered = append(filtered, summary)
		}
	}
	return filtered, nil
}

type CredentialStateQuery struct {
	reader core.CredentialStateReader
}

func NewCredentialStateQuery(reader core.CredentialStateReader) *CredentialStateQuery {
	return &CredentialStateQuery{reader: reader}
}

func (q *CredentialStateQuery) Query(_ context.Context, _ CredentialStateMessage) (core.CredentialState, error) {
	if q == nil || q.reader == nil {
		return core.CredentialState{}, core.NewInternalError("query: credential state reader is required")
	}
	return q.reader.State(), nil
}

var (
	_ gocmd.Querier[ListOperationsMessage, []core.OperationSummary] = (*ListOperationsQuery)(nil)
	_ gocmd.Querier[CredentialStateMessage, core.CredentialState]    = (*CredentialStateQuery)(nil)
)
