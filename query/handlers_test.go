package query

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-drive-gateway/core"
	goerrors "github.com/goliatone/go-errors"
)

type stubCatalog []core.OperationSummary

func (s stubCatalog) Summaries() []core.OperationSummary { return s }

type stubStateReader core.CredentialState

func (s stubStateReader) State() core.CredentialState { return core.CredentialState(s) }

func TestListOperationsQuery_ReturnsCatalog(t *testing.T) {
	catalog := stubCatalog{
		{Name: "drive_about_get"},
		{Name: "drive_permissions_list", SupportsPagination: true},
		{Name: "drive_permissions_get"},
	}
	all, err := NewListOperationsQuery(catalog).Query(context.Background(), ListOperationsMessage{})
	if err != nil || len(all) != 3 {
		t.Fatalf("expected full catalog, got %d (%v)", len(all), err)
	}
	permissions, err := NewListOperationsQuery(catalog).Query(context.Background(), ListOperationsMessage{Prefix: "drive_permissions_"})
	if err != nil || len(permissions) != 2 {
		t.Fatalf("expected two permission operations, got %#v (%v)", permissions, err)
	}
}

func TestCredentialStateQuery_ReturnsState(t *testing.T) {
	expires := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reader := stubStateReader{HasRefreshToken: true, ExpiresAt: &expires, NeedsRefresh: true}
	state, err := NewCredentialStateQuery(reader).Query(context.Background(), CredentialStateMessage{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !state.HasRefreshToken || !state.NeedsRefresh || !state.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected state %#v", state)
	}
}

func TestQueries_NilDependenciesReturnRichError(t *testing.T) {
	_, listErr := NewListOperationsQuery(nil).Query(context.Background(), ListOperationsMessage{})
	_, stateErr := NewCredentialStateQuery(nil).Query(context.Background(), CredentialStateMessage{})
	for _, err := range []error{listErr, stateErr} {
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) || rich.TextCode != core.GatewayErrorInternal {
			t.Fatalf("expected internal rich error, got %v", err)
		}
	}
}
