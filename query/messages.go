package query

const (
	TypeListOperations  = "gateway.query.operations.list"
	TypeCredentialState = "gateway.query.credential.state"
)

// ListOperationsMessage optionally narrows the catalog to names with Prefix.
type ListOperationsMessage struct {
	Prefix string
}

func (ListOperationsMessage) Type() string { return TypeListOperations }

func (ListOperationsMessage) Validate() error { return nil }

type CredentialStateMessage struct{}

func (CredentialStateMessage) Type() string { return TypeCredentialState }

func (CredentialStateMessage) Validate() error { return nil }
