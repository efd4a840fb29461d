package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Call is what a handler receives: the operation name, validated arguments
// and a credential that is fresh for at least the skew window.
type Call struct {
	Operation  string
	Args       Args
	Credential Credential
}

// Handler returns a raw provider result or error; the dispatcher normalizes
// both.
type Handler func(ctx context.Context, call Call) (any, error)

type OperationDescriptor struct {
	Name               string
	Description        string
	Contract           ArgumentContract
	RequiredScopes     []string
	Idempotent         bool
	SupportsPagination bool
	Handler            Handler
}

// OperationSummary is the handler-free catalog entry.
type OperationSummary struct {
	Name               string         `json:"name"`
	Description        string         `json:"description,omitempty"`
	InputSchema        map[string]any `json:"inputSchema"`
	RequiredScopes     []string       `json:"requiredScopes,omitempty"`
	Idempotent         bool           `json:"idempotent"`
	SupportsPagination bool           `json:"supportsPagination"`
}

func (d OperationDescriptor) Summary() OperationSummary {
	return OperationSummary{
		Name:               d.Name,
		Description:        d.Description,
		InputSchema:        d.Contract.Schema(),
		RequiredScopes:     append([]string(nil), d.RequiredScopes...),
		Idempotent:         d.Idempotent,
		SupportsPagination: d.SupportsPagination,
	}
}

// RegistryBuilder collects descriptors at startup. Build freezes them.
type RegistryBuilder struct {
	mu          sync.Mutex
	descriptors map[string]OperationDescriptor
	built       bool
}

func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{descriptors: map[string]OperationDescriptor{}}
}

func (b *RegistryBuilder) Register(descriptor OperationDescriptor) error {
	if b == nil {
		return fmt.Errorf("core: registry builder is nil")
	}
	name := descriptor.Name
	if strings.TrimSpace(name) == "" || name != strings.TrimSpace(name) {
		return fmt.Errorf("core: operation name %q is invalid", name)
	}
	if descriptor.Handler == nil {
		return fmt.Errorf("core: operation %q has no handler", name)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built {
		return fmt.Errorf("core: registry is sealed; cannot register %q", name)
	}
	if _, exists := b.descriptors[name]; exists {
		return fmt.Errorf("core: operation %q already registered", name)
	}
	if descriptor.SupportsPagination {
		for _, field := range paginationFields {
			descriptor.Contract = descriptor.Contract.withField(field)
		}
	}
	descriptor.RequiredScopes = append([]string(nil), descriptor.RequiredScopes...)
	b.descriptors[name] = descriptor
	return nil
}

// MustRegister panics on duplicate or malformed descriptors; registration
// errors are programming errors caught at startup.
func (b *RegistryBuilder) MustRegister(descriptors ...OperationDescriptor) *RegistryBuilder {
	for _, descriptor := range descriptors {
		if err := b.Register(descriptor); err != nil {
			panic(err)
		}
	}
	return b
}

func (b *RegistryBuilder) Build() (*Registry, error) {
	if b == nil {
		return nil, fmt.Errorf("core: registry builder is nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built {
		return nil, fmt.Errorf("core: registry already built")
	}
	b.built = true

	names := make([]string, 0, len(b.descriptors))
	table := make(map[string]OperationDescriptor, len(b.descriptors))
	for name, descriptor := range b.descriptors {
		names = append(names, name)
		table[name] = descriptor
	}
	sort.Strings(names)
	return &Registry{table: table, names: names}, nil
}

// Registry is immutable once built, so lookups take no locks.
type Registry struct {
	table map[string]OperationDescriptor
	names []string
}

// NewRegistry builds a registry from a closed descriptor list.
func NewRegistry(descriptors ...OperationDescriptor) (*Registry, error) {
	builder := NewRegistryBuilder()
	for _, descriptor := range descriptors {
		if err := builder.Register(descriptor); err != nil {
			return nil, err
		}
	}
	return builder.Build()
}

// Lookup matches the name exactly against the registered key set.
func (r *Registry) Lookup(name string) (OperationDescriptor, bool) {
	if r == nil {
		return OperationDescriptor{}, false
	}
	descriptor, ok := r.table[name]
	return descriptor, ok
}

func (r *Registry) List() []OperationDescriptor {
	if r == nil {
		return nil
	}
	out := make([]OperationDescriptor, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.table[name])
	}
	return out
}

func (r *Registry) Summaries() []OperationSummary {
	descriptors := r.List()
	out := make([]OperationSummary, 0, len(descriptors))
	for _, descriptor := range descriptors {
		out = append(out, descriptor.Summary())
	}
	return out
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}
