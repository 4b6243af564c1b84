package policy

import (
	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
)

// Registry holds one policy per node type.
type Registry struct {
	policies map[domain.NodeType]TypePolicy
}

// NewRegistry creates a registry with all default type policies.
func NewRegistry() *Registry {
	r := &Registry{
		policies: make(map[domain.NodeType]TypePolicy),
	}

	r.Register(NewNonReadablePolicy())
	r.Register(NewRecyclablePolicy())
	r.Register(NewDirectoryPolicy())
	r.Register(NewReadmePolicy())
	r.Register(NewEntryPolicy())
	r.Register(NewDaemonPolicy())
	r.Register(NewFirewallPolicy())
	r.Register(NewCounterMeasurePolicy())
	r.Register(NewUndefinedPolicy())

	return r
}

// NewRegistryWithPolicies creates a registry with custom policies (for testing).
// Types without a policy fall back to nothing: no actions, no description.
func NewRegistryWithPolicies(policies ...TypePolicy) *Registry {
	r := &Registry{
		policies: make(map[domain.NodeType]TypePolicy),
	}
	for _, p := range policies {
		r.Register(p)
	}
	return r
}

// Register adds or replaces the policy for its type.
func (r *Registry) Register(p TypePolicy) {
	r.policies[p.Type()] = p
}

// Get returns the policy for a type.
func (r *Registry) Get(t domain.NodeType) (TypePolicy, bool) {
	p, ok := r.policies[t]
	return p, ok
}

// GetAll returns all registered policies in a stable order.
func (r *Registry) GetAll() []TypePolicy {
	order := append([]domain.NodeType{
		domain.TypeNonReadable,
		domain.TypeRecyclable,
		domain.TypeDirectory,
		domain.TypeReadme,
		domain.TypeEntry,
	}, domain.ExecutableTypes...)

	result := make([]TypePolicy, 0, len(r.policies))
	for _, t := range order {
		if p, ok := r.policies[t]; ok {
			result = append(result, p)
		}
	}
	return result
}

// RegistryPolicyStore adapts Registry to implement domain.PolicyStore.
type RegistryPolicyStore struct {
	registry *Registry
}

// NewPolicyStore creates a PolicyStore backed by the default Registry.
func NewPolicyStore() domain.PolicyStore {
	return &RegistryPolicyStore{registry: NewRegistry()}
}

// NewPolicyStoreWithRegistry creates a PolicyStore backed by a custom registry.
func NewPolicyStoreWithRegistry(r *Registry) domain.PolicyStore {
	return &RegistryPolicyStore{registry: r}
}

func (s *RegistryPolicyStore) DefaultActions(t domain.NodeType) []domain.Action {
	p, ok := s.registry.Get(t)
	if !ok {
		return nil
	}
	return p.Actions()
}

func (s *RegistryPolicyStore) DefaultDescription(t domain.NodeType) string {
	p, ok := s.registry.Get(t)
	if !ok {
		return ""
	}
	return p.Description()
}

func (s *RegistryPolicyStore) DefaultRestartTicks(t domain.NodeType) int {
	p, ok := s.registry.Get(t)
	if !ok || p.RestartTicks() <= 0 {
		return DefaultRestartTicks
	}
	return p.RestartTicks()
}

// Allows reports whether a can target type t at all. Executable-only actions
// never apply to passive nodes, whatever the node definition says.
func (s *RegistryPolicyStore) Allows(t domain.NodeType, a domain.ActionType) bool {
	if a.ExecutableOnly() && !t.IsExecutable() {
		return false
	}
	if a == domain.ActionAnalyze || a == domain.ActionDownload {
		return true
	}
	p, ok := s.registry.Get(t)
	if !ok {
		return false
	}
	for _, action := range p.Actions() {
		if action.Type == a {
			return true
		}
	}
	return false
}

// Ensure RegistryPolicyStore implements domain.PolicyStore.
var _ domain.PolicyStore = (*RegistryPolicyStore)(nil)
