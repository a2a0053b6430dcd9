// registry.go
package main

import "fmt"

// Registry is the immutable-after-init mapping from ProviderID to its
// strategy. Lookup is lock-free since the map is never mutated after
// NewRegistry returns.
type Registry struct {
	strategies map[ProviderID]ProviderStrategy
}

// NewRegistry builds the registry for every provider this gateway supports.
// bedrockRegion may be empty -- the Bedrock strategy still registers, but
// ProcessHeaders/Sign will fail invalid-credentials until a region is
// supplied (per-request headers can still carry one).
func NewRegistry(cfg Config) (*Registry, error) {
	bedrock, err := newBedrockStrategy(cfg)
	if err != nil {
		return nil, fmt.Errorf("init bedrock strategy: %w", err)
	}

	r := &Registry{strategies: map[ProviderID]ProviderStrategy{
		ProviderOpenAI:    newOpenAIStrategy(),
		ProviderAnthropic: newAnthropicStrategy(),
		ProviderGroq:      newGroqStrategy(),
		ProviderFireworks: newFireworksStrategy(),
		ProviderTogether:  newTogetherStrategy(),
		ProviderBedrock:   bedrock,
	}}
	return r, nil
}

// Lookup returns the strategy for id, or (nil, false) if id is unknown.
func (r *Registry) Lookup(id ProviderID) (ProviderStrategy, bool) {
	s, ok := r.strategies[id]
	return s, ok
}
