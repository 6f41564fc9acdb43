// Package static implements a vault registry whose strategy sets are held
// in memory. It serves local deployments configured from a file, and tests.
package static

import (
	"context"
	"fmt"
	"sync"

	ethCommon "github.com/ethereum/go-ethereum/common"

	"github.com/yearn/stack-router/common"
)

// Registry maps vaults to their active strategies.
type Registry struct {
	mu     sync.RWMutex
	vaults map[ethCommon.Address]map[ethCommon.Address]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		vaults: make(map[ethCommon.Address]map[ethCommon.Address]struct{}),
	}
}

// NewRegistryFromConfig builds a registry from a vault -> strategies map
// of hex addresses.
func NewRegistryFromConfig(cfg map[string][]string) (*Registry, error) {
	r := NewRegistry()
	for vaultHex, strategiesHex := range cfg {
		vault, err := common.ParseEthAddress(vaultHex)
		if err != nil {
			return nil, fmt.Errorf("vault: %w", err)
		}
		strategies, err := common.ParseEthAddresses(strategiesHex)
		if err != nil {
			return nil, fmt.Errorf("strategies of vault %s: %w", vault, err)
		}
		r.AddVault(vault)
		for _, strategy := range strategies {
			r.AddStrategy(vault, strategy)
		}
	}
	return r, nil
}

// AddVault registers a vault with no strategies.
func (r *Registry) AddVault(vault ethCommon.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vaults[vault]; !ok {
		r.vaults[vault] = make(map[ethCommon.Address]struct{})
	}
}

// AddStrategy activates strategy on vault, registering the vault if needed.
func (r *Registry) AddStrategy(vault, strategy ethCommon.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	strategies, ok := r.vaults[vault]
	if !ok {
		strategies = make(map[ethCommon.Address]struct{})
		r.vaults[vault] = strategies
	}
	strategies[strategy] = struct{}{}
}

// RevokeStrategy deactivates strategy on vault. Withdrawal stacks that
// already hold the strategy are not touched.
func (r *Registry) RevokeStrategy(vault, strategy ethCommon.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.vaults[vault], strategy)
}

// IsActiveStrategy implements router.StrategyChecker.
func (r *Registry) IsActiveStrategy(_ context.Context, vault, strategy ethCommon.Address) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.vaults[vault][strategy]
	return ok, nil
}
