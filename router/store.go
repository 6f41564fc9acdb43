package router

import (
	"context"
	"slices"
	"sync"

	ethCommon "github.com/ethereum/go-ethereum/common"
)

// Store persists the router's state. Every write replaces one record
// atomically: either the whole authority or one vault's whole stack.
//
// Implementations need not be safe for concurrent writers; the Router
// serializes all of its calls.
type Store interface {
	// Authority returns the stored authority. ok is false if none was
	// stored yet.
	Authority(ctx context.Context) (auth Authority, ok bool, err error)

	// SetAuthority replaces the stored authority.
	SetAuthority(ctx context.Context, auth Authority) error

	// Stack returns the vault's withdrawal stack in order. Unknown vaults
	// have an empty stack. The returned slice is owned by the caller.
	Stack(ctx context.Context, vault ethCommon.Address) ([]ethCommon.Address, error)

	// SetStack replaces the vault's withdrawal stack.
	SetStack(ctx context.Context, vault ethCommon.Address, stack []ethCommon.Address) error

	// Name returns the name of the store's backend.
	Name() string
}

// MemoryStore is a Store that keeps everything in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	authority *Authority
	stacks    map[ethCommon.Address][]ethCommon.Address
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stacks: make(map[ethCommon.Address][]ethCommon.Address),
	}
}

// Authority implements Store.
func (s *MemoryStore) Authority(_ context.Context) (Authority, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.authority == nil {
		return Authority{}, false, nil
	}
	return *s.authority, true, nil
}

// SetAuthority implements Store.
func (s *MemoryStore) SetAuthority(_ context.Context, auth Authority) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authority = &auth
	return nil
}

// Stack implements Store.
func (s *MemoryStore) Stack(_ context.Context, vault ethCommon.Address) ([]ethCommon.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.stacks[vault]), nil
}

// SetStack implements Store.
func (s *MemoryStore) SetStack(_ context.Context, vault ethCommon.Address, stack []ethCommon.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(stack) == 0 {
		delete(s.stacks, vault)
		return nil
	}
	s.stacks[vault] = slices.Clone(stack)
	return nil
}

// Name implements Store.
func (s *MemoryStore) Name() string {
	return "inmemory"
}
