// Package router implements the withdrawal stack router: a per-vault,
// bounded, duplicate-free priority list of strategies that only the
// router's governance may change.
package router

import (
	"context"
	"fmt"
	"slices"
	"sync"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/yearn/stack-router/common"
	"github.com/yearn/stack-router/log"
	"github.com/yearn/stack-router/metrics"
)

const (
	moduleName = "router"

	// MaxStackSize is the maximum number of strategies in one vault's
	// withdrawal stack.
	MaxStackSize = 10
)

// Operation names, as used in logs and metrics.
const (
	OpSetGovernance               = "set_governance"
	OpAcceptGovernance            = "accept_governance"
	OpAddStrategy                 = "add_strategy"
	OpRemoveStrategy              = "remove_strategy"
	OpSetWithdrawalStack          = "set_withdrawal_stack"
	OpReplaceWithdrawalStackIndex = "replace_withdrawal_stack_index"
)

// StrategyChecker answers whether a strategy is active on a vault.
type StrategyChecker interface {
	IsActiveStrategy(ctx context.Context, vault, strategy ethCommon.Address) (bool, error)
}

// Router manages the withdrawal stacks of any number of vaults.
//
// All calls, reads included, are serialized. A mutating call validates
// against the current stored state and then performs exactly one store
// write; if it returns an error, the stored state is unchanged.
type Router struct {
	name    string
	store   Store
	vaults  StrategyChecker
	logger  *log.Logger
	metrics metrics.RouterMetrics

	mu sync.Mutex
}

// New creates a router on top of store. If the store holds no authority
// yet, governance becomes the initial governance; otherwise the stored
// authority is kept.
func New(ctx context.Context, name string, governance ethCommon.Address, store Store, vaults StrategyChecker, logger *log.Logger) (*Router, error) {
	logger = logger.WithModule(moduleName).With("router", name)

	auth, ok, err := store.Authority(ctx)
	if err != nil {
		return nil, fmt.Errorf("load authority: %w", err)
	}
	switch {
	case !ok:
		if governance == common.ZeroAddress {
			return nil, ErrZeroGovernance
		}
		if err = store.SetAuthority(ctx, Authority{Governance: governance}); err != nil {
			return nil, fmt.Errorf("store initial authority: %w", err)
		}
		logger.Info("initialized governance", "governance", governance)
	case governance != common.ZeroAddress && auth.Governance != governance:
		logger.Warn("stored governance differs from the configured one; keeping the stored one",
			"stored", auth.Governance,
			"configured", governance,
		)
	}

	return &Router{
		name:    name,
		store:   store,
		vaults:  vaults,
		logger:  logger,
		metrics: metrics.NewDefaultRouterMetrics("router"),
	}, nil
}

// Name is the router's human-readable name, e.g. "YearnV3 Router 0.0.1".
func (r *Router) Name() string {
	return r.name
}

// Governance returns the current governance.
func (r *Router) Governance(ctx context.Context) (ethCommon.Address, error) {
	auth, err := r.Authority(ctx)
	return auth.Governance, err
}

// PendingGovernance returns the nominated governance, or the zero address.
func (r *Router) PendingGovernance(ctx context.Context) (ethCommon.Address, error) {
	auth, err := r.Authority(ctx)
	return auth.PendingGovernance, err
}

// Authority returns both governance fields as one consistent snapshot.
func (r *Router) Authority(ctx context.Context) (Authority, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.authority(ctx)
}

// SetGovernance nominates a new governance. Only the current governance
// may call it; the nomination takes effect once the nominee accepts.
func (r *Router) SetGovernance(ctx context.Context, caller, nominee ethCommon.Address) (err error) {
	defer func() { r.observe(OpSetGovernance, err, "sender", caller, "nominee", nominee) }()
	r.mu.Lock()
	defer r.mu.Unlock()

	auth, err := r.authority(ctx)
	if err != nil {
		return err
	}
	next, err := auth.Nominate(caller, nominee)
	if err != nil {
		return err
	}
	if err = r.store.SetAuthority(ctx, next); err != nil {
		return fmt.Errorf("store authority: %w", err)
	}
	return nil
}

// AcceptGovernance completes a governance transfer. Only the pending
// governance may call it.
func (r *Router) AcceptGovernance(ctx context.Context, caller ethCommon.Address) (err error) {
	defer func() { r.observe(OpAcceptGovernance, err, "sender", caller) }()
	r.mu.Lock()
	defer r.mu.Unlock()

	auth, err := r.authority(ctx)
	if err != nil {
		return err
	}
	next, err := auth.Accept(caller)
	if err != nil {
		return err
	}
	if err = r.store.SetAuthority(ctx, next); err != nil {
		return fmt.Errorf("store authority: %w", err)
	}
	return nil
}

// AddStrategy appends strategy to the vault's withdrawal stack.
func (r *Router) AddStrategy(ctx context.Context, caller, vault, strategy ethCommon.Address) (err error) {
	defer func() { r.observe(OpAddStrategy, err, "vault", vault, "strategy", strategy) }()
	r.mu.Lock()
	defer r.mu.Unlock()

	if err = r.authorize(ctx, caller); err != nil {
		return err
	}
	if err = r.requireActive(ctx, vault, strategy); err != nil {
		return err
	}
	stack, err := r.stack(ctx, vault)
	if err != nil {
		return err
	}
	if len(stack) >= MaxStackSize {
		return ErrStackFull
	}
	if slices.Contains(stack, strategy) {
		return fmt.Errorf("%w: %s", ErrDuplicateStrategy, strategy)
	}
	return r.setStack(ctx, vault, append(stack, strategy))
}

// RemoveStrategy removes strategy from the vault's withdrawal stack. The
// strategies behind it move up one position; their order is kept.
func (r *Router) RemoveStrategy(ctx context.Context, caller, vault, strategy ethCommon.Address) (err error) {
	defer func() { r.observe(OpRemoveStrategy, err, "vault", vault, "strategy", strategy) }()
	r.mu.Lock()
	defer r.mu.Unlock()

	if err = r.authorize(ctx, caller); err != nil {
		return err
	}
	stack, err := r.stack(ctx, vault)
	if err != nil {
		return err
	}
	i := slices.Index(stack, strategy)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrStrategyNotFound, strategy)
	}
	return r.setStack(ctx, vault, slices.Delete(stack, i, i+1))
}

// SetWithdrawalStack replaces the vault's whole withdrawal stack. The empty
// list clears it. Every entry must be an active strategy of the vault.
func (r *Router) SetWithdrawalStack(ctx context.Context, caller, vault ethCommon.Address, stack []ethCommon.Address) (err error) {
	defer func() { r.observe(OpSetWithdrawalStack, err, "vault", vault, "length", len(stack)) }()
	r.mu.Lock()
	defer r.mu.Unlock()

	if err = r.authorize(ctx, caller); err != nil {
		return err
	}
	if len(stack) > MaxStackSize {
		return fmt.Errorf("%w: %d > %d", ErrStackTooLong, len(stack), MaxStackSize)
	}
	seen := make(map[ethCommon.Address]struct{}, len(stack))
	for _, strategy := range stack {
		if _, dup := seen[strategy]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateStrategy, strategy)
		}
		seen[strategy] = struct{}{}
	}
	if err = r.requireAllActive(ctx, vault, stack); err != nil {
		return err
	}
	return r.setStack(ctx, vault, slices.Clone(stack))
}

// ReplaceWithdrawalStackIndex puts strategy at position index of the
// vault's withdrawal stack in place of the current entry.
func (r *Router) ReplaceWithdrawalStackIndex(ctx context.Context, caller, vault ethCommon.Address, index int, strategy ethCommon.Address) (err error) {
	defer func() {
		r.observe(OpReplaceWithdrawalStackIndex, err, "vault", vault, "index", index, "strategy", strategy)
	}()
	r.mu.Lock()
	defer r.mu.Unlock()

	if err = r.authorize(ctx, caller); err != nil {
		return err
	}
	stack, err := r.stack(ctx, vault)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(stack) {
		return fmt.Errorf("%w: %d (length %d)", ErrInvalidIndex, index, len(stack))
	}
	if stack[index] == strategy {
		return ErrSameStrategy
	}
	if err = r.requireActive(ctx, vault, strategy); err != nil {
		return err
	}
	if slices.Contains(stack, strategy) {
		return fmt.Errorf("%w: %s", ErrDuplicateStrategy, strategy)
	}
	stack[index] = strategy
	return r.setStack(ctx, vault, stack)
}

// WithdrawalStackLength returns the number of strategies in the vault's
// withdrawal stack.
func (r *Router) WithdrawalStackLength(ctx context.Context, vault ethCommon.Address) (int, error) {
	stack, err := r.VaultWithdrawalStack(ctx, vault)
	return len(stack), err
}

// VaultWithdrawalStack returns the vault's withdrawal stack in withdrawal
// order. The result is never nil.
func (r *Router) VaultWithdrawalStack(ctx context.Context, vault ethCommon.Address) ([]ethCommon.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stack(ctx, vault)
}

func (r *Router) authority(ctx context.Context) (Authority, error) {
	auth, ok, err := r.store.Authority(ctx)
	if err != nil {
		return Authority{}, fmt.Errorf("load authority: %w", err)
	}
	if !ok {
		return Authority{}, fmt.Errorf("load authority: no authority in %s store", r.store.Name())
	}
	return auth, nil
}

func (r *Router) authorize(ctx context.Context, caller ethCommon.Address) error {
	auth, err := r.authority(ctx)
	if err != nil {
		return err
	}
	return auth.Authorize(caller)
}

func (r *Router) stack(ctx context.Context, vault ethCommon.Address) ([]ethCommon.Address, error) {
	stack, err := r.store.Stack(ctx, vault)
	if err != nil {
		return nil, fmt.Errorf("load stack of vault %s: %w", vault, err)
	}
	if stack == nil {
		stack = []ethCommon.Address{}
	}
	return stack, nil
}

func (r *Router) setStack(ctx context.Context, vault ethCommon.Address, stack []ethCommon.Address) error {
	if err := r.store.SetStack(ctx, vault, stack); err != nil {
		return fmt.Errorf("store stack of vault %s: %w", vault, err)
	}
	r.metrics.StackLength(vault.Hex()).Set(float64(len(stack)))
	return nil
}

func (r *Router) requireActive(ctx context.Context, vault, strategy ethCommon.Address) error {
	active, err := r.vaults.IsActiveStrategy(ctx, vault, strategy)
	if err != nil {
		return fmt.Errorf("query vault %s for strategy %s: %w", vault, strategy, err)
	}
	if !active {
		return fmt.Errorf("%w: %s", ErrInactiveStrategy, strategy)
	}
	return nil
}

// requireAllActive checks the strategies against the vault concurrently and
// reports the failure of the lowest index. Checks are not canceled on a
// sibling's failure, so the result does not depend on scheduling.
func (r *Router) requireAllActive(ctx context.Context, vault ethCommon.Address, strategies []ethCommon.Address) error {
	errs := make([]error, len(strategies))
	var group errgroup.Group
	for i, strategy := range strategies {
		group.Go(func() error {
			errs[i] = r.requireActive(ctx, vault, strategy)
			return nil
		})
	}
	_ = group.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) observe(op string, err error, keyvals ...interface{}) {
	kind := Kind(err)
	r.metrics.Operations(op, kind).Inc()
	keyvals = append([]interface{}{"op", op}, keyvals...)
	switch {
	case err == nil:
		r.logger.Info("operation applied", keyvals...)
	case IsRejection(err):
		r.logger.Debug("operation rejected", append(keyvals, "err", err)...)
	default:
		r.logger.Error("operation failed", append(keyvals, "err", err)...)
	}
}
