package kvstore

import (
	"context"
	"path/filepath"
	"testing"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/yearn/stack-router/log"
	"github.com/yearn/stack-router/router"
)

var (
	vaultA = ethCommon.HexToAddress("0x00000000000000000000000000000000000000a1")
	vaultB = ethCommon.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func strategies(n int) []ethCommon.Address {
	out := make([]ethCommon.Address, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, ethCommon.BytesToAddress([]byte{0x5, byte(i)}))
	}
	return out
}

func openTestStore(t *testing.T, path string) *Store {
	s, err := Open(path, log.NewDefaultLogger("unit-test"))
	require.NoError(t, err)
	return s
}

func TestAuthorityRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "router.db"))
	defer s.Close()

	_, ok, err := s.Authority(ctx)
	require.NoError(t, err)
	require.False(t, ok, "fresh store has no authority")

	auth := router.Authority{
		Governance:        ethCommon.HexToAddress("0x00000000000000000000000000000000000000f1"),
		PendingGovernance: ethCommon.HexToAddress("0x00000000000000000000000000000000000000f2"),
	}
	require.NoError(t, s.SetAuthority(ctx, auth))

	got, ok, err := s.Authority(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, auth, got)
}

func TestStacks(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "router.db"))
	defer s.Close()

	stack, err := s.Stack(ctx, vaultA)
	require.NoError(t, err)
	require.Empty(t, stack)

	full := strategies(router.MaxStackSize)
	require.NoError(t, s.SetStack(ctx, vaultA, full))
	require.NoError(t, s.SetStack(ctx, vaultB, full[:2]))

	stack, err = s.Stack(ctx, vaultA)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(full, stack))

	stack, err = s.Stack(ctx, vaultB)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(full[:2], stack))

	require.NoError(t, s.SetStack(ctx, vaultA, nil))
	stack, err = s.Stack(ctx, vaultA)
	require.NoError(t, err)
	require.Empty(t, stack)

	// Clearing an unknown vault is a no-op.
	require.NoError(t, s.SetStack(ctx, ethCommon.Address{}, []ethCommon.Address{}))
}

func TestStatePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "router.db")
	gov := ethCommon.HexToAddress("0x00000000000000000000000000000000000000f1")
	stack := strategies(3)

	s := openTestStore(t, path)
	require.NoError(t, s.SetAuthority(ctx, router.Authority{Governance: gov}))
	require.NoError(t, s.SetStack(ctx, vaultA, stack))
	require.NoError(t, s.Close())

	s = openTestStore(t, path)
	defer s.Close()
	auth, ok, err := s.Authority(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, gov, auth.Governance)
	got, err := s.Stack(ctx, vaultA)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(stack, got))
}

func TestRouterOnKVStore(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "router.db"))
	defer s.Close()
	gov := ethCommon.HexToAddress("0x00000000000000000000000000000000000000f1")
	stack := strategies(3)

	r, err := router.New(ctx, "router", gov, s, activeChecker{}, log.NewDefaultLogger("unit-test"))
	require.NoError(t, err)
	for _, strategy := range stack {
		require.NoError(t, r.AddStrategy(ctx, gov, vaultA, strategy))
	}
	require.NoError(t, r.RemoveStrategy(ctx, gov, vaultA, stack[1]))

	got, err := r.VaultWithdrawalStack(ctx, vaultA)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff([]ethCommon.Address{stack[0], stack[2]}, got))
}

// activeChecker reports every strategy as active.
type activeChecker struct{}

func (activeChecker) IsActiveStrategy(context.Context, ethCommon.Address, ethCommon.Address) (bool, error) {
	return true, nil
}
