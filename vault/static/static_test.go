package static

import (
	"context"
	"testing"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	vaultA    = ethCommon.HexToAddress("0x00000000000000000000000000000000000000a1")
	vaultB    = ethCommon.HexToAddress("0x00000000000000000000000000000000000000b1")
	strategy1 = ethCommon.HexToAddress("0x0000000000000000000000000000000000000001")
	strategy2 = ethCommon.HexToAddress("0x0000000000000000000000000000000000000002")
)

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()

	active, err := r.IsActiveStrategy(ctx, vaultA, strategy1)
	require.NoError(t, err)
	require.False(t, active, "unknown vault")

	r.AddStrategy(vaultA, strategy1)
	active, err = r.IsActiveStrategy(ctx, vaultA, strategy1)
	require.NoError(t, err)
	require.True(t, active)

	// Strategies are per vault.
	active, err = r.IsActiveStrategy(ctx, vaultB, strategy1)
	require.NoError(t, err)
	require.False(t, active)

	r.RevokeStrategy(vaultA, strategy1)
	active, err = r.IsActiveStrategy(ctx, vaultA, strategy1)
	require.NoError(t, err)
	require.False(t, active)

	// Revoking from an unknown vault is a no-op.
	r.RevokeStrategy(vaultB, strategy2)
}

func TestRegistryFromConfig(t *testing.T) {
	ctx := context.Background()
	r, err := NewRegistryFromConfig(map[string][]string{
		vaultA.Hex(): {strategy1.Hex(), strategy2.Hex()},
		vaultB.Hex(): {},
	})
	require.NoError(t, err)

	for _, s := range []ethCommon.Address{strategy1, strategy2} {
		active, err2 := r.IsActiveStrategy(ctx, vaultA, s)
		require.NoError(t, err2)
		require.True(t, active, s.Hex())
	}
	active, err := r.IsActiveStrategy(ctx, vaultB, strategy1)
	require.NoError(t, err)
	require.False(t, active)

	_, err = NewRegistryFromConfig(map[string][]string{"not-a-vault": nil})
	require.Error(t, err)
	_, err = NewRegistryFromConfig(map[string][]string{vaultA.Hex(): {"0x12"}})
	require.Error(t, err)
}
