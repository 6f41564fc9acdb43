package common

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEthAddress(t *testing.T) {
	addr, err := ParseEthAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	require.NoError(t, err)
	require.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", addr.Hex())

	lower, err := ParseEthAddress("5fbdb2315678afecb367f032d93f642f64180aa3")
	require.NoError(t, err)
	require.Equal(t, addr, lower)

	for _, bad := range []string{"", "0x", "0x1234", "oasis1qq", "0x5FbDB2315678afecb367f032d93F642f64180aaZ"} {
		_, err = ParseEthAddress(bad)
		require.Error(t, err, bad)
	}
}

func TestParseEthAddresses(t *testing.T) {
	addrs, err := ParseEthAddresses([]string{
		"0x0000000000000000000000000000000000000001",
		"0x0000000000000000000000000000000000000002",
	})
	require.NoError(t, err)
	require.Len(t, addrs, 2)

	_, err = ParseEthAddresses([]string{"0x0000000000000000000000000000000000000001", "nope"})
	require.ErrorContains(t, err, "address 1")
}

func TestStringifyEthAddress(t *testing.T) {
	addr, err := ParseEthAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	require.NoError(t, err)

	oasisAddr, err := StringifyEthAddress(addr)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(oasisAddr, "oasis1"), oasisAddr)

	// Deterministic.
	again, err := StringifyEthAddress(addr)
	require.NoError(t, err)
	require.Equal(t, oasisAddr, again)

	other, err := StringifyEthAddress(ZeroAddress)
	require.NoError(t, err)
	require.NotEqual(t, oasisAddr, other)
}
