package router

import (
	"testing"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/yearn/stack-router/common"
)

func TestAuthorityNominateAndAccept(t *testing.T) {
	gov := ethCommon.HexToAddress("0x00000000000000000000000000000000000000f1")
	strategist := ethCommon.HexToAddress("0x00000000000000000000000000000000000000f2")
	auth := Authority{Governance: gov}

	next, err := auth.Nominate(gov, strategist)
	require.NoError(t, err)
	require.Equal(t, Authority{Governance: gov, PendingGovernance: strategist}, next)
	require.Equal(t, common.ZeroAddress, auth.PendingGovernance, "receiver must not change")

	accepted, err := next.Accept(strategist)
	require.NoError(t, err)
	require.Equal(t, Authority{Governance: strategist}, accepted)
}

func TestAuthorityRejections(t *testing.T) {
	gov := ethCommon.HexToAddress("0x00000000000000000000000000000000000000f1")
	strategist := ethCommon.HexToAddress("0x00000000000000000000000000000000000000f2")
	user := ethCommon.HexToAddress("0x00000000000000000000000000000000000000f3")

	for _, tc := range []struct {
		name string
		do   func(Authority) (Authority, error)
		auth Authority
	}{
		{
			name: "stranger nominates",
			auth: Authority{Governance: gov},
			do:   func(a Authority) (Authority, error) { return a.Nominate(strategist, strategist) },
		},
		{
			name: "governance accepts for nominee",
			auth: Authority{Governance: gov, PendingGovernance: strategist},
			do:   func(a Authority) (Authority, error) { return a.Accept(gov) },
		},
		{
			name: "stranger accepts",
			auth: Authority{Governance: gov, PendingGovernance: strategist},
			do:   func(a Authority) (Authority, error) { return a.Accept(user) },
		},
		{
			name: "zero caller accepts empty nomination",
			auth: Authority{Governance: gov},
			do:   func(a Authority) (Authority, error) { return a.Accept(common.ZeroAddress) },
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.do(tc.auth)
			require.ErrorIs(t, err, ErrUnauthorized)
			require.Equal(t, tc.auth, got)
		})
	}
}

func TestAuthorityWithdrawNomination(t *testing.T) {
	gov := ethCommon.HexToAddress("0x00000000000000000000000000000000000000f1")
	strategist := ethCommon.HexToAddress("0x00000000000000000000000000000000000000f2")

	auth, err := Authority{Governance: gov}.Nominate(gov, strategist)
	require.NoError(t, err)
	auth, err = auth.Nominate(gov, common.ZeroAddress)
	require.NoError(t, err)

	_, err = auth.Accept(strategist)
	require.ErrorIs(t, err, ErrUnauthorized)
}
