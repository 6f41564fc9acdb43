package api

import (
	ethCommon "github.com/ethereum/go-ethereum/common"

	"github.com/yearn/stack-router/common"
)

// Account is an EVM address in both of its renderings.
type Account struct {
	// Address is the EIP-55 checksummed hex address.
	Address string `json:"address"`
	// OasisAddress is the bech32 address an Oasis EVM runtime derives for
	// the account, e.g. on Sapphire or Emerald.
	OasisAddress string `json:"oasis_address"`
}

func newAccount(addr ethCommon.Address) (Account, error) {
	oasisAddr, err := common.StringifyEthAddress(addr)
	if err != nil {
		return Account{}, err
	}
	return Account{Address: addr.Hex(), OasisAddress: oasisAddr}, nil
}

// Status describes the router.
type Status struct {
	Name       string  `json:"name"`
	Governance Account `json:"governance"`
	// PendingGovernance is absent when no transfer is in progress.
	PendingGovernance *Account `json:"pending_governance,omitempty"`
	MaxStackSize      int      `json:"max_stack_size"`
}

// WithdrawalStack is a vault's withdrawal stack in withdrawal order.
type WithdrawalStack struct {
	Vault      Account   `json:"vault"`
	Strategies []Account `json:"strategies"`
	Length     int       `json:"length"`
}

// StackLength is the length of a vault's withdrawal stack.
type StackLength struct {
	Vault  string `json:"vault"`
	Length int    `json:"length"`
}

// AddStrategyRequest is the body of POST /v1/vaults/{vault}/stack and
// PUT /v1/vaults/{vault}/stack/{index}.
type AddStrategyRequest struct {
	Strategy string `json:"strategy"`
}

// SetStackRequest is the body of PUT /v1/vaults/{vault}/stack.
type SetStackRequest struct {
	Strategies []string `json:"strategies"`
}

// NominateRequest is the body of POST /v1/governance/nominate.
type NominateRequest struct {
	Nominee string `json:"nominee"`
}
