package common

import (
	"fmt"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/oasisprotocol/oasis-core/go/common/crypto/address"
	sdkTypes "github.com/oasisprotocol/oasis-sdk/client-sdk/go/types"
)

// ZeroAddress is the empty sentinel, e.g. for "no pending governance".
var ZeroAddress = ethCommon.Address{}

// ParseEthAddress parses a 0x-prefixed (or bare) 40 hex digit address.
func ParseEthAddress(s string) (ethCommon.Address, error) {
	if !ethCommon.IsHexAddress(s) {
		return ZeroAddress, fmt.Errorf("malformed address '%s'", s)
	}
	return ethCommon.HexToAddress(s), nil
}

// ParseEthAddresses parses every element of `ss`, failing on the first
// malformed one.
func ParseEthAddresses(ss []string) ([]ethCommon.Address, error) {
	addrs := make([]ethCommon.Address, 0, len(ss))
	for i, s := range ss {
		addr, err := ParseEthAddress(s)
		if err != nil {
			return nil, fmt.Errorf("address %d: %w", i, err)
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// StringifyEthAddress returns the bech32 oasis address that the runtime
// derives for an EVM account.
func StringifyEthAddress(ethAddr ethCommon.Address) (string, error) {
	ocAddr := address.NewAddress(sdkTypes.AddressV0Secp256k1EthContext, ethAddr.Bytes())
	sdkAddr := (sdkTypes.Address)(ocAddr)
	addrTextBytes, err := sdkAddr.MarshalText()
	if err != nil {
		return "", fmt.Errorf("address marshal text: %w", err)
	}
	return string(addrTextBytes), nil
}
