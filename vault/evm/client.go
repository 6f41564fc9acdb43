// Package evm answers strategy activeness by calling Yearn V3 vault
// contracts over Ethereum JSON-RPC.
package evm

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/yearn/stack-router/log"
)

const moduleName = "vault_evm"

func mustUnmarshalABI(artifactJSON []byte) *abi.ABI {
	var artifact struct {
		ABI *abi.ABI
	}
	if err := json.Unmarshal(artifactJSON, &artifact); err != nil {
		panic(err)
	}
	return artifact.ABI
}

//go:embed contracts/VaultV3.json
var artifactVaultV3JSON []byte

// VaultV3 is the subset of the Yearn V3 vault ABI the router needs.
var VaultV3 = mustUnmarshalABI(artifactVaultV3JSON)

// StrategyParams is a vault's record of one strategy. A strategy the vault
// never added, or has revoked, has a zero Activation.
type StrategyParams struct {
	Activation  *big.Int
	LastReport  *big.Int
	CurrentDebt *big.Int
	MaxDebt     *big.Int
}

// Client queries vault contracts.
type Client struct {
	caller ethereum.ContractCaller
	closer func()
	logger *log.Logger

	// Vaults whose API version has been logged.
	versioned sync.Map
}

// NewClient wraps an existing contract caller, e.g. a simulated backend.
func NewClient(caller ethereum.ContractCaller, logger *log.Logger) *Client {
	return &Client{
		caller: caller,
		closer: func() {},
		logger: logger.WithModule(moduleName),
	}
}

// Dial connects to the JSON-RPC endpoint at url.
func Dial(ctx context.Context, url string, logger *log.Logger) (*Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("ethclient DialContext %s: %w", url, err)
	}
	c := NewClient(client, logger)
	c.closer = client.Close
	return c, nil
}

// Close releases the RPC connection, if any.
func (c *Client) Close() {
	c.closer()
}

// callWithABI invokes method(params...) on the contract at address in the
// latest block and unpacks the output into result.
func (c *Client) callWithABI(ctx context.Context, address ethCommon.Address, contractABI *abi.ABI, result interface{}, method string, params ...interface{}) error {
	inPacked, err := contractABI.Pack(method, params...)
	if err != nil {
		return fmt.Errorf("packing evm call data: %w", err)
	}
	outPacked, err := c.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &address,
		Data: inPacked,
	}, nil)
	if err != nil {
		return fmt.Errorf("ethclient CallContract: %w", err)
	}
	if err = contractABI.UnpackIntoInterface(result, method, outPacked); err != nil {
		return fmt.Errorf("unpacking evm call output of %s: %w", method, err)
	}
	return nil
}

// Strategy returns the vault's record of strategy.
func (c *Client) Strategy(ctx context.Context, vault, strategy ethCommon.Address) (*StrategyParams, error) {
	var params StrategyParams
	if err := c.callWithABI(ctx, vault, VaultV3, &params, "strategies", strategy); err != nil {
		return nil, fmt.Errorf("vault %s strategies(%s): %w", vault, strategy, err)
	}
	return &params, nil
}

// APIVersion returns the vault's API version, e.g. "3.0.2".
func (c *Client) APIVersion(ctx context.Context, vault ethCommon.Address) (string, error) {
	var version string
	if err := c.callWithABI(ctx, vault, VaultV3, &version, "apiVersion"); err != nil {
		return "", fmt.Errorf("vault %s apiVersion(): %w", vault, err)
	}
	return version, nil
}

// IsActiveStrategy implements router.StrategyChecker.
func (c *Client) IsActiveStrategy(ctx context.Context, vault, strategy ethCommon.Address) (bool, error) {
	params, err := c.Strategy(ctx, vault, strategy)
	if err != nil {
		return false, err
	}
	c.logAPIVersion(ctx, vault)
	active := params.Activation != nil && params.Activation.Sign() != 0
	c.logger.Debug("queried strategy", "vault", vault, "strategy", strategy, "activation", params.Activation, "active", active)
	return active, nil
}

// logAPIVersion logs the version of each vault the first time it answers.
// A vault without apiVersion() is still usable.
func (c *Client) logAPIVersion(ctx context.Context, vault ethCommon.Address) {
	if _, loaded := c.versioned.LoadOrStore(vault, struct{}{}); loaded {
		return
	}
	version, err := c.APIVersion(ctx, vault)
	if err != nil {
		c.logger.Warn("vault api version unavailable", "vault", vault, "err", err)
		return
	}
	c.logger.Info("vault api version", "vault", vault, "api_version", version)
}
