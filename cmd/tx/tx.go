// Package tx implements the `tx` sub-commands, which call a running router
// API on behalf of a key.
package tx

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/yearn/stack-router/api"
	"github.com/yearn/stack-router/common"
)

// KeyEnv names the environment variable consulted when --key is not given.
const KeyEnv = "ROUTER_KEY"

var (
	serverURL string
	keyHex    string

	txCmd = &cobra.Command{
		Use:   "tx",
		Short: "Call a router API, signing mutations with a secp256k1 key",
	}
)

func newClient(needsKey bool) (*api.Client, error) {
	var key *ecdsa.PrivateKey
	hexKey := keyHex
	if hexKey == "" {
		hexKey = os.Getenv(KeyEnv)
	}
	switch {
	case hexKey != "":
		var err error
		if key, err = crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x")); err != nil {
			return nil, fmt.Errorf("parse key: %w", err)
		}
	case needsKey:
		return nil, fmt.Errorf("a signing key is required; pass --key or set %s", KeyEnv)
	}
	return api.NewClient(serverURL, key, nil)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// signed builds a sub-command that needs a signing key and prints run's
// result as JSON.
func signed(use, short string, args cobra.PositionalArgs, run func(cmd *cobra.Command, c *api.Client, rawArgs []string) (interface{}, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, rawArgs []string) error {
			c, err := newClient(true)
			if err != nil {
				return err
			}
			res, err := run(cmd, c, rawArgs)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func commands() []*cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the router's name and governance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(false)
			if err != nil {
				return err
			}
			status, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}

	stackCmd := &cobra.Command{
		Use:   "stack <vault>",
		Short: "Show a vault's withdrawal stack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(false)
			if err != nil {
				return err
			}
			vault, err := common.ParseEthAddress(args[0])
			if err != nil {
				return err
			}
			stack, err := c.Stack(cmd.Context(), vault)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stack)
		},
	}

	addCmd := signed("add-strategy <vault> <strategy>", "Append a strategy to a vault's withdrawal stack", cobra.ExactArgs(2),
		func(cmd *cobra.Command, c *api.Client, args []string) (interface{}, error) {
			addrs, err := common.ParseEthAddresses(args)
			if err != nil {
				return nil, err
			}
			return c.AddStrategy(cmd.Context(), addrs[0], addrs[1])
		})

	removeCmd := signed("remove-strategy <vault> <strategy>", "Remove a strategy from a vault's withdrawal stack", cobra.ExactArgs(2),
		func(cmd *cobra.Command, c *api.Client, args []string) (interface{}, error) {
			addrs, err := common.ParseEthAddresses(args)
			if err != nil {
				return nil, err
			}
			return c.RemoveStrategy(cmd.Context(), addrs[0], addrs[1])
		})

	setCmd := signed("set-stack <vault> [strategy...]", "Replace a vault's withdrawal stack; no strategies clears it", cobra.MinimumNArgs(1),
		func(cmd *cobra.Command, c *api.Client, args []string) (interface{}, error) {
			addrs, err := common.ParseEthAddresses(args)
			if err != nil {
				return nil, err
			}
			return c.SetStack(cmd.Context(), addrs[0], addrs[1:])
		})

	replaceCmd := signed("replace-index <vault> <index> <strategy>", "Replace the strategy at one position of a vault's withdrawal stack", cobra.ExactArgs(3),
		func(cmd *cobra.Command, c *api.Client, args []string) (interface{}, error) {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return nil, fmt.Errorf("index: %w", err)
			}
			addrs, err := common.ParseEthAddresses([]string{args[0], args[2]})
			if err != nil {
				return nil, err
			}
			return c.ReplaceStackIndex(cmd.Context(), addrs[0], index, addrs[1])
		})

	nominateCmd := signed("set-governance <nominee>", "Nominate a new governance; the zero address withdraws a nomination", cobra.ExactArgs(1),
		func(cmd *cobra.Command, c *api.Client, args []string) (interface{}, error) {
			nominee, err := common.ParseEthAddress(args[0])
			if err != nil {
				return nil, err
			}
			return c.NominateGovernance(cmd.Context(), nominee)
		})

	acceptCmd := signed("accept-governance", "Accept a pending governance nomination", cobra.NoArgs,
		func(cmd *cobra.Command, c *api.Client, _ []string) (interface{}, error) {
			return c.AcceptGovernance(cmd.Context())
		})

	return []*cobra.Command{statusCmd, stackCmd, addCmd, removeCmd, setCmd, replaceCmd, nominateCmd, acceptCmd}
}

// Register registers the tx sub-commands.
func Register(parentCmd *cobra.Command) {
	txCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8008", "base URL of the router API")
	txCmd.PersistentFlags().StringVar(&keyHex, "key", "", "hex secp256k1 private key to sign with (default $"+KeyEnv+")")
	txCmd.AddCommand(commands()...)
	parentCmd.AddCommand(txCmd)
}
