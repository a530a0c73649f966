package cli

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/crclabs/backingd/internal/config"
	"github.com/crclabs/backingd/internal/core/deriver"
)

// deriveCmd computes a counterfactual instance address offline. It only
// needs the protocol constants, not a running daemon.
var deriveCmd = &cobra.Command{
	Use:   "derive <backer-address>",
	Short: "Derive the instance address for a backer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(args[0]) {
			return fmt.Errorf("invalid backer address: %q", args[0])
		}

		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		protocol, err := cfg.Protocol.ToBacking()
		if err != nil {
			return err
		}

		backer := common.HexToAddress(args[0])
		addr := deriver.InstanceAddress(protocol.Address, backer, protocol.Fingerprint)
		fmt.Println(addr.Hex())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deriveCmd)
}
