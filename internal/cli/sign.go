package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crclabs/backingd/internal/core/order"
	"github.com/crclabs/backingd/internal/crypto"
)

var signKeyHex string

// signCmd signs an order uid digest so the signature can be submitted to a
// daemon with the sign_order method.
var signCmd = &cobra.Command{
	Use:   "sign <order-uid>",
	Short: "Sign an order uid with a private key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uid, err := order.UIDFromHex(args[0])
		if err != nil {
			return err
		}
		kp, err := crypto.KeyPairFromHex(signKeyHex)
		if err != nil {
			return err
		}
		defer kp.Destroy()

		sig := kp.SignDigest(uid.Digest())
		fmt.Printf("signer:    %s\n", kp.Address().Hex())
		fmt.Printf("signature: 0x%x\n", sig)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(signCmd)
	signCmd.Flags().StringVar(&signKeyHex, "key", "", "hex private key of the order owner")
	_ = signCmd.MarkFlagRequired("key")
}
