package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crclabs/backingd/internal/crypto"
)

// keygenCmd creates a fresh secp256k1 account key for use as a backer or
// admin identity.
var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new account keypair",
	RunE: func(cmd *cobra.Command, args []string) error {
		kp, err := crypto.GenerateKeyPair()
		if err != nil {
			return err
		}
		defer kp.Destroy()

		fmt.Printf("address:     %s\n", kp.Address().Hex())
		fmt.Printf("private key: %s\n", kp.PrivateKeyHex())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
