package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/ans/did"
)

// FingerprintCmd prints the DID suffix a public key maps to.
var FingerprintCmd = &cobra.Command{
	Use:   "fingerprint <public-key.pem>",
	Short: "Print the DID fingerprint of a public key",
	Long: `Print the base58 multihash of a PEM public key, the last part of every
did:ans identifier issued for it. The file is hashed exactly as stored, so
it must match the public_key sent at registration byte for byte.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		fp, err := did.Fingerprint(string(data))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), fp)
		return nil
	},
}
