package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/ans/did"
	"github.com/vinayprograms/ans/proof"
)

var (
	keygenOutDir string
	keygenName   string
)

// KeygenCmd creates a P-256 key pair for an agent.
var KeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an agent key pair",
	Long: `Generate an ECDSA P-256 key pair in PEM form.

Without --out both keys are printed. With --out they are written as
<name>.key (mode 0600) and <name>.pub.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		kp, err := proof.GenerateKeyPair()
		if err != nil {
			return err
		}
		fp, err := did.Fingerprint(kp.PublicKeyPEM)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if keygenOutDir == "" {
			fmt.Fprint(out, kp.PrivateKeyPEM)
			fmt.Fprint(out, kp.PublicKeyPEM)
			return nil
		}

		if err := os.MkdirAll(keygenOutDir, 0700); err != nil {
			return err
		}
		keyPath := filepath.Join(keygenOutDir, keygenName+".key")
		pubPath := filepath.Join(keygenOutDir, keygenName+".pub")
		if err := os.WriteFile(keyPath, []byte(kp.PrivateKeyPEM), 0600); err != nil {
			return err
		}
		if err := os.WriteFile(pubPath, []byte(kp.PublicKeyPEM), 0644); err != nil {
			return err
		}
		fmt.Fprintf(out, "private key: %s\npublic key:  %s\nfingerprint: %s\n", keyPath, pubPath, fp)
		return nil
	},
}

func init() {
	KeygenCmd.Flags().StringVarP(&keygenOutDir, "out", "o", "", "Directory to write the key files to")
	KeygenCmd.Flags().StringVar(&keygenName, "name", "agent", "Base name of the key files")
}
