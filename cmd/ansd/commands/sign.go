package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/ans/proof"
	"github.com/vinayprograms/ans/registration"
)

var (
	signKeyPath    string
	signDeregister string
	signReason     string
	signIndent     bool
)

// SignCmd signs a registration payload or builds a deregistration request.
var SignCmd = &cobra.Command{
	Use:   "sign [payload.json|-]",
	Short: "Sign a registration payload",
	Long: `Sign a registration payload with an agent's private key and print it with
its proofOfOwnership block attached. A payload without public_key gets the
key's public half. Read from stdin when the file is "-" or omitted.

With --deregister <agent_id> no payload is read; a signed deregistration
request is printed instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyPEM, err := os.ReadFile(signKeyPath)
		if err != nil {
			return err
		}
		kp, err := proof.ParsePrivateKey(string(keyPEM))
		if err != nil {
			return err
		}

		var out any
		if signDeregister != "" {
			req, err := registration.SignDeregister(signDeregister, signReason, kp.Private)
			if err != nil {
				return err
			}
			out = req
		} else {
			raw, err := readPayload(cmd, args)
			if err != nil {
				return err
			}
			if _, ok := raw["public_key"]; !ok {
				raw["public_key"] = kp.PublicKeyPEM
			}
			if err := registration.SignPayload(raw, kp.Private, time.Now()); err != nil {
				return err
			}
			out = raw
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetEscapeHTML(false)
		if signIndent {
			enc.SetIndent("", "  ")
		}
		return enc.Encode(out)
	},
}

func init() {
	SignCmd.Flags().StringVarP(&signKeyPath, "key", "k", "", "PEM private key file")
	SignCmd.Flags().StringVar(&signDeregister, "deregister", "", "Sign a deregistration request for this agent id")
	SignCmd.Flags().StringVar(&signReason, "reason", "", "Deregistration reason")
	SignCmd.Flags().BoolVar(&signIndent, "indent", false, "Indent the output")
	SignCmd.MarkFlagRequired("key")
}

// readPayload decodes the payload keeping numbers as written, so the
// signature covers the same text the registry will canonicalize.
func readPayload(cmd *cobra.Command, args []string) (map[string]any, error) {
	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(data)
	}

	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("payload: expected a JSON object")
	}
	return raw, nil
}
