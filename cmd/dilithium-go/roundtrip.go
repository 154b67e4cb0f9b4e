package main

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pqwasm/dilithium-go/pkg/dilithium"
)

func newRoundtripCmd(opts *options) *cobra.Command {
	var isHex bool
	cmd := &cobra.Command{
		Use:   "roundtrip <message>",
		Short: "Generate a key pair, sign a message and verify the signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			msg := dilithium.Text(args[0])
			if isHex {
				decoded, err := hex.DecodeString(args[0])
				if err != nil {
					return fmt.Errorf("message: %w", err)
				}
				msg = decoded
			}

			s, err := opts.openSession(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.close(ctx)
			eng := s.engine

			kp, err := eng.GenerateKeyPair(ctx)
			if err != nil {
				return err
			}
			defer eng.ReleaseKeyPair(ctx, kp)

			pub, err := eng.PublicKeyBytes(ctx, kp.Public)
			if err != nil {
				return err
			}
			sig, err := eng.Sign(ctx, msg, kp.Secret)
			if err != nil {
				return err
			}
			valid, err := eng.Verify(ctx, sig, msg, kp.Public)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "params: %s\n", eng.Params())
			fmt.Fprintf(out, "public key fingerprint: %s\n", dilithium.Fingerprint(pub))
			fmt.Fprintf(out, "message length: %d\n", len(msg))
			fmt.Fprintf(out, "signature length: %d\n", len(sig))
			fmt.Fprintf(out, "signature: %s\n", hex.EncodeToString(sig))
			fmt.Fprintf(out, "valid: %t\n", valid)
			if !valid {
				return fmt.Errorf("signature did not verify")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&isHex, "hex", false, "treat the message argument as hex-encoded bytes")
	return cmd
}
