package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pqwasm/dilithium-go/pkg/dilithium"
)

const (
	demoMessage    = "Hello, lattice post-quantum world!"
	demoTampered   = "Hello, tampered post-quantum world!"
	demoLargeSize  = 1000
	demoLargeValue = 42
)

// scenario is one demo check. want is the verification result a correct
// implementation produces.
type scenario struct {
	title string
	sign  []byte
	check []byte
	want  bool
	pass  string
	fail  string
	// reuse verifies the text signature instead of signing sign.
	reuse bool
}

func newDemoCmd(opts *options) *cobra.Command {
	var showSignatures bool
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the text, binary, cross, tampered, large and empty message scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			s, err := opts.openSession(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.close(ctx)
			return runDemo(ctx, cmd.OutOrStdout(), s.engine, showSignatures)
		},
	}
	cmd.Flags().BoolVar(&showSignatures, "show-signatures", false, "print signatures in hex")
	return cmd
}

func demoScenarios() []scenario {
	text := dilithium.Text(demoMessage)
	binary := []byte{1, 2, 3, 4, 5}
	return []scenario{
		{title: "String message", sign: text, check: text, want: true,
			pass: "Valid signature", fail: "Invalid signature"},
		{title: "Binary data", sign: binary, check: binary, want: true,
			pass: "Valid binary signature", fail: "Invalid binary signature"},
		{title: "Cross-verification (string signature vs binary data)", check: binary, reuse: true,
			pass: "Invalid (correct behavior)", fail: "Valid (ERROR!)"},
		{title: "Tampered message", check: dilithium.Text(demoTampered), reuse: true,
			pass: "Invalid (correct behavior)", fail: "Valid (ERROR!)"},
		{title: "Large binary data", sign: bytes.Repeat([]byte{demoLargeValue}, demoLargeSize),
			check: bytes.Repeat([]byte{demoLargeValue}, demoLargeSize), want: true,
			pass: "Valid large signature", fail: "Invalid large signature"},
		{title: "Empty message", sign: dilithium.Text(""), check: dilithium.Text(""), want: true,
			pass: "Valid empty signature", fail: "Invalid empty signature"},
	}
}

func runDemo(ctx context.Context, out io.Writer, eng *dilithium.Engine, showSignatures bool) (err error) {
	fmt.Fprintf(out, "Parameter set: %s\n", eng.Params())
	fmt.Fprintln(out, "Generating keypair...")
	kp, err := eng.GenerateKeyPair(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := eng.ReleaseKeyPair(ctx, kp); rerr != nil && err == nil {
			err = rerr
		}
	}()

	pub, err := eng.PublicKeyBytes(ctx, kp.Public)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Public key fingerprint: %s\n", dilithium.Fingerprint(pub))

	var textSig []byte
	failures := 0
	for i, sc := range demoScenarios() {
		fmt.Fprintf(out, "\n--- %s ---\n", sc.title)

		sig := textSig
		if !sc.reuse {
			sig, err = eng.Sign(ctx, sc.sign, kp.Secret)
			if err != nil {
				return fmt.Errorf("%s: %w", sc.title, err)
			}
			if i == 0 {
				textSig = sig
			}
			fmt.Fprintf(out, "Signature length: %d\n", len(sig))
			if showSignatures {
				fmt.Fprintf(out, "Signature (hex): %s\n", hex.EncodeToString(sig))
			}
		}

		valid, verr := eng.Verify(ctx, sig, sc.check, kp.Public)
		if verr != nil {
			return fmt.Errorf("%s: %w", sc.title, verr)
		}
		if valid == sc.want {
			fmt.Fprintf(out, "Result: %s\n", sc.pass)
		} else {
			failures++
			fmt.Fprintf(out, "Result: %s\n", sc.fail)
		}
	}

	fmt.Fprintln(out, "\n=== All scenarios completed ===")
	if failures > 0 {
		return fmt.Errorf("%d scenario(s) failed", failures)
	}
	return nil
}
