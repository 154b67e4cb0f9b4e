package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pqwasm/dilithium-go/pkg/dilithium"
)

func newVersionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the wrapper and foreign module versions",
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

			mv, err := dilithium.ModuleVersion(ctx, s.foreign)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "dilithium-go %s\n", dilithium.WrapperVersion())
			fmt.Fprintf(out, "module: %s\n", mv)
			fmt.Fprintf(out, "params: %s\n", s.engine.Params())
			return nil
		},
	}
}
