package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/nuln/stream"
)

func newCatCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat NAME",
		Short: "Copy a resource to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.runtime()
			if err != nil {
				return err
			}
			defer func() { _ = rt.CloseAll() }()

			s, err := opts.open(cmd.Context(), rt, args[0], stream.ModeRead, stream.FilterRead, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if _, err := io.Copy(cmd.OutOrStdout(), s); err != nil {
				_ = s.Close()
				return err
			}
			return s.Close()
		},
	}
	addStreamFlags(cmd, opts)
	return cmd
}
