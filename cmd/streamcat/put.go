package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nuln/stream"
)

func newPutCmd(opts *rootOptions) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "put NAME",
		Short: "Copy stdin to a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := stream.Mode(mode)
			if err := m.Validate(); err != nil {
				return err
			}
			if !m.Writable() {
				return fmt.Errorf("mode %q does not allow writing", mode)
			}
			rt, err := opts.runtime()
			if err != nil {
				return err
			}
			defer func() { _ = rt.CloseAll() }()

			s, err := opts.open(cmd.Context(), rt, args[0], m, stream.FilterWrite, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if _, err := io.Copy(s, cmd.InOrStdin()); err != nil {
				_ = s.Close()
				return err
			}
			return s.Close()
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", string(stream.ModeTruncateWrite), "open mode: w, a, x, c or their + forms")
	addStreamFlags(cmd, opts)
	return cmd
}
