package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nuln/stream"
	_ "github.com/nuln/stream/wrappers"
)

type rootOptions struct {
	configPath string
	logLevel   string
	contextID  string
	filters    []string
	notify     bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "streamcat",
		Short:         "Read and write named resources through stream wrappers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML runtime configuration")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	cmd.AddCommand(
		newCatCmd(opts),
		newPutCmd(opts),
		newWrappersCmd(opts),
		newFiltersCmd(opts),
	)
	return cmd
}

// addStreamFlags registers the flags shared by cat and put.
func addStreamFlags(cmd *cobra.Command, opts *rootOptions) {
	cmd.Flags().StringArrayVarP(&opts.filters, "filter", "f", nil, "filter to attach, repeatable")
	cmd.Flags().StringVar(&opts.contextID, "context", "", "context id declared in the configuration")
	cmd.Flags().BoolVar(&opts.notify, "notify", false, "print notifications to stderr")
}

func (o *rootOptions) runtime() (*stream.Runtime, error) {
	cfg := stream.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = stream.LoadConfig(o.configPath); err != nil {
			return nil, err
		}
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return stream.NewRuntime(cfg)
}

// open opens name with the shared flags applied. Filters are attached in
// the direction given by dir.
func (o *rootOptions) open(ctx context.Context, rt *stream.Runtime, name string, mode stream.Mode, dir stream.FilterMode, stderr io.Writer) (*stream.Stream, error) {
	sopts := []stream.StreamOption{stream.WithMode(mode), stream.Deferred()}
	if o.contextID != "" {
		sopts = append(sopts, stream.WithContext(o.contextID))
	}
	s, err := rt.NewStream(ctx, name, sopts...)
	if err != nil {
		return nil, err
	}
	if o.notify {
		for _, ev := range stream.Events() {
			if err := s.On(ev.String(), func(ev stream.Event, n stream.Notification) {
				_, _ = fmt.Fprintf(stderr, "%s\t%s\t%d/%d\n", ev, n.Message, n.Transferred, n.Max)
			}); err != nil {
				return nil, err
			}
		}
	}
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	for _, f := range o.filters {
		if _, err := rt.Filters().Append(s, f, dir, nil); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}
