package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/quorum/internal/cache"
)

func (a *app) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the model response cache",
	}

	open := func() (*cache.Cache, error) {
		cfg, err := a.loadConfig(nil)
		if err != nil {
			return nil, err
		}
		c, err := cache.New(cfg.Cache.Enabled, cfg.Cache.Dir, cfg.Cache.TTL)
		if err != nil {
			return nil, fmt.Errorf("opening cache: %w", err)
		}
		return c, nil
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open()
			if err != nil {
				return a.failErr(err)
			}
			if !c.Enabled() {
				fmt.Fprintln(a.stdout, "Cache is disabled.")
				return nil
			}
			stats, err := c.Stats()
			if err != nil {
				return a.fail(ExitRuntimeError, fmt.Errorf("reading cache stats: %w", err))
			}
			fmt.Fprintf(a.stdout, "Directory: %s\n", stats.Dir)
			fmt.Fprintf(a.stdout, "Entries:   %d (%d expired)\n", stats.Entries, stats.Expired)
			fmt.Fprintf(a.stdout, "Size:      %s\n", humanize.Bytes(uint64(stats.TotalBytes)))
			if !stats.Oldest.IsZero() {
				fmt.Fprintf(a.stdout, "Oldest:    %s\n", humanize.Time(stats.Oldest))
			}
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open()
			if err != nil {
				return a.failErr(err)
			}
			n, err := c.Clear()
			if err != nil {
				return a.fail(ExitRuntimeError, fmt.Errorf("clearing cache: %w", err))
			}
			fmt.Fprintf(a.stdout, "Removed %d cached response(s).\n", n)
			return nil
		},
	}

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Remove expired cached responses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open()
			if err != nil {
				return a.failErr(err)
			}
			n, err := c.Prune()
			if err != nil {
				return a.fail(ExitRuntimeError, fmt.Errorf("pruning cache: %w", err))
			}
			fmt.Fprintf(a.stdout, "Removed %d expired response(s).\n", n)
			return nil
		},
	}

	cmd.AddCommand(show, clearCmd, prune)
	return cmd
}
