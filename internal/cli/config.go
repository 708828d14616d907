package cli

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/quorum/internal/config"
)

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage quorum configuration",
	}

	// path resolves the file config commands act on.
	path := func() (string, error) {
		if a.configPath != "" {
			return a.configPath, nil
		}
		return config.DefaultPath()
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with every default",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := path()
			if err != nil {
				return a.fail(ExitRuntimeError, err)
			}
			if _, err := os.Stat(p); err == nil {
				fmt.Fprintf(a.stderr, "Config file already exists at %s\n", p)
				return nil
			} else if !errors.Is(err, os.ErrNotExist) {
				return a.fail(ExitRuntimeError, err)
			}
			if err := config.Save(p, config.Default()); err != nil {
				return a.fail(ExitRuntimeError, err)
			}
			fmt.Fprintf(a.stdout, "Config file created at %s\n", p)
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := path()
			if err != nil {
				return a.fail(ExitRuntimeError, err)
			}
			if err := config.SetField(p, args[0], args[1]); err != nil {
				return a.fail(ExitUsageError, err)
			}
			fmt.Fprintf(a.stdout, "Set %s = %s\n", args[0], args[1])
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(nil)
			if err != nil {
				return a.failErr(err)
			}
			values := cfg.Values()
			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			for _, k := range keys {
				fmt.Fprintf(tw, "%s\t%v\n", k, values[k])
			}
			return tw.Flush()
		},
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := path()
			if err != nil {
				return a.fail(ExitRuntimeError, err)
			}
			fmt.Fprintln(a.stdout, p)
			return nil
		},
	}

	cmd.AddCommand(initCmd, setCmd, showCmd, pathCmd)
	return cmd
}
