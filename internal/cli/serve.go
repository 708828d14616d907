package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/quorum/internal/agent"
	"github.com/dshills/quorum/internal/github"
	"github.com/dshills/quorum/internal/server"
)

func (a *app) serveCmd() *cobra.Command {
	var (
		flags      reviewFlags
		addr       string
		watchRules bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the review HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides := flags.overrides(cmd)
			if cmd.Flags().Changed("addr") {
				overrides["server.addr"] = addr
			}
			cfg, err := a.loadConfig(overrides)
			if err != nil {
				return a.failErr(err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := a.newPipeline(ctx, cfg)
			if err != nil {
				return a.failErr(err)
			}
			defer p.Close()

			opts := server.Options{
				Addr:          cfg.Server.Addr,
				Version:       Version,
				MinConfidence: cfg.MinConfidence,
				Reviewer:      p.orch,
				Logger:        p.log,
				Metrics:       p.metrics,
			}
			if p.history != nil {
				opts.History = p.history
			}
			if gh, err := github.NewClient(github.Options{}); err != nil {
				p.log.Warn("GitHub reviews disabled", "reason", err.Error())
			} else {
				opts.Fetcher = gh
			}

			if watchRules {
				if cfg.RulesFile == "" {
					p.log.Warn("--watch-rules ignored: no rules file configured")
				} else {
					go func() {
						if err := agent.WatchRules(ctx, cfg.RulesFile, p.setRules, p.log); err != nil {
							p.log.Error("rules watcher stopped", "error", err)
						}
					}()
				}
			}

			if err := server.New(opts).ListenAndServe(ctx); err != nil {
				return a.fail(ExitRuntimeError, err)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from server.addr)")
	cmd.Flags().BoolVar(&watchRules, "watch-rules", false, "Reload the rules file when it changes")
	return cmd
}
