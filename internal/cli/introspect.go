package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/quorum/internal/agent"
	"github.com/dshills/quorum/internal/llm"
	"github.com/dshills/quorum/internal/providers"
)

func (a *app) agentsCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List review agents and their instructions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(nil)
			if err != nil {
				return a.failErr(err)
			}
			enabled := make(map[string]bool)
			roles, err := agent.SelectRoles(cfg.Agents)
			if err != nil {
				return a.fail(ExitUsageError, err)
			}
			for _, r := range roles {
				enabled[r.Name()] = true
			}
			rules, err := agent.LoadRules(cfg.RulesFile)
			if err != nil {
				return a.fail(ExitUsageError, err)
			}

			for _, r := range agent.DefaultRoles() {
				state := "enabled"
				if !enabled[r.Name()] {
					state = "disabled"
				}
				first, _, _ := strings.Cut(r.Instruction, "\n")
				fmt.Fprintf(a.stdout, "%-12s %-9s %s\n", r.Name(), state, first)
				if verbose {
					for _, line := range strings.Split(r.Instruction, "\n")[1:] {
						fmt.Fprintf(a.stdout, "    %s\n", line)
					}
					fmt.Fprintln(a.stdout)
				}
			}
			if s := rules.PromptSection(); s != "" {
				fmt.Fprintf(a.stdout, "\nRepository rules (%s):%s", cfg.RulesFile, s)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print full instructions")
	return cmd
}

type modelInfo struct {
	Provider string
	Models   []string
}

var knownModels = []modelInfo{
	{Provider: "anthropic", Models: []string{"claude-sonnet-4-20250514", "claude-opus-4-1-20250805", "claude-3-5-haiku-latest"}},
	{Provider: "openai", Models: []string{"gpt-4.1", "gpt-4.1-mini", "gpt-4o", "o3-mini"}},
	{Provider: "gemini", Models: []string{"gemini-2.5-pro", "gemini-2.5-flash", "gemini-2.0-flash"}},
	{Provider: "ollama", Models: []string{"llama3.3", "qwen2.5-coder", "deepseek-coder-v2", "codellama"}},
	{Provider: "lmstudio", Models: []string{"any model loaded in LM Studio"}},
}

func (a *app) modelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List known providers and models",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, info := range knownModels {
				fmt.Fprintf(a.stdout, "%s:\n", info.Provider)
				for _, m := range info.Models {
					fmt.Fprintf(a.stdout, "  - %s\n", m)
				}
			}
		},
	}

	var flags reviewFlags
	doctor := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the configured provider answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(flags.overrides(cmd))
			if err != nil {
				return a.failErr(err)
			}
			fmt.Fprintf(a.stdout, "Checking %s (%s)...\n", cfg.Provider, cfg.Model)
			backend, err := a.newBackend(cmd.Context(), cfg.Provider, cfg.Model, providers.Options{BaseURL: cfg.BaseURL})
			if err != nil {
				return a.fail(ExitAuthError, err)
			}
			client := llm.New(backend, llm.Options{Timeout: 30 * time.Second, MaxAttempts: 1})
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			if _, err := client.Call(ctx, llm.Request{System: "Respond with exactly: ok", User: "ping", MaxTokens: 10}); err != nil {
				code := ExitRuntimeError
				if providers.IsAuth(err) {
					code = ExitAuthError
				}
				return a.fail(code, err)
			}
			fmt.Fprintf(a.stdout, "OK: %s is configured and responding\n", cfg.Provider)
			return nil
		},
	}
	flags.register(doctor)
	cmd.AddCommand(doctor)
	return cmd
}
