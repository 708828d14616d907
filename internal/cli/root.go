package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/quorum/internal/llm"
	"github.com/dshills/quorum/internal/providers"
)

// Version is the quorum release, overridden at build time with -ldflags.
var Version = "0.3.0"

// Exit codes.
const (
	ExitSuccess      = 0
	ExitFindings     = 1
	ExitUsageError   = 2
	ExitAuthError    = 3
	ExitRuntimeError = 4
)

// app carries the streams, persistent flags and exit code of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader

	configPath string
	logLevel   string
	noHistory  bool
	trace      bool

	exitCode int

	// newBackend builds the model backend; tests replace it.
	newBackend func(ctx context.Context, provider, model string, opts providers.Options) (llm.Backend, error)
}

func newApp(stdout, stderr io.Writer, stdin io.Reader) *app {
	return &app{
		stdout: stdout,
		stderr: stderr,
		stdin:  stdin,
		newBackend: func(ctx context.Context, provider, model string, opts providers.Options) (llm.Backend, error) {
			return providers.New(ctx, provider, model, opts)
		},
	}
}

// Run executes quorum with args and returns the process exit code.
func Run(args []string) int {
	a := newApp(os.Stdout, os.Stderr, os.Stdin)
	return a.run(args)
}

func (a *app) run(args []string) int {
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	if err := root.Execute(); err != nil {
		// Cobra already printed the error and usage.
		return ExitUsageError
	}
	return a.exitCode
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "quorum",
		Short:         "Multi-agent LLM code review",
		Long:          "Quorum reviews unified diffs with four specialised agents (logic, style, security, performance) and merges their comments into one report.",
		SilenceUsage:  true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/quorum/config.yaml)")
	pf.StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.BoolVar(&a.noHistory, "no-history", false, "Do not save reports to the history store")
	pf.BoolVar(&a.trace, "trace", false, "Export spans to the trace file or stderr")

	root.AddCommand(
		a.reviewCmd(),
		a.githubCmd(),
		a.serveCmd(),
		a.historyCmd(),
		a.configCmd(),
		a.cacheCmd(),
		a.hookCmd(),
		a.agentsCmd(),
		a.modelsCmd(),
		a.versionCmd(),
	)
	return root
}

// fail reports err on stderr and records code as the exit status.
func (a *app) fail(code int, err error) error {
	fmt.Fprintf(a.stderr, "Error: %v\n", err)
	a.exitCode = code
	return nil
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print quorum version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "quorum version %s\n", Version)
		},
	}
}
