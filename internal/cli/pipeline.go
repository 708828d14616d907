package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dshills/quorum/internal/agent"
	"github.com/dshills/quorum/internal/cache"
	"github.com/dshills/quorum/internal/config"
	"github.com/dshills/quorum/internal/llm"
	"github.com/dshills/quorum/internal/logging"
	"github.com/dshills/quorum/internal/metrics"
	"github.com/dshills/quorum/internal/output"
	"github.com/dshills/quorum/internal/providers"
	"github.com/dshills/quorum/internal/review"
	"github.com/dshills/quorum/internal/store"
	"github.com/dshills/quorum/internal/tracing"
)

// exitError carries the exit code a setup failure should produce.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error { return &exitError{code: code, err: err} }

// failErr reports err with the exit code it carries, or ExitRuntimeError.
func (a *app) failErr(err error) error {
	var ee *exitError
	if errors.As(err, &ee) {
		return a.fail(ee.code, ee.err)
	}
	return a.fail(ExitRuntimeError, err)
}

// loadConfig applies the persistent flags on top of overrides and loads the
// effective configuration. Invalid configuration is a usage error.
func (a *app) loadConfig(overrides map[string]string) (config.Config, error) {
	if overrides == nil {
		overrides = map[string]string{}
	}
	if a.logLevel != "" {
		overrides["log.level"] = a.logLevel
	}
	if a.trace {
		overrides["trace.enabled"] = "true"
	}
	cfg, err := config.Load(a.configPath, overrides)
	if err != nil {
		return config.Config{}, withCode(ExitUsageError, err)
	}
	return cfg, nil
}

// pipeline is everything one review run needs, built from configuration.
type pipeline struct {
	cfg       config.Config
	log       *slog.Logger
	metrics   *metrics.Metrics
	client    *llm.Client
	roles     []agent.Role
	agentOpts agent.Options
	orch      *review.Orchestrator
	history   *store.Store

	closers []func(context.Context) error
}

func (a *app) newPipeline(ctx context.Context, cfg config.Config) (*pipeline, error) {
	p := &pipeline{cfg: cfg, metrics: metrics.New()}
	built := false
	defer func() {
		if !built {
			p.Close()
		}
	}()

	log, logCloser, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		return nil, err
	}
	p.log = log
	p.closers = append(p.closers, func(context.Context) error { return logCloser.Close() })

	shutdown, err := tracing.Setup(tracing.Options{Enabled: cfg.Trace.Enabled, File: cfg.Trace.File, Version: Version})
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, shutdown)

	roles, err := agent.SelectRoles(cfg.Agents)
	if err != nil {
		return nil, withCode(ExitUsageError, err)
	}
	p.roles = roles
	rules, err := agent.LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, withCode(ExitUsageError, err)
	}

	backend, err := a.newBackend(ctx, cfg.Provider, cfg.Model, providers.Options{BaseURL: cfg.BaseURL})
	if err != nil {
		// Backends fail construction only for missing credentials.
		return nil, withCode(ExitAuthError, err)
	}

	respCache, err := cache.New(cfg.Cache.Enabled, cfg.Cache.Dir, cfg.Cache.TTL)
	if err != nil {
		log.Warn("response cache unavailable, continuing without it", "error", err)
		respCache, _ = cache.New(false, "", 0)
	}

	p.client = llm.New(backend, llm.Options{
		Timeout:           cfg.LLM.Timeout,
		MaxAttempts:       cfg.LLM.MaxAttempts,
		BaseDelay:         cfg.LLM.BaseDelay,
		MaxDelay:          cfg.LLM.MaxDelay,
		MaxConcurrent:     cfg.LLM.MaxConcurrent,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
		Cache:             respCache,
		Metrics:           p.metrics,
		Logger:            log,
	})

	p.agentOpts = agent.Options{
		Temperature:   cfg.LLM.Temperature,
		MaxTokens:     cfg.LLM.MaxTokens,
		SnippetLines:  cfg.Review.SnippetLines,
		RedactSecrets: cfg.Privacy.RedactSecrets,
		RedactPaths:   cfg.Privacy.RedactPaths,
		Rules:         rules,
		Logger:        log,
		Metrics:       p.metrics,
	}

	var summarizer *review.Summarizer
	if cfg.Review.Summary {
		summarizer = review.NewSummarizer(p.client, cfg.LLM.Temperature, cfg.LLM.MaxTokens, 0)
	}
	p.orch = review.New(agent.NewSet(roles, p.client, p.agentOpts), review.Options{
		DedupPrefix:    cfg.Review.DedupPrefix,
		RequestTimeout: cfg.Review.RequestTimeout,
		Summarizer:     summarizer,
		Version:        Version,
		Backend:        p.client.Backend(),
		Model:          p.client.Model(),
		Logger:         log,
		Metrics:        p.metrics,
	})

	if !a.noHistory {
		st, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			log.Warn("review history unavailable", "driver", cfg.Store.Driver, "error", err)
		} else {
			p.history = st
			p.closers = append(p.closers, func(context.Context) error { return st.Close() })
		}
	}
	built = true
	return p, nil
}

// setRules rebuilds the agent roster with new rules. Runs in progress keep
// the roster they started with.
func (p *pipeline) setRules(rules *agent.Rules) {
	opts := p.agentOpts
	opts.Rules = rules
	p.orch.SetReviewers(agent.NewSet(p.roles, p.client, opts))
}

// Close releases resources in reverse order of acquisition.
func (p *pipeline) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(p.closers) - 1; i >= 0; i-- {
		_ = p.closers[i](ctx)
	}
	p.closers = nil
}

// report finishes a run: it applies the confidence floor, stores and writes
// the report, and sets the exit code from the run error, failed tasks and
// the fail-on threshold.
func (a *app) report(ctx context.Context, p *pipeline, report *review.Report, runErr error, out string) {
	if report == nil {
		a.failErr(runErr)
		return
	}
	report.ApplyMinConfidence(p.cfg.MinConfidence)

	if p.history != nil {
		if err := p.history.Save(context.WithoutCancel(ctx), report); err != nil {
			p.log.Warn("saving review history failed", "id", report.ID, "error", err)
		}
	}

	if err := output.WriteReport(report, p.cfg.Format, out, a.stdout); err != nil {
		a.fail(ExitRuntimeError, fmt.Errorf("writing output: %w", err))
		return
	}

	switch {
	case runErr != nil:
		a.fail(ExitRuntimeError, runErr)
	case report.Tasks.Total > 0 && report.Tasks.Failed == report.Tasks.Total:
		a.fail(ExitRuntimeError, fmt.Errorf("every review task failed (first: %s)", report.Failures[0].Reason))
	case review.MeetsThreshold(report.Comments, p.cfg.FailOnList()):
		a.exitCode = ExitFindings
	}
}
