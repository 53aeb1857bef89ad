// Command reactor runs the react agent loop against a local project.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/martinemde/reactor/llm"
	"github.com/martinemde/reactor/react"
	"github.com/martinemde/reactor/tools"
)

type flags struct {
	dir            string
	provider       string
	model          string
	budget         int
	configPath     string
	logLevel       string
	autoSubstitute bool
	lintCommand    string
	readOnly       bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:           "reactor",
		Short:         "Investigate a codebase with a tool-using language model",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&f.dir, "dir", "d", ".", "project directory the tools operate on")
	pf.StringVarP(&f.provider, "provider", "p", "", "model provider (openai, anthropic, ollama); default from environment")
	pf.StringVarP(&f.model, "model", "m", "", "model id or alias")
	pf.IntVarP(&f.budget, "budget", "b", 0, "iteration budget (overrides config)")
	pf.StringVarP(&f.configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&f.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	pf.BoolVar(&f.autoSubstitute, "auto-substitute", false, "run a substitute call automatically when a repeated call is blocked")
	pf.StringVar(&f.lintCommand, "lint", "", `lint command for runLint (default "go vet ./...")`)
	pf.BoolVar(&f.readOnly, "read-only", false, "do not register the writeFile tool")

	root.AddCommand(runCmd(f), chatCmd(f), modelsCmd(f))
	return root
}

func runCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "run <task>",
		Short: "Run one task to a final answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			orch, err := setup(f)
			if err != nil {
				return err
			}
			answer, err := orch.Run(ctx, strings.Join(args, " "))
			fmt.Fprintln(cmd.OutOrStdout(), answer.Content)
			slog.Info("done", "reason", answer.Reason, "iterations", answer.Iterations, "model_calls", answer.ModelCalls)
			return err
		},
	}
}

func chatCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive session; /reset clears history, /exit quits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := setup(f)
			if err != nil {
				return err
			}
			return repl(cmd.Context(), orch, bufio.NewScanner(cmd.InOrStdin()), cmd.OutOrStdout())
		},
	}
}

func repl(ctx context.Context, orch *react.Orchestrator, in *bufio.Scanner, out io.Writer) error {
	fmt.Fprintln(out, "reactor chat. Type /reset to clear the session, /exit to quit.")
	for {
		fmt.Fprint(out, "> ")
		if !in.Scan() {
			fmt.Fprintln(out)
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		}

		runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		answer, err := orch.Run(runCtx, line)
		stop()
		fmt.Fprintf(out, "%s\n\n", answer.Content)
		if err != nil && ctx.Err() != nil {
			return err
		}
	}
}

func modelsCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List known models, filtered by --provider",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, m := range llm.ListModels(f.provider) {
				fmt.Fprintf(cmd.OutOrStdout(), "%-22s %-10s %8d  %s\n", m.ID, m.Provider, m.ContextWindow, strings.Join(m.Aliases, ","))
			}
		},
	}
}

func setup(f *flags) (*react.Orchestrator, error) {
	logger := newLogger(f.logLevel)
	slog.SetDefault(logger)

	cfg := react.DefaultConfig()
	if f.configPath != "" {
		loaded, err := react.LoadConfig(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if f.budget > 0 {
		cfg.Loop.IterationBudget = f.budget
	}
	if f.model != "" {
		cfg.Loop.Model = f.model
	}
	if f.autoSubstitute {
		cfg.Loop.AutoSubstitute = true
	}

	ws := tools.NewWorkspace(f.dir)
	cfg.Loop.WorkingDirectory = ws.Root()

	metrics := llm.NewMetricsRecorder(prometheus.DefaultRegisterer)
	clientOpts := []llm.ClientOption{
		llm.WithMiddleware(llm.LoggingMiddleware(logger), metrics.Middleware()),
	}
	if cfg.Loop.Model != "" {
		clientOpts = append(clientOpts, llm.WithDefaultModel(cfg.Loop.Model))
	}

	var client *llm.Client
	if f.provider != "" {
		var adapterOpts []llm.GollmAdapterOption
		if cfg.Loop.Model != "" {
			adapterOpts = append(adapterOpts, llm.WithModel(cfg.Loop.Model))
		}
		adapter, err := llm.NewGollmAdapter(f.provider, "", adapterOpts...)
		if err != nil {
			return nil, err
		}
		client = llm.NewClient(append(clientOpts, llm.WithProvider(f.provider, adapter))...)
	} else {
		client = llm.NewClientFromEnv(clientOpts...)
	}

	reg := react.NewToolRegistry()
	if err := tools.RegisterDefaults(reg, ws, tools.Options{LintCommand: f.lintCommand, ReadOnly: f.readOnly}); err != nil {
		return nil, err
	}

	opts := []react.Option{
		react.WithLogger(logger),
		react.WithMetrics(react.NewMetrics(prometheus.DefaultRegisterer)),
	}
	if counter, err := llm.NewTokenCounter(cfg.Loop.Model); err == nil {
		opts = append(opts, react.WithTokenCounter(counter))
	} else {
		logger.Warn("token counter unavailable, estimating", "error", err)
	}
	return react.NewOrchestrator(client, reg, cfg, opts...)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
