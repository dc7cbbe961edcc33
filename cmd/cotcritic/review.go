package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/dshills/cotcritic/internal/catalog"
	"github.com/dshills/cotcritic/internal/config"
	"github.com/dshills/cotcritic/internal/document"
	"github.com/dshills/cotcritic/internal/engine"
	"github.com/dshills/cotcritic/internal/gitrepo"
	"github.com/dshills/cotcritic/internal/reasoning"
	"github.com/dshills/cotcritic/internal/redact"
	"github.com/dshills/cotcritic/internal/report"
)

type reviewFlags struct {
	aiOnly      bool
	repoOnly    bool
	single      string
	resume      int
	parallel    int
	model       string
	maxTokens   int
	temperature float64
	seed        int
	hasSeed     bool
	out         string
	configPath  string
	redact      bool
	verbose     bool
}

func newReviewCmd() *cobra.Command {
	f := &reviewFlags{}

	cmd := &cobra.Command{
		Use:   "review <document>",
		Short: "Run the review catalog against a transcript and write a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.hasSeed = cmd.Flags().Changed("seed")
			return runReview(args[0], f)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&f.aiOnly, "ai-only", false, "Run only reasoning-based reviews")
	flags.BoolVar(&f.repoOnly, "repository-only", false, "Run only repository reviews")
	flags.StringVar(&f.single, "single-review", "", "Run one review by name or id")
	flags.IntVar(&f.resume, "resume", -1, "Resume from this review id, keeping earlier results")
	flags.IntVar(&f.parallel, "parallel", 0, "Worker count for overlapping review calls")
	flags.StringVar(&f.model, "model", "", "Model ID (e.g., claude-sonnet-4-6, gpt-4o)")
	flags.IntVar(&f.maxTokens, "max-tokens", 0, "Max response tokens")
	flags.Float64Var(&f.temperature, "temperature", 0, "Model temperature")
	flags.IntVar(&f.seed, "seed", 0, "Random seed (if supported)")
	flags.StringVar(&f.out, "out", "", "Report file path (default: reports/<document-id>_report.txt)")
	flags.StringVar(&f.configPath, "config", "", "Config file path (default: cotcritic.yaml if present)")
	flags.BoolVar(&f.redact, "redact", true, "Redact secrets before sending to model")
	flags.BoolVar(&f.verbose, "verbose", false, "Print processing steps to stderr")

	return cmd
}

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	skipStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
)

func statusStyle(s engine.Status) lipgloss.Style {
	switch s {
	case engine.StatusPass:
		return passStyle
	case engine.StatusFail:
		return failStyle
	case engine.StatusSkipped:
		return skipStyle
	default:
		return errStyle
	}
}

func runReview(docPath string, f *reviewFlags) error {
	logger := log.New(os.Stderr, "", 0)
	verbose := func(msg string, args ...any) {
		if f.verbose {
			logger.Printf(msg, args...)
		}
	}

	// 1. Load config
	var cfg *config.Config
	var err error
	if f.configPath != "" {
		cfg, err = config.Load(f.configPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return exitError(2, "config error: %v", err)
	}
	if f.model != "" {
		cfg.Model = f.model
	}
	if f.parallel > 0 {
		cfg.Parallel = f.parallel
	}
	if err := cfg.Validate(); err != nil {
		return exitError(2, "config error: %v", err)
	}

	// 2. Resolve run mode; conflicts are rejected before touching the document
	opts, err := resolveMode(f)
	if err != nil {
		return exitError(2, "%v", err)
	}
	opts.Parallel = cfg.Parallel
	verbose("Mode: %s", opts.Mode)

	// 3. Load document
	verbose("Loading document: %s", docPath)
	doc, err := document.Load(docPath)
	if err != nil {
		return exitError(3, "failed to load document: %v", err)
	}
	verbose("Document %s: %d chains, %d structural findings",
		doc.DocumentID[:12], len(doc.Chains), len(doc.Issues))

	if f.redact {
		verbose("Redacting secrets")
		redact.Document(doc)
	}

	// 4. Resolve collaborators for the selected mode
	var provider reasoning.Provider
	if opts.Mode != engine.ModeRepositoryOnly && !singleIsRepository(opts) {
		if !reasoning.HasCredentials() {
			return exitError(4, "no model credentials configured (set ANTHROPIC_API_KEY or OPENAI_API_KEY)")
		}
		provider, err = reasoning.ResolveProvider(cfg.Model)
		if err != nil {
			return exitError(4, "model provider error: %v", err)
		}
		verbose("Using provider: %s", provider.Name())
	}

	var validator engine.RepositoryValidator
	if opts.Mode != engine.ModeAIOnly {
		v, err := gitrepo.New(gitrepo.Options{
			Token:          cfg.Repository.Token,
			CacheDir:       cfg.Repository.CacheDir,
			ReferenceModel: cfg.Repository.ReferenceModel,
		})
		if err != nil {
			return exitError(2, "repository validator: %v", err)
		}
		validator = v
	}

	// 5. Build the engine
	store := engine.NewStore(cfg.StateDir)
	eng := engine.New(provider, validator, store, engine.Config{
		RetryAttempts:     cfg.Retry.Attempts,
		RetryInitialDelay: cfg.Retry.InitialDelay.Std(),
		CallTimeout:       cfg.Retry.Timeout.Std(),
		Settings:          settingsFrom(cfg, f),
	})
	eng.OnProgress(func(spec catalog.Spec, res engine.Result) {
		fmt.Fprintf(os.Stderr, "[%2d] %s %s\n",
			spec.ID, statusStyle(res.Status).Render(string(res.Status)), spec.Name)
	})

	// 6. Run, saving progress on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rs, err := eng.Run(ctx, doc, opts)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return exitError(1, "run cancelled; completed reviews are saved, resume with --resume %d", rs.NextPendingID)
		}
		return fmt.Errorf("run failed: %w", err)
	}

	// 7. Write the report
	rep := report.Aggregate(rs)
	outPath := f.out
	if outPath == "" {
		outPath = report.Filename(cfg.ReportsDir, doc.DocumentID)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(outPath, []byte(report.Render(rep)), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	verbose("Report written to %s", outPath)

	counts := rs.Counts()
	fmt.Printf("%d pass, %d fail, %d skipped, %d errored -> %s\n",
		counts[engine.StatusPass], counts[engine.StatusFail],
		counts[engine.StatusSkipped], counts[engine.StatusErrored], outPath)

	if counts[engine.StatusFail]+counts[engine.StatusErrored] > 0 {
		return exitError(1, "%d reviews did not pass", counts[engine.StatusFail]+counts[engine.StatusErrored])
	}
	return nil
}

// resolveMode maps the mode flags onto engine options. At most one of
// --ai-only, --repository-only, and --single-review may be set.
func resolveMode(f *reviewFlags) (engine.Options, error) {
	set := 0
	for _, b := range []bool{f.aiOnly, f.repoOnly, f.single != ""} {
		if b {
			set++
		}
	}
	if set > 1 {
		return engine.Options{}, fmt.Errorf("%w: pick one of --ai-only, --repository-only, --single-review", config.ErrConflictingModes)
	}

	if f.resume != -1 && (f.resume < 0 || f.resume > catalog.NextID()) {
		return engine.Options{}, fmt.Errorf("--resume %d outside review range 0..%d", f.resume, catalog.NextID())
	}

	opts := engine.Options{Mode: engine.ModeFull, Resume: f.resume}
	switch {
	case f.aiOnly:
		opts.Mode = engine.ModeAIOnly
	case f.repoOnly:
		opts.Mode = engine.ModeRepositoryOnly
	case f.single != "":
		spec, err := resolveSingle(f.single)
		if err != nil {
			return engine.Options{}, err
		}
		opts.Mode = engine.ModeSingle
		opts.SingleID = spec.ID
	}
	return opts, nil
}

// resolveSingle accepts a numeric id, a current review name, or a
// historical alias.
func resolveSingle(arg string) (catalog.Spec, error) {
	if id, err := strconv.Atoi(arg); err == nil {
		spec, ok := catalog.ByID(id)
		if !ok {
			return catalog.Spec{}, fmt.Errorf("no review with id %d", id)
		}
		return spec, nil
	}
	return catalog.Resolve(arg)
}

func singleIsRepository(opts engine.Options) bool {
	if opts.Mode != engine.ModeSingle {
		return false
	}
	spec, ok := catalog.ByID(opts.SingleID)
	return ok && spec.RequiresRepository
}

func settingsFrom(cfg *config.Config, f *reviewFlags) reasoning.Settings {
	s := reasoning.Settings{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
	if f.maxTokens > 0 {
		s.MaxTokens = f.maxTokens
	}
	if f.temperature > 0 {
		s.Temperature = f.temperature
	}
	if f.hasSeed {
		s.Seed = &f.seed
	}
	return s
}

type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

func exitError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}
