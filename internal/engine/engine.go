// Package engine orchestrates catalog execution against a parsed document:
// a resumable run over the ordered catalog, routing each review to the
// reasoning service or the repository validator, committing every result
// durably before moving on.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/cotcritic/internal/catalog"
	"github.com/dshills/cotcritic/internal/document"
	"github.com/dshills/cotcritic/internal/gitrepo"
	"github.com/dshills/cotcritic/internal/prompt"
	"github.com/dshills/cotcritic/internal/reasoning"
)

// Mode selects the catalog subset for a run.
type Mode string

const (
	ModeFull           Mode = "full"
	ModeAIOnly         Mode = "ai-only"
	ModeRepositoryOnly Mode = "repository-only"
	ModeSingle         Mode = "single"
)

// Options configures one run.
type Options struct {
	Mode Mode
	// SingleID is the spec to run when Mode is ModeSingle.
	SingleID int
	// Resume skips all specs with id < Resume; -1 disables. A prior
	// persisted RunState for the document is reloaded and extended.
	Resume int
	// Parallel is the worker count for overlapping collaborator requests.
	// Results are still committed in catalog order. <= 1 means sequential.
	Parallel int
}

// Config carries the retry policy and reasoning settings for a run.
type Config struct {
	RetryAttempts     int
	RetryInitialDelay time.Duration
	CallTimeout       time.Duration
	Settings          reasoning.Settings
}

func (c Config) withDefaults() Config {
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 5
	}
	if c.RetryInitialDelay <= 0 {
		c.RetryInitialDelay = 3 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Minute
	}
	return c
}

// CheckError reports a review whose collaborator call budget was
// exhausted. It is recorded as an Errored result, never a Fail.
type CheckError struct {
	SpecID int
	Err    error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("review %d errored: %v", e.SpecID, e.Err)
}

func (e *CheckError) Unwrap() error { return e.Err }

// RepositoryValidator is the contract the engine consumes for
// repository-routed reviews.
type RepositoryValidator interface {
	Validate(ctx context.Context, repoURL string, doc *document.Model) ([]gitrepo.Result, error)
}

// Engine runs reviews. Provider answers reasoning-routed specs, repo
// answers repository-routed ones; store may be nil for ephemeral runs.
type Engine struct {
	provider reasoning.Provider
	repo     RepositoryValidator
	store    *Store
	cfg      Config
	progress func(spec catalog.Spec, res Result)
}

func New(provider reasoning.Provider, repo RepositoryValidator, store *Store, cfg Config) *Engine {
	return &Engine{
		provider: provider,
		repo:     repo,
		store:    store,
		cfg:      cfg.withDefaults(),
	}
}

// OnProgress registers a callback fired after each committed result.
func (e *Engine) OnProgress(fn func(spec catalog.Spec, res Result)) {
	e.progress = fn
}

// repoKeys maps repository-routed catalog ids to validator sub-check keys.
var repoKeys = map[int]string{
	catalog.IDRepositorySetup:      gitrepo.KeySetup,
	catalog.IDRunArtifacts:         gitrepo.KeyArtifacts,
	catalog.IDSummaryFormat:        gitrepo.KeySummary,
	catalog.IDSolutionConsistency:  gitrepo.KeySolution,
	catalog.IDStatementConsistency: gitrepo.KeyStatement,
	catalog.IDMemoryHeadroom:       gitrepo.KeyMemory,
}

// Run executes the selected catalog subset in ascending id order. On
// cancellation the returned RunState holds exactly the committed results.
func (e *Engine) Run(ctx context.Context, doc *document.Model, opts Options) (*RunState, error) {
	if doc == nil {
		return nil, fmt.Errorf("engine.Run: nil document")
	}
	selected, err := selectSpecs(opts)
	if err != nil {
		return nil, err
	}

	rs, err := e.loadOrNewState(doc, opts)
	if err != nil {
		return nil, err
	}

	life, err := newRunLifecycle(rs.RunID)
	if err != nil {
		return nil, err
	}
	if err := life.transition("start"); err != nil {
		return nil, err
	}

	run := &runExec{eng: e, doc: doc, rs: rs}

	// Split the selection into skips and work, in catalog order.
	var toRun []catalog.Spec
	skipped := false
	for _, s := range selected {
		switch {
		case s.Deprecated && opts.Mode != ModeSingle:
			skipped = run.skip(s) || skipped
		case opts.Resume >= 0 && s.ID < opts.Resume:
			skipped = run.skip(s) || skipped
		default:
			toRun = append(toRun, s)
		}
	}
	if skipped {
		rs.recomputeNextPending()
		if e.store != nil {
			if err := e.store.Save(rs); err != nil {
				return rs, fmt.Errorf("engine.Run: persist run state: %w", err)
			}
		}
	}

	if opts.Parallel > 1 {
		err = run.runParallel(ctx, toRun, opts.Parallel)
	} else {
		err = run.runSequential(ctx, toRun)
	}
	if err != nil {
		return rs, err
	}

	if err := life.transition("finish"); err != nil {
		return rs, err
	}
	return rs, nil
}

// selectSpecs resolves the mode into an ordered catalog subset.
func selectSpecs(opts Options) ([]catalog.Spec, error) {
	if opts.Resume >= 0 && (opts.Resume > catalog.NextID()) {
		return nil, fmt.Errorf("engine: resume id %d outside catalog range 0..%d", opts.Resume, catalog.NextID())
	}
	switch opts.Mode {
	case ModeFull:
		return catalog.All(), nil
	case ModeAIOnly:
		return filterSpecs(func(s catalog.Spec) bool { return !s.RequiresRepository }), nil
	case ModeRepositoryOnly:
		return filterSpecs(func(s catalog.Spec) bool { return s.RequiresRepository }), nil
	case ModeSingle:
		s, ok := catalog.ByID(opts.SingleID)
		if !ok {
			return nil, fmt.Errorf("engine: no review with id %d", opts.SingleID)
		}
		return []catalog.Spec{s}, nil
	default:
		return nil, fmt.Errorf("engine: unknown mode %q", opts.Mode)
	}
}

func filterSpecs(keep func(catalog.Spec) bool) []catalog.Spec {
	var out []catalog.Spec
	for _, s := range catalog.All() {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

// loadOrNewState reloads the persisted state for resume runs, otherwise
// starts fresh.
func (e *Engine) loadOrNewState(doc *document.Model, opts Options) (*RunState, error) {
	if opts.Resume >= 0 && e.store != nil {
		rs, err := e.store.Load(doc.DocumentID)
		switch {
		case err == nil:
			return rs, nil
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("engine: load run state: %w", err)
		}
	}
	return &RunState{
		RunID:         uuid.NewString(),
		DocumentID:    doc.DocumentID,
		NextPendingID: 0,
	}, nil
}

// recomputeNextPending sets NextPendingID to the lowest catalog id with no
// recorded result.
func (rs *RunState) recomputeNextPending() {
	for _, s := range catalog.All() {
		if _, ok := rs.Result(s.ID); !ok {
			rs.NextPendingID = s.ID
			return
		}
	}
	rs.NextPendingID = catalog.NextID()
}

// runExec is the per-run mutable context.
type runExec struct {
	eng *Engine
	doc *document.Model
	rs  *RunState

	repoOnce    sync.Once
	repoResults map[string]gitrepo.Result
	repoErr     error
}

// skip records a Skipped result unless a prior one is preserved.
func (r *runExec) skip(s catalog.Spec) bool {
	if _, ok := r.rs.Result(s.ID); ok {
		return false
	}
	r.rs.SetResult(Result{SpecID: s.ID, Status: StatusSkipped, Timestamp: time.Now().UTC()})
	return true
}

func (r *runExec) runSequential(ctx context.Context, toRun []catalog.Spec) error {
	for _, s := range toRun {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := r.execute(ctx, s)
		if err != nil {
			return err
		}
		if err := r.commit(s, res); err != nil {
			return err
		}
	}
	return nil
}

// runParallel overlaps collaborator requests with a bounded worker pool but
// commits results strictly in catalog order.
func (r *runExec) runParallel(ctx context.Context, toRun []catalog.Spec, workers int) error {
	if len(toRun) == 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		idx int
		res Result
		err error
	}
	jobs := make(chan int)
	results := make(chan outcome)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				res, err := r.execute(ctx, toRun[idx])
				select {
				case results <- outcome{idx: idx, res: res, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		defer close(jobs)
		for i := range toRun {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	pending := map[int]outcome{}
	next := 0
	for out := range results {
		pending[out.idx] = out
		for {
			cur, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			if cur.err != nil {
				return cur.err
			}
			if err := r.commit(toRun[next], cur.res); err != nil {
				return err
			}
			next++
		}
	}
	if next < len(toRun) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("engine: worker pool stopped with %d reviews uncommitted", len(toRun)-next)
	}
	return nil
}

// execute produces a terminal result for one spec. A non-nil error means
// the run was cancelled and the in-flight result must be abandoned.
func (r *runExec) execute(ctx context.Context, spec catalog.Spec) (Result, error) {
	if spec.RequiresRepository {
		return r.executeRepository(ctx, spec)
	}
	return r.executeReasoning(ctx, spec)
}

func (r *runExec) executeReasoning(ctx context.Context, spec catalog.Spec) (Result, error) {
	req := prompt.Build(spec, r.doc)
	cfg := r.eng.cfg

	v, err := callResilient(ctx, cfg.RetryAttempts, cfg.RetryInitialDelay, cfg.CallTimeout,
		func(ctx context.Context) (*reasoning.Verdict, error) {
			out, err := r.eng.provider.Generate(ctx, req, cfg.Settings)
			if err != nil {
				return nil, err
			}
			return reasoning.ParseVerdict(out)
		})
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return errored(spec.ID, &CheckError{SpecID: spec.ID, Err: err}), nil
	}

	status := StatusPass
	if !v.Passed() {
		status = StatusFail
	}
	issues := make([]Issue, 0, len(v.Issues))
	for _, iss := range v.Issues {
		issues = append(issues, Issue{Message: iss.Message, Chain: iss.Chain, Thought: iss.Thought})
	}
	return Result{SpecID: spec.ID, Status: status, Issues: issues, Timestamp: time.Now().UTC()}, nil
}

func (r *runExec) executeRepository(ctx context.Context, spec catalog.Spec) (Result, error) {
	r.repoOnce.Do(func() {
		if r.eng.repo == nil {
			r.repoErr = errors.New("engine: no repository validator configured")
			return
		}
		cfg := r.eng.cfg
		results, err := callResilient(ctx, cfg.RetryAttempts, cfg.RetryInitialDelay, cfg.CallTimeout,
			func(ctx context.Context) ([]gitrepo.Result, error) {
				return r.eng.repo.Validate(ctx, r.doc.Metadata.RepositoryURL(), r.doc)
			})
		if err != nil {
			r.repoErr = err
			return
		}
		r.repoResults = make(map[string]gitrepo.Result, len(results))
		for _, res := range results {
			r.repoResults[res.Key] = res
		}
	})

	if r.repoErr != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return errored(spec.ID, r.repoErr), nil
	}

	key := repoKeys[spec.ID]
	res, ok := r.repoResults[key]
	if !ok {
		return errored(spec.ID, fmt.Errorf("engine: validator returned no result for %q", key)), nil
	}

	status := StatusPass
	if !res.Passed {
		status = StatusFail
	}
	issues := make([]Issue, 0, len(res.Issues))
	for _, msg := range res.Issues {
		issues = append(issues, Issue{Message: msg})
	}
	return Result{SpecID: spec.ID, Status: status, Issues: issues, Timestamp: time.Now().UTC()}, nil
}

// commit is the run's durability barrier: the result is recorded and the
// state persisted before the engine proceeds.
func (r *runExec) commit(spec catalog.Spec, res Result) error {
	r.rs.SetResult(res)
	r.rs.recomputeNextPending()
	if r.eng.store != nil {
		if err := r.eng.store.Save(r.rs); err != nil {
			return fmt.Errorf("engine: persist run state: %w", err)
		}
	}
	if r.eng.progress != nil {
		r.eng.progress(spec, res)
	}
	return nil
}

func errored(specID int, err error) Result {
	return Result{
		SpecID:    specID,
		Status:    StatusErrored,
		Issues:    []Issue{{Message: err.Error()}},
		Timestamp: time.Now().UTC(),
	}
}
