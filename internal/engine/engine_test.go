package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dshills/cotcritic/internal/catalog"
	"github.com/dshills/cotcritic/internal/document"
	"github.com/dshills/cotcritic/internal/gitrepo"
	"github.com/dshills/cotcritic/internal/reasoning"
)

const engineDoc = `**Category:** Algorithms
**GitHub URL:** https://github.com/acme/2087-widget
**Number of Chains:** 2

**[Prompt]**
Compute the widget count.

**[Assistant]**
**[CHAIN_01]**

**[THOUGHT_01_01]** Count the widgets one by one.

**[CHAIN_02]**

**[THOUGHT_02_01]** Check the total against the inventory.

**[Response]**
The answer is 42.
`

const passVerdict = `{"verdict":"pass","issues":[]}`

func testDoc(t *testing.T) *document.Model {
	t.Helper()
	m, err := document.Parse(engineDoc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return m
}

func testConfig() Config {
	return Config{
		RetryAttempts:     1,
		RetryInitialDelay: time.Millisecond,
		CallTimeout:       5 * time.Second,
	}
}

type stubValidator struct {
	results []gitrepo.Result
	err     error
	calls   int
}

func (s *stubValidator) Validate(_ context.Context, _ string, _ *document.Model) ([]gitrepo.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func allRepoPass() []gitrepo.Result {
	keys := []string{
		gitrepo.KeySetup, gitrepo.KeyArtifacts, gitrepo.KeySummary,
		gitrepo.KeySolution, gitrepo.KeyStatement, gitrepo.KeyMemory,
	}
	out := make([]gitrepo.Result, 0, len(keys))
	for _, k := range keys {
		out = append(out, gitrepo.Result{Key: k, Passed: true})
	}
	return out
}

func TestRunFullAllPass(t *testing.T) {
	store := NewStore(t.TempDir())
	provider := &reasoning.MockProvider{Response: passVerdict}
	validator := &stubValidator{results: allRepoPass()}
	eng := New(provider, validator, store, testConfig())

	doc := testDoc(t)
	rs, err := eng.Run(context.Background(), doc, Options{Mode: ModeFull, Resume: -1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := len(rs.Results), len(catalog.All()); got != want {
		t.Fatalf("results = %d, want %d", got, want)
	}
	for _, res := range rs.Results {
		spec, _ := catalog.ByID(res.SpecID)
		want := StatusPass
		if spec.Deprecated {
			want = StatusSkipped
		}
		if res.Status != want {
			t.Errorf("id %d: status = %s, want %s", res.SpecID, res.Status, want)
		}
	}
	if validator.calls != 1 {
		t.Errorf("validator calls = %d, want 1", validator.calls)
	}
	if rs.NextPendingID != catalog.NextID() {
		t.Errorf("NextPendingID = %d, want %d", rs.NextPendingID, catalog.NextID())
	}

	loaded, err := store.Load(doc.DocumentID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.RunID != rs.RunID || len(loaded.Results) != len(rs.Results) {
		t.Errorf("persisted state diverges: %+v", loaded)
	}
}

func TestRunAIOnlySkipsRepositorySpecs(t *testing.T) {
	provider := &reasoning.MockProvider{Response: passVerdict}
	eng := New(provider, nil, nil, testConfig())

	rs, err := eng.Run(context.Background(), testDoc(t), Options{Mode: ModeAIOnly, Resume: -1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, res := range rs.Results {
		spec, _ := catalog.ByID(res.SpecID)
		if spec.RequiresRepository {
			t.Errorf("id %d: repository review ran in ai-only mode", res.SpecID)
		}
	}
	if _, ok := rs.Result(catalog.IDRepositorySetup); ok {
		t.Error("repository setup review has a result in ai-only mode")
	}
}

func TestRunRepositoryOnly(t *testing.T) {
	validator := &stubValidator{results: allRepoPass()}
	eng := New(nil, validator, nil, testConfig())

	rs, err := eng.Run(context.Background(), testDoc(t), Options{Mode: ModeRepositoryOnly, Resume: -1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rs.Results) != 6 {
		t.Fatalf("results = %d, want 6", len(rs.Results))
	}
	for _, res := range rs.Results {
		if res.Status != StatusPass {
			t.Errorf("id %d: status = %s", res.SpecID, res.Status)
		}
	}
	if validator.calls != 1 {
		t.Errorf("validator calls = %d, want 1", validator.calls)
	}
}

func TestRunSingleExecutesDeprecated(t *testing.T) {
	provider := &reasoning.MockProvider{Response: passVerdict}
	eng := New(provider, nil, nil, testConfig())

	deprecatedID := -1
	for _, s := range catalog.All() {
		if s.Deprecated {
			deprecatedID = s.ID
			break
		}
	}
	if deprecatedID < 0 {
		t.Skip("no deprecated review in catalog")
	}

	rs, err := eng.Run(context.Background(), testDoc(t), Options{Mode: ModeSingle, SingleID: deprecatedID, Resume: -1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	res, ok := rs.Result(deprecatedID)
	if !ok || res.Status != StatusPass {
		t.Fatalf("deprecated single run: %+v", res)
	}
}

func TestRunPartialFailureIsolated(t *testing.T) {
	spec, _ := catalog.ByID(0)
	provider := &reasoning.MockProvider{Func: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Review: "+spec.Name) {
			return "", errors.New("upstream unavailable")
		}
		return passVerdict, nil
	}}
	eng := New(provider, nil, nil, testConfig())

	rs, err := eng.Run(context.Background(), testDoc(t), Options{Mode: ModeAIOnly, Resume: -1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	res, ok := rs.Result(0)
	if !ok || res.Status != StatusErrored {
		t.Fatalf("id 0: %+v", res)
	}
	if len(res.Issues) == 0 || !strings.Contains(res.Issues[0].Message, "upstream unavailable") {
		t.Errorf("id 0 issues = %+v", res.Issues)
	}
	for _, other := range rs.Results {
		if other.SpecID == 0 {
			continue
		}
		if other.Status != StatusPass && other.Status != StatusSkipped {
			t.Errorf("id %d: status = %s, want pass", other.SpecID, other.Status)
		}
	}
}

func TestRunFailVerdictCarriesLocations(t *testing.T) {
	fail := `{"verdict":"fail","issues":[{"message":"heading predicts the outcome","chain":2,"thought":1}]}`
	spec, _ := catalog.ByID(24)
	provider := &reasoning.MockProvider{Func: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Review: "+spec.Name) {
			return fail, nil
		}
		return passVerdict, nil
	}}
	eng := New(provider, nil, nil, testConfig())

	rs, err := eng.Run(context.Background(), testDoc(t), Options{Mode: ModeAIOnly, Resume: -1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	res, ok := rs.Result(24)
	if !ok || res.Status != StatusFail {
		t.Fatalf("id 24: %+v", res)
	}
	if len(res.Issues) != 1 || res.Issues[0].Chain != 2 || res.Issues[0].Thought != 1 {
		t.Errorf("issues = %+v", res.Issues)
	}
}

func TestRepositoryUnreachableErrorsAllRepoSpecs(t *testing.T) {
	validator := &stubValidator{err: errors.New("repository acme/2087-widget unreachable")}
	eng := New(nil, validator, nil, testConfig())

	rs, err := eng.Run(context.Background(), testDoc(t), Options{Mode: ModeRepositoryOnly, Resume: -1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rs.Results) != 6 {
		t.Fatalf("results = %d, want 6", len(rs.Results))
	}
	for _, res := range rs.Results {
		if res.Status != StatusErrored {
			t.Errorf("id %d: status = %s, want errored", res.SpecID, res.Status)
		}
		if len(res.Issues) == 0 || !strings.Contains(res.Issues[0].Message, "unreachable") {
			t.Errorf("id %d issues = %+v", res.SpecID, res.Issues)
		}
	}
	if validator.calls != 1 {
		t.Errorf("validator calls = %d, want 1", validator.calls)
	}
}

func TestResumeSkipsEarlierSpecs(t *testing.T) {
	store := NewStore(t.TempDir())
	provider := &reasoning.MockProvider{Response: passVerdict}
	validator := &stubValidator{results: allRepoPass()}
	eng := New(provider, validator, store, testConfig())

	rs, err := eng.Run(context.Background(), testDoc(t), Options{Mode: ModeFull, Resume: 5})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for id := 0; id < 5; id++ {
		res, ok := rs.Result(id)
		if !ok || res.Status != StatusSkipped {
			t.Errorf("id %d: %+v, want skipped", id, res)
		}
	}
	res, ok := rs.Result(5)
	if !ok || res.Status != StatusPass {
		t.Errorf("id 5: %+v, want pass", res)
	}
}

func TestResumePreservesPriorResults(t *testing.T) {
	store := NewStore(t.TempDir())
	doc := testDoc(t)

	prior := &RunState{RunID: "prior-run", DocumentID: doc.DocumentID}
	for id := 0; id < 3; id++ {
		prior.SetResult(Result{
			SpecID:    id,
			Status:    StatusFail,
			Issues:    []Issue{{Message: "style violation"}},
			Timestamp: time.Now().UTC(),
		})
	}
	if err := store.Save(prior); err != nil {
		t.Fatalf("Save: %v", err)
	}

	provider := &reasoning.MockProvider{Response: passVerdict}
	validator := &stubValidator{results: allRepoPass()}
	eng := New(provider, validator, store, testConfig())

	rs, err := eng.Run(context.Background(), doc, Options{Mode: ModeFull, Resume: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rs.RunID != "prior-run" {
		t.Errorf("RunID = %q, want prior run preserved", rs.RunID)
	}
	for id := 0; id < 3; id++ {
		res, ok := rs.Result(id)
		if !ok || res.Status != StatusFail {
			t.Errorf("id %d: %+v, want prior fail preserved", id, res)
		}
	}
	res, ok := rs.Result(3)
	if !ok || res.Status != StatusPass {
		t.Errorf("id 3: %+v, want pass", res)
	}
}

func TestResumeOutOfRange(t *testing.T) {
	eng := New(&reasoning.MockProvider{Response: passVerdict}, nil, nil, testConfig())
	_, err := eng.Run(context.Background(), testDoc(t), Options{Mode: ModeFull, Resume: catalog.NextID() + 1})
	if err == nil {
		t.Fatal("expected out-of-range resume error")
	}
}

func TestRunSingleUnknownID(t *testing.T) {
	eng := New(&reasoning.MockProvider{Response: passVerdict}, nil, nil, testConfig())
	_, err := eng.Run(context.Background(), testDoc(t), Options{Mode: ModeSingle, SingleID: 99, Resume: -1})
	if err == nil {
		t.Fatal("expected unknown id error")
	}
}

func TestRunSingleMatchesFullRun(t *testing.T) {
	spec, _ := catalog.ByID(7)
	provider := &reasoning.MockProvider{Func: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Review: "+spec.Name) {
			return `{"verdict":"fail","issues":[{"message":"restates the statement"}]}`, nil
		}
		return passVerdict, nil
	}}
	validator := &stubValidator{results: allRepoPass()}

	full := New(provider, validator, nil, testConfig())
	fullState, err := full.Run(context.Background(), testDoc(t), Options{Mode: ModeFull, Resume: -1})
	if err != nil {
		t.Fatalf("full run: %v", err)
	}
	single := New(provider, validator, nil, testConfig())
	singleState, err := single.Run(context.Background(), testDoc(t), Options{Mode: ModeSingle, SingleID: 7, Resume: -1})
	if err != nil {
		t.Fatalf("single run: %v", err)
	}

	fullRes, _ := fullState.Result(7)
	singleRes, _ := singleState.Result(7)
	if fullRes.Status != singleRes.Status {
		t.Errorf("status diverges: full=%s single=%s", fullRes.Status, singleRes.Status)
	}
	if len(singleState.Results) != 1 {
		t.Errorf("single run recorded %d results, want 1", len(singleState.Results))
	}
}

func TestRunParallelCommitsInOrder(t *testing.T) {
	provider := &reasoning.MockProvider{Response: passVerdict}
	eng := New(provider, nil, nil, testConfig())

	var committed []int
	eng.OnProgress(func(spec catalog.Spec, _ Result) {
		committed = append(committed, spec.ID)
	})

	rs, err := eng.Run(context.Background(), testDoc(t), Options{Mode: ModeAIOnly, Resume: -1, Parallel: 4})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := 1; i < len(committed); i++ {
		if committed[i] <= committed[i-1] {
			t.Fatalf("commit order not ascending: %v", committed)
		}
	}
	want := 0
	for _, s := range catalog.All() {
		if !s.RequiresRepository && !s.Deprecated {
			want++
		}
	}
	if len(committed) != want {
		t.Errorf("committed %d reviews, want %d", len(committed), want)
	}
	if got := rs.Counts()[StatusPass]; got != want {
		t.Errorf("pass count = %d, want %d", got, want)
	}
}

type cancellingProvider struct {
	after  int
	calls  int
	cancel context.CancelFunc
}

func (p *cancellingProvider) Generate(ctx context.Context, _ string, _ reasoning.Settings) (string, error) {
	p.calls++
	if p.calls > p.after {
		p.cancel()
		<-ctx.Done()
		return "", ctx.Err()
	}
	return passVerdict, nil
}

func (p *cancellingProvider) Name() string { return "cancelling" }

func TestCancellationAbandonsInFlightReview(t *testing.T) {
	store := NewStore(t.TempDir())
	doc := testDoc(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	provider := &cancellingProvider{after: 3, cancel: cancel}
	eng := New(provider, nil, store, testConfig())

	_, err := eng.Run(ctx, doc, Options{Mode: ModeAIOnly, Resume: -1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}

	loaded, err := store.Load(doc.DocumentID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	counts := loaded.Counts()
	if counts[StatusPass] != 3 {
		t.Errorf("committed passes = %d, want 3", counts[StatusPass])
	}
	if counts[StatusErrored] != 0 {
		t.Errorf("in-flight review leaked an errored result: %+v", loaded.Results)
	}
}
