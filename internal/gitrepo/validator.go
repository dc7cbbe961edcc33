// Package gitrepo validates the code repository linked from a transcript's
// metadata: reachability, clone, and a fixed set of structural sub-checks
// over the working tree.
package gitrepo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-github/v69/github"
	"golang.org/x/oauth2"

	"github.com/dshills/cotcritic/internal/document"
)

// Sub-check keys, mapped onto catalog ids by the engine.
const (
	KeySetup     = "repository-setup"
	KeyArtifacts = "run-artifacts"
	KeySummary   = "summary-format"
	KeySolution  = "solution-consistency"
	KeyStatement = "statement-consistency"
	KeyMemory    = "memory-headroom"
)

// Result is one sub-check outcome, consumed like a reasoning verdict.
type Result struct {
	Key    string
	Passed bool
	Issues []string
}

// Options configures a Validator.
type Options struct {
	// Token is an optional GitHub token; public repositories work without one.
	Token string
	// Git executes clone operations; defaults to ExecGit.
	Git GitRunner
	// CacheDir holds clones; one subdirectory per repository, reused across runs.
	CacheDir string
	// ReferenceModel, when set, names the runs/<model>/ directory that must
	// hold solution artifacts. Empty means any model directory qualifies.
	ReferenceModel string
	// APIBaseURL overrides the GitHub API endpoint (tests).
	APIBaseURL string
}

// Validator checks a linked repository against the parsed document.
type Validator struct {
	gh             *github.Client
	git            GitRunner
	cacheDir       string
	referenceModel string
}

// New builds a Validator. The GitHub client authenticates with the token
// when one is given.
func New(opts Options) (*Validator, error) {
	var hc *http.Client
	if opts.Token != "" {
		hc = oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}))
	}
	gh := github.NewClient(hc)
	if opts.APIBaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(opts.APIBaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("gitrepo.New: %w", err)
		}
		gh.BaseURL = base
	}

	git := opts.Git
	if git == nil {
		git = ExecGit{}
	}
	cacheDir := opts.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "cotcritic-repos")
	}

	return &Validator{
		gh:             gh,
		git:            git,
		cacheDir:       cacheDir,
		referenceModel: opts.ReferenceModel,
	}, nil
}

// Validate confirms the repository is reachable, clones it once into the
// cache, and runs every sub-check against the working tree. A non-nil error
// means no sub-check could run at all (unreachable repo or failed clone).
func (v *Validator) Validate(ctx context.Context, repoURL string, doc *document.Model) ([]Result, error) {
	owner, repo, err := splitRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	if _, _, err := v.gh.Repositories.Get(ctx, owner, repo); err != nil {
		return nil, fmt.Errorf("gitrepo.Validate: repository %s/%s unreachable: %w", owner, repo, err)
	}

	dir, err := v.clone(ctx, repoURL, owner, repo)
	if err != nil {
		return nil, err
	}

	return []Result{
		v.checkSetup(dir),
		v.checkRunArtifacts(dir),
		v.checkSummaryFormat(dir),
		v.checkSolutionConsistency(dir, doc),
		v.checkStatementConsistency(dir, doc),
		v.checkMemoryHeadroom(dir, doc),
	}, nil
}

// clone fetches the repository into the cache, reusing an existing clone.
func (v *Validator) clone(ctx context.Context, repoURL, owner, repo string) (string, error) {
	dir := filepath.Join(v.cacheDir, owner+"-"+repo)
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return dir, nil
	}
	if err := os.MkdirAll(v.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("gitrepo.clone: %w", err)
	}
	if _, err := v.git.RunGit(ctx, "", "clone", "--depth", "1", repoURL, dir); err != nil {
		return "", fmt.Errorf("gitrepo.clone: %w", err)
	}
	return dir, nil
}

// splitRepoURL extracts owner and repository name from a GitHub URL.
func splitRepoURL(repoURL string) (owner, repo string, err error) {
	if repoURL == "" {
		return "", "", fmt.Errorf("gitrepo: no repository URL in document metadata")
	}
	u, err := url.Parse(strings.TrimSpace(repoURL))
	if err != nil {
		return "", "", fmt.Errorf("gitrepo: bad repository URL %q: %w", repoURL, err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("gitrepo: repository URL %q has no owner/name path", repoURL)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}
