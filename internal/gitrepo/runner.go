package gitrepo

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// GitRunner abstracts git invocation so tests can materialize repositories
// without network access.
type GitRunner interface {
	RunGit(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecGit runs the real git binary.
type ExecGit struct{}

func (ExecGit) RunGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
