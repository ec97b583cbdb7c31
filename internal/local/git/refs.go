package git

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/steveyegge/ccbridge/internal/local"
)

// ResolveRef implements local.Adapter.ResolveRef.
func (g *Git) ResolveRef(ctx context.Context, ref string) (string, error) {
	out, err := g.run(ctx, nil, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("%w: %s", local.ErrRefNotFound, ref)
	}
	return strings.TrimSpace(string(out)), nil
}

// IsAncestor implements local.Adapter.IsAncestor.
func (g *Git) IsAncestor(ctx context.Context, a, b string) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "merge-base", "--is-ancestor", a, b)
	cmd.Dir = g.repoRoot
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("git merge-base --is-ancestor failed: %w", err)
}

// MergeBase implements local.Adapter.MergeBase.
func (g *Git) MergeBase(ctx context.Context, a, b string) (string, error) {
	out, err := g.run(ctx, nil, "merge-base", a, b)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// UpdateRef implements local.Adapter.UpdateRef.
//
// The fast-forward guard is enforced here rather than left to git:
// update-ref moves refs unconditionally, so the adapter checks ancestry
// first unless force is set.
func (g *Git) UpdateRef(ctx context.Context, branch, newTip string, force bool) error {
	ref := branch
	if !strings.HasPrefix(ref, "refs/") {
		ref = "refs/heads/" + ref
	}

	current, err := g.ResolveRef(ctx, ref)
	switch {
	case errors.Is(err, local.ErrRefNotFound):
		// Creating a new branch is always allowed.
		current = ""
	case err != nil:
		return err
	}

	if current != "" && !force {
		ok, err := g.IsAncestor(ctx, current, newTip)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s -> %s", local.ErrNonFastForward, current, newTip)
		}
	}

	args := []string{"update-ref", ref, newTip}
	if current != "" {
		// Compare-and-swap on the old value so a concurrent move fails
		// loudly instead of being silently overwritten.
		args = append(args, current)
	}
	if _, err := g.run(ctx, nil, args...); err != nil {
		return err
	}
	return nil
}

// CreateTag implements local.Adapter.CreateTag.
func (g *Git) CreateTag(ctx context.Context, name, commitID string) error {
	if _, err := g.run(ctx, nil, "tag", "-f", name, commitID); err != nil {
		return err
	}
	return nil
}

// ResolveTag implements local.Adapter.ResolveTag.
func (g *Git) ResolveTag(ctx context.Context, name string) (string, error) {
	return g.ResolveRef(ctx, "refs/tags/"+name)
}
