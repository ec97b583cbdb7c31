package cleartool

import (
	"context"
	"fmt"
	"strings"

	"github.com/steveyegge/ccbridge/internal/remote"
)

// CreateLabel implements remote.Adapter.CreateLabel.
func (t *Tool) CreateLabel(ctx context.Context, name string, versions []remote.Version) error {
	if _, err := t.run(ctx, "mklbtype", "-nc", name); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("%w: %s", remote.ErrLabelExists, name)
		}
		return err
	}
	return t.applyLabel(ctx, name, versions, false)
}

// MoveLabel implements remote.Adapter.MoveLabel.
func (t *Tool) MoveLabel(ctx context.Context, name string, versions []remote.Version) error {
	if err := t.requireLabelType(ctx, name); err != nil {
		return err
	}
	return t.applyLabel(ctx, name, versions, true)
}

// ListLabel implements remote.Adapter.ListLabel.
func (t *Tool) ListLabel(ctx context.Context, name string) ([]remote.Version, error) {
	if err := t.requireLabelType(ctx, name); err != nil {
		return nil, err
	}

	out, err := t.run(ctx, "find", ".", "-version", fmt.Sprintf("lbtype(%s)", name), "-print")
	if err != nil {
		return nil, err
	}

	var versions []remote.Version
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "./"))
		if line == "" {
			continue
		}
		element, version, ok := strings.Cut(line, "@@")
		if !ok {
			continue
		}
		versions = append(versions, remote.Version{
			Element: element,
			Version: version,
			Op:      remote.OpCheckin,
		})
	}
	return versions, nil
}

func (t *Tool) requireLabelType(ctx context.Context, name string) error {
	if _, err := t.run(ctx, "describe", "-short", "lbtype:"+name); err != nil {
		return fmt.Errorf("%w: %s", remote.ErrLabelNotFound, name)
	}
	return nil
}

func (t *Tool) applyLabel(ctx context.Context, name string, versions []remote.Version, replace bool) error {
	for _, v := range versions {
		args := []string{"mklabel", "-nc"}
		if replace {
			args = append(args, "-replace")
		}
		args = append(args, name, extendedPath(v.Element, v.Version))
		if _, err := t.run(ctx, args...); err != nil {
			return err
		}
	}
	return nil
}
