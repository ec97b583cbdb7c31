package cleartool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/steveyegge/ccbridge/internal/remote"
)

// FetchContent implements remote.Adapter.FetchContent.
//
// cleartool get refuses to overwrite an existing destination, so the
// content lands in a fresh temp file that is removed afterwards.
func (t *Tool) FetchContent(ctx context.Context, v remote.Version) ([]byte, error) {
	tmp, err := os.CreateTemp("", "ccbridge-get-*")
	if err != nil {
		return nil, err
	}
	dest := tmp.Name()
	_ = tmp.Close()
	// get wants the destination to not exist.
	_ = os.Remove(dest)
	defer os.Remove(dest)

	src := extendedPath(filepath.FromSlash(v.Element), v.Version)
	if _, err := t.run(ctx, "get", "-to", dest, src); err != nil {
		return nil, err
	}

	content, err := os.ReadFile(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to read fetched content for %s@@%s: %w",
			v.Element, v.Version, err)
	}
	return content, nil
}
