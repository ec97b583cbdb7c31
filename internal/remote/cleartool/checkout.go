package cleartool

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/steveyegge/ccbridge/internal/remote"
)

// Checkout implements remote.Adapter.Checkout.
//
// Existing elements get a reserved checkout so no other actor can check in
// underneath us. An empty fromVersion instead checks out the parent
// directory, reserving the catalog slot for the element Checkin will create.
func (t *Tool) Checkout(ctx context.Context, element, fromVersion string) (remote.Checkout, error) {
	co := remote.Checkout{Element: element, FromVersion: fromVersion}

	if fromVersion == "" {
		dir := parentOf(element)
		if _, err := t.run(ctx, "co", "-reserved", "-nc", dir); err != nil {
			return remote.Checkout{}, err
		}
		return co, nil
	}

	if _, err := t.run(ctx, "co", "-reserved", "-nc", element); err != nil {
		return remote.Checkout{}, err
	}
	return co, nil
}

// Checkin implements remote.Adapter.Checkin.
//
// The staleness check happens here: the checked-out version's predecessor
// must still be the checkout base. A reserved checkout prevents the tip
// moving after Checkout succeeds, so a mismatch means the sync point the
// caller checked out from was already behind the element tip.
func (t *Tool) Checkin(ctx context.Context, co remote.Checkout, content []byte, comment string) (remote.Version, error) {
	if comment == "" {
		comment = "<empty message>"
	}

	abs := filepath.Join(t.view, filepath.FromSlash(co.Element))

	if co.FromVersion == "" {
		return t.checkinNew(ctx, co, abs, content, comment)
	}

	pred, err := t.describeFmt(ctx, co.Element, "%PVn")
	if err != nil {
		return remote.Version{}, err
	}
	if pred != co.FromVersion {
		return remote.Version{}, fmt.Errorf("%w: %s checked out from %s but tip is %s",
			remote.ErrStaleCheckout, co.Element, co.FromVersion, pred)
	}

	if err := writeWritable(abs, content); err != nil {
		return remote.Version{}, err
	}
	if _, err := t.run(ctx, "ci", "-identical", "-c", comment, co.Element); err != nil {
		return remote.Version{}, err
	}

	return t.describeVersion(ctx, co.Element, comment)
}

// checkinNew creates a new element from a directory checkout: write the
// file, mkelem it with immediate checkin, then check the directory in.
func (t *Tool) checkinNew(ctx context.Context, co remote.Checkout, abs string, content []byte, comment string) (remote.Version, error) {
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return remote.Version{}, err
	}
	if err := writeWritable(abs, content); err != nil {
		return remote.Version{}, err
	}
	if _, err := t.run(ctx, "mkelem", "-ci", "-c", comment, co.Element); err != nil {
		return remote.Version{}, err
	}
	if _, err := t.run(ctx, "ci", "-identical", "-c", comment, parentOf(co.Element)); err != nil {
		return remote.Version{}, err
	}
	return t.describeVersion(ctx, co.Element, comment)
}

// CancelCheckout implements remote.Adapter.CancelCheckout.
func (t *Tool) CancelCheckout(ctx context.Context, co remote.Checkout) error {
	target := co.Element
	if co.FromVersion == "" {
		target = parentOf(co.Element)
	}
	if _, err := t.run(ctx, "unco", "-rm", target); err != nil {
		return err
	}
	return nil
}

// RemoveElement implements remote.Adapter.RemoveElement.
//
// Removal is a catalog change: check out the parent directory, rmname the
// element, check the directory back in. On failure the directory checkout
// is cancelled so no lock leaks.
func (t *Tool) RemoveElement(ctx context.Context, element, comment string) error {
	dir := parentOf(element)
	if _, err := t.run(ctx, "co", "-reserved", "-nc", dir); err != nil {
		return err
	}
	if _, err := t.run(ctx, "rmname", "-c", comment, element); err != nil {
		_, _ = t.run(ctx, "unco", "-rm", dir)
		return err
	}
	if _, err := t.run(ctx, "ci", "-identical", "-c", comment, dir); err != nil {
		_, _ = t.run(ctx, "unco", "-rm", dir)
		return err
	}
	return nil
}

// CurrentVersion implements remote.Adapter.CurrentVersion.
func (t *Tool) CurrentVersion(ctx context.Context, element string) (remote.Version, error) {
	return t.describeVersion(ctx, element, "")
}

// describeVersion reads back the element's current version metadata after
// a checkin.
func (t *Tool) describeVersion(ctx context.Context, element, comment string) (remote.Version, error) {
	out, err := t.describeFmt(ctx, element, "%Vn|%Nd|%u")
	if err != nil {
		return remote.Version{}, err
	}
	fields := strings.SplitN(out, delim, 3)
	if len(fields) != 3 {
		return remote.Version{}, fmt.Errorf("unexpected describe output for %s: %q", element, out)
	}
	when, err := time.ParseInLocation(histTimeLayout, fields[1], time.Local)
	if err != nil {
		when = time.Now()
	}
	return remote.Version{
		Element: element,
		Version: fields[0],
		Op:      remote.OpCheckin,
		Author:  fields[2],
		Time:    when,
		Comment: comment,
	}, nil
}

func (t *Tool) describeFmt(ctx context.Context, element, format string) (string, error) {
	out, err := t.run(ctx, "describe", "-fmt", format, element)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// parentOf returns the parent directory element, "." for top-level names.
func parentOf(element string) string {
	return path.Dir(element)
}

// writeWritable writes content to abs, clearing the read-only bit that
// cleartool leaves on checked-in files first.
func writeWritable(abs string, content []byte) error {
	if info, err := os.Stat(abs); err == nil {
		_ = os.Chmod(abs, info.Mode()|0o200)
	}
	if err := os.WriteFile(abs, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", abs, err)
	}
	return nil
}
