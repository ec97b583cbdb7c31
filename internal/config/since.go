package config

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var sinceLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseSince turns a since expression into a point in time. Fixed
// layouts are tried first, then natural English ("last monday",
// "3 weeks ago") relative to now. Empty input means no bound.
func ParseSince(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range sinceLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing since %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("since %q: not a date or a recognizable phrase", s)
	}
	return r.Time, nil
}
