// Package upgrade checks GitHub for newer releases and installs them.
package upgrade

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Release describes a published release newer than the running build.
type Release struct {
	Tag          string
	PublishedAt  time.Time
	ArchiveName  string
	ArchiveURL   string
	SignatureURL string
}

type Updater interface {
	// CheckForUpdate returns nil when the running build is current.
	CheckForUpdate(ctx context.Context) (*Release, error)
	ApplyUpdate(ctx context.Context, rel Release) error
}

// Newer reports whether latest should replace current. Dotted numeric
// versions are compared segment by segment; anything else falls back to a
// plain inequality check.
func Newer(latest, current string) bool {
	l, lok := parseVersion(latest)
	c, cok := parseVersion(current)
	if !lok || !cok {
		return strings.TrimSpace(latest) != strings.TrimSpace(current)
	}
	for i := 0; i < len(l) || i < len(c); i++ {
		var a, b int
		if i < len(l) {
			a = l[i]
		}
		if i < len(c) {
			b = c[i]
		}
		if a != b {
			return a > b
		}
	}
	return false
}

func parseVersion(v string) ([]int, bool) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	if v == "" {
		return nil, false
	}
	parts := strings.Split(v, ".")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}
