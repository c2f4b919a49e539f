package watch

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"git.home.luguber.info/inful/dashlink/internal/config"
	ferrors "git.home.luguber.info/inful/dashlink/internal/foundation/errors"
)

// Built-in ignore entries. Configuration can only add to these.
var (
	DefaultSuffixes = []string{".crswap"}
	DefaultNames    = []string{".DS_Store"}
	DefaultMarkers  = []string{".bridge"}
)

// IgnoreRules decides which paths never reach the pending sets. All rules are loaded at
// construction so Match depends only on its argument.
type IgnoreRules struct {
	root     string
	suffixes []string
	names    []string
	markers  []string
	git      gitignore.Matcher
}

// DefaultIgnoreRules returns the built-in rules only.
func DefaultIgnoreRules() *IgnoreRules {
	return &IgnoreRules{
		suffixes: slices.Clone(DefaultSuffixes),
		names:    slices.Clone(DefaultNames),
		markers:  slices.Clone(DefaultMarkers),
	}
}

// NewIgnoreRules extends the defaults with cfg. With UseGitignore set, every .gitignore
// below root is read once, nested files scoped to their directory.
func NewIgnoreRules(root string, cfg config.IgnoreConfig) (*IgnoreRules, error) {
	r := DefaultIgnoreRules()
	r.suffixes = append(r.suffixes, cfg.Suffixes...)
	r.names = append(r.names, cfg.Names...)
	r.markers = append(r.markers, cfg.Markers...)

	if !cfg.UseGitignore {
		return r, nil
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "resolve project root").
			WithContext("root", root).
			Build()
	}
	patterns, err := gitignore.ReadPatterns(osfs.New(abs), nil)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "read .gitignore patterns").
			WithContext("root", abs).
			Build()
	}
	r.root = abs
	r.git = gitignore.NewMatcher(patterns)
	return r, nil
}

// Match reports whether a file path is ignored: it ends with a transient-write suffix or
// an OS metadata name, or contains an internal marker anywhere.
func (r *IgnoreRules) Match(path string) bool {
	return r.match(path, false)
}

// MatchDir is Match for directories; it lets the watch source skip whole subtrees.
func (r *IgnoreRules) MatchDir(path string) bool {
	return r.match(path, true)
}

func (r *IgnoreRules) match(path string, isDir bool) bool {
	for _, s := range r.suffixes {
		if strings.HasSuffix(path, s) {
			return true
		}
	}
	for _, n := range r.names {
		if strings.HasSuffix(path, n) {
			return true
		}
	}
	for _, m := range r.markers {
		if strings.Contains(path, m) {
			return true
		}
	}
	if r.git == nil {
		return false
	}
	rel, ok := relativeTo(r.root, path)
	if !ok {
		return false
	}
	return r.git.Match(strings.Split(filepath.ToSlash(rel), "/"), isDir)
}

// relativeTo returns p relative to root. It reports false for root itself and for paths
// outside it; names that merely start with ".." (such as "..cache") are inside.
func relativeTo(root, p string) (string, bool) {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}
