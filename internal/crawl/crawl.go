// Package crawl is the crawler: it walks configured roots, applies
// include/exclude eligibility globs, and streams eligible paths for
// reconciliation or direct indexing.
package crawl

import (
	"context"
	"io/fs"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// FileRef is one eligible file discovered under a crawled root.
type FileRef struct {
	Path    string // absolute path
	Size    int64
	ModTime int64 // unix millis
}

// Result is one item streamed from Walk: either a discovered file or a
// terminal walk error for one root.
type Result struct {
	File *FileRef
	Err  error
}

// Matcher implements the crawler's eligibility rule: include
// patterns match the file's base name, exclude patterns match its path
// relative to the crawled root.
type Matcher struct {
	include []string
	exclude []string
}

// NewMatcher validates the configured globs up front so a malformed
// pattern fails at startup rather than silently matching nothing mid-crawl.
func NewMatcher(include, exclude []string) (*Matcher, error) {
	for _, pat := range include {
		if !doublestar.ValidatePattern(pat) {
			return nil, invalidPattern(pat)
		}
	}
	for _, pat := range exclude {
		if !doublestar.ValidatePattern(pat) {
			return nil, invalidPattern(pat)
		}
	}
	return &Matcher{include: include, exclude: exclude}, nil
}

// Eligible reports whether relPath (slash-separated, relative to the
// crawled root) is eligible: some include pattern matches its base name
// and no exclude pattern matches its path.
func (m *Matcher) Eligible(relPath string) bool {
	name := filepath.Base(relPath)
	matched := len(m.include) == 0
	for _, pat := range m.include {
		if ok, _ := doublestar.Match(pat, name); ok {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for _, pat := range m.exclude {
		if ok, _ := doublestar.Match(pat, relPath); ok {
			return false
		}
	}
	return true
}

// ExcludesDir reports whether relDir (a directory, slash-separated) is
// fully excluded, letting Walk prune the subtree instead of visiting
// every file beneath it (e.g. "**/node_modules/**" excludes the whole
// node_modules tree, not just its files).
func (m *Matcher) ExcludesDir(relDir string) bool {
	probe := relDir + "/."
	for _, pat := range m.exclude {
		if ok, _ := doublestar.Match(pat, probe); ok {
			return true
		}
	}
	return false
}

// Walk streams every eligible file under root on results, honoring ctx
// cancellation. It closes results when the walk completes.
func Walk(ctx context.Context, root string, matcher *Matcher, results chan<- Result) {
	defer close(results)

	absRoot, err := filepath.Abs(root)
	if err != nil {
		send(ctx, results, Result{Err: err})
		return
	}

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return nil
		}

		rel, relErr := filepath.Rel(absRoot, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if matcher.ExcludesDir(rel) {
				return fs.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if !matcher.Eligible(rel) {
			return nil
		}

		info, statErr := d.Info()
		if statErr != nil {
			return nil
		}

		if !send(ctx, results, Result{File: &FileRef{
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime().UnixMilli(),
		}}) {
			return ctx.Err()
		}
		return nil
	})

	if err != nil && err != context.Canceled {
		send(ctx, results, Result{Err: err})
	}
}

func send(ctx context.Context, results chan<- Result, r Result) bool {
	select {
	case results <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

type patternError struct{ pattern string }

func (e *patternError) Error() string { return "invalid glob pattern: " + e.pattern }

func invalidPattern(p string) error { return &patternError{pattern: p} }

// JoinRoots streams Walk results from every configured root onto a single
// channel, closing it once every root has been fully walked or ctx is
// cancelled.
func JoinRoots(ctx context.Context, roots []string, matcher *Matcher) <-chan Result {
	out := make(chan Result, 64)
	go func() {
		defer close(out)
		for _, root := range roots {
			perRoot := make(chan Result, 64)
			go Walk(ctx, root, matcher, perRoot)
			for r := range perRoot {
				if !send(ctx, out, r) {
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}()
	return out
}
