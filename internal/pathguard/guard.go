// Package pathguard confines client-supplied paths to a single root directory.
//
// Every server-side path flows through Guard.Resolve before any filesystem
// call is made with it. Resolve joins the untrusted segments onto the root,
// resolves ".", ".." and symbolic links, and only accepts the result when it
// is the root itself or nested below it.
package pathguard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// ErrOutsideRoot is returned when a path resolves outside of the root.
//
// Callers must report it to clients exactly like a missing resource.
var ErrOutsideRoot = errors.New("path resolves outside root")

// Guard resolves untrusted relative paths against a canonical root.
//
// Guard is immutable after New and safe for concurrent use.
type Guard struct {
	root string
}

// New returns a Guard for root. The root must exist; it is canonicalized once
// (absolute, symlinks evaluated) so later comparisons are purely lexical.
func New(root string) (*Guard, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("canonicalize root %s: %w", root, err)
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("stat root %s: %w", canonical, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", canonical)
	}
	return &Guard{root: canonical}, nil
}

// Root returns the canonical root directory.
func (g *Guard) Root() string {
	return g.root
}

// Resolve joins segments onto the root and returns the canonical path.
//
// Segments are client input: they are always treated as relative to the root,
// so a leading "/" does not reach the host filesystem root. The longest
// existing prefix of the joined path has its symlinks evaluated; the
// remaining, not yet existing components are appended lexically. The final
// path must equal the root or be nested below it, otherwise ErrOutsideRoot is
// returned.
func (g *Guard) Resolve(segments ...string) (string, error) {
	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, g.root)
	for _, s := range segments {
		s = filepath.FromSlash(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if strings.ContainsRune(s, 0) {
			return "", ErrOutsideRoot
		}
		parts = append(parts, s)
	}

	joined := filepath.Join(parts...)
	if !g.contains(joined) {
		return "", ErrOutsideRoot
	}

	canonical, err := canonicalize(joined)
	if err != nil {
		return "", err
	}
	if !g.contains(canonical) {
		return "", ErrOutsideRoot
	}
	return canonical, nil
}

// Rel returns the slash-separated path of abs relative to the root.
func (g *Guard) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(g.root, abs)
	if err != nil {
		return "", err
	}
	if !g.contains(abs) {
		return "", ErrOutsideRoot
	}
	return filepath.ToSlash(rel), nil
}

// IsRoot reports whether the canonical path p is the root itself.
func (g *Guard) IsRoot(p string) bool {
	return filepath.Clean(p) == g.root
}

func (g *Guard) contains(p string) bool {
	rel, err := filepath.Rel(g.root, filepath.Clean(p))
	if err != nil {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}

// canonicalize evaluates symlinks on the longest existing prefix of p and
// re-appends the missing tail.
func canonicalize(p string) (string, error) {
	existing := p
	var tail []string
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR) {
			return "", fmt.Errorf("canonicalize %s: %w", p, err)
		}
		// A present entry that still fails to resolve is a dangling link;
		// following it later could land anywhere.
		if _, lerr := os.Lstat(existing); lerr == nil {
			return "", ErrOutsideRoot
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return "", fmt.Errorf("canonicalize %s: %w", p, err)
		}
		tail = append(tail, filepath.Base(existing))
		existing = parent
	}
}
