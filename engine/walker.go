package engine

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/franksops/skycp/provider"
)

// WalkFunc is called for the root and for every entry below it. rel is the
// entry's path relative to the root ("" for the root itself).
type WalkFunc func(rel string, info provider.FileInfo) error

// Walker traverses a directory tree iteratively. It avoids deep recursion
// to prevent stack overflows on very deep directory structures.
type Walker struct {
	Source provider.Provider
}

// NewWalker creates a new iterative directory walker over src.
func NewWalker(src provider.Provider) *Walker {
	return &Walker{Source: src}
}

// Walk visits root and, when it is a directory, everything below it.
// Directories are visited before their contents.
func (w *Walker) Walk(ctx context.Context, root string, fn WalkFunc) error {
	stat, err := w.Source.Stat(ctx, root)
	if err != nil {
		return fmt.Errorf("failed to stat source %s: %w", root, err)
	}
	if err := fn("", stat); err != nil {
		return err
	}
	if !stat.IsDir() {
		return nil
	}

	stack := []string{""}
	for len(stack) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rel := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		dir := root
		if rel != "" {
			dir = filepath.Join(root, rel)
		}

		entries, err := w.Source.List(ctx, dir)
		if err != nil {
			return fmt.Errorf("failed to list directory %s: %w", dir, err)
		}

		for _, entry := range entries {
			entryRel := entry.Name()
			if rel != "" {
				entryRel = filepath.Join(rel, entry.Name())
			}

			if err := fn(entryRel, entry); err != nil {
				return err
			}
			if entry.IsDir() {
				stack = append(stack, entryRel)
			}
		}
	}

	return nil
}
