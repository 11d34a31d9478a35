package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// FileSink writes artifacts below a root directory.
type FileSink struct {
	root string
}

// NewFileSink creates a sink rooted at dir, creating it if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		return nil, errors.New("artifact directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return &FileSink{root: dir}, nil
}

// Root returns the root directory of the sink.
func (s *FileSink) Root() string {
	return s.root
}

// path resolves dir below the root. dir must be a non-empty local path.
func (s *FileSink) path(dir string) (string, error) {
	rel := filepath.FromSlash(dir)
	if rel == "" || rel == "." || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("artifact directory %q escapes the sink root", dir)
	}
	return filepath.Join(s.root, rel), nil
}

func (s *FileSink) Write(ctx context.Context, dir string, files map[string][]byte) error {
	target, err := s.path(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return err
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !filepath.IsLocal(name) || filepath.Base(name) != name {
			return fmt.Errorf("artifact file name %q is not a plain file name", name)
		}
		path := filepath.Join(target, name)
		content := files[name]
		if content == nil {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			continue
		}
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileSink) Remove(_ context.Context, dir string) error {
	target, err := s.path(dir)
	if err != nil {
		return err
	}
	return os.RemoveAll(target)
}
