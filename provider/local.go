package provider

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gitlab.com/tozd/go/errors"
)

var _ Provider = (*LocalProvider)(nil)

// LocalProvider implements Provider for posix-compliant local filesystems.
type LocalProvider struct {
	basePath string
	policy   MetadataPolicy
}

// NewLocalProvider creates a new LocalProvider rooted at basePath.
// If basePath is empty, it acts upon absolute or relative paths directly.
func NewLocalProvider(basePath string) *LocalProvider {
	return &LocalProvider{
		basePath: basePath,
		policy:   DefaultMetadataPolicy,
	}
}

// WithMetadataPolicy replaces the attributes applied to written files.
func (p *LocalProvider) WithMetadataPolicy(policy MetadataPolicy) *LocalProvider {
	p.policy = policy
	return p
}

func (p *LocalProvider) resolve(path string) string {
	if p.basePath == "" {
		return path
	}
	return filepath.Join(p.basePath, filepath.Clean(path))
}

// Location returns the absolute file:// URL of path with symlinks resolved.
func (p *LocalProvider) Location(path string) string {
	full := p.resolve(path)
	if abs, err := filepath.Abs(full); err == nil {
		full = abs
	}
	// Resolve the deepest existing ancestor and keep the rest as written.
	rest := ""
	for dir := full; ; {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			full = filepath.Join(resolved, rest)
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		rest = filepath.Join(filepath.Base(dir), rest)
		dir = parent
	}
	return "file://" + filepath.ToSlash(full)
}

func (p *LocalProvider) Stat(ctx context.Context, path string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(p.resolve(path))
	if err != nil {
		return nil, err
	}
	return WrapOSFileInfo(info), nil
}

func (p *LocalProvider) List(ctx context.Context, path string) ([]FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(p.resolve(path))
	if err != nil {
		return nil, err
	}

	infos := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue // skip files that disappeared between ReadDir and Info
		}
		if entry.Type()&fs.ModeSymlink != 0 {
			// Report what the link points at; a dangling link stays a file.
			if target, err := os.Stat(filepath.Join(p.resolve(path), entry.Name())); err == nil {
				info = target
			}
		}
		infos = append(infos, WrapOSFileInfo(info))
	}
	return infos, nil
}

func (p *LocalProvider) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(p.resolve(path))
}

// OpenWrite writes into a hidden temporary file next to path. Close renames it
// over path; Abort removes it. The parent directory must already exist.
func (p *LocalProvider) OpenWrite(ctx context.Context, path string, metadata FileInfo) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath := p.resolve(path)
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), "."+filepath.Base(fullPath)+".tmp-*")
	if err != nil {
		return nil, err
	}

	return &localWriteCloser{
		File:     tmp,
		fullPath: fullPath,
		metadata: metadata,
		policy:   p.policy,
	}, nil
}

// Reset removes path recursively and recreates it empty.
func (p *LocalProvider) Reset(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fullPath := p.resolve(path)
	if err := os.RemoveAll(fullPath); err != nil {
		return errors.Errorf("removing %s: %w", fullPath, err)
	}
	if err := os.MkdirAll(fullPath, 0o755); err != nil {
		return errors.Errorf("creating %s: %w", fullPath, err)
	}
	return nil
}

// localWriteCloser commits the temporary file on Close.
type localWriteCloser struct {
	*os.File
	fullPath string
	metadata FileInfo
	policy   MetadataPolicy
	done     bool
}

func (l *localWriteCloser) Close() error {
	if l.done {
		return os.ErrClosed
	}
	l.done = true

	tmpPath := l.File.Name()
	if err := l.File.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	// CreateTemp uses 0600; widen to the usual default before the policy runs.
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	// Attribute failures (ownership, foreign filesystems) do not fail the copy.
	_ = l.policy.Apply(tmpPath, l.metadata)

	if err := os.Rename(tmpPath, l.fullPath); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func (l *localWriteCloser) Abort() error {
	if l.done {
		return nil
	}
	l.done = true

	tmpPath := l.File.Name()
	_ = l.File.Close()
	return os.Remove(tmpPath)
}
