package secret

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Provider resolves secrets by reference string.
//
// Implementations must be safe for concurrent use and must not log secret values.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
	Close() error
}

// FileProvider reads secrets from files, as mounted by Docker or Kubernetes.
// Trailing whitespace is trimmed.
type FileProvider struct {
	// Root, when set, confines refs to files under this directory and makes
	// relative refs relative to it.
	Root string
}

// Name returns "file".
func (p *FileProvider) Name() string { return "file" }

// Resolve reads the file named by ref.
func (p *FileProvider) Resolve(_ context.Context, ref string) (string, error) {
	path, err := p.path(ref)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("secret: read %s: %w", filepath.Base(path), err)
	}
	return strings.TrimRight(string(data), " \t\r\n"), nil
}

func (p *FileProvider) path(ref string) (string, error) {
	if p.Root == "" {
		return filepath.Clean(ref), nil
	}
	root, err := filepath.Abs(p.Root)
	if err != nil {
		return "", err
	}
	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes %s", ErrInvalidRef, ref, p.Root)
	}
	return path, nil
}

// Close is a no-op.
func (p *FileProvider) Close() error { return nil }

// EnvProvider reads secrets from environment variables.
type EnvProvider struct{}

// Name returns "env".
func (EnvProvider) Name() string { return "env" }

// Resolve returns the value of the variable named ref.
func (EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := os.LookupEnv(ref)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, ref)
	}
	return v, nil
}

// Close is a no-op.
func (EnvProvider) Close() error { return nil }
