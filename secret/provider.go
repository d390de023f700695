package secret

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
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

// EnvProvider resolves a ref as an environment variable name.
type EnvProvider struct {
	prefix string
	lookup LookupFunc
}

// NewEnvProvider creates the "env" provider. A ref r reads prefix+r.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix, lookup: os.LookupEnv}
}

// Name returns "env".
func (p *EnvProvider) Name() string { return "env" }

// Resolve returns the variable's value or ErrNotFound if it is unset.
func (p *EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	key := p.prefix + ref
	v, ok := p.lookup(key)
	if !ok {
		return "", fmt.Errorf("%w: env %s", ErrNotFound, key)
	}
	return v, nil
}

// Close is a no-op.
func (p *EnvProvider) Close() error { return nil }

// FileProvider reads secrets from files under a directory, one per file, as
// mounted by container orchestrators. Trailing whitespace is trimmed.
type FileProvider struct {
	root *os.Root
	dir  string
}

// NewFileProvider opens dir for the "file" provider.
func NewFileProvider(dir string) (*FileProvider, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("secret: open %s: %w", dir, err)
	}
	return &FileProvider{root: root, dir: dir}, nil
}

// Name returns "file".
func (p *FileProvider) Name() string { return "file" }

// Resolve reads the file named ref. Refs cannot escape the directory.
func (p *FileProvider) Resolve(_ context.Context, ref string) (string, error) {
	if ref == "" || !filepath.IsLocal(ref) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	data, err := p.root.ReadFile(ref)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: file %s", ErrNotFound, ref)
	}
	if err != nil {
		return "", fmt.Errorf("secret: read %s: %w", filepath.Join(p.dir, ref), err)
	}
	return strings.TrimRight(string(data), " \t\r\n"), nil
}

// Close releases the directory handle.
func (p *FileProvider) Close() error { return p.root.Close() }

var (
	_ Provider = (*EnvProvider)(nil)
	_ Provider = (*FileProvider)(nil)
)
