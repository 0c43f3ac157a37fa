package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lenscart/lenscart/internal/errs"
)

// File is a Store backed by a JSON file under the user config dir.
// Other processes sharing the file are observed through a polling Watch.
type File struct {
	path     string
	interval time.Duration

	mu sync.Mutex // serializes writers within this process
}

var _ Store = (*File)(nil)

// DefaultPath returns the default credentials file location, honoring
// XDG_CONFIG_HOME.
func DefaultPath() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "lenscart", "credentials.json")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "lenscart", "credentials.json")
}

// NewFile returns a file-backed store at path; interval is the Watch
// poll period.
func NewFile(path string, interval time.Duration) *File {
	if path == "" {
		path = DefaultPath()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &File{path: path, interval: interval}
}

func (f *File) Load(ctx context.Context) (Credentials, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Credentials{}, errs.ErrNoCredentials
		}
		return Credentials{}, err
	}
	var c Credentials
	if err := json.Unmarshal(b, &c); err != nil {
		return Credentials{}, err
	}
	if c.Empty() {
		return Credentials{}, errs.ErrNoCredentials
	}
	return c, nil
}

func (f *File) Save(ctx context.Context, c Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_ = os.MkdirAll(filepath.Dir(f.path), 0o700)
	out, err := os.Create(f.path)
	if err != nil {
		return err
	}
	defer out.Close()
	if err := os.Chmod(f.path, 0o600); err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

func (f *File) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (f *File) Watch(ctx context.Context) <-chan Credentials {
	return pollWatch(ctx, f.interval, f.Load)
}
