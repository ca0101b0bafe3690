package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// FileBackend keeps credentials in a dotenv file. Writes go to a temp file in
// the same directory and are renamed over the original.
type FileBackend struct {
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (b *FileBackend) Path() string { return b.path }

func (b *FileBackend) Load(ctx context.Context) (map[string]string, error) {
	_ = ctx
	rec, err := godotenv.Read(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("credential: read %s: %w", b.path, err)
	}
	return rec, nil
}

func (b *FileBackend) Save(ctx context.Context, name, value string, drop ...string) error {
	rec, err := b.Load(ctx)
	if err != nil {
		return err
	}
	for _, d := range drop {
		delete(rec, d)
	}
	rec[name] = value

	content, err := godotenv.Marshal(rec)
	if err != nil {
		return fmt.Errorf("credential: marshal: %w", err)
	}
	return writeAtomic(b.path, []byte(content+"\n"))
}

func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("credential: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("credential: write temp: %w", err)
	}
	if err = tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("credential: chmod temp: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("credential: sync temp: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("credential: close temp: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("credential: replace %s: %w", path, err)
	}
	return nil
}
