package replay

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// ErrNotFound is returned when a stored replay does not exist.
var ErrNotFound = errors.New("replay not found")

// Store persists finished replays.
type Store interface {
	SaveReplay(ctx context.Context, r *Replay) error
	LoadReplay(ctx context.Context, id string) (*Replay, error)
	DeleteReplay(ctx context.Context, id string) error
}

// DefaultDir is where FileStore keeps replays when no directory is configured.
func DefaultDir() string {
	return filepath.Join(xdg.DataHome, "planar-nexus", "replays")
}

// FileStore writes each replay as a gzipped JSON export.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir, or DefaultDir when empty.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = DefaultDir()
	}
	return &FileStore{dir: dir}
}

// Dir returns the directory replays are written to.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.replay.gz", filepath.Base(id)))
}

func (s *FileStore) SaveReplay(ctx context.Context, r *Replay) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	data, err := Export(r)
	if err != nil {
		return err
	}

	file, err := os.Create(s.path(r.ID))
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	zw := gzip.NewWriter(file)
	if _, err := zw.Write(data); err != nil {
		return fmt.Errorf("failed to write replay: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to write replay: %w", err)
	}
	return nil
}

func (s *FileStore) LoadReplay(ctx context.Context, id string) (*Replay, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	zr, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer zr.Close()

	var env exportEnvelope
	if err := json.NewDecoder(zr).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode replay: %w", err)
	}
	if env.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
	if env.Replay == nil {
		return nil, fmt.Errorf("failed to decode replay %s: missing body", id)
	}
	normalize(env.Replay)
	return env.Replay, nil
}

func (s *FileStore) DeleteReplay(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}
