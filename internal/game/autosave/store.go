package autosave

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"

	"github.com/planarnexus/nexus-server/internal/game/state"
)

// Save is one auto-save slot of a game.
type Save struct {
	ID          string           `json:"id"`
	GameID      string           `json:"gameId"`
	Slot        int              `json:"slot"`
	Trigger     Trigger          `json:"trigger"`
	Description string           `json:"description"`
	State       *state.GameState `json:"state"`
	CreatedAt   time.Time        `json:"createdAt"`
	// Serial increases with every save of a game and orders saves taken
	// at the same instant.
	Serial int64 `json:"serial"`
}

// Store keeps auto-saves keyed by game and slot. Put overwrites the slot.
// List returns a game's saves oldest first.
type Store interface {
	Put(ctx context.Context, save Save) error
	List(ctx context.Context, gameID string) ([]Save, error)
	DeleteGame(ctx context.Context, gameID string) error
}

func sortByAge(saves []Save) {
	sort.SliceStable(saves, func(i, j int) bool {
		if saves[i].CreatedAt.Equal(saves[j].CreatedAt) {
			if saves[i].Serial != saves[j].Serial {
				return saves[i].Serial < saves[j].Serial
			}
			return saves[i].Slot < saves[j].Slot
		}
		return saves[i].CreatedAt.Before(saves[j].CreatedAt)
	})
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.RWMutex
	games map[string]map[int]Save
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{games: make(map[string]map[int]Save)}
}

func (s *MemoryStore) Put(_ context.Context, save Save) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slots, ok := s.games[save.GameID]
	if !ok {
		slots = make(map[int]Save)
		s.games[save.GameID] = slots
	}
	save.State = save.State.Clone()
	slots[save.Slot] = save
	return nil
}

func (s *MemoryStore) List(_ context.Context, gameID string) ([]Save, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Save, 0, len(s.games[gameID]))
	for _, save := range s.games[gameID] {
		out = append(out, save)
	}
	sortByAge(out)
	return out, nil
}

func (s *MemoryStore) DeleteGame(_ context.Context, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games, gameID)
	return nil
}

// DefaultDir is where FileStore keeps auto-saves when no directory is set.
func DefaultDir() string {
	return filepath.Join(xdg.DataHome, "planar-nexus", "autosaves")
}

// FileStore writes one gzipped JSON file per slot under <dir>/<gameID>/.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = DefaultDir()
	}
	return &FileStore{dir: dir}
}

func (s *FileStore) gameDir(gameID string) string {
	return filepath.Join(s.dir, filepath.Base(gameID))
}

func (s *FileStore) Put(ctx context.Context, save Save) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := s.gameDir(save.GameID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(filepath.Join(dir, fmt.Sprintf("slot-%d.json.gz", save.Slot)))
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	zw := gzip.NewWriter(file)
	if err := json.NewEncoder(zw).Encode(save); err != nil {
		return fmt.Errorf("failed to encode auto-save: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to write auto-save: %w", err)
	}
	return nil
}

func (s *FileStore) List(ctx context.Context, gameID string) ([]Save, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.gameDir(gameID))
	if errors.Is(err, os.ErrNotExist) {
		return []Save{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list auto-saves: %w", err)
	}

	out := make([]Save, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json.gz") {
			continue
		}
		save, err := readSave(filepath.Join(s.gameDir(gameID), entry.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, save)
	}
	sortByAge(out)
	return out, nil
}

func (s *FileStore) DeleteGame(ctx context.Context, gameID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(s.gameDir(gameID)); err != nil {
		return fmt.Errorf("failed to delete auto-saves: %w", err)
	}
	return nil
}

func readSave(path string) (Save, error) {
	file, err := os.Open(path)
	if err != nil {
		return Save{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	zr, err := gzip.NewReader(file)
	if err != nil {
		return Save{}, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer zr.Close()

	var save Save
	if err := json.NewDecoder(zr).Decode(&save); err != nil {
		return Save{}, fmt.Errorf("failed to decode auto-save %s: %w", filepath.Base(path), err)
	}
	return save, nil
}
