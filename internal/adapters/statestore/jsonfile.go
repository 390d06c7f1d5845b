package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"finvizTraderBot/internal/domain"
	"finvizTraderBot/internal/ports"
)

// JSONStore implements ports.SnapshotStore on a single JSON file. Writes go
// to a temporary file in the same directory and are renamed over the target,
// so a crash mid-write never corrupts the last good snapshot.
type JSONStore struct {
	path   string
	logger ports.Logger
}

// Config holds configuration for the JSON snapshot store.
type Config struct {
	Path   string
	Logger ports.Logger
}

// New creates a JSON snapshot store, creating the data directory if needed.
func New(cfg Config) (*JSONStore, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for the snapshot store")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("snapshot path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(cfg.Path), err)
	}
	return &JSONStore{path: cfg.Path, logger: cfg.Logger}, nil
}

// Load reads the snapshot from disk. A missing file yields an empty snapshot.
// Unknown JSON fields are ignored so the schema can grow.
func (s *JSONStore) Load(ctx context.Context) (*domain.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info(ctx, "Snapshot file not found, starting fresh", map[string]interface{}{"path": s.path})
			return domain.NewSnapshot(), nil
		}
		return nil, fmt.Errorf("failed to read snapshot '%s': %w", s.path, err)
	}

	snap := domain.NewSnapshot()
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ports.ErrSnapshotCorrupt, s.path, err)
	}
	if snap.Positions == nil {
		snap.Positions = make(map[string]*domain.PositionRecord)
	}
	if snap.TradedDates == nil {
		snap.TradedDates = make(map[string]string)
	}
	s.logger.Info(ctx, "Snapshot loaded", map[string]interface{}{
		"path":      s.path,
		"positions": len(snap.Positions),
	})
	return snap, nil
}

// Save atomically persists the snapshot.
func (s *JSONStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	snap.SavedAt = time.Now().UTC()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot '%s': %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write temp snapshot '%s': %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync temp snapshot '%s': %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close temp snapshot '%s': %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to swap snapshot into place: %w", err)
	}
	s.logger.Debug(ctx, "Snapshot saved", map[string]interface{}{
		"path":      s.path,
		"positions": len(snap.Positions),
	})
	return nil
}
