package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Gateway loads the whole application state at startup and rewrites it in
// full after every mutation. A nil state from Load means "no prior state";
// callers seed in that case.
type Gateway interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, state *State) error
	Ping(ctx context.Context) error
	Close() error
}

// FileGateway persists the state as one JSON document on local disk. Every
// save writes a temp file, fsyncs it, and renames over the target so a crash
// mid-flush never leaves a truncated file behind.
type FileGateway struct {
	path string
}

func NewFileGateway(path string) (*FileGateway, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileGateway{path: path}, nil
}

func (g *FileGateway) Load(ctx context.Context) (*State, error) {
	raw, err := os.ReadFile(g.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode state file: %w", err)
	}
	return &state, nil
}

func (g *FileGateway) Save(ctx context.Context, state *State) error {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(g.path), ".galley-state-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), g.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

func (g *FileGateway) Ping(ctx context.Context) error {
	_, err := os.Stat(filepath.Dir(g.path))
	return err
}

func (g *FileGateway) Close() error { return nil }
