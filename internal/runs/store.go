package runs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoRun is returned when the requested run does not exist.
var ErrNoRun = errors.New("no run found")

// Store persists runs to disk.
type Store interface {
	Save(r *Run) error
	Load(id string) (*Run, error) // returns ErrNoRun if absent
	Latest() (*Run, error)        // returns ErrNoRun if there are no runs
	List() ([]*Run, error)        // newest first
}

// diskStore is the concrete Store that writes one JSON file per run.
type diskStore struct {
	dir string
}

// NewStore returns a Store backed by the XDG data directory.
// Path: $XDG_DATA_HOME/aiterm/runs or ~/.local/share/aiterm/runs
func NewStore() (Store, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}
	return NewStoreAt(filepath.Join(dir, "runs"))
}

// NewStoreAt returns a Store rooted at dir.
func NewStoreAt(dir string) (Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &diskStore{dir: dir}, nil
}

// dataDir returns the aiterm-specific XDG data directory.
func dataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "aiterm"), nil
}

func (d *diskStore) path(id string) string {
	return filepath.Join(d.dir, id+".json")
}

// Save marshals r to JSON and writes it atomically via a temp file + os.Rename.
func (d *diskStore) Save(r *Run) (err error) {
	if r.ID == "" || strings.ContainsAny(r.ID, `/\`) {
		return fmt.Errorf("invalid run id %q", r.ID)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to persist run: %w", err)
	}

	// Write to a temp file in the same directory so os.Rename is atomic.
	tmp, err := os.CreateTemp(d.dir, "run-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to persist run: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up the temp file on any error path.
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to persist run: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to persist run: %w", err)
	}
	if err = os.Rename(tmpName, d.path(r.ID)); err != nil {
		return fmt.Errorf("failed to persist run: %w", err)
	}
	return nil
}

// Load reads the run with the given id. A unique id prefix is accepted.
func (d *diskStore) Load(id string) (*Run, error) {
	r, err := d.read(d.path(id))
	if !errors.Is(err, ErrNoRun) {
		return r, err
	}

	all, err := d.List()
	if err != nil {
		return nil, err
	}
	var match *Run
	for _, candidate := range all {
		if id != "" && strings.HasPrefix(candidate.ID, id) {
			if match != nil {
				return nil, fmt.Errorf("run id prefix %q is ambiguous", id)
			}
			match = candidate
		}
	}
	if match == nil {
		return nil, ErrNoRun
	}
	return match, nil
}

func (d *diskStore) read(path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoRun
		}
		return nil, fmt.Errorf("failed to read run: %w", err)
	}
	var r Run
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse run %s: %w", filepath.Base(path), err)
	}
	return &r, nil
}

// List returns every stored run, newest first. Unreadable files are skipped.
func (d *diskStore) List() ([]*Run, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []*Run
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		r, err := d.read(filepath.Join(d.dir, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out, nil
}

func (d *diskStore) Latest() (*Run, error) {
	all, err := d.List()
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, ErrNoRun
	}
	return all[0], nil
}
