package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// stateFile is the pending-trial filename inside the data directory.
const stateFile = "pending-trials.json"

// persistedState is the on-disk representation of a registry.
// It lets `dotmotion trial` and `dotmotion respond` share pending trials
// across separate CLI invocations.
type persistedState struct {
	Config   Config          `json:"config"`
	Trials   []*PendingTrial `json:"trials"`
	Counters Counters        `json:"counters"`
}

// SaveState persists the registry to a JSON file in the given directory.
// Expired trials are dropped first. The directory must already exist.
func SaveState(r *Registry, dir string) error {
	r.Prune()

	r.mu.RLock()
	ps := persistedState{
		Config:   r.config,
		Trials:   make([]*PendingTrial, 0, len(r.trials)),
		Counters: r.counters,
	}
	for _, p := range r.trials {
		cp := *p
		ps.Trials = append(ps.Trials, &cp)
	}
	r.mu.RUnlock()

	data, err := json.MarshalIndent(ps, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling pending trials: %w", err)
	}

	path := filepath.Join(dir, stateFile)

	// Write atomically via temp file + rename.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing pending trials temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming pending trials file: %w", err)
	}

	return nil
}

// LoadState reads a registry from a JSON file in the given directory.
// If the file does not exist, it returns an empty registry using config.
func LoadState(dir string, config Config) (*Registry, error) {
	path := filepath.Join(dir, stateFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewRegistry(config), nil
		}
		return nil, fmt.Errorf("reading pending trials: %w", err)
	}

	var ps persistedState
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, fmt.Errorf("unmarshaling pending trials: %w", err)
	}

	// The caller's config wins over the persisted one so TTL changes apply
	// to trials that are already pending.
	r := NewRegistry(config)
	for _, p := range ps.Trials {
		if p == nil || p.ID == "" {
			continue
		}
		p.ExpiresAt = p.IssuedAt.Add(r.config.TTL)
		r.trials[p.ID] = p
	}
	r.counters = ps.Counters
	return r, nil
}

// StateFilePath returns the expected path for the pending-trial file in the given directory.
func StateFilePath(dir string) string {
	return filepath.Join(dir, stateFile)
}

// RemoveState removes the pending-trial file from the given directory.
// It is not an error if the file does not exist.
func RemoveState(dir string) error {
	path := filepath.Join(dir, stateFile)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing pending trials: %w", err)
	}
	return nil
}
