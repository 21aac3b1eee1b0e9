// Package session remembers trials that have been issued to a client but not
// yet answered. The registry holds the ground truth (direction and coherence)
// so clients only have to echo back a trial ID.
//
// All public methods are safe for concurrent use.
package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/dotmotion/internal/constants"
	"github.com/nvandessel/dotmotion/internal/models"
)

var (
	// ErrTrialNotFound is returned for unknown or already answered trial IDs.
	ErrTrialNotFound = errors.New("trial not found")

	// ErrTrialExpired is returned when a trial outlived the registry TTL.
	ErrTrialExpired = errors.New("trial expired")
)

// PendingTrial is a trial awaiting its response.
type PendingTrial struct {
	ID        string           `json:"id"`
	Spec      models.TrialSpec `json:"spec"`
	Name      string           `json:"name,omitempty"`
	IssuedAt  time.Time        `json:"issued_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Expired reports whether the trial is past its TTL at now.
func (p PendingTrial) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}

// Config holds registry configuration.
type Config struct {
	// TTL is how long an issued trial can be answered. Default: 5 minutes.
	TTL time.Duration `json:"ttl"`

	// MaxPending bounds the registry. When full, the oldest trial is
	// dropped. Default: 1024.
	MaxPending int `json:"max_pending"`
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{
		TTL:        constants.DefaultPendingTTL,
		MaxPending: 1024,
	}
}

// Counters summarizes registry activity since creation or the last Reset.
type Counters struct {
	Issued   int `json:"issued"`
	Answered int `json:"answered"`
	Expired  int `json:"expired"`
	Evicted  int `json:"evicted"`
}

// Registry tracks pending trials by ID.
type Registry struct {
	mu       sync.RWMutex
	config   Config
	trials   map[string]*PendingTrial
	counters Counters
	nowFunc  func() time.Time
	newID    func() string
}

// NewRegistry creates an empty registry. Zero config values fall back to
// the defaults.
func NewRegistry(config Config) *Registry {
	def := DefaultConfig()
	if config.TTL <= 0 {
		config.TTL = def.TTL
	}
	if config.MaxPending <= 0 {
		config.MaxPending = def.MaxPending
	}
	return &Registry{
		config:  config,
		trials:  make(map[string]*PendingTrial),
		nowFunc: time.Now,
		newID:   uuid.NewString,
	}
}

// Config returns the registry configuration.
func (r *Registry) Config() Config {
	return r.config
}

// Register stores spec under a fresh ID and returns the pending trial. The
// returned spec carries the ID.
func (r *Registry) Register(spec models.TrialSpec, name string) PendingTrial {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	r.pruneLocked(now)
	for len(r.trials) >= r.config.MaxPending {
		r.evictOldestLocked()
	}

	id := r.newID()
	spec.ID = id
	p := &PendingTrial{
		ID:        id,
		Spec:      spec,
		Name:      name,
		IssuedAt:  now,
		ExpiresAt: now.Add(r.config.TTL),
	}
	r.trials[id] = p
	r.counters.Issued++
	return *p
}

// Get returns a pending trial without consuming it.
func (r *Registry) Get(id string) (PendingTrial, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.trials[id]
	if !ok {
		return PendingTrial{}, ErrTrialNotFound
	}
	if p.Expired(r.nowFunc()) {
		return PendingTrial{}, ErrTrialExpired
	}
	return *p, nil
}

// Take removes and returns a pending trial. Each trial can be taken once,
// so a response cannot be recorded twice for the same stimulus.
func (r *Registry) Take(id string) (PendingTrial, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.trials[id]
	if !ok {
		return PendingTrial{}, ErrTrialNotFound
	}
	delete(r.trials, id)
	if p.Expired(r.nowFunc()) {
		r.counters.Expired++
		return PendingTrial{}, ErrTrialExpired
	}
	r.counters.Answered++
	return *p, nil
}

// Prune drops expired trials and returns how many were removed.
func (r *Registry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pruneLocked(r.nowFunc())
}

// Len returns the number of pending trials, expired ones included until
// the next prune.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.trials)
}

// Pending returns the live trials ordered by issue time.
func (r *Registry) Pending() []PendingTrial {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.nowFunc()
	out := make([]PendingTrial, 0, len(r.trials))
	for _, p := range r.trials {
		if !p.Expired(now) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].IssuedAt.Before(out[j].IssuedAt)
	})
	return out
}

// Counters returns a snapshot of the activity counters.
func (r *Registry) Counters() Counters {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters
}

// Reset clears all pending trials and counters.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.trials = make(map[string]*PendingTrial)
	r.counters = Counters{}
}

func (r *Registry) pruneLocked(now time.Time) int {
	n := 0
	for id, p := range r.trials {
		if p.Expired(now) {
			delete(r.trials, id)
			n++
		}
	}
	r.counters.Expired += n
	return n
}

func (r *Registry) evictOldestLocked() {
	var oldest *PendingTrial
	for _, p := range r.trials {
		if oldest == nil || p.IssuedAt.Before(oldest.IssuedAt) ||
			(p.IssuedAt.Equal(oldest.IssuedAt) && p.ID < oldest.ID) {
			oldest = p
		}
	}
	if oldest != nil {
		delete(r.trials, oldest.ID)
		r.counters.Evicted++
	}
}
