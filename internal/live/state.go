// Package live holds the mutable control surface the blend engine reads: the
// blackout flag, per-look levels and per-fixture channel levels.
package live

import (
	"sync"

	"github.com/jshea2/NMS-DMX-App/internal/config"
)

// State is a snapshot of the control surface.
// Look levels are fractions 0-1; fixture channel levels are percentages 0-100.
type State struct {
	Blackout bool                          `json:"blackout"`
	Looks    map[string]float64            `json:"looks"`
	Fixtures map[string]map[string]float64 `json:"fixtures"`
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := State{
		Blackout: s.Blackout,
		Looks:    make(map[string]float64, len(s.Looks)),
		Fixtures: make(map[string]map[string]float64, len(s.Fixtures)),
	}
	for id, level := range s.Looks {
		out.Looks[id] = level
	}
	for id, channels := range s.Fixtures {
		m := make(map[string]float64, len(channels))
		for name, v := range channels {
			m[name] = v
		}
		out.Fixtures[id] = m
	}
	return out
}

// Update is a partial-merge document. Nil fields leave the corresponding part
// of the state untouched; an update with no fields set is a no-op.
type Update struct {
	Blackout *bool                         `json:"blackout,omitempty"`
	Looks    map[string]float64            `json:"looks,omitempty"`
	Fixtures map[string]map[string]float64 `json:"fixtures,omitempty"`
}

// Store owns the live state. Merges are applied atomically: two concurrent
// updates never interleave field-by-field.
type Store struct {
	mu    sync.RWMutex
	state State
}

// NewStore builds a store seeded with a zero entry for every configured
// fixture channel and look.
func NewStore(doc config.Document) *Store {
	return &Store{state: defaultState(doc)}
}

func defaultState(doc config.Document) State {
	state := State{
		Looks:    make(map[string]float64),
		Fixtures: make(map[string]map[string]float64),
	}
	for _, fixture := range doc.Fixtures {
		profile := doc.Profile(fixture)
		if profile == nil {
			continue
		}
		channels := make(map[string]float64, len(profile.Channels))
		for _, ch := range profile.Channels {
			channels[ch.Name] = 0
		}
		state.Fixtures[fixture.ID] = channels
	}
	for _, look := range doc.Looks {
		state.Looks[look.ID] = 0
	}
	return state
}

// Get returns a deep-copy snapshot of the current state.
func (s *Store) Get() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Apply merges an update into the state as one indivisible step and returns
// the post-merge snapshot, so a broadcast derived from the return value can
// never race behind the mutation it reflects.
func (s *Store) Apply(update Update) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if update.Blackout != nil {
		s.state.Blackout = *update.Blackout
	}
	for id, level := range update.Looks {
		s.state.Looks[id] = level
	}
	for id, channels := range update.Fixtures {
		existing, ok := s.state.Fixtures[id]
		if !ok {
			existing = make(map[string]float64, len(channels))
			s.state.Fixtures[id] = existing
		}
		for name, v := range channels {
			existing[name] = v
		}
	}

	return s.state.Clone()
}

// Reinitialize rebuilds the state structure from the given configuration,
// carrying forward the values of fixtures/looks that still exist. Blackout is
// preserved; entries for removed fixtures and looks are dropped.
func (s *Store) Reinitialize(doc config.Document) State {
	defaults := defaultState(doc)

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, channels := range defaults.Fixtures {
		if old, ok := s.state.Fixtures[id]; ok {
			for name := range channels {
				if v, ok := old[name]; ok {
					channels[name] = v
				}
			}
		}
	}
	for id := range defaults.Looks {
		if v, ok := s.state.Looks[id]; ok {
			defaults.Looks[id] = v
		}
	}
	defaults.Blackout = s.state.Blackout

	s.state = defaults
	return s.state.Clone()
}

// Reset zeroes every level and clears blackout.
func (s *Store) Reset(doc config.Document) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = defaultState(doc)
	return s.state.Clone()
}
