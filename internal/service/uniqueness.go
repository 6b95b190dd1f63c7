package service

import (
	"sort"
	"strings"
	"sync"
)

// NameRegistry is the batch-scoped set of accepted recipe names. It is the
// only state shared between the concurrent tasks of one generation batch, so
// reservation has to be atomic: two tasks racing for the same name must not
// both win.
type NameRegistry struct {
	mu    sync.Mutex
	names map[string]string
}

// NewNameRegistry creates a registry pre-seeded with already-taken names,
// e.g. the accepted set of the plan a single slot is being regenerated for.
func NewNameRegistry(seed ...string) *NameRegistry {
	r := &NameRegistry{names: make(map[string]string, len(seed))}
	for _, name := range seed {
		r.names[normalizeName(name)] = name
	}
	return r
}

// TryReserve atomically claims a name for the calling task. It returns false
// if the name, compared case-insensitively, is already taken.
func (r *NameRegistry) TryReserve(name string) bool {
	key := normalizeName(name)
	if key == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.names[key]; taken {
		return false
	}
	r.names[key] = name
	return true
}

// Names returns the reserved names in a stable order.
func (r *NameRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
