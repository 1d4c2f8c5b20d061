package concurrency

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
)

// Manager tracks keys that are currently in use. Acquiring a held key fails
// instead of blocking.
type Manager struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewManager creates a new concurrency manager
func NewManager() *Manager {
	return &Manager{held: make(map[string]struct{})}
}

// TryAcquire reports whether key was free and is now held by the caller.
func (m *Manager) TryAcquire(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[key]; ok {
		return false
	}
	m.held[key] = struct{}{}
	return true
}

// Release frees key. Releasing a key that is not held is a no-op.
func (m *Manager) Release(key string) {
	m.mu.Lock()
	delete(m.held, key)
	m.mu.Unlock()
}

// Held returns the number of keys currently held.
func (m *Manager) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held)
}

// Key fingerprints parts into a fixed-length key. Parts are compared after
// trimming and lowercasing; the order of the extra parts does not matter.
func Key(primary string, extra ...string) string {
	sorted := make([]string, len(extra))
	for i, p := range extra {
		sorted[i] = normalize(p)
	}
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(normalize(primary)))
	for _, p := range sorted {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
