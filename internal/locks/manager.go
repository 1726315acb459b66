package locks

import (
	"log/slog"
	"sync"
	"time"

	"vidcast/internal/logging"
)

// Lock records a live mutual-exclusion claim on a resource.
type Lock struct {
	ResourceID  string
	OwnerTaskID string
	AcquiredAt  time.Time
	TTL         time.Duration
}

// Expired reports whether the lock's TTL has elapsed at the given instant.
func (l Lock) Expired(now time.Time) bool {
	return l.TTL > 0 && now.Sub(l.AcquiredAt) > l.TTL
}

// Manager owns the lock table. All access goes through its methods; at most
// one live lock exists per resource id at any instant.
type Manager struct {
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]Lock

	now func() time.Time
}

// NewManager constructs a lock manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger: logging.NewComponentLogger(logger, "locks"),
		locks:  make(map[string]Lock),
		now:    time.Now,
	}
}

// Acquire attempts to claim the resource for the owner. Re-acquiring a lock
// already held by the same owner succeeds. An expired lock held by another
// owner is forcibly reclaimed.
func (m *Manager) Acquire(resourceID, ownerTaskID string, ttl time.Duration) bool {
	if resourceID == "" || ownerTaskID == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if existing, ok := m.locks[resourceID]; ok {
		if existing.OwnerTaskID == ownerTaskID {
			return true
		}
		if !existing.Expired(now) {
			return false
		}
		m.logger.Warn("reclaiming expired lock",
			logging.String(logging.FieldResourceID, resourceID),
			logging.String("expired_owner", existing.OwnerTaskID),
			logging.String("new_owner", ownerTaskID),
			logging.Duration("held_for", now.Sub(existing.AcquiredAt)),
			logging.String(logging.FieldEventType, "lock_reclaimed"),
		)
	}

	m.locks[resourceID] = Lock{
		ResourceID:  resourceID,
		OwnerTaskID: ownerTaskID,
		AcquiredAt:  now,
		TTL:         ttl,
	}
	return true
}

// Release removes the owner's lock. It returns false without error when no
// lock exists or the owner does not match.
func (m *Manager) Release(resourceID, ownerTaskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.locks[resourceID]
	if !ok || existing.OwnerTaskID != ownerTaskID {
		return false
	}
	delete(m.locks, resourceID)
	return true
}

// Holder returns the live lock for a resource, if any. Expired locks are
// reclaimed lazily and reported as absent.
func (m *Manager) Holder(resourceID string) (Lock, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.locks[resourceID]
	if !ok {
		return Lock{}, false
	}
	if existing.Expired(m.now()) {
		delete(m.locks, resourceID)
		return Lock{}, false
	}
	return existing, true
}

// HeldResources returns the resource ids with live locks, for dispatch
// exclusion. Expired locks are dropped during the sweep.
func (m *Manager) HeldResources() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	resources := make([]string, 0, len(m.locks))
	for id, lock := range m.locks {
		if lock.Expired(now) {
			delete(m.locks, id)
			continue
		}
		resources = append(resources, id)
	}
	return resources
}
