package session

import (
	"sync"
	"time"

	"github.com/samber/lo"

	"chatrelay/pkg/types"
)

// Manager is the connection registry: it maps live connections to the users
// they registered and keeps display names unique.
type Manager struct {
	mu            sync.RWMutex
	users         map[types.ConnectionID]types.User
	byName        map[string]types.ConnectionID
	order         []types.ConnectionID // registration order
	maxNameLength int
	now           func() time.Time
}

// NewManager creates an empty registry accepting names of at most maxNameLength runes.
func NewManager(maxNameLength int) *Manager {
	return &Manager{
		users:         make(map[types.ConnectionID]types.User),
		byName:        make(map[string]types.ConnectionID),
		maxNameLength: maxNameLength,
		now:           time.Now,
	}
}

// Register binds a trimmed display name to connID. Nothing changes when the
// name is empty, too long, already held by a live user, or when connID is
// already registered.
func (m *Manager) Register(connID types.ConnectionID, rawName string) (types.User, error) {
	name, err := types.NormalizeName(rawName, m.maxNameLength)
	if err != nil {
		return types.User{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[connID]; exists {
		return types.User{}, types.ErrAlreadyRegistered
	}
	if _, taken := m.byName[name]; taken {
		return types.User{}, types.ErrNameTaken
	}

	user := types.User{ID: connID, Name: name, JoinedAt: m.now()}
	m.users[connID] = user
	m.byName[name] = connID
	m.order = append(m.order, connID)

	return user, nil
}

// Lookup returns the user registered on connID.
func (m *Manager) Lookup(connID types.ConnectionID) (types.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, exists := m.users[connID]
	return user, exists
}

// FindByName returns the live user holding exactly name.
func (m *Manager) FindByName(name string) (types.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	connID, exists := m.byName[name]
	if !exists {
		return types.User{}, false
	}
	return m.users[connID], true
}

// Remove deletes and returns the user registered on connID. Removing an
// unknown connection is a no-op.
func (m *Manager) Remove(connID types.ConnectionID) (types.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[connID]
	if !exists {
		return types.User{}, false
	}

	delete(m.users, connID)
	delete(m.byName, user.Name)
	m.order = lo.Without(m.order, connID)

	return user, true
}

// List returns a snapshot of live users in registration order.
func (m *Manager) List() []types.User {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return lo.Map(m.order, func(id types.ConnectionID, _ int) types.User {
		return m.users[id]
	})
}

// Count returns the number of live users.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}
