// Package session keeps explorer workspaces in memory. A workspace belongs
// to one browser and owns its query state, credentials and token countdown.
package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pocket-telemetry/backend/internal/catalog"
	"github.com/pocket-telemetry/backend/internal/models"
)

// MaxWorkspaces limits concurrent workspaces to prevent memory exhaustion
const MaxWorkspaces = 100

// WorkspaceMaxAge is the default idle time before a workspace is cleaned up
const WorkspaceMaxAge = 2 * time.Hour

// Manager handles active workspaces.
type Manager struct {
	workspaces map[string]*Workspace
	mu         sync.RWMutex
	catalog    *catalog.Catalog
	tick       time.Duration
	now        func() time.Time
}

// NewManager creates a workspace manager whose countdowns tick every second.
func NewManager(cat *catalog.Catalog) *Manager {
	return NewManagerWithTick(cat, time.Second)
}

// NewManagerWithTick creates a manager with a custom countdown tick.
func NewManagerWithTick(cat *catalog.Catalog, tick time.Duration) *Manager {
	return &Manager{
		workspaces: make(map[string]*Workspace),
		catalog:    cat,
		tick:       tick,
		now:        time.Now,
	}
}

// Catalog returns the catalog workspaces are built against.
func (m *Manager) Catalog() *catalog.Catalog {
	return m.catalog
}

// Create starts a fresh workspace.
func (m *Manager) Create() *Workspace {
	m.evictIfNeeded()

	ws := newWorkspace(uuid.New().String(), m.catalog, m.tick, m.now())

	m.mu.Lock()
	m.workspaces[ws.ID] = ws
	m.mu.Unlock()

	fmt.Printf("[Manager] Created workspace %s\n", ws.shortID())
	return ws
}

// Get returns a workspace by ID and marks it as recently used.
func (m *Manager) Get(id string) (*Workspace, bool) {
	m.mu.RLock()
	ws, ok := m.workspaces[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	ws.touch(m.now())
	return ws, true
}

// Delete tears down a workspace and stops its countdown.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	ws, ok := m.workspaces[id]
	if ok {
		delete(m.workspaces, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	ws.Close()
	fmt.Printf("[Manager] Deleted workspace %s\n", ws.shortID())
	return true
}

// Count returns the number of live workspaces.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workspaces)
}

// CleanupIdle removes idle workspaces not used within maxAge. Workspaces
// with an action in flight are kept. Returns how many were removed.
func (m *Manager) CleanupIdle(maxAge time.Duration) int {
	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	var removed []*Workspace
	for id, ws := range m.workspaces {
		lastAccessed, status := ws.idleSince()
		if status != models.ActionStatusIdle || !lastAccessed.Before(cutoff) {
			continue
		}
		delete(m.workspaces, id)
		removed = append(removed, ws)
	}
	m.mu.Unlock()

	for _, ws := range removed {
		ws.Close()
		lastAccessed, _ := ws.idleSince()
		fmt.Printf("[Manager] Cleaned up idle workspace %s (last accessed: %s ago)\n",
			ws.shortID(), m.now().Sub(lastAccessed).Round(time.Second))
	}
	return len(removed)
}

// CloseAll stops every countdown and forgets all workspaces.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.workspaces
	m.workspaces = make(map[string]*Workspace)
	m.mu.Unlock()

	for _, ws := range all {
		ws.Close()
	}
}

// evictIfNeeded removes the least recently used idle workspaces when at capacity.
func (m *Manager) evictIfNeeded() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.workspaces) < MaxWorkspaces {
		return
	}

	type candidate struct {
		ws   *Workspace
		last time.Time
	}
	var idle []candidate
	for _, ws := range m.workspaces {
		last, status := ws.idleSince()
		if status == models.ActionStatusIdle {
			idle = append(idle, candidate{ws, last})
		}
	}
	sort.Slice(idle, func(i, j int) bool { return idle[i].last.Before(idle[j].last) })

	toFree := len(m.workspaces) - MaxWorkspaces + 1
	for i := 0; i < toFree && i < len(idle); i++ {
		ws := idle[i].ws
		delete(m.workspaces, ws.ID)
		ws.Close()
		fmt.Printf("[Manager] Evicted workspace %s to stay under %d\n", ws.shortID(), MaxWorkspaces)
	}
}
