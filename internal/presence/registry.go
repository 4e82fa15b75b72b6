// Package presence tracks which stable participant identities are currently
// connected, and under which role. Connections are ephemeral; identities
// survive reconnects and are only removed from the online view when their
// last connection drops.
package presence

import (
	"sync"

	"github.com/classpulse/backend/internal/models"
)

// Registry maps live connection ids to participant identities, with a
// secondary index by stable identity so a kick can reach every connection a
// participant holds (multi-tab, rejoin after kick). The coordinator is the
// only mutator.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]models.Member
	byID   map[string]map[string]struct{} // participantID -> set of connection ids
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]models.Member),
		byID:   make(map[string]map[string]struct{}),
	}
}

// Join associates a live connection with a stable identity, replacing any
// prior association for that connection (last write wins). Different
// connections claiming the same participant id are all kept; the online
// list shows the identity once per connection.
func (r *Registry) Join(connID string, member models.Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byConn[connID]; ok {
		r.dropIndex(prev.ID, connID)
	}
	r.byConn[connID] = member
	conns := r.byID[member.ID]
	if conns == nil {
		conns = make(map[string]struct{})
		r.byID[member.ID] = conns
	}
	conns[connID] = struct{}{}
}

// Leave removes the association for one connection only. No-op if absent.
func (r *Registry) Leave(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	member, ok := r.byConn[connID]
	if !ok {
		return
	}
	delete(r.byConn, connID)
	r.dropIndex(member.ID, connID)
}

// Snapshot returns the current online list, one entry per live connection,
// in no particular order.
func (r *Registry) Snapshot() []models.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]models.Member, 0, len(r.byConn))
	for _, m := range r.byConn {
		list = append(list, m)
	}
	return list
}

// ConnectionsFor returns the ids of all live connections associated with a
// stable identity (0, 1 or more).
func (r *Registry) ConnectionsFor(participantID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byID[participantID]
	ids := make([]string, 0, len(conns))
	for id := range conns {
		ids = append(ids, id)
	}
	return ids
}

// Lookup returns the identity joined on a connection, if any.
func (r *Registry) Lookup(connID string) (models.Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byConn[connID]
	return m, ok
}

func (r *Registry) dropIndex(participantID, connID string) {
	if conns, ok := r.byID[participantID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.byID, participantID)
		}
	}
}
