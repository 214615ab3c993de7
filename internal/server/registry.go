package server

import (
	"sort"
	"sync"
	"time"

	"github.com/couuas/serv00-ghost/internal/models"
)

// Registry is the in-memory node table. Records are replaced wholesale on
// every heartbeat and never evicted; a silent node simply turns offline.
type Registry struct {
	mu        sync.RWMutex
	nodes     map[string]models.Node
	threshold time.Duration
	now       func() time.Time
}

// NewRegistry creates an empty registry. A node is online while its last
// heartbeat is strictly younger than threshold. now may be nil.
func NewRegistry(threshold time.Duration, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		nodes:     make(map[string]models.Node),
		threshold: threshold,
		now:       now,
	}
}

// Update stores hb as the node's current record, stamped with the master's
// clock. A heartbeat without node_id is ignored. Reports whether this was
// the first heartbeat seen for the node.
func (r *Registry) Update(hb models.Heartbeat) bool {
	if hb.NodeID == "" {
		return false
	}
	node := models.Node{
		NodeID:   hb.NodeID,
		Name:     hb.Name,
		URL:      hb.URL,
		Stats:    hb.Stats,
		Username: hb.Username,
		Season:   hb.Season,
		LastSeen: r.now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, existed := r.nodes[hb.NodeID]
	r.nodes[hb.NodeID] = node
	return !existed
}

// Get returns one node with IsOnline evaluated now.
func (r *Registry) Get(nodeID string) (models.Node, bool) {
	now := r.now()
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[nodeID]
	if !ok {
		return models.Node{}, false
	}
	n.IsOnline = r.online(n, now)
	return n, true
}

// List returns every known node ordered by id, with IsOnline evaluated now.
func (r *Registry) List() []models.Node {
	now := r.now()
	r.mu.RLock()
	out := make([]models.Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		n.IsOnline = r.online(n, now)
		out = append(out, n)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// Counts returns the number of online and offline nodes.
func (r *Registry) Counts() (online, offline int) {
	now := r.now()
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.nodes {
		if r.online(n, now) {
			online++
		} else {
			offline++
		}
	}
	return online, offline
}

func (r *Registry) online(n models.Node, now time.Time) bool {
	return now.Sub(n.LastSeen) < r.threshold
}
