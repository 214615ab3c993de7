package server

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/couuas/serv00-ghost/internal/models"
)

// LogEntry is the latest captured log text for one process on one node.
type LogEntry struct {
	NodeID    string           `json:"node_id"`
	PMID      models.ProcessID `json:"pm_id"`
	Content   string           `json:"content"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type logKey struct {
	node string
	pm   models.ProcessID
}

// LogStore keeps the last log capture per (node, process). Writes overwrite.
type LogStore struct {
	mu       sync.RWMutex
	entries  map[logKey]LogEntry
	maxBytes int
	now      func() time.Time
}

// NewLogStore creates a LogStore. maxBytes > 0 keeps only the tail of each
// capture; 0 stores captures as sent.
func NewLogStore(maxBytes int, now func() time.Time) *LogStore {
	if now == nil {
		now = time.Now
	}
	return &LogStore{entries: make(map[logKey]LogEntry), maxBytes: maxBytes, now: now}
}

// Put replaces the stored capture. A capped capture never starts in the
// middle of a UTF-8 sequence, so it may be a few bytes shorter than the cap.
func (s *LogStore) Put(nodeID string, pmID models.ProcessID, content string) {
	if s.maxBytes > 0 && len(content) > s.maxBytes {
		cut := len(content) - s.maxBytes
		for cut < len(content) && !utf8.RuneStart(content[cut]) {
			cut++
		}
		content = content[cut:]
	}
	entry := LogEntry{NodeID: nodeID, PMID: pmID, Content: content, UpdatedAt: s.now()}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[logKey{nodeID, pmID}] = entry
}

// Get returns the stored capture, if any.
func (s *LogStore) Get(nodeID string, pmID models.ProcessID) (LogEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[logKey{nodeID, pmID}]
	return e, ok
}

// Inventory is the latest process-list snapshot of one node.
type Inventory struct {
	NodeID    string       `json:"node_id"`
	Apps      []models.App `json:"apps"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// InventoryStore keeps the last process list per node. Writes overwrite.
type InventoryStore struct {
	mu    sync.RWMutex
	items map[string]Inventory
	now   func() time.Time
}

// NewInventoryStore creates an empty InventoryStore.
func NewInventoryStore(now func() time.Time) *InventoryStore {
	if now == nil {
		now = time.Now
	}
	return &InventoryStore{items: make(map[string]Inventory), now: now}
}

// Put replaces the node's snapshot.
func (s *InventoryStore) Put(nodeID string, apps []models.App) {
	if apps == nil {
		apps = []models.App{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[nodeID] = Inventory{NodeID: nodeID, Apps: apps, UpdatedAt: s.now()}
}

// Get returns the node's snapshot, if any.
func (s *InventoryStore) Get(nodeID string) (Inventory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.items[nodeID]
	return inv, ok
}
