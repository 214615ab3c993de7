package server

import (
	"sync"

	"github.com/couuas/serv00-ghost/internal/models"
)

// Mailbox holds pending commands per node until the node's next heartbeat
// collects them. Delivery is destructive and at-most-once: commands for a
// node that never returns are lost.
type Mailbox struct {
	mu     sync.Mutex
	queues map[string][]models.Command
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{queues: make(map[string][]models.Command)}
}

// Enqueue appends cmd to the node's queue.
func (m *Mailbox) Enqueue(nodeID string, cmd models.Command) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[nodeID] = append(m.queues[nodeID], cmd)
}

// Drain returns and clears the node's queue in one step. The result is
// never nil so it always encodes as a JSON array.
func (m *Mailbox) Drain(nodeID string) []models.Command {
	m.mu.Lock()
	cmds := m.queues[nodeID]
	delete(m.queues, nodeID)
	m.mu.Unlock()

	if cmds == nil {
		return []models.Command{}
	}
	return cmds
}

// Pending returns how many commands wait for nodeID.
func (m *Mailbox) Pending(nodeID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[nodeID])
}
