package server

import (
	"fmt"
	"sync"
	"testing"

	"github.com/couuas/serv00-ghost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailboxDrainTwice(t *testing.T) {
	m := NewMailbox()
	m.Enqueue("s1", models.Command{Action: models.ActionRestart, PMID: "3"})
	m.Enqueue("s1", models.Command{Action: models.ActionListApps})
	m.Enqueue("s2", models.Command{Action: models.ActionStop, PMID: "1"})

	first := m.Drain("s1")
	require.Len(t, first, 2)
	assert.Equal(t, models.ActionRestart, first[0].Action)
	assert.Equal(t, models.ActionListApps, first[1].Action)

	second := m.Drain("s1")
	assert.NotNil(t, second)
	assert.Empty(t, second)

	assert.Equal(t, 1, m.Pending("s2"))
}

func TestMailboxDrainUnknownNode(t *testing.T) {
	cmds := NewMailbox().Drain("nobody")
	assert.NotNil(t, cmds)
	assert.Empty(t, cmds)
}

func TestMailboxConcurrentEnqueueDrain(t *testing.T) {
	m := NewMailbox()
	const producers, perProducer = 8, 200

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				m.Enqueue("s1", models.Command{Action: models.ActionStart, PMID: models.ProcessID(fmt.Sprintf("%d-%d", p, i))})
			}
		}(p)
	}

	seen := make(map[models.ProcessID]int)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for finished := false; !finished; {
		select {
		case <-done:
			finished = true
		default:
		}
		for _, c := range m.Drain("s1") {
			seen[c.PMID]++
		}
	}

	assert.Len(t, seen, producers*perProducer)
	for id, n := range seen {
		assert.Equal(t, 1, n, "command %s delivered more than once", id)
	}
}
