package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/couuas/serv00-ghost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedExecutor(pm ProcessManager, rep Reporter) (*Executor, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return NewExecutor("s1", pm, rep, 100, zap.New(core)), logs
}

func TestExecutorListApps(t *testing.T) {
	pm := &fakePM{apps: []models.App{{PMID: "0", Name: "web", Status: "online"}}}
	rep := &fakeReporter{}
	exec, _ := newObservedExecutor(pm, rep)

	exec.Execute(context.Background(), models.Command{Action: models.ActionListApps})

	require.Len(t, rep.apps, 1)
	assert.Equal(t, "s1", rep.apps[0].NodeID)
	assert.Equal(t, pm.apps, rep.apps[0].Apps)
	assert.Empty(t, rep.logs)
}

func TestExecutorLogs(t *testing.T) {
	pm := &fakePM{logs: "hello\nworld"}
	rep := &fakeReporter{}
	exec, _ := newObservedExecutor(pm, rep)

	exec.Execute(context.Background(), models.Command{Action: models.ActionLogs, PMID: "3"})

	assert.Equal(t, []string{"logs 3 100"}, pm.Calls())
	require.Len(t, rep.logs, 1)
	assert.Equal(t, models.LogsCallback{NodeID: "s1", PMID: "3", Content: "hello\nworld"}, rep.logs[0])
}

func TestExecutorControlIsFireAndForget(t *testing.T) {
	pm := &fakePM{}
	rep := &fakeReporter{}
	exec, _ := newObservedExecutor(pm, rep)

	for _, a := range []models.Action{models.ActionStart, models.ActionStop, models.ActionRestart, models.ActionDelete} {
		exec.Execute(context.Background(), models.Command{Action: a, PMID: "7"})
	}

	assert.Equal(t, []string{"start 7", "stop 7", "restart 7", "delete 7"}, pm.Calls())
	assert.Empty(t, rep.apps)
	assert.Empty(t, rep.logs)
}

func TestExecutorSwallowsFailures(t *testing.T) {
	pm := &fakePM{err: errors.New("pm2 exited with 1")}
	rep := &fakeReporter{}
	exec, logs := newObservedExecutor(pm, rep)

	exec.Execute(context.Background(), models.Command{Action: models.ActionRestart, PMID: "1"})
	exec.Execute(context.Background(), models.Command{Action: models.ActionListApps})

	assert.Empty(t, rep.apps, "nothing is reported when the process manager fails")
	assert.Equal(t, 2, logs.FilterLevelExact(zap.WarnLevel).Len())
}

func TestExecutorRejectsInvalidCommands(t *testing.T) {
	pm := &fakePM{}
	exec, logs := newObservedExecutor(pm, &fakeReporter{})

	exec.Execute(context.Background(), models.Command{Action: "reboot", PMID: "1"})
	exec.Execute(context.Background(), models.Command{Action: models.ActionStop})

	assert.Empty(t, pm.Calls())
	assert.Equal(t, 2, logs.FilterMessage("command rejected").Len())
}
