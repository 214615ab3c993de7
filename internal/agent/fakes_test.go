package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/couuas/serv00-ghost/internal/models"
)

type fakePM struct {
	mu    sync.Mutex
	apps  []models.App
	logs  string
	err   error
	calls []string
}

func (f *fakePM) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakePM) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakePM) List(ctx context.Context) ([]models.App, error) {
	f.record("list")
	return f.apps, f.err
}

func (f *fakePM) Logs(ctx context.Context, id models.ProcessID, lines int) (string, error) {
	f.record(fmt.Sprintf("logs %s %d", id, lines))
	return f.logs, f.err
}

func (f *fakePM) Control(ctx context.Context, action models.Action, id models.ProcessID) error {
	f.record(fmt.Sprintf("%s %s", action, id))
	return f.err
}

type fakeReporter struct {
	mu   sync.Mutex
	logs []models.LogsCallback
	apps []models.AppsCallback
	err  error
}

func (f *fakeReporter) PushLogs(ctx context.Context, body models.LogsCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, body)
	return f.err
}

func (f *fakeReporter) PushApps(ctx context.Context, body models.AppsCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apps = append(f.apps, body)
	return f.err
}

type staticStats models.Stats

func (s staticStats) Collect(context.Context) models.Stats { return models.Stats(s) }
