package agent

import (
	"context"

	"github.com/couuas/serv00-ghost/internal/models"
	"go.uber.org/zap"
)

// Reporter receives the results of round-trip commands.
type Reporter interface {
	PushLogs(ctx context.Context, body models.LogsCallback) error
	PushApps(ctx context.Context, body models.AppsCallback) error
}

// Executor runs mailbox commands against the local process manager.
// Failures are logged and dropped; the next heartbeat carries on.
type Executor struct {
	nodeID   string
	pm       ProcessManager
	reporter Reporter
	logLines int
	logger   *zap.Logger
}

// NewExecutor creates an Executor reporting results as nodeID.
func NewExecutor(nodeID string, pm ProcessManager, reporter Reporter, logLines int, logger *zap.Logger) *Executor {
	return &Executor{nodeID: nodeID, pm: pm, reporter: reporter, logLines: logLines, logger: logger}
}

// Execute runs one command to completion.
func (e *Executor) Execute(ctx context.Context, cmd models.Command) {
	log := e.logger.With(zap.String("action", string(cmd.Action)), zap.String("pm_id", cmd.PMID.String()))
	if cmd.ID != "" {
		log = log.With(zap.String("id", cmd.ID))
	}
	if err := cmd.Validate(); err != nil {
		log.Warn("command rejected", zap.Error(err))
		return
	}

	switch cmd.Action {
	case models.ActionListApps:
		apps, err := e.pm.List(ctx)
		if err != nil {
			log.Warn("listing processes failed", zap.Error(err))
			return
		}
		if err := e.reporter.PushApps(ctx, models.AppsCallback{NodeID: e.nodeID, Apps: apps}); err != nil {
			log.Warn("pushing inventory failed", zap.Error(err))
			return
		}
		log.Debug("inventory pushed", zap.Int("apps", len(apps)))

	case models.ActionLogs:
		text, err := e.pm.Logs(ctx, cmd.PMID, e.logLines)
		if err != nil {
			log.Warn("reading logs failed", zap.Error(err))
			return
		}
		if err := e.reporter.PushLogs(ctx, models.LogsCallback{NodeID: e.nodeID, PMID: cmd.PMID, Content: text}); err != nil {
			log.Warn("pushing logs failed", zap.Error(err))
			return
		}
		log.Debug("logs pushed", zap.Int("bytes", len(text)))

	case models.ActionStart, models.ActionStop, models.ActionRestart, models.ActionDelete:
		if err := e.pm.Control(ctx, cmd.Action, cmd.PMID); err != nil {
			log.Warn("process control failed", zap.Error(err))
			return
		}
		log.Info("process control done")
	}
}
