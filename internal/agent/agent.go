// Package agent implements the serv00-ghost node agent.
// It reports telemetry to the master on a fixed interval, runs the commands
// handed back in each heartbeat response and serves the node-local
// management API the master proxies dashboard requests to.
package agent

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/couuas/serv00-ghost/internal/config"
	"github.com/couuas/serv00-ghost/internal/models"
	"go.uber.org/zap"
)

// Master is the coordinator as seen from a node.
type Master interface {
	Reporter
	Heartbeat(ctx context.Context, hb models.Heartbeat) (*models.HeartbeatResponse, error)
}

// Identity is the descriptive part of every heartbeat.
type Identity struct {
	NodeID   string
	Name     string
	URL      string
	Username string
	Season   string
}

// Options configures an Agent.
type Options struct {
	Identity Identity
	Interval time.Duration
	Master   Master
	Stats    StatsSource
	Executor *Executor
	Logger   *zap.Logger
}

// Agent is the heartbeat loop of one node.
type Agent struct {
	id       Identity
	interval time.Duration
	master   Master
	stats    StatsSource
	exec     *Executor
	logger   *zap.Logger

	wg sync.WaitGroup
}

// New creates an Agent. Interval defaults to 10s.
func New(opts Options) *Agent {
	interval := opts.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Agent{
		id:       opts.Identity,
		interval: interval,
		master:   opts.Master,
		stats:    opts.Stats,
		exec:     opts.Executor,
		logger:   log,
	}
}

// NewFromConfig wires an Agent and its local management API from cfg.
func NewFromConfig(cfg *config.Config, log *zap.Logger) (*Agent, *LocalAPI, error) {
	if err := cfg.ValidateAgent(); err != nil {
		return nil, nil, err
	}

	name := cfg.NodeName
	if name == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, nil, fmt.Errorf("resolving hostname: %w", err)
		}
		name = host
	}
	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = name
	}
	base := cfg.ExternalURL
	if base == "" {
		base = fallbackURL(cfg.AgentListen)
	}

	id := Identity{
		NodeID: nodeID,
		Name:   name,
		URL: DeepLink(base, SSHLink{
			Host:     cfg.SSHHost,
			Port:     cfg.SSHPort,
			User:     cfg.SSHUser,
			Password: cfg.SSHPassword,
		}, cfg.Secret),
		Username: cfg.SSHUser,
		Season:   Season(cfg.SSHHost),
	}

	pm := NewPM2(cfg.PM2Command, cfg.ExecTimeout(), nil, nil)
	master := NewMasterClient(cfg.MasterURL, cfg.Secret, 0)
	a := New(Options{
		Identity: id,
		Interval: cfg.HeartbeatInterval(),
		Master:   master,
		Stats:    NewCollector(log.Named("collector")),
		Executor: NewExecutor(nodeID, pm, master, cfg.LogLines, log.Named("executor")),
		Logger:   log,
	})
	return a, NewLocalAPI(pm, cfg.Secret, cfg.LogLines, log.Named("local")), nil
}

// fallbackURL is where the local API is reachable when no external url is
// configured.
func fallbackURL(listen string) string {
	_, port, err := net.SplitHostPort(listen)
	if err != nil || port == "" {
		port = strings.TrimPrefix(listen, ":")
	}
	return "http://127.0.0.1:" + port
}

// Run sends a heartbeat immediately and then every interval until ctx is
// done. A heartbeat round completes before the next tick is taken, so
// rounds never overlap. It waits for running commands before returning.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("agent started",
		zap.String("node_id", a.id.NodeID),
		zap.String("name", a.id.Name),
		zap.Duration("interval", a.interval))

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		a.Beat(ctx)
		select {
		case <-ctx.Done():
			a.wg.Wait()
			a.logger.Info("agent stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Beat performs one heartbeat round and starts the returned commands in the
// background. Errors are logged; the next round retries naturally.
func (a *Agent) Beat(ctx context.Context) {
	hb := models.Heartbeat{
		NodeID:   a.id.NodeID,
		Name:     a.id.Name,
		URL:      a.id.URL,
		Stats:    a.stats.Collect(ctx),
		Username: a.id.Username,
		Season:   a.id.Season,
	}

	resp, err := a.master.Heartbeat(ctx, hb)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Warn("heartbeat failed", zap.Error(err))
		}
		return
	}

	for _, cmd := range resp.Commands {
		a.wg.Add(1)
		go func(cmd models.Command) {
			defer a.wg.Done()
			a.exec.Execute(ctx, cmd)
		}(cmd)
	}
}

// Wait blocks until every command started by Beat has finished.
func (a *Agent) Wait() {
	a.wg.Wait()
}
