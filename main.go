// serv00-ghost: heartbeat-driven cluster coordinator for PM2 nodes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/couuas/serv00-ghost/internal/agent"
	"github.com/couuas/serv00-ghost/internal/config"
	"github.com/couuas/serv00-ghost/internal/logging"
	"github.com/couuas/serv00-ghost/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const asciiLogo = `
  ___  ___ _ ____   __   ___   ___         __ _| |__   ___  ___| |_
 / __|/ _ \ '__\ \ / /  / _ \ / _ \ _____ / _' | '_ \ / _ \/ __| __|
 \__ \  __/ |   \ V /  | (_) | (_) |_____| (_| | | | | (_) \__ \ |_
 |___/\___|_|    \_/    \___/ \___/       \__, |_| |_|\___/|___/\__|
                                          |___/
`

const version = "v0.1.0"

// embeddedAgentName identifies the agent started by master --with-agent.
const embeddedAgentName = "Master-Local"

func printBanner(mode string) {
	fmt.Print(asciiLogo + "\n")
	fmt.Printf("  ► serv00-ghost %s  |  Mode: %s\n\n", version, mode)
}

func main() {
	root := &cobra.Command{
		Use:   "serv00-ghost",
		Short: "serv00-ghost: cluster coordinator for PM2-managed nodes",
		Long: `serv00-ghost is a single binary with two roles. The master keeps the node
registry, queues commands for nodes and serves the dashboard. The agent
reports telemetry every few seconds and runs the commands it is handed.`,
		SilenceUsage: true,
	}

	// ── master subcommand ─────────────────────────────────────────────────────
	masterCmd := &cobra.Command{
		Use:   "master",
		Short: "Start the coordinator and dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("MASTER")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			applyMasterFlags(cmd, cfg)

			log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			srv, err := server.NewFromConfig(cfg, log.Named("master"))
			if err != nil {
				return err
			}
			defer srv.Close()

			gin.SetMode(gin.ReleaseMode)
			engine := srv.Handler()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var embedded *agent.Agent
			if cfg.WithAgent {
				a, local, err := embeddedAgent(cfg, log.Named("agent"))
				if err != nil {
					return fmt.Errorf("embedded agent: %w", err)
				}
				local.RegisterRoutes(engine)
				embedded = a
			}

			addr := net.JoinHostPort(cfg.ListenHost, strconv.Itoa(cfg.Port))
			fmt.Printf("  ✓ Dashboard + API → http://%s\n", addr)
			if cfg.AuthPassword == "" {
				fmt.Println("  ! Dashboard password not set: running in open mode")
			}
			if cfg.Secret == "" {
				fmt.Println("  ! Cluster secret not set: accepting heartbeats from anyone")
			}
			if embedded != nil {
				fmt.Printf("  ✓ Embedded agent  → %s\n", embeddedAgentName)
			}
			fmt.Println()

			return serve(ctx, log, &http.Server{Addr: addr, Handler: engine}, embedded)
		},
	}
	masterCmd.Flags().String("host", "", "Listen address (overrides listen_host)")
	masterCmd.Flags().Int("port", 0, "Listen port (overrides port)")
	masterCmd.Flags().String("secret", "", "Cluster secret shared with agents")
	masterCmd.Flags().String("password", "", "Dashboard password")
	masterCmd.Flags().Bool("with-agent", false, "Also run an agent on this host reporting to this master")

	// ── agent subcommand ──────────────────────────────────────────────────────
	agentCmd := &cobra.Command{
		Use:   "agent",
		Short: "Start the node agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("AGENT")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			applyAgentFlags(cmd, cfg)

			log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			a, local, err := agent.NewFromConfig(cfg, log.Named("agent"))
			if err != nil {
				return err
			}

			gin.SetMode(gin.ReleaseMode)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Printf("  ✓ Master:           %s\n", cfg.MasterURL)
			fmt.Printf("  ✓ Management API:   %s\n", cfg.AgentListen)
			fmt.Printf("  ✓ Report interval:  %ds\n\n", cfg.HeartbeatIntervalSeconds)

			return serve(ctx, log, &http.Server{Addr: cfg.AgentListen, Handler: local.Handler()}, a)
		},
	}
	agentCmd.Flags().String("master-url", "", "Master base URL, e.g. https://panel.example.com")
	agentCmd.Flags().String("secret", "", "Cluster secret (overrides config)")
	agentCmd.Flags().String("node-id", "", "Node id (defaults to the node name)")
	agentCmd.Flags().String("node-name", "", "Node name (defaults to the hostname)")
	agentCmd.Flags().String("external-url", "", "URL where the master can reach this node")
	agentCmd.Flags().String("listen", "", "Management API listen address (overrides agent_listen)")

	// ── version subcommand ────────────────────────────────────────────────────
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print serv00-ghost version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("serv00-ghost %s\n", version)
		},
	}

	root.AddCommand(masterCmd, agentCmd, versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// applyMasterFlags lets CLI flags override loaded config values.
func applyMasterFlags(cmd *cobra.Command, cfg *config.Config) {
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.ListenHost = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Port = port
	}
	if cmd.Flags().Changed("secret") {
		cfg.Secret, _ = cmd.Flags().GetString("secret")
	}
	if cmd.Flags().Changed("password") {
		cfg.AuthPassword, _ = cmd.Flags().GetString("password")
	}
	if with, _ := cmd.Flags().GetBool("with-agent"); with {
		cfg.WithAgent = true
	}
}

func applyAgentFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("master-url"); v != "" {
		cfg.MasterURL = v
	}
	if cmd.Flags().Changed("secret") {
		cfg.Secret, _ = cmd.Flags().GetString("secret")
	}
	if v, _ := cmd.Flags().GetString("node-id"); v != "" {
		cfg.NodeID = v
	}
	if v, _ := cmd.Flags().GetString("node-name"); v != "" {
		cfg.NodeName = v
	}
	if v, _ := cmd.Flags().GetString("external-url"); v != "" {
		cfg.ExternalURL = v
	}
	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		cfg.AgentListen = v
	}
}

// embeddedAgent builds the agent that master --with-agent runs in-process.
// Its management route is mounted on the master's own listener.
func embeddedAgent(cfg *config.Config, log *zap.Logger) (*agent.Agent, *agent.LocalAPI, error) {
	local := *cfg
	local.MasterURL = fmt.Sprintf("http://127.0.0.1:%d", cfg.Port)
	local.NodeID = embeddedAgentName
	local.NodeName = embeddedAgentName
	if local.ExternalURL == "" {
		local.ExternalURL = local.MasterURL
	}
	return agent.NewFromConfig(&local, log)
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
// When a is not nil its heartbeat loop runs alongside.
func serve(ctx context.Context, log *zap.Logger, srv *http.Server, a *agent.Agent) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	agentDone := make(chan struct{})
	if a != nil {
		go func() {
			defer close(agentDone)
			_ = a.Run(ctx)
		}()
	} else {
		close(agentDone)
	}

	var runErr error
	select {
	case err := <-errCh:
		log.Error("listener failed", zap.String("addr", srv.Addr), zap.Error(err))
		runErr = err
	case <-ctx.Done():
		fmt.Println("\n  → Shutting down gracefully…")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if runErr == nil {
		<-agentDone
	}
	return runErr
}
