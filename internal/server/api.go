package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couuas/serv00-ghost/internal/apierr"
	"github.com/couuas/serv00-ghost/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RegisterRoutes wires the coordinator API onto r.
//
//	Machine channel (X-Cluster-Secret): heartbeat, log and inventory callbacks
//	Guest:                              node list, session, login, health
//	Human channel (cookie or Basic):    control, proxy, relayed data, events, metrics
func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	api := r.Group("/api")

	// ── Node → master ─────────────────────────────────────────────────────────
	node := api.Group("/", s.machine.Middleware(nil))
	{
		node.POST("/heartbeat", s.handleHeartbeat)
		node.POST("/callback/logs", s.handleLogsCallback)
		node.POST("/callback/apps", s.handleAppsCallback)
	}

	// ── Guest ─────────────────────────────────────────────────────────────────
	api.GET("/nodes", s.handleNodes)
	api.GET("/session", s.handleSession)
	api.POST("/login", s.handleLogin)

	// ── Dashboard operator ────────────────────────────────────────────────────
	human := api.Group("/", s.human.Middleware())
	{
		human.POST("/control", s.handleControl)
		human.POST("/apps/proxy", s.handleProxy)
		human.GET("/logs", s.handleGetLogs)
		human.GET("/apps", s.handleGetApps)
		human.GET("/events", s.handleEvents)
	}
	r.GET("/metrics", s.human.Middleware(), gin.WrapH(s.metrics.Handler()))
}

// abortWithError renders err through the error taxonomy. Internal details
// stay in the log.
func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	body := gin.H{"error": apierr.Message(err)}
	var e *apierr.Error
	if errors.As(err, &e) && e.RetryAfter > 0 {
		body["retry_after"] = e.RetryAfter
		c.Header("Retry-After", strconv.Itoa(e.RetryAfter))
	}
	c.AbortWithStatusJSON(apierr.Status(err), body)
}

func badRequest(err error) error {
	return apierr.Wrap(apierr.KindValidation, "invalid request body", err)
}

func (s *Server) record(kind models.EventKind, nodeID, detail string) {
	if s.journal != nil {
		s.journal.Record(kind, nodeID, detail)
	}
}

// ── Machine channel handlers ──────────────────────────────────────────────────

// handleHeartbeat updates the registry and hands back the node's mailbox.
//
//	POST /api/heartbeat
//	Body: { "node_id": "s1", "name": "...", "url": "...", "stats": {...}, "username": "..." }
func (s *Server) handleHeartbeat(c *gin.Context) {
	var hb models.Heartbeat
	if err := c.ShouldBindJSON(&hb); err != nil {
		abortWithError(c, badRequest(err))
		return
	}
	if hb.NodeID == "" {
		s.logger.Debug("heartbeat without node_id ignored", zap.String("ip", c.ClientIP()))
		c.JSON(http.StatusOK, models.HeartbeatResponse{Status: "ok", Commands: []models.Command{}})
		return
	}

	s.metrics.heartbeats.Inc()
	if s.registry.Update(hb) {
		s.logger.Info("node joined", zap.String("node_id", hb.NodeID), zap.String("name", hb.Name))
		s.record(models.EventNodeJoined, hb.NodeID, hb.Name)
	}

	cmds := s.mailbox.Drain(hb.NodeID)
	if len(cmds) > 0 {
		s.metrics.commandsDelivered.Add(float64(len(cmds)))
		s.logger.Info("commands delivered", zap.String("node_id", hb.NodeID), zap.Int("count", len(cmds)))
		s.record(models.EventCommandsDelivered, hb.NodeID, fmt.Sprintf("%d command(s)", len(cmds)))
	}
	c.JSON(http.StatusOK, models.HeartbeatResponse{Status: "ok", Commands: cmds})
}

// handleLogsCallback stores a log capture pushed by an agent.
func (s *Server) handleLogsCallback(c *gin.Context) {
	var body models.LogsCallback
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, badRequest(err))
		return
	}
	if err := validateStruct(&body); err != nil {
		abortWithError(c, err)
		return
	}
	s.logs.Put(body.NodeID, body.PMID, body.Content)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleAppsCallback stores a process inventory pushed by an agent.
func (s *Server) handleAppsCallback(c *gin.Context) {
	var body models.AppsCallback
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, badRequest(err))
		return
	}
	if err := validateStruct(&body); err != nil {
		abortWithError(c, err)
		return
	}
	s.inventory.Put(body.NodeID, body.Apps)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ── Guest handlers ────────────────────────────────────────────────────────────

// handleNodes lists every node. Guests get urls without embedded credentials.
func (s *Server) handleNodes(c *gin.Context) {
	nodes := s.registry.List()
	if !s.human.Authenticated(c.Request) {
		for i := range nodes {
			nodes[i].URL = redactURL(nodes[i].URL)
		}
	}
	c.JSON(http.StatusOK, nodes)
}

// handleSession reports the dashboard guard state. The machine secret is
// only revealed to authenticated operators.
func (s *Server) handleSession(c *gin.Context) {
	authed := s.human.Authenticated(c.Request)
	secret := ""
	if authed {
		secret = s.secret
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": authed, "secret": secret})
}

// handleLogin checks the dashboard password under the per-IP limiter. The
// failure is counted before the fail delay so concurrent attempts see it.
//
//	POST /api/login
//	Body: { "password": "..." }
func (s *Server) handleLogin(c *gin.Context) {
	ip := c.ClientIP()
	if retry, ok := s.limiter.Acquire(ip); !ok {
		abortWithError(c, apierr.RateLimited(retry))
		return
	}

	var body struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		s.limiter.Release(ip)
		abortWithError(c, badRequest(err))
		return
	}

	token, err := s.human.Login(body.Password)
	if errors.Is(err, errBadPassword) {
		retry, locked := s.limiter.RecordFailure(ip)
		s.metrics.loginFailures.Inc()
		s.record(models.EventLoginFailed, "", ip)
		sleep(c.Request.Context(), s.failDelay)

		if locked {
			s.metrics.loginLockouts.Inc()
			s.logger.Warn("login locked out", zap.String("ip", ip), zap.Int("retry_after", retry))
			s.record(models.EventLoginLocked, "", ip)
			abortWithError(c, apierr.RateLimited(retry))
			return
		}
		abortWithError(c, apierr.New(apierr.KindAuth, "Invalid password"))
		return
	}
	if err != nil {
		s.limiter.Release(ip)
		abortWithError(c, apierr.Wrap(apierr.KindInternal, "issuing session", err))
		return
	}

	s.limiter.Reset(ip)
	setSessionCookie(c, token)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ── Human channel handlers ────────────────────────────────────────────────────

// handleControl queues a command for a node's next heartbeat.
//
//	POST /api/control
//	Body: { "node_id": "s1", "action": "restart", "pm_id": 3 }
func (s *Server) handleControl(c *gin.Context) {
	var req models.ControlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, badRequest(err))
		return
	}
	if err := validateStruct(&req); err != nil {
		abortWithError(c, err)
		return
	}
	action, err := models.ParseAction(req.Action)
	if err != nil {
		abortWithError(c, apierr.Wrap(apierr.KindValidation, "invalid action", err))
		return
	}
	cmd := models.Command{ID: uuid.NewString(), Action: action, PMID: req.PMID}
	if err := cmd.Validate(); err != nil {
		abortWithError(c, apierr.Wrap(apierr.KindValidation, "invalid command", err))
		return
	}

	s.mailbox.Enqueue(req.NodeID, cmd)
	s.metrics.commandsEnqueued.WithLabelValues(string(action)).Inc()
	s.logger.Info("command queued",
		zap.String("node_id", req.NodeID),
		zap.String("action", string(action)),
		zap.String("pm_id", cmd.PMID.String()),
		zap.String("id", cmd.ID))
	s.record(models.EventCommandQueued, req.NodeID, fmt.Sprintf("%s %s", action, cmd.PMID))

	c.JSON(http.StatusOK, gin.H{"status": "ok", "id": cmd.ID})
}

// handleProxy relays the request body to the node's management API and
// answers with the node's status and JSON body as-is.
//
//	POST /api/apps/proxy
//	Body: { "node_id": "s1", "action": "logs", "pm_id": 3 }
func (s *Server) handleProxy(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		abortWithError(c, badRequest(err))
		return
	}
	var req models.ControlRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		abortWithError(c, badRequest(err))
		return
	}
	if err := validateStruct(&req); err != nil {
		abortWithError(c, err)
		return
	}

	reply, err := s.forwarder.Forward(c.Request.Context(), req.NodeID, raw)
	if err != nil {
		outcome := "error"
		if apierr.KindOf(err) == apierr.KindNotFound {
			outcome = "not_found"
		} else {
			s.record(models.EventProxyFailed, req.NodeID, apierr.Message(err))
		}
		s.metrics.proxyRequests.WithLabelValues(outcome).Inc()
		_ = c.Error(err)
		c.AbortWithStatusJSON(apierr.Status(err), gin.H{"success": false, "error": apierr.Message(err)})
		return
	}

	s.metrics.proxyRequests.WithLabelValues("ok").Inc()
	c.Data(reply.Status, "application/json; charset=utf-8", reply.Body)
}

// handleGetLogs returns the latest relayed log capture.
//
//	GET /api/logs?node_id=s1&pm_id=3
func (s *Server) handleGetLogs(c *gin.Context) {
	nodeID, pmID := c.Query("node_id"), c.Query("pm_id")
	if nodeID == "" || pmID == "" {
		abortWithError(c, apierr.New(apierr.KindValidation, "node_id and pm_id are required"))
		return
	}
	entry, ok := s.logs.Get(nodeID, models.ProcessID(pmID))
	if !ok {
		abortWithError(c, apierr.New(apierr.KindNotFound, "no logs captured yet"))
		return
	}
	c.JSON(http.StatusOK, entry)
}

// handleGetApps returns the latest relayed process inventory.
//
//	GET /api/apps?node_id=s1
func (s *Server) handleGetApps(c *gin.Context) {
	nodeID := c.Query("node_id")
	if nodeID == "" {
		abortWithError(c, apierr.New(apierr.KindValidation, "node_id is required"))
		return
	}
	inv, ok := s.inventory.Get(nodeID)
	if !ok {
		abortWithError(c, apierr.New(apierr.KindNotFound, "no inventory reported yet"))
		return
	}
	c.JSON(http.StatusOK, inv)
}

// handleEvents returns the newest journal entries.
//
//	GET /api/events?limit=50
func (s *Server) handleEvents(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusOK, []models.Event{})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 1000 {
		abortWithError(c, apierr.New(apierr.KindValidation, "limit must be between 1 and 1000"))
		return
	}
	events, err := s.journal.Recent(limit)
	if err != nil {
		abortWithError(c, apierr.Wrap(apierr.KindInternal, "reading events", err))
		return
	}
	c.JSON(http.StatusOK, events)
}

// redactURL removes credential-bearing query parameters from a node url.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	q := u.Query()
	if !q.Has("password") && !q.Has("secret") {
		return raw
	}
	q.Del("password")
	q.Del("secret")
	u.RawQuery = q.Encode()
	return u.String()
}
