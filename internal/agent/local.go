package agent

import (
	"net/http"

	"github.com/couuas/serv00-ghost/internal/auth"
	"github.com/couuas/serv00-ghost/internal/logging"
	"github.com/couuas/serv00-ghost/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LocalAPI is the node-local management endpoint the master proxies
// dashboard requests to.
type LocalAPI struct {
	pm       ProcessManager
	secret   *auth.MachineAuth
	logLines int
	logger   *zap.Logger
}

// NewLocalAPI creates the management API. An empty secret leaves it open.
func NewLocalAPI(pm ProcessManager, secret string, logLines int, logger *zap.Logger) *LocalAPI {
	return &LocalAPI{pm: pm, secret: auth.NewMachineAuth(secret), logLines: logLines, logger: logger}
}

// Handler returns a gin engine serving only the management route.
func (l *LocalAPI) Handler() *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies(nil)
	r.Use(gin.Recovery(), logging.GinMiddleware(l.logger.Named("http")))
	l.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts POST /api/slave/pm2 on r.
func (l *LocalAPI) RegisterRoutes(r gin.IRoutes) {
	r.POST(models.LocalManagementPath, l.secret.Middleware(func(c *gin.Context) {
		fail(c, http.StatusForbidden, "Forbidden")
	}), l.handle)
}

type localRequest struct {
	Action string           `json:"action"`
	PMID   models.ProcessID `json:"pm_id"`
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}

//	POST /api/slave/pm2
//	Body: { "action": "list" | "start" | "stop" | "restart" | "delete" | "logs", "pm_id": 3 }
func (l *LocalAPI) handle(c *gin.Context) {
	var req localRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	action, err := models.ParseAction(req.Action)
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid action")
		return
	}
	if action.NeedsTarget() && req.PMID == "" {
		fail(c, http.StatusBadRequest, "pm_id is required")
		return
	}

	ctx := c.Request.Context()
	switch action {
	case models.ActionListApps:
		apps, err := l.pm.List(ctx)
		if err != nil {
			l.logger.Warn("list failed", zap.Error(err))
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": apps})

	case models.ActionLogs:
		text, err := l.pm.Logs(ctx, req.PMID, l.logLines)
		if err != nil {
			l.logger.Warn("logs failed", zap.String("pm_id", req.PMID.String()), zap.Error(err))
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "logs": text})

	case models.ActionStart, models.ActionStop, models.ActionRestart, models.ActionDelete:
		if err := l.pm.Control(ctx, action, req.PMID); err != nil {
			l.logger.Warn("control failed",
				zap.String("action", string(action)), zap.String("pm_id", req.PMID.String()), zap.Error(err))
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		l.logger.Info("control done", zap.String("action", string(action)), zap.String("pm_id", req.PMID.String()))
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
