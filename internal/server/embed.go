package server

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/couuas/serv00-ghost/webui"
	"github.com/gin-gonic/gin"
)

var dashboardTemplate = template.Must(template.ParseFS(webui.FS, "web/index.html"))

// dashboardView is what the page template sees. Guests get an empty Secret
// so the page cannot act on the machine channel.
type dashboardView struct {
	Secret   string
	IsAuthed bool
}

// RegisterDashboard mounts the dashboard page. Unmatched /api paths answer
// with JSON 404; everything else falls back to the page.
func (s *Server) RegisterDashboard(r *gin.Engine) {
	r.GET("/", s.handleDashboard)

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		s.handleDashboard(c)
	})
}

func (s *Server) handleDashboard(c *gin.Context) {
	view := dashboardView{IsAuthed: s.human.Authenticated(c.Request)}
	if view.IsAuthed {
		view.Secret = s.secret
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := dashboardTemplate.Execute(c.Writer, view); err != nil {
		_ = c.Error(err)
	}
}
