package agent

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/couuas/serv00-ghost/internal/auth"
	"github.com/couuas/serv00-ghost/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func postLocal(t *testing.T, h http.Handler, secret, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, models.LocalManagementPath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(auth.SecretHeader, secret)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLocalAPIActions(t *testing.T) {
	pm := &fakePM{apps: []models.App{{PMID: "0", Name: "web", Status: "online"}}, logs: "tail"}
	h := NewLocalAPI(pm, "sek", 20, zaptest.NewLogger(t)).Handler()

	rec := postLocal(t, h, "sek", `{"action":"list"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":[{"pm_id":0,"name":"web","status":"online","memory":0,"cpu":0,"uptime":0}]}`, rec.Body.String())

	rec = postLocal(t, h, "sek", `{"action":"logs","pm_id":"0"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"logs":"tail"}`, rec.Body.String())

	rec = postLocal(t, h, "sek", `{"action":"restart","pm_id":0}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	assert.Equal(t, []string{"list", "logs 0 20", "restart 0"}, pm.Calls())
}

func TestLocalAPIErrors(t *testing.T) {
	pm := &fakePM{}
	h := NewLocalAPI(pm, "sek", 20, zaptest.NewLogger(t)).Handler()

	rec := postLocal(t, h, "", `{"action":"list"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Forbidden"}`, rec.Body.String())

	rec = postLocal(t, h, "sek", `{"action":"explode","pm_id":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Invalid action"}`, rec.Body.String())

	rec = postLocal(t, h, "sek", `{"action":"stop"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, pm.Calls())

	pm.err = errors.New("process or namespace 9 not found")
	rec = postLocal(t, h, "sek", `{"action":"delete","pm_id":9}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"process or namespace 9 not found"}`, rec.Body.String())
}

func TestLocalAPIOpenWithoutSecret(t *testing.T) {
	h := NewLocalAPI(&fakePM{}, "", 20, zaptest.NewLogger(t)).Handler()
	rec := postLocal(t, h, "", `{"action":"list"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}
