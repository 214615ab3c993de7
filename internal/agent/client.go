package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/couuas/serv00-ghost/internal/auth"
	"github.com/couuas/serv00-ghost/internal/models"
)

// MasterClient talks to the coordinator's machine channel. Every request
// carries X-Cluster-Secret when a secret is configured.
type MasterClient struct {
	base   string
	secret string
	http   *http.Client
}

// NewMasterClient creates a client for the master at baseURL.
func NewMasterClient(baseURL, secret string, timeout time.Duration) *MasterClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MasterClient{
		base:   strings.TrimRight(baseURL, "/"),
		secret: secret,
		http:   &http.Client{Timeout: timeout},
	}
}

// Heartbeat reports hb and returns the commands queued for this node.
func (m *MasterClient) Heartbeat(ctx context.Context, hb models.Heartbeat) (*models.HeartbeatResponse, error) {
	var resp models.HeartbeatResponse
	if err := m.postJSON(ctx, "/api/heartbeat", hb, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PushLogs sends a captured log tail.
func (m *MasterClient) PushLogs(ctx context.Context, body models.LogsCallback) error {
	return m.postJSON(ctx, "/api/callback/logs", body, nil)
}

// PushApps sends a process inventory.
func (m *MasterClient) PushApps(ctx context.Context, body models.AppsCallback) error {
	return m.postJSON(ctx, "/api/callback/apps", body, nil)
}

// postJSON sends v as JSON and decodes the reply into out when out is not nil.
func (m *MasterClient) postJSON(ctx context.Context, path string, v, out any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	auth.SetSecret(req, m.secret)

	resp, err := m.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("master rejected the cluster secret (403) on %s", path)
	}
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("master returned %d on %s: %s", resp.StatusCode, path, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
