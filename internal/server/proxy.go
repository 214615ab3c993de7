package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/couuas/serv00-ghost/internal/apierr"
	"github.com/couuas/serv00-ghost/internal/auth"
	"github.com/couuas/serv00-ghost/internal/models"
	"go.uber.org/zap"
)

const (
	maxProxyBody   = 8 << 20
	excerptRunes   = 200
	defaultTimeout = 180 * time.Second
)

// ProxyReply is a node response relayed verbatim.
type ProxyReply struct {
	Status int
	Body   []byte
}

// Forwarder relays dashboard requests to a node's management API and hands
// the node's JSON answer back unmodified.
type Forwarder struct {
	registry *Registry
	secret   string
	client   *http.Client
	logger   *zap.Logger
}

// NewForwarder creates a Forwarder. The timeout covers the whole round
// trip; log and list operations shell out on the node and can be slow.
func NewForwarder(registry *Registry, secret string, timeout time.Duration, logger *zap.Logger) *Forwarder {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Forwarder{
		registry: registry,
		secret:   secret,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Forward posts body to the management API of nodeID. Unknown or offline
// nodes fail with NotFound before any network call. Transport failures and
// non-JSON replies fail with Upstream.
func (f *Forwarder) Forward(ctx context.Context, nodeID string, body []byte) (*ProxyReply, error) {
	node, ok := f.registry.Get(nodeID)
	if !ok {
		return nil, apierr.New(apierr.KindNotFound, "node not found")
	}
	if !node.IsOnline {
		return nil, apierr.New(apierr.KindNotFound, "node is offline")
	}
	target, err := managementURL(node.URL)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindNotFound, "node has no usable url", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindUpstream, "building node request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	auth.SetSecret(req, f.secret)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindUpstream, "forwarding to node", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxProxyBody))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindUpstream, "reading node response", err)
	}
	if !json.Valid(raw) {
		f.logger.Warn("node returned non-JSON",
			zap.String("node_id", nodeID), zap.Int("status", resp.StatusCode))
		return nil, apierr.Wrap(apierr.KindUpstream,
			fmt.Sprintf("node returned non-JSON response (HTTP %d)", resp.StatusCode),
			errors.New(excerpt(raw)))
	}
	return &ProxyReply{Status: resp.StatusCode, Body: raw}, nil
}

// managementURL drops query and fragment from a node's reported url (it may
// carry SSH deep-link parameters) and appends the management path.
func managementURL(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", raw)
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/") + models.LocalManagementPath
	u.RawPath = ""
	return u.String(), nil
}

// excerpt returns at most excerptRunes runes of b for error messages.
func excerpt(b []byte) string {
	s := strings.TrimSpace(string(b))
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "?")
	}
	if utf8.RuneCountInString(s) <= excerptRunes {
		return s
	}
	r := []rune(s)
	return string(r[:excerptRunes]) + "..."
}
