package models

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cast"
)

// Action is the closed set of operations a node can be asked to perform.
type Action string

const (
	ActionStart    Action = "start"
	ActionStop     Action = "stop"
	ActionRestart  Action = "restart"
	ActionDelete   Action = "delete"
	ActionLogs     Action = "logs"
	ActionListApps Action = "list_apps"
)

// Actions lists every valid Action in a stable order.
var Actions = []Action{ActionStart, ActionStop, ActionRestart, ActionDelete, ActionLogs, ActionListApps}

// ParseAction accepts the mailbox spelling of an action, plus "list" which the
// node-local management API uses for list_apps.
func ParseAction(s string) (Action, error) {
	if s == "list" {
		return ActionListApps, nil
	}
	for _, a := range Actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// NeedsTarget reports whether the action operates on a single process.
func (a Action) NeedsTarget() bool {
	return a != ActionListApps
}

// ProcessID is a process-manager identifier. PM2 ids are integers but the
// dashboard sometimes sends them as strings, so both decode.
type ProcessID string

// UnmarshalJSON accepts a JSON number, string or null.
func (p *ProcessID) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if v == nil {
		*p = ""
		return nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Errorf("pm_id: %w", err)
	}
	*p = ProcessID(s)
	return nil
}

// MarshalJSON emits numeric ids as numbers and anything else as a string.
func (p ProcessID) MarshalJSON() ([]byte, error) {
	if p == "" {
		return []byte("null"), nil
	}
	if n, err := strconv.ParseInt(string(p), 10, 64); err == nil {
		return []byte(strconv.FormatInt(n, 10)), nil
	}
	return json.Marshal(string(p))
}

func (p ProcessID) String() string { return string(p) }

// Command is a queued instruction for one node. ID is assigned by the
// master on enqueue and only used for log correlation.
type Command struct {
	ID     string    `json:"id,omitempty"`
	Action Action    `json:"action"`
	PMID   ProcessID `json:"pm_id,omitempty"`
}

// Validate checks the action is known and a target is present when needed.
func (c Command) Validate() error {
	if _, err := ParseAction(string(c.Action)); err != nil {
		return err
	}
	if c.Action.NeedsTarget() && c.PMID == "" {
		return fmt.Errorf("action %q requires pm_id", c.Action)
	}
	return nil
}

// ControlRequest is the dashboard body for /api/control and /api/apps/proxy.
type ControlRequest struct {
	NodeID string    `json:"node_id" validate:"required"`
	Action string    `json:"action" validate:"required"`
	PMID   ProcessID `json:"pm_id"`
}
