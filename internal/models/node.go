// Package models defines the wire and in-memory data types shared by the
// master and the agent.
package models

import "time"

// LocalManagementPath is the node-local process-manager endpoint the master
// proxies dashboard requests to.
const LocalManagementPath = "/api/slave/pm2"

// Stats is the telemetry snapshot an agent attaches to every heartbeat.
// A field the agent stops reporting is lost on the next heartbeat because
// the master replaces the whole record.
type Stats struct {
	CPU       float64 `json:"cpu"`        // percent, or load average on fallback
	RAMUsage  uint64  `json:"ram_usage"`  // bytes used
	RAMTotal  uint64  `json:"ram_total"`  // bytes total
	DiskUsage float64 `json:"disk_usage"` // percent of /
	Processes int     `json:"processes"`
}

// Heartbeat is the body an agent POSTs to /api/heartbeat.
type Heartbeat struct {
	NodeID   string `json:"node_id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Stats    Stats  `json:"stats"`
	Username string `json:"username"`
	Season   string `json:"season,omitempty"`
}

// Node is a registry record. LastSeen is stamped by the master on receipt
// and never taken from the agent.
type Node struct {
	NodeID   string    `json:"node_id"`
	Name     string    `json:"name"`
	URL      string    `json:"url"`
	Stats    Stats     `json:"stats"`
	Username string    `json:"username"`
	Season   string    `json:"season,omitempty"`
	LastSeen time.Time `json:"last_seen"`

	// IsOnline is derived at read time; it is never stored.
	IsOnline bool `json:"is_online"`
}

// HeartbeatResponse carries the drained mailbox back to the agent.
type HeartbeatResponse struct {
	Status   string    `json:"status"`
	Commands []Command `json:"commands"`
}

// App is one row of a process-manager inventory.
type App struct {
	PMID   ProcessID `json:"pm_id"`
	Name   string    `json:"name"`
	Status string    `json:"status"`
	Memory uint64    `json:"memory"` // bytes
	CPU    float64   `json:"cpu"`    // percent
	Uptime int64     `json:"uptime"` // seconds since start, 0 when not running
}

// LogsCallback is pushed by an agent after running a logs command.
type LogsCallback struct {
	NodeID  string    `json:"node_id" validate:"required"`
	PMID    ProcessID `json:"pm_id"`
	Content string    `json:"content"`
}

// AppsCallback is pushed by an agent after running a list_apps command.
type AppsCallback struct {
	NodeID string `json:"node_id" validate:"required"`
	Apps   []App  `json:"apps"`
}
