package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/couuas/serv00-ghost/internal/models"
	"github.com/tidwall/gjson"
)

// ProcessManager is the node's external process supervisor.
type ProcessManager interface {
	List(ctx context.Context) ([]models.App, error)
	Logs(ctx context.Context, id models.ProcessID, lines int) (string, error)
	Control(ctx context.Context, action models.Action, id models.ProcessID) error
}

// Runner executes name with args and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command as a child process. A non-zero exit is
// reported with the tail of its stderr.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return out, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, fmt.Errorf("%s exited with %d: %s", name, exitErr.ExitCode(), tail(stderr.String(), 500))
		}
		return out, fmt.Errorf("running %s: %w", name, err)
	}
	return out, nil
}

// PM2 drives the pm2 CLI.
type PM2 struct {
	command []string
	timeout time.Duration
	run     Runner
	now     func() time.Time
}

// NewPM2 creates a PM2 manager. command is the pm2 invocation and may carry
// a prefix, e.g. "npx -y pm2". run and now may be nil.
func NewPM2(command string, timeout time.Duration, run Runner, now func() time.Time) *PM2 {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		fields = []string{"pm2"}
	}
	if run == nil {
		run = ExecRunner
	}
	if now == nil {
		now = time.Now
	}
	return &PM2{command: fields, timeout: timeout, run: run, now: now}
}

func (p *PM2) exec(ctx context.Context, args ...string) ([]byte, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	full := append(append([]string{}, p.command[1:]...), args...)
	return p.run(ctx, p.command[0], full...)
}

// List returns the normalized process inventory from `pm2 jlist`.
func (p *PM2) List(ctx context.Context) ([]models.App, error) {
	out, err := p.exec(ctx, "jlist")
	if err != nil {
		return nil, err
	}
	return parseJList(out, p.now())
}

// Logs returns the last lines of a process's log without following it.
func (p *PM2) Logs(ctx context.Context, id models.ProcessID, lines int) (string, error) {
	if id == "" {
		return "", errors.New("logs requires pm_id")
	}
	out, err := p.exec(ctx, "logs", id.String(), "--lines", strconv.Itoa(lines), "--nostream")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Control runs start, stop, restart or delete against one process.
func (p *PM2) Control(ctx context.Context, action models.Action, id models.ProcessID) error {
	switch action {
	case models.ActionStart, models.ActionStop, models.ActionRestart, models.ActionDelete:
	default:
		return fmt.Errorf("%q is not a control action", action)
	}
	if id == "" {
		return fmt.Errorf("%s requires pm_id", action)
	}
	_, err := p.exec(ctx, string(action), id.String())
	return err
}

// parseJList normalizes pm2's jlist output. pm2 sometimes prints banners
// before the JSON, so parsing starts at the first '['.
func parseJList(out []byte, now time.Time) ([]models.App, error) {
	start := bytes.IndexByte(out, '[')
	if start < 0 {
		return nil, fmt.Errorf("no process list in pm2 output: %q", tail(string(out), 200))
	}
	data := out[start:]
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("malformed pm2 process list: %q", tail(string(data), 200))
	}

	apps := []models.App{}
	gjson.ParseBytes(data).ForEach(func(_, proc gjson.Result) bool {
		app := models.App{
			PMID:   models.ProcessID(proc.Get("pm_id").String()),
			Name:   proc.Get("name").String(),
			Status: proc.Get("pm2_env.status").String(),
			Memory: proc.Get("monit.memory").Uint(),
			CPU:    proc.Get("monit.cpu").Float(),
		}
		if started := proc.Get("pm2_env.pm_uptime").Int(); app.Status == "online" && started > 0 {
			if up := now.UnixMilli() - started; up > 0 {
				app.Uptime = up / 1000
			}
		}
		apps = append(apps, app)
		return true
	})
	return apps, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
