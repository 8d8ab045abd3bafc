// Package deadline implements the farm.Provider backend for Thinkbox
// Deadline. Workers are claimed by submitting a machine-limited job whose
// tasks boot worker processes that register back with the master.
package deadline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"farmctl/internal/farm"
	"farmctl/pkg/logging"
)

const (
	submitTimeout = 30 * time.Second
	deleteTimeout = 10 * time.Second
	listTimeout   = 10 * time.Second
)

// wellKnownPaths are the default Deadline client install locations probed
// when DEADLINE_PATH is not set.
var wellKnownPaths = map[string][]string{
	"windows": {
		`C:\Program Files\Thinkbox\Deadline10\bin`,
		`C:\Program Files (x86)\Thinkbox\Deadline10\bin`,
	},
	"linux": {
		"/opt/Thinkbox/Deadline10/bin",
	},
	"darwin": {
		"/Applications/Thinkbox/Deadline10/Resources",
	},
}

// Provider talks to Deadline through the deadlinecommand CLI.
type Provider struct {
	command string

	// runCommand is swapped in tests to avoid invoking the real binary.
	runCommand func(ctx context.Context, timeout time.Duration, args ...string) (string, error)
}

// New locates deadlinecommand and returns a provider. A provider is still
// returned when the binary is missing; Available reports false and every
// submission fails with farm.ErrFarmUnavailable.
func New() *Provider {
	p := &Provider{command: findDeadlineCommand()}
	p.runCommand = p.execDeadline
	if p.command == "" {
		logging.Warn("Deadline", "deadlinecommand not found; farm integration disabled")
	} else {
		logging.Debug("Deadline", "Using deadlinecommand at %s", p.command)
	}
	return p
}

// findDeadlineCommand resolves the CLI via DEADLINE_PATH, then well-known
// install locations, then PATH.
func findDeadlineCommand() string {
	binary := "deadlinecommand"
	if runtime.GOOS == "windows" {
		binary = "deadlinecommand.exe"
	}

	if dir := os.Getenv("DEADLINE_PATH"); dir != "" {
		candidate := filepath.Join(dir, binary)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	for _, dir := range wellKnownPaths[runtime.GOOS] {
		candidate := filepath.Join(dir, binary)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if path, err := exec.LookPath(binary); err == nil {
		return path
	}
	return ""
}

// Name implements farm.Provider.
func (p *Provider) Name() string { return "deadline" }

// Available implements farm.Provider.
func (p *Provider) Available() bool { return p.command != "" }

// ListPools implements farm.Provider.
func (p *Provider) ListPools(ctx context.Context) ([]string, error) {
	return p.listNames(ctx, "-Pools")
}

// ListGroups implements farm.Provider.
func (p *Provider) ListGroups(ctx context.Context) ([]string, error) {
	return p.listNames(ctx, "-Groups")
}

func (p *Provider) listNames(ctx context.Context, flag string) ([]string, error) {
	if !p.Available() {
		return nil, farm.ErrFarmUnavailable
	}
	out, err := p.runCommand(ctx, listTimeout, flag)
	if err != nil {
		return nil, fmt.Errorf("deadline %s: %w", flag, err)
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		name := strings.TrimSpace(line)
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// ClaimWorkers implements farm.Provider. It writes the job submission files
// and runs deadlinecommand -SubmitJob, parsing the JobID from stdout.
func (p *Provider) ClaimWorkers(ctx context.Context, req farm.ClaimRequest) (farm.ClaimResult, error) {
	if !p.Available() {
		return farm.ClaimResult{}, farm.ErrFarmUnavailable
	}

	files, err := writeJobFiles(req)
	if err != nil {
		return farm.ClaimResult{}, fmt.Errorf("prepare submission files: %w", err)
	}
	defer files.cleanup()

	out, err := p.runCommand(ctx, submitTimeout, "-SubmitJob", files.jobInfo, files.pluginInfo, files.workflow)
	if err != nil {
		return farm.ClaimResult{}, fmt.Errorf("deadline submission failed: %w", err)
	}
	logging.Debug("Deadline", "Submission output: %s", out)

	jobID := extractJobID(out)
	if jobID == "" {
		return farm.ClaimResult{}, fmt.Errorf("job submitted but no JobID found in output")
	}

	logging.Info("Deadline", "Claimed %d worker(s) via job %s (pool=%s group=%s priority=%d)",
		req.Count, jobID, req.Pool, req.Group, req.Priority)
	return farm.ClaimResult{JobID: jobID, Count: req.Count, SubmittedAt: time.Now()}, nil
}

// ReleaseWorkers implements farm.Provider. Each job is deleted
// individually; a failure on one job does not stop the rest. Only the ids
// that were actually deleted are returned.
func (p *Provider) ReleaseWorkers(ctx context.Context, jobIDs []string) ([]string, error) {
	if !p.Available() {
		return nil, farm.ErrFarmUnavailable
	}

	var released []string
	var lastErr error
	for _, id := range jobIDs {
		if _, err := p.runCommand(ctx, deleteTimeout, "-DeleteJob", id); err != nil {
			logging.Warn("Deadline", "Failed to release job %s: %v", id, err)
			lastErr = err
			continue
		}
		logging.Debug("Deadline", "Released job %s", id)
		released = append(released, id)
	}
	if len(released) == 0 && lastErr != nil {
		return nil, fmt.Errorf("release workers: %w", lastErr)
	}
	return released, nil
}

func (p *Provider) execDeadline(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.command, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s %s: %w (%s)", filepath.Base(p.command), args[0], err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
