package deadline

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"farmctl/internal/farm"
)

// submissionFiles are the three files deadlinecommand -SubmitJob expects:
// job info, plugin info, and the bootstrap workflow the worker task runs.
type submissionFiles struct {
	dir        string
	jobInfo    string
	pluginInfo string
	workflow   string
}

func (f submissionFiles) cleanup() {
	if f.dir != "" {
		os.RemoveAll(f.dir)
	}
}

// writeJobFiles renders the submission files for a claim request. One frame
// per requested worker with ChunkSize=1 gives one task per machine, and
// MachineLimit caps concurrency at the claim count.
func writeJobFiles(req farm.ClaimRequest) (submissionFiles, error) {
	dir, err := os.MkdirTemp("", "farmctl_claim_")
	if err != nil {
		return submissionFiles{}, err
	}
	files := submissionFiles{
		dir:        dir,
		jobInfo:    filepath.Join(dir, "job_info.txt"),
		pluginInfo: filepath.Join(dir, "plugin_info.txt"),
		workflow:   filepath.Join(dir, "worker_bootstrap.json"),
	}

	if err := os.WriteFile(files.jobInfo, []byte(renderJobInfo(req)), 0o644); err != nil {
		files.cleanup()
		return submissionFiles{}, err
	}
	if err := os.WriteFile(files.pluginInfo, []byte(renderPluginInfo(files.workflow)), 0o644); err != nil {
		files.cleanup()
		return submissionFiles{}, err
	}
	workflow, err := renderBootstrapWorkflow()
	if err != nil {
		files.cleanup()
		return submissionFiles{}, err
	}
	if err := os.WriteFile(files.workflow, workflow, 0o644); err != nil {
		files.cleanup()
		return submissionFiles{}, err
	}
	return files, nil
}

func renderJobInfo(req farm.ClaimRequest) string {
	pool := req.Pool
	if pool == farm.NoneSelection {
		pool = ""
	}
	group := req.Group
	if group == farm.NoneSelection {
		group = ""
	}

	host, port := splitMasterAddr(req.MasterAddr)

	var b strings.Builder
	fmt.Fprintf(&b, "Plugin=ComfyUI\n")
	fmt.Fprintf(&b, "Name=[DIST] Render Workers x%d\n", req.Count)
	fmt.Fprintf(&b, "Comment=Distributed workers - interactive mode\n")
	fmt.Fprintf(&b, "Department=Distributed\n")
	fmt.Fprintf(&b, "Priority=%d\n", req.Priority)
	fmt.Fprintf(&b, "Pool=%s\n", pool)
	fmt.Fprintf(&b, "Group=%s\n", group)
	fmt.Fprintf(&b, "TaskTimeoutMinutes=0\n")
	fmt.Fprintf(&b, "EnableAutoTimeout=false\n")
	fmt.Fprintf(&b, "ConcurrentTasks=1\n")
	fmt.Fprintf(&b, "LimitConcurrentTasksToNumberOfCpus=false\n")
	fmt.Fprintf(&b, "MachineLimit=%d\n", req.Count)
	fmt.Fprintf(&b, "Frames=1-%d\n", req.Count)
	fmt.Fprintf(&b, "ChunkSize=1\n")
	fmt.Fprintf(&b, "EnvironmentKeyValue0=FARM_DIST_MODE=1\n")
	fmt.Fprintf(&b, "EnvironmentKeyValue1=FARM_MASTER_WS=%s\n", req.MasterAddr)
	fmt.Fprintf(&b, "EnvironmentKeyValue2=FARM_MASTER_HOST=%s\n", host)
	fmt.Fprintf(&b, "EnvironmentKeyValue3=FARM_MASTER_PORT=%s\n", port)
	fmt.Fprintf(&b, "EnvironmentKeyValue4=FARM_FORCE_NEW_INSTANCE=1\n")
	fmt.Fprintf(&b, "EnvironmentKeyValue5=FARM_WORKER_MODE=1\n")
	return b.String()
}

func renderPluginInfo(workflowPath string) string {
	var b strings.Builder
	b.WriteString("DefaultCudaDeviceZero=True\n")
	b.WriteString("SeedMode=fixed\n")
	b.WriteString("BatchMode=False\n")
	b.WriteString("DistributedMode=True\n")
	b.WriteString("WorkerMode=True\n")
	b.WriteString("ForceNewInstance=True\n")
	b.WriteString("UseExistingInstance=False\n")
	fmt.Fprintf(&b, "WorkflowFile=%s\n", workflowPath)
	return b.String()
}

// renderBootstrapWorkflow produces the minimal workflow a worker task runs:
// a single registration node. The real registration happens over the HTTP
// API from inside the worker process.
func renderBootstrapWorkflow() ([]byte, error) {
	workflow := map[string]any{
		"1": map[string]any{
			"class_type": "WorkerRegistration",
			"inputs":     map[string]any{},
			"_meta":      map[string]any{"title": "Worker Registration"},
		},
	}
	return json.MarshalIndent(workflow, "", "  ")
}

func splitMasterAddr(addr string) (host, port string) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, "8188"
	}
	return host, port
}

var jobIDPattern = regexp.MustCompile(`(?i)Job ID[:\s=]+([a-f0-9]{24})`)

// extractJobID pulls the job id out of -SubmitJob output. The primary form
// is a "JobID=<id>" token; older clients print "Job ID: <id>" instead.
func extractJobID(stdout string) string {
	for _, field := range strings.Fields(stdout) {
		if strings.HasPrefix(field, "JobID=") {
			return strings.TrimPrefix(field, "JobID=")
		}
	}
	if m := jobIDPattern.FindStringSubmatch(stdout); m != nil {
		return m[1]
	}
	return ""
}
