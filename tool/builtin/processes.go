package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/sidecore/agentcore/domain"
)

// backgroundProcess tracks a process started by BashTool with background=true,
// kept alive past the tool call that started it so a later processes tool
// call can list, inspect, or kill it. Grounded on dev/dev_run_activities.go's
// runningProcess/activeDevRun bookkeeping, scoped down from a Dev Run's
// multi-process workflow entry to a single tracked command per call.
type backgroundProcess struct {
	ID        string
	UserID    string
	Command   string
	Pgid      int
	StartedAt time.Time
	cmd       *exec.Cmd
	closer    io.Closer
	exitCode  *int
	done      chan struct{}
}

var processRegistry = struct {
	sync.Mutex
	procs map[string]*backgroundProcess
}{procs: make(map[string]*backgroundProcess)}

func registerBackgroundProcess(bp *backgroundProcess) {
	processRegistry.Lock()
	defer processRegistry.Unlock()
	processRegistry.procs[bp.ID] = bp
}

func watchBackgroundProcess(bp *backgroundProcess) {
	go func() {
		err := bp.cmd.Wait()
		code := 0
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				code = exitErr.ExitCode()
			} else {
				code = -1
			}
		}
		processRegistry.Lock()
		bp.exitCode = &code
		processRegistry.Unlock()
		if bp.closer != nil {
			bp.closer.Close()
		}
		close(bp.done)
	}()
}

type ProcessesTool struct{}

func (ProcessesTool) Name() string                 { return "processes" }
func (ProcessesTool) SideEffect() domain.SideEffect { return domain.EffectExec }
func (ProcessesTool) Description() string {
	return "List, check the status of, or kill background processes started via bash's background mode. Scoped to the calling user's own processes when a user id is set."
}

type processesParams struct {
	Action    string `json:"action" jsonschema:"required,description=One of list, status, kill,enum=list,enum=status,enum=kill"`
	ProcessID string `json:"process_id,omitempty" jsonschema:"description=Required for status and kill."`
}

func (ProcessesTool) ParametersSchema() *jsonschema.Schema {
	return jsonschema.Reflect(&processesParams{})
}

type processInfo struct {
	ID        string    `json:"id"`
	Command   string    `json:"command"`
	StartedAt time.Time `json:"started_at"`
	Running   bool      `json:"running"`
	ExitCode  *int      `json:"exit_code,omitempty"`
}

// Execute is user-scoped: when tc.UserID is set, only processes started by
// the same user are visible, mirroring the teacher's per-workspace isolation
// of Dev Run state.
func (ProcessesTool) Execute(ctx context.Context, params json.RawMessage, tc *domain.ToolContext) (*domain.ToolResult, error) {
	var p processesParams
	if err := json.Unmarshal(params, &p); err != nil {
		return domain.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	switch p.Action {
	case "list":
		processRegistry.Lock()
		var infos []processInfo
		for _, bp := range processRegistry.procs {
			if tc.UserID != "" && bp.UserID != tc.UserID {
				continue
			}
			infos = append(infos, processInfoOf(bp))
		}
		processRegistry.Unlock()
		out := map[string]any{"processes": infos}
		b, _ := json.Marshal(out)
		return &domain.ToolResult{Output: string(b)}, nil

	case "status":
		bp, err := lookupOwnedProcess(p.ProcessID, tc.UserID)
		if err != nil {
			return domain.ErrorResult(err.Error()), nil
		}
		b, _ := json.Marshal(processInfoOf(bp))
		return &domain.ToolResult{Output: string(b)}, nil

	case "kill":
		bp, err := lookupOwnedProcess(p.ProcessID, tc.UserID)
		if err != nil {
			return domain.ErrorResult(err.Error()), nil
		}
		killProcessGroup(bp.Pgid, defaultStopTimeoutSeconds)
		b, _ := json.Marshal(map[string]any{"killed": true, "id": bp.ID})
		return &domain.ToolResult{Output: string(b)}, nil

	default:
		return domain.ErrorResult(fmt.Sprintf("unknown action: %s", p.Action)), nil
	}
}

func processInfoOf(bp *backgroundProcess) processInfo {
	processRegistry.Lock()
	defer processRegistry.Unlock()
	return processInfo{
		ID:        bp.ID,
		Command:   bp.Command,
		StartedAt: bp.StartedAt,
		Running:   bp.exitCode == nil,
		ExitCode:  bp.exitCode,
	}
}

func lookupOwnedProcess(id, userID string) (*backgroundProcess, error) {
	processRegistry.Lock()
	defer processRegistry.Unlock()
	bp, ok := processRegistry.procs[id]
	if !ok {
		return nil, fmt.Errorf("no such process: %s", id)
	}
	if userID != "" && bp.UserID != userID {
		return nil, fmt.Errorf("no such process: %s", id)
	}
	return bp, nil
}

const defaultStopTimeoutSeconds = 10

// killProcessGroup sends SIGINT to the process group, waits up to
// timeoutSeconds for it to exit, then escalates to SIGKILL. Ported from
// dev/dev_run_activities.go's terminateProcessGroupsByPgid.
func killProcessGroup(pgid int, timeoutSeconds int) {
	if err := syscall.Kill(-pgid, syscall.SIGINT); err != nil {
		return
	}
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	for time.Now().Before(deadline) {
		if err := syscall.Kill(-pgid, 0); err != nil {
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil {
		_ = err
	}
}
