// Package step defines the unit of work the orchestrator schedules: a
// Record (the mutable per-execution entity) and a Step (a thin behavioral
// wrapper that knows how to read, substitute, and fan out a Record's
// command strings). Ownership of a Record is exclusive: once handed to an
// executor, no other component mutates it.
package step

import (
	"strings"
	"sync"
	"time"
)

// Status is a StepRecord's position in its lifecycle state machine.
type Status string

const (
	Initialized Status = "INITIALIZED"
	Pending     Status = "PENDING"
	Running     Status = "RUNNING"
	Finished    Status = "FINISHED"
	Failed      Status = "FAILED"
	Timedout    Status = "TIMEDOUT"
	Cancelled   Status = "CANCELLED"
	// DryOK marks a step whose script was written but never submitted,
	// because the run was invoked with --dry. It is terminal like FINISHED
	// but never produces a JobID.
	DryOK Status = "DRY_OK"
)

// DefaultRestartLimit matches the source tool's default of three restart
// attempts before a timed-out step is marked FAILED.
const DefaultRestartLimit = 3

// DefaultTaskQueue is used when a step's run.task_queue is absent, nil, or
// the literal string "none" (case-insensitive).
const DefaultTaskQueue = "weft"

// Record is the mutable per-execution entity the Expander produces one of
// per concrete DAG node.
type Record struct {
	Name       string
	Workspace  string
	Cmd        string
	RestartCmd string

	// ParamVector is nil until the expander's Pass B computes it. Once set,
	// element i is true iff global parameter i (in ParameterSet key order)
	// semantically influences this step.
	ParamVector []bool
	// ParamIndex is the concrete parameter combination this record
	// represents, or -1 if the record is not parameterized.
	ParamIndex int

	RestartLimit int
	NumRestarts  int

	Status Status

	SubmitTime time.Time
	StartTime  time.Time
	EndTime    time.Time

	JobIDs []string

	TaskQueueRaw string // raw run.task_queue value, "" if unset

	mu sync.Mutex
}

// NewRecord builds an INITIALIZED record at workspace with the given
// command. ParamIndex defaults to -1 (unparameterized) until the expander
// assigns one.
func NewRecord(name, workspace, cmd, restartCmd string) *Record {
	return &Record{
		Name:         name,
		Workspace:    workspace,
		Cmd:          cmd,
		RestartCmd:   restartCmd,
		ParamIndex:   -1,
		RestartLimit: DefaultRestartLimit,
		Status:       Initialized,
	}
}

// IsParameterized reports whether ParamVector has any bit set.
func (r *Record) IsParameterized() bool {
	for _, b := range r.ParamVector {
		if b {
			return true
		}
	}
	return false
}

// MarkSubmitted transitions INITIALIZED -> PENDING and records SubmitTime
// once. Repeated calls are no-ops.
func (r *Record) MarkSubmitted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Status != Initialized {
		return
	}
	r.Status = Pending
	if r.SubmitTime.IsZero() {
		r.SubmitTime = time.Now()
	}
}

// MarkRunning transitions PENDING -> RUNNING and records StartTime once.
func (r *Record) MarkRunning() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Status != Pending {
		return
	}
	r.Status = Running
	if r.StartTime.IsZero() {
		r.StartTime = time.Now()
	}
}

// MarkEnd transitions RUNNING -> one of FINISHED, FAILED, CANCELLED and
// records EndTime once. final must be a terminal status.
func (r *Record) MarkEnd(final Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = final
	if r.EndTime.IsZero() {
		r.EndTime = time.Now()
	}
}

// MarkRestart transitions RUNNING -> TIMEDOUT, then either back to PENDING
// (budget remains) or to FAILED (budget exhausted). RestartLimit == 0 means
// unbounded restarts. Returns true if a restart attempt was granted.
func (r *Record) MarkRestart() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = Timedout
	if r.RestartLimit == 0 || r.NumRestarts < r.RestartLimit {
		r.NumRestarts++
		r.Status = Pending
		r.SubmitTime = time.Time{}
		return true
	}
	r.Status = Failed
	if r.EndTime.IsZero() {
		r.EndTime = time.Now()
	}
	return false
}

// MarkDryOK transitions PENDING -> DRY_OK and records EndTime. Used instead
// of MarkEnd because a dry-run step never passes through RUNNING.
func (r *Record) MarkDryOK() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = DryOK
	if r.EndTime.IsZero() {
		r.EndTime = time.Now()
	}
}

// AddJobID appends a backend-assigned identifier.
func (r *Record) AddJobID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.JobIDs = append(r.JobIDs, id)
}

// ElapsedTime reports EndTime-SubmitTime if both are set, now-SubmitTime
// while running, or "-" (returned via ok=false) if not yet submitted.
func (r *Record) ElapsedTime() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SubmitTime.IsZero() {
		return 0, false
	}
	if !r.EndTime.IsZero() {
		return r.EndTime.Sub(r.SubmitTime).Round(time.Second), true
	}
	if r.Status == Running || r.Status == Pending {
		return time.Since(r.SubmitTime).Round(time.Second), true
	}
	return 0, false
}

// RunTime reports EndTime-StartTime if both are set, now-StartTime while
// running, or ok=false otherwise.
func (r *Record) RunTime() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.StartTime.IsZero() {
		return 0, false
	}
	if !r.EndTime.IsZero() {
		return r.EndTime.Sub(r.StartTime).Round(time.Second), true
	}
	if r.Status == Running {
		return time.Since(r.StartTime).Round(time.Second), true
	}
	return 0, false
}

// TaskQueue returns run.task_queue if set and not the literal "none"
// (case-insensitive); otherwise DefaultTaskQueue.
func (r *Record) TaskQueue() string {
	v := r.TaskQueueRaw
	if v == "" || strings.EqualFold(v, "none") {
		return DefaultTaskQueue
	}
	return v
}

// Clone returns a deep copy of the record. Used by the expander's parameter
// fan-out (Pass B) to produce one record per combination, and by Step.Clone.
func (r *Record) Clone() *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r
	cp.mu = sync.Mutex{}
	if r.ParamVector != nil {
		cp.ParamVector = append([]bool(nil), r.ParamVector...)
	}
	cp.JobIDs = append([]string(nil), r.JobIDs...)
	return &cp
}
