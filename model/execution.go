package model

type StepStatus string

const STEP_RUNNING StepStatus = "RUNNING"
const STEP_COMPLETED StepStatus = "COMPLETED"
const STEP_FAILED StepStatus = "FAILED"
const STEP_SKIPPED StepStatus = "SKIPPED"

// FlowExecution is the append-only audit record of one session run. One row
// opens at session start and is finalized exactly once on a terminal
// transition.
type FlowExecution struct {
	Id             string        `json:"id"`
	SessionId      string        `json:"sessionId"`
	FlowId         string        `json:"flowId"`
	FlowVersion    int           `json:"flowVersion"`
	Path           []string      `json:"path"`
	RequiredNodes  int           `json:"requiredNodes"`
	CompletedNodes int           `json:"completedNodes"`
	CompletionRate float64       `json:"completionRate"`
	Status         SessionStatus `json:"status"`
	StartedAt      int64         `json:"startedAt"`
	CompletedAt    int64         `json:"completedAt,omitempty"`
	Finalized      bool          `json:"finalized"`
}

type StepExecution struct {
	ExecutionId    string     `json:"executionId"`
	NodeId         string     `json:"nodeId"`
	Kind           string     `json:"kind"`
	Status         StepStatus `json:"status"`
	Error          string     `json:"error,omitempty"`
	StartedAt      int64      `json:"startedAt"`
	DurationMillis int64      `json:"durationMillis"`
}

// NodeDropoff aggregates step outcomes per node for one flow.
type NodeDropoff struct {
	NodeId  string  `json:"nodeId"`
	Reached int64   `json:"reached"`
	Failed  int64   `json:"failed"`
	Skipped int64   `json:"skipped"`
	Rate    float64 `json:"rate"`
}
