package model

import "time"

// TaskID identifies a task within one worker process. IDs are assigned by the
// host scheduler and are monotonically increasing.
type TaskID int64

// Decision action constants.
const (
	ActionPause   = "pause"
	ActionRelease = "release"
)

// Decision reason constants.
const (
	ReasonPressure    = "pressure"
	ReasonHomogeneous = "homogeneous"
	ReasonRelief      = "relief"
	ReasonSpill       = "spill"
	ReasonDeadlock    = "deadlock"
	ReasonFinished    = "finished"
)

// validReasons maps each action to the reasons it may carry.
var validReasons = map[string]map[string]bool{
	ActionPause: {
		ReasonPressure:    true,
		ReasonHomogeneous: true,
		ReasonSpill:       true,
	},
	ActionRelease: {
		ReasonRelief:   true,
		ReasonDeadlock: true,
		ReasonFinished: true,
	},
}

// ValidReason reports whether the given action/reason pair is allowed.
func ValidReason(action, reason string) bool {
	reasons, ok := validReasons[action]
	if !ok {
		return false
	}
	return reasons[reason]
}

// Event records a single pause or release decision made by the governor.
type Event struct {
	ID           string    `json:"id"`
	TaskID       TaskID    `json:"task_id"`
	Action       string    `json:"action"`
	Reason       string    `json:"reason"`
	HeapBaseline int64     `json:"heap_baseline"`
	ManagedUsed  int64     `json:"managed_used"`
	Tick         uint64    `json:"tick"`
	CreatedAt    time.Time `json:"created_at"`
}

// TaskSample is one task's slice of the per-tick snapshot. It is rebuilt from
// collaborator queries at the start of every decision cycle and discarded at
// the end of it.
type TaskSample struct {
	ID           TaskID
	Consumption  int64
	Usage        int64
	UsageRate    float64
	Percent      float64
	Result       bool
	ExternalRead bool
	Paused       bool
}

// TaskInfo is the externally visible view of one running task.
type TaskInfo struct {
	ID              TaskID  `json:"id"`
	Percent         float64 `json:"percent"`
	UsageBytes      int64   `json:"usage_bytes"`
	UsageRate       float64 `json:"usage_rate"`
	Consumption     int64   `json:"consumption_bytes"`
	Result          bool    `json:"result"`
	ExternalRead    bool    `json:"external_read"`
	Paused          bool    `json:"paused"`
	SampleRequested bool    `json:"sample_requested"`
}
