package model

// WorkerState represents the lifecycle state of a download worker
type WorkerState string

const (
	// WorkerStateIdle means the worker was created but not started
	WorkerStateIdle WorkerState = "Idle"

	// WorkerStateRunning means the fetch is in progress
	WorkerStateRunning WorkerState = "Running"

	// WorkerStateCanceling means cancellation was requested and cleanup is running
	WorkerStateCanceling WorkerState = "Canceling"

	// WorkerStateCompleted means the fetch returned, successfully or not
	WorkerStateCompleted WorkerState = "Completed"

	// WorkerStateCanceled means the job was canceled and eager cleanup finished
	WorkerStateCanceled WorkerState = "Canceled"
)

// String returns the string representation of WorkerState
func (ws WorkerState) String() string {
	return string(ws)
}

// IsActive returns true if the worker still owns an in-flight fetch
func (ws WorkerState) IsActive() bool {
	return ws == WorkerStateRunning || ws == WorkerStateCanceling
}

// IsFinished returns true if the worker reached a terminal state
func (ws WorkerState) IsFinished() bool {
	return ws == WorkerStateCompleted || ws == WorkerStateCanceled
}

// CanTransition reports whether moving from ws to next is allowed
func (ws WorkerState) CanTransition(next WorkerState) bool {
	switch ws {
	case WorkerStateIdle:
		return next == WorkerStateRunning
	case WorkerStateRunning:
		return next == WorkerStateCompleted || next == WorkerStateCanceling
	case WorkerStateCanceling:
		return next == WorkerStateCanceled
	default:
		return false
	}
}
