package models

// TaskStatus is a lifecycle tag reported by the digest API for a
// background task. The vocabulary is open ended: brokers are free to
// report transient tags beyond the ones named here, and every tag that
// is not terminal counts as pending.
type TaskStatus string

const (
	PendingTaskStatus TaskStatus = "PENDING"
	StartedTaskStatus TaskStatus = "STARTED"
	RetryTaskStatus   TaskStatus = "RETRY"

	SuccessTaskStatus  TaskStatus = "SUCCESS"
	FailedTaskStatus   TaskStatus = "FAILED"
	NotFoundTaskStatus TaskStatus = "NOT FOUND"
)

// Terminal reports whether the status ends a task's lifecycle. Polling
// stops at the first terminal status.
func (s TaskStatus) Terminal() bool {
	switch s {
	case SuccessTaskStatus, FailedTaskStatus, NotFoundTaskStatus:
		return true
	}
	return false
}

// Succeeded reports whether the task finished with a usable result.
func (s TaskStatus) Succeeded() bool {
	return s == SuccessTaskStatus
}

// Pending reports whether the task is still in flight. This covers
// every tag that is not terminal, unknown ones included.
func (s TaskStatus) Pending() bool {
	return !s.Terminal()
}

// TaskStatusRecord is one observation of a task's server-side state.
type TaskStatusRecord struct {
	TaskID   string     // Handle the record was fetched for
	TaskName string     // Registered task name (e.g., "task.sleeper.delay")
	Status   TaskStatus // Lifecycle tag at observation time
	Result   string     // Textual result; empty until the task succeeds
}

// FileRegistration is the outcome of registering a successful task's
// result with the content provider.
type FileRegistration struct {
	BrokerID string // Broker that executed the task
	File     string // Index identifier assigned to the stored result
}
