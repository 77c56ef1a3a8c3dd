package model

type JobStatus string

const (
	JobStatusRunning         JobStatus = "running"
	JobStatusPending         JobStatus = "pending"
	JobStatusCompleted       JobStatus = "completed"
	JobStatusFailed          JobStatus = "failed"
	JobStatusWaitingApproval JobStatus = "waiting_approval"
	JobStatusRejected        JobStatus = "rejected"
	JobStatusBlocked         JobStatus = "blocked"
	JobStatusUnknown         JobStatus = "unknown"
)

// ParseJobStatus maps a raw status string to a JobStatus, defaulting to
// unknown so aggregation never fails on an unrecognized value.
func ParseJobStatus(s string) JobStatus {
	switch JobStatus(s) {
	case JobStatusRunning, JobStatusPending, JobStatusCompleted, JobStatusFailed,
		JobStatusWaitingApproval, JobStatusRejected, JobStatusBlocked:
		return JobStatus(s)
	case "waitingApproval":
		return JobStatusWaitingApproval
	default:
		return JobStatusUnknown
	}
}

func (s JobStatus) Active() bool {
	return s == JobStatusRunning || s == JobStatusPending
}

// Job is one automation run record tied to an issue and a workflow command.
// Jobs are values: a re-fetch supersedes a record, it never mutates one.
type Job struct {
	Repo       string
	IssueNum   int
	IssueTitle string
	Command    string // e.g. "plan-headless"
	Status     JobStatus
	StartTime  int64 // epoch seconds
	Error      string
	PRUrl      string
}
