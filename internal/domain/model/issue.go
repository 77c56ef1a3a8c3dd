package model

import (
	"sort"
	"strings"
)

type WorkflowPhase string

const (
	PhaseNew          WorkflowPhase = "new"
	PhasePlanning     WorkflowPhase = "planning"
	PhasePlanComplete WorkflowPhase = "plan_complete"
	PhaseImplementing WorkflowPhase = "implementing"
	PhaseReview       WorkflowPhase = "review"
	PhaseComplete     WorkflowPhase = "complete"
)

// IssueStatus is the Kanban column, derived independently of phase.
type IssueStatus string

const (
	IssueNeedsAction IssueStatus = "needs_action"
	IssueRunning     IssueStatus = "running"
	IssueFailed      IssueStatus = "failed"
	IssueDone        IssueStatus = "done"
)

// Issue aggregates every Job sharing one repo+issue-number key. Issues are
// recomputed from scratch on every aggregation pass, never patched.
type Issue struct {
	Key             string
	Repo            string
	RepoSlug        string
	Title           string
	Jobs            []Job // non-empty by construction
	CurrentPhase    WorkflowPhase
	CompletedPhases map[string]bool
	PRUrl           string
	CanRevise       bool
	CanMerge        bool
	IssueClosed     bool
	RevisionCount   int
}

// RepoSlug returns the path segment after the last '/', lowercased.
func RepoSlug(repo string) string {
	if i := strings.LastIndex(repo, "/"); i >= 0 {
		repo = repo[i+1:]
	}
	return strings.ToLower(repo)
}

// sortedJobs returns jobs ordered by StartTime descending; ties keep their
// original relative order.
func (i *Issue) sortedJobs() []Job {
	out := make([]Job, len(i.Jobs))
	copy(out, i.Jobs)
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].StartTime > out[b].StartTime
	})
	return out
}

func (i *Issue) firstJob(match func(Job) bool) *Job {
	for _, j := range i.sortedJobs() {
		if match(j) {
			job := j
			return &job
		}
	}
	return nil
}

func (i *Issue) LatestJob() *Job {
	return i.firstJob(func(Job) bool { return true })
}

func (i *Issue) RunningJob() *Job {
	return i.firstJob(func(j Job) bool { return j.Status.Active() })
}

func (i *Issue) FailedJob() *Job {
	return i.firstJob(func(j Job) bool { return j.Status == JobStatusFailed })
}

func (i *Issue) BlockedJob() *Job {
	return i.firstJob(func(j Job) bool { return j.Status == JobStatusBlocked })
}
