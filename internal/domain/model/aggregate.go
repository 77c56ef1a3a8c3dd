package model

import "fmt"

// phaseCommands maps workflow commands to the phase they complete.
var phaseCommands = map[string]string{
	"plan-headless":          "plan",
	"implement-headless":     "implement",
	"retrospective-headless": "retrospective",
}

const reviseCommand = "revise-headless"

// IssueKey builds the grouping key for a job: "<repoSlug>-<issueNum>".
func IssueKey(repo string, issueNum int) string {
	return fmt.Sprintf("%s-%d", RepoSlug(repo), issueNum)
}

// AggregateIssues groups jobs by issue key and derives each issue's workflow
// phase and board status. Pure and total: malformed or partially populated
// jobs never fail the pass, and the result is rebuilt from scratch each call.
func AggregateIssues(jobs []Job) map[string]*Issue {
	issues := make(map[string]*Issue)
	for _, job := range jobs {
		key := IssueKey(job.Repo, job.IssueNum)
		iss, ok := issues[key]
		if !ok {
			iss = &Issue{
				Key:             key,
				Repo:            job.Repo,
				RepoSlug:        RepoSlug(job.Repo),
				CompletedPhases: make(map[string]bool),
			}
			issues[key] = iss
		}
		iss.Jobs = append(iss.Jobs, job)
	}

	for _, iss := range issues {
		for _, j := range iss.Jobs {
			if j.Status == JobStatusCompleted {
				if phase, ok := phaseCommands[j.Command]; ok {
					iss.CompletedPhases[phase] = true
				}
			}
			if j.Command == reviseCommand {
				iss.RevisionCount++
			}
		}
		iss.CurrentPhase = DerivePhase(iss)
		for _, j := range iss.sortedJobs() {
			if iss.Title == "" && j.IssueTitle != "" {
				iss.Title = j.IssueTitle
			}
			if iss.PRUrl == "" && j.PRUrl != "" {
				iss.PRUrl = j.PRUrl
			}
		}
		iss.IssueClosed = iss.CompletedPhases["retrospective"]
		iss.CanMerge = iss.PRUrl != "" && iss.firstJob(func(j Job) bool { return j.Status == JobStatusWaitingApproval }) != nil
		iss.CanRevise = iss.PRUrl != "" && !iss.IssueClosed && iss.RunningJob() == nil
	}
	return issues
}

// DerivePhase reports the issue's position in the workflow pipeline.
//
// The priority table checks completed-phase membership before any currently
// running job other than the plan job: an issue whose plan completed and
// whose implement job is running reports plan_complete, not implementing.
// That quirk is intentional and load-bearing for the board; do not reorder.
func DerivePhase(iss *Issue) WorkflowPhase {
	switch {
	case iss.CompletedPhases["retrospective"]:
		return PhaseComplete
	case iss.CompletedPhases["implement"]:
		return PhaseReview
	case iss.CompletedPhases["plan"]:
		return PhasePlanComplete
	}
	for _, j := range iss.Jobs {
		if j.Command == "plan-headless" && j.Status.Active() {
			return PhasePlanning
		}
	}
	return PhaseNew
}

// DeriveStatus places the issue in a board column. Independent of phase;
// first match wins.
func DeriveStatus(iss *Issue) IssueStatus {
	var failed, blocked, waiting bool
	for _, j := range iss.Jobs {
		switch {
		case j.Status.Active():
			return IssueRunning
		case j.Status == JobStatusFailed:
			failed = true
		case j.Status == JobStatusBlocked:
			blocked = true
		case j.Status == JobStatusWaitingApproval:
			waiting = true
		}
	}
	switch {
	case failed:
		return IssueFailed
	case blocked, waiting:
		return IssueNeedsAction
	case iss.CurrentPhase == PhaseComplete:
		return IssueDone
	}
	return IssueNeedsAction
}
