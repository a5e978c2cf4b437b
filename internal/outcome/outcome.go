// Package outcome holds the per-repository result of a batch operation and
// the ordering used when reporting a batch.
package outcome

import (
	"fmt"
	"sort"

	"github.com/agrahamlincoln/sorotte/internal/vcs"
)

// Status is the tri-state result of one repository's participation in a batch.
// Values are ordered by report priority.
type Status int

const (
	// Success means the requested branch is now checked out.
	Success Status = iota
	// Skipped means the repository was left untouched and needs attention.
	Skipped
	// Failed means a git command or query broke.
	Failed
)

// String returns the human-readable name of a Status value.
func (s Status) String() string {
	switch s {
	case Success:
		return "Success"
	case Skipped:
		return "Skipped"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Outcome is the single result recorded for a repository in a batch run.
type Outcome struct {
	Repo    vcs.Repo
	Status  Status
	Message string
}

// Succeeded builds a Success outcome.
func Succeeded(repo vcs.Repo, msg string) Outcome {
	return Outcome{Repo: repo, Status: Success, Message: msg}
}

// Skip builds a Skipped outcome.
func Skip(repo vcs.Repo, msg string) Outcome {
	return Outcome{Repo: repo, Status: Skipped, Message: msg}
}

// Fail builds a Failed outcome.
func Fail(repo vcs.Repo, msg string) Outcome {
	return Outcome{Repo: repo, Status: Failed, Message: msg}
}

// Sort orders outcomes Success, then Skipped, then Failed. It is stable, so
// outcomes with equal status keep their processing order.
func Sort(outcomes []Outcome) {
	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].Status < outcomes[j].Status
	})
}

// Counts tallies outcomes by status.
type Counts struct {
	Success int
	Skipped int
	Failed  int
}

// Count tallies outcomes by status.
func Count(outcomes []Outcome) Counts {
	var c Counts
	for _, o := range outcomes {
		switch o.Status {
		case Success:
			c.Success++
		case Skipped:
			c.Skipped++
		case Failed:
			c.Failed++
		}
	}
	return c
}

// Clean reports whether every outcome is a Success.
func (c Counts) Clean() bool {
	return c.Skipped == 0 && c.Failed == 0
}
