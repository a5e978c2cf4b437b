// Package prune finds and removes stale local branches across repositories.
package prune

import (
	"fmt"
	"regexp"
	"time"

	"github.com/agrahamlincoln/sorotte/internal/vcs"
)

// DefaultProtected is the protection pattern used when none is configured.
const DefaultProtected = `^(main|master|develop)$`

// PatternSet is an ordered set of protection patterns. A branch is
// protected when any pattern matches anywhere in its name.
type PatternSet []*regexp.Regexp

// CompilePatterns compiles protection patterns. It is meant to be called
// once per prune invocation.
func CompilePatterns(patterns []string) (PatternSet, error) {
	set := make(PatternSet, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid protection pattern %q: %w", p, err)
		}
		set = append(set, re)
	}
	return set, nil
}

// Match reports whether name is protected.
func (s PatternSet) Match(name string) bool {
	for _, re := range s {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// Cutoff returns the instant before which a branch tip counts as stale.
func Cutoff(now time.Time, days int) time.Time {
	return now.AddDate(0, 0, -days)
}

// Reason explains why a branch landed in its partition.
type Reason int

const (
	// Current is the checked-out branch.
	Current Reason = iota
	// Protected matched a protection pattern.
	Protected
	// Recent is newer than the cutoff.
	Recent
	// Old is older than the cutoff and unprotected.
	Old
)

// String returns the human-readable name of a Reason value.
func (r Reason) String() string {
	switch r {
	case Current:
		return "current"
	case Protected:
		return "protected"
	case Recent:
		return "recent"
	case Old:
		return "stale"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Partition splits branches into those to keep and those to delete.
// Both lists keep the input order.
type Partition struct {
	Retain  []string
	Stale   []string
	Reasons map[string]Reason
}

// Classify partitions branches. The first matching rule wins: the current
// branch is retained, protected branches are retained, branches whose tip is
// before cutoff are stale, everything else is retained.
func Classify(branches []vcs.BranchInfo, current string, cutoff time.Time, protect PatternSet) Partition {
	p := Partition{Reasons: make(map[string]Reason, len(branches))}
	for _, b := range branches {
		reason := classifyOne(b, current, cutoff, protect)
		p.Reasons[b.Name] = reason
		if reason == Old {
			p.Stale = append(p.Stale, b.Name)
		} else {
			p.Retain = append(p.Retain, b.Name)
		}
	}
	return p
}

func classifyOne(b vcs.BranchInfo, current string, cutoff time.Time, protect PatternSet) Reason {
	switch {
	case b.Name == current:
		return Current
	case protect.Match(b.Name):
		return Protected
	case b.LastCommit.Before(cutoff):
		return Old
	default:
		return Recent
	}
}
