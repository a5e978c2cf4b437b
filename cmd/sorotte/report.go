package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/agrahamlincoln/sorotte/internal/collect"
	"github.com/agrahamlincoln/sorotte/internal/outcome"
	"github.com/agrahamlincoln/sorotte/internal/prune"
	"github.com/agrahamlincoln/sorotte/internal/switcher"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	bold   = color.New(color.Bold)
	dim    = color.New(color.FgHiBlack)
)

// progressLine redraws a single status line while a batch runs.
func progressLine(w io.Writer, completed, total int) {
	fmt.Fprint(w, "\r\033[2K")
	if remaining := total - completed; remaining > 0 {
		fmt.Fprintf(w, "  %s %d remaining...", dim.Sprintf("[%d/%d]", completed, total), remaining)
	}
}

func statusLabel(s outcome.Status) string {
	switch s {
	case outcome.Success:
		return green.Sprint("[ok]")
	case outcome.Skipped:
		return yellow.Sprint("[skip]")
	default:
		return red.Sprint("[fail]")
	}
}

// printSwitchReport writes one line per outcome, then the follow-up steps,
// then a tally.
func printSwitchReport(w io.Writer, r switcher.Report) {
	for _, o := range r.Outcomes {
		fmt.Fprintf(w, "  %s %s: %s\n", statusLabel(o.Status), o.Repo.Name, o.Message)
	}

	if r.Pulled {
		pulled := len(r.Outcomes) - len(r.PullErrors)
		fmt.Fprintf(w, "  %s pulled %d repositories\n", green.Sprint("[pull]"), pulled)
		for _, pe := range r.PullErrors {
			fmt.Fprintf(w, "  %s %s: %v\n", red.Sprint("[pull]"), pe.Repo.Name, pe.Err)
		}
	}
	if r.Reloaded {
		if r.ReloadErr != nil {
			fmt.Fprintf(w, "  %s %v\n", red.Sprint("[reload]"), r.ReloadErr)
		} else {
			fmt.Fprintf(w, "  %s done\n", green.Sprint("[reload]"))
		}
	}

	c := outcome.Count(r.Outcomes)
	fmt.Fprintln(w)
	fmt.Fprintln(w, bold.Sprintf("Switched %d, skipped %d, failed %d", c.Success, c.Skipped, c.Failed))
}

// printPruneResults writes per-repository details followed by the summary.
func printPruneResults(w io.Writer, results []prune.Result, dryRun bool) {
	deleteVerb := "deleted"
	if dryRun {
		deleteVerb = "would delete"
	}

	for _, r := range results {
		if len(r.Deleted)+len(r.Skipped)+len(r.Errors) == 0 {
			continue
		}
		fmt.Fprintf(w, "  %s\n", bold.Sprint(r.Repo.Name))
		for _, b := range r.Deleted {
			fmt.Fprintf(w, "    %s %s\n", green.Sprint(deleteVerb), b)
		}
		for _, b := range r.Skipped {
			fmt.Fprintf(w, "    %s %s\n", dim.Sprint("kept"), b)
		}
		for _, e := range r.Errors {
			fmt.Fprintf(w, "    %s %s\n", red.Sprint("error"), e)
		}
	}

	s := prune.Summarize(results)
	fmt.Fprintln(w)
	if dryRun {
		fmt.Fprintln(w, bold.Sprintf("Would delete: %d branch(es)", s.Deleted))
	} else {
		fmt.Fprintln(w, bold.Sprintf("Deleted: %d branch(es)", s.Deleted))
	}
	fmt.Fprintf(w, "Skipped: %d\n", s.Skipped)
	if s.Errors > 0 {
		fmt.Fprintln(w, red.Sprintf("Errors: %d", s.Errors))
	}
}

func printWarnings(w io.Writer, warnings []collect.Warning) {
	for _, warn := range warnings {
		fmt.Fprintf(w, "  %s %s: %v\n", yellow.Sprint("[warn]"), warn.Repo.Name, warn.Err)
	}
}
