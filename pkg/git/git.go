// Package git provides functions for interacting with git repositories
// by shelling out to the git CLI.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrNoUpstream is returned by AheadBehind when the current branch has no
// upstream tracking branch configured.
var ErrNoUpstream = errors.New("no upstream tracking branch configured")

// ExitError describes a git invocation that did not succeed. Output holds
// the combined stdout and stderr of the command, which is usually the only
// useful diagnostic git gives.
type ExitError struct {
	Args   []string
	Code   int
	Output string
	Err    error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	if e.Output != "" {
		msg += "\n" + e.Output
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode returns the exit status carried by err, or -1 when err is not a
// git exit error (or the process was killed).
func ExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}

// run executes a git command in the given directory and returns its output.
// The command is killed when ctx is done.
func run(ctx context.Context, repoPath string, args ...string) (string, error) {
	// #nosec G204 - arguments are git subcommands built by this package
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoPath
	out, err := cmd.CombinedOutput()
	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%w)", ctxErr, err)
		}
		return "", &ExitError{
			Args:   args,
			Code:   code,
			Output: strings.TrimSpace(string(out)),
			Err:    err,
		}
	}
	return strings.TrimSpace(string(out)), nil
}

// IsRepo returns true if the given path is inside a git repository.
func IsRepo(path string) bool {
	cmd := exec.Command("git", "-C", path, "rev-parse", "--git-dir")
	return cmd.Run() == nil
}

// CurrentBranch returns the name of the currently checked-out branch.
// It returns an empty string when HEAD is detached.
func CurrentBranch(ctx context.Context, repoPath string) (string, error) {
	return run(ctx, repoPath, "branch", "--show-current")
}

// RemoteHead returns the branch the remote's HEAD symref points to, without
// the remote prefix. It fails when refs/remotes/<remote>/HEAD is not set,
// which is common for repositories that were not created by clone.
func RemoteHead(ctx context.Context, repoPath, remote string) (string, error) {
	out, err := run(ctx, repoPath, "symbolic-ref", "--short", "refs/remotes/"+remote+"/HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(out, remote+"/"), nil
}

// LocalBranchExists returns true if refs/heads/<branch> exists. show-ref
// --verify --quiet exits 1 for a missing ref; any other failure is an error.
func LocalBranchExists(ctx context.Context, repoPath, branch string) (bool, error) {
	_, err := run(ctx, repoPath, "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	if err == nil {
		return true, nil
	}
	if ExitCode(err) == 1 {
		return false, nil
	}
	return false, err
}

// RemoteBranchExists asks the remote itself (not the local remote-tracking
// refs) whether it has a head named branch. ls-remote --exit-code exits 2
// when nothing matched; an unreachable or unknown remote exits 128 and is
// reported as an error, not as absence.
func RemoteBranchExists(ctx context.Context, repoPath, remote, branch string) (bool, error) {
	ref := "refs/heads/" + branch
	out, err := run(ctx, repoPath, "ls-remote", "--exit-code", "--heads", remote, ref)
	if err != nil {
		if ExitCode(err) == 2 {
			return false, nil
		}
		return false, err
	}
	// ls-remote patterns match on path suffixes, so confirm the exact ref.
	for _, line := range splitNonEmpty(out) {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == ref {
			return true, nil
		}
	}
	return false, nil
}

// Checkout switches to the given branch.
func Checkout(ctx context.Context, repoPath, branch string) error {
	_, err := run(ctx, repoPath, "checkout", branch)
	return err
}

// Fetch fetches from the given remote, limited to refs when any are given.
func Fetch(ctx context.Context, repoPath, remote string, refs ...string) error {
	args := append([]string{"fetch", remote}, refs...)
	_, err := run(ctx, repoPath, args...)
	return err
}

// CheckoutTracking creates a local branch tracking remoteBranch (for
// example "origin/feature") and checks it out.
func CheckoutTracking(ctx context.Context, repoPath, remoteBranch string) error {
	_, err := run(ctx, repoPath, "checkout", "--track", remoteBranch)
	return err
}

// CreateBranch creates a new branch at the current HEAD and checks it out.
func CreateBranch(ctx context.Context, repoPath, branch string) error {
	_, err := run(ctx, repoPath, "checkout", "-b", branch)
	return err
}

// DeleteLocalBranch deletes a local branch. If force is true, uses -D instead of -d.
func DeleteLocalBranch(ctx context.Context, repoPath, branch string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := run(ctx, repoPath, "branch", flag, branch)
	return err
}

// Pull pulls the current branch from its upstream using the given strategy.
func Pull(ctx context.Context, repoPath, strategy string) error {
	var flag string
	switch strategy {
	case "rebase":
		flag = "--rebase"
	case "merge":
		flag = "--no-rebase"
	case "ff-only":
		flag = "--ff-only"
	default:
		return fmt.Errorf("unknown pull strategy %q", strategy)
	}
	_, err := run(ctx, repoPath, "pull", flag)
	return err
}

// RebaseAbort aborts an in-progress rebase.
func RebaseAbort(ctx context.Context, repoPath string) error {
	_, err := run(ctx, repoPath, "rebase", "--abort")
	return err
}

// MergeAbort aborts an in-progress merge.
func MergeAbort(ctx context.Context, repoPath string) error {
	_, err := run(ctx, repoPath, "merge", "--abort")
	return err
}

// IsClean returns true if the working tree has no uncommitted, staged or
// untracked changes.
func IsClean(ctx context.Context, repoPath string) (bool, error) {
	out, err := run(ctx, repoPath, "status", "--porcelain=v1")
	if err != nil {
		return false, err
	}
	return out == "", nil
}

// AheadBehind returns how many commits HEAD is ahead of and behind its
// upstream. ErrNoUpstream is returned when no upstream is configured.
func AheadBehind(ctx context.Context, repoPath string) (ahead, behind int, err error) {
	if _, err := run(ctx, repoPath, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{u}"); err != nil {
		if ExitCode(err) == 128 {
			return 0, 0, ErrNoUpstream
		}
		return 0, 0, err
	}

	out, err := run(ctx, repoPath, "rev-list", "--left-right", "--count", "@{u}...HEAD")
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected rev-list output %q", out)
	}
	if behind, err = strconv.Atoi(fields[0]); err != nil {
		return 0, 0, fmt.Errorf("parsing behind count: %w", err)
	}
	if ahead, err = strconv.Atoi(fields[1]); err != nil {
		return 0, 0, fmt.Errorf("parsing ahead count: %w", err)
	}
	return ahead, behind, nil
}

// BranchDate pairs a local branch with the committer date of its tip.
type BranchDate struct {
	Name string
	Date time.Time
}

// BranchCommitDates lists local branches with the committer date of each tip.
func BranchCommitDates(ctx context.Context, repoPath string) ([]BranchDate, error) {
	out, err := run(ctx, repoPath, "for-each-ref",
		"--format=%(refname:short)|%(committerdate:iso-strict)", "refs/heads/")
	if err != nil {
		return nil, err
	}

	var result []BranchDate
	for _, line := range splitNonEmpty(out) {
		name, date, ok := strings.Cut(line, "|")
		if !ok {
			return nil, fmt.Errorf("unexpected for-each-ref line %q", line)
		}
		t, err := time.Parse(time.RFC3339, date)
		if err != nil {
			return nil, fmt.Errorf("parsing commit date for %s: %w", name, err)
		}
		result = append(result, BranchDate{Name: name, Date: t})
	}
	return result, nil
}

// RawRef is one line of for-each-ref output: a full ref name and the object
// it points at.
type RawRef struct {
	Name string
	Hash string
}

// ListRefs returns every ref under refs/ (branches, remote-tracking
// branches and tags) with its object id.
func ListRefs(ctx context.Context, repoPath string) ([]RawRef, error) {
	out, err := run(ctx, repoPath, "for-each-ref", "--format=%(refname) %(objectname)")
	if err != nil {
		return nil, err
	}

	var refs []RawRef
	for _, line := range splitNonEmpty(out) {
		name, hash, _ := strings.Cut(line, " ")
		refs = append(refs, RawRef{Name: name, Hash: hash})
	}
	return refs, nil
}

// RemoteURL returns the fetch URL of the given remote (usually "origin").
func RemoteURL(ctx context.Context, repoPath, remote string) (string, error) {
	return run(ctx, repoPath, "remote", "get-url", remote)
}

// IndexLocked reports whether another git process currently holds the
// repository's index lock.
func IndexLocked(repoPath string) bool {
	gitDir := filepath.Join(repoPath, ".git")
	out, err := exec.Command("git", "-C", repoPath, "rev-parse", "--git-dir").Output()
	if err == nil {
		dir := strings.TrimSpace(string(out))
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(repoPath, dir)
		}
		gitDir = dir
	}
	_, statErr := os.Stat(filepath.Join(gitDir, "index.lock"))
	return statErr == nil
}

// splitNonEmpty splits a newline-separated string and returns non-empty lines.
func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var result []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			result = append(result, line)
		}
	}
	return result
}
