// Package helpers provides test utilities for creating git repositories and scenarios.
package helpers

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestRepo represents a test git repository
type TestRepo struct {
	Path string
	t    *testing.T
}

// NewTestRepo creates a new test repository in a temporary directory.
// The initial branch is always "main", regardless of the host's
// init.defaultBranch setting.
func NewTestRepo(t *testing.T, name string) *TestRepo {
	t.Helper()

	tmpDir := t.TempDir()
	repoPath := filepath.Join(tmpDir, name)

	if err := os.MkdirAll(repoPath, 0750); err != nil {
		t.Fatalf("Failed to create test repo directory: %v", err)
	}

	repo := &TestRepo{
		Path: repoPath,
		t:    t,
	}

	repo.run("init", "-b", "main")
	repo.configureIdentity()

	// Create initial commit
	repo.WriteFile("README.md", "# Test Repository\n")
	repo.run("add", "README.md")
	repo.CommitWithDate("Initial commit", time.Now())

	return repo
}

// NewClonedRepo creates a bare "remote" seeded with one commit on main and
// returns a working clone whose origin points at it. The bare repository
// is returned as a TestRepo too so tests can inspect it.
func NewClonedRepo(t *testing.T, name string) (clone *TestRepo, bare *TestRepo) {
	t.Helper()

	seed := NewTestRepo(t, name+"-seed")

	tmpDir := t.TempDir()
	barePath := filepath.Join(tmpDir, name+".git")
	clonePath := filepath.Join(tmpDir, name)

	gitIn(t, tmpDir, "clone", "--bare", seed.Path, barePath)
	gitIn(t, tmpDir, "clone", barePath, clonePath)

	clone = &TestRepo{Path: clonePath, t: t}
	clone.configureIdentity()
	return clone, &TestRepo{Path: barePath, t: t}
}

// CloneInto makes another working clone of the given bare repository, for
// pushing changes "from someone else".
func CloneInto(t *testing.T, bare *TestRepo, name string) *TestRepo {
	t.Helper()
	clonePath := filepath.Join(t.TempDir(), name)
	gitIn(t, filepath.Dir(clonePath), "clone", bare.Path, clonePath)
	clone := &TestRepo{Path: clonePath, t: t}
	clone.configureIdentity()
	return clone
}

// WriteFile writes a file to the repository
func (r *TestRepo) WriteFile(filename, content string) {
	r.t.Helper()
	path := filepath.Join(r.Path, filename)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		r.t.Fatalf("Failed to write file %s: %v", filename, err)
	}
}

// AddFile stages a file for commit
func (r *TestRepo) AddFile(filename string) {
	r.t.Helper()
	r.run("add", filename)
}

// Commit creates a commit with the current timestamp
func (r *TestRepo) Commit(message string) {
	r.t.Helper()
	r.CommitWithDate(message, time.Now())
}

// CommitFile writes, stages and commits a single file in one step.
func (r *TestRepo) CommitFile(filename, content, message string) {
	r.t.Helper()
	r.WriteFile(filename, content)
	r.AddFile(filename)
	r.Commit(message)
}

// CommitWithDate creates a commit with a specific timestamp
// This is crucial for testing stale branch detection without waiting 30 days!
func (r *TestRepo) CommitWithDate(message string, date time.Time) {
	r.t.Helper()
	dateStr := date.Format(time.RFC3339)
	// #nosec G204 - git command with controlled inputs in test code
	cmd := exec.Command("git", "commit", "--allow-empty", "-m", message, "--date", dateStr)
	cmd.Dir = r.Path
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("GIT_AUTHOR_DATE=%s", dateStr),
		fmt.Sprintf("GIT_COMMITTER_DATE=%s", dateStr),
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		r.t.Fatalf("Failed to commit: %v\n%s", err, output)
	}
}

// CreateBranch creates a new branch and checks it out
func (r *TestRepo) CreateBranch(name string) {
	r.t.Helper()
	r.run("checkout", "-b", name)
}

// CreateBranchWithDate creates a branch holding one commit at the given
// date, then returns to the previously checked-out branch.
func (r *TestRepo) CreateBranchWithDate(name string, date time.Time) {
	r.t.Helper()
	prev := r.CurrentBranch()
	r.CreateBranch(name)
	r.CommitWithDate("work on "+name, date)
	r.Checkout(prev)
}

// Checkout switches to a branch
func (r *TestRepo) Checkout(branch string) {
	r.t.Helper()
	r.run("checkout", branch)
}

// AddRemote adds a remote to the repository
func (r *TestRepo) AddRemote(name, url string) {
	r.t.Helper()
	r.run("remote", "add", name, url)
}

// Push pushes to a remote
func (r *TestRepo) Push(remote, branch string) {
	r.t.Helper()
	r.run("push", remote, branch)
}

// PushUpstream pushes a branch and records the remote branch as its upstream.
func (r *TestRepo) PushUpstream(remote, branch string) {
	r.t.Helper()
	r.run("push", "-u", remote, branch)
}

// CurrentBranch returns the current branch name
func (r *TestRepo) CurrentBranch() string {
	r.t.Helper()
	cmd := exec.Command("git", "branch", "--show-current")
	cmd.Dir = r.Path
	output, err := cmd.Output()
	if err != nil {
		r.t.Fatalf("Failed to get current branch: %v", err)
	}
	return strings.TrimSpace(string(output))
}

// Branches returns a list of all branch names
func (r *TestRepo) Branches() []string {
	r.t.Helper()
	cmd := exec.Command("git", "branch", "--format=%(refname:short)")
	cmd.Dir = r.Path
	output, err := cmd.Output()
	if err != nil {
		r.t.Fatalf("Failed to list branches: %v", err)
	}

	var branches []string
	for _, line := range strings.Split(string(output), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			branches = append(branches, line)
		}
	}
	return branches
}

// HasBranch reports whether a local branch with the given name exists.
func (r *TestRepo) HasBranch(name string) bool {
	r.t.Helper()
	for _, b := range r.Branches() {
		if b == name {
			return true
		}
	}
	return false
}

// Upstream returns the upstream of the current branch, or "" when none.
func (r *TestRepo) Upstream() string {
	r.t.Helper()
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{u}")
	cmd.Dir = r.Path
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}

// Git runs an arbitrary git command in the repository, failing the test on error.
func (r *TestRepo) Git(args ...string) {
	r.t.Helper()
	r.run(args...)
}

// run executes a git command in the repository
func (r *TestRepo) run(args ...string) {
	r.t.Helper()
	gitIn(r.t, r.Path, args...)
}

func (r *TestRepo) configureIdentity() {
	r.t.Helper()
	r.run("config", "user.name", "Test User")
	r.run("config", "user.email", "test@example.com")
}

func gitIn(t *testing.T, dir string, args ...string) {
	t.Helper()
	// #nosec G204 - git command with controlled inputs in test code
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("Git command failed: git %v\n%s", args, output)
	}
}
