// Package vcstest provides an in-memory vcs.Port for tests.
package vcstest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agrahamlincoln/sorotte/internal/vcs"
)

// RepoState is the simulated state of one repository. The zero value is a
// clean repository with an upstream where nothing fails.
type RepoState struct {
	// Local maps local branch names to their tip commit dates.
	Local map[string]time.Time
	// Remote holds the branch names present on the default remote.
	Remote map[string]bool
	Tags   []string

	Current       string
	DefaultBranch string
	Status        vcs.TreeStatus
	// NoUpstream clears Status.HasUpstream when the repository is added.
	NoUpstream bool

	RefsErr     error
	StatusErr   error
	ExistsErr   error
	CurrentErr  error
	BranchesErr error
	CheckoutErr error
	TrackErr    error
	CreateErr   error
	PullErr     error
	// DeleteErr fails DeleteBranch for specific branch names.
	DeleteErr map[string]error
}

// Call records one Port invocation.
type Call struct {
	Repo string
	Op   string
	Arg  string
}

// Port is a mutex-guarded fake implementing vcs.Port. Repositories are
// keyed by Repo.Name.
type Port struct {
	mu     sync.Mutex
	remote string
	repos  map[string]*RepoState
	calls  []Call

	// Hook, when set, is called outside the lock before every operation.
	Hook func(repo, op string)
}

var _ vcs.Port = (*Port)(nil)

// New returns an empty fake whose default remote is "origin".
func New() *Port {
	return &Port{remote: "origin", repos: make(map[string]*RepoState)}
}

// Add registers a repository and returns its handle.
func (p *Port) Add(name string, st *RepoState) vcs.Repo {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st.Local == nil {
		st.Local = make(map[string]time.Time)
	}
	if st.Remote == nil {
		st.Remote = make(map[string]bool)
	}
	st.Status.HasUpstream = !st.NoUpstream
	p.repos[name] = st
	return vcs.Repo{Path: "/work/" + name, Name: name}
}

// State returns the live state of a repository.
func (p *Port) State(name string) *RepoState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.repos[name]
}

// Calls returns a copy of every recorded call in order.
func (p *Port) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallsTo returns the recorded calls for one operation, optionally
// restricted to one repository (repo == "" matches all).
func (p *Port) CallsTo(op, repo string) []Call {
	var out []Call
	for _, c := range p.Calls() {
		if c.Op == op && (repo == "" || c.Repo == repo) {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded calls.
func (p *Port) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}

func (p *Port) enter(repo vcs.Repo, op, arg string) (*RepoState, error) {
	if p.Hook != nil {
		p.Hook(repo.Name, op)
	}
	p.mu.Lock()
	p.calls = append(p.calls, Call{Repo: repo.Name, Op: op, Arg: arg})
	st, ok := p.repos[repo.Name]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown repository %q", repo.Name)
	}
	return st, nil
}

// Refs implements vcs.Port.
func (p *Port) Refs(_ context.Context, repo vcs.Repo) ([]vcs.Ref, error) {
	st, err := p.enter(repo, "refs", "")
	if err != nil {
		return nil, &vcs.QueryError{Op: "list refs", Err: err}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if st.RefsErr != nil {
		return nil, &vcs.QueryError{Op: "list refs", Err: st.RefsErr}
	}

	var refs []vcs.Ref
	for _, name := range sortedKeys(st.Local) {
		refs = append(refs, vcs.Ref{Name: name, Kind: vcs.Head})
	}
	if len(st.Remote) > 0 {
		refs = append(refs, vcs.Ref{Name: p.remote + "/HEAD", Kind: vcs.RemoteHead, Remote: p.remote})
	}
	for _, name := range sortedKeys(st.Remote) {
		refs = append(refs, vcs.Ref{Name: p.remote + "/" + name, Kind: vcs.RemoteHead, Remote: p.remote})
	}
	for _, tag := range st.Tags {
		refs = append(refs, vcs.Ref{Name: tag, Kind: vcs.Tag})
	}
	return refs, nil
}

// WorkingTreeStatus implements vcs.Port.
func (p *Port) WorkingTreeStatus(_ context.Context, repo vcs.Repo) (vcs.TreeStatus, error) {
	st, err := p.enter(repo, "status", "")
	if err != nil {
		return vcs.TreeStatus{}, &vcs.QueryError{Op: "working tree status", Err: err}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if st.StatusErr != nil {
		return vcs.TreeStatus{}, &vcs.QueryError{Op: "working tree status", Err: st.StatusErr}
	}
	return st.Status, nil
}

// BranchExists implements vcs.Port.
func (p *Port) BranchExists(_ context.Context, repo vcs.Repo, name string, scope vcs.Scope) (bool, error) {
	st, err := p.enter(repo, "exists-"+scope.String(), name)
	if err != nil {
		return false, &vcs.QueryError{Op: "branch lookup", Err: err}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if st.ExistsErr != nil {
		return false, &vcs.QueryError{Op: scope.String() + " branch lookup", Err: st.ExistsErr}
	}
	if scope == vcs.Remote {
		return st.Remote[name], nil
	}
	_, ok := st.Local[name]
	return ok, nil
}

// Checkout implements vcs.Port.
func (p *Port) Checkout(_ context.Context, repo vcs.Repo, name string) error {
	st, err := p.enter(repo, "checkout", name)
	if err != nil {
		return &vcs.CommandError{Op: "checkout", Err: err}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if st.CheckoutErr != nil {
		return &vcs.CommandError{Op: "checkout", Err: st.CheckoutErr}
	}
	if _, ok := st.Local[name]; !ok {
		return &vcs.CommandError{Op: "checkout", Err: fmt.Errorf("error: pathspec '%s' did not match any file(s) known to git", name)}
	}
	st.Current = name
	return nil
}

// CheckoutTracking implements vcs.Port.
func (p *Port) CheckoutTracking(_ context.Context, repo vcs.Repo, remoteBranch string) error {
	st, err := p.enter(repo, "track", remoteBranch)
	if err != nil {
		return &vcs.CommandError{Op: "checkout tracking", Err: err}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if st.TrackErr != nil {
		return &vcs.CommandError{Op: "checkout tracking", Err: st.TrackErr}
	}
	name := remoteBranch[len(p.remote)+1:]
	st.Local[name] = time.Now()
	st.Current = name
	return nil
}

// CreateBranch implements vcs.Port.
func (p *Port) CreateBranch(_ context.Context, repo vcs.Repo, name string) error {
	st, err := p.enter(repo, "create", name)
	if err != nil {
		return &vcs.CommandError{Op: "create branch", Err: err}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if st.CreateErr != nil {
		return &vcs.CommandError{Op: "create branch", Err: st.CreateErr}
	}
	if _, ok := st.Local[name]; ok {
		return &vcs.CommandError{Op: "create branch", Err: fmt.Errorf("fatal: a branch named '%s' already exists", name)}
	}
	st.Local[name] = time.Now()
	st.Current = name
	return nil
}

// DeleteBranch implements vcs.Port.
func (p *Port) DeleteBranch(_ context.Context, repo vcs.Repo, name string) error {
	st, err := p.enter(repo, "delete", name)
	if err != nil {
		return &vcs.CommandError{Op: "delete branch", Err: err}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := st.DeleteErr[name]; err != nil {
		return &vcs.CommandError{Op: "delete branch", Err: err}
	}
	if _, ok := st.Local[name]; !ok {
		return &vcs.CommandError{Op: "delete branch", Err: fmt.Errorf("error: branch '%s' not found", name)}
	}
	delete(st.Local, name)
	return nil
}

// CurrentBranch implements vcs.Port.
func (p *Port) CurrentBranch(_ context.Context, repo vcs.Repo) (string, error) {
	st, err := p.enter(repo, "current", "")
	if err != nil {
		return "", &vcs.QueryError{Op: "current branch", Err: err}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if st.CurrentErr != nil {
		return "", &vcs.QueryError{Op: "current branch", Err: st.CurrentErr}
	}
	return st.Current, nil
}

// RemoteDefaultBranch implements vcs.Port.
func (p *Port) RemoteDefaultBranch(_ context.Context, repo vcs.Repo) (string, bool, error) {
	st, err := p.enter(repo, "remote-default", "")
	if err != nil {
		return "", false, &vcs.QueryError{Op: "remote default branch", Err: err}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return st.DefaultBranch, st.DefaultBranch != "", nil
}

// BranchesWithCommitDates implements vcs.Port.
func (p *Port) BranchesWithCommitDates(_ context.Context, repo vcs.Repo) ([]vcs.BranchInfo, error) {
	st, err := p.enter(repo, "branches", "")
	if err != nil {
		return nil, &vcs.QueryError{Op: "list branches", Err: err}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if st.BranchesErr != nil {
		return nil, &vcs.QueryError{Op: "list branches", Err: st.BranchesErr}
	}
	var out []vcs.BranchInfo
	for _, name := range sortedKeys(st.Local) {
		out = append(out, vcs.BranchInfo{Name: name, LastCommit: st.Local[name]})
	}
	return out, nil
}

// Pull implements vcs.Port.
func (p *Port) Pull(_ context.Context, repo vcs.Repo) error {
	st, err := p.enter(repo, "pull", "")
	if err != nil {
		return &vcs.CommandError{Op: "pull", Err: err}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if st.PullErr != nil {
		return &vcs.CommandError{Op: "pull", Err: st.PullErr}
	}
	return nil
}

// SettlingPort is a Port that also implements vcs.Settler.
type SettlingPort struct {
	*Port
	// IdleErr is returned from WaitIdle when set.
	IdleErr error
}

var _ vcs.Settler = (*SettlingPort)(nil)

// WithSettler wraps p so that it reports idle-state waits.
func (p *Port) WithSettler() *SettlingPort {
	return &SettlingPort{Port: p}
}

// WaitIdle implements vcs.Settler.
func (s *SettlingPort) WaitIdle(_ context.Context, repo vcs.Repo) error {
	if _, err := s.enter(repo, "wait-idle", ""); err != nil {
		return err
	}
	return s.IdleErr
}

// ErrBoom is a generic failure for tests.
var ErrBoom = errors.New("boom")

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
