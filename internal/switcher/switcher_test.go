package switcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agrahamlincoln/sorotte/internal/guard"
	"github.com/agrahamlincoln/sorotte/internal/outcome"
	"github.com/agrahamlincoln/sorotte/internal/resolve"
	"github.com/agrahamlincoln/sorotte/internal/vcs"
	"github.com/agrahamlincoln/sorotte/internal/vcs/vcstest"
)

func local(names ...string) map[string]time.Time {
	m := make(map[string]time.Time)
	for _, n := range names {
		m[n] = time.Now()
	}
	return m
}

func newSwitcher(port vcs.Port, opts Options) *Switcher {
	r := resolve.New(port, resolve.Options{DefaultBranch: "master", Remote: "origin", Policy: guard.WorkingTreeAndUpstream})
	s := New(port, r, opts)
	s.sleep = func(context.Context, time.Duration) {}
	return s
}

// mixedBatch arrives as Failed, Success, Skipped, Success.
func mixedBatch(port *vcstest.Port) []vcs.Repo {
	return []vcs.Repo{
		port.Add("broken", &vcstest.RepoState{Local: local("master", "feature/x"), CheckoutErr: vcstest.ErrBoom}),
		port.Add("api", &vcstest.RepoState{Local: local("master", "feature/x")}),
		port.Add("dirty", &vcstest.RepoState{Local: local("master"), Status: vcs.TreeStatus{HasUncommittedChanges: true}}),
		port.Add("web", &vcstest.RepoState{Local: local("master", "feature/x")}),
	}
}

func TestRun_NoRepositories(t *testing.T) {
	port := vcstest.New()
	_, err := newSwitcher(port, Options{}).Run(context.Background(), nil, "feature/x", false)
	if !errors.Is(err, ErrNoRepositories) {
		t.Fatalf("expected ErrNoRepositories, got %v", err)
	}
	if len(port.Calls()) != 0 {
		t.Errorf("expected no port calls, got %v", port.Calls())
	}
}

func TestRun_SortsByStatus(t *testing.T) {
	for _, workers := range []int{1, 4} {
		port := vcstest.New()
		repos := mixedBatch(port)

		report, err := newSwitcher(port, Options{Workers: workers}).Run(context.Background(), repos, "feature/x", false)
		if err != nil {
			t.Fatalf("workers=%d: unexpected error: %v", workers, err)
		}

		wantStatus := []outcome.Status{outcome.Success, outcome.Success, outcome.Skipped, outcome.Failed}
		wantRepo := []string{"api", "web", "dirty", "broken"}
		if len(report.Outcomes) != len(wantStatus) {
			t.Fatalf("workers=%d: expected %d outcomes, got %d", workers, len(wantStatus), len(report.Outcomes))
		}
		for i, o := range report.Outcomes {
			if o.Status != wantStatus[i] || o.Repo.Name != wantRepo[i] {
				t.Errorf("workers=%d: outcomes[%d] = %s/%v, want %s/%v",
					workers, i, o.Repo.Name, o.Status, wantRepo[i], wantStatus[i])
			}
		}
	}
}

func TestRun_OneOutcomePerRepo(t *testing.T) {
	port := vcstest.New()
	var repos []vcs.Repo
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		repos = append(repos, port.Add(name, &vcstest.RepoState{Local: local("master")}))
	}

	var mu sync.Mutex
	var progress []int
	report, err := newSwitcher(port, Options{
		Workers: 3,
		OnResult: func(completed, _ int, _ outcome.Outcome) {
			mu.Lock()
			progress = append(progress, completed)
			mu.Unlock()
		},
	}).Run(context.Background(), repos, "nowhere", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := make(map[string]int)
	for _, o := range report.Outcomes {
		seen[o.Repo.Name]++
	}
	for _, r := range repos {
		if seen[r.Name] != 1 {
			t.Errorf("repo %s has %d outcomes, want 1", r.Name, seen[r.Name])
		}
	}
	for i, c := range progress {
		if c != i+1 {
			t.Errorf("progress not serialized: %v", progress)
			break
		}
	}
}

func TestRun_PostActionsRequireCleanBatch(t *testing.T) {
	port := vcstest.New()
	repos := mixedBatch(port)
	reloads := 0

	report, err := newSwitcher(port, Options{
		AutoPull:   Always,
		AutoReload: Always,
		Reload:     func(context.Context) error { reloads++; return nil },
	}).Run(context.Background(), repos, "feature/x", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Pulled || report.Reloaded {
		t.Error("expected no post actions when a repository failed or was skipped")
	}
	if len(port.CallsTo("pull", "")) != 0 || reloads != 0 {
		t.Error("expected no pull or reload calls")
	}
}

func TestRun_PostActionModes(t *testing.T) {
	tests := []struct {
		name       string
		pull       Mode
		reload     Mode
		answer     bool
		wantPull   bool
		wantReload bool
	}{
		{"always", Always, Always, false, true, true},
		{"never", Never, Never, true, false, false},
		{"ask yes", Ask, Ask, true, true, true},
		{"ask no", Ask, Ask, false, false, false},
		{"pull only", Always, Never, false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := vcstest.New()
			repos := []vcs.Repo{
				port.Add("a", &vcstest.RepoState{Local: local("master", "feature/x")}),
				port.Add("b", &vcstest.RepoState{Local: local("master", "feature/x")}),
			}
			asked := 0
			confirm := func() bool { asked++; return tt.answer }
			reloads := 0

			report, err := newSwitcher(port, Options{
				AutoPull:      tt.pull,
				AutoReload:    tt.reload,
				ConfirmPull:   confirm,
				ConfirmReload: confirm,
				Reload:        func(context.Context) error { reloads++; return nil },
			}).Run(context.Background(), repos, "feature/x", false)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if report.Pulled != tt.wantPull {
				t.Errorf("Pulled = %v, want %v", report.Pulled, tt.wantPull)
			}
			wantPulls := 0
			if tt.wantPull {
				wantPulls = len(repos)
			}
			if n := len(port.CallsTo("pull", "")); n != wantPulls {
				t.Errorf("expected %d pulls, got %d", wantPulls, n)
			}
			if report.Reloaded != tt.wantReload || (reloads == 1) != tt.wantReload {
				t.Errorf("Reloaded = %v (reloads %d), want %v", report.Reloaded, reloads, tt.wantReload)
			}
			if tt.pull != Ask && tt.reload != Ask && asked != 0 {
				t.Errorf("confirmation asked %d times without Ask mode", asked)
			}
		})
	}
}

func TestRun_AskWithoutCallbackDeclines(t *testing.T) {
	port := vcstest.New()
	repos := []vcs.Repo{port.Add("a", &vcstest.RepoState{Local: local("master")})}

	report, err := newSwitcher(port, Options{AutoPull: Ask}).Run(context.Background(), repos, "master", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Pulled {
		t.Error("expected Ask without a callback to decline")
	}
}

func TestRun_PullErrorsDoNotChangeOutcomes(t *testing.T) {
	port := vcstest.New()
	repos := []vcs.Repo{
		port.Add("a", &vcstest.RepoState{Local: local("master")}),
		port.Add("b", &vcstest.RepoState{Local: local("master"), PullErr: vcstest.ErrBoom}),
	}

	report, err := newSwitcher(port, Options{AutoPull: Always}).Run(context.Background(), repos, "master", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.PullErrors) != 1 || report.PullErrors[0].Repo.Name != "b" {
		t.Fatalf("expected one pull error for b, got %+v", report.PullErrors)
	}
	for _, o := range report.Outcomes {
		if o.Status != outcome.Success {
			t.Errorf("outcome for %s changed to %v", o.Repo.Name, o.Status)
		}
	}
}

func TestRun_SettleUsesIdleSignal(t *testing.T) {
	port := vcstest.New()
	repos := []vcs.Repo{
		port.Add("a", &vcstest.RepoState{Local: local("master")}),
		port.Add("b", &vcstest.RepoState{Local: local("master")}),
	}
	settling := port.WithSettler()
	settling.IdleErr = vcstest.ErrBoom

	s := newSwitcher(settling, Options{AutoPull: Always, SettleDelay: time.Hour})
	var slept time.Duration
	s.sleep = func(_ context.Context, d time.Duration) { slept += d }

	if _, err := s.Run(context.Background(), repos, "master", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(port.CallsTo("wait-idle", "")); n != 2 {
		t.Errorf("expected WaitIdle per repository, got %d", n)
	}
	if slept != 0 {
		t.Errorf("expected no fixed delay when an idle signal exists, slept %v", slept)
	}
}

func TestRun_SettleFallsBackToDelay(t *testing.T) {
	port := vcstest.New()
	repos := []vcs.Repo{port.Add("a", &vcstest.RepoState{Local: local("master")})}

	s := newSwitcher(port, Options{AutoPull: Always, SettleDelay: 1500 * time.Millisecond})
	var slept time.Duration
	s.sleep = func(_ context.Context, d time.Duration) { slept += d }

	if _, err := s.Run(context.Background(), repos, "master", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slept != 1500*time.Millisecond {
		t.Errorf("expected settle delay of 1.5s, got %v", slept)
	}

	slept = 0
	s.opts.AutoPull = Never
	if _, err := s.Run(context.Background(), repos, "master", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slept != 0 {
		t.Errorf("expected no settle without a pull, got %v", slept)
	}
}

func TestRunDefault(t *testing.T) {
	port := vcstest.New()
	repos := []vcs.Repo{
		port.Add("a", &vcstest.RepoState{Local: local("topic", "main"), Current: "topic", DefaultBranch: "main"}),
		port.Add("b", &vcstest.RepoState{Local: local("master"), Current: "master"}),
	}

	report, err := newSwitcher(port, Options{}).RunDefault(context.Background(), repos)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]string{"a": "switched to main", "b": "switched to master"}
	for _, o := range report.Outcomes {
		if o.Status != outcome.Success || o.Message != want[o.Repo.Name] {
			t.Errorf("unexpected outcome for %s: %+v", o.Repo.Name, o)
		}
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"Always", Always, false},
		{"ask", Ask, false},
		{"NEVER", Never, false},
		{"", Ask, false},
		{"sometimes", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
