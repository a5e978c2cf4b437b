// Package github provides a client for querying the GitHub API, used to
// learn a repository's default branch when the local clone does not know it.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/cli/go-gh/v2/pkg/api"
	"golang.org/x/sync/singleflight"
)

// ErrNotGitHub is returned when a remote URL does not point at github.com.
var ErrNotGitHub = errors.New("remote is not a GitHub repository")

// Client wraps GitHub API access. Default branch lookups are shared between
// concurrent callers and cached for the life of the client.
type Client struct {
	rest  *api.RESTClient
	token string

	flight singleflight.Group
	mu     sync.Mutex
	cache  map[string]string
}

// NewClient creates a GitHub client. It attempts to use authentication from
// the gh CLI config, falling back to the provided token, falling back to
// unauthenticated access.
func NewClient(token string) *Client {
	c := &Client{token: token}

	// Try default gh CLI authentication first.
	rest, err := api.DefaultRESTClient()
	if err == nil {
		slog.Debug("using gh CLI authentication")
		c.rest = rest
		return c
	}
	slog.Debug("gh CLI auth not available", "error", err)

	// Fall back to explicit token.
	if token != "" {
		rest, err = api.NewRESTClient(api.ClientOptions{
			AuthToken: token,
		})
		if err == nil {
			slog.Debug("using explicit token authentication")
			c.rest = rest
			return c
		}
		slog.Debug("token auth failed", "error", err)
	}

	// Unauthenticated -- will hit rate limits quickly.
	slog.Debug("using unauthenticated access (rate limits apply)")
	rest, err = api.NewRESTClient(api.ClientOptions{})
	if err != nil {
		slog.Warn("could not create REST client", "error", err)
		return c
	}
	c.rest = rest
	return c
}

// repoResponse holds the fields we care about from GET /repos/{owner}/{repo}.
type repoResponse struct {
	DefaultBranch string `json:"default_branch"`
}

// DefaultBranch returns the default branch configured on GitHub for owner/repo.
func (c *Client) DefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	if c == nil || c.rest == nil {
		return "", fmt.Errorf("no GitHub API client available")
	}

	key := strings.ToLower(owner + "/" + repo)
	c.mu.Lock()
	branch, ok := c.cache[key]
	c.mu.Unlock()
	if ok {
		return branch, nil
	}

	v, err, shared := c.flight.Do(key, func() (any, error) {
		return c.fetchDefaultBranch(ctx, owner, repo)
	})
	if err != nil {
		return "", err
	}
	branch = v.(string)
	slog.Debug("default branch from GitHub", "repo", key, "branch", branch, "shared", shared)

	c.mu.Lock()
	if c.cache == nil {
		c.cache = make(map[string]string)
	}
	c.cache[key] = branch
	c.mu.Unlock()
	return branch, nil
}

func (c *Client) fetchDefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	var resp repoResponse
	err := c.rest.DoWithContext(ctx, http.MethodGet, fmt.Sprintf("repos/%s/%s", owner, repo), nil, &resp)
	if err != nil {
		return "", fmt.Errorf("querying %s/%s: %w", owner, repo, err)
	}
	if resp.DefaultBranch == "" {
		return "", fmt.Errorf("%s/%s reports no default branch", owner, repo)
	}
	return resp.DefaultBranch, nil
}

// DefaultBranchForRemote resolves the GitHub repository behind remoteURL and
// returns its default branch. ErrNotGitHub is returned for other hosts.
func (c *Client) DefaultBranchForRemote(ctx context.Context, remoteURL string) (string, error) {
	owner, repo, ok := ParseGitHubRemote(remoteURL)
	if !ok {
		return "", ErrNotGitHub
	}
	return c.DefaultBranch(ctx, owner, repo)
}

// sshRemoteRe matches SSH-style GitHub remote URLs:
//
//	git@github.com:owner/repo.git
var sshRemoteRe = regexp.MustCompile(`^git@github\.com:([^/]+)/([^/]+?)(?:\.git)?$`)

// ParseGitHubRemote extracts owner and repo from a GitHub remote URL.
// Supports SSH (git@github.com:owner/repo.git), ssh:// and HTTPS
// (https://github.com/owner/repo.git) formats.
func ParseGitHubRemote(url string) (owner, repo string, ok bool) {
	if m := sshRemoteRe.FindStringSubmatch(url); m != nil {
		return m[1], m[2], true
	}

	url = strings.TrimSuffix(url, ".git")
	for _, prefix := range []string{"https://github.com/", "http://github.com/", "ssh://git@github.com/"} {
		if strings.HasPrefix(url, prefix) {
			rest := strings.TrimPrefix(url, prefix)
			parts := strings.SplitN(rest, "/", 3)
			if len(parts) >= 2 && parts[0] != "" && parts[1] != "" {
				return parts[0], parts[1], true
			}
		}
	}

	return "", "", false
}
