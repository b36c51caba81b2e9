// Package githost wraps the GitHub REST surface the system treats as an
// external collaborator (§6): list open PRs, list PR files, combined
// check status, and PR creation.
package githost

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"
)

// AgentBranchPrefix marks branches recognized as agent-owned (§6).
const AgentBranchPrefix = "agent/"

// branchTaskIDPatterns recognizes all three branch-name variants that may
// carry a task ID (§6): the base name, the collision-suffixed name, and
// the worker-generated attempt-hash variant.
var branchTaskIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^agent/task-exec-attempt-(.+)-[0-9a-f]{6,}$`),
	regexp.MustCompile(`^agent/(.+)-\d{14}$`),
	regexp.MustCompile(`^agent/(.+)$`),
}

// ExtractTaskID returns the task ID embedded in an agent branch name, per
// whichever of the three recognized patterns matches first.
func ExtractTaskID(branch string) (string, bool) {
	for _, p := range branchTaskIDPatterns {
		if m := p.FindStringSubmatch(branch); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// PullRequest is the subset of GitHub PR fields the scheduler/worker need.
type PullRequest struct {
	Number int
	URL    string
	Title  string
	State  string
	Branch string
}

// Client wraps the go-github REST client for one owner/repo.
type Client struct {
	gh    *github.Client
	owner string
	repo  string
}

// NewClient builds a token-authenticated client for owner/repo.
func NewClient(ctx context.Context, token, owner, repo string) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(ctx, ts)
	return &Client{gh: github.NewClient(httpClient), owner: owner, repo: repo}
}

// ListOpenPullRequests returns open PRs, including those not agent-owned;
// callers filter by AgentBranchPrefix as needed.
func (c *Client) ListOpenPullRequests(ctx context.Context) ([]PullRequest, error) {
	opts := &github.PullRequestListOptions{State: "open", ListOptions: github.ListOptions{PerPage: 100}}

	var out []PullRequest
	for {
		prs, resp, err := c.gh.PullRequests.List(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("list open pull requests: %w", err)
		}
		for _, pr := range prs {
			out = append(out, PullRequest{
				Number: pr.GetNumber(),
				URL:    pr.GetHTMLURL(),
				Title:  pr.GetTitle(),
				State:  pr.GetState(),
				Branch: pr.GetHead().GetRef(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// AgentOwnedCount returns the number of currently open PRs whose branch
// starts with AgentBranchPrefix, the recognition rule used by the
// scheduler's open-PR cap (§4.5 step 1).
func (c *Client) AgentOwnedCount(ctx context.Context) (int, error) {
	prs, err := c.ListOpenPullRequests(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, pr := range prs {
		if strings.HasPrefix(pr.Branch, AgentBranchPrefix) {
			n++
		}
	}
	return n, nil
}

// ListPRFiles returns the paths modified in the given PR.
func (c *Client) ListPRFiles(ctx context.Context, number int) ([]string, error) {
	opts := &github.ListOptions{PerPage: 100}
	var files []string
	for {
		fs, resp, err := c.gh.PullRequests.ListFiles(ctx, c.owner, c.repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("list pr files: %w", err)
		}
		for _, f := range fs {
			files = append(files, f.GetFilename())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return files, nil
}

// CombinedStatus returns the combined check state for a commit SHA.
func (c *Client) CombinedStatus(ctx context.Context, sha string) (string, error) {
	status, _, err := c.gh.Repositories.GetCombinedStatus(ctx, c.owner, c.repo, sha, nil)
	if err != nil {
		return "", fmt.Errorf("get combined status: %w", err)
	}
	return status.GetState(), nil
}

// BranchExists reports whether a branch with the given name exists on
// the remote, used for the branch-name collision probe (§4.6 step 7,
// §10 supplemental).
func (c *Client) BranchExists(ctx context.Context, branch string) (bool, error) {
	_, resp, err := c.gh.Repositories.GetBranch(ctx, c.owner, c.repo, branch, 0)
	if err != nil {
		if resp != nil && resp.StatusCode == 404 {
			return false, nil
		}
		return false, fmt.Errorf("check branch existence: %w", err)
	}
	return true, nil
}

// FindOpenPRByHead returns the open PR for the given head branch, if any,
// so the worker can reuse it instead of creating a duplicate (§4.6 step 9).
func (c *Client) FindOpenPRByHead(ctx context.Context, head string) (*PullRequest, error) {
	opts := &github.PullRequestListOptions{State: "open", Head: c.owner + ":" + head}
	prs, _, err := c.gh.PullRequests.List(ctx, c.owner, c.repo, opts)
	if err != nil {
		return nil, fmt.Errorf("find open pr by head: %w", err)
	}
	if len(prs) == 0 {
		return nil, nil
	}
	pr := prs[0]
	return &PullRequest{Number: pr.GetNumber(), URL: pr.GetHTMLURL(), Title: pr.GetTitle(), State: pr.GetState(), Branch: pr.GetHead().GetRef()}, nil
}

// CreatePullRequest opens a PR {title, body, head, base}.
func (c *Client) CreatePullRequest(ctx context.Context, title, body, head, base string) (PullRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pr, _, err := c.gh.PullRequests.Create(ctx, c.owner, c.repo, &github.NewPullRequest{
		Title: &title,
		Body:  &body,
		Head:  &head,
		Base:  &base,
	})
	if err != nil {
		return PullRequest{}, fmt.Errorf("create pull request: %w", err)
	}
	return PullRequest{Number: pr.GetNumber(), URL: pr.GetHTMLURL(), Title: pr.GetTitle(), State: pr.GetState(), Branch: head}, nil
}
