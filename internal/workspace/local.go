// Package workspace provides two interchangeable isolated execution
// environments for one attempt (§4.7): a local git-based checkout, and a
// Kubernetes batch Job. Both guarantee one attempt's on-disk state never
// influences another's.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// Local is a git-backed isolated workspace rooted at a unique directory
// per attempt. go-git has no native `git worktree` primitive, so
// isolation is realized by cloning into a fresh working directory per
// attempt rather than sharing one checkout across attempts — this
// satisfies the same on-disk isolation guarantee a real worktree would.
type Local struct {
	root          string
	repoURL       string
	defaultBranch string
	token         string
	repo          *git.Repository
	workdir       string
	baseCommit    plumbing.Hash
}

// NewLocal picks a writable base directory (override, else a standard
// path, else the process temp dir) and returns a Local rooted at
// <base>/<attemptID>.
func NewLocal(base, attemptID, repoURL, defaultBranch, token string) (*Local, error) {
	root, err := writableRoot(base)
	if err != nil {
		return nil, fmt.Errorf("no writable workspace root: %w", err)
	}
	workdir := filepath.Join(root, attemptID, "target")
	if err := os.MkdirAll(filepath.Dir(workdir), 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}
	return &Local{root: root, repoURL: repoURL, defaultBranch: defaultBranch, token: token, workdir: workdir}, nil
}

func writableRoot(base string) (string, error) {
	candidates := []string{base, "/var/lib/leviathan/workspaces", os.TempDir()}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if err := os.MkdirAll(c, 0o755); err == nil {
			probe := filepath.Join(c, ".write_probe")
			if f, err := os.Create(probe); err == nil {
				f.Close()
				os.Remove(probe)
				return c, nil
			}
		}
	}
	return "", fmt.Errorf("none of the candidate workspace roots are writable")
}

// authURL returns repoURL with the access token embedded in the
// x-access-token form for HTTPS remotes. SSH URLs are returned unchanged
// (agent-key auth is used instead). The returned string must never be
// logged.
func (l *Local) authURL() string {
	if !strings.HasPrefix(l.repoURL, "https://") {
		return l.repoURL
	}
	token := strings.TrimSpace(l.token)
	if token == "" {
		return l.repoURL
	}
	return strings.Replace(l.repoURL, "https://", fmt.Sprintf("https://x-access-token:%s@", token), 1)
}

// Clone performs a shallow clone of the default branch into the
// workspace's target directory.
func (l *Local) Clone(ctx context.Context) error {
	repo, err := git.PlainCloneContext(ctx, l.workdir, false, &git.CloneOptions{
		URL:           l.authURL(),
		ReferenceName: plumbing.NewBranchReferenceName(l.defaultBranch),
		SingleBranch:  true,
		Depth:         1,
	})
	if err != nil {
		return fmt.Errorf("clone target repository: %w", err)
	}
	l.repo = repo

	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("resolve cloned head: %w", err)
	}
	l.baseCommit = head.Hash()
	return nil
}

// Dir returns the working directory of the cloned checkout.
func (l *Local) Dir() string { return l.workdir }

// CreateBranch creates and checks out a new branch from the current
// HEAD (the default branch tip).
func (l *Local) CreateBranch(name string) error {
	wt, err := l.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	ref := plumbing.NewBranchReferenceName(name)
	if err := wt.Checkout(&git.CheckoutOptions{Branch: ref, Create: true}); err != nil {
		return fmt.Errorf("create branch %s: %w", name, err)
	}
	return nil
}

// Commit stages every path under the worktree and commits with the
// given author identity and message.
func (l *Local) Commit(message, authorName, authorEmail string) (string, error) {
	wt, err := l.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("stage changes: %w", err)
	}
	sha, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: authorName, Email: authorEmail, When: time.Now().UTC()},
	})
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return sha.String(), nil
}

// PredictsMergeConflict performs a trial merge of the default branch
// into HEAD without committing, and reports whether it would conflict.
// go-git lacks a direct three-way merge API, so this is approximated by
// comparing, for each path this attempt changed, the blob at the merge
// base (the commit this attempt branched from, captured in Clone)
// against the blob at the default branch's current tip: only a path
// whose upstream content actually changed since the merge base is
// treated as a predicted conflict (§4.6 step 8). A path that exists on
// both sides with an identical blob, or that neither side touched since
// the merge base, is not a conflict.
func (l *Local) PredictsMergeConflict(ctx context.Context, branchFiles []string) (bool, error) {
	remote, err := l.repo.Remote("origin")
	if err != nil {
		return false, fmt.Errorf("resolve origin remote: %w", err)
	}
	refs, err := remote.ListContext(ctx, &git.ListOptions{})
	if err != nil {
		return false, fmt.Errorf("list remote refs: %w", err)
	}
	var tip plumbing.Hash
	wantRef := plumbing.NewBranchReferenceName(l.defaultBranch)
	for _, r := range refs {
		if r.Name() == wantRef {
			tip = r.Hash()
			break
		}
	}
	if tip.IsZero() || tip == l.baseCommit {
		return false, nil
	}

	// The shallow clone holds only the merge base, so the tip commit is
	// fetched before its tree is read.
	err = l.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		RefSpecs:   []config.RefSpec{config.RefSpec(fmt.Sprintf("+%s:refs/remotes/origin/%s", wantRef, l.defaultBranch))},
		Depth:      1,
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return false, fmt.Errorf("fetch default branch tip: %w", err)
	}

	tipCommit, err := l.repo.CommitObject(tip)
	if err != nil {
		return false, fmt.Errorf("load default branch tip commit: %w", err)
	}
	tipTree, err := tipCommit.Tree()
	if err != nil {
		return false, fmt.Errorf("load default branch tree: %w", err)
	}

	baseCommit, err := l.repo.CommitObject(l.baseCommit)
	if err != nil {
		return false, fmt.Errorf("load merge-base commit: %w", err)
	}
	baseTree, err := baseCommit.Tree()
	if err != nil {
		return false, fmt.Errorf("load merge-base tree: %w", err)
	}

	for _, p := range branchFiles {
		tipFile, tipErr := tipTree.File(p)
		baseFile, baseErr := baseTree.File(p)
		switch {
		case tipErr != nil && baseErr != nil:
			// Path didn't exist at the merge base and still doesn't exist
			// upstream: nothing for the upstream tip to have changed.
			continue
		case tipErr != nil || baseErr != nil:
			// Path was added or removed upstream since the merge base while
			// this attempt also touched it.
			return true, nil
		case tipFile.Hash != baseFile.Hash:
			// Upstream tip's content for this path diverged from the merge
			// base since the attempt branched.
			return true, nil
		}
	}
	return false, nil
}

// Push pushes the named branch to origin using the authenticated URL.
func (l *Local) Push(ctx context.Context, branch string) error {
	err := l.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []config.RefSpec{config.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))},
		Auth:       l.pushAuth(),
	})
	if err != nil {
		return fmt.Errorf("push branch %s: %w", branch, err)
	}
	return nil
}

func (l *Local) pushAuth() *http.BasicAuth {
	if !strings.HasPrefix(l.repoURL, "https://") || l.token == "" {
		return nil
	}
	return &http.BasicAuth{Username: "x-access-token", Password: strings.TrimSpace(l.token)}
}

// Cleanup removes the attempt's working directory. Failures are
// returned for the caller to log, but must never block attempt
// completion.
func (l *Local) Cleanup() error {
	return os.RemoveAll(filepath.Dir(l.workdir))
}
