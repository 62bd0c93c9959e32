package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gogitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/sirupsen/logrus"

	"github.com/nerdfunk-net/cockpit/internal/errs"
	"github.com/nerdfunk-net/cockpit/internal/gitrepo/giturls"
)

// Orchestrator maintains one working tree per Repository under dataRoot,
// serializing clone/pull/commit/push per working-tree path (spec.md §5: "A
// Git working tree is not safe for concurrent writers").
type Orchestrator struct {
	dataRoot string
	creds    CredentialSource
	log      *logrus.Logger

	CloneTimeout  time.Duration
	PullTimeout   time.Duration
	RemoteTimeout time.Duration

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New builds an Orchestrator rooted at dataRoot, resolving credentials
// through creds.
func New(dataRoot string, creds CredentialSource, log *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		dataRoot:      dataRoot,
		creds:         creds,
		log:           log,
		CloneTimeout:  120 * time.Second,
		PullTimeout:   60 * time.Second,
		RemoteTimeout: 10 * time.Second,
		locks:         make(map[string]*sync.Mutex),
	}
}

func (o *Orchestrator) pathLock(path string) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	m, ok := o.locks[path]
	if !ok {
		m = &sync.Mutex{}
		o.locks[path] = m
	}
	return m
}

// OpenOrClone returns the on-disk path of repo's working tree, cloning it
// if absent and re-cloning it if the on-disk origin (after userinfo
// stripping) no longer matches the configured URL (spec.md §4.3).
func (o *Orchestrator) OpenOrClone(repo Repository) (string, error) {
	path := repo.WorkingTreePath(o.dataRoot)
	lock := o.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	return o.openOrCloneLocked(repo, path)
}

func (o *Orchestrator) openOrCloneLocked(repo Repository, path string) (string, error) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return path, o.cloneLocked(repo, path)
		}
		return "", errs.Wrap(errs.KindInternal, "stat working tree", statErr)
	}
	if !info.IsDir() {
		return "", errs.New(errs.KindStateConflict, fmt.Sprintf("working tree path %q is not a directory", path))
	}

	matches, err := o.originMatches(repo, path)
	if err != nil || !matches {
		if err := os.RemoveAll(path); err != nil {
			return "", errs.Wrap(errs.KindInternal, "remove stale working tree", err)
		}
		return path, o.cloneLocked(repo, path)
	}
	return path, nil
}

func (o *Orchestrator) originMatches(repo Repository, path string) (bool, error) {
	r, err := gogit.PlainOpen(path)
	if err != nil {
		return false, nil // not a git repo at all: treat as mismatch, re-clone.
	}
	remote, err := r.Remote("origin")
	if err != nil {
		return false, nil
	}
	cfg := remote.Config()
	if len(cfg.URLs) == 0 {
		return false, nil
	}
	onDisk, err := giturls.NormalizeString(cfg.URLs[0])
	if err != nil {
		return false, nil
	}
	configured, err := giturls.NormalizeString(repo.URL)
	if err != nil {
		return false, err
	}
	return onDisk == configured, nil
}

func (o *Orchestrator) cloneLocked(repo Repository, path string) error {
	scope := newSSLScope(repo)
	defer scope.Close()

	effectiveURL, auth, err := resolveAuth(repo, o.creds, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.CloneTimeout)
	defer cancel()

	_, err = gogit.PlainCloneContext(ctx, path, false, &gogit.CloneOptions{
		URL:           effectiveURL,
		Auth:          auth,
		SingleBranch:  true,
		ReferenceName: branchRef(repo.Branch),
	})
	if err != nil {
		_ = os.RemoveAll(path) // partially-created directory is removed on clone failure (spec.md §4.3)
		return translateGitError(err, "clone")
	}
	return nil
}

func branchRef(branch string) plumbing.ReferenceName {
	if branch == "" {
		return ""
	}
	return plumbing.NewBranchReferenceName(branch)
}

// Sync clones if the working tree is absent/invalid, otherwise pulls from
// origin/<branch> (spec.md §4.3).
func (o *Orchestrator) Sync(repo Repository) (SyncResult, error) {
	path := repo.WorkingTreePath(o.dataRoot)
	lock := o.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		if err := o.cloneLocked(repo, path); err != nil {
			return SyncResult{}, err
		}
		return SyncResult{Success: true, Message: "cloned", Path: path}, nil
	}

	matches, err := o.originMatches(repo, path)
	if err != nil {
		return SyncResult{}, err
	}
	if !matches {
		if err := os.RemoveAll(path); err != nil {
			return SyncResult{}, errs.Wrap(errs.KindInternal, "remove stale working tree", err)
		}
		if err := o.cloneLocked(repo, path); err != nil {
			return SyncResult{}, err
		}
		return SyncResult{Success: true, Message: "re-cloned (remote URL changed)", Path: path}, nil
	}

	scope := newSSLScope(repo)
	defer scope.Close()

	r, err := gogit.PlainOpen(path)
	if err != nil {
		return SyncResult{}, errs.Wrap(errs.KindInternal, "open working tree", err)
	}
	w, err := r.Worktree()
	if err != nil {
		return SyncResult{}, errs.Wrap(errs.KindInternal, "open worktree", err)
	}

	effectiveURL, auth, err := resolveAuth(repo, o.creds, nil)
	if err != nil {
		return SyncResult{}, err
	}
	if err := updateOrigin(r, effectiveURL); err != nil {
		return SyncResult{}, err
	}

	pullCtx, pullCancel := context.WithTimeout(context.Background(), o.PullTimeout)
	defer pullCancel()

	err = w.PullContext(pullCtx, &gogit.PullOptions{RemoteName: "origin", Auth: auth, ReferenceName: branchRef(repo.Branch), SingleBranch: true})
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		// On pull failure the working tree is left untouched (spec.md §4.3).
		return SyncResult{Success: false, Message: err.Error(), Path: path}, translateGitError(err, "pull")
	}

	return SyncResult{Success: true, Message: "up to date", Path: path}, nil
}

func updateOrigin(r *gogit.Repository, url string) error {
	if err := r.DeleteRemote("origin"); err != nil && err != gogit.ErrRemoteNotFound {
		return errs.Wrap(errs.KindInternal, "remove origin remote", err)
	}
	_, err := r.CreateRemote(&gogitconfig.RemoteConfig{Name: "origin", URLs: []string{url}})
	if err != nil {
		return errs.Wrap(errs.KindInternal, "recreate origin remote", err)
	}
	return nil
}

// Status reports the working tree's reconciliation state (spec.md §4.3
// table). A failed remote reachability check degrades IsSynced to false
// rather than failing the call.
func (o *Orchestrator) Status(repo Repository) (Status, error) {
	path := repo.WorkingTreePath(o.dataRoot)
	lock := o.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	st := Status{}
	info, statErr := os.Stat(path)
	if statErr != nil {
		return st, nil // Exists=false; everything else zero value.
	}
	st.Exists = info.IsDir()
	if !st.Exists {
		return st, nil
	}

	r, err := gogit.PlainOpen(path)
	if err != nil {
		return st, nil // IsGitRepo=false
	}
	st.IsGitRepo = true

	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && d.Name() == ".git" {
			return fs.SkipDir
		}
		if d.Type().IsRegular() {
			if rel, relErr := filepath.Rel(path, p); relErr == nil {
				st.ConfigFiles = append(st.ConfigFiles, filepath.ToSlash(rel))
			}
		}
		return nil
	})

	head, err := r.Head()
	if err == nil {
		st.CurrentBranch = head.Name().Short()
	}

	refs, err := r.Branches()
	if err == nil {
		_ = refs.ForEach(func(ref *plumbing.Reference) error {
			st.Branches = append(st.Branches, ref.Name().Short())
			return nil
		})
	}

	commits, err := r.Log(&gogit.LogOptions{})
	if err == nil {
		count := 0
		_ = commits.ForEach(func(c *object.Commit) error {
			if count >= 10 {
				return storer.ErrStop
			}
			st.RecentCommits = append(st.RecentCommits, CommitInfo{
				Hash:    c.Hash.String(),
				Message: c.Message,
				Author:  c.Author.Name,
				When:    c.Author.When.Format(time.RFC3339),
			})
			count++
			return nil
		})
	}

	if remote, err := r.Remote("origin"); err == nil && len(remote.Config().URLs) > 0 {
		st.RemoteURL = remote.Config().URLs[0]
	}

	matches, _ := o.originMatches(repo, path)
	if !matches {
		st.ActionRequired = "remote URL mismatch: next sync will re-clone"
	}

	// A short remote ref listing determines ahead/behind; any failure defaults
	// IsSynced to false (spec.md §4.3).
	effectiveURL, auth, authErr := resolveAuth(repo, o.creds, nil)
	if authErr == nil {
		if ahead, behind, err := aheadBehind(r, effectiveURL, auth, o.RemoteTimeout); err == nil {
			st.AheadCount = ahead
			st.BehindCount = behind
			st.IsSynced = ahead == 0 && behind == 0
		}
	}

	return st, nil
}

// TestConnection validates that repo's remote is reachable with its
// configured credentials, without touching any working tree (spec.md §6
// "test" endpoint). It does a remote ref listing only.
func (o *Orchestrator) TestConnection(repo Repository) error {
	effectiveURL, auth, err := resolveAuth(repo, o.creds, nil)
	if err != nil {
		return err
	}
	remote := gogit.NewRemote(memory.NewStorage(), &gogitconfig.RemoteConfig{Name: "origin", URLs: []string{effectiveURL}})
	err = runWithTimeout(o.RemoteTimeout, func() error {
		_, err := remote.List(&gogit.ListOptions{Auth: auth})
		return err
	})
	if err != nil {
		return translateGitError(err, "list remote refs")
	}
	return nil
}

// aheadBehind performs a lightweight remote ref listing (spec.md §4.3:
// "may consult fetch --dry-run with a short timeout"). It reports whether
// the current branch's remote hash matches HEAD; any failure is the
// caller's cue to leave IsSynced at its false zero value.
func aheadBehind(r *gogit.Repository, url string, auth transport.AuthMethod, timeout time.Duration) (ahead, behind int, err error) {
	head, err := r.Head()
	if err != nil {
		return 0, 0, err
	}

	remote := gogit.NewRemote(memory.NewStorage(), &gogitconfig.RemoteConfig{Name: "origin", URLs: []string{url}})
	var refs []*plumbing.Reference
	listErr := runWithTimeout(timeout, func() error {
		var listErr error
		refs, listErr = remote.List(&gogit.ListOptions{Auth: auth})
		return listErr
	})
	if listErr != nil {
		return 0, 0, listErr
	}

	for _, ref := range refs {
		if ref.Name() == head.Name() {
			if ref.Hash() == head.Hash() {
				return 0, 0, nil
			}
			return 0, 1, nil
		}
	}
	return 0, 0, fmt.Errorf("branch %s not found on remote", head.Name().Short())
}

// CommitAndPush stages relpath, commits with message (or the file's
// basename if empty), and optionally pushes (spec.md §4.3, §4.6).
func (o *Orchestrator) CommitAndPush(repo Repository, relpath, message string, push bool) (string, error) {
	path := repo.WorkingTreePath(o.dataRoot)
	lock := o.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	scope := newSSLScope(repo)
	defer scope.Close()

	r, err := gogit.PlainOpen(path)
	if err != nil {
		return "", errs.Wrap(errs.KindInternal, "open working tree", err)
	}
	w, err := r.Worktree()
	if err != nil {
		return "", errs.Wrap(errs.KindInternal, "open worktree", err)
	}
	if _, err := w.Add(relpath); err != nil {
		return "", errs.Wrap(errs.KindInternal, "stage file", err)
	}

	if message == "" {
		message = basename(relpath)
	}

	hash, err := w.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{Name: "cockpit", Email: "cockpit@localhost", When: time.Now()},
	})
	if err != nil {
		return "", errs.Wrap(errs.KindInternal, "commit file", err)
	}

	if o.log != nil {
		o.log.WithField("commit", hash.String()).Info("committed inventory artifact")
	}

	if push {
		effectiveURL, auth, err := resolveAuth(repo, o.creds, nil)
		if err != nil {
			return hash.String(), err
		}
		if err := updateOrigin(r, effectiveURL); err != nil {
			return hash.String(), err
		}
		refSpec := gogitconfig.RefSpec(fmt.Sprintf("%s:%s", branchRef(repo.Branch), branchRef(repo.Branch)))
		err = r.Push(&gogit.PushOptions{RemoteName: "origin", Auth: auth, RefSpecs: []gogitconfig.RefSpec{refSpec}})
		if err != nil && err != gogit.NoErrAlreadyUpToDate {
			// Errors in push are logged but do not unwrite the file (spec.md §4.6).
			if o.log != nil {
				o.log.WithError(err).Error("push failed after commit")
			}
			return hash.String(), translateGitError(err, "push")
		}
	}

	return hash.String(), nil
}

func basename(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}

// runWithTimeout bounds a blocking call with no context-aware variant of
// its own (go-git's Remote.List, unlike PlainCloneContext/PullContext, takes
// no context) by racing it against a timer on its own goroutine (spec.md §5:
// "remote-query ≤ 10s"). If fn has not returned by timeout, a distinct
// timeout error is returned and fn's goroutine is left to finish in the
// background.
func runWithTimeout(timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return errs.New(errs.KindRemoteUnavailable, "git remote query timed out")
	}
}

// translateGitError surfaces timeouts and authentication failures as
// distinct, user-readable errors (spec.md §4.3 "Failure semantics").
func translateGitError(err error, op string) error {
	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired), errors.Is(err, transport.ErrAuthorizationFailed):
		return errs.Wrap(errs.KindAuth, fmt.Sprintf("%s: authentication rejected", op), err)
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return errs.Wrap(errs.KindNotFound, fmt.Sprintf("%s: repository not found", op), err)
	}
	return errs.Wrap(errs.KindRemoteUnavailable, fmt.Sprintf("%s failed", op), err)
}
