package gitrepo

import (
	"os"
	"path/filepath"
	"testing"

	gogit "github.com/go-git/go-git/v5"
	gogitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdfunk-net/cockpit/internal/errs"
	"github.com/nerdfunk-net/cockpit/internal/vault"
)

// noCredentials is a CredentialSource that never finds anything, used by
// tests exercising repositories with no configured auth.
type noCredentials struct{}

func (noCredentials) GetByName(name string) (vault.Credential, error) {
	return vault.Credential{}, errs.New(errs.KindNotFound, "no credentials configured")
}
func (noCredentials) Decrypt(id int64) (string, error) { return "", errs.New(errs.KindNotFound, "no credentials configured") }

// seedBareRemote creates a bare repository at dir, seeded with one commit
// on the default branch pushed from a throwaway working clone.
func seedBareRemote(t *testing.T, dir string) {
	t.Helper()
	_, err := gogit.PlainInit(dir, true)
	require.NoError(t, err)

	seedDir := t.TempDir()
	seedRepo, err := gogit.PlainInit(seedDir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(seedDir, "README.md"), []byte("seed"), 0o644))

	w, err := seedRepo.Worktree()
	require.NoError(t, err)
	_, err = w.Add("README.md")
	require.NoError(t, err)
	_, err = w.Commit("seed", &gogit.CommitOptions{
		Author: &object.Signature{Name: "seed", Email: "seed@localhost"},
	})
	require.NoError(t, err)

	_, err = seedRepo.CreateRemote(&gogitconfig.RemoteConfig{Name: "origin", URLs: []string{dir}})
	require.NoError(t, err)
	require.NoError(t, seedRepo.Push(&gogit.PushOptions{RemoteName: "origin"}))
}

func TestOpenOrCloneClonesWhenMissing(t *testing.T) {
	root := t.TempDir()
	remoteDir := filepath.Join(t.TempDir(), "remote.git")
	seedBareRemote(t, remoteDir)

	orch := New(filepath.Join(root, "data"), noCredentials{}, nil)
	repo := Repository{Name: "r1", URL: remoteDir}

	path, err := orch.OpenOrClone(repo)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(path, "README.md"))
	assert.NoError(t, err)
}

func TestOpenOrCloneReclonesOnURLMismatch(t *testing.T) {
	root := t.TempDir()
	remoteA := filepath.Join(t.TempDir(), "a.git")
	remoteB := filepath.Join(t.TempDir(), "b.git")
	seedBareRemote(t, remoteA)
	seedBareRemote(t, remoteB)

	orch := New(filepath.Join(root, "data"), noCredentials{}, nil)
	repo := Repository{Name: "r1", URL: remoteA}

	path, err := orch.OpenOrClone(repo)
	require.NoError(t, err)

	repo.URL = remoteB
	path2, err := orch.OpenOrClone(repo)
	require.NoError(t, err)
	assert.Equal(t, path, path2)

	matches, err := orch.originMatches(repo, path2)
	require.NoError(t, err)
	assert.True(t, matches)
}

func TestCommitAndPushCreatesCommitWithDefaultMessage(t *testing.T) {
	root := t.TempDir()
	remoteDir := filepath.Join(t.TempDir(), "remote.git")
	seedBareRemote(t, remoteDir)

	orch := New(filepath.Join(root, "data"), noCredentials{}, nil)
	repo := Repository{Name: "r1", URL: remoteDir, Branch: "master"}

	path, err := orch.OpenOrClone(repo)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(path, "inv"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "inv", "servers.yaml"), []byte("10.0.0.9: {}\n"), 0o644))

	hash, err := orch.CommitAndPush(repo, "inv/servers.yaml", "", false)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	r, err := gogit.PlainOpen(path)
	require.NoError(t, err)
	head, err := r.Head()
	require.NoError(t, err)
	commit, err := r.CommitObject(head.Hash())
	require.NoError(t, err)
	assert.Equal(t, "servers.yaml", commit.Message)
}

func TestStatusReportsNotExistsForMissingPath(t *testing.T) {
	root := t.TempDir()
	orch := New(filepath.Join(root, "data"), noCredentials{}, nil)
	st, err := orch.Status(Repository{Name: "ghost", URL: "https://example.invalid/ghost.git"})
	require.NoError(t, err)
	assert.False(t, st.Exists)
}
