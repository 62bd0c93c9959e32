// Package gitrepo implements the Git Working-Tree Orchestrator (spec.md
// §4.3): one working tree per GitRepository, reconciled with its configured
// identity on every use, with credential resolution and scoped SSL
// isolation.
package gitrepo

// Category enumerates the recognized repository categories (spec.md §3).
type Category string

const (
	CategoryConfigs    Category = "configs"
	CategoryTemplates  Category = "templates"
	CategoryOnboarding Category = "onboarding"
)

// Repository is the subset of GitRepository metadata the orchestrator
// needs to reconcile a working tree. Anything above this (IDs, timestamps,
// "selected" flag) lives in the API layer.
type Repository struct {
	Name           string
	Category       Category
	URL            string
	Branch         string
	Username       string // legacy inline credential
	Token          string // legacy inline credential
	CredentialName string // wins over Username/Token when set
	Path           string // subpath under data_root/git; defaults to Name
	VerifySSL      bool
	SSLCAInfo      string
	SSLCert        string
}

// WorkingTreePath returns the on-disk path for repo under dataRoot
// (spec.md §3: "<data_root>/git/<path or name>").
func (r Repository) WorkingTreePath(dataRoot string) string {
	p := r.Path
	if p == "" {
		p = r.Name
	}
	return dataRoot + "/git/" + p
}

// SyncResult is the return value of Sync (spec.md §4.3 table).
type SyncResult struct {
	Success bool
	Message string
	Path    string
}

// Status is the return value of the status operation (spec.md §4.3 table).
type Status struct {
	Exists        bool
	IsGitRepo     bool
	IsSynced      bool
	BehindCount   int
	AheadCount    int
	CurrentBranch string
	Branches      []string
	RecentCommits []CommitInfo
	ConfigFiles   []string
	RemoteURL     string
	ActionRequired string
}

// CommitInfo is a minimal commit summary used in status and file-history
// views.
type CommitInfo struct {
	Hash    string
	Message string
	Author  string
	When    string
}
