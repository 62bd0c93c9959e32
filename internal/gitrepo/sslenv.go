package gitrepo

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"os"
	"sync"

	"github.com/go-git/go-git/v5/plumbing/transport"
	gogitclient "github.com/go-git/go-git/v5/plumbing/transport/client"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// sslInstallMu serializes installation of a repo-scoped HTTP transport into
// go-git's process-wide protocol table. go-git is a Go library — it never
// execs a "git" child process, so GIT_SSL_NO_VERIFY/GIT_SSL_CAINFO/
// GIT_SSL_CERT (which only a real git binary reads) have no effect on it.
// The teacher's own GetHTTPClientFromSecret (_teacher_ref/git/netutils.go)
// shows the correct pattern for this: a *http.Client with a custom
// tls.Config, installed per-transport. Because go-git keeps that transport
// in a single global map rather than accepting it per call, installing one
// must be serialized against every other repository's operation.
var sslInstallMu sync.Mutex

// sslScope installs an *http.Client built from repo's SSL fields as the
// "https" transport for the scope's duration, restoring the previous
// transport on Close regardless of how the scope exits (spec.md §9:
// "restores the prior values on exit from the scoped block on every path,
// including failures").
type sslScope struct {
	previous transport.Transport
}

// newSSLScope acquires the scope and applies repo's SSL policy. Callers
// must defer Close immediately.
func newSSLScope(repo Repository) *sslScope {
	sslInstallMu.Lock()

	previous := gogitclient.Protocols["https"]
	gogitclient.InstallProtocol("https", githttp.NewClient(httpClientFor(repo)))

	return &sslScope{previous: previous}
}

// httpClientFor builds an *http.Client honoring repo.VerifySSL (disables
// certificate verification entirely when false), repo.SSLCAInfo (a PEM CA
// bundle path appended to the system pool), and repo.SSLCert (a PEM
// certificate path also appended to the trusted pool), matching the
// original's ssl_cainfo/ssl_cert semantics (git_manager.py).
func httpClientFor(repo Repository) *http.Client {
	tlsConfig := &tls.Config{InsecureSkipVerify: !repo.VerifySSL} //nolint:gosec // operator opt-in per repository

	if repo.SSLCAInfo != "" || repo.SSLCert != "" {
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		for _, path := range []string{repo.SSLCAInfo, repo.SSLCert} {
			if path == "" {
				continue
			}
			if pem, err := os.ReadFile(path); err == nil {
				pool.AppendCertsFromPEM(pem)
			}
		}
		tlsConfig.RootCAs = pool
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.TLSClientConfig = tlsConfig

	return &http.Client{Transport: base}
}

// Close restores the previously installed "https" transport and releases
// the scope. Always call via defer immediately after newSSLScope.
func (s *sslScope) Close() {
	gogitclient.InstallProtocol("https", s.previous)
	sslInstallMu.Unlock()
}
