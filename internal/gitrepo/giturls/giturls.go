// Package giturls parses the handful of URL forms `git` itself accepts
// (http, https, ssh, git, git+ssh, the scp-style "user@host:path"
// shorthand, and absolute local paths, read as file URLs) and normalizes a URL for remote-identity comparison by
// stripping userinfo, query, and fragment (spec.md §4.3: "URL
// normalization: ... strip userinfo and any query/fragment; scheme, host,
// and path must match").
package giturls

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// maxURLLength bounds accepted URLs; git itself has no hard limit but
// pathologically long inputs are rejected rather than handed to net/url.
const maxURLLength = 2048

var allowedSchemes = map[string]bool{
	"http":    true,
	"https":   true,
	"ssh":     true,
	"git":     true,
	"git+ssh": true,
}

// scpLike matches the "[user@]host:path" shorthand git accepts for SSH
// remotes, e.g. "git@github.com:rancher/fleet". It must not match a
// Windows-style drive-letter path ("C:\...") or an already-schemed URL,
// both of which are filtered out by the caller before this is tried.
var scpLike = regexp.MustCompile(`^(?:([^@/\s]+)@)?([a-zA-Z0-9._-]+):(.+)$`)

// Parse parses s into a url.URL, normalizing scp-style SSH shorthand into
// an explicit ssh:// URL whose Path is the shorthand's path (without a
// leading slash, matching git's own scp-style semantics). An absolute local
// path becomes a "file" URL with that path.
func Parse(s string) (*url.URL, error) {
	if len(s) > maxURLLength {
		return nil, fmt.Errorf("git URL too long: %d bytes", len(s))
	}

	if containsScheme(s) {
		u, err := url.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("failed to parse git URL %q: %w", s, err)
		}
		if !allowedSchemes[u.Scheme] {
			return nil, fmt.Errorf("unsupported scheme URL %q", u.Scheme)
		}
		return u, nil
	}

	if strings.HasPrefix(s, "/") {
		return &url.URL{Scheme: "file", Path: s}, nil
	}

	if m := scpLike.FindStringSubmatch(s); m != nil {
		u := &url.URL{Scheme: "ssh", Host: m[2], Path: m[3]}
		if m[1] != "" {
			u.User = url.User(m[1])
		}
		return u, nil
	}

	return nil, fmt.Errorf("failed to parse git URL %q", s)
}

func containsScheme(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ':':
			return i+2 < len(s) && s[i+1] == '/' && s[i+2] == '/'
		case '/', '@':
			return false
		}
	}
	return false
}

// Normalize strips userinfo, query, and fragment from u, returning a new
// URL suitable for remote-identity comparison.
func Normalize(u *url.URL) *url.URL {
	n := *u
	n.User = nil
	n.RawQuery = ""
	n.Fragment = ""
	n.RawFragment = ""
	return &n
}

// NormalizeString parses and normalizes s in one step, returning the
// canonical string form.
func NormalizeString(s string) (string, error) {
	u, err := Parse(s)
	if err != nil {
		return "", err
	}
	return Normalize(u).String(), nil
}
