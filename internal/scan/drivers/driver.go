// Package drivers implements the device-classification probes the Scan
// Subsystem tries against a reachable host (spec.md §4.4): a fixed-priority
// set of Cisco facts probes, and a Linux SSH fallback. There is no
// NAPALM-equivalent multi-vendor driver library in the retrieved corpus, so
// each "driver" is an SSH session that issues the commands a human operator
// would use to fingerprint that platform family; see DESIGN.md.
package drivers

import (
	"bytes"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// CiscoDriverOrder is the fixed priority order spec.md §4.4 mandates:
// "ios -> nxos_ssh -> iosxr".
var CiscoDriverOrder = []string{"ios", "nxos_ssh", "iosxr"}

// Facts is what a successful probe recovers about the device.
type Facts struct {
	Hostname string
	Platform string
}

// Dial opens an SSH session to ip using password auth, accepting whatever
// host key is presented (spec.md leaves host-key pinning to the Git
// orchestrator only; device scanning targets are operator-supplied and
// transient, mirroring the original's paramiko AutoAddPolicy). It is
// exported so the ssh-login classification mode (internal/scan) can reuse
// the same dial/session plumbing as the napalm-style drivers.
func Dial(ip, username, password string, timeout time.Duration) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User:            username,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec
		Timeout:         timeout,
	}
	addr := net.JoinHostPort(ip, "22")
	return ssh.Dial("tcp", addr, config)
}

// RunCommand executes cmd over an SSH session and returns stdout/stderr
// as read (untrimmed) plus the command's exit status (0 on success).
func RunCommand(client *ssh.Client, cmd string) (stdout string, stderr string, exitStatus int, err error) {
	session, err := client.NewSession()
	if err != nil {
		return "", "", -1, err
	}
	defer session.Close()

	var outBuf, errBuf bytes.Buffer
	session.Stdout = &outBuf
	session.Stderr = &errBuf

	runErr := session.Run(cmd)
	exitStatus = 0
	if runErr != nil {
		if exitErr, ok := runErr.(*ssh.ExitError); ok {
			exitStatus = exitErr.ExitStatus()
		} else {
			return outBuf.String(), errBuf.String(), -1, runErr
		}
	}
	return outBuf.String(), errBuf.String(), exitStatus, nil
}

// ErrNotSupported is returned by a driver probe that connected but could
// not confirm the expected platform.
var ErrNotSupported = fmt.Errorf("device did not match expected platform")
