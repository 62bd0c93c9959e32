package scan

import (
	"strings"
	"time"

	"github.com/nerdfunk-net/cockpit/internal/scan/drivers"
	"github.com/nerdfunk-net/cockpit/internal/textfsm"
)

// sshLoginAttempt is the result of one credential's ssh-login mode probe
// (spec.md §4.4 "Mode ssh-login"). connected is false only when the SSH
// session itself could not be established (wrong credential); everything
// else is a successful classification, including "unknown".
type sshLoginAttempt struct {
	connected  bool
	deviceType string
	hostname   string
	platform   string
}

// trySSHLogin implements the ssh-login classification algorithm: first
// "show version", classifying cisco on non-empty/reasonably-long
// stdout with empty stderr; else "hostname" + "uname -a" for a linux
// classification; else "unknown" with platform "ssh-accessible".
func trySSHLogin(ip, username, password string, timeout time.Duration, templates []*textfsm.Template) sshLoginAttempt {
	client, err := drivers.Dial(ip, username, password, timeout)
	if err != nil {
		return sshLoginAttempt{connected: false}
	}
	defer client.Close()

	stdout, stderr, exitStatus, err := drivers.RunCommand(client, "show version")
	if err == nil && exitStatus == 0 {
		trimmedOut := strings.TrimSpace(stdout)
		trimmedErr := strings.TrimSpace(stderr)
		if trimmedOut != "" && len(trimmedOut) > 50 && trimmedErr == "" {
			hostname := ""
			platform := ""
			for _, tpl := range templates {
				if h, ok := textfsm.FirstHostname(tpl, trimmedOut); ok {
					hostname = h
					platform = "cisco"
					break
				}
			}
			return sshLoginAttempt{connected: true, deviceType: "cisco", hostname: hostname, platform: platform}
		}
	}

	hostOut, _, hostStatus, hostErr := drivers.RunCommand(client, "hostname")
	if hostErr == nil && hostStatus == 0 && strings.TrimSpace(hostOut) != "" {
		unameOut, _, _, unameErr := drivers.RunCommand(client, "uname -a")
		platform := "linux-unknown"
		if unameErr == nil && strings.TrimSpace(unameOut) != "" {
			platform = strings.TrimSpace(unameOut)
		}
		return sshLoginAttempt{connected: true, deviceType: "linux", hostname: strings.TrimSpace(hostOut), platform: platform}
	}

	return sshLoginAttempt{connected: true, deviceType: "unknown", platform: "ssh-accessible"}
}
