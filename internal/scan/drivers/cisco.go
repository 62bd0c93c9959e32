package drivers

import (
	"strings"
	"time"
)

// TryCisco connects to ip via SSH and issues "show version", the probe
// every napalm Cisco driver performs as part of its handshake. The driver
// parameter only labels the resulting Facts.Platform (spec.md §4.4:
// "platform = <driver name>"); see package doc for why this is a single
// probe rather than three distinct wire protocols.
func TryCisco(driver, ip, username, password string, timeout time.Duration) (*Facts, error) {
	client, err := Dial(ip, username, password, timeout)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	stdout, stderr, exitStatus, err := RunCommand(client, "show version")
	if err != nil {
		return nil, err
	}
	stdout = strings.TrimSpace(stdout)
	stderr = strings.TrimSpace(stderr)
	if exitStatus != 0 || stdout == "" || len(stdout) <= 50 || stderr != "" {
		return nil, ErrNotSupported
	}

	return &Facts{
		Hostname: guessCiscoHostname(stdout),
		Platform: driver,
	}, nil
}

// guessCiscoHostname applies the original's fallback heuristic: the first
// "uptime is" line's leading token, else the first unindented line that
// isn't about the software version.
func guessCiscoHostname(showVersionOutput string) string {
	for _, line := range strings.Split(showVersionOutput, "\n") {
		if strings.Contains(strings.ToLower(line), "uptime is") {
			fields := strings.Fields(strings.TrimSpace(line))
			if len(fields) > 0 {
				return fields[0]
			}
		}
	}
	for _, line := range strings.Split(showVersionOutput, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(line, " ") {
			continue
		}
		if strings.Contains(strings.ToLower(trimmed), "version") {
			continue
		}
		return trimmed
	}
	return ""
}
