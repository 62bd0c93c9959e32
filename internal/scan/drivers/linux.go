package drivers

import (
	"strings"
	"time"
)

// TryLinux connects via SSH and confirms a Linux kernel using "uname -s"
// and recovers a hostname via "uname -n" (spec.md §4.4 napalm-mode
// fallback). It returns ErrNotSupported (not an error) when the kernel
// isn't Linux, so callers can distinguish "unreachable via SSH" from
// "reachable but not Linux".
func TryLinux(ip, username, password string, timeout time.Duration) (*Facts, error) {
	client, err := Dial(ip, username, password, timeout)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	hostname, _, _, err := RunCommand(client, "uname -n")
	if err != nil {
		return nil, err
	}
	kernel, _, _, err := RunCommand(client, "uname -s")
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(strings.TrimSpace(kernel), "linux") {
		return nil, ErrNotSupported
	}

	return &Facts{
		Hostname: strings.TrimSpace(hostname),
		Platform: "linux",
	}, nil
}
