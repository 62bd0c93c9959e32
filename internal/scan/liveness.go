package scan

import (
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// Pinger checks host liveness. It is an interface so tests can substitute a
// fake without requiring raw-socket (or setuid) privileges.
type Pinger interface {
	Ping(ip string, timeout time.Duration) bool
}

// ICMPPinger is the production Pinger, backed by pro-bing's unprivileged
// (UDP datagram) ICMP implementation.
type ICMPPinger struct{}

func (ICMPPinger) Ping(ip string, timeout time.Duration) bool {
	pinger, err := probing.NewPinger(ip)
	if err != nil {
		return false
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(false)

	if err := pinger.Run(); err != nil {
		return false
	}
	stats := pinger.Statistics()
	return stats.PacketsRecv > 0
}

// isAlive retries up to attempts times, per spec.md §4.4 ("1.5s per
// attempt and up to 3 attempts").
func isAlive(p Pinger, ip string, timeout time.Duration, attempts int) bool {
	for i := 0; i < attempts; i++ {
		if p.Ping(ip, timeout) {
			return true
		}
	}
	return false
}
