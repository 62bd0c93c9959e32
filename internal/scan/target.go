package scan

import (
	"fmt"
	"net"

	"github.com/nerdfunk-net/cockpit/internal/errs"
)

// minPrefixLen is the operator safety bound (spec.md §4.4): networks larger
// than a /22 (IPv4) are rejected rather than silently truncated.
const minPrefixLen = 22

// ExpandTargets parses each CIDR, enumerates usable hosts (excluding
// network/broadcast), and deduplicates across all supplied CIDRs while
// preserving first-seen order.
//
// Any individually invalid CIDR, or any CIDR wider than /22, rejects the
// whole request with a ValidationError rather than silently dropping that
// entry and proceeding with the rest (spec.md §6: "Rejects cidrs with
// prefix < /22"; §8: "CIDR with prefix /21 is rejected"; matching the
// original's scan_and_add.py validator, which raises on the first
// oversized CIDR instead of degrading it).
func ExpandTargets(cidrs []string) (targets []string, err error) {
	if len(cidrs) == 0 {
		return nil, errs.New(errs.KindValidation, "at least one CIDR is required")
	}

	seen := make(map[string]struct{})
	for _, cidr := range cidrs {
		_, network, perr := net.ParseCIDR(cidr)
		if perr != nil {
			return nil, errs.New(errs.KindValidation, fmt.Sprintf("%s: invalid CIDR", cidr))
		}
		ones, bits := network.Mask.Size()
		if bits == 32 && ones < minPrefixLen {
			return nil, errs.New(errs.KindValidation, fmt.Sprintf("CIDR too large (minimum /%d): %s", minPrefixLen, cidr))
		}

		for _, ip := range hostsOf(network) {
			if _, ok := seen[ip]; ok {
				continue
			}
			seen[ip] = struct{}{}
			targets = append(targets, ip)
		}
	}

	return targets, nil
}

// hostsOf enumerates the usable host addresses of an IPv4 network,
// excluding the network and broadcast addresses (spec.md §4.4). /31 and
// /32 networks have no network/broadcast to exclude and are returned as-is.
func hostsOf(network *net.IPNet) []string {
	ones, bits := network.Mask.Size()
	if bits != 32 {
		return nil // IPv6 is out of scope for this bound (no /22 floor defined).
	}

	base := ip4ToUint32(network.IP.To4())
	count := uint32(1) << uint(32-ones)

	if ones >= 31 {
		out := make([]string, 0, count)
		for i := uint32(0); i < count; i++ {
			out = append(out, uint32ToIP4(base+i).String())
		}
		return out
	}

	out := make([]string, 0, count-2)
	for i := uint32(1); i < count-1; i++ {
		out = append(out, uint32ToIP4(base+i).String())
	}
	return out
}

func ip4ToUint32(ip net.IP) uint32 {
	return uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
}

func uint32ToIP4(v uint32) net.IP {
	return net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
