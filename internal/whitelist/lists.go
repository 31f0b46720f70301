package whitelist

import (
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
)

// Lists holds the compiled matching data for one configuration generation.
// A value is immutable once Load returns it; reloads build a fresh Lists and
// swap the pointer wholesale.
type Lists struct {
	Networks   []netip.Prefix
	RDNSSuffix []string
	ASNs       []string
	UserAgents []compiledPattern
	URIs       []compiledPattern
}

type compiledPattern struct {
	Source string
	Regex  *regexp.Regexp
}

// Load compiles raw per-kind pattern strings into a Lists value. All five
// canonical keys must be present in raw; a missing key is a load error, not an
// empty-list condition. Callers receiving an error must treat the whitelist
// feature as unavailable (fail-closed), never match blindly.
func Load(raw map[string][]string) (*Lists, error) {
	for _, kind := range Kinds {
		if _, ok := raw[kind.Name()]; !ok {
			return nil, fmt.Errorf("whitelist: lists missing kind %s", kind.Name())
		}
	}

	lists := &Lists{}

	for _, entry := range raw[KindIP.Name()] {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		prefix, err := parseNetwork(entry)
		if err != nil {
			return nil, fmt.Errorf("whitelist: IP entry %q: %w", entry, err)
		}
		lists.Networks = append(lists.Networks, prefix)
	}

	for _, entry := range raw[KindRDNS.Name()] {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		lists.RDNSSuffix = append(lists.RDNSSuffix, entry)
	}

	for _, entry := range raw[KindASN.Name()] {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		normalized := strings.TrimPrefix(strings.ToUpper(entry), "AS")
		if _, err := strconv.ParseUint(normalized, 10, 32); err != nil {
			return nil, fmt.Errorf("whitelist: ASN entry %q is not numeric", entry)
		}
		lists.ASNs = append(lists.ASNs, normalized)
	}

	patterns, err := compilePatterns(raw[KindUserAgent.Name()], KindUserAgent)
	if err != nil {
		return nil, err
	}
	lists.UserAgents = patterns

	patterns, err = compilePatterns(raw[KindURI.Name()], KindURI)
	if err != nil {
		return nil, err
	}
	lists.URIs = patterns

	return lists, nil
}

// parseNetwork accepts CIDR literals and, for convenience, bare addresses
// which are treated as single-host prefixes.
func parseNetwork(entry string) (netip.Prefix, error) {
	if prefix, err := netip.ParsePrefix(entry); err == nil {
		return prefix.Masked(), nil
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid network literal: %w", err)
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func compilePatterns(entries []string, kind Kind) ([]compiledPattern, error) {
	out := make([]compiledPattern, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		re, err := regexp.Compile(entry)
		if err != nil {
			return nil, fmt.Errorf("whitelist: %s pattern %q: %w", kind.Name(), entry, err)
		}
		out = append(out, compiledPattern{Source: entry, Regex: re})
	}
	return out, nil
}

// Empty reports whether no kind carries any pattern. The engine still runs
// against empty lists (and caches the resulting negatives); this only feeds
// health reporting.
func (l *Lists) Empty() bool {
	if l == nil {
		return true
	}
	return len(l.Networks) == 0 && len(l.RDNSSuffix) == 0 && len(l.ASNs) == 0 &&
		len(l.UserAgents) == 0 && len(l.URIs) == 0
}
