package whitelist

import "fmt"

// Kind enumerates the classification axes a request can be whitelisted on.
// The set is closed: every match site switches over it exhaustively.
type Kind int

const (
	KindIP Kind = iota
	KindRDNS
	KindASN
	KindUserAgent
	KindURI
)

// Kinds lists every kind in declaration order. List loading iterates this so a
// missing key is detected as a load error rather than an empty list.
var Kinds = []Kind{KindIP, KindRDNS, KindASN, KindUserAgent, KindURI}

// Name returns the canonical configuration key for the kind.
func (k Kind) Name() string {
	switch k {
	case KindIP:
		return "IP"
	case KindRDNS:
		return "RDNS"
	case KindASN:
		return "ASN"
	case KindUserAgent:
		return "USER_AGENT"
	case KindURI:
		return "URI"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Tag returns the short identifier used inside cache keys.
func (k Kind) Tag() string {
	switch k {
	case KindIP:
		return "ip"
	case KindRDNS:
		return "rdns"
	case KindASN:
		return "asn"
	case KindUserAgent:
		return "ua"
	case KindURI:
		return "uri"
	default:
		return "unknown"
	}
}

// ParseKind maps a canonical configuration key back to its Kind. The request
// context alias UA is accepted for USER_AGENT.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "IP":
		return KindIP, nil
	case "RDNS":
		return KindRDNS, nil
	case "ASN":
		return KindASN, nil
	case "USER_AGENT", "UA":
		return KindUserAgent, nil
	case "URI":
		return KindURI, nil
	default:
		return 0, fmt.Errorf("whitelist: unknown kind %q", name)
	}
}
