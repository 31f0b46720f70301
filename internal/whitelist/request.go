package whitelist

import (
	"net/netip"
)

// RequestContext is the immutable per-request snapshot the engine evaluates.
// It is built once by the HTTP layer from upstream request metadata; matchers
// never read ambient state beyond it.
type RequestContext struct {
	// Addr is the client address the decision applies to.
	Addr netip.Addr
	// UserAgent is empty when the request carried no User-Agent header, which
	// removes the UA kind from the check set.
	UserAgent string
	// URI is empty when no request URI was forwarded, which removes the URI
	// kind from the check set.
	URI string
	// Scope is the server identity used to namespace cache keys so tenants
	// never observe each other's cached decisions.
	Scope string
	// Global reports whether Addr is globally routable. Reverse-DNS checks
	// can be restricted to global addresses, and ASN lookups are only ever
	// attempted for them.
	Global bool
}

// NewRequestContext derives the routability flag from the address itself.
func NewRequestContext(addr netip.Addr, userAgent, uri, scope string) RequestContext {
	return RequestContext{
		Addr:      addr,
		UserAgent: userAgent,
		URI:       uri,
		Scope:     scope,
		Global:    addr.IsValid() && addr.IsGlobalUnicast() && !addr.IsPrivate(),
	}
}

// checkSet returns the kinds applicable to this request in the fixed
// evaluation order: IP always, UA and URI only when present. RDNS and ASN are
// sub-checks of the IP path and never appear here.
func (rc RequestContext) checkSet() []Kind {
	kinds := []Kind{KindIP}
	if rc.UserAgent != "" {
		kinds = append(kinds, KindUserAgent)
	}
	if rc.URI != "" {
		kinds = append(kinds, KindURI)
	}
	return kinds
}

// identifier returns the cache-key identifier for the kind within this request.
func (rc RequestContext) identifier(kind Kind) string {
	switch kind {
	case KindUserAgent:
		return rc.UserAgent
	case KindURI:
		return rc.URI
	default:
		return rc.Addr.String()
	}
}
