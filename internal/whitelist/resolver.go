package whitelist

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"time"

	geoip2 "github.com/oschwald/geoip2-golang"
	"golang.org/x/sync/singleflight"
)

// Resolver performs the network-bound lookups the IP matcher depends on.
// Failures are reported as errors so the engine can treat the tier as
// inconclusive instead of caching a negative.
type Resolver interface {
	// LookupAddr returns the reverse-DNS names registered for the address.
	LookupAddr(ctx context.Context, addr netip.Addr) ([]string, error)
	// LookupASN returns the autonomous-system number owning the address, in
	// decimal string form.
	LookupASN(ctx context.Context, addr netip.Addr) (string, error)
}

// ErrNoASNDatabase is returned when ASN resolution is requested but no
// GeoLite2-ASN database was configured.
var ErrNoASNDatabase = errors.New("whitelist: no ASN database configured")

// NetResolverConfig tunes the production resolver.
type NetResolverConfig struct {
	// ASNDatabase is the path to a MaxMind GeoLite2-ASN mmdb file. Empty
	// means ASN lookups always fail (inconclusive tier).
	ASNDatabase string
	// RDNSTimeout bounds each reverse lookup. Zero selects a 2s default.
	RDNSTimeout time.Duration
}

type netResolver struct {
	resolver    *net.Resolver
	asnDB       *geoip2.Reader
	rdnsTimeout time.Duration

	// Concurrent requests for the same address collapse into one PTR query.
	group singleflight.Group
}

// NewNetResolver builds the production resolver backed by the system DNS
// resolver and an optional GeoLite2-ASN database.
func NewNetResolver(cfg NetResolverConfig) (Resolver, error) {
	r := &netResolver{
		resolver:    net.DefaultResolver,
		rdnsTimeout: cfg.RDNSTimeout,
	}
	if r.rdnsTimeout <= 0 {
		r.rdnsTimeout = 2 * time.Second
	}
	if cfg.ASNDatabase != "" {
		db, err := geoip2.Open(cfg.ASNDatabase)
		if err != nil {
			return nil, fmt.Errorf("whitelist: open ASN database: %w", err)
		}
		r.asnDB = db
	}
	return r, nil
}

func (r *netResolver) LookupAddr(ctx context.Context, addr netip.Addr) ([]string, error) {
	if !addr.IsValid() {
		return nil, errors.New("whitelist: invalid address for reverse lookup")
	}
	ip := addr.String()
	result, err, _ := r.group.Do(ip, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(ctx, r.rdnsTimeout)
		defer cancel()
		return r.resolver.LookupAddr(lookupCtx, ip)
	})
	if err != nil {
		return nil, fmt.Errorf("whitelist: reverse lookup %s: %w", ip, err)
	}
	names, _ := result.([]string)
	return names, nil
}

func (r *netResolver) LookupASN(_ context.Context, addr netip.Addr) (string, error) {
	if r.asnDB == nil {
		return "", ErrNoASNDatabase
	}
	record, err := r.asnDB.ASN(net.IP(addr.AsSlice()))
	if err != nil {
		return "", fmt.Errorf("whitelist: ASN lookup %s: %w", addr, err)
	}
	if record.AutonomousSystemNumber == 0 {
		return "", fmt.Errorf("whitelist: no ASN known for %s", addr)
	}
	return strconv.FormatUint(uint64(record.AutonomousSystemNumber), 10), nil
}

// Close releases the ASN database handle if one was opened.
func (r *netResolver) Close() error {
	if r.asnDB != nil {
		return r.asnDB.Close()
	}
	return nil
}
