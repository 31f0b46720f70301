// Package whitelist implements the per-request whitelist decision engine.
// Given a client address, optional User-Agent and URI, and a tenant scope, it
// decides whether the request bypasses all further security filtering. The
// expensive checks (reverse-DNS, ASN lookup) sit behind a TTL-bounded cache
// that memoizes only definitive outcomes; errors are never cached so a
// transient failure cannot stick as a negative.
package whitelist

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Superoldman96/bunkerweb/internal/metrics"
	"github.com/Superoldman96/bunkerweb/internal/whitelist/cache"
)

const (
	// cacheKeyPrefix namespaces every engine entry in the shared backend.
	cacheKeyPrefix = "plugin_whitelist_"
	// cachedOK marks an evaluated, definitively-not-whitelisted identifier.
	// Any other cached value is the reason the identifier is whitelisted.
	cachedOK = "ok"

	// DefaultTTL applies to every cache entry.
	DefaultTTL = 86400 * time.Second

	// ReasonNotActivated is returned when the feature is disabled for the scope.
	ReasonNotActivated = "not activated"
	// ReasonNotWhitelisted is returned when no kind produced a match.
	ReasonNotWhitelisted = "not whitelisted"
	// ReasonListsUnavailable is returned when no list generation ever loaded.
	ReasonListsUnavailable = "lists unavailable"
)

// Options carries the per-scope evaluation knobs.
type Options struct {
	// Enabled gates the whole feature. Disabled scopes short-circuit before
	// any cache or list access.
	Enabled bool
	// RDNSGlobalOnly restricts reverse-DNS checks to globally routable
	// addresses.
	RDNSGlobalOnly bool
	// CacheTTL overrides DefaultTTL when positive.
	CacheTTL time.Duration
}

// Engine renders whitelist decisions. Lists swap atomically on reloads; the
// cache store and resolver are injected once at startup and the engine stays
// agnostic to what backs them.
type Engine struct {
	lists    atomic.Pointer[Lists]
	store    cache.Store
	resolver Resolver
	opts     Options
	logger   *slog.Logger
	metrics  *metrics.Recorder
}

// New assembles an engine. A nil lists value is legal and means the feature
// is unavailable (fail-closed) until Swap installs a loaded generation.
func New(lists *Lists, store cache.Store, resolver Resolver, opts Options, logger *slog.Logger, rec *metrics.Recorder) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultTTL
	}
	e := &Engine{
		store:    store,
		resolver: resolver,
		opts:     opts,
		logger:   logger.With(slog.String("agent", "whitelist_engine")),
		metrics:  rec,
	}
	e.lists.Store(lists)
	return e
}

// Swap installs a freshly loaded list generation. Concurrent decisions keep
// the generation they started with.
func (e *Engine) Swap(lists *Lists) {
	e.lists.Store(lists)
}

// Ready reports whether a list generation is installed.
func (e *Engine) Ready() bool {
	return e.lists.Load() != nil
}

type matchStatus int

const (
	matchMiss matchStatus = iota
	matchHit
	matchError
)

// matchResult is the tri-state outcome of one kind's matcher: hit (reason set),
// miss (cacheable as "ok"), or error (log only, never cached).
type matchResult struct {
	status matchStatus
	reason string
	err    error
}

// Decide evaluates the request against the configured lists, consulting the
// cache first and memoizing definitive outcomes. The first match across the
// fixed IP, UA, URI order wins; the surrounding request is never rejected
// because of an engine error, it only fails to gain whitelist status.
func (e *Engine) Decide(ctx context.Context, rc RequestContext) (bool, string, error) {
	start := time.Now()

	if !e.opts.Enabled {
		return false, ReasonNotActivated, nil
	}

	lists := e.lists.Load()
	if lists == nil {
		e.logger.Warn("whitelist lists unavailable, failing closed", slog.String("scope", rc.Scope))
		return e.finish(rc, start, false, false), ReasonListsUnavailable, nil
	}

	kinds := rc.checkSet()
	alreadyCached := make(map[Kind]bool, len(kinds))

	for _, kind := range kinds {
		key := e.cacheKey(rc, kind)
		value, found, err := e.cacheGet(ctx, key)
		if err != nil {
			e.logger.Warn("cache probe failed, treating as miss",
				slog.String("key", key), slog.Any("error", err))
			continue
		}
		if !found {
			continue
		}
		alreadyCached[kind] = true
		if value != cachedOK {
			return e.finish(rc, start, true, true), value, nil
		}
	}

	for _, kind := range kinds {
		if alreadyCached[kind] {
			continue
		}
		result := e.match(ctx, lists, rc, kind)
		switch result.status {
		case matchError:
			e.logger.Warn("matcher inconclusive",
				slog.String("kind", kind.Name()),
				slog.String("scope", rc.Scope),
				slog.Any("error", result.err))
		case matchHit:
			e.cacheSet(ctx, e.cacheKey(rc, kind), result.reason)
			return e.finish(rc, start, true, false), result.reason, nil
		case matchMiss:
			e.cacheSet(ctx, e.cacheKey(rc, kind), cachedOK)
		}
	}

	return e.finish(rc, start, false, false), ReasonNotWhitelisted, nil
}

func (e *Engine) finish(rc RequestContext, start time.Time, whitelisted, fromCache bool) bool {
	outcome := "denied"
	if whitelisted {
		outcome = "whitelisted"
	}
	e.metrics.ObserveDecision(rc.Scope, outcome, fromCache, time.Since(start))
	return whitelisted
}

func (e *Engine) cacheKey(rc RequestContext, kind Kind) string {
	return cacheKeyPrefix + rc.Scope + kind.Tag() + rc.identifier(kind)
}

func (e *Engine) cacheGet(ctx context.Context, key string) (string, bool, error) {
	opStart := time.Now()
	value, found, err := e.store.Get(ctx, key)
	outcome := metrics.CacheMiss
	switch {
	case err != nil:
		outcome = metrics.CacheError
	case found:
		outcome = metrics.CacheHit
	}
	e.metrics.ObserveCache(metrics.CacheOperationGet, outcome, time.Since(opStart))
	return value, found, err
}

// cacheSet memoizes a definitive outcome. A backend fault only costs the
// memoization; the result was already computed and is returned regardless.
func (e *Engine) cacheSet(ctx context.Context, key, value string) {
	opStart := time.Now()
	err := e.store.Set(ctx, key, value, e.opts.CacheTTL)
	outcome := metrics.CacheStored
	if err != nil {
		outcome = metrics.CacheError
		e.logger.Warn("cache write failed, result not memoized",
			slog.String("key", key), slog.Any("error", err))
	}
	e.metrics.ObserveCache(metrics.CacheOperationSet, outcome, time.Since(opStart))
}

// match dispatches to the kind-specific matcher. RDNS and ASN are sub-tiers of
// the IP path and are never dispatched by key.
func (e *Engine) match(ctx context.Context, lists *Lists, rc RequestContext, kind Kind) matchResult {
	switch kind {
	case KindIP:
		return e.matchIP(ctx, lists, rc)
	case KindUserAgent:
		return matchPatterns(lists.UserAgents, rc.UserAgent, "UA ")
	case KindURI:
		return matchPatterns(lists.URIs, rc.URI, "URI ")
	default:
		// KindRDNS and KindASN only ever arrive here through a programming
		// error; they are evaluated inside matchIP.
		return matchResult{status: matchError, err: errNotDirectlyMatchable(kind)}
	}
}

// matchIP runs the three tiers in order: network membership, reverse-DNS
// suffix, ASN equality. A resolver failure leaves the tier inconclusive; the
// remaining tiers still run (a later tier can still whitelist), but a miss
// after any inconclusive tier is an error, never a cacheable negative.
func (e *Engine) matchIP(ctx context.Context, lists *Lists, rc RequestContext) matchResult {
	for _, prefix := range lists.Networks {
		if prefix.Contains(rc.Addr) {
			return matchResult{status: matchHit, reason: "ip"}
		}
	}

	var tierErr error

	if len(lists.RDNSSuffix) > 0 && (!e.opts.RDNSGlobalOnly || rc.Global) {
		names, err := e.resolver.LookupAddr(ctx, rc.Addr)
		if err != nil {
			e.metrics.ObserveResolver("rdns", metrics.ResolverError)
			tierErr = err
		} else {
			e.metrics.ObserveResolver("rdns", metrics.ResolverOK)
			for _, name := range names {
				name = strings.TrimSuffix(name, ".")
				for _, suffix := range lists.RDNSSuffix {
					if strings.HasSuffix(name, suffix) {
						return matchResult{status: matchHit, reason: "rDNS " + suffix}
					}
				}
			}
		}
	}

	if len(lists.ASNs) > 0 && rc.Global {
		asn, err := e.resolver.LookupASN(ctx, rc.Addr)
		if err != nil {
			e.metrics.ObserveResolver("asn", metrics.ResolverError)
			return matchResult{status: matchError, err: err}
		}
		e.metrics.ObserveResolver("asn", metrics.ResolverOK)
		for _, want := range lists.ASNs {
			if asn == want {
				return matchResult{status: matchHit, reason: "ASN " + want}
			}
		}
	}

	if tierErr != nil {
		return matchResult{status: matchError, err: tierErr}
	}
	return matchResult{status: matchMiss}
}

func matchPatterns(patterns []compiledPattern, value, reasonPrefix string) matchResult {
	for _, pattern := range patterns {
		if pattern.Regex.MatchString(value) {
			return matchResult{status: matchHit, reason: reasonPrefix + pattern.Source}
		}
	}
	return matchResult{status: matchMiss}
}

type errNotDirectlyMatchable Kind

func (e errNotDirectlyMatchable) Error() string {
	return "whitelist: kind " + Kind(e).Name() + " is only checked from the IP path"
}
