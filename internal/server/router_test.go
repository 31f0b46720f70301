package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/gavv/httpexpect/v2"
	"github.com/stretchr/testify/require"

	"github.com/Superoldman96/bunkerweb/internal/whitelist"
	"github.com/Superoldman96/bunkerweb/internal/whitelist/cache"
)

type stubResolver struct {
	names map[string][]string
	asns  map[string]string
}

func (s *stubResolver) LookupAddr(_ context.Context, addr netip.Addr) ([]string, error) {
	return s.names[addr.String()], nil
}

func (s *stubResolver) LookupASN(_ context.Context, addr netip.Addr) (string, error) {
	if asn, ok := s.asns[addr.String()]; ok {
		return asn, nil
	}
	return "", whitelist.ErrNoASNDatabase
}

func newTestRouter(t *testing.T, raw map[string][]string) http.Handler {
	t.Helper()
	var lists *whitelist.Lists
	if raw != nil {
		var err error
		lists, err = whitelist.Load(raw)
		require.NoError(t, err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := whitelist.New(lists, cache.NewMemory(), &stubResolver{}, whitelist.Options{Enabled: true, RDNSGlobalOnly: true}, logger, nil)
	check := NewCheckHandler(engine, "default", logger)
	health := NewHealthHandler(engine, "memory")
	return NewRouter(check, health, http.NotFoundHandler())
}

func testRaw() map[string][]string {
	return map[string][]string{
		"IP":         {"10.0.0.0/8"},
		"RDNS":       {},
		"ASN":        {},
		"USER_AGENT": {"(?i)goodbot"},
		"URI":        {"^/public"},
	}
}

func newExpect(t *testing.T, handler http.Handler) (*httpexpect.Expect, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	expect := httpexpect.WithConfig(httpexpect.Config{
		BaseURL:  srv.URL,
		Reporter: httpexpect.NewRequireReporter(t),
		Client:   srv.Client(),
	})
	return expect, srv.Close
}

func TestCheckWhitelistsForwardedAddress(t *testing.T) {
	expect, stop := newExpect(t, newTestRouter(t, testRaw()))
	defer stop()

	result := expect.GET("/check").
		WithHeader(HeaderForwardedFor, "10.1.2.3").
		Expect()

	result.Status(http.StatusOK)
	result.Header(HeaderWhitelisted).IsEqual("yes")
	result.JSON().Object().HasValue("whitelisted", true).HasValue("reason", "ip")
}

func TestCheckDeniesUnlistedAddress(t *testing.T) {
	expect, stop := newExpect(t, newTestRouter(t, testRaw()))
	defer stop()

	result := expect.GET("/check").
		WithHeader(HeaderForwardedFor, "203.0.113.5").
		Expect()

	result.Status(http.StatusOK)
	result.Header(HeaderWhitelisted).IsEqual("no")
	result.JSON().Object().HasValue("whitelisted", false)
}

func TestCheckMatchesForwardedURI(t *testing.T) {
	expect, stop := newExpect(t, newTestRouter(t, testRaw()))
	defer stop()

	result := expect.GET("/check").
		WithHeader(HeaderForwardedFor, "203.0.113.5").
		WithHeader(HeaderForwardedURI, "/public/assets/app.js").
		Expect()

	result.Header(HeaderWhitelisted).IsEqual("yes")
	result.JSON().Object().HasValue("reason", "URI ^/public")
}

func TestCheckMatchesForwardedUserAgent(t *testing.T) {
	expect, stop := newExpect(t, newTestRouter(t, testRaw()))
	defer stop()

	result := expect.GET("/check").
		WithHeader(HeaderForwardedFor, "203.0.113.5").
		WithHeader(HeaderForwardedUA, "GoodBot/2.1").
		Expect()

	result.Header(HeaderWhitelisted).IsEqual("yes")
	result.JSON().Object().HasValue("reason", "UA (?i)goodbot")
}

func TestCheckUsesFirstForwardedHop(t *testing.T) {
	expect, stop := newExpect(t, newTestRouter(t, testRaw()))
	defer stop()

	result := expect.GET("/check").
		WithHeader(HeaderForwardedFor, "10.9.9.9, 203.0.113.5").
		Expect()

	result.Header(HeaderWhitelisted).IsEqual("yes")
}

func TestCheckScopeHeaderNamespacesDecision(t *testing.T) {
	expect, stop := newExpect(t, newTestRouter(t, testRaw()))
	defer stop()

	result := expect.GET("/check").
		WithHeader(HeaderServerName, "app1.example.com").
		WithHeader(HeaderForwardedFor, "10.1.2.3").
		Expect()

	result.Status(http.StatusOK)
	result.Header(HeaderWhitelisted).IsEqual("yes")
}

func TestCheckMalformedForwardedForFallsBackToPeer(t *testing.T) {
	expect, stop := newExpect(t, newTestRouter(t, testRaw()))
	defer stop()

	result := expect.GET("/check").
		WithHeader(HeaderForwardedFor, "not-an-address").
		Expect()

	result.Status(http.StatusOK)
	result.Header(HeaderWhitelisted).IsEqual("no")
}

func TestCheckUnparseablePeerNeverWhitelists(t *testing.T) {
	raw := testRaw()
	router := newTestRouter(t, raw)

	req := httptest.NewRequest(http.MethodGet, "/check", nil)
	req.RemoteAddr = "bogus"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no", rec.Header().Get(HeaderWhitelisted))
	require.Contains(t, rec.Body.String(), "invalid client address")
}

func TestHealthReportsReady(t *testing.T) {
	expect, stop := newExpect(t, newTestRouter(t, testRaw()))
	defer stop()

	result := expect.GET("/healthz").Expect()
	result.Status(http.StatusOK)
	result.JSON().Object().
		HasValue("status", "ok").
		HasValue("listsLoaded", true).
		HasValue("cacheBackend", "memory")
}

func TestHealthDegradedBeforeListsLoad(t *testing.T) {
	expect, stop := newExpect(t, newTestRouter(t, nil))
	defer stop()

	result := expect.GET("/healthz").Expect()
	result.Status(http.StatusServiceUnavailable)
	result.JSON().Object().HasValue("status", "degraded")
}
