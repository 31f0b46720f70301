package server

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/Superoldman96/bunkerweb/internal/whitelist"
)

// Headers consumed and produced by the forward-auth surface. The whitelisted
// signal defaults to "no" and is only ever flipped to "yes" on a definitive
// match, never reverted within a request.
const (
	HeaderServerName   = "X-Server-Name"
	HeaderForwardedFor = "X-Forwarded-For"
	HeaderForwardedURI = "X-Forwarded-Uri"
	HeaderForwardedUA  = "X-Forwarded-User-Agent"
	HeaderWhitelisted  = "X-Whitelisted"

	whitelistedYes = "yes"
	whitelistedNo  = "no"
)

// CheckHandler answers the per-request whitelist question for the surrounding
// proxy. Engine errors never turn into request rejections; they only fail to
// grant whitelist status.
type CheckHandler struct {
	engine       *whitelist.Engine
	defaultScope string
	logger       *slog.Logger
}

// NewCheckHandler wires the decision engine behind the /check route.
func NewCheckHandler(engine *whitelist.Engine, defaultScope string, logger *slog.Logger) *CheckHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckHandler{
		engine:       engine,
		defaultScope: defaultScope,
		logger:       logger.With(slog.String("agent", "check_handler")),
	}
}

type checkResponse struct {
	Whitelisted bool   `json:"whitelisted"`
	Reason      string `json:"reason"`
}

func (h *CheckHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	scope := strings.TrimSpace(r.Header.Get(HeaderServerName))
	if scope == "" {
		scope = h.defaultScope
	}

	addr, ok := clientAddr(r)
	if !ok {
		h.logger.Warn("unparseable client address", slog.String("remote_addr", r.RemoteAddr))
		writeDecision(w, false, "invalid client address")
		return
	}

	userAgent := strings.TrimSpace(r.Header.Get(HeaderForwardedUA))
	if userAgent == "" {
		userAgent = strings.TrimSpace(r.UserAgent())
	}
	uri := strings.TrimSpace(r.Header.Get(HeaderForwardedURI))

	rc := whitelist.NewRequestContext(addr, userAgent, uri, scope)
	whitelisted, reason, err := h.engine.Decide(r.Context(), rc)
	if err != nil {
		h.logger.Error("decision failed", slog.String("scope", scope), slog.Any("error", err))
	}
	writeDecision(w, whitelisted, reason)
}

func writeDecision(w http.ResponseWriter, whitelisted bool, reason string) {
	signal := whitelistedNo
	if whitelisted {
		signal = whitelistedYes
	}
	w.Header().Set(HeaderWhitelisted, signal)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(checkResponse{Whitelisted: whitelisted, Reason: reason})
}

// clientAddr prefers the first X-Forwarded-For hop and falls back to the
// socket peer.
func clientAddr(r *http.Request) (netip.Addr, bool) {
	if forwarded := strings.TrimSpace(r.Header.Get(HeaderForwardedFor)); forwarded != "" {
		first := forwarded
		if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
			first = forwarded[:idx]
		}
		if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return addr, true
		}
	}
	host := r.RemoteAddr
	if parsed, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = parsed
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr, true
}

// HealthHandler reports engine readiness and the active cache backend so
// operators can see degraded (memory-fallback) mode at a glance.
type HealthHandler struct {
	engine       *whitelist.Engine
	cacheBackend string
}

// NewHealthHandler builds the /healthz route.
func NewHealthHandler(engine *whitelist.Engine, cacheBackend string) *HealthHandler {
	return &HealthHandler{engine: engine, cacheBackend: cacheBackend}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	code := http.StatusOK
	if !h.engine.Ready() {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":       status,
		"listsLoaded":  h.engine.Ready(),
		"cacheBackend": h.cacheBackend,
	})
}

// NewRouter assembles the full HTTP surface.
func NewRouter(check *CheckHandler, health *HealthHandler, metricsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/check", check)
	mux.Handle("/healthz", health)
	mux.Handle("/metrics", metricsHandler)
	return mux
}
