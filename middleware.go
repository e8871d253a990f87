package throttling

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

var (
	_ http.Handler = &httpThrottleHandler{}
	_ Extractor    = &httpHeaderExtractor{}
	_ Extractor    = &remoteIPExtractor{}
)

const (
	throttlingState     = "Throttling-State"
	throttlingTierValue = "Throttling-Tier-Value"
	throttlingPeriod    = "Throttling-Period"
)

// Extractor extracts the check value from an HTTP request.
type Extractor interface {
	Extract(r *http.Request) (string, error)
}

type httpHeaderExtractor struct {
	headers []string
}

// Extract extracts values from HTTP headers to build the check value.
func (h *httpHeaderExtractor) Extract(r *http.Request) (string, error) {
	values := make([]string, 0, len(h.headers))

	for _, key := range h.headers {
		// if we can't find a value for a header we should return an error
		if value := strings.TrimSpace(r.Header.Get(key)); value != "" {
			values = append(values, value)
		} else {
			return "", fmt.Errorf("header %v must have a value set", key)
		}
	}

	return strings.Join(values, "-"), nil
}

// NewHttpHeaderExtractor creates an Extractor joining the given headers.
func NewHttpHeaderExtractor(headers ...string) Extractor {
	return &httpHeaderExtractor{headers: headers}
}

type remoteIPExtractor struct {
	trustForwarded bool
}

// Extract returns the client IP, taken from the first X-Forwarded-For entry
// when forwarded headers are trusted.
func (e *remoteIPExtractor) Extract(r *http.Request) (string, error) {
	if e.trustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip, nil
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return "", fmt.Errorf("request has no remote address")
	}
	return host, nil
}

// NewRemoteIPExtractor creates an Extractor for the client IP address.
func NewRemoteIPExtractor(trustForwarded bool) Extractor {
	return &remoteIPExtractor{trustForwarded: trustForwarded}
}

// HandlerConfig holds configuration for the HTTP throttling handler.
//
// The throttle for Action is looked up on every request, so limits
// replaced on the Throttler apply to requests served afterwards.
type HandlerConfig struct {
	Throttler *Throttler
	Action    string
	CheckType CheckType
	Extractor Extractor
	Logger    *slog.Logger
}

type httpThrottleHandler struct {
	handler http.Handler
	config  *HandlerConfig
}

// NewHTTPThrottleHandler wraps an existing http.Handler and checks the
// request against the throttle before forwarding it.
func NewHTTPThrottleHandler(originalHandler http.Handler, config *HandlerConfig) http.Handler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.CheckType == "" {
		config.CheckType = IP
	}
	return &httpThrottleHandler{
		handler: originalHandler,
		config:  config,
	}
}

// ServeHTTP checks the request and forwards it if allowed.
func (h *httpThrottleHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	value, err := h.config.Extractor.Extract(r)
	if err != nil {
		h.writeResponse(w, http.StatusBadRequest, "failed to extract throttling value from request: %v", err)
		return
	}

	throttle, err := h.config.Throttler.For(h.config.Action)
	if err != nil {
		h.config.Logger.Error("no throttling limits for action", "action", h.config.Action, "error", err)
		h.writeResponse(w, http.StatusInternalServerError, "failed to run throttling for request: %v", err)
		return
	}

	result, err := throttle.Check(r.Context(), h.config.CheckType, value)
	if err != nil {
		h.config.Logger.Error("throttling check failed", "action", h.config.Action, "error", err)
		h.writeResponse(w, http.StatusInternalServerError, "failed to run throttling for request: %v", err)
		return
	}

	w.Header().Set(throttlingState, result.State.String())
	if result.Period != "" {
		w.Header().Set(throttlingPeriod, result.Period)
	}
	if result.Tiered {
		w.Header().Set(throttlingTierValue, fmt.Sprint(result.Value))
	}

	if !result.Allowed() {
		h.writeResponse(w, http.StatusTooManyRequests, "you have sent too many requests to this service, slow down please")
		return
	}

	h.handler.ServeHTTP(w, r)
}

func (h *httpThrottleHandler) writeResponse(w http.ResponseWriter, status int, msg string, args ...interface{}) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(fmt.Sprintf(msg, args...))); err != nil {
		h.config.Logger.Warn("failed to write body to HTTP response", "error", err)
	}
}
