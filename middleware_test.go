package throttling

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHttpHeaderExtractor(t *testing.T) {
	extractor := NewHttpHeaderExtractor("X-Client-ID", "X-Region")

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Client-ID", " abc ")
	r.Header.Set("X-Region", "eu")

	value, err := extractor.Extract(r)
	require.NoError(t, err)
	assert.Equal(t, "abc-eu", value)

	r.Header.Del("X-Region")
	_, err = extractor.Extract(r)
	assert.Error(t, err)
}

func TestRemoteIPExtractor(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	value, err := NewRemoteIPExtractor(false).Extract(r)
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", value)

	value, err = NewRemoteIPExtractor(true).Extract(r)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9", value)

	r.RemoteAddr = ""
	r.Header.Del("X-Forwarded-For")
	_, err = NewRemoteIPExtractor(true).Extract(r)
	assert.Error(t, err)
}

func TestHTTPThrottleHandler(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Hello, World!"))
	})

	tt := []struct {
		desc       string
		limits     Limits
		hits       func(string) (int64, error)
		header     string
		wantStatus int
		wantState  string
		wantTier   string
	}{
		{
			desc:       "forwards allowed requests",
			limits:     simpleLimits(),
			hits:       fixedHits(0),
			header:     "client-1",
			wantStatus: http.StatusOK,
			wantState:  "Allow",
		},
		{
			desc:       "rejects throttled requests",
			limits:     simpleLimits(),
			hits:       fixedHits(100),
			header:     "client-1",
			wantStatus: http.StatusTooManyRequests,
			wantState:  "Deny",
		},
		{
			desc:       "rejects requests without a key",
			limits:     simpleLimits(),
			hits:       fixedHits(0),
			wantStatus: http.StatusBadRequest,
		},
		{
			desc:       "fails when the store is down",
			limits:     simpleLimits(),
			hits:       func(string) (int64, error) { return 0, errors.New("down") },
			header:     "client-1",
			wantStatus: http.StatusInternalServerError,
		},
		{
			desc: "exposes the tier value",
			limits: Limits{"foo": map[string]any{
				"period":        60,
				"values":        []any{map[string]any{"limit": 10, "value": "gold"}},
				"default_value": "bronze",
			}},
			hits:       fixedHits(3),
			header:     "client-1",
			wantStatus: http.StatusOK,
			wantState:  "Allow",
			wantTier:   "gold",
		},
	}

	for _, ts := range tt {
		t.Run(ts.desc, func(t *testing.T) {
			store := newTestStore()
			store.hits = ts.hits
			th, _ := newTestThrottle(t, ts.limits, "foo", store)

			handler := NewHTTPThrottleHandler(next, &HandlerConfig{
				Throttler: th,
				Action:    "foo",
				CheckType: Custom,
				Extractor: NewHttpHeaderExtractor("X-Client-ID"),
			})

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if ts.header != "" {
				r.Header.Set("X-Client-ID", ts.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			assert.Equal(t, ts.wantStatus, w.Code)
			assert.Equal(t, ts.wantState, w.Header().Get(throttlingState))
			assert.Equal(t, ts.wantTier, w.Header().Get(throttlingTierValue))
			if ts.wantStatus == http.StatusOK {
				assert.Equal(t, "Hello, World!", w.Body.String())
			}
		})
	}
}

func TestHTTPThrottleHandler_ReloadedLimits(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Hello, World!"))
	})

	th, err := New(Options{Store: newTestStore()})
	require.NoError(t, err)

	handler := NewHTTPThrottleHandler(next, &HandlerConfig{
		Throttler: th,
		Action:    "foo",
		CheckType: Custom,
		Extractor: NewHttpHeaderExtractor("X-Client-ID"),
	})

	serve := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Client-ID", "client-1")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	// no limits for the action yet
	assert.Equal(t, http.StatusInternalServerError, serve().Code)

	th.SetLimits(Limits{"foo": map[string]any{"limit": 100, "period": 3600}})
	w := serve()
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Allow", w.Header().Get(throttlingState))

	th.SetLimits(Limits{"foo": map[string]any{"limit": 0, "period": 3600}})
	w = serve()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Deny", w.Header().Get(throttlingState))
}
