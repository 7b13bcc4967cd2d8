package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authpipe/internal/sessiond/domain/entities"
	"authpipe/internal/sessiond/ports/ui"
	"authpipe/pkg/logger"
)

func TestRequestAttachesBearerAndRequestID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/items", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		assert.Equal(t, "req-1", r.Header.Get(logger.RequestIDHeader))
		assert.Equal(t, "page=2", r.URL.RawQuery)
		w.WriteHeader(http.StatusOK)
	})
	h := newHarness(t, mux)
	h.store.Set("abc", time.Hour)

	ctx := logger.NewRequestIDContext(context.Background(), "req-1")
	resp, err := h.transport.Request(ctx, http.MethodGet, "/api/items?page=2", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestWithoutTokenOmitsAuthorization(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/public", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get(logger.RequestIDHeader))
		w.WriteHeader(http.StatusOK)
	})
	h := newHarness(t, mux)

	resp, err := h.transport.Request(context.Background(), http.MethodGet, "/api/public", nil)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestRequestRefreshesAndRetriesOnce(t *testing.T) {
	var refreshes, attempts int32
	mux := http.NewServeMux()
	mux.HandleFunc(refreshPath, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshes, 1)
		grantHandler("y", 300)(w, r)
	})
	mux.HandleFunc("/protected", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		if bearer(r) != "y" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"data": 1})
	})
	h := newHarness(t, mux)
	h.store.Set("old", time.Hour)

	resp, err := h.transport.Request(context.Background(), http.MethodGet, "/protected", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]int{"data": 1}, body)
	assert.Equal(t, "y", h.store.Get())
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshes))
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestRequestRetriesAtMostOnce(t *testing.T) {
	var refreshes, attempts int32
	mux := http.NewServeMux()
	mux.HandleFunc(refreshPath, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshes, 1)
		grantHandler("y", 300)(w, r)
	})
	mux.HandleFunc("/protected", func(w http.ResponseWriter, _ *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "still unauthorized", "attempt": n})
	})
	h := newHarness(t, mux)

	resp, err := h.transport.Request(context.Background(), http.MethodGet, "/protected", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.EqualValues(t, 2, body["attempt"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshes))
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
	assert.Empty(t, h.scheduler.delays())
}

func TestRequestRefreshFailureRedirectsToLogin(t *testing.T) {
	var attempts int32
	mux := http.NewServeMux()
	mux.HandleFunc(refreshPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/protected", func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&attempts, 1)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "expired"})
	})
	h := newHarness(t, mux)
	h.store.Set("old", time.Hour)

	resp, err := h.transport.Request(context.Background(), http.MethodGet, "/protected", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(raw), "expired")
	assert.Empty(t, h.store.Get())
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
	assert.Empty(t, h.navigator.all(), "navigation happens after the caller sees the response")

	h.scheduler.runAll()
	assert.Equal(t, []string{loginPage}, h.navigator.all())
}

func TestRequestDoesNotRefreshForRefreshEndpoint(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc(refreshPath, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	h := newHarness(t, mux)

	resp, err := h.transport.Request(context.Background(), http.MethodPost, refreshPath, nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, h.scheduler.delays())
}

func TestRequestBannedAccountShortCircuits(t *testing.T) {
	var refreshes int32
	mux := http.NewServeMux()
	mux.HandleFunc(refreshPath, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshes, 1)
		grantHandler("y", 300)(w, r)
	})
	mux.HandleFunc("/api/orders", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error":   "ACCOUNT_BANNED",
			"message": "Your account is banned: spam",
		})
	})
	h := newHarness(t, mux)
	h.store.Set("abc", time.Hour)

	resp, err := h.transport.Request(context.Background(), http.MethodGet, "/api/orders", nil)
	assert.Nil(t, resp)

	var apiErr *entities.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.ErrorIs(t, err, entities.ErrAccountBanned)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "Your account is banned: spam", apiErr.Message)

	assert.Empty(t, h.store.Get())
	assert.Equal(t, int32(0), atomic.LoadInt32(&refreshes))
	assert.Equal(t, []notice{{level: ui.LevelError, message: "Your account is banned: spam"}}, h.notifier.all())
	assert.Equal(t, []time.Duration{banDelay}, h.scheduler.delays())

	h.scheduler.runAll()
	assert.Equal(t, []string{loginPage}, h.navigator.all())
}

func TestRequestPlainForbiddenIsReturned(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/admin", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Access denied"})
	})
	h := newHarness(t, mux)
	h.store.Set("abc", time.Hour)

	resp, err := h.transport.Request(context.Background(), http.MethodGet, "/api/admin", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, string(raw), "Access denied")
	assert.Equal(t, "abc", h.store.Get())
	assert.Empty(t, h.notifier.all())
}

func TestRequestRateLimited(t *testing.T) {
	var attempts int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/search", func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.Header().Set("Retry-After", "30")
		w.Header().Set("X-RateLimit-Limit", "100")
		w.Header().Set("X-RateLimit-Remaining", "0")
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":      "Too many requests",
			"code":       "RATE_LIMIT_EXCEEDED",
			"retryAfter": 42,
		})
	})
	h := newHarness(t, mux)

	resp, err := h.transport.Request(context.Background(), http.MethodGet, "/api/search", nil)
	assert.Nil(t, resp)

	var apiErr *entities.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.ErrorIs(t, err, entities.ErrRateLimited)
	assert.Equal(t, entities.CodeRateLimitExceeded, apiErr.Code)
	assert.Equal(t, 42*time.Second, apiErr.RetryAfter)
	assert.Equal(t, 100, apiErr.Limit)
	assert.Equal(t, 0, apiErr.Remaining)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))

	notices := h.notifier.all()
	require.Len(t, notices, 1)
	assert.Equal(t, ui.LevelWarning, notices[0].level)
}

func TestRequestSessionLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error": "SESSION_LIMIT_EXCEEDED",
		})
	})
	h := newHarness(t, mux)

	_, err := h.transport.Request(context.Background(), http.MethodPost, "/api/auth/login", map[string]string{"email": "a@b.c"})

	var apiErr *entities.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.ErrorIs(t, err, entities.ErrSessionLimit)
	assert.False(t, errors.Is(err, entities.ErrRateLimited))
	assert.Equal(t, time.Duration(0), apiErr.RetryAfter)
	assert.Equal(t, []notice{{level: ui.LevelWarning, message: "Too many active sessions. Please sign out on another device."}}, h.notifier.all())
}

func TestRequestResendsBodyOnRetry(t *testing.T) {
	var bodies []string
	var mu sync.Mutex
	mux := http.NewServeMux()
	mux.HandleFunc(refreshPath, grantHandler("y", 300))
	mux.HandleFunc("/api/notes", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(raw))
		mu.Unlock()
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if bearer(r) != "y" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})
	h := newHarness(t, mux)

	resp, err := h.transport.Request(context.Background(), http.MethodPost, "/api/notes", map[string]string{"title": "hello"})
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, []string{`{"title":"hello"}`, `{"title":"hello"}`}, bodies)
}

func TestConcurrentUnauthorizedRequestsShareOneRefresh(t *testing.T) {
	const callers = 10

	var refreshes, rejected int32
	mux := http.NewServeMux()
	mux.HandleFunc(refreshPath, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshes, 1)
		deadline := time.Now().Add(2 * time.Second)
		for atomic.LoadInt32(&rejected) < callers && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		time.Sleep(100 * time.Millisecond)
		grantHandler("fresh", 300)(w, r)
	})
	mux.HandleFunc("/protected", func(w http.ResponseWriter, r *http.Request) {
		if bearer(r) != "fresh" {
			atomic.AddInt32(&rejected, 1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	h := newHarness(t, mux)
	h.store.Set("stale", time.Hour)

	statuses := make([]int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := h.transport.Request(context.Background(), http.MethodGet, "/protected", nil)
			if !assert.NoError(t, err) {
				return
			}
			statuses[i] = resp.StatusCode
			resp.Body.Close()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshes))
	for _, status := range statuses {
		assert.Equal(t, http.StatusOK, status)
	}
}

func TestRedirectsAreDeduplicated(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(refreshPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/protected", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	h := newHarness(t, mux)

	for i := 0; i < 3; i++ {
		resp, err := h.transport.Request(context.Background(), http.MethodGet, "/protected", nil)
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Len(t, h.scheduler.delays(), 1)
	assert.True(t, h.redirector.Pending())

	h.scheduler.runAll()
	assert.False(t, h.redirector.Pending())
	assert.Equal(t, []string{loginPage}, h.navigator.all())
}

func TestRequestCancelledDuringRefreshKeepsSession(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc(refreshPath, func(w http.ResponseWriter, _ *http.Request) {
		<-release
		writeJSON(w, http.StatusOK, map[string]any{"accessToken": "fresh", "expiresIn": 300})
	})
	mux.HandleFunc("/protected", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "expired"})
	})
	h := newHarness(t, mux)
	h.store.Set("stale", time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	resp, err := h.transport.Request(ctx, http.MethodGet, "/protected", nil)
	assert.Nil(t, resp)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, "stale", h.store.Get())
	assert.Empty(t, h.scheduler.delays())
	assert.False(t, h.redirector.Pending())

	close(release)
	require.Eventually(t, func() bool { return h.store.Get() == "fresh" }, 2*time.Second, 10*time.Millisecond)

	h.scheduler.runAll()
	assert.Empty(t, h.navigator.all())
}
