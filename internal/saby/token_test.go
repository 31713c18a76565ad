package saby

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crm-integrations/saby-connector/internal/config"
	"github.com/crm-integrations/saby-connector/internal/platform/logger"

	"github.com/go-playground/assert/v2"
)

func init() {
	logger.InitLogger()
}

func testConfig(authUrl, apiUrl string) *config.Config {
	return &config.Config{
		SabyAuthUrl:           authUrl,
		SabyApiUrl:            apiUrl,
		SabyAppClientId:       "client-id",
		SabyAppSecret:         "app-secret",
		SabySecretKey:         "secret-key",
		SabyRequestTimeout:    5 * time.Second,
		SabyTokenTtl:          24 * time.Hour,
		SabyReadRetryAttempts: 1,
		ThemeCacheSize:        16,
		ThemeCacheTtl:         time.Minute,
	}
}

func TestEnsureValidTokenCachesToken(t *testing.T) {
	var acquisitions int32

	authServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&acquisitions, 1)

		var credentials map[string]string
		if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
			t.Error("Unable to decode auth request: ", err)
		}
		assert.Equal(t, credentials["app_client_id"], "client-id")
		assert.Equal(t, credentials["app_secret"], "app-secret")
		assert.Equal(t, credentials["secret_key"], "secret-key")

		writeJSON(w, map[string]string{"token": "tok-1", "sid": "sid-1"})
	}))
	defer authServer.Close()

	tm := NewTokenManager(testConfig(authServer.URL, ""))

	first, err := tm.EnsureValidToken(context.Background())
	if err != nil {
		t.Fatal("Unexpected error: ", err)
	}
	assert.Equal(t, first.AccessToken, "tok-1")
	assert.Equal(t, first.SID, "sid-1")
	assert.Equal(t, first.TokenType, "Bearer")

	second, err := tm.EnsureValidToken(context.Background())
	if err != nil {
		t.Fatal("Unexpected error: ", err)
	}

	if first != second {
		t.Fatal("Expected the cached token to be reused")
	}

	assert.Equal(t, atomic.LoadInt32(&acquisitions), int32(1))
}

func TestEnsureValidTokenRefreshesExpiredToken(t *testing.T) {
	var acquisitions int32

	authServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&acquisitions, 1)
		writeJSON(w, map[string]string{"token": "tok-1"})
	}))
	defer authServer.Close()

	cfg := testConfig(authServer.URL, "")
	cfg.SabyTokenTtl = -time.Minute // issued already expired
	tm := NewTokenManager(cfg)

	if _, err := tm.EnsureValidToken(context.Background()); err != nil {
		t.Fatal("Unexpected error: ", err)
	}
	if _, err := tm.EnsureValidToken(context.Background()); err != nil {
		t.Fatal("Unexpected error: ", err)
	}

	assert.Equal(t, atomic.LoadInt32(&acquisitions), int32(2))
}

func TestEnsureValidTokenSingleFlight(t *testing.T) {
	var acquisitions int32

	authServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&acquisitions, 1)
		time.Sleep(50 * time.Millisecond) // hold the refresh open so callers pile up
		writeJSON(w, map[string]string{"token": "tok-1"})
	}))
	defer authServer.Close()

	tm := NewTokenManager(testConfig(authServer.URL, ""))

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tm.EnsureValidToken(context.Background()); err != nil {
				t.Error("Unexpected error: ", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, atomic.LoadInt32(&acquisitions), int32(1))
}

func TestAcquireFailures(t *testing.T) {
	tests := []struct {
		name           string
		responseStatus int
		responseBody   string
		expectedStatus int
	}{
		{
			name:           "non-200 status",
			responseStatus: http.StatusServiceUnavailable,
			responseBody:   "",
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name:           "missing token field",
			responseStatus: http.StatusOK,
			responseBody:   `{"sid": "sid-1"}`,
		},
		{
			name:           "malformed body",
			responseStatus: http.StatusOK,
			responseBody:   "not json",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			authServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.responseStatus)
				w.Write([]byte(tc.responseBody))
			}))
			defer authServer.Close()

			tm := NewTokenManager(testConfig(authServer.URL, ""))

			_, err := tm.EnsureValidToken(context.Background())

			var authErr *AuthError
			if !errors.As(err, &authErr) {
				t.Fatalf("Expected an AuthError; got %v", err)
			}
			assert.Equal(t, authErr.StatusCode, tc.expectedStatus)
		})
	}
}

func TestAuthHeaders(t *testing.T) {
	tm := NewTokenManager(testConfig("http://auth.invalid", ""))

	_, err := tm.AuthHeaders(nil)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected an AuthError without a cached token; got %v", err)
	}

	headers, err := tm.AuthHeaders(&Token{AccessToken: "tok-1"})
	if err != nil {
		t.Fatal("Unexpected error: ", err)
	}
	assert.Equal(t, headers["X-SBISAccessToken"], "tok-1")
	assert.Equal(t, headers["Content-Type"], "application/json-rpc; charset=utf-8")
	if headers["User-Agent"] == "" {
		t.Fatal("Expected a user agent header")
	}
}

func TestInvalidate(t *testing.T) {
	var logoutBody map[string]string

	authServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)

		if body["event"] == "exit" {
			logoutBody = body
			w.WriteHeader(http.StatusOK)
			return
		}

		writeJSON(w, map[string]string{"token": "tok-1"})
	}))
	defer authServer.Close()

	tm := NewTokenManager(testConfig(authServer.URL, ""))

	if _, err := tm.EnsureValidToken(context.Background()); err != nil {
		t.Fatal("Unexpected error: ", err)
	}

	assert.Equal(t, tm.Invalidate(context.Background()), true)
	assert.Equal(t, logoutBody["token"], "tok-1")

	// The cache is gone, so header construction must fail now.
	_, err := tm.AuthHeaders(nil)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected an AuthError after invalidation; got %v", err)
	}

	// Invalidating without a token is a no-op success.
	assert.Equal(t, tm.Invalidate(context.Background()), true)
}

func TestInvalidateClearsCacheOnServerFailure(t *testing.T) {
	calls := 0

	authServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			writeJSON(w, map[string]string{"token": "tok-1"})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer authServer.Close()

	tm := NewTokenManager(testConfig(authServer.URL, ""))

	if _, err := tm.EnsureValidToken(context.Background()); err != nil {
		t.Fatal("Unexpected error: ", err)
	}

	// The logout call fails server-side, but the local cache is cleared anyway.
	assert.Equal(t, tm.Invalidate(context.Background()), false)

	_, err := tm.AuthHeaders(nil)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected an AuthError after invalidation; got %v", err)
	}
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}
