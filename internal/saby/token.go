package saby

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/crm-integrations/saby-connector/internal/config"
	"github.com/crm-integrations/saby-connector/internal/platform/logger"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	accessTokenHeader  = "X-SBISAccessToken"
	rpcContentType     = "application/json-rpc; charset=utf-8"
	defaultContentType = "application/json; charset=utf-8"
	userAgent          = "saby-connector/1.0"
)

// Token is the bearer credential the CRM hands out.  A token with a zero
// ExpiresAt never expires.
type Token struct {
	AccessToken string
	SID         string
	ExpiresAt   time.Time
	TokenType   string
}

func (t *Token) Expired() bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(t.ExpiresAt)
}

// TokenManager owns the single process-wide token.  Refreshes are collapsed
// behind a single-flight group so that concurrent requests hitting one expiry
// event trigger exactly one acquisition call.
type TokenManager struct {
	authUrl     string
	appClientId string
	appSecret   string
	secretKey   string
	tokenTtl    time.Duration
	httpClient  *http.Client

	mutex sync.Mutex
	token *Token

	group singleflight.Group
}

func NewTokenManager(cfg *config.Config) *TokenManager {
	return &TokenManager{
		authUrl:     cfg.SabyAuthUrl,
		appClientId: cfg.SabyAppClientId,
		appSecret:   cfg.SabyAppSecret,
		secretKey:   cfg.SabySecretKey,
		tokenTtl:    cfg.SabyTokenTtl,
		httpClient:  &http.Client{Timeout: cfg.SabyRequestTimeout},
	}
}

// EnsureValidToken returns the cached token when it is still valid and
// acquires a fresh one otherwise.
func (tm *TokenManager) EnsureValidToken(ctx context.Context) (*Token, error) {
	if token := tm.cachedToken(); token != nil {
		return token, nil
	}

	result, err, _ := tm.group.Do("token", func() (interface{}, error) {
		// Another caller may have finished a refresh while we waited.
		if token := tm.cachedToken(); token != nil {
			return token, nil
		}
		return tm.Acquire(ctx)
	})
	if err != nil {
		return nil, err
	}

	return result.(*Token), nil
}

func (tm *TokenManager) cachedToken() *Token {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()
	if tm.token != nil && !tm.token.Expired() {
		return tm.token
	}
	return nil
}

// Acquire posts the application credentials to the CRM's auth endpoint and
// replaces the cached token.  The CRM does not return a TTL, so expiry is set
// from the configured token ttl.
func (tm *TokenManager) Acquire(ctx context.Context) (*Token, error) {
	logger.Log.Info("Requesting access token from Saby CRM")

	requestBody, err := json.Marshal(map[string]string{
		"app_client_id": tm.appClientId,
		"app_secret":    tm.appSecret,
		"secret_key":    tm.secretKey,
	})
	if err != nil {
		return nil, &AuthError{Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.authUrl, bytes.NewReader(requestBody))
	if err != nil {
		return nil, &AuthError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", defaultContentType)
	req.Header.Set("User-Agent", userAgent)

	resp, err := tm.httpClient.Do(req)
	if err != nil {
		metrics.tokenAcquisitionFailCounter.Inc()
		logger.Log.WithFields(logrus.Fields{"error": err}).Error("Request error during authentication")
		return nil, &AuthError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.tokenAcquisitionFailCounter.Inc()
		logger.Log.WithFields(logrus.Fields{"status": resp.StatusCode}).Error("Authentication failed")
		return nil, &AuthError{Message: "authentication failed", StatusCode: resp.StatusCode}
	}

	var authResponse struct {
		Token string `json:"token"`
		Sid   string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&authResponse); err != nil {
		metrics.tokenAcquisitionFailCounter.Inc()
		return nil, &AuthError{Message: "invalid JSON response from auth endpoint"}
	}

	if authResponse.Token == "" {
		metrics.tokenAcquisitionFailCounter.Inc()
		return nil, &AuthError{Message: "auth response is missing the token field"}
	}

	token := &Token{
		AccessToken: authResponse.Token,
		SID:         authResponse.Sid,
		ExpiresAt:   time.Now().Add(tm.tokenTtl),
		TokenType:   "Bearer",
	}

	tm.mutex.Lock()
	tm.token = token
	tm.mutex.Unlock()

	metrics.tokenAcquisitionCounter.Inc()
	logger.Log.Info("Successfully obtained access token")

	return token, nil
}

// AuthHeaders returns the headers every RPC call must carry.  When token is
// nil the cached token is used.
func (tm *TokenManager) AuthHeaders(token *Token) (map[string]string, error) {
	if token == nil {
		tm.mutex.Lock()
		token = tm.token
		tm.mutex.Unlock()
	}

	if token == nil {
		return nil, &AuthError{Message: "no valid token available"}
	}

	return map[string]string{
		accessTokenHeader: token.AccessToken,
		"Content-Type":    rpcContentType,
		"User-Agent":      userAgent,
	}, nil
}

// Invalidate performs a best-effort server-side logout.  The local cache is
// always cleared; a failed logout call is reported as false, never as an error.
func (tm *TokenManager) Invalidate(ctx context.Context) bool {
	tm.mutex.Lock()
	token := tm.token
	tm.token = nil
	tm.mutex.Unlock()

	if token == nil {
		logger.Log.Warn("No active token to logout")
		return true
	}

	requestBody, err := json.Marshal(map[string]string{
		"event": "exit",
		"token": token.AccessToken,
	})
	if err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.authUrl, bytes.NewReader(requestBody))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", defaultContentType)
	req.Header.Set("User-Agent", userAgent)

	resp, err := tm.httpClient.Do(req)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"error": err}).Error("Error during logout")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Log.WithFields(logrus.Fields{"status": resp.StatusCode}).Warn("Logout request failed")
		return false
	}

	logger.Log.Info("Successfully logged out from Saby CRM")
	return true
}
