package google

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/bobuk/ex2gcal/internal/syncerr"
)

type memTokens struct {
	mu     sync.Mutex
	tokens map[string]*oauth2.Token
	saves  int
}

func (m *memTokens) LoadToken(_ context.Context, account string) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[account]
	if !ok {
		return nil, ErrNoToken
	}
	return tok, nil
}

func (m *memTokens) SaveToken(_ context.Context, account string, tok *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[account] = tok
	m.saves++
	return nil
}

func tokenServer(t *testing.T, body string, code int) *oauth2.Config {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	cfg := OAuthConfig("id", "secret", "")
	cfg.Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}
	return cfg
}

func TestTokenFromWeb(t *testing.T) {
	cfg := tokenServer(t, `{"access_token":"at","token_type":"Bearer","refresh_token":"rt","expires_in":3600}`, http.StatusOK)
	var out bytes.Buffer

	tok, err := TokenFromWeb(context.Background(), cfg, strings.NewReader("4/code\n"), &out)
	require.NoError(t, err)

	assert.Equal(t, "at", tok.AccessToken)
	assert.Equal(t, "rt", tok.RefreshToken)
	assert.Contains(t, out.String(), "/auth?")
	assert.Contains(t, out.String(), "access_type=offline")
}

func TestClientRefreshesAndSaves(t *testing.T) {
	cfg := tokenServer(t, `{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`, http.StatusOK)
	store := &memTokens{tokens: map[string]*oauth2.Token{
		"me": {AccessToken: "stale", RefreshToken: "rt", Expiry: time.Now().Add(-time.Hour)},
	}}
	logger, _ := test.NewNullLogger()

	client, err := Client(context.Background(), cfg, store, "me", logger)
	require.NoError(t, err)
	require.NotNil(t, client)

	assert.Equal(t, 1, store.saves)
	assert.Equal(t, "fresh", store.tokens["me"].AccessToken)
}

func TestClientValidTokenIsNotSaved(t *testing.T) {
	cfg := tokenServer(t, `{}`, http.StatusInternalServerError)
	store := &memTokens{tokens: map[string]*oauth2.Token{
		"me": {AccessToken: "ok", RefreshToken: "rt", Expiry: time.Now().Add(time.Hour)},
	}}
	logger, _ := test.NewNullLogger()

	_, err := Client(context.Background(), cfg, store, "me", logger)
	require.NoError(t, err)
	assert.Zero(t, store.saves)
}

func TestClientWithoutToken(t *testing.T) {
	cfg := OAuthConfig("id", "secret", "")
	logger, _ := test.NewNullLogger()

	_, err := Client(context.Background(), cfg, &memTokens{tokens: map[string]*oauth2.Token{}}, "me", logger)
	require.Error(t, err)
	assert.True(t, syncerr.IsRunLevel(err))
}

func TestClientRevokedToken(t *testing.T) {
	cfg := tokenServer(t, `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`, http.StatusBadRequest)
	store := &memTokens{tokens: map[string]*oauth2.Token{
		"me": {AccessToken: "stale", RefreshToken: "rt", Expiry: time.Now().Add(-time.Hour)},
	}}
	logger, _ := test.NewNullLogger()

	_, err := Client(context.Background(), cfg, store, "me", logger)
	require.Error(t, err)
	assert.True(t, syncerr.IsRunLevel(err))
	assert.Contains(t, err.Error(), "auth")
}
