package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"

	"github.com/bobuk/ex2gcal/internal/syncerr"
)

// ErrNoToken is returned by a TokenStore that holds nothing for an account.
var ErrNoToken = errors.New("no token stored")

// OOBRedirectURL makes Google show the authorization code in the browser.
const OOBRedirectURL = "urn:ietf:wg:oauth:2.0:oob"

// TokenStore persists OAuth tokens by account name.
type TokenStore interface {
	LoadToken(ctx context.Context, account string) (*oauth2.Token, error)
	SaveToken(ctx context.Context, account string, tok *oauth2.Token) error
}

// OAuthConfig returns the installed-app configuration for the Calendar API.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	if redirectURL == "" {
		redirectURL = OOBRedirectURL
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       []string{calendar.CalendarScope},
	}
}

// TokenFromWeb prints the consent URL to out, reads the authorization code
// from in and exchanges it.
func TokenFromWeb(ctx context.Context, cfg *oauth2.Config, in io.Reader, out io.Writer) (*oauth2.Token, error) {
	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(out, "Go to the following link in your browser then type the "+
		"authorization code: \n%v\n", authURL)

	var authCode string
	if _, err := fmt.Fscan(in, &authCode); err != nil {
		return nil, fmt.Errorf("unable to read authorization code: %w", err)
	}

	tok, err := cfg.Exchange(ctx, strings.TrimSpace(authCode))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return tok, nil
}

// Client returns an HTTP client authorized as account. Refreshed tokens are
// written back to the store. A missing or revoked token is a
// DestinationUnavailableError.
func Client(ctx context.Context, cfg *oauth2.Config, store TokenStore, account string, logger log.FieldLogger) (*http.Client, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	tok, err := store.LoadToken(ctx, account)
	if errors.Is(err, ErrNoToken) {
		return nil, syncerr.DestinationUnavailable(fmt.Errorf("no token for account %s, run `ex2gcal auth` first", account))
	}
	if err != nil {
		return nil, fmt.Errorf("error retrieving token: %w", err)
	}

	src := &savingSource{
		ctx:     ctx,
		base:    cfg.TokenSource(ctx, tok),
		store:   store,
		account: account,
		last:    tok.AccessToken,
		log:     logger,
	}
	if _, err := src.Token(); err != nil {
		if strings.Contains(err.Error(), "Token has been expired or revoked") || strings.Contains(err.Error(), "invalid_grant") {
			return nil, syncerr.DestinationUnavailable(fmt.Errorf("token expired or revoked for account %s, run `ex2gcal auth` again: %w", account, err))
		}
		return nil, syncerr.DestinationUnavailable(fmt.Errorf("error refreshing token: %w", err))
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(nil, src)), nil
}

// savingSource stores every token whose access token differs from the last
// one seen.
type savingSource struct {
	ctx     context.Context
	base    oauth2.TokenSource
	store   TokenStore
	account string
	log     log.FieldLogger

	mu   sync.Mutex
	last string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.log.WithField("account", s.account).Info("🔑 Token refreshed")
		if err := s.store.SaveToken(s.ctx, s.account, tok); err != nil {
			s.log.WithError(err).Warn("refreshed token not saved")
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}
