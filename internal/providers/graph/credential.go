package graph

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/microsoft"
)

// DefaultScope requests the application permissions granted to the app
// registration.
const DefaultScope = "https://graph.microsoft.com/.default"

// ClientCredentials configures app-only access to a tenant.
type ClientCredentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// TokenURL overrides the Azure AD endpoint.
	TokenURL string
}

// TokenSource returns a cached client-credentials token source.
func (c ClientCredentials) TokenSource(ctx context.Context) oauth2.TokenSource {
	tokenURL := c.TokenURL
	if tokenURL == "" {
		tokenURL = microsoft.AzureADEndpoint(c.TenantID).TokenURL
	}
	cfg := &clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{DefaultScope},
	}
	return cfg.TokenSource(ctx)
}

// tokenSourceCredential adapts an oauth2 token source to azcore.
type tokenSourceCredential struct {
	src oauth2.TokenSource
}

func (c *tokenSourceCredential) GetToken(ctx context.Context, _ policy.TokenRequestOptions) (azcore.AccessToken, error) {
	tok, err := c.src.Token()
	if err != nil {
		return azcore.AccessToken{}, err
	}
	expires := tok.Expiry
	if expires.IsZero() {
		expires = time.Now().Add(time.Hour)
	}
	return azcore.AccessToken{Token: tok.AccessToken, ExpiresOn: expires}, nil
}
