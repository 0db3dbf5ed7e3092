package graph

import (
	"context"
	"net/http"

	"golang.org/x/oauth2/clientcredentials"

	"graphrelay/internal/config"
)

// NewTokenClient builds an *http.Client that transparently acquires and
// refreshes an application access token for the remote API using the OAuth2
// client-credentials grant.
//
// The returned client caches the token and refreshes it before expiry; it is
// safe for concurrent use and shared by the subscription and message
// clients.
func NewTokenClient(ctx context.Context, cfg config.GraphConfig) *http.Client {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret.Unmask(),
		TokenURL:     cfg.ResolveTokenURL(),
		Scopes:       []string{cfg.Scope},
	}

	client := cc.Client(ctx)
	client.Timeout = cfg.Timeout
	return client
}
