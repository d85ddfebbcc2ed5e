package calendar

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// TokenStore persists refreshed access tokens for a linked account so a
// refresh survives process restarts.
type TokenStore interface {
	SaveToken(ctx context.Context, accountID, accessToken string, expiry time.Time) error
}

// persistingSource wraps an oauth2.TokenSource and writes every newly minted
// access token back to the store, keyed by account.
type persistingSource struct {
	accountID string
	store     TokenStore
	src       oauth2.TokenSource

	mu   sync.Mutex
	last string
}

// NewTokenSource builds a refreshing token source for a linked account.
// cfg supplies the OAuth client; tok carries the stored access/refresh pair.
func NewTokenSource(ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token, accountID string, store TokenStore) oauth2.TokenSource {
	return &persistingSource{
		accountID: accountID,
		store:     store,
		src:       cfg.TokenSource(ctx, tok),
	}
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	changed := tok.AccessToken != p.last
	p.last = tok.AccessToken
	p.mu.Unlock()
	if changed && p.store != nil {
		// Persist best-effort; a failed write only costs one extra refresh.
		_ = p.store.SaveToken(context.Background(), p.accountID, tok.AccessToken, tok.Expiry)
	}
	return tok, nil
}

// HTTPClient returns an http.Client that authorizes requests with src.
func HTTPClient(src oauth2.TokenSource) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{Source: src},
		Timeout:   defaultTimeout,
	}
}
