package calendar

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

type memStore struct {
	mu    sync.Mutex
	saves []string
}

func (m *memStore) SaveToken(_ context.Context, accountID, accessToken string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, accountID+":"+accessToken)
	return nil
}

func (m *memStore) all() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.saves...)
}

func TestTokenSourcePersistsRefreshedToken(t *testing.T) {
	refreshes := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshes++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"fresh-%d","token_type":"Bearer","expires_in":3600,"refresh_token":"refresh-1"}`, refreshes)
	}))
	defer srv.Close()

	cfg := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: srv.URL},
	}
	stale := &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(-time.Hour),
	}
	store := &memStore{}
	src := NewTokenSource(context.Background(), cfg, stale, "acct-1", store)

	tok, err := src.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.AccessToken != "fresh-1" {
		t.Fatalf("access token = %q", tok.AccessToken)
	}
	saves := store.all()
	if len(saves) != 1 || saves[0] != "acct-1:fresh-1" {
		t.Fatalf("saves = %v", saves)
	}

	// Second call within the token's lifetime: no refresh, no extra save.
	if _, err := src.Token(); err != nil {
		t.Fatalf("Token again: %v", err)
	}
	if refreshes != 1 {
		t.Fatalf("refreshes = %d, want 1", refreshes)
	}
	if got := store.all(); len(got) != 1 {
		t.Fatalf("saves = %v, want unchanged", got)
	}
}
