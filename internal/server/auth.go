package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"prepcal/internal/repo"
)

const (
	userinfoURL       = "https://www.googleapis.com/oauth2/v2/userinfo"
	stateCookieName   = "prepcal_oauth_state"
	stateCookieMaxAge = 600
	sessionTokenTTL   = 24 * time.Hour
	providerGoogle    = "google"
)

type AuthConfig struct {
	JWTSecret string
	Google    *oauth2.Config
	Logger    *log.Logger
	Now       func() time.Time
}

type Principal struct {
	UserID string
	Email  string
	Source string
}

type principalKey struct{}

func (c AuthConfig) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

func (c AuthConfig) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func userIDFromContext(ctx context.Context) (string, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.UserID != "" {
		return p.UserID, nil
	}
	return "", newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

func issueToken(secret, userID, email string, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTokenTTL)),
		},
		Email: email,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func authenticateJWT(token string, secret string) (Principal, error) {
	if strings.TrimSpace(secret) == "" {
		return Principal{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !parsed.Valid {
		return Principal{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return Principal{}, errors.New("subject claim required")
	}
	return Principal{UserID: claims.Subject, Email: claims.Email, Source: "jwt"}, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// openPaths are reachable without a bearer token. The push channel serves
// unattended displays, and the notify ingress authenticates with its own
// shared secret.
func openPaths(basePath string) map[string]struct{} {
	open := map[string]struct{}{}
	for _, p := range []string{"health", "openapi.json", "auth/google/login", "auth/google/callback", "chat/stream", "chat/notify"} {
		open[path.Join(basePath, p)] = struct{}{}
	}
	return open
}

func newAuthMiddleware(basePath string, cfg AuthConfig) func(http.Handler) http.Handler {
	open := openPaths(basePath)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			// Only enforce for API base path.
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if _, ok := open[req.URL.Path]; ok {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			if authz == "" {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			}
			token, ok := bearerToken(authz)
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			principal, err := authenticateJWT(token, cfg.JWTSecret)
			if err != nil {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}

type googleUserinfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// registerAuth wires the Google OAuth login flow as raw routes: the login
// redirect and the provider callback are browser navigations, not JSON API
// calls.
func registerAuth(router chi.Router, basePath string, cfg Config) {
	router.Get(path.Join(basePath, "auth/google/login"), func(w http.ResponseWriter, r *http.Request) {
		if cfg.Auth.Google == nil || cfg.Auth.Google.ClientID == "" {
			respondStatusError(w, newAPIError(http.StatusServiceUnavailable, "oauth_not_configured", "google oauth is not configured", nil))
			return
		}
		state := uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     stateCookieName,
			Value:    state,
			Path:     "/",
			MaxAge:   stateCookieMaxAge,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		url := cfg.Auth.Google.AuthCodeURL(state,
			oauth2.AccessTypeOffline,
			oauth2.SetAuthURLParam("prompt", "consent"))
		http.Redirect(w, r, url, http.StatusFound)
	})

	router.Get(path.Join(basePath, "auth/google/callback"), func(w http.ResponseWriter, r *http.Request) {
		if cfg.Auth.Google == nil || cfg.Auth.Google.ClientID == "" {
			respondStatusError(w, newAPIError(http.StatusServiceUnavailable, "oauth_not_configured", "google oauth is not configured", nil))
			return
		}
		state := r.URL.Query().Get("state")
		cookie, err := r.Cookie(stateCookieName)
		if err != nil || state == "" || cookie.Value != state {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "oauth state mismatch", nil))
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "code is required", nil))
			return
		}
		tok, err := cfg.Auth.Google.Exchange(r.Context(), code)
		if err != nil {
			cfg.Auth.logger().Printf("auth: code exchange failed: %v", err)
			respondStatusError(w, newAPIError(http.StatusBadGateway, "oauth_exchange_failed", "could not exchange authorization code", nil))
			return
		}
		info, err := fetchUserinfo(r.Context(), cfg.Auth.Google, tok, cfg.UserinfoURL)
		if err != nil {
			cfg.Auth.logger().Printf("auth: userinfo fetch failed: %v", err)
			respondStatusError(w, newAPIError(http.StatusBadGateway, "oauth_userinfo_failed", "could not fetch account profile", nil))
			return
		}
		if info.Email == "" {
			respondStatusError(w, newAPIError(http.StatusBadGateway, "oauth_userinfo_failed", "provider returned no email", nil))
			return
		}
		user, err := cfg.Repo.UpsertUser(r.Context(), info.Email, info.Name)
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		if _, err := cfg.Repo.UpsertAccount(r.Context(), user.ID, providerGoogle, tok.AccessToken, tok.RefreshToken, tok.Expiry); err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		token, err := issueToken(cfg.Auth.JWTSecret, user.ID, user.Email, cfg.Auth.now())
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal_error", "could not issue session token", nil))
			return
		}
		resp := TokenResponse{Token: token}
		resp.User.ID = user.ID
		resp.User.Email = user.Email
		resp.User.Name = user.Name
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
}

func fetchUserinfo(ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token, baseURL string) (googleUserinfo, error) {
	url := baseURL
	if url == "" {
		url = userinfoURL
	}
	client := cfg.Client(ctx, tok)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return googleUserinfo{}, err
	}
	res, err := client.Do(req)
	if err != nil {
		return googleUserinfo{}, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return googleUserinfo{}, fmt.Errorf("userinfo status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	var info googleUserinfo
	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		return googleUserinfo{}, err
	}
	return info, nil
}

// accountForUser resolves the linked Google account for the authenticated
// principal, surfacing a re-auth error when none is linked.
func accountForUser(ctx context.Context, cfg Config) (string, *oauth2.Token, huma.StatusError) {
	userID, authErr := userIDFromContext(ctx)
	if authErr != nil {
		return "", nil, authErr
	}
	account, err := cfg.Repo.GetAccount(ctx, userID, providerGoogle)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", nil, newAPIError(http.StatusUnauthorized, "auth_expired", "no linked calendar account; sign in with Google again", nil)
		}
		return "", nil, handleError(err)
	}
	expiry, _ := time.Parse(time.RFC3339, account.Expiry)
	return account.ID, &oauth2.Token{
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
		Expiry:       expiry,
		TokenType:    "Bearer",
	}, nil
}
