package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lumeo-ai/studio/internal/config"
)

// User is the authenticated identity extracted from a Supabase access token.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// DisplayName returns the provider-supplied full name, falling back to email.
func (u *User) DisplayName() string {
	if u.UserMetadata != nil {
		if name, ok := u.UserMetadata["full_name"].(string); ok && name != "" {
			return name
		}
	}
	return u.Email
}

// AvatarURL returns the provider-supplied avatar, if any.
func (u *User) AvatarURL() string {
	if u.UserMetadata != nil {
		if avatar, ok := u.UserMetadata["avatar_url"].(string); ok {
			return avatar
		}
	}
	return ""
}

// Auth verifies Supabase access tokens. When the project JWT secret is
// configured tokens are verified locally; otherwise (or on local failure)
// verification falls back to the auth REST API.
type Auth struct {
	baseURL    string
	anonKey    string
	jwtSecret  string
	httpClient *http.Client
}

func NewAuth(cfg config.Config) *Auth {
	return &Auth{
		baseURL:    strings.TrimRight(cfg.SupabaseURL, "/"),
		anonKey:    cfg.SupabaseAnonKey,
		jwtSecret:  cfg.SupabaseJWTSecret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type ctxKey string

const (
	userKey  ctxKey = "studio_user"
	tokenKey ctxKey = "studio_token"
)

// Middleware validates the bearer token and injects the user plus the raw
// token (needed for row-level-security reads) into the request context.
// Requests without a token pass through; RequireAuth guards the protected
// routes.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			http.Error(w, `{"error":"invalid authorization header format"}`, http.StatusUnauthorized)
			return
		}
		token := parts[1]

		user, err := a.VerifyToken(r.Context(), token)
		if err != nil {
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects requests with no authenticated user.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// VerifyToken resolves a token to its user.
func (a *Auth) VerifyToken(ctx context.Context, token string) (*User, error) {
	if a.jwtSecret != "" {
		if user, err := a.verifyLocal(token); err == nil {
			return user, nil
		}
	}
	return a.verifyRemote(ctx, token)
}

func (a *Auth) verifyLocal(token string) (*User, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(a.jwtSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("jwt parse: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("jwt invalid")
	}

	user := &User{
		ID:    stringClaim(claims, "sub"),
		Email: stringClaim(claims, "email"),
		Role:  stringClaim(claims, "role"),
	}
	if meta, ok := claims["user_metadata"].(map[string]any); ok {
		user.UserMetadata = meta
	}
	if user.ID == "" {
		return nil, fmt.Errorf("jwt missing subject")
	}
	return user, nil
}

func (a *Auth) verifyRemote(ctx context.Context, token string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", a.anonKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("validate token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("token rejected: status=%d body=%s", resp.StatusCode, truncateBody(body))
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &user, nil
}

// SignOut revokes the session with the auth provider. A failed revocation is
// not fatal; the client drops the token either way.
func (a *Auth) SignOut(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/auth/v1/logout", nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", a.anonKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sign out rejected: status=%d", resp.StatusCode)
	}
	return nil
}

// OAuthURL builds the hosted sign-in redirect for the given provider. The
// auth protocol itself is the provider's business.
func (a *Auth) OAuthURL(provider, redirectTo string) string {
	query := url.Values{}
	query.Set("provider", provider)
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}
	return a.baseURL + "/auth/v1/authorize?" + query.Encode()
}

// UserFromContext retrieves the authenticated user, or nil.
func UserFromContext(ctx context.Context) *User {
	user, ok := ctx.Value(userKey).(*User)
	if !ok {
		return nil
	}
	return user
}

// TokenFromContext retrieves the raw bearer token for downstream reads.
func TokenFromContext(ctx context.Context) string {
	token, ok := ctx.Value(tokenKey).(string)
	if !ok {
		return ""
	}
	return token
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
