// Package auth authenticates admin API callers with HS256 bearer tokens and
// exposes the caller as a Principal on the request context.
package auth

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"conversation-router/internal/common/errors"
	"conversation-router/internal/common/logging"
	"conversation-router/internal/config"
)

const (
	issuer          = "conversation-router"
	blacklistPrefix = "jwt:blacklist:"
	// DefaultTokenTTL is the lifetime of tokens issued by GenerateJWT
	DefaultTokenTTL = 24 * time.Hour
)

// Claims are the JWT claims the router understands
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Principal identifies an authenticated caller
type Principal struct {
	Subject string
	Email   string
}

// Name is the value recorded as a rule's createdBy: the email claim when
// present, otherwise the subject.
func (p Principal) Name() string {
	if p.Email != "" {
		return p.Email
	}
	return p.Subject
}

// RevocationStore remembers revoked tokens until they would have expired.
// *redis.Client implements it.
type RevocationStore interface {
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
}

type Auth struct {
	secret   []byte
	disabled bool
	revoked  RevocationStore
	logger   logging.Logger
}

// New creates an Auth from cfg. revoked may be nil, in which case tokens
// cannot be revoked before they expire.
func New(cfg *config.Config, revoked RevocationStore) *Auth {
	return &Auth{
		secret:   []byte(cfg.JWTSecret),
		disabled: cfg.AuthDisabled,
		revoked:  revoked,
		logger:   logging.Component("auth"),
	}
}

// GenerateJWT issues a token for subject. ttl <= 0 uses DefaultTokenTTL.
func (a *Auth) GenerateJWT(subject, email string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.ConfigError("JWT secret is not configured")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := time.Now()
	claims := &Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ValidateJWT verifies signature, expiry, issuer and revocation
func (a *Auth) ValidateJWT(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.AuthError("token has expired")
		}
		return nil, errors.AuthError("invalid token")
	}

	if claims.Subject == "" && claims.Email == "" {
		return nil, errors.AuthError("token has no subject")
	}

	if a.revoked != nil {
		revoked, err := a.revoked.Exists(ctx, blacklistPrefix+tokenString)
		if err != nil {
			return nil, errors.ConnectionError("failed to check token revocation", err)
		}
		if revoked {
			return nil, errors.AuthError("token has been revoked")
		}
	}

	return claims, nil
}

// Revoke blacklists tokenString until its expiry
func (a *Auth) Revoke(ctx context.Context, tokenString string) error {
	if a.revoked == nil {
		return errors.ConfigError("token revocation requires Redis")
	}

	claims, err := a.ValidateJWT(ctx, tokenString)
	if err != nil {
		return err
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	if _, err := a.revoked.SetIfAbsent(ctx, blacklistPrefix+tokenString, "1", ttl); err != nil {
		return errors.ConnectionError("failed to revoke token", err)
	}
	return nil
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's Principal on the request context. With AUTH_DISABLED every
// request passes as the "anonymous" principal.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.disabled {
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), Principal{Subject: "anonymous"})))
			return
		}

		token, ok := BearerToken(r)
		if !ok {
			writeAuthError(w, errors.AuthError("authentication required"))
			return
		}

		claims, err := a.ValidateJWT(r.Context(), token)
		if err != nil {
			if !errors.IsType(err, errors.ErrTypeAuth) {
				a.logger.WithContext(r.Context()).Error("Token validation failed", err)
			}
			writeAuthError(w, err)
			return
		}

		p := Principal{Subject: claims.Subject, Email: claims.Email}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
	})
}

// BearerToken extracts the token from an "Authorization: Bearer" header
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeAuthError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="conversation-router"`)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": errors.PublicMessage(err)})
}

type principalKey struct{}

func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
