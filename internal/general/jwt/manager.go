package jwt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"tow-dispatch/internal/domain/user"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidSigningAlgo = errors.New("unexpected signing method")
	ErrRoleForbidden      = errors.New("role not allowed")
)

// Manager signs and verifies HS256 access tokens.
type Manager struct {
	key       []byte
	accessTTL time.Duration
}

// NewManager creates a token manager. The secret must be non-blank; a blank
// secret is a deployment error, not something to limp along with.
func NewManager(secret string, accessTTL time.Duration) *Manager {
	key := strings.TrimSpace(secret)
	if key == "" {
		panic("jwt: empty secret key")
	}
	return &Manager{key: []byte(key), accessTTL: accessTTL}
}

// IssueUserToken signs an access token for an external user. The internal
// SYSTEM actor never gets a token from this path.
func (m *Manager) IssueUserToken(userID string, role user.Role) (string, *Claims, error) {
	if !role.Valid() || !role.External() {
		return "", nil, fmt.Errorf("invalid role: %s", role)
	}

	claims := NewUserClaims(userID, role, m.accessTTL)
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// ParseAndValidate checks the signature and standard claims and returns the
// decoded claims. Only HS256 is accepted; alg=none and RS* tokens fail here.
func (m *Manager) ParseAndValidate(tokenString string) (*jwtlib.Token, *Claims, error) {
	var claims Claims
	token, err := jwtlib.NewParser(
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
	).ParseWithClaims(tokenString, &claims, func(t *jwtlib.Token) (any, error) {
		if t.Method != jwtlib.SigningMethodHS256 {
			return nil, ErrInvalidSigningAlgo
		}
		return m.key, nil
	})
	switch {
	case err != nil:
		return nil, nil, err
	case !token.Valid:
		return nil, nil, errors.New("invalid token")
	}
	return token, &claims, nil
}

// FromAuthorization extracts the bearer token from the Authorization header,
// or from the Authorization query parameter for WebSocket clients that
// cannot set headers on the upgrade request. A bare token (no "Bearer "
// prefix) is accepted in the query parameter only.
func FromAuthorization(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer "), nil
	}

	if q := r.URL.Query().Get("Authorization"); q != "" {
		return strings.TrimPrefix(q, "Bearer "), nil
	}

	return "", fmt.Errorf("missing or malformed Authorization")
}

// RoleAllowed asserts the claims' role is one of the allowed.
func RoleAllowed(cl *Claims, allowed ...user.Role) error {
	if slices.Contains(allowed, cl.Role) {
		return nil
	}
	return ErrRoleForbidden
}

type claimsKey struct{}

// InjectClaims stores verified claims in the context for handlers.
func InjectClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// FromContext returns the claims placed by the auth middleware, if any.
func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}
