package jwt

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"tow-dispatch/internal/domain/user"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidateRoundtrip(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	signed, issued, err := m.IssueUserToken("user-42", user.RoleDriver)
	require.NoError(t, err)
	require.NotEmpty(t, signed)
	assert.Equal(t, "user-42", issued.Subject)

	_, claims, err := m.ParseAndValidate(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.Subject)
	assert.Equal(t, user.RoleDriver, claims.Role)
}

func TestIssueRejectsInternalRoles(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	_, _, err := m.IssueUserToken("user-42", user.RoleSystem)
	assert.Error(t, err, "SYSTEM never appears in credentials")

	_, _, err = m.IssueUserToken("user-42", user.Role("ADMIN"))
	assert.Error(t, err)
}

func TestParseRejectsBadTokens(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	// wrong secret
	other := NewManager("other-secret", time.Hour)
	signed, _, err := other.IssueUserToken("user-42", user.RoleClient)
	require.NoError(t, err)
	_, _, err = m.ParseAndValidate(signed)
	assert.Error(t, err)

	// tampered payload
	signed, _, err = m.IssueUserToken("user-42", user.RoleClient)
	require.NoError(t, err)
	_, _, err = m.ParseAndValidate(signed + "x")
	assert.Error(t, err)

	// expired
	expired := NewManager("test-secret", -time.Minute)
	signed, _, err = expired.IssueUserToken("user-42", user.RoleClient)
	require.NoError(t, err)
	_, _, err = m.ParseAndValidate(signed)
	assert.ErrorIs(t, err, jwtlib.ErrTokenExpired)

	// alg=none style garbage
	_, _, err = m.ParseAndValidate("eyJhbGciOiJub25lIn0.e30.")
	assert.Error(t, err)
}

func TestNewManagerRequiresSecret(t *testing.T) {
	assert.Panics(t, func() { NewManager("   ", time.Hour) })
}

func TestFromAuthorization(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws/locations", nil)
	r.Header.Set("Authorization", "Bearer abc.def.ghi")
	tok, err := FromAuthorization(r)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", tok)

	// WS clients pass the same value through the query string
	r = httptest.NewRequest("GET", "/ws/locations?Authorization=Bearer+abc.def.ghi", nil)
	tok, err = FromAuthorization(r)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", tok)

	// a bare token in the query is accepted too
	r = httptest.NewRequest("GET", "/ws/locations?Authorization=abc.def.ghi", nil)
	tok, err = FromAuthorization(r)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", tok)

	r = httptest.NewRequest("GET", "/ws/locations", nil)
	_, err = FromAuthorization(r)
	assert.Error(t, err)

	r = httptest.NewRequest("GET", "/ws/locations", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwdw==")
	_, err = FromAuthorization(r)
	assert.Error(t, err)
}

func TestRoleAllowed(t *testing.T) {
	cl := NewUserClaims("user-42", user.RoleDriver, time.Hour)

	assert.NoError(t, RoleAllowed(cl, user.RoleDriver))
	assert.NoError(t, RoleAllowed(cl, user.RoleClient, user.RoleDriver, user.RoleOperator))
	assert.ErrorIs(t, RoleAllowed(cl, user.RoleOperator), ErrRoleForbidden)
	assert.ErrorIs(t, RoleAllowed(cl), ErrRoleForbidden)
}

func TestClaimsContext(t *testing.T) {
	cl := NewUserClaims("user-42", user.RoleClient, time.Hour)

	ctx := InjectClaims(context.Background(), cl)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, cl, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
