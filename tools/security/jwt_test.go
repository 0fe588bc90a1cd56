package security

import (
	"context"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-please-change")

func TestVerifyRoundTrip(t *testing.T) {
	opts := DefaultOptions(testSecret)
	token, exp, err := Generate(opts, "user-1", RoleModerator)
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	v, err := NewVerifier(opts)
	require.NoError(t, err)

	p, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: "user-1", Role: RoleModerator}, p)
}

func TestVerifyDefaultsRoleToUser(t *testing.T) {
	opts := DefaultOptions(testSecret)
	token, _, err := Generate(opts, "user-2", "")
	require.NoError(t, err)

	v, err := NewVerifier(opts)
	require.NoError(t, err)
	p, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, RoleUser, p.Role)
}

func TestVerifyRejects(t *testing.T) {
	opts := DefaultOptions(testSecret)
	v, err := NewVerifier(opts)
	require.NoError(t, err)

	wrongKey, _, err := Generate(DefaultOptions([]byte("other")), "u", "")
	require.NoError(t, err)

	expiredClaims := Claims{RegisteredClaims: jwtlib.RegisteredClaims{
		Subject:   "u",
		ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(-time.Hour)),
	}}
	expired, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, expiredClaims).SignedString(testSecret)
	require.NoError(t, err)

	noSubClaims := Claims{RegisteredClaims: jwtlib.RegisteredClaims{
		ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	noSub, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, noSubClaims).SignedString(testSecret)
	require.NoError(t, err)

	otherAlg, _, err := Generate(Options{Secret: testSecret, Alg: "HS512"}, "u", "")
	require.NoError(t, err)

	cases := map[string]string{
		"empty":     "",
		"malformed": "not.a.jwt",
		"wrong key": wrongKey,
		"expired":   expired,
		"no sub":    noSub,
		"other alg": otherAlg,
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), token)
			assert.Error(t, err)
		})
	}
}

func TestVerifyIssuer(t *testing.T) {
	opts := DefaultOptions(testSecret)
	opts.Issuer = "kitchen-auth"
	v, err := NewVerifier(opts)
	require.NoError(t, err)

	good, _, err := Generate(opts, "u", "")
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), good)
	assert.NoError(t, err)

	bad, _, err := Generate(DefaultOptions(testSecret), "u", "")
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), bad)
	assert.Error(t, err)
}

func TestVerifyCancelledContext(t *testing.T) {
	v, err := NewVerifier(DefaultOptions(testSecret))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = v.Verify(ctx, "whatever")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewVerifierValidation(t *testing.T) {
	_, err := NewVerifier(Options{Alg: "HS256"})
	assert.Error(t, err)
	_, err = NewVerifier(Options{Secret: testSecret, Alg: "RS256"})
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer   abc "))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken(""))
}
