package gateway

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"PPKitchen/tools/errs"
	"PPKitchen/tools/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshakeGeneralVariant(t *testing.T) {
	cases := []struct {
		name   string
		params handshakeParams
		code   int
	}{
		{"no token", handshakeParams{DeviceType: "web", DeviceID: "d1"}, errs.CodeMissingParams},
		{"no device type", handshakeParams{Token: "tok-u1", DeviceID: "d1"}, errs.CodeMissingParams},
		{"no device id", handshakeParams{Token: "tok-u1", DeviceType: "web"}, errs.CodeMissingParams},
		{"unknown device", handshakeParams{Token: "tok-u1", DeviceType: "fridge", DeviceID: "d1"}, errs.CodeMissingParams},
		{"bad token", handshakeParams{Token: "forged", DeviceType: "web", DeviceID: "d1"}, errs.CodeAuthFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hs := newHandshake(GeneralVariant, tokenVerifier{}, time.Second)
			ce := hs.run(context.Background(), tc.params)
			require.NotNil(t, ce)
			assert.Equal(t, tc.code, ce.Code)
			assert.Equal(t, StateRejected, hs.State)
		})
	}
}

func TestHandshakeAdmits(t *testing.T) {
	hs := newHandshake(GeneralVariant, tokenVerifier{}, time.Second)
	ce := hs.run(context.Background(), handshakeParams{Token: "tok-u1", DeviceType: "Tablet", DeviceID: "ipad"})
	require.Nil(t, ce)
	assert.Equal(t, StateAdmitted, hs.State)
	assert.Equal(t, "u1", hs.Principal.UserID)
	assert.Equal(t, DeviceTablet, hs.Device)
	assert.Equal(t, "ipad", hs.DeviceID)
}

func TestHandshakeCollectionsVariant(t *testing.T) {
	hs := newHandshake(CollectionsVariant, tokenVerifier{}, time.Second)
	ce := hs.run(context.Background(), handshakeParams{})
	require.NotNil(t, ce)
	assert.Equal(t, errs.CodeTokenRequired, ce.Code)

	hs = newHandshake(CollectionsVariant, tokenVerifier{}, time.Second)
	require.Nil(t, hs.run(context.Background(), handshakeParams{Token: "tok-u2"}))
	assert.Equal(t, DeviceUnknown, hs.Device)
}

func TestHandshakeKeepsVerifierErrorPrivate(t *testing.T) {
	hs := newHandshake(GeneralVariant, tokenVerifier{}, time.Second)
	ce := hs.run(context.Background(), handshakeParams{Token: "nope", DeviceType: "web", DeviceID: "d"})
	require.NotNil(t, ce)
	assert.Equal(t, "authentication failed", ce.Msg)
	assert.Error(t, hs.Cause)
	assert.NotContains(t, ce.Error(), "bad token")
}

func TestHandshakeEmptyPrincipalIsRejected(t *testing.T) {
	empty := verifierFunc(func(context.Context, string) (security.Principal, error) {
		return security.Principal{}, nil
	})
	hs := newHandshake(CollectionsVariant, empty, time.Second)
	ce := hs.run(context.Background(), handshakeParams{Token: "x"})
	require.NotNil(t, ce)
	assert.Equal(t, errs.CodeAuthFailed, ce.Code)
}

func TestReadHandshakeParamsBearerFallback(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?deviceType=web&deviceId=d1", nil)
	r.Header.Set("Authorization", "Bearer abc")
	p := readHandshakeParams(r)
	assert.Equal(t, handshakeParams{Token: "abc", DeviceType: "web", DeviceID: "d1"}, p)

	r = httptest.NewRequest("GET", "/ws?token=q&deviceType=web&deviceId=d1", nil)
	r.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "q", readHandshakeParams(r).Token)
}

type verifierFunc func(ctx context.Context, token string) (security.Principal, error)

func (f verifierFunc) Verify(ctx context.Context, token string) (security.Principal, error) {
	return f(ctx, token)
}

func TestHandshakeStateString(t *testing.T) {
	assert.Equal(t, "authenticating", StateAuthenticating.String())
	assert.Equal(t, "unknown", HandshakeState(42).String())
}
