package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"PPKitchen/tools/errs"
	"PPKitchen/tools/security"
)

// TokenVerifier turns a bearer token into a principal.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (security.Principal, error)
}

// HandshakeState tracks one connection attempt. Admitted and Rejected are
// terminal.
type HandshakeState int

const (
	StateConnecting HandshakeState = iota
	StateAuthenticating
	StateAdmitted
	StateRejected
)

func (s HandshakeState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAdmitted:
		return "admitted"
	case StateRejected:
		return "rejected"
	}
	return "unknown"
}

// handshakeParams are the client-supplied connection parameters.
type handshakeParams struct {
	Token      string
	DeviceType string
	DeviceID   string
}

func readHandshakeParams(r *http.Request) handshakeParams {
	q := r.URL.Query()
	p := handshakeParams{
		Token:      strings.TrimSpace(q.Get("token")),
		DeviceType: strings.TrimSpace(q.Get("deviceType")),
		DeviceID:   strings.TrimSpace(q.Get("deviceId")),
	}
	if p.Token == "" {
		p.Token = security.BearerToken(r.Header.Get("Authorization"))
	}
	return p
}

// handshake is the admission state machine for one attempt.
type handshake struct {
	variant  Variant
	verifier TokenVerifier
	timeout  time.Duration

	State     HandshakeState
	Principal security.Principal
	Device    DeviceClass
	DeviceID  string
	// Cause is the verifier error behind a 4001 rejection. It is logged only.
	Cause error
}

func newHandshake(v Variant, verifier TokenVerifier, timeout time.Duration) *handshake {
	return &handshake{variant: v, verifier: verifier, timeout: timeout, State: StateConnecting}
}

// run validates params and authenticates. On rejection the returned error is
// the CodeError whose code is the close code to send.
func (h *handshake) run(ctx context.Context, p handshakeParams) *errs.CodeError {
	if ce := h.checkParams(p); ce != nil {
		h.State = StateRejected
		return ce
	}

	h.State = StateAuthenticating
	vctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	principal, err := h.verifier.Verify(vctx, p.Token)
	if err == nil && principal.UserID == "" {
		err = errs.New("verifier returned empty user id")
	}
	if err != nil {
		h.State = StateRejected
		h.Cause = err
		return errs.ErrAuthFailed
	}

	h.Principal = principal
	h.State = StateAdmitted
	return nil
}

func (h *handshake) checkParams(p handshakeParams) *errs.CodeError {
	if !h.variant.RequireDevice {
		if p.Token == "" {
			return h.variant.missingTokenErr()
		}
		h.Device, _ = ParseDeviceClass(p.DeviceType)
		h.DeviceID = p.DeviceID
		return nil
	}
	if p.Token == "" || p.DeviceType == "" || p.DeviceID == "" {
		return errs.ErrMissingParams
	}
	d, ok := ParseDeviceClass(p.DeviceType)
	if !ok {
		return errs.ErrMissingParams.WithDetail("unknown deviceType " + p.DeviceType)
	}
	h.Device = d
	h.DeviceID = p.DeviceID
	return nil
}
