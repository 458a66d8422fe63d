// Package impersonate lets a superadmin act as another user for support
// sessions. The state travels in a signed cookie so the server stays
// stateless; the HMAC makes the cookie tamper-evident, not secret.
package impersonate

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidToken covers parse failures and signature mismatches.
	ErrInvalidToken = errors.New("invalid impersonation token")
	// ErrTokenExpired is returned for a well-signed state past its expiry.
	ErrTokenExpired = errors.New("impersonation token expired")
	// ErrRoleNotAllowed is returned when the target role may not be
	// impersonated.
	ErrRoleNotAllowed = errors.New("role cannot be impersonated")
)

// DefaultTTL bounds an impersonation session.
const DefaultTTL = time.Hour

// RoleMember is the only role that may be impersonated. Admin and superadmin
// accounts are never impersonation targets.
const RoleMember = "member"

// State is the impersonation session carried in the cookie.
type State struct {
	SuperadminID uuid.UUID `json:"superadminId"`
	UserID       uuid.UUID `json:"userId"`
	Role         string    `json:"role"`
	StartedAt    time.Time `json:"startedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Codec signs and verifies impersonation state.
//
// The clock is injected so expiry behavior is testable without sleeping.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// NewCodec creates a Codec. A nil now defaults to time.Now.
func NewCodec(secret []byte, now func() time.Time) (*Codec, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("secret is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Codec{secret: secret, now: now}, nil
}

// Encode serializes and signs the state as base64url(payload).base64url(sig).
func (c *Codec) Encode(state State) (string, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("encoding impersonation state: %w", err)
	}
	sig := c.sign(payload)
	return base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString(sig), nil
}

// Decode verifies and parses an encoded state.
//
// The signature is verified with a constant-time compare BEFORE any content
// or timestamp inspection, so response timing never distinguishes a forged
// payload from a stale one. All failure modes mean "no impersonation" to
// callers; the distinct errors exist for logging.
func (c *Codec) Decode(token string) (*State, error) {
	payloadPart, sigPart, ok := strings.Cut(token, ".")
	if !ok {
		return nil, ErrInvalidToken
	}

	// Strict decoding rejects non-canonical encodings: without it, flipping
	// an unused trailing bit in a segment's last character decodes to the
	// same bytes and the tampered token would still verify.
	payload, err := base64.RawURLEncoding.Strict().DecodeString(payloadPart)
	if err != nil {
		return nil, ErrInvalidToken
	}
	sig, err := base64.RawURLEncoding.Strict().DecodeString(sigPart)
	if err != nil {
		return nil, ErrInvalidToken
	}

	expected := c.sign(payload)
	if subtle.ConstantTimeCompare(sig, expected) != 1 {
		return nil, ErrInvalidToken
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, ErrInvalidToken
	}

	if !state.ExpiresAt.After(c.now()) {
		return nil, ErrTokenExpired
	}
	if state.Role != RoleMember {
		return nil, ErrRoleNotAllowed
	}
	return &state, nil
}

// Start builds a fresh state for a superadmin impersonating a member.
func (c *Codec) Start(superadminID, userID uuid.UUID, role string, ttl time.Duration) (*State, error) {
	if role != RoleMember {
		return nil, fmt.Errorf("%w: %q", ErrRoleNotAllowed, role)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := c.now()
	return &State{
		SuperadminID: superadminID,
		UserID:       userID,
		Role:         role,
		StartedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}, nil
}

func (c *Codec) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)
	return mac.Sum(nil)
}
