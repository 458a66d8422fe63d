package impersonate

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func testCodec(t *testing.T, now time.Time) *Codec {
	t.Helper()
	c, err := NewCodec(testSecret, func() time.Time { return now })
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func validState(now time.Time) State {
	return State{
		SuperadminID: uuid.New(),
		UserID:       uuid.New(),
		Role:         RoleMember,
		StartedAt:    now,
		ExpiresAt:    now.Add(time.Hour),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := testCodec(t, now)
	state := validState(now)

	token, err := c.Encode(state)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := c.Decode(token)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.SuperadminID != state.SuperadminID || got.UserID != state.UserID {
		t.Errorf("round trip changed identity: %+v", got)
	}
	if got.Role != RoleMember {
		t.Errorf("Role = %q", got.Role)
	}
	if !got.ExpiresAt.Equal(state.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, state.ExpiresAt)
	}
}

func TestDecodeRejectsEverySingleBitFlip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := testCodec(t, now)

	token, err := c.Encode(validState(now))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Flipping any one bit of any byte must fail verification. Flips that
	// land outside the base64url alphabet fail at decode; the rest fail the
	// HMAC compare.
	raw := []byte(token)
	for i := range raw {
		for bit := 0; bit < 8; bit++ {
			tampered := make([]byte, len(raw))
			copy(tampered, raw)
			tampered[i] ^= 1 << bit
			if string(tampered) == token {
				continue
			}
			if _, err := c.Decode(string(tampered)); err == nil {
				t.Fatalf("tampered token accepted (byte %d, bit %d)", i, bit)
			}
		}
	}
}

func TestDecodeExpired(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := testCodec(t, start)
	token, err := c.Encode(validState(start))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Same secret, clock moved past expiry.
	late := testCodec(t, start.Add(2*time.Hour))
	if _, err := late.Decode(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}

	// Exactly at expiry is also expired; the state must be strictly fresh.
	atExpiry := testCodec(t, start.Add(time.Hour))
	if _, err := atExpiry.Decode(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("at-expiry err = %v, want ErrTokenExpired", err)
	}
}

func TestDecodeRejectsNonMemberRole(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := testCodec(t, now)

	for _, role := range []string{"admin", "superadmin", ""} {
		state := validState(now)
		state.Role = role
		token, err := c.Encode(state)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if _, err := c.Decode(token); !errors.Is(err, ErrRoleNotAllowed) {
			t.Errorf("role %q: err = %v, want ErrRoleNotAllowed", role, err)
		}
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := testCodec(t, now)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"no separator", "no-dot-here"},
		{"not base64url", "!!!.!!!"},
		{"empty signature", "eyJ4IjoxfQ."},
		{"empty payload", ".c2lnbmF0dXJl"},
		{"well-formed but unsigned", "eyJ4IjoxfQ.c2lnbmF0dXJl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Decode(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestDecodeRejectsWrongSecret(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := testCodec(t, now)
	token, err := c.Encode(validState(now))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	other, err := NewCodec([]byte(strings.Repeat("x", 32)), func() time.Time { return now })
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	if _, err := other.Decode(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestStartDefaultsAndRoleCheck(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := testCodec(t, now)

	state, err := c.Start(uuid.New(), uuid.New(), RoleMember, 0)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !state.StartedAt.Equal(now) {
		t.Errorf("StartedAt = %v, want %v", state.StartedAt, now)
	}
	if !state.ExpiresAt.Equal(now.Add(DefaultTTL)) {
		t.Errorf("ExpiresAt = %v, want default TTL from now", state.ExpiresAt)
	}

	if _, err := c.Start(uuid.New(), uuid.New(), "admin", 0); !errors.Is(err, ErrRoleNotAllowed) {
		t.Errorf("Start(admin) err = %v, want ErrRoleNotAllowed", err)
	}
}

func TestNewCodecRequiresSecret(t *testing.T) {
	if _, err := NewCodec(nil, nil); err == nil {
		t.Error("NewCodec accepted an empty secret")
	}
}
