package api

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestSignedUIDRoundTrip(t *testing.T) {
	id := uuid.New()
	value := signUID(testSecret, id)

	got, err := verifyUID(testSecret, value)
	if err != nil {
		t.Fatalf("verifyUID: %v", err)
	}
	if got != id {
		t.Errorf("got %s, want %s", got, id)
	}
}

func TestVerifyUIDRejectsTampering(t *testing.T) {
	id := uuid.New()
	value := signUID(testSecret, id)

	tests := []struct {
		name  string
		value string
	}{
		{"empty", ""},
		{"no separator", id.String()},
		{"not a uuid", "hello." + value},
		{"bad signature encoding", id.String() + ".!!!"},
		{"swapped identity", uuid.NewString() + "." + value[len(id.String())+1:]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := verifyUID(testSecret, tt.value); !errors.Is(err, errBadUIDCookie) {
				t.Errorf("err = %v, want errBadUIDCookie", err)
			}
		})
	}
}

func TestVerifyUIDRejectsSignatureBitFlips(t *testing.T) {
	id := uuid.New()
	value := signUID(testSecret, id)
	sigStart := len(id.String()) + 1

	// Every single-bit change to the signature segment must fail, including
	// the trailing characters whose unused padding bits only strict base64
	// decoding rejects.
	for i := sigStart; i < len(value); i++ {
		for bit := 0; bit < 8; bit++ {
			tampered := []byte(value)
			tampered[i] ^= 1 << bit
			if _, err := verifyUID(testSecret, string(tampered)); err == nil {
				t.Fatalf("tampered cookie accepted (byte %d, bit %d)", i, bit)
			}
		}
	}
}

func TestVerifyUIDRejectsWrongSecret(t *testing.T) {
	id := uuid.New()
	value := signUID(testSecret, id)

	other := []byte("another-secret-another-secret-32")
	if _, err := verifyUID(other, value); err == nil {
		t.Error("signature verified under a different secret")
	}
}
