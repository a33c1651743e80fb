package signature_test

import (
	"testing"

	"ms-admission/internal/signature"

	"github.com/stretchr/testify/assert"
)

func TestSignAndVerify(t *testing.T) {
	secret := []byte("test-secret")

	sig := signature.Sign("ticket-1", "event-1", "nonce-abc", secret)
	assert.NotEmpty(t, sig)
	assert.True(t, signature.Verify("ticket-1", "event-1", "nonce-abc", sig, secret))
}

func TestVerify_TamperedFields(t *testing.T) {
	secret := []byte("test-secret")
	sig := signature.Sign("ticket-1", "event-1", "nonce-abc", secret)

	assert.False(t, signature.Verify("ticket-2", "event-1", "nonce-abc", sig, secret),
		"signature must not transfer to another ticket")
	assert.False(t, signature.Verify("ticket-1", "event-2", "nonce-abc", sig, secret),
		"signature must not transfer to another event")
	assert.False(t, signature.Verify("ticket-1", "event-1", "nonce-xyz", sig, secret),
		"signature must not survive a nonce swap")
}

func TestVerify_WrongSecret(t *testing.T) {
	sig := signature.Sign("ticket-1", "event-1", "nonce-abc", []byte("secret-a"))
	assert.False(t, signature.Verify("ticket-1", "event-1", "nonce-abc", sig, []byte("secret-b")))
}

func TestVerify_MalformedSignature(t *testing.T) {
	secret := []byte("test-secret")
	assert.False(t, signature.Verify("ticket-1", "event-1", "nonce-abc", "not-hex!!", secret))
	assert.False(t, signature.Verify("ticket-1", "event-1", "nonce-abc", "", secret))
}

func TestPayload_Canonical(t *testing.T) {
	assert.Equal(t, "t|e|n", signature.Payload("t", "e", "n"))
}
