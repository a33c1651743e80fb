package qrpass_test

import (
	"testing"

	"ms-admission/internal/models"
	"ms-admission/internal/qrpass"
	"ms-admission/internal/signature"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPayload_VerifiableSignature(t *testing.T) {
	gen := qrpass.NewGenerator("gate-secret")
	ticket := models.Ticket{
		TicketID: "ticket-1",
		EventID:  "event-1",
		QRNonce:  "nonce-abc",
	}

	payload := gen.BuildPayload(ticket)

	assert.Equal(t, "ticket-1", payload.TicketID)
	assert.Equal(t, "event-1", payload.EventID)
	assert.True(t, signature.Verify("ticket-1", "event-1", "nonce-abc", payload.Signature, []byte("gate-secret")),
		"the embedded signature must verify with the same secret")
}

func TestGeneratePNG(t *testing.T) {
	gen := qrpass.NewGenerator("gate-secret")
	ticket := models.Ticket{TicketID: "ticket-1", EventID: "event-1", QRNonce: "n"}

	png, err := gen.GeneratePNG(ticket)
	require.NoError(t, err)
	require.NotEmpty(t, png)
	// PNG magic header
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}
