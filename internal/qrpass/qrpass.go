// Package qrpass renders the signed QR pass an attendee presents at
// the gate. The payload is what RequestScan later verifies.
package qrpass

import (
	"encoding/json"
	"fmt"

	"ms-admission/internal/models"
	"ms-admission/internal/signature"

	"github.com/skip2/go-qrcode"
)

type Payload struct {
	TicketID  string `json:"ticket_id"`
	EventID   string `json:"event_id"`
	Signature string `json:"signature"`
}

type Generator struct {
	secret []byte
}

func NewGenerator(secret string) *Generator {
	return &Generator{secret: []byte(secret)}
}

// BuildPayload signs the ticket's identity for embedding in a QR code.
func (g *Generator) BuildPayload(ticket models.Ticket) Payload {
	return Payload{
		TicketID:  ticket.TicketID,
		EventID:   ticket.EventID,
		Signature: signature.Sign(ticket.TicketID, ticket.EventID, ticket.QRNonce, g.secret),
	}
}

// GeneratePNG renders the signed payload as a 256px QR image.
func (g *Generator) GeneratePNG(ticket models.Ticket) ([]byte, error) {
	payload, err := json.Marshal(g.BuildPayload(ticket))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal QR payload: %w", err)
	}
	png, err := qrcode.Encode(string(payload), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	return png, nil
}
