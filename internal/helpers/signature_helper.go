package helpers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ComputeWebhookSignature returns the hex HMAC-SHA256 of a webhook payload
// under the shared gateway secret.
func ComputeWebhookSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks a gateway notification's signature header
// in constant time.
func VerifyWebhookSignature(payload []byte, signature, secret string) bool {
	expected := ComputeWebhookSignature(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SignCredentialPayload signs the fields embedded in a ticket QR code.
func SignCredentialPayload(ticketID, intentID, userID uuid.UUID, secret string) string {
	data := fmt.Sprintf("%s:%s:%s", ticketID.String(), intentID.String(), userID.String())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// EncodeCredentialPayload builds the plaintext carried inside a QR code.
func EncodeCredentialPayload(ticketID, intentID, eventID, userID uuid.UUID, secret string) string {
	signature := SignCredentialPayload(ticketID, intentID, userID, secret)
	return fmt.Sprintf("ticket:%s;intent:%s;event:%s;signature:%s",
		ticketID.String(),
		intentID.String(),
		eventID.String(),
		signature,
	)
}

// DecodeCredentialPayload extracts the ticket id from scanned QR data.
func DecodeCredentialPayload(qrData string) (uuid.UUID, error) {
	parts := strings.Split(qrData, ";")
	if len(parts) != 4 || !strings.HasPrefix(parts[0], "ticket:") || !strings.HasPrefix(parts[3], "signature:") {
		return uuid.Nil, fmt.Errorf("invalid QR data format")
	}
	return uuid.Parse(strings.TrimPrefix(parts[0], "ticket:"))
}

// VerifyCredentialPayload checks the embedded signature against the ticket's
// identity fields.
func VerifyCredentialPayload(qrData string, ticketID, intentID, userID uuid.UUID, secret string) bool {
	parts := strings.Split(qrData, ";")
	if len(parts) != 4 || !strings.HasPrefix(parts[3], "signature:") {
		return false
	}
	signature := strings.TrimPrefix(parts[3], "signature:")
	expected := SignCredentialPayload(ticketID, intentID, userID, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
