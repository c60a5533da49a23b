package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adiswara/karcis/internal/helpers"
	"github.com/adiswara/karcis/internal/models"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

const qrImageSize = 256

// LocalCredentialStore renders signed QR artifacts to disk. The credential
// id is derived deterministically from the ticket id, so repeated Issue
// calls converge on the same artifact instead of regenerating it.
type LocalCredentialStore struct {
	dir    string
	secret string
}

func NewLocalCredentialStore(dir, secret string) (*LocalCredentialStore, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create credential dir: %w", err)
	}
	return &LocalCredentialStore{dir: dir, secret: secret}, nil
}

func (s *LocalCredentialStore) path(credentialID string) string {
	return filepath.Join(s.dir, credentialID+".png")
}

func (s *LocalCredentialStore) Issue(ctx context.Context, ticket *models.IssuedTicket) (string, error) {
	credentialID := uuid.NewSHA1(ticket.IntentID, []byte(ticket.ID.String())).String()

	fullPath := s.path(credentialID)
	if _, err := os.Stat(fullPath); err == nil {
		return credentialID, nil
	}

	payload := helpers.EncodeCredentialPayload(ticket.ID, ticket.IntentID, ticket.EventID, ticket.UserID, s.secret)
	image, err := qrcode.Encode(payload, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", fmt.Errorf("failed to render QR code: %w", err)
	}
	if err := os.WriteFile(fullPath, image, 0o644); err != nil {
		return "", fmt.Errorf("failed to store credential artifact: %w", err)
	}
	return credentialID, nil
}

func (s *LocalCredentialStore) Fetch(ctx context.Context, credentialID string) (*Artifact, error) {
	data, err := os.ReadFile(s.path(credentialID))
	if err != nil {
		return nil, fmt.Errorf("failed to read credential artifact: %w", err)
	}
	return &Artifact{
		CredentialID: credentialID,
		MIME:         "image/png",
		Data:         data,
	}, nil
}
