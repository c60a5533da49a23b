package services

import (
	"context"
	"testing"

	"github.com/adiswara/karcis/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreIssueIsDeterministic(t *testing.T) {
	store, err := NewLocalCredentialStore(t.TempDir(), "credential-secret")
	require.NoError(t, err)

	ticket := &models.IssuedTicket{
		ID:       uuid.New(),
		IntentID: uuid.New(),
		EventID:  uuid.New(),
		UserID:   uuid.New(),
	}

	first, err := store.Issue(context.Background(), ticket)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := store.Issue(context.Background(), ticket)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other := &models.IssuedTicket{
		ID:       uuid.New(),
		IntentID: ticket.IntentID,
		EventID:  ticket.EventID,
		UserID:   ticket.UserID,
	}
	otherID, err := store.Issue(context.Background(), other)
	require.NoError(t, err)
	assert.NotEqual(t, first, otherID)
}

func TestLocalStoreFetchReturnsRenderedArtifact(t *testing.T) {
	store, err := NewLocalCredentialStore(t.TempDir(), "credential-secret")
	require.NoError(t, err)

	ticket := &models.IssuedTicket{
		ID:       uuid.New(),
		IntentID: uuid.New(),
		EventID:  uuid.New(),
		UserID:   uuid.New(),
	}
	credentialID, err := store.Issue(context.Background(), ticket)
	require.NoError(t, err)

	artifact, err := store.Fetch(context.Background(), credentialID)
	require.NoError(t, err)
	assert.Equal(t, credentialID, artifact.CredentialID)
	assert.Equal(t, "image/png", artifact.MIME)
	// PNG magic bytes from the QR encoder.
	require.Greater(t, len(artifact.Data), 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, artifact.Data[:4])
}

func TestLocalStoreFetchUnknownCredential(t *testing.T) {
	store, err := NewLocalCredentialStore(t.TempDir(), "credential-secret")
	require.NoError(t, err)

	_, err = store.Fetch(context.Background(), uuid.New().String())
	assert.Error(t, err)
}
