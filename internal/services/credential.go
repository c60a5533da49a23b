package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adiswara/karcis/internal/clock"
	"github.com/google/uuid"
)

// ErrCredentialUnavailable is surfaced once the retry budget is exhausted.
// The wrapped message carries the ticket id for support reference.
var ErrCredentialUnavailable = errors.New("credential: unavailable after retries")

// RetryPolicy bounds credential fetch retries: a hard attempt ceiling and a
// monotonically increasing backoff. Injected so tests drive it with a fake
// sleeper instead of real timers.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, BaseDelay: 500 * time.Millisecond, Multiplier: 2.0}
}

// Delay returns the backoff before the given attempt (attempt 1 has no
// delay).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := float64(p.BaseDelay)
	for i := 2; i < attempt; i++ {
		d *= p.Multiplier
	}
	return time.Duration(d)
}

// CredentialService mediates between tickets and the credential store.
// Issuance is idempotent end to end: a ticket that already carries a
// credential id gets the same artifact back on every call.
type CredentialService struct {
	store   CredentialStore
	tickets TicketRepository
	policy  RetryPolicy
	sleeper clock.Sleeper
}

func NewCredentialService(store CredentialStore, tickets TicketRepository, policy RetryPolicy, sleeper clock.Sleeper) *CredentialService {
	return &CredentialService{
		store:   store,
		tickets: tickets,
		policy:  policy,
		sleeper: sleeper,
	}
}

// Issue obtains (or re-obtains) the credential id for a ticket and records
// it on the ticket row the first time.
func (s *CredentialService) Issue(ctx context.Context, ticketID uuid.UUID) (string, error) {
	ticket, err := s.tickets.ByID(ctx, ticketID)
	if err != nil {
		return "", err
	}
	if ticket.CredentialID != nil {
		return *ticket.CredentialID, nil
	}
	credentialID, err := s.store.Issue(ctx, ticket)
	if err != nil {
		return "", err
	}
	if err := s.tickets.SetCredential(ctx, ticket.ID, credentialID); err != nil {
		return "", err
	}
	return credentialID, nil
}

// Fetch performs a single retrieval attempt.
func (s *CredentialService) Fetch(ctx context.Context, ticketID uuid.UUID) (*Artifact, error) {
	credentialID, err := s.Issue(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return s.store.Fetch(ctx, credentialID)
}

// FetchWithRetry retries transient retrieval failures with exponential
// backoff up to the policy ceiling. onAttempt (optional) receives each
// attempt number so callers can surface progress. Cancelling the context
// stops pending retries immediately.
func (s *CredentialService) FetchWithRetry(ctx context.Context, ticketID uuid.UUID, onAttempt func(attempt int)) (*Artifact, error) {
	var lastErr error
	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		if delay := s.policy.Delay(attempt); delay > 0 {
			if err := s.sleeper.Sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		if onAttempt != nil {
			onAttempt(attempt)
		}
		artifact, err := s.Fetch(ctx, ticketID)
		if err == nil {
			return artifact, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: ticket %s: %v", ErrCredentialUnavailable, ticketID, lastErr)
}
