package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adiswara/karcis/internal/helpers"
	"github.com/adiswara/karcis/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// stubGateway is an in-memory PaymentGateway. Sessions get deterministic
// refs; Confirm answers from the statuses map (default pending); webhooks
// verify against the same HMAC scheme production uses.
type stubGateway struct {
	mu           sync.Mutex
	secret       string
	sessionCalls int
	createErr    error
	confirmErr   error
	lastRequest  *SessionRequest
	statuses     map[string]PaymentStatus
}

func newStubGateway() *stubGateway {
	return &stubGateway{
		secret:   "test-webhook-secret",
		statuses: make(map[string]PaymentStatus),
	}
}

func (g *stubGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.sessionCalls++
	g.lastRequest = &req
	ref := fmt.Sprintf("inv-%03d", g.sessionCalls)
	return &Session{Ref: ref, PaymentURL: "https://pay.test/" + ref}, nil
}

func (g *stubGateway) Confirm(ctx context.Context, ref string) (*ConfirmResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.confirmErr != nil {
		return nil, g.confirmErr
	}
	status, ok := g.statuses[ref]
	if !ok {
		status = PaymentPending
	}
	return &ConfirmResult{Status: status}, nil
}

func (g *stubGateway) VerifyWebhook(payload []byte, signature string) bool {
	return helpers.VerifyWebhookSignature(payload, signature, g.secret)
}

func (g *stubGateway) sign(payload []byte) string {
	return helpers.ComputeWebhookSignature(payload, g.secret)
}

// memIntentRepo keeps intents in a map and emulates the guarded settlement
// transitions, recording the side effects CompleteSettlement would persist.
// Create enforces the gateway_ref unique index the way postgres does: NULLs
// never collide, non-NULL values must be unique.
type memIntentRepo struct {
	mu          sync.Mutex
	intents     map[uuid.UUID]*models.PurchaseIntent
	now         func() time.Time
	inFlightErr error
	coupons     *memCouponRepo

	issuedTickets []*models.IssuedTicket
	ledger        []*models.LoyaltyEntry
	couponsUsed   []uuid.UUID
}

func newMemIntentRepo() *memIntentRepo {
	return &memIntentRepo{
		intents: make(map[uuid.UUID]*models.PurchaseIntent),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *memIntentRepo) Create(ctx context.Context, intent *models.PurchaseIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if intent.ID == uuid.Nil {
		intent.ID = uuid.New()
	}
	if intent.GatewayRef != nil && r.findByRef(*intent.GatewayRef) != nil {
		return fmt.Errorf("duplicate key value violates unique constraint on gateway_ref")
	}
	intent.CreatedAt = r.now()
	intent.UpdatedAt = intent.CreatedAt
	clone := *intent
	r.intents[intent.ID] = &clone
	return nil
}

func (r *memIntentRepo) Update(ctx context.Context, intent *models.PurchaseIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	intent.UpdatedAt = r.now()
	clone := *intent
	r.intents[intent.ID] = &clone
	return nil
}

func (r *memIntentRepo) ByID(ctx context.Context, id uuid.UUID) (*models.PurchaseIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	intent, ok := r.intents[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *intent
	return &clone, nil
}

func (r *memIntentRepo) ByGatewayRef(ctx context.Context, ref string) (*models.PurchaseIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	intent := r.findByRef(ref)
	if intent == nil {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *intent
	return &clone, nil
}

func (r *memIntentRepo) InFlight(ctx context.Context, userID uuid.UUID, signature string) (*models.PurchaseIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlightErr != nil {
		return nil, r.inFlightErr
	}
	for _, intent := range r.intents {
		if intent.UserID == userID && intent.Signature == signature && intent.Status == models.IntentSessionCreated {
			clone := *intent
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memIntentRepo) CompleteSettlement(ctx context.Context, gatewayRef string, effects SettlementEffects) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	intent := r.findByRef(gatewayRef)
	if intent == nil {
		return false, gorm.ErrRecordNotFound
	}
	if intent.Status != models.IntentDraft && intent.Status != models.IntentSessionCreated {
		return false, nil
	}
	intent.Status = models.IntentSucceeded
	settledAt := r.now()
	intent.SettledAt = &settledAt
	r.issuedTickets = append(r.issuedTickets, effects.Tickets...)
	r.ledger = append(r.ledger, effects.LedgerEntries...)
	if effects.CouponID != nil {
		r.couponsUsed = append(r.couponsUsed, *effects.CouponID)
		if r.coupons != nil {
			r.coupons.markUsed(effects.UserID, *effects.CouponID)
		}
	}
	return true, nil
}

func (r *memIntentRepo) MarkFailed(ctx context.Context, gatewayRef string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	intent := r.findByRef(gatewayRef)
	if intent == nil {
		return false, gorm.ErrRecordNotFound
	}
	if intent.Status != models.IntentDraft && intent.Status != models.IntentSessionCreated {
		return false, nil
	}
	intent.Status = models.IntentFailed
	return true, nil
}

func (r *memIntentRepo) AbandonStale(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, intent := range r.intents {
		if intent.Status.Terminal() {
			continue
		}
		if intent.UpdatedAt.Before(before) {
			intent.Status = models.IntentAbandoned
			n++
		}
	}
	return n, nil
}

func (r *memIntentRepo) findByRef(ref string) *models.PurchaseIntent {
	for _, intent := range r.intents {
		if intent.GatewayRef != nil && *intent.GatewayRef == ref {
			return intent
		}
	}
	return nil
}

func (r *memIntentRepo) ticketCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.issuedTickets)
}

type memTicketRepo struct {
	mu      sync.Mutex
	tickets map[uuid.UUID]*models.IssuedTicket
}

func newMemTicketRepo() *memTicketRepo {
	return &memTicketRepo{tickets: make(map[uuid.UUID]*models.IssuedTicket)}
}

func (r *memTicketRepo) add(ticket *models.IssuedTicket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *ticket
	r.tickets[ticket.ID] = &clone
}

func (r *memTicketRepo) ByID(ctx context.Context, id uuid.UUID) (*models.IssuedTicket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *ticket
	return &clone, nil
}

func (r *memTicketRepo) ByIntent(ctx context.Context, intentID uuid.UUID) ([]*models.IssuedTicket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.IssuedTicket
	for _, t := range r.tickets {
		if t.IntentID == intentID {
			clone := *t
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *memTicketRepo) ByUser(ctx context.Context, userID uuid.UUID) ([]*models.IssuedTicket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.IssuedTicket
	for _, t := range r.tickets {
		if t.UserID == userID {
			clone := *t
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *memTicketRepo) SetCredential(ctx context.Context, ticketID uuid.UUID, credentialID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[ticketID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if ticket.CredentialID == nil {
		ticket.CredentialID = &credentialID
	}
	return nil
}

func (r *memTicketRepo) MarkUsed(ctx context.Context, ticketID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[ticketID]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if ticket.IsUsed {
		return false, nil
	}
	ticket.IsUsed = true
	return true, nil
}

type memTierRepo struct {
	tiers  map[uuid.UUID]*models.TicketTier
	issued map[uuid.UUID]int64
}

func newMemTierRepo() *memTierRepo {
	return &memTierRepo{
		tiers:  make(map[uuid.UUID]*models.TicketTier),
		issued: make(map[uuid.UUID]int64),
	}
}

func (r *memTierRepo) add(tier *models.TicketTier) {
	r.tiers[tier.ID] = tier
}

func (r *memTierRepo) ByID(ctx context.Context, id uuid.UUID) (*models.TicketTier, error) {
	tier, ok := r.tiers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return tier, nil
}

func (r *memTierRepo) IssuedCount(ctx context.Context, tierID uuid.UUID) (int64, error) {
	return r.issued[tierID], nil
}

type claimKey struct {
	userID   uuid.UUID
	couponID uuid.UUID
}

type memCouponRepo struct {
	coupons map[string]*models.Coupon
	usage   map[uuid.UUID]int64
	claims  map[claimKey]*models.UserCoupon
}

func newMemCouponRepo() *memCouponRepo {
	return &memCouponRepo{
		coupons: make(map[string]*models.Coupon),
		usage:   make(map[uuid.UUID]int64),
		claims:  make(map[claimKey]*models.UserCoupon),
	}
}

func (r *memCouponRepo) add(coupon *models.Coupon) {
	r.coupons[coupon.Code] = coupon
}

func (r *memCouponRepo) claim(userID uuid.UUID, coupon *models.Coupon) {
	r.claims[claimKey{userID, coupon.ID}] = &models.UserCoupon{
		UserID:   userID,
		CouponID: coupon.ID,
	}
}

// markUsed mirrors settlement's consumption UPDATE: flip the claim and
// advance the usage count.
func (r *memCouponRepo) markUsed(userID, couponID uuid.UUID) {
	claim, ok := r.claims[claimKey{userID, couponID}]
	if !ok || claim.IsUsed {
		return
	}
	claim.IsUsed = true
	r.usage[couponID]++
}

func (r *memCouponRepo) ByCode(ctx context.Context, code string) (*models.Coupon, error) {
	coupon, ok := r.coupons[code]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return coupon, nil
}

func (r *memCouponRepo) UsageCount(ctx context.Context, couponID uuid.UUID) (int64, error) {
	return r.usage[couponID], nil
}

func (r *memCouponRepo) Claim(ctx context.Context, userID, couponID uuid.UUID) (*models.UserCoupon, error) {
	claim, ok := r.claims[claimKey{userID, couponID}]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return claim, nil
}

type memLoyaltyRepo struct {
	mu      sync.Mutex
	entries []*models.LoyaltyEntry
}

func newMemLoyaltyRepo() *memLoyaltyRepo {
	return &memLoyaltyRepo{}
}

func (r *memLoyaltyRepo) add(userID uuid.UUID, points int, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, &models.LoyaltyEntry{
		ID:     uuid.New(),
		UserID: userID,
		Points: points,
		Kind:   kind,
	})
}

func (r *memLoyaltyRepo) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, e := range r.entries {
		if e.UserID == userID {
			total += e.Points
		}
	}
	return total, nil
}

func (r *memLoyaltyRepo) Entries(ctx context.Context, userID uuid.UUID) ([]*models.LoyaltyEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.LoyaltyEntry
	for _, e := range r.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// flakyStore is a CredentialStore whose Fetch fails a configured number of
// times before succeeding, for exercising the retry path.
type flakyStore struct {
	mu           sync.Mutex
	failuresLeft int
	issueErr     error
	issued       map[uuid.UUID]string
	fetchCalls   int
}

func newFlakyStore(failures int) *flakyStore {
	return &flakyStore{
		failuresLeft: failures,
		issued:       make(map[uuid.UUID]string),
	}
}

func (s *flakyStore) Issue(ctx context.Context, ticket *models.IssuedTicket) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.issueErr != nil {
		return "", s.issueErr
	}
	if id, ok := s.issued[ticket.ID]; ok {
		return id, nil
	}
	id := uuid.NewSHA1(ticket.IntentID, []byte(ticket.ID.String())).String()
	s.issued[ticket.ID] = id
	return id, nil
}

func (s *flakyStore) Fetch(ctx context.Context, credentialID string) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchCalls++
	if s.failuresLeft > 0 {
		s.failuresLeft--
		return nil, fmt.Errorf("store temporarily unavailable")
	}
	return &Artifact{
		CredentialID: credentialID,
		MIME:         "image/png",
		Data:         []byte("png-bytes"),
	}, nil
}

// recordingSleeper captures requested delays instead of sleeping.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}
