package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"
)

const testSecret = "whsec_test_secret"

func signedHeader(body []byte, secret string, ts time.Time) http.Header {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts.Unix(), body)))
	header := http.Header{}
	header.Set(StripeSignatureHeader, fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil))))
	return header
}

func eventBody(id, eventType string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"created":1700000000,"livemode":false,"api_version":"2024-06-20","data":{"object":{"id":"pi_123","object":"payment_intent","amount":2000,"currency":"usd","customer":"cus_1","metadata":{"order":"42"}}}}`, id, eventType))
}

func newTestVerifier(t *testing.T) *StripeVerifier {
	t.Helper()
	v, err := NewStripeVerifier(testSecret, 300*time.Second)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v
}

type deliveryRow struct {
	outcome   string
	failure   Failure
	attempts  int
	claimedAt time.Time
}

// memoryClaimStore mirrors the DeliveryRecord transitions behind a mutex.
type memoryClaimStore struct {
	mu        sync.Mutex
	rows      map[string]*deliveryRow
	claimErr  error
	tryCalls  int
	markCtxOK []bool
}

func newMemoryClaimStore() *memoryClaimStore {
	return &memoryClaimStore{rows: make(map[string]*deliveryRow)}
}

func (m *memoryClaimStore) TryClaim(ctx context.Context, claim Claim) (ClaimOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tryCalls++
	if m.claimErr != nil {
		return 0, m.claimErr
	}
	key := claim.Provider + "|" + claim.EventID
	row, ok := m.rows[key]
	switch {
	case !ok:
		m.rows[key] = &deliveryRow{outcome: "in_progress", attempts: 1, claimedAt: claim.ClaimedAt}
		return Claimed, nil
	case row.outcome == "success":
		return AlreadySucceeded, nil
	case row.outcome == "failed":
		row.outcome = "in_progress"
		row.attempts++
		row.claimedAt = claim.ClaimedAt
		return Claimed, nil
	default:
		return InProgressElsewhere, nil
	}
}

func (m *memoryClaimStore) MarkSucceeded(ctx context.Context, claim Claim) error {
	return m.complete(ctx, claim, "success", Failure{})
}

func (m *memoryClaimStore) MarkFailed(ctx context.Context, claim Claim, failure Failure) error {
	return m.complete(ctx, claim, "failed", failure)
}

func (m *memoryClaimStore) complete(ctx context.Context, claim Claim, outcome string, failure Failure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markCtxOK = append(m.markCtxOK, ctx.Err() == nil)
	row, ok := m.rows[claim.Provider+"|"+claim.EventID]
	if !ok {
		return errors.New("no such delivery")
	}
	if row.outcome != "in_progress" || !row.claimedAt.Equal(claim.ClaimedAt) {
		return ErrClaimLost
	}
	row.outcome = outcome
	row.failure = failure
	return nil
}

func (m *memoryClaimStore) row(provider, eventID string) (deliveryRow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[provider+"|"+eventID]
	if !ok {
		return deliveryRow{}, false
	}
	return *row, true
}

type countingHandler struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, event *VerifiedEvent) error
}

func (h *countingHandler) Handle(ctx context.Context, event *VerifiedEvent) error {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	if h.fn != nil {
		return h.fn(ctx, event)
	}
	return nil
}

func (h *countingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}
