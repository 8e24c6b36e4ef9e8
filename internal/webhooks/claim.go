package webhooks

import (
	"context"
	"errors"
	"time"
)

// ClaimOutcome is the answer of an atomic claim attempt.
type ClaimOutcome int

const (
	Claimed ClaimOutcome = iota + 1
	AlreadySucceeded
	InProgressElsewhere
)

func (c ClaimOutcome) String() string {
	switch c {
	case Claimed:
		return "claimed"
	case AlreadySucceeded:
		return "already_succeeded"
	case InProgressElsewhere:
		return "in_progress_elsewhere"
	default:
		return "unknown"
	}
}

// Failure describes why a claimed delivery did not succeed.
type Failure struct {
	Reason string
	Fatal  bool
}

// Claim identifies one delivery attempt. ClaimedAt doubles as the fencing
// token: a transition only lands while the record still carries it.
type Claim struct {
	Provider  string
	EventID   string
	EventType string
	ClaimedAt time.Time
}

// ErrClaimLost reports a transition attempted by a claimant whose lease was
// taken over, or whose record was already completed.
var ErrClaimLost = errors.New("delivery claim no longer held")

// ClaimStore is the durable DeliveryRecord store. TryClaim must be a single
// atomic check-and-set in the backing engine: concurrent calls for the same
// event yield exactly one Claimed.
type ClaimStore interface {
	TryClaim(ctx context.Context, claim Claim) (ClaimOutcome, error)
	MarkSucceeded(ctx context.Context, claim Claim) error
	MarkFailed(ctx context.Context, claim Claim, failure Failure) error
}
