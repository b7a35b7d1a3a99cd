package domain

import (
	"encoding/json"
	"time"
)

// EntitlementStatus is the account-level access tier.
type EntitlementStatus string

const (
	EntitlementFree         EntitlementStatus = "free"
	EntitlementPremium      EntitlementStatus = "premium"
	EntitlementExpired      EntitlementStatus = "expired"
	EntitlementCancelled    EntitlementStatus = "cancelled"
	EntitlementBillingIssue EntitlementStatus = "billing_issue"
)

// GrantsPremium reports whether the status gives premium access. A billing issue
// keeps premium during the provider's grace period.
func (s EntitlementStatus) GrantsPremium() bool {
	return s == EntitlementPremium || s == EntitlementBillingIssue
}

// BillingEventType is the provider event type (RevenueCat naming).
type BillingEventType string

const (
	BillingInitialPurchase     BillingEventType = "INITIAL_PURCHASE"
	BillingRenewal             BillingEventType = "RENEWAL"
	BillingNonRenewingPurchase BillingEventType = "NON_RENEWING_PURCHASE"
	BillingProductChange       BillingEventType = "PRODUCT_CHANGE"
	BillingUncancellation      BillingEventType = "UNCANCELLATION"
	BillingCancellation        BillingEventType = "CANCELLATION"
	BillingExpiration          BillingEventType = "EXPIRATION"
	BillingIssue               BillingEventType = "BILLING_ISSUE"
)

// BillingEvent is the validated, parsed provider event.
type BillingEvent struct {
	ID             string
	Type           BillingEventType
	SubjectID      string
	EntitlementIDs []string
	OccurredAt     time.Time
	Payload        json.RawMessage
}

// DeriveEntitlement maps an event to the target entitlement. The second result is
// false when the event carries no entitlement change.
func DeriveEntitlement(eventType BillingEventType, entitlementIDs []string) (EntitlementStatus, bool) {
	hasEntitlements := len(entitlementIDs) > 0
	switch eventType {
	case BillingInitialPurchase, BillingRenewal, BillingNonRenewingPurchase, BillingProductChange, BillingUncancellation:
		if hasEntitlements {
			return EntitlementPremium, true
		}
		return "", false
	case BillingExpiration:
		return EntitlementExpired, true
	case BillingCancellation:
		return EntitlementCancelled, true
	case BillingIssue:
		if hasEntitlements {
			return EntitlementBillingIssue, true
		}
		return EntitlementFree, true
	default:
		return "", false
	}
}

// WebhookEventRecord is one row of the event ledger.
type WebhookEventRecord struct {
	EventID               string          `db:"event_id"`
	EventType             string          `db:"event_type"`
	SubjectID             string          `db:"subject_id"`
	ProcessedSuccessfully bool            `db:"processed_successfully"`
	Payload               json.RawMessage `db:"payload"`
	ErrorMessage          *string         `db:"error_message"`
	Attempts              int             `db:"attempts"`
	ClaimedUntil          *time.Time      `db:"claimed_until"`
	CreatedAt             time.Time       `db:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at"`
}

// ClaimOutcome is the result of atomically recording an event id in the ledger.
type ClaimOutcome int

const (
	// ClaimAcquired: this delivery owns processing of the event.
	ClaimAcquired ClaimOutcome = iota
	// ClaimAlreadyProcessed: the event was applied earlier.
	ClaimAlreadyProcessed
	// ClaimInFlight: another delivery holds an unexpired claim.
	ClaimInFlight
)

func (o ClaimOutcome) String() string {
	switch o {
	case ClaimAcquired:
		return "acquired"
	case ClaimAlreadyProcessed:
		return "already_processed"
	case ClaimInFlight:
		return "in_flight"
	}
	return "unknown"
}
