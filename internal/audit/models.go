package audit

import (
	"time"

	id "lexlink/pkg/domain"
	dErrors "lexlink/pkg/domain-errors"
)

// Kind enumerates the compliance actions recorded in the ledger.
type Kind string

const (
	KindAttestationSubmitted Kind = "attestation_submitted"
	KindAttestationUpdated   Kind = "attestation_updated"
	KindAttestationAccessed  Kind = "attestation_accessed"

	KindConsentUpdated            Kind = "consent_updated"
	KindConsentWithdrawn          Kind = "consent_withdrawn"
	KindBlockedRequiredWithdrawal Kind = "blocked_required_consent_withdrawal"
	KindTermsAccepted             Kind = "terms_accepted"
	KindTermsRevoked              Kind = "terms_revoked"
	KindPrivacyAccepted           Kind = "privacy_accepted"
	KindPrivacyRevoked            Kind = "privacy_revoked"
	KindDataProcessingAccepted    Kind = "data_processing_accepted"
	KindDataProcessingRevoked     Kind = "data_processing_revoked"
	KindMarketingOptedIn          Kind = "marketing_opted_in"
	KindMarketingOptedOut         Kind = "marketing_opted_out"
)

var attestationKinds = []Kind{
	KindAttestationSubmitted,
	KindAttestationUpdated,
	KindAttestationAccessed,
}

var consentKinds = []Kind{
	KindConsentUpdated,
	KindConsentWithdrawn,
	KindBlockedRequiredWithdrawal,
	KindTermsAccepted,
	KindTermsRevoked,
	KindPrivacyAccepted,
	KindPrivacyRevoked,
	KindDataProcessingAccepted,
	KindDataProcessingRevoked,
	KindMarketingOptedIn,
	KindMarketingOptedOut,
}

// AttestationKinds returns the kinds shown in an attestation audit trail.
func AttestationKinds() []Kind {
	return append([]Kind(nil), attestationKinds...)
}

// ConsentKinds returns the kinds shown in a consent audit trail.
func ConsentKinds() []Kind {
	return append([]Kind(nil), consentKinds...)
}

// ParseConsentKind validates a consent event type filter.
func ParseConsentKind(s string) (Kind, error) {
	for _, k := range consentKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", dErrors.New(dErrors.CodeBadRequest, "unknown consent event type: "+s)
}

// Event is one immutable ledger entry. ActorID is set when someone other
// than the owner caused the event.
type Event struct {
	ID        id.EventID     `json:"id"`
	OwnerID   id.UserID      `json:"ownerId"`
	Kind      Kind           `json:"kind"`
	Version   string         `json:"version,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	IP        string         `json:"ipAddress,omitempty"`
	UserAgent string         `json:"userAgent,omitempty"`
	ActorID   id.UserID      `json:"actorId,omitzero"`
	RequestID string         `json:"requestId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Query selects an owner's events. Empty Kinds means all kinds; nil bounds
// are open; Limit <= 0 means no limit. Results are newest first and the
// limit applies after sorting.
type Query struct {
	OwnerID id.UserID
	Kinds   []Kind
	From    *time.Time
	To      *time.Time
	Limit   int
}

// Matches reports whether e satisfies the query's filters (ignoring Limit).
func (q Query) Matches(e Event) bool {
	if e.OwnerID != q.OwnerID {
		return false
	}
	if len(q.Kinds) > 0 {
		found := false
		for _, k := range q.Kinds {
			if k == e.Kind {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.From != nil && e.Timestamp.Before(*q.From) {
		return false
	}
	if q.To != nil && e.Timestamp.After(*q.To) {
		return false
	}
	return true
}
