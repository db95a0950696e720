package models

import (
	"time"

	id "lexlink/pkg/domain"
)

// Affirmations are the six declarations a lawyer must make. A record is
// valid only when all six are true.
type Affirmations struct {
	IsLicensed            bool `json:"isLicensed"`
	InGoodStanding        bool `json:"inGoodStanding"`
	NoDisciplinaryHistory bool `json:"noDisciplinaryHistory"`
	ProfileAccurate       bool `json:"profileAccurate"`
	WillUpdateChanges     bool `json:"willUpdateChanges"`
	UnderstandsLiability  bool `json:"understandsLiability"`
}

// All reports whether every affirmation is true.
func (a Affirmations) All() bool {
	return a.IsLicensed &&
		a.InGoodStanding &&
		a.NoDisciplinaryHistory &&
		a.ProfileAccurate &&
		a.WillUpdateChanges &&
		a.UnderstandsLiability
}

// Record is the single attestation held for an owner. Resubmission replaces
// every field except CreatedAt.
type Record struct {
	OwnerID   id.UserID `json:"ownerId"`
	LegalName string    `json:"legalName"`
	BarNumber string    `json:"barNumber"`
	Affirmations
	Verified    bool      `json:"verified"`
	Version     string    `json:"version"`
	SubmittedAt time.Time `json:"submittedAt"`
	IPAddress   string    `json:"ipAddress,omitempty"`
	UserAgent   string    `json:"userAgent,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// IsValid is false for a missing record.
func (r *Record) IsValid() bool {
	return r != nil && r.Affirmations.All()
}

// Submission is a validated attestation payload. BarNumber is upper-cased;
// Version is empty when the caller omitted it.
type Submission struct {
	LegalName    string
	BarNumber    string
	Affirmations Affirmations
	Version      string
}

// SubmitResult is returned by a successful submission.
type SubmitResult struct {
	Success  bool   `json:"success"`
	IsUpdate bool   `json:"isUpdate"`
	Message  string `json:"message"`
}

// Status summarizes the caller's attestation. SubmittedAt and Verified are
// only set when a record exists.
type Status struct {
	IsValid        bool       `json:"isValid"`
	HasAttestation bool       `json:"hasAttestation"`
	SubmittedAt    *time.Time `json:"submittedAt,omitempty"`
	Verified       *bool      `json:"verified,omitempty"`
}

// AuditFilter narrows the caller's attestation audit trail. Limit 0 means
// no limit.
type AuditFilter struct {
	Limit int
	From  *time.Time
	To    *time.Time
}

// ListFilter pages over all records for administrators.
type ListFilter struct {
	Limit    int
	Offset   int
	Verified *bool
}

// ListResult is one page of records, newest submission first.
type ListResult struct {
	Records []*Record `json:"records"`
	Total   int       `json:"total"`
	HasMore bool      `json:"hasMore"`
}
