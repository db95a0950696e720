package models

import (
	"time"
)

// Type names one consent grant as it appears on the wire.
type Type string

const (
	TypeTerms          Type = "terms"
	TypePrivacy        Type = "privacy"
	TypeDataProcessing Type = "dataProcessing"
	TypeMarketing      Type = "marketing"
)

// AllTypes lists every grant in a stable order.
func AllTypes() []Type {
	return []Type{TypeTerms, TypePrivacy, TypeDataProcessing, TypeMarketing}
}

// Required reports whether the grant is mandatory for using the platform.
// Required grants can never be withdrawn.
func (t Type) Required() bool {
	return t == TypeTerms || t == TypePrivacy || t == TypeDataProcessing
}

func (t Type) IsValid() bool {
	switch t {
	case TypeTerms, TypePrivacy, TypeDataProcessing, TypeMarketing:
		return true
	}
	return false
}

// Record is the consent snapshot embedded on a user.
type Record struct {
	Terms          bool      `json:"terms"`
	Privacy        bool      `json:"privacy"`
	DataProcessing bool      `json:"dataProcessing"`
	Marketing      bool      `json:"marketing"`
	Version        string    `json:"version"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// IsValid is true when all required grants are given. A nil record is invalid.
func (r *Record) IsValid() bool {
	return r != nil && r.Terms && r.Privacy && r.DataProcessing
}

// Granted returns the value of one grant.
func (r Record) Granted(t Type) bool {
	switch t {
	case TypeTerms:
		return r.Terms
	case TypePrivacy:
		return r.Privacy
	case TypeDataProcessing:
		return r.DataProcessing
	case TypeMarketing:
		return r.Marketing
	}
	return false
}

func (r *Record) set(t Type, v bool) {
	switch t {
	case TypeTerms:
		r.Terms = v
	case TypePrivacy:
		r.Privacy = v
	case TypeDataProcessing:
		r.DataProcessing = v
	case TypeMarketing:
		r.Marketing = v
	}
}

// Update is a validated partial consent change. Nil fields are left as is.
type Update struct {
	Grants  map[Type]bool
	Version string
}

// Apply returns base with the supplied grants overwritten.
func (u Update) Apply(base Record) Record {
	for t, v := range u.Grants {
		base.set(t, v)
	}
	return base
}

// Status summarizes the caller's consent.
type Status struct {
	IsValid    bool       `json:"isValid"`
	HasConsent bool       `json:"hasConsent"`
	Version    string     `json:"version,omitempty"`
	UpdatedAt  *time.Time `json:"updatedAt,omitempty"`
}

// AuditFilter narrows the consent audit log. EventType is one consent event
// kind, empty for all of them.
type AuditFilter struct {
	Limit     int
	EventType string
	From      *time.Time
	To        *time.Time
}
