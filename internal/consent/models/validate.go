package models

import (
	"unicode/utf8"

	id "lexlink/pkg/domain"
	dErrors "lexlink/pkg/domain-errors"
)

const maxReasonLength = 500

// ValidateUpdate checks a partial consent payload. Only supplied grants are
// checked: a required grant present as false fails, and every supplied grant
// must be a JSON boolean. Keys outside the consent fields are ignored.
func ValidateUpdate(payload map[string]any) (Update, error) {
	var (
		update     = Update{Grants: make(map[Type]bool)}
		violations []dErrors.Violation
	)

	for _, t := range AllTypes() {
		raw, present := payload[string(t)]
		if !present || raw == nil {
			continue
		}
		v, ok := raw.(bool)
		if !ok {
			violations = append(violations, dErrors.Violation{Field: string(t), Message: "must be a boolean"})
			continue
		}
		if t.Required() && !v {
			violations = append(violations, dErrors.Violation{Field: string(t), Message: "required consent must be accepted"})
			continue
		}
		update.Grants[t] = v
	}

	if raw, present := payload["version"]; present && raw != nil {
		version, ok := raw.(string)
		if !ok || !id.ValidVersion(version) {
			violations = append(violations, dErrors.Violation{Field: "version", Message: "version must look like 1.0 or 1.0.0"})
		} else {
			update.Version = version
		}
	}

	if len(violations) > 0 {
		return Update{}, dErrors.Validation(violations)
	}
	return update, nil
}

// WithdrawRequest asks to withdraw one or more grants.
type WithdrawRequest struct {
	Types  []string `json:"types"`
	Reason string   `json:"reason,omitempty"`
}

// Normalize trims the request and drops blank types.
func (r *WithdrawRequest) Normalize() {
	sanitize(r)
}

// Validate normalizes the request and checks that every type is known. The
// service audits any required type in the request before calling it, so an
// unknown type alongside a required one is still recorded as blocked.
func (r *WithdrawRequest) Validate() error {
	r.Normalize()

	var violations []dErrors.Violation
	if len(r.Types) == 0 {
		violations = append(violations, dErrors.Violation{Field: "types", Message: "at least one consent type is required"})
	}
	for _, t := range r.Types {
		if !Type(t).IsValid() {
			violations = append(violations, dErrors.Violation{Field: "types", Message: "unknown consent type: " + t})
		}
	}
	if utf8.RuneCountInString(r.Reason) > maxReasonLength {
		violations = append(violations, dErrors.Violation{Field: "reason", Message: "reason must be at most 500 characters"})
	}
	if len(violations) > 0 {
		return dErrors.Validation(violations)
	}
	return nil
}

// AuditReason is the reason capped to the accepted length, safe to record
// before Validate has run.
func (r *WithdrawRequest) AuditReason() string {
	if utf8.RuneCountInString(r.Reason) <= maxReasonLength {
		return r.Reason
	}
	return string([]rune(r.Reason)[:maxReasonLength])
}

// ConsentTypes returns the requested types as given; unknown names are kept
// so callers can detect required types before validation.
func (r *WithdrawRequest) ConsentTypes() []Type {
	out := make([]Type, 0, len(r.Types))
	for _, t := range r.Types {
		out = append(out, Type(t))
	}
	return out
}
