package service

import (
	"strings"

	"lexlink/internal/audit"
	"lexlink/internal/consent/models"
	id "lexlink/pkg/domain"
)

var fieldKinds = map[models.Type]struct{ on, off audit.Kind }{
	models.TypeTerms:          {audit.KindTermsAccepted, audit.KindTermsRevoked},
	models.TypePrivacy:        {audit.KindPrivacyAccepted, audit.KindPrivacyRevoked},
	models.TypeDataProcessing: {audit.KindDataProcessingAccepted, audit.KindDataProcessingRevoked},
	models.TypeMarketing:      {audit.KindMarketingOptedIn, audit.KindMarketingOptedOut},
}

// updateEvents diffs the snapshots. previous is nil on a first update and
// then compares against all grants off.
func updateEvents(user id.UserID, previous *models.Record, next models.Record) []audit.Event {
	var before models.Record
	if previous != nil {
		before = *previous
	}

	changes := fieldEvents(user, before, next)
	changed := make([]string, 0, len(changes))
	for _, e := range changes {
		changed = append(changed, e.Metadata["field"].(string))
	}

	coarse := audit.Event{
		OwnerID: user,
		Kind:    audit.KindConsentUpdated,
		Version: next.Version,
		Metadata: map[string]any{
			"changedFields": changed,
			"firstConsent":  previous == nil,
			"new":           snapshot(next),
		},
	}
	if previous != nil {
		coarse.Metadata["previous"] = snapshot(*previous)
		coarse.Metadata["previousVersion"] = previous.Version
	}
	return append([]audit.Event{coarse}, changes...)
}

func withdrawalEvents(user id.UserID, previous, next models.Record, types []models.Type, reason string) []audit.Event {
	withdrawn := audit.Event{
		OwnerID: user,
		Kind:    audit.KindConsentWithdrawn,
		Version: next.Version,
		Metadata: map[string]any{
			"types":    typeNames(types),
			"previous": snapshot(previous),
			"new":      snapshot(next),
		},
	}
	if reason != "" {
		withdrawn.Metadata["reason"] = reason
	}
	return append([]audit.Event{withdrawn}, fieldEvents(user, previous, next)...)
}

// fieldEvents emits one event per grant whose value differs, in a stable
// order. Unchanged grants emit nothing.
func fieldEvents(user id.UserID, before, after models.Record) []audit.Event {
	var events []audit.Event
	for _, t := range models.AllTypes() {
		was, now := before.Granted(t), after.Granted(t)
		if was == now {
			continue
		}
		kind := fieldKinds[t].off
		if now {
			kind = fieldKinds[t].on
		}
		events = append(events, audit.Event{
			OwnerID: user,
			Kind:    kind,
			Version: after.Version,
			Metadata: map[string]any{
				"field":         string(t),
				"previousValue": was,
				"newValue":      now,
			},
		})
	}
	return events
}

func snapshot(r models.Record) map[string]any {
	return map[string]any{
		"terms":          r.Terms,
		"privacy":        r.Privacy,
		"dataProcessing": r.DataProcessing,
		"marketing":      r.Marketing,
	}
}

func requiredTypes(types []models.Type) []models.Type {
	var out []models.Type
	for _, t := range types {
		if t.Required() {
			out = append(out, t)
		}
	}
	return out
}

func typeNames(types []models.Type) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func joinTypes(types []models.Type) string {
	return strings.Join(typeNames(types), ", ")
}
