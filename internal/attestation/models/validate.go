package models

import (
	"regexp"
	"strings"
	"unicode/utf8"

	id "lexlink/pkg/domain"
	dErrors "lexlink/pkg/domain-errors"
)

var barNumberPattern = regexp.MustCompile(`^[A-Z0-9]{4,10}$`)

const maxLegalNameLength = 200

type affirmationField struct {
	key   string
	label string
	set   func(*Affirmations)
}

var affirmationFields = []affirmationField{
	{"isLicensed", "licensed to practice", func(a *Affirmations) { a.IsLicensed = true }},
	{"inGoodStanding", "in good standing", func(a *Affirmations) { a.InGoodStanding = true }},
	{"noDisciplinaryHistory", "no disciplinary history", func(a *Affirmations) { a.NoDisciplinaryHistory = true }},
	{"profileAccurate", "profile accurate", func(a *Affirmations) { a.ProfileAccurate = true }},
	{"willUpdateChanges", "will report changes", func(a *Affirmations) { a.WillUpdateChanges = true }},
	{"understandsLiability", "understands liability", func(a *Affirmations) { a.UnderstandsLiability = true }},
}

// ValidateSubmission checks an untyped attestation payload and reports every
// violated rule at once. Affirmations must be the JSON literal true; "true",
// 1 or a missing key all fail.
func ValidateSubmission(payload map[string]any) (Submission, error) {
	var (
		sub        Submission
		violations []dErrors.Violation
	)

	name, _ := payload["legalName"].(string)
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		violations = append(violations, dErrors.Violation{Field: "legalName", Message: "legal name is required"})
	case utf8.RuneCountInString(name) > maxLegalNameLength:
		violations = append(violations, dErrors.Violation{Field: "legalName", Message: "legal name must be at most 200 characters"})
	default:
		sub.LegalName = name
	}

	bar, _ := payload["barNumber"].(string)
	bar = strings.ToUpper(strings.TrimSpace(bar))
	switch {
	case bar == "":
		violations = append(violations, dErrors.Violation{Field: "barNumber", Message: "bar number is required"})
	case !barNumberPattern.MatchString(bar):
		violations = append(violations, dErrors.Violation{Field: "barNumber", Message: "bar number must be 4-10 letters or digits"})
	default:
		sub.BarNumber = bar
	}

	for _, f := range affirmationFields {
		if v, ok := payload[f.key].(bool); ok && v {
			f.set(&sub.Affirmations)
			continue
		}
		violations = append(violations, dErrors.Violation{Field: f.key, Message: "must be affirmed (" + f.label + ")"})
	}

	if raw, present := payload["version"]; present && raw != nil {
		version, ok := raw.(string)
		if !ok || !id.ValidVersion(version) {
			violations = append(violations, dErrors.Violation{Field: "version", Message: "version must look like 1.0 or 1.0.0"})
		} else {
			sub.Version = version
		}
	}

	if len(violations) > 0 {
		return Submission{}, dErrors.Validation(violations)
	}
	return sub, nil
}
