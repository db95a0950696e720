// Package verification checks a lawyer's bar registration against an
// external registry. Only a stub exists today; results are cached per bar
// number so a real registry client can be dropped in behind CachedVerifier.
package verification

import (
	"context"
	"log/slog"
	"strings"
	"time"

	id "lexlink/pkg/domain"
)

// Request identifies the registration to check.
type Request struct {
	OwnerID   id.UserID
	LegalName string
	BarNumber string
}

// Result is the registry's answer.
type Result struct {
	Verified  bool      `json:"verified"`
	Source    string    `json:"source"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Verifier checks a registration. Errors mean the registry could not answer,
// not that the lawyer is unverified.
type Verifier interface {
	Verify(ctx context.Context, req Request) (Result, error)
}

// StubVerifier accepts every registration.
type StubVerifier struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewStubVerifier(logger *slog.Logger) *StubVerifier {
	return &StubVerifier{logger: logger, now: time.Now}
}

func (v *StubVerifier) Verify(ctx context.Context, req Request) (Result, error) {
	v.logger.InfoContext(ctx, "bar registry integration not implemented, marking as verified",
		"owner_id", req.OwnerID.String(),
		"bar_number", req.BarNumber,
	)
	return Result{Verified: true, Source: "stub", CheckedAt: v.now().UTC()}, nil
}

// cacheKey identifies a registration independent of name casing and spacing.
func cacheKey(req Request) string {
	name := strings.Join(strings.Fields(strings.ToLower(req.LegalName)), " ")
	return strings.ToUpper(req.BarNumber) + "|" + name
}
