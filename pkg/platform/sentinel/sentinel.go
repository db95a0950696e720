package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped)
// and services translate them into domain errors:
//   - ErrNotFound: no record exists for the requested owner
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrImmutable: an append-only record was targeted by a mutation
//   - ErrUnavailable: backing store or cache cannot be reached
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrImmutable   = errors.New("immutable record")
	ErrUnavailable = errors.New("unavailable")
)
