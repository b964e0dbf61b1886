package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and external-source adapters
// return these (optionally wrapped) so services can translate them into domain
// errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity (record, rate, cache entry) does not exist
// - ErrConflict: optimistic-concurrency check lost against another writer
// - ErrUnavailable: external source failed, timed out, or is circuit-broken
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
