// Package sentinel holds the error vocabulary stores speak. Store and
// infrastructure layers return these, optionally wrapped, and services
// translate them into domain errors at the boundary.
//
// Each sentinel states a fact about a resource, not a judgement about input:
//
//	ErrNotFound     entity does not exist in the store
//	ErrConflict     write lost against a concurrent change
//	ErrExpired      session or token lifetime has passed
//	ErrAlreadyUsed  unique resource (email, entry id) already taken
//	ErrLocked       account is under a lockout
//	ErrInvalidState entity is in the wrong state for the operation
//	ErrUnavailable  backing service is temporarily unreachable
//
// Input validation failures never use these; they go through
// pkg/domain-errors directly.
package sentinel

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrLocked       = errors.New("locked")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
