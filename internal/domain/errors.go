// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates the request collides with existing state
// (duplicate membership, second default provider config, slug already taken).
var ErrConflict = errors.New("conflict")

// ErrValidation indicates the request payload failed validation.
var ErrValidation = errors.New("validation failed")

// ErrUnauthenticated indicates a missing or unverifiable credential.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrForbidden indicates an authenticated caller without sufficient role or scope.
var ErrForbidden = errors.New("forbidden")

// Session token failures. Both unwrap to ErrUnauthenticated.
var (
	ErrTokenExpired = wrap("token expired", ErrUnauthenticated)
	ErrTokenInvalid = wrap("token invalid", ErrUnauthenticated)
)

// API key failures. All unwrap to ErrUnauthenticated.
var (
	ErrKeyNotFound = wrap("api key not found", ErrUnauthenticated)
	ErrKeyRevoked  = wrap("api key revoked", ErrUnauthenticated)
	ErrKeyExpired  = wrap("api key expired", ErrUnauthenticated)
)

// Membership lifecycle failures.
var (
	// ErrAlreadyAccepted is returned on a second acceptance of the same
	// invitation. The first acceptance stands; no duplicate membership is created.
	ErrAlreadyAccepted = wrap("invitation already accepted", ErrConflict)

	// ErrInvitationExpired is returned when accepting past the invitation deadline.
	ErrInvitationExpired = errors.New("invitation expired")

	// ErrLastOwnerProtected is returned when removing or demoting the sole
	// owner of a project.
	ErrLastOwnerProtected = errors.New("cannot remove the last owner of a project")
)

// ErrPoolExhausted is returned when the instance pool is at capacity and every
// entry is pinned by in-flight work. Transient; callers should retry with backoff.
var ErrPoolExhausted = errors.New("instance pool exhausted")

// wrap builds a sentinel that carries its own message and unwraps to base,
// so errors.Is matches either.
func wrap(msg string, base error) error {
	return joinedError{msg: msg, base: base}
}

type joinedError struct {
	msg  string
	base error
}

func (e joinedError) Error() string { return e.msg }
func (e joinedError) Unwrap() error { return e.base }
