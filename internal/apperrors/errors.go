// Package apperrors defines the sentinel errors shared by the services.
// Handlers translate them into HTTP responses with errors.Is, so services
// can wrap them with fmt.Errorf("%w: ...") and keep the user-facing
// message specific. Anything that does not match a sentinel is treated as
// an internal error: logged with context, surfaced generically.
package apperrors

import "errors"

// ErrNotFound is returned when a referenced listing, reservation or order
// does not exist. Maps to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller is not authorized for the
// requested transition: wrong party, or a self-dealing attempt. Maps to
// HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when the entity is not in a state that permits
// the requested transition: status mismatch, a lost race on a listing,
// price drift, duplicate active reservation. Expected under concurrent
// load, not a bug. Maps to HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrBadRequest is returned for structurally invalid input, such as an
// empty line list or a non-positive total. Maps to HTTP 400.
var ErrBadRequest = errors.New("bad request")
