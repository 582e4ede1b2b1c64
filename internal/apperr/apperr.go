// Package apperr defines the error taxonomy shared across the service.
//
// Every failure surfaced to a caller belongs to exactly one category,
// checked with errors.Is:
//
//	ErrValidation   - missing or malformed input, client-correctable
//	ErrNotFound     - unknown portrait, conversation, or chunk
//	ErrUnauthorized - no usable credential presented
//	ErrForbidden    - authenticated but lacking tier or admin rights
//	ErrProvider     - embedding or completion service unreachable or erroring
//	ErrStorage      - persistence failure
//
// Components wrap with fmt.Errorf("%w: ...", apperr.ErrXxx) so HTTP handlers
// can map categories to status codes in a single place.
package apperr

import "errors"

var (
	// ErrValidation indicates required input is missing or malformed.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates the referenced resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the request carried no valid credential.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the principal lacks the required tier or role.
	ErrForbidden = errors.New("forbidden")

	// ErrProvider indicates an external AI provider call failed.
	ErrProvider = errors.New("provider error")

	// ErrStorage indicates a persistence operation failed.
	ErrStorage = errors.New("storage error")
)
