package core

import (
	"errors"
	"fmt"
)

var (
	// Creation-time failures.
	ErrTargetNotFound      = errors.New("target not found")
	ErrInvalidTargetField  = errors.New("field does not exist on target")
	ErrMissingValueContent = errors.New("value qr has no content")
	ErrUnknownTemplate     = errors.New("unknown template")
	ErrForbidden           = errors.New("not permitted to generate qr codes for this target type")
	ErrInvalidInput        = errors.New("invalid input")
	ErrConflict            = errors.New("token already exists")

	// Resolution-time failures.
	ErrNotFound         = errors.New("qr link not found")
	ErrMissingReference = errors.New("missing token or document reference")
	ErrExpired          = errors.New("qr link is no longer valid")
	ErrAlreadyRevoked   = errors.New("qr link is already revoked")
	ErrInternal         = errors.New("internal error")
)

// IsNotFound reports whether err is a not-found condition.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err indicates a uniqueness conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsExpired reports whether err indicates an invalid (expired, revoked or inactive) link.
func IsExpired(err error) bool { return errors.Is(err, ErrExpired) }

// IsMissingReference reports whether a scan carried no usable reference.
func IsMissingReference(err error) bool { return errors.Is(err, ErrMissingReference) }

// IsAlreadyRevoked reports whether a revoke hit an already revoked link.
func IsAlreadyRevoked(err error) bool { return errors.Is(err, ErrAlreadyRevoked) }

// IsCreation reports whether err is a typed creation-time failure that can be
// shown to the caller.
func IsCreation(err error) bool {
	for _, target := range []error{
		ErrTargetNotFound, ErrInvalidTargetField, ErrMissingValueContent,
		ErrUnknownTemplate, ErrInvalidInput,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// LinkStateError reports a link that exists but may not be resolved in its
// current status. It matches ErrExpired.
type LinkStateError struct {
	Status Status
}

func (e *LinkStateError) Error() string {
	return fmt.Sprintf("%s: status %s", ErrExpired, e.Status)
}

func (e *LinkStateError) Unwrap() error { return ErrExpired }
