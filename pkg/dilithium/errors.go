package dilithium

import (
	"errors"
	"fmt"
)

var (
	// ErrAllocation indicates the foreign allocator could not provide a region.
	// No foreign computation has run when it is returned.
	ErrAllocation = errors.New("dilithium: foreign allocation failed")

	// ErrGeneration indicates the foreign key generation reported failure.
	ErrGeneration = errors.New("dilithium: key generation failed")

	// ErrSigning indicates the foreign signing operation reported failure.
	ErrSigning = errors.New("dilithium: signing failed")

	// ErrSignatureLength indicates the foreign module reported a signature
	// longer than the parameter set allows.
	ErrSignatureLength = errors.New("dilithium: signature length exceeds maximum")

	// ErrMemoryAccess indicates a read or write fell outside foreign memory.
	ErrMemoryAccess = errors.New("dilithium: foreign memory access out of range")

	// ErrForeignCall indicates a foreign export trapped or returned no result.
	ErrForeignCall = errors.New("dilithium: foreign call failed")

	// ErrRelease indicates freeing one or more foreign regions failed.
	ErrRelease = errors.New("dilithium: releasing foreign memory failed")

	// ErrInvalidHandle indicates a key handle that is unknown to the engine,
	// already released, issued by another engine, or of the wrong role.
	ErrInvalidHandle = errors.New("dilithium: invalid key handle")

	// ErrEngineClosed indicates the engine has been closed.
	ErrEngineClosed = errors.New("dilithium: engine closed")

	// ErrNilForeign indicates Open was called without a foreign module.
	ErrNilForeign = errors.New("dilithium: foreign module must not be nil")

	// ErrParamsMismatch indicates the configured parameter set differs from the
	// one the foreign module implements.
	ErrParamsMismatch = errors.New("dilithium: parameter set does not match foreign module")

	// ErrUnknownParams indicates an unsupported or malformed parameter set.
	ErrUnknownParams = errors.New("dilithium: unknown parameter set")

	// ErrTooLarge indicates an input that does not fit a 32-bit foreign length.
	ErrTooLarge = errors.New("dilithium: input exceeds 32-bit foreign address space")
)

// Error wraps an underlying error with the operation that failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("dilithium.%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AllocationError reports which region of which operation could not be
// allocated. All regions allocated earlier in the same call have already been
// released when it is returned.
type AllocationError struct {
	Op     string
	Region string
	Size   uint32
	// Err is set when the allocator trapped instead of returning zero.
	Err error
}

func (e *AllocationError) Error() string {
	msg := fmt.Sprintf("dilithium.%s: allocating %d-byte %s region failed", e.Op, e.Size, e.Region)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AllocationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrAllocation, e.Err}
	}
	return []error{ErrAllocation}
}

// GenerationError reports a failed foreign key generation. Both key regions
// have been released when it is returned.
type GenerationError struct {
	Status int32
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dilithium.keypair: %v", e.Err)
	}
	return fmt.Sprintf("dilithium.keypair: foreign status %d", e.Status)
}

func (e *GenerationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrGeneration, e.Err}
	}
	return []error{ErrGeneration}
}

// SigningError reports a failed foreign signing call. All signing scratch
// regions have been released when it is returned.
type SigningError struct {
	Status int32
	Err    error
}

func (e *SigningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dilithium.sign: %v", e.Err)
	}
	return fmt.Sprintf("dilithium.sign: foreign status %d", e.Status)
}

func (e *SigningError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrSigning, e.Err}
	}
	return []error{ErrSigning}
}

// wrapForeign remaps an error returned by a foreign export.
func wrapForeign(export string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrForeignCall, export, err)
}
