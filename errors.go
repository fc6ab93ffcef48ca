package rnaget

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/hupe1980/rnaget/internal/encoding"
	"github.com/hupe1980/rnaget/internal/index"
	"github.com/hupe1980/rnaget/internal/matrix"
	"github.com/hupe1980/rnaget/internal/query"
	"github.com/hupe1980/rnaget/internal/resource"
	"github.com/hupe1980/rnaget/internal/ticket"
)

var (
	// ErrNotFound is returned for unknown expressions, matrices and tickets.
	ErrNotFound = errors.New("not found")
	// ErrCorruptFormat is returned when a matrix file fails validation.
	ErrCorruptFormat = errors.New("corrupt matrix file")
	// ErrInvalidFilter is returned for semantically invalid filters.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrUnitMismatch is returned when the requested units cannot be derived
	// from the stored ones.
	ErrUnitMismatch = errors.New("unit mismatch")
	// ErrUnsupportedFormat is returned for unknown output formats.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrTicketNotFound is returned for unknown or swept tickets.
	ErrTicketNotFound = fmt.Errorf("ticket %w", ErrNotFound)
	// ErrTicketExpired is returned for tickets past their expiry.
	ErrTicketExpired = errors.New("ticket expired")
	// ErrResourceExhausted is returned when a build runs out of memory, build
	// slots or I/O.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrOutOfRange is returned for row offsets outside the matrix.
	ErrOutOfRange = errors.New("offset out of range")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("service closed")
)

// UnknownFeatureError reports a requested feature ID missing from the matrix.
type UnknownFeatureError struct {
	ID    string
	cause error
}

func (e *UnknownFeatureError) Error() string {
	return fmt.Sprintf("unknown feature %q", e.ID)
}

func (e *UnknownFeatureError) Unwrap() error { return e.cause }

// Is makes errors.Is(err, ErrNotFound) hold.
func (e *UnknownFeatureError) Is(target error) bool { return target == ErrNotFound }

// UnknownSampleError reports a requested sample ID missing from the matrix.
type UnknownSampleError struct {
	ID    string
	cause error
}

func (e *UnknownSampleError) Error() string {
	return fmt.Sprintf("unknown sample %q", e.ID)
}

func (e *UnknownSampleError) Unwrap() error { return e.cause }

// Is makes errors.Is(err, ErrNotFound) hold.
func (e *UnknownSampleError) Is(target error) bool { return target == ErrNotFound }

func translateError(err error) error {
	if terr, ok := classify(err); ok {
		return terr
	}
	return err
}

// translateBuildError is translateError for failures while materializing an
// artifact: unclassified errors there are read or write failures.
func translateBuildError(err error) error {
	if terr, ok := classify(err); ok {
		return terr
	}
	return fmt.Errorf("%w: %w", ErrResourceExhausted, err)
}

// classify maps internal errors to the exported sentinels, keeping the cause
// chain. It reports false for errors without a mapping.
func classify(err error) (error, bool) {
	if err == nil {
		return nil, true
	}
	if errors.Is(err, ErrClosed) || errors.Is(err, ErrNotFound) {
		return err, true
	}
	// A closed manager cancels its builds; report the close, not the cancel.
	if errors.Is(err, ticket.ErrClosed) || errors.Is(err, matrix.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err), true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, true
	}

	var ule *index.UnknownLabelError
	if errors.As(err, &ule) {
		if ule.Axis == index.AxisSample {
			return &UnknownSampleError{ID: ule.ID, cause: err}, true
		}
		return &UnknownFeatureError{ID: ule.ID, cause: err}, true
	}

	switch {
	case errors.Is(err, ticket.ErrTicketNotFound):
		return fmt.Errorf("%w: %w", ErrTicketNotFound, err), true
	case errors.Is(err, ticket.ErrTicketExpired):
		return fmt.Errorf("%w: %w", ErrTicketExpired, err), true
	case errors.Is(err, query.ErrInvalidFilter):
		return fmt.Errorf("%w: %w", ErrInvalidFilter, err), true
	case errors.Is(err, query.ErrUnitMismatch):
		return fmt.Errorf("%w: %w", ErrUnitMismatch, err), true
	case errors.Is(err, encoding.ErrUnsupportedFormat):
		return fmt.Errorf("%w: %w", ErrUnsupportedFormat, err), true
	case errors.Is(err, matrix.ErrCorrupt):
		return fmt.Errorf("%w: %w", ErrCorruptFormat, err), true
	case errors.Is(err, matrix.ErrOutOfRange):
		return fmt.Errorf("%w: %w", ErrOutOfRange, err), true
	case errors.Is(err, resource.ErrMemoryLimitExceeded):
		return fmt.Errorf("%w: %w", ErrResourceExhausted, err), true
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", ErrNotFound, err), true
	}
	return nil, false
}
