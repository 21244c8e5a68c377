package binfmt

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedInput = errors.New("malformed input")
	ErrFieldOverflow  = errors.New("field overflow")

	ErrTruncated = errors.New("truncated input")
	ErrBadMagic  = errors.New("magic marker mismatch")
	ErrNotASCII  = errors.New("non-ASCII byte in text field")
)

// ParseError locates a parse failure by record, field and byte offset.
// It matches both ErrMalformedInput and its cause with errors.Is.
type ParseError struct {
	Record string
	Field  string
	Offset int
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s.%s at offset 0x%04X: %v", e.Record, e.Field, e.Offset, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrMalformedInput, e.Err}
}

// FieldError reports a value that does not fit its fixed-width encoding.
type FieldError struct {
	Record string
	Field  string
	Value  any
	Limit  int
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s.%s: %v exceeds limit %d", e.Record, e.Field, e.Value, e.Limit)
}

func (e *FieldError) Unwrap() error {
	return ErrFieldOverflow
}
