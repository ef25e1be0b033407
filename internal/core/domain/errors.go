package domain

import (
	"errors"
	"fmt"
)

var (
	ErrExpenseNotFound = errors.New("expense not found")
	ErrJobNotFound     = errors.New("processing job not found")
	ErrJobNotClaimable = errors.New("processing job not claimable")
	ErrJobSuperseded   = errors.New("processing job superseded")
	ErrInvalidInput    = errors.New("invalid input")
	ErrDuplicate       = errors.New("duplicate")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrTemporary       = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// RootMessage returns the text of the innermost wrapped error.
func RootMessage(err error) string {
	if err == nil {
		return ""
	}
	for {
		var next error
		switch wrapped := err.(type) {
		case interface{ Unwrap() error }:
			next = wrapped.Unwrap()
		case interface{ Unwrap() []error }:
			// WrapError puts the cause last.
			if causes := wrapped.Unwrap(); len(causes) > 0 {
				next = causes[len(causes)-1]
			}
		}
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
