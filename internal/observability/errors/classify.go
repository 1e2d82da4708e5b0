// Package errors turns error values into low-cardinality labels for metrics tags.
package errors

import (
	"reflect"
	"strings"
)

const unknownClass = "unknown"

// Classify names the innermost concrete type of err, e.g. "errors_apperror" for a
// *apperrors.AppError with no cause. Joined errors follow their first member.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	return typeLabel(innermost(err))
}

func innermost(err error) error {
	for {
		switch u := err.(type) {
		case interface{ Unwrap() error }:
			next := u.Unwrap()
			if next == nil {
				return err
			}
			err = next
		case interface{ Unwrap() []error }:
			errs := u.Unwrap()
			if len(errs) == 0 || errs[0] == nil {
				return err
			}
			err = errs[0]
		default:
			return err
		}
	}
}

func typeLabel(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.String() == "" {
		return unknownClass
	}
	return strings.NewReplacer("*", "", ".", "_").Replace(strings.ToLower(t.String()))
}
