// Package xerrors provides the module-wide error-chain conventions.
//
// Every wrapped error carries its cause so callers can render the full chain,
// outermost cause first, the way a CLI built on top of this library would.
package xerrors

import (
	"errors"

	"github.com/rotisserie/eris"
)

// Wrap attaches msg as context to err, preserving the existing chain.
func Wrap(err error, msg string) error {
	return eris.Wrap(err, msg)
}

// Wrapf is Wrap with formatting.
func Wrapf(err error, format string, args ...interface{}) error {
	return eris.Wrapf(err, format, args...)
}

// New creates a root error.
func New(msg string) error {
	return eris.New(msg)
}

// Errorf creates a root error with formatting.
func Errorf(format string, args ...interface{}) error {
	return eris.Errorf(format, args...)
}

// As finds the first error in err's chain matching target, same contract
// as the standard library's errors.As; eris-wrapped errors preserve chain
// unwrapping so this works across Wrap/Wrapf boundaries.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Chain renders err outermost-cause-first, matching the CLI-facing behaviour
// described for anyhow chains: each wrap is printed in the order it was added.
func Chain(err error) string {
	if err == nil {
		return ""
	}
	return eris.ToString(err, true)
}
