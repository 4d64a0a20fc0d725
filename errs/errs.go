// Package errs defines the sentinel error kinds raised by the shimmer
// storage engine and the wrap helper used to attach context and a stack
// trace to them at call sites.
package errs

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

var (
	ErrKeyExists            = stderrors.New("shimmer: key already exists")
	ErrNotFound             = stderrors.New("shimmer: not found")
	ErrInvalidDatabase      = stderrors.New("shimmer: invalid database")
	ErrInvalidTransaction   = stderrors.New("shimmer: invalid transaction")
	ErrTransactionNotActive = stderrors.New("shimmer: transaction not active")
	ErrInvalidDataType      = stderrors.New("shimmer: invalid data type")
	ErrInvalidSize          = stderrors.New("shimmer: invalid size")
	ErrDiskWriteError       = stderrors.New("shimmer: disk write error")
	ErrLockTimeout          = stderrors.New("shimmer: lock acquisition timed out")
	ErrDeadlockDetected     = stderrors.New("shimmer: deadlock detected")
	ErrPageFull             = stderrors.New("shimmer: page full")
)

// Wrap attaches msg and a stack trace to err, preserving errors.Is/As
// compatibility with the sentinel above it.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}
