package zbd

import (
	"errors"
	"fmt"
	"syscall"
)

// Error is a structured zbd error carrying the failing operation, a
// high-level category, and (when applicable) the underlying kernel
// errno, mirroring the host project's own op/code/errno error shape.
type Error struct {
	Op    string        // Operation that failed (e.g., "BuildZoneTable", "Adjust")
	Code  ErrCode       // High-level error category
	Errno syscall.Errno // Kernel errno (0 if not applicable)
	Msg   string        // Human-readable message
	Inner error         // Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		if e.Errno != 0 {
			return fmt.Sprintf("zbd: %s: %s (op=%s errno=%d)", e.Code, msg, e.Op, e.Errno)
		}
		return fmt.Sprintf("zbd: %s: %s (op=%s)", e.Code, msg, e.Op)
	}
	return fmt.Sprintf("zbd: %s: %s", e.Code, msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is supports errors.Is comparison by error category.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	if ce, ok := target.(ErrCode); ok {
		return e.Code == ce
	}
	return false
}

// ErrCode is a high-level error category. It is also a legacy
// string-alias error in its own right, so a caller can compare/match on
// it directly without wrapping.
type ErrCode string

func (c ErrCode) Error() string { return string(c) }

const (
	// ErrCodeConfigError covers direct-I/O violations, block-size not
	// dividing zone size, and ranges rounded down to nothing. Surfaced
	// before I/O starts; aborts the job.
	ErrCodeConfigError ErrCode = "config error"

	// ErrCodeGeometryError covers zone layouts that violate the
	// uniform-spacing invariant. Fatal for the affected file.
	ErrCodeGeometryError ErrCode = "geometry error"

	// ErrCodeIoctlError covers zone report or reset ioctl failures.
	ErrCodeIoctlError ErrCode = "ioctl error"

	// ErrCodeAdjustEof signals a request that cannot be mapped to any
	// legal zone; the generator treats it as a soft end-of-file.
	ErrCodeAdjustEof ErrCode = "adjust eof"

	// ErrCodeResourceError covers allocation failures during table
	// construction. Fatal for the affected file.
	ErrCodeResourceError ErrCode = "resource error"
)

// NewError creates a structured error with no errno attached.
func NewError(op string, code ErrCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewErrnoError creates a structured error wrapping a kernel errno.
func NewErrnoError(op string, code ErrCode, errno syscall.Errno) *Error {
	return &Error{Op: op, Code: code, Errno: errno, Msg: errno.Error()}
}

// WrapError wraps an arbitrary error with zbd op/code context. A
// syscall.Errno is classified via mapErrnoToCode; an already-structured
// *Error is re-tagged with the new operation but keeps its code.
func WrapError(op string, code ErrCode, inner error) *Error {
	if inner == nil {
		return nil
	}
	if ze, ok := inner.(*Error); ok {
		return &Error{Op: op, Code: ze.Code, Errno: ze.Errno, Msg: ze.Msg, Inner: ze.Inner}
	}
	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Code: mapErrnoToCode(errno, code), Errno: errno, Msg: errno.Error(), Inner: inner}
	}
	return &Error{Op: op, Code: code, Msg: inner.Error(), Inner: inner}
}

func mapErrnoToCode(errno syscall.Errno, fallback ErrCode) ErrCode {
	switch errno {
	case syscall.ENOMEM, syscall.ENOSPC:
		return ErrCodeResourceError
	case syscall.EIO, syscall.EREMOTEIO, syscall.EINVAL:
		return ErrCodeIoctlError
	default:
		return fallback
	}
}

// IsCode reports whether err is a *Error (directly or wrapped) matching
// the given category.
func IsCode(err error, code ErrCode) bool {
	var ze *Error
	if errors.As(err, &ze) {
		return ze.Code == code
	}
	return errors.Is(err, code)
}

// UnalignedWriteErrnos is the configurable set of kernel errnos this
// core classifies as zone-alignment-related write failures (§9 open
// question 3). Callers on a platform/driver with different semantics
// may mutate this map.
var UnalignedWriteErrnos = map[syscall.Errno]bool{
	syscall.EIO:       true,
	syscall.EREMOTEIO: true,
}

// UnalignedWrite classifies an I/O completion error as zone-alignment
// related (the zbd_unaligned_write predicate from §4.6's note), so the
// generator can suppress retries on legitimately-rejected writes.
func UnalignedWrite(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return UnalignedWriteErrnos[errno]
	}
	var ze *Error
	if errors.As(err, &ze) {
		return UnalignedWriteErrnos[ze.Errno]
	}
	return false
}
