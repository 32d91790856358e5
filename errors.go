package wfs

import (
	"fmt"
	"syscall"
)

// FSError is a wrapper around system errno codes, with a customizable error
// message. The errno is what ultimately reaches the host: the FUSE layer
// hands it to the kernel, which reports it to applications negated.
type FSError struct {
	ErrnoCode syscall.Errno
	message   string
	cause     error
}

// NewError creates a new FSError with a default message derived from the
// system's error code.
func NewError(errnoCode syscall.Errno) FSError {
	return FSError{ErrnoCode: errnoCode}
}

// NewErrorWithMessage creates a new FSError from a system error code with a
// custom message.
func NewErrorWithMessage(errnoCode syscall.Errno, message string) FSError {
	return FSError{ErrnoCode: errnoCode, message: message}
}

// Error implements the `error` interface. When called, it returns a string
// describing the error.
func (e FSError) Error() string {
	if e.message != "" {
		return e.message
	}
	return e.ErrnoCode.Error()
}

// WithMessage returns a copy of the error with `message` appended to the
// description. The errno code is preserved.
func (e FSError) WithMessage(message string) FSError {
	return FSError{
		ErrnoCode: e.ErrnoCode,
		message:   fmt.Sprintf("%s: %s", e.Error(), message),
		cause:     e.cause,
	}
}

// Wrap returns a copy of the error with `err` recorded as its cause and
// appended to the description.
func (e FSError) Wrap(err error) FSError {
	return FSError{
		ErrnoCode: e.ErrnoCode,
		message:   fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		cause:     err,
	}
}

func (e FSError) Unwrap() error {
	return e.cause
}

// Is reports whether `target` carries the same errno code. It makes
// errors.Is match both the named sentinels below and bare syscall.Errno
// values.
func (e FSError) Is(target error) bool {
	switch other := target.(type) {
	case FSError:
		return e.ErrnoCode == other.ErrnoCode
	case syscall.Errno:
		return e.ErrnoCode == other
	}
	return false
}

// Sentinels for every error condition the engine reports. Operations return
// these directly or refined with WithMessage/Wrap.
var (
	ErrNotFound          = NewErrorWithMessage(syscall.ENOENT, "No such file or directory")
	ErrNotADirectory     = NewErrorWithMessage(syscall.ENOTDIR, "Not a directory")
	ErrIsADirectory      = NewErrorWithMessage(syscall.EISDIR, "Is a directory")
	ErrExists            = NewErrorWithMessage(syscall.EEXIST, "File exists")
	ErrDirectoryNotEmpty = NewErrorWithMessage(syscall.ENOTEMPTY, "Directory not empty")
	ErrNoSpaceOnDevice   = NewErrorWithMessage(syscall.ENOSPC, "No space left on device")
	ErrOutOfMemory       = NewErrorWithMessage(syscall.ENOMEM, "Cannot allocate memory")
	ErrIOFailed          = NewErrorWithMessage(syscall.EIO, "Input/output error")
	ErrInvalidArgument   = NewErrorWithMessage(syscall.EINVAL, "Invalid argument")
	ErrNameTooLong       = NewErrorWithMessage(syscall.ENAMETOOLONG, "File name too long")
)
