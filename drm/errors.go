package drm

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

var (
	// ErrNotAvailable is returned when a resource id is already checked out or
	// was never part of the registry snapshot.
	ErrNotAvailable = errors.New("drm: resource not available")

	// ErrIncompatible is returned when two resources cannot be paired, such as
	// an encoder that cannot drive the requested controller.
	ErrIncompatible = errors.New("drm: incompatible resources")

	// ErrUnknownPropertyType matches *UnknownPropertyTypeError.
	ErrUnknownPropertyType = errors.New("drm: unknown property type")

	// ErrPermissionDenied matches kernel failures caused by missing master or
	// file permissions.
	ErrPermissionDenied = errors.New("drm: permission denied")

	// ErrUnsupported is returned when the device lacks a capability required
	// at session start.
	ErrUnsupported = errors.New("drm: unsupported by device")

	// ErrBufferMapped is returned when destroying a dumb buffer that still has
	// live mappings.
	ErrBufferMapped = errors.New("drm: buffer still mapped")

	// ErrClosed is returned when using a buffer or framebuffer after Close.
	ErrClosed = errors.New("drm: already closed")
)

// KernelCallError reports a failed ioctl, mmap or munmap.
type KernelCallError struct {
	Op  string
	Err error
}

func (e *KernelCallError) Error() string {
	return fmt.Sprintf("drm: %s: %v", e.Op, e.Err)
}

func (e *KernelCallError) Unwrap() error {
	return e.Err
}

// Is lets callers test for ErrPermissionDenied without inspecting errno values.
func (e *KernelCallError) Is(target error) bool {
	if target == ErrPermissionDenied {
		return errors.Is(e.Err, unix.EACCES) || errors.Is(e.Err, unix.EPERM)
	}
	return false
}

// Errno returns the OS error code, or 0 if the failure did not carry one.
func (e *KernelCallError) Errno() unix.Errno {
	var errno unix.Errno
	if errors.As(e.Err, &errno) {
		return errno
	}
	return 0
}

// UnknownPropertyTypeError is returned when a property descriptor carries none
// of the type flags this package understands.
type UnknownPropertyTypeError struct {
	Property ResourceID
	Name     string
	Flags    uint32
}

func (e *UnknownPropertyTypeError) Error() string {
	return fmt.Sprintf("drm: property %d (%s): unknown type flags %#x", e.Property, e.Name, e.Flags)
}

func (e *UnknownPropertyTypeError) Is(target error) bool {
	return target == ErrUnknownPropertyType
}
