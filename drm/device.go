// Package drm exposes kernel mode-setting resources of a DRM character device:
// connectors, encoders, controllers (CRTCs), planes, framebuffers, dumb buffers
// and typed properties.
//
// A Registry hands out at most one live handle per resource id. Handles borrow
// the device they were created from and never own its file descriptor, so the
// device must outlive every handle, buffer and framebuffer derived from it.
//
// All calls are synchronous and block in the kernel. Nothing is retried: a
// failed ioctl is reported to the caller as a *KernelCallError.
package drm

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"github.com/bnema/drmkit/internal/logger"
	"github.com/bnema/drmkit/internal/uapi"
	"golang.org/x/sys/unix"
)

// BasicDevice is a device that can be queried.
type BasicDevice interface {
	// Ioctl issues request req with arg pointing at the request struct. The
	// returned error is the raw OS error.
	Ioctl(req uintptr, arg unsafe.Pointer) error
}

// PrivilegedDevice is a device whose configuration and memory the caller may
// change. Most mutating calls additionally require the caller to be DRM master.
type PrivilegedDevice interface {
	BasicDevice
	Mmap(offset int64, length int) ([]byte, error)
	Munmap(b []byte) error
}

// Card is a DRM device backed by an open /dev/dri/cardN file.
type Card struct {
	file *os.File
	fd   uintptr
}

// Open opens the card at path for reading and writing.
func Open(path string) (*Card, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	logger.Debug("opened card", "path", path)
	return NewCard(f), nil
}

// NewCard wraps an already open device file. The card takes ownership of f.
func NewCard(f *os.File) *Card {
	return &Card{file: f, fd: f.Fd()}
}

// Name returns the path the card was opened from.
func (c *Card) Name() string {
	return c.file.Name()
}

// Close closes the device file. Handles derived from the card must not be used
// afterwards.
func (c *Card) Close() error {
	return c.file.Close()
}

// Ioctl implements BasicDevice. EINTR is restarted the way SA_RESTART would,
// since a signal arrived before the driver acted on the request. Every other
// errno, EAGAIN included, is returned after a single attempt.
func (c *Card) Ioctl(req uintptr, arg unsafe.Pointer) error {
	for {
		errno := sysIoctl(c.fd, req, arg)
		if errno == unix.EINTR {
			continue
		}
		if errno != 0 {
			return errno
		}
		return nil
	}
}

// sysIoctl is the raw system call, swapped out by tests that need a specific errno.
var sysIoctl = func(fd, req uintptr, arg unsafe.Pointer) unix.Errno {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
	return errno
}

// Mmap implements PrivilegedDevice with a shared read/write mapping.
func (c *Card) Mmap(offset int64, length int) ([]byte, error) {
	return unix.Mmap(int(c.fd), offset, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

// Munmap implements PrivilegedDevice.
func (c *Card) Munmap(b []byte) error {
	return unix.Munmap(b)
}

func ioctl(dev BasicDevice, op string, req uintptr, arg unsafe.Pointer) error {
	if err := dev.Ioctl(req, arg); err != nil {
		return &KernelCallError{Op: op, Err: err}
	}
	return nil
}

// AcquireMaster makes the caller DRM master. Only one open file per device can
// be master; this is the cross-process lock the registry does not provide.
func AcquireMaster(dev BasicDevice) error {
	return ioctl(dev, "set master", uapi.IOCTLSetMaster, nil)
}

// DropMaster gives up master so another process can take it.
func DropMaster(dev BasicDevice) error {
	return ioctl(dev, "drop master", uapi.IOCTLDropMaster, nil)
}

// Capability reads a device capability such as uapi.CapDumbBuffer.
func Capability(dev BasicDevice, capability uint64) (uint64, error) {
	raw := uapi.GetCap{Capability: capability}
	if err := ioctl(dev, "get cap", uapi.IOCTLGetCap, unsafe.Pointer(&raw)); err != nil {
		return 0, err
	}
	return raw.Value, nil
}

// SetClientCap opts in to a client capability.
func SetClientCap(dev BasicDevice, capability, value uint64) error {
	raw := uapi.SetClientCap{Capability: capability, Value: value}
	return ioctl(dev, "set client cap", uapi.IOCTLSetClientCap, unsafe.Pointer(&raw))
}

// EnableModesetting prepares a session for the atomic API: it requires dumb
// buffer support and enables the universal-planes and atomic client caps.
// A device that refuses any of them yields ErrUnsupported.
func EnableModesetting(dev BasicDevice) error {
	dumb, err := Capability(dev, uapi.CapDumbBuffer)
	if err != nil {
		return fmt.Errorf("%w: dumb buffers: %w", ErrUnsupported, err)
	}
	if dumb == 0 {
		return fmt.Errorf("%w: dumb buffers", ErrUnsupported)
	}

	caps := []struct {
		name string
		cap  uint64
	}{
		{"universal planes", uapi.ClientCapUniversalPlanes},
		{"atomic", uapi.ClientCapAtomic},
	}
	for _, c := range caps {
		if err := SetClientCap(dev, c.cap, 1); err != nil {
			if errors.Is(err, ErrPermissionDenied) {
				return err
			}
			return fmt.Errorf("%w: %s: %w", ErrUnsupported, c.name, err)
		}
		logger.Debug("enabled client cap", "cap", c.name)
	}
	return nil
}
