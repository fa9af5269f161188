package drm

import (
	"unsafe"

	"github.com/bnema/drmkit/internal/uapi"
)

// query runs the kernel's two-call protocol for variable-length results.
//
// The request is first issued with every array pointer zero so the kernel only
// reports counts. attach then allocates one array per count (see buffer),
// stores their addresses in the request and returns the number of elements it
// allocated. If that is zero the second call is skipped. Otherwise the identical
// request is reissued and the kernel fills the arrays in place.
//
// Counts that grow between the two calls (hotplug) are not chased. Arrays the
// kernel fills entry by entry go through trim and keep what fit. Arrays it
// copies all-or-nothing go through whole and come back empty.
func query(dev BasicDevice, op string, req uintptr, arg unsafe.Pointer, attach func() int) error {
	if err := ioctl(dev, op, req, arg); err != nil {
		return err
	}
	if attach() == 0 {
		return nil
	}
	return ioctl(dev, op, req, arg)
}

// buffer allocates n elements and stores their address in *ptr.
func buffer[T any](n uint32, ptr *uint64) []T {
	if n == 0 {
		*ptr = 0
		return nil
	}
	s := make([]T, n)
	*ptr = uapi.Ptr(s)
	return s
}

// trim shortens s when the kernel reported fewer entries on the second call.
func trim[T any](s []T, n uint32) []T {
	return s[:min(len(s), int(n))]
}

// whole is trim for arrays the kernel only copies when all n entries fit.
// A count above the allocation means nothing was written.
func whole[T any](s []T, n uint32) []T {
	if int(n) > len(s) {
		return nil
	}
	return s[:n]
}
