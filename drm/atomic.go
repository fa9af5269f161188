package drm

import (
	"runtime"
	"unsafe"

	"github.com/bnema/drmkit/internal/logger"
	"github.com/bnema/drmkit/internal/uapi"
)

// Commit applies updates in one atomic request. The kernel either applies all of
// them or none; a rejected commit is returned as is and never retried.
// Modesets are allowed. An empty update list is a no-op.
func Commit(dev PrivilegedDevice, updates []PropertyUpdate) error {
	return commit(dev, "atomic commit", updates, uapi.AtomicAllowModeset)
}

// TestCommit asks the kernel whether Commit would accept updates without
// applying anything.
func TestCommit(dev PrivilegedDevice, updates []PropertyUpdate) error {
	return commit(dev, "atomic test", updates, uapi.AtomicAllowModeset|uapi.AtomicTestOnly)
}

// atomicRequest is the kernel layout of a commit: one entry per object in
// objects and counts, and counts[i] consecutive entries in props and values.
type atomicRequest struct {
	objects []ResourceID
	counts  []uint32
	props   []ResourceID
	values  []uint64
}

// pack groups updates by object, keeping objects in order of first appearance
// and updates of one object in their given order.
func pack(updates []PropertyUpdate) atomicRequest {
	var objects []ResourceID
	grouped := make(map[ResourceID][]PropertyUpdate)
	for _, u := range updates {
		if _, ok := grouped[u.Object]; !ok {
			objects = append(objects, u.Object)
		}
		grouped[u.Object] = append(grouped[u.Object], u)
	}

	req := atomicRequest{
		objects: objects,
		counts:  make([]uint32, len(objects)),
		props:   make([]ResourceID, 0, len(updates)),
		values:  make([]uint64, 0, len(updates)),
	}
	for i, obj := range objects {
		for _, u := range grouped[obj] {
			req.props = append(req.props, u.Property)
			req.values = append(req.values, u.Value)
		}
		req.counts[i] = uint32(len(grouped[obj]))
	}
	return req
}

func commit(dev PrivilegedDevice, op string, updates []PropertyUpdate, flags uint32) error {
	if len(updates) == 0 {
		return nil
	}
	req := pack(updates)
	raw := uapi.Atomic{
		Flags:         flags,
		CountObjs:     uint32(len(req.objects)),
		ObjsPtr:       uapi.Ptr(req.objects),
		CountPropsPtr: uapi.Ptr(req.counts),
		PropsPtr:      uapi.Ptr(req.props),
		PropValuesPtr: uapi.Ptr(req.values),
	}
	err := ioctl(dev, op, uapi.IOCTLModeAtomic, unsafe.Pointer(&raw))
	runtime.KeepAlive(req)
	if err != nil {
		return err
	}
	logger.Debug(op, "objects", len(req.objects), "updates", len(updates))
	return nil
}
