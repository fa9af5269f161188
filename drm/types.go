package drm

import (
	"fmt"

	"github.com/bnema/drmkit/internal/uapi"
)

// ResourceID is a kernel-assigned mode object id. Ids are stable for the life of
// the device session.
type ResourceID uint32

// BlobID identifies a property blob.
type BlobID uint32

// BufferHandle is the GEM handle the kernel issues for a buffer object. It lives in
// a different namespace from ResourceID.
type BufferHandle uint32

// ObjectKind is the type of a mode object.
type ObjectKind int

const (
	ObjectUnknown ObjectKind = iota
	ObjectConnector
	ObjectEncoder
	ObjectController
	ObjectFramebuffer
	ObjectPlane
	ObjectProperty
	ObjectMode
	ObjectBlob
)

func objectKindFromKernel(v uint32) ObjectKind {
	switch v {
	case uapi.ObjectConnector:
		return ObjectConnector
	case uapi.ObjectEncoder:
		return ObjectEncoder
	case uapi.ObjectCrtc:
		return ObjectController
	case uapi.ObjectFB:
		return ObjectFramebuffer
	case uapi.ObjectPlane:
		return ObjectPlane
	case uapi.ObjectProperty:
		return ObjectProperty
	case uapi.ObjectMode:
		return ObjectMode
	case uapi.ObjectBlob:
		return ObjectBlob
	default:
		return ObjectUnknown
	}
}

func (k ObjectKind) kernel() uint32 {
	switch k {
	case ObjectConnector:
		return uapi.ObjectConnector
	case ObjectEncoder:
		return uapi.ObjectEncoder
	case ObjectController:
		return uapi.ObjectCrtc
	case ObjectFramebuffer:
		return uapi.ObjectFB
	case ObjectPlane:
		return uapi.ObjectPlane
	case ObjectProperty:
		return uapi.ObjectProperty
	case ObjectMode:
		return uapi.ObjectMode
	case ObjectBlob:
		return uapi.ObjectBlob
	default:
		return uapi.ObjectAny
	}
}

func (k ObjectKind) String() string {
	switch k {
	case ObjectConnector:
		return "connector"
	case ObjectEncoder:
		return "encoder"
	case ObjectController:
		return "controller"
	case ObjectFramebuffer:
		return "framebuffer"
	case ObjectPlane:
		return "plane"
	case ObjectProperty:
		return "property"
	case ObjectMode:
		return "mode"
	case ObjectBlob:
		return "blob"
	default:
		return "unknown"
	}
}

// ParseObjectKind is the inverse of ObjectKind.String. "crtc" and "fb" are
// accepted as aliases.
func ParseObjectKind(s string) (ObjectKind, error) {
	switch s {
	case "connector":
		return ObjectConnector, nil
	case "encoder":
		return ObjectEncoder, nil
	case "controller", "crtc":
		return ObjectController, nil
	case "framebuffer", "fb":
		return ObjectFramebuffer, nil
	case "plane":
		return ObjectPlane, nil
	default:
		return ObjectUnknown, fmt.Errorf("unknown object kind %q", s)
	}
}

// Resource is anything that names a mode object.
type Resource interface {
	ID() ResourceID
	Kind() ObjectKind
}
