package drm

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/bnema/drmkit/internal/logger"
	"github.com/bnema/drmkit/internal/uapi"
)

// Framebuffer is a kernel framebuffer object created from a Buffer. The buffer
// must stay alive for as long as the framebuffer exists.
type Framebuffer struct {
	dev PrivilegedDevice
	id  ResourceID

	once sync.Once
	err  error
}

// AddFramebuffer registers buf as a framebuffer.
func AddFramebuffer(dev PrivilegedDevice, buf Buffer) (*Framebuffer, error) {
	width, height := buf.Size()
	raw := uapi.FBCmd{
		Width:  width,
		Height: height,
		Pitch:  buf.Pitch(),
		BPP:    buf.BPP(),
		Depth:  buf.Depth(),
		Handle: uint32(buf.Handle()),
	}
	if err := ioctl(dev, "add fb", uapi.IOCTLModeAddFB, unsafe.Pointer(&raw)); err != nil {
		return nil, fmt.Errorf("framebuffer for handle %d: %w", buf.Handle(), err)
	}
	logger.Debug("added framebuffer", "fb", raw.FbID, "handle", raw.Handle)
	return &Framebuffer{dev: dev, id: ResourceID(raw.FbID)}, nil
}

func (f *Framebuffer) ID() ResourceID   { return f.id }
func (f *Framebuffer) Kind() ObjectKind { return ObjectFramebuffer }

// Close removes the framebuffer. Later calls return the first call's result.
func (f *Framebuffer) Close() error {
	f.once.Do(func() {
		id := uint32(f.id)
		if err := ioctl(f.dev, "rm fb", uapi.IOCTLModeRmFB, unsafe.Pointer(&id)); err != nil {
			f.err = fmt.Errorf("framebuffer %d: %w", f.id, err)
			return
		}
		logger.Debug("removed framebuffer", "fb", f.id)
	})
	return f.err
}

// FramebufferDetails describes an existing framebuffer, including ones created
// by other clients.
type FramebufferDetails struct {
	ID            ResourceID
	Width, Height uint32
	Pitch         uint32
	BPP, Depth    uint32
	// Handle is only set for DRM master or root; other callers see 0.
	Handle BufferHandle
}

// FramebufferInfo reads the layout of framebuffer id.
func FramebufferInfo(dev BasicDevice, id ResourceID) (FramebufferDetails, error) {
	raw := uapi.FBCmd{FbID: uint32(id)}
	if err := ioctl(dev, "get fb", uapi.IOCTLModeGetFB, unsafe.Pointer(&raw)); err != nil {
		return FramebufferDetails{}, fmt.Errorf("framebuffer %d: %w", id, err)
	}
	return FramebufferDetails{
		ID:     id,
		Width:  raw.Width,
		Height: raw.Height,
		Pitch:  raw.Pitch,
		BPP:    raw.BPP,
		Depth:  raw.Depth,
		Handle: BufferHandle(raw.Handle),
	}, nil
}
