package drm

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/bnema/drmkit/internal/logger"
	"github.com/bnema/drmkit/internal/uapi"
)

// Controller is a checked-out CRTC: the scanout engine that reads a framebuffer
// and feeds encoders.
type Controller struct {
	*handle

	X, Y        uint32
	Framebuffer ResourceID
	// Mode is nil when the controller is not driving a mode.
	Mode        *Mode
	GammaLength uint32

	// Index is the position of the controller in the card's resource list,
	// which is the bit that represents it in possible_crtcs masks.
	Index int
}

// Active reports whether the controller is currently driving a mode.
func (c *Controller) Active() bool {
	return c.Mode != nil
}

func fetchController(h *handle) (*Controller, error) {
	raw := uapi.Crtc{CrtcID: uint32(h.id)}
	if err := ioctl(h.dev, "get crtc", uapi.IOCTLModeGetCrtc, unsafe.Pointer(&raw)); err != nil {
		return nil, fmt.Errorf("controller %d: %w", h.id, err)
	}
	c := &Controller{
		handle:      h,
		X:           raw.X,
		Y:           raw.Y,
		Framebuffer: ResourceID(raw.FbID),
		GammaLength: raw.GammaSize,
	}
	if raw.ModeValid != 0 {
		m := modeFromKernel(raw.Mode)
		c.Mode = &m
	}
	return c, nil
}

// Gamma reads the controller's gamma ramp, GammaLength entries per channel.
func (c *Controller) Gamma() (red, green, blue []uint16, err error) {
	if c.GammaLength == 0 {
		return nil, nil, nil, nil
	}
	red = make([]uint16, c.GammaLength)
	green = make([]uint16, c.GammaLength)
	blue = make([]uint16, c.GammaLength)
	raw := uapi.CrtcLut{
		CrtcID:    uint32(c.id),
		GammaSize: c.GammaLength,
		Red:       uapi.Ptr(red),
		Green:     uapi.Ptr(green),
		Blue:      uapi.Ptr(blue),
	}
	err = ioctl(c.dev, "get gamma", uapi.IOCTLModeGetGamma, unsafe.Pointer(&raw))
	runtime.KeepAlive(red)
	runtime.KeepAlive(green)
	runtime.KeepAlive(blue)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("controller %d: %w", c.id, err)
	}
	return red, green, blue, nil
}

// BindController programs ctrl to scan out fb to conns using mode with the
// legacy SETCRTC call. A nil mode switches the controller off; fb and conns are
// then ignored.
//
// The legacy and atomic paths keep separate views of the same hardware state.
// After binding a controller here, take a new registry snapshot before
// committing atomic updates that touch it.
func BindController(dev PrivilegedDevice, ctrl *Controller, fb *Framebuffer, conns []*Connector, mode *Mode) error {
	raw := uapi.Crtc{CrtcID: uint32(ctrl.ID())}

	var ids []ResourceID
	if mode != nil {
		if fb == nil {
			return fmt.Errorf("controller %d: bind without framebuffer", ctrl.ID())
		}
		ids = make([]ResourceID, len(conns))
		for i, c := range conns {
			ids[i] = c.ID()
		}
		raw.FbID = uint32(fb.ID())
		raw.SetConnectorsPtr = uapi.Ptr(ids)
		raw.CountConnectors = uint32(len(ids))
		raw.Mode = mode.kernel()
		raw.ModeValid = 1
	}

	err := ioctl(dev, "set crtc", uapi.IOCTLModeSetCrtc, unsafe.Pointer(&raw))
	runtime.KeepAlive(ids)
	if err != nil {
		return fmt.Errorf("controller %d: %w", ctrl.ID(), err)
	}

	if mode != nil {
		logger.Debug("bound controller", "controller", ctrl.ID(), "fb", fb.ID(), "connectors", ids, "mode", mode.String())
		ctrl.Framebuffer = fb.ID()
		m := *mode
		ctrl.Mode = &m
	} else {
		logger.Debug("cleared controller", "controller", ctrl.ID())
		ctrl.Framebuffer = 0
		ctrl.Mode = nil
	}
	return nil
}
