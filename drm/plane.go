package drm

import (
	"fmt"
	"slices"
	"unsafe"

	"github.com/bnema/drmkit/internal/uapi"
)

// FourCC is a pixel format code such as XR24.
type FourCC uint32

// FormatXRGB8888 is the format dumb buffers with 32 bpp and depth 24 use.
const FormatXRGB8888 FourCC = 'X' | 'R'<<8 | '2'<<16 | '4'<<24

func (f FourCC) String() string {
	b := []byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	for i, c := range b {
		if c < 0x20 || c > 0x7e {
			b[i] = '?'
		}
	}
	return string(b)
}

// Plane is a checked-out plane.
type Plane struct {
	*handle

	Controller          ResourceID
	Framebuffer         ResourceID
	PossibleControllers uint32
	GammaLength         uint32
	Formats             []FourCC
}

// CanUse reports whether ctrl's bit is set in PossibleControllers.
func (p *Plane) CanUse(ctrl *Controller) bool {
	return ctrl.Index < 32 && p.PossibleControllers&(1<<ctrl.Index) != 0
}

// Supports reports whether the plane can scan out format f.
func (p *Plane) Supports(f FourCC) bool {
	return slices.Contains(p.Formats, f)
}

func fetchPlane(h *handle) (*Plane, error) {
	raw := uapi.GetPlane{PlaneID: uint32(h.id)}
	var formats []FourCC
	err := query(h.dev, "get plane", uapi.IOCTLModeGetPlane, unsafe.Pointer(&raw), func() int {
		formats = buffer[FourCC](raw.CountFormatTypes, &raw.FormatTypePtr)
		return len(formats)
	})
	if err != nil {
		return nil, fmt.Errorf("plane %d: %w", h.id, err)
	}
	return &Plane{
		handle:              h,
		Controller:          ResourceID(raw.CrtcID),
		Framebuffer:         ResourceID(raw.FbID),
		PossibleControllers: raw.PossibleCrtcs,
		GammaLength:         raw.GammaSize,
		Formats:             whole(formats, raw.CountFormatTypes),
	}, nil
}
