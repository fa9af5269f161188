package drm

import (
	"fmt"

	"github.com/bnema/drmkit/internal/uapi"
)

// Mode is a display timing. It converts to and from the kernel's
// drm_mode_modeinfo without loss, except that Name is cut to 31 bytes.
type Mode struct {
	Name string

	// Clock is the pixel clock in kHz.
	Clock uint32

	HDisplay, HSyncStart, HSyncEnd, HTotal, HSkew uint16
	VDisplay, VSyncStart, VSyncEnd, VTotal, VScan uint16

	// VRefresh is the nominal refresh rate in Hz as reported by the driver.
	VRefresh uint32

	Flags uint32
	Type  uint32
}

func modeFromKernel(raw uapi.ModeInfo) Mode {
	return Mode{
		Name:       uapi.CString(raw.Name[:]),
		Clock:      raw.Clock,
		HDisplay:   raw.HDisplay,
		HSyncStart: raw.HSyncStart,
		HSyncEnd:   raw.HSyncEnd,
		HTotal:     raw.HTotal,
		HSkew:      raw.HSkew,
		VDisplay:   raw.VDisplay,
		VSyncStart: raw.VSyncStart,
		VSyncEnd:   raw.VSyncEnd,
		VTotal:     raw.VTotal,
		VScan:      raw.VScan,
		VRefresh:   raw.VRefresh,
		Flags:      raw.Flags,
		Type:       raw.Type,
	}
}

func (m Mode) kernel() uapi.ModeInfo {
	raw := uapi.ModeInfo{
		Clock:      m.Clock,
		HDisplay:   m.HDisplay,
		HSyncStart: m.HSyncStart,
		HSyncEnd:   m.HSyncEnd,
		HTotal:     m.HTotal,
		HSkew:      m.HSkew,
		VDisplay:   m.VDisplay,
		VSyncStart: m.VSyncStart,
		VSyncEnd:   m.VSyncEnd,
		VTotal:     m.VTotal,
		VScan:      m.VScan,
		VRefresh:   m.VRefresh,
		Flags:      m.Flags,
		Type:       m.Type,
	}
	uapi.PutCString(raw.Name[:], m.Name)
	return raw
}

// Size returns the visible width and height in pixels.
func (m Mode) Size() (width, height uint16) {
	return m.HDisplay, m.VDisplay
}

// Preferred reports whether the driver marked this mode as preferred.
func (m Mode) Preferred() bool {
	return m.Type&uapi.ModeTypePreferred != 0
}

// RefreshRate computes the refresh rate in Hz from the pixel clock and totals,
// falling back to VRefresh when the totals are zero.
func (m Mode) RefreshRate() float64 {
	if m.HTotal == 0 || m.VTotal == 0 {
		return float64(m.VRefresh)
	}
	return float64(m.Clock) * 1000 / (float64(m.HTotal) * float64(m.VTotal))
}

func (m Mode) String() string {
	return fmt.Sprintf("%dx%d@%.2f", m.HDisplay, m.VDisplay, m.RefreshRate())
}

// PreferredMode returns the first preferred mode, or the first mode if none is
// marked, or false for an empty list.
func PreferredMode(modes []Mode) (Mode, bool) {
	for _, m := range modes {
		if m.Preferred() {
			return m, true
		}
	}
	if len(modes) > 0 {
		return modes[0], true
	}
	return Mode{}, false
}
