// Package display builds a monitor layout from the card's connectors
package display

import (
	"errors"
	"fmt"
	"io"

	"github.com/bnema/drmkit/drm"
	"github.com/bnema/drmkit/internal/logger"
)

// Monitor represents a connected output and the mode it shows
type Monitor struct {
	ID        string // Connector name, e.g. HDMI-A-1
	Connector drm.ResourceID
	X         int32 // Position in global coordinate space
	Y         int32
	Width     int32
	Height    int32
	Refresh   float64
	WidthMM   uint32
	HeightMM  uint32
	Primary   bool

	// Active is true when a controller is scanning out to the connector.
	// Inactive monitors show their preferred mode and are laid out to the right.
	Active bool
}

// Bounds returns the monitor's boundaries
func (m *Monitor) Bounds() (x1, y1, x2, y2 int32) {
	return m.X, m.Y, m.X + m.Width, m.Y + m.Height
}

// Contains checks if a point is within this monitor
func (m *Monitor) Contains(x, y int32) bool {
	return x >= m.X && x < m.X+m.Width && y >= m.Y && y < m.Y+m.Height
}

// DPI returns the horizontal pixel density, or 0 when the physical size is unknown
func (m *Monitor) DPI() float64 {
	if m.WidthMM == 0 {
		return 0
	}
	return float64(m.Width) / (float64(m.WidthMM) / 25.4)
}

func (m *Monitor) String() string {
	return fmt.Sprintf("%s %dx%d+%d+%d@%.2f", m.ID, m.Width, m.Height, m.X, m.Y, m.Refresh)
}

// Display holds the detected monitor layout
type Display struct {
	monitors []*Monitor
}

// New detects monitors through reg
func New(reg *drm.Registry) (*Display, error) {
	monitors, err := Detect(reg)
	if err != nil {
		return nil, err
	}
	return &Display{monitors: monitors}, nil
}

// Detect checks out every available connector, turns the connected ones into
// monitors and returns all handles to the registry before returning.
// Connectors held elsewhere are skipped.
func Detect(reg *drm.Registry) ([]*Monitor, error) {
	var monitors []*Monitor
	for conn, err := range reg.Connectors() {
		if err != nil {
			if errors.Is(err, drm.ErrNotAvailable) {
				logger.Debug("Display.Detect: skipping connector in use", "err", err)
				continue
			}
			return nil, err
		}

		m := fromConnector(reg, conn)
		release(conn)
		if m == nil {
			continue
		}
		logger.Debugf("Display.Detect: found %s", m)
		monitors = append(monitors, m)
	}

	layout(monitors)
	determinePrimaryMonitor(monitors)
	return monitors, nil
}

func fromConnector(reg *drm.Registry, conn *drm.Connector) *Monitor {
	if !conn.Connected() {
		return nil
	}

	m := &Monitor{
		ID:        conn.Name(),
		Connector: conn.ID(),
		WidthMM:   conn.WidthMM,
		HeightMM:  conn.HeightMM,
	}

	mode, x, y, active := currentMode(reg, conn)
	if !active {
		var ok bool
		if mode, ok = drm.PreferredMode(conn.Modes); !ok {
			logger.Debugf("Display.Detect: %s is connected but reports no modes", m.ID)
			return nil
		}
	}

	w, h := mode.Size()
	m.Width, m.Height = int32(w), int32(h)
	m.Refresh = mode.RefreshRate()
	m.X, m.Y = int32(x), int32(y)
	m.Active = active
	return m
}

// currentMode follows connector -> encoder -> controller to the mode being
// scanned out, if any.
func currentMode(reg *drm.Registry, conn *drm.Connector) (mode drm.Mode, x, y uint32, ok bool) {
	if conn.Encoder == 0 {
		return drm.Mode{}, 0, 0, false
	}
	enc, err := reg.Encoder(conn.Encoder)
	if err != nil {
		logger.Debug("Display.Detect: encoder unavailable", "connector", conn.Name(), "err", err)
		return drm.Mode{}, 0, 0, false
	}
	defer release(enc)

	if enc.Controller == 0 {
		return drm.Mode{}, 0, 0, false
	}
	ctrl, err := reg.Controller(enc.Controller)
	if err != nil {
		logger.Debug("Display.Detect: controller unavailable", "connector", conn.Name(), "err", err)
		return drm.Mode{}, 0, 0, false
	}
	defer release(ctrl)

	if ctrl.Mode == nil {
		return drm.Mode{}, 0, 0, false
	}
	return *ctrl.Mode, ctrl.X, ctrl.Y, true
}

// release hands a checked-out resource back to the registry
func release(c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Warn("Display.Detect: release failed", "err", err)
	}
}

// layout places inactive monitors side by side to the right of the active ones
func layout(monitors []*Monitor) {
	var right int32
	for _, m := range monitors {
		if m.Active {
			right = max(right, m.X+m.Width)
		}
	}
	for _, m := range monitors {
		if !m.Active {
			m.X, m.Y = right, 0
			right += m.Width
		}
	}
}

// GetMonitors returns all detected monitors
func (d *Display) GetMonitors() []*Monitor {
	return d.monitors
}

// GetPrimaryMonitor returns the primary monitor
func (d *Display) GetPrimaryMonitor() *Monitor {
	for _, m := range d.monitors {
		if m.Primary {
			return m
		}
	}
	// Fallback to first monitor
	if len(d.monitors) > 0 {
		return d.monitors[0]
	}
	return nil
}

// GetMonitorAt returns the monitor containing the given coordinates
func (d *Display) GetMonitorAt(x, y int32) *Monitor {
	for _, m := range d.monitors {
		if m.Contains(x, y) {
			return m
		}
	}
	return nil
}

// GetMonitor returns the monitor with the given connector name
func (d *Display) GetMonitor(id string) *Monitor {
	for _, m := range d.monitors {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// determinePrimaryMonitor sets the primary monitor based on position
// The monitor at position (0,0) is considered primary, with fallback to first monitor
func determinePrimaryMonitor(monitors []*Monitor) {
	for _, monitor := range monitors {
		monitor.Primary = false
	}

	for _, monitor := range monitors {
		if monitor.X == 0 && monitor.Y == 0 {
			monitor.Primary = true
			return
		}
	}

	if len(monitors) > 0 {
		monitors[0].Primary = true
	}
}
