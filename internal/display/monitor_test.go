package display

import (
	"testing"

	"github.com/bnema/drmkit/drm"
	"github.com/bnema/drmkit/internal/kerneltest"
	"github.com/bnema/drmkit/internal/uapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newRegistry(t *testing.T, k *kerneltest.Kernel) *drm.Registry {
	t.Helper()
	reg, err := drm.NewRegistry(k)
	require.NoError(t, err)
	return reg
}

// addSecondDP plugs a connected DisplayPort monitor that nothing drives yet.
func addSecondDP(k *kerneltest.Kernel) {
	k.AddConnector(&kerneltest.Connector{
		ID:         9,
		Type:       10,
		TypeID:     2,
		Connection: uapi.Connected,
		MmWidth:    300,
		Modes:      []uapi.ModeInfo{kerneltest.Mode720p()},
	})
}

func TestDetect(t *testing.T) {
	k := kerneltest.New()
	reg := newRegistry(t, k)

	monitors, err := Detect(reg)
	require.NoError(t, err)
	require.Len(t, monitors, 1)

	m := monitors[0]
	assert.Equal(t, "HDMI-A-1", m.ID)
	assert.Equal(t, drm.ResourceID(kerneltest.ConnectorHDMI), m.Connector)
	assert.Equal(t, int32(1920), m.Width)
	assert.Equal(t, int32(1080), m.Height)
	assert.InDelta(t, 60, m.Refresh, 0.01)
	assert.True(t, m.Active)
	assert.True(t, m.Primary)
	assert.Equal(t, "HDMI-A-1 1920x1080+0+0@60.00", m.String())

	// Everything went back to the registry.
	assert.Len(t, reg.Available(drm.ObjectConnector), 2)
	assert.Len(t, reg.Available(drm.ObjectEncoder), 2)
	assert.Len(t, reg.Available(drm.ObjectController), 2)
}

func TestDetectLaysOutInactiveMonitors(t *testing.T) {
	k := kerneltest.New()
	addSecondDP(k)
	d, err := New(newRegistry(t, k))
	require.NoError(t, err)
	require.Len(t, d.GetMonitors(), 2)

	dp := d.GetMonitor("DP-2")
	require.NotNil(t, dp)
	assert.False(t, dp.Active)
	assert.Equal(t, int32(1920), dp.X)
	assert.Equal(t, int32(1280), dp.Width)

	assert.Equal(t, "HDMI-A-1", d.GetPrimaryMonitor().ID)
	assert.Equal(t, dp, d.GetMonitorAt(2000, 10))
	assert.Nil(t, d.GetMonitorAt(4000, 10))
	assert.Nil(t, d.GetMonitor("VGA-1"))
}

func TestDetectSkipsHeldResources(t *testing.T) {
	t.Run("connector", func(t *testing.T) {
		reg := newRegistry(t, kerneltest.New())
		conn, err := reg.Connector(kerneltest.ConnectorHDMI)
		require.NoError(t, err)
		defer conn.Close()

		monitors, err := Detect(reg)
		require.NoError(t, err)
		assert.Empty(t, monitors)
	})

	t.Run("controller falls back to preferred mode", func(t *testing.T) {
		reg := newRegistry(t, kerneltest.New())
		ctrl, err := reg.Controller(kerneltest.CrtcPrimary)
		require.NoError(t, err)
		defer ctrl.Close()

		monitors, err := Detect(reg)
		require.NoError(t, err)
		require.Len(t, monitors, 1)
		assert.False(t, monitors[0].Active)
		assert.Equal(t, int32(1920), monitors[0].Width)
		assert.True(t, monitors[0].Primary)
	})
}

func TestDetectFailure(t *testing.T) {
	k := kerneltest.New()
	reg := newRegistry(t, k)
	k.Fail(uapi.IOCTLModeGetConnector, unix.EIO)

	_, err := Detect(reg)
	assert.Error(t, err)
	assert.Len(t, reg.Available(drm.ObjectConnector), 2)
}

func TestMonitorGeometry(t *testing.T) {
	m := &Monitor{X: -1920, Y: 0, Width: 1920, Height: 1080, WidthMM: 508}

	x1, y1, x2, y2 := m.Bounds()
	assert.Equal(t, [4]int32{-1920, 0, 0, 1080}, [4]int32{x1, y1, x2, y2})
	assert.True(t, m.Contains(-1, 1079))
	assert.False(t, m.Contains(0, 0))
	assert.InDelta(t, 96, m.DPI(), 0.01)
	assert.Zero(t, (&Monitor{Width: 100}).DPI())
}

func TestPrimaryMonitorDetermination(t *testing.T) {
	tests := []struct {
		name            string
		monitors        []*Monitor
		expectedPrimary string
	}{
		{
			name: "monitor at 0,0 should be primary",
			monitors: []*Monitor{
				{ID: "DP-1", X: -1920, Y: 0, Width: 1920, Height: 1080},
				{ID: "HDMI-A-1", X: 0, Y: 0, Width: 1920, Height: 1080},
			},
			expectedPrimary: "HDMI-A-1",
		},
		{
			name: "first monitor fallback when no monitor at 0,0",
			monitors: []*Monitor{
				{ID: "DP-1", X: -1920, Y: 0, Width: 1920, Height: 1080},
				{ID: "HDMI-A-1", X: 1920, Y: 0, Width: 1920, Height: 1080},
			},
			expectedPrimary: "DP-1",
		},
		{
			name: "stale primary flag is cleared",
			monitors: []*Monitor{
				{ID: "eDP-1", X: 3840, Y: 0, Width: 1920, Height: 1080, Primary: true},
				{ID: "DP-1", X: 0, Y: 0, Width: 3840, Height: 2160},
			},
			expectedPrimary: "DP-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			determinePrimaryMonitor(tt.monitors)

			var primary []string
			for _, m := range tt.monitors {
				if m.Primary {
					primary = append(primary, m.ID)
				}
			}
			assert.Equal(t, []string{tt.expectedPrimary}, primary)
		})
	}

	t.Run("no monitors", func(t *testing.T) {
		determinePrimaryMonitor(nil)
		assert.Nil(t, (&Display{}).GetPrimaryMonitor())
	})
}
