package drm_test

import (
	"testing"

	"github.com/bnema/drmkit/drm"
	"github.com/bnema/drmkit/internal/kerneltest"
	"github.com/bnema/drmkit/internal/uapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestConnectorFields(t *testing.T) {
	_, reg := newRegistry(t)

	conn, err := reg.Connector(kerneltest.ConnectorHDMI)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, drm.InterfaceHDMIA, conn.Interface)
	assert.Equal(t, "HDMI-A-1", conn.Name())
	assert.Equal(t, drm.StateConnected, conn.State)
	assert.True(t, conn.Connected())
	assert.Equal(t, uint32(600), conn.WidthMM)
	assert.Equal(t, uint32(340), conn.HeightMM)
	assert.Equal(t, drm.SubPixelHorizontalRGB, conn.SubPixel)
	assert.Equal(t, drm.ResourceID(kerneltest.EncoderHDMI), conn.Encoder)
	assert.Equal(t, []drm.ResourceID{kerneltest.EncoderHDMI}, conn.Encoders)

	require.Len(t, conn.Modes, 2)
	assert.Equal(t, "1920x1080", conn.Modes[0].Name)
	assert.True(t, conn.Modes[0].Preferred())
	assert.Equal(t, "1280x720", conn.Modes[1].Name)

	// CRTC_ID is atomic-only and hidden without the atomic cap.
	assert.Equal(t, []drm.ResourceID{kerneltest.PropDPMS, kerneltest.PropEDID}, conn.PropertyIDs)
	assert.Equal(t, []uint64{0, kerneltest.EDIDBlob}, conn.PropertyValues)
}

func TestConnectorModesGrowBetweenCalls(t *testing.T) {
	k, reg := newRegistry(t)

	// A hotplug after the counting call leaves the mode array too small. The
	// kernel then copies no modes at all.
	next := k.Calls(uapi.IOCTLModeGetConnector) + 1
	k.After(uapi.IOCTLModeGetConnector, next, func() {
		k.AddMode(kerneltest.ConnectorHDMI, kerneltest.Mode720p())
	})

	conn, err := reg.Connector(kerneltest.ConnectorHDMI)
	require.NoError(t, err)
	assert.Empty(t, conn.Modes)
	assert.Equal(t, []drm.ResourceID{kerneltest.EncoderHDMI}, conn.Encoders)
	assert.Len(t, conn.PropertyIDs, 2)
	require.NoError(t, conn.Close())

	conn, err = reg.Connector(kerneltest.ConnectorHDMI)
	require.NoError(t, err)
	defer conn.Close()
	assert.Len(t, conn.Modes, 3)
}

func TestDisconnectedConnector(t *testing.T) {
	_, reg := newRegistry(t)

	conn, err := reg.Connector(kerneltest.ConnectorDP)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, drm.InterfaceDisplayPort, conn.Interface)
	assert.Equal(t, "DP-1", conn.Name())
	assert.Equal(t, drm.StateDisconnected, conn.State)
	assert.False(t, conn.Connected())
	assert.Empty(t, conn.Modes)
	assert.Equal(t, drm.ResourceID(0), conn.Encoder)
	assert.Equal(t, drm.SubPixelUnknown, conn.SubPixel)
}

func TestConnectorSecondCallFailureAborts(t *testing.T) {
	k, reg := newRegistry(t)
	k.FailCall(uapi.IOCTLModeGetConnector, 2, unix.EFAULT)

	_, err := reg.Connector(kerneltest.ConnectorHDMI)
	var kerr *drm.KernelCallError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, unix.EFAULT, kerr.Errno())
	assert.Contains(t, reg.Available(drm.ObjectConnector), drm.ResourceID(kerneltest.ConnectorHDMI))
}

func TestConnectorInterfaceNames(t *testing.T) {
	tests := []struct {
		iface drm.ConnectorInterface
		want  string
	}{
		{drm.InterfaceUnknown, "Unknown"},
		{drm.InterfaceVGA, "VGA"},
		{drm.InterfaceDVII, "DVI-I"},
		{drm.InterfaceDisplayPort, "DP"},
		{drm.InterfaceHDMIA, "HDMI-A"},
		{drm.InterfaceEmbeddedDisplayPort, "eDP"},
		{drm.InterfaceUSB, "USB"},
		{drm.ConnectorInterface(99), "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.iface.String())
		})
	}
}

func TestUnknownConnectorType(t *testing.T) {
	k := kerneltest.Empty()
	k.AddConnector(&kerneltest.Connector{ID: 3, Type: 200, TypeID: 2, Connection: 7})
	reg, err := drm.NewRegistry(k)
	require.NoError(t, err)

	conn, err := reg.Connector(3)
	require.NoError(t, err)
	assert.Equal(t, drm.InterfaceUnknown, conn.Interface)
	assert.Equal(t, drm.StateUnknown, conn.State)
	assert.Equal(t, "Unknown-2", conn.Name())
}

func TestEncoderFields(t *testing.T) {
	_, reg := newRegistry(t)

	enc, err := reg.Encoder(kerneltest.EncoderHDMI)
	require.NoError(t, err)
	defer enc.Close()

	assert.Equal(t, drm.EncoderTMDS, enc.Type)
	assert.Equal(t, "TMDS", enc.Type.String())
	assert.Equal(t, drm.ResourceID(kerneltest.CrtcPrimary), enc.Controller)
	assert.Equal(t, uint32(0b11), enc.PossibleControllers)
}

func TestControllerFields(t *testing.T) {
	_, reg := newRegistry(t)

	active, err := reg.Controller(kerneltest.CrtcPrimary)
	require.NoError(t, err)
	defer active.Close()
	require.True(t, active.Active())
	assert.Equal(t, drm.ResourceID(kerneltest.ConsoleFB), active.Framebuffer)
	assert.Equal(t, "1920x1080", active.Mode.Name)
	assert.Equal(t, uint32(256), active.GammaLength)

	idle, err := reg.Controller(kerneltest.CrtcSecondary)
	require.NoError(t, err)
	defer idle.Close()
	assert.False(t, idle.Active())
	assert.Nil(t, idle.Mode)
	assert.Equal(t, drm.ResourceID(0), idle.Framebuffer)
}

func TestControllerGamma(t *testing.T) {
	_, reg := newRegistry(t)

	ctrl, err := reg.Controller(kerneltest.CrtcPrimary)
	require.NoError(t, err)
	defer ctrl.Close()

	red, green, blue, err := ctrl.Gamma()
	require.NoError(t, err)
	require.Len(t, red, 256)
	assert.Equal(t, uint16(0), red[0])
	assert.Equal(t, uint16(0xffff), red[255])
	assert.Equal(t, red, green)
	assert.Equal(t, red, blue)
}

func TestPlaneFields(t *testing.T) {
	_, reg := newModesetRegistry(t)

	primary, err := reg.Plane(kerneltest.PlanePrimary0)
	require.NoError(t, err)
	defer primary.Close()
	assert.Equal(t, drm.ResourceID(kerneltest.CrtcPrimary), primary.Controller)
	assert.Equal(t, drm.ResourceID(kerneltest.ConsoleFB), primary.Framebuffer)
	assert.True(t, primary.Supports(drm.FormatXRGB8888))
	assert.Equal(t, "XR24", primary.Formats[0].String())

	overlay, err := reg.Plane(kerneltest.PlaneOverlay0)
	require.NoError(t, err)
	defer overlay.Close()
	assert.False(t, overlay.Supports(drm.FormatXRGB8888))

	ctrl, err := reg.Controller(kerneltest.CrtcSecondary)
	require.NoError(t, err)
	defer ctrl.Close()
	assert.False(t, primary.CanUse(ctrl))
	assert.True(t, overlay.CanUse(ctrl))
}
