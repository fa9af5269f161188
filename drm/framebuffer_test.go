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

func TestFramebufferFromDumbBuffer(t *testing.T) {
	k := kerneltest.New()
	buf, err := drm.CreateDumbBuffer(k, 640, 480, 32)
	require.NoError(t, err)

	fb, err := drm.AddFramebuffer(k, buf)
	require.NoError(t, err)
	assert.Equal(t, drm.ObjectFramebuffer, fb.Kind())
	assert.True(t, k.HasFramebuffer(uint32(fb.ID())))

	info, err := drm.FramebufferInfo(k, fb.ID())
	require.NoError(t, err)
	assert.Equal(t, uint32(640), info.Width)
	assert.Equal(t, uint32(480), info.Height)
	assert.Equal(t, buf.Pitch(), info.Pitch)
	assert.Equal(t, uint32(32), info.BPP)
	assert.Equal(t, uint32(24), info.Depth)
	// Only master sees the buffer handle.
	assert.Equal(t, drm.BufferHandle(0), info.Handle)

	require.NoError(t, drm.AcquireMaster(k))
	info, err = drm.FramebufferInfo(k, fb.ID())
	require.NoError(t, err)
	assert.Equal(t, buf.Handle(), info.Handle)

	require.NoError(t, fb.Close())
	require.NoError(t, fb.Close())
	assert.False(t, k.HasFramebuffer(uint32(fb.ID())))
	assert.Equal(t, 1, k.Calls(uapi.IOCTLModeRmFB))

	require.NoError(t, buf.Close())
}

func TestFramebufferInfoUnknown(t *testing.T) {
	k := kerneltest.New()

	_, err := drm.FramebufferInfo(k, 12345)
	var kerr *drm.KernelCallError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, unix.ENOENT, kerr.Errno())
}

func TestFramebufferCloseFailureSticks(t *testing.T) {
	k := kerneltest.New()
	buf, err := drm.CreateDumbBuffer(k, 32, 32, 32)
	require.NoError(t, err)
	fb, err := drm.AddFramebuffer(k, buf)
	require.NoError(t, err)

	k.Fail(uapi.IOCTLModeRmFB, unix.EIO)
	first := fb.Close()
	require.Error(t, first)
	k.ClearFailures()
	assert.Equal(t, first, fb.Close())
	assert.Equal(t, 1, k.Calls(uapi.IOCTLModeRmFB))
}

func TestBindController(t *testing.T) {
	k, reg := newRegistry(t)

	conn, err := reg.Connector(kerneltest.ConnectorHDMI)
	require.NoError(t, err)
	defer conn.Close()
	ctrl, err := reg.Controller(kerneltest.CrtcSecondary)
	require.NoError(t, err)
	defer ctrl.Close()

	mode, ok := drm.PreferredMode(conn.Modes)
	require.True(t, ok)
	width, height := mode.Size()

	buf, err := drm.CreateDumbBuffer(k, uint32(width), uint32(height), 32)
	require.NoError(t, err)
	fb, err := drm.AddFramebuffer(k, buf)
	require.NoError(t, err)

	err = drm.BindController(k, ctrl, fb, []*drm.Connector{conn}, &mode)
	assert.ErrorIs(t, err, drm.ErrPermissionDenied)
	assert.Nil(t, k.Crtc(kerneltest.CrtcSecondary).Mode)

	require.NoError(t, drm.AcquireMaster(k))
	require.NoError(t, drm.BindController(k, ctrl, fb, []*drm.Connector{conn}, &mode))

	kc := k.Crtc(kerneltest.CrtcSecondary)
	assert.Equal(t, uint32(fb.ID()), kc.FB)
	assert.Equal(t, []uint32{kerneltest.ConnectorHDMI}, kc.Connectors)
	require.NotNil(t, kc.Mode)
	assert.Equal(t, uint16(1920), kc.Mode.HDisplay)
	assert.True(t, ctrl.Active())
	assert.Equal(t, fb.ID(), ctrl.Framebuffer)

	require.NoError(t, drm.BindController(k, ctrl, nil, nil, nil))
	assert.Nil(t, k.Crtc(kerneltest.CrtcSecondary).Mode)
	assert.Equal(t, uint32(0), k.Crtc(kerneltest.CrtcSecondary).FB)
	assert.False(t, ctrl.Active())

	require.NoError(t, fb.Close())
	require.NoError(t, buf.Close())
}

func TestBindControllerNeedsFramebuffer(t *testing.T) {
	k, reg := newRegistry(t)
	require.NoError(t, drm.AcquireMaster(k))
	ctrl, err := reg.Controller(kerneltest.CrtcSecondary)
	require.NoError(t, err)
	defer ctrl.Close()

	mode := drm.Mode{HDisplay: 640, VDisplay: 480}
	assert.Error(t, drm.BindController(k, ctrl, nil, nil, &mode))
	assert.Equal(t, 0, k.Calls(uapi.IOCTLModeSetCrtc))
}
