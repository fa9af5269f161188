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

func TestCommitApplies(t *testing.T) {
	k, _ := newModesetRegistry(t)

	updates := []drm.PropertyUpdate{
		{Object: kerneltest.PlaneOverlay0, Property: kerneltest.PropCrtcID, Value: kerneltest.CrtcSecondary},
		{Object: kerneltest.CrtcSecondary, Property: kerneltest.PropActive, Value: 1},
		{Object: kerneltest.PlaneOverlay0, Property: kerneltest.PropSrcX, Value: 16},
	}
	require.NoError(t, drm.Commit(k, updates))
	assert.Equal(t, 1, k.Commits())

	v, _ := k.PropertyValue(kerneltest.PlaneOverlay0, kerneltest.PropCrtcID)
	assert.Equal(t, uint64(kerneltest.CrtcSecondary), v)
	v, _ = k.PropertyValue(kerneltest.PlaneOverlay0, kerneltest.PropSrcX)
	assert.Equal(t, uint64(16), v)
	v, _ = k.PropertyValue(kerneltest.CrtcSecondary, kerneltest.PropActive)
	assert.Equal(t, uint64(1), v)
}

func TestCommitIsAllOrNothing(t *testing.T) {
	k, _ := newModesetRegistry(t)

	updates := []drm.PropertyUpdate{
		{Object: kerneltest.PlaneOverlay0, Property: kerneltest.PropSrcX, Value: 32},
		{Object: kerneltest.CrtcSecondary, Property: kerneltest.PropActive, Value: 5},
	}
	err := drm.Commit(k, updates)
	var kerr *drm.KernelCallError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, unix.EINVAL, kerr.Errno())

	v, _ := k.PropertyValue(kerneltest.PlaneOverlay0, kerneltest.PropSrcX)
	assert.Equal(t, uint64(0), v)
	assert.Equal(t, 0, k.Commits())
	assert.Equal(t, 1, k.Calls(uapi.IOCTLModeAtomic))
}

func TestCommitRejectsImmutable(t *testing.T) {
	k, _ := newModesetRegistry(t)

	err := drm.Commit(k, []drm.PropertyUpdate{
		{Object: kerneltest.ConnectorHDMI, Property: kerneltest.PropEDID, Value: 0},
	})
	assert.Error(t, err)
	v, _ := k.PropertyValue(kerneltest.ConnectorHDMI, kerneltest.PropEDID)
	assert.Equal(t, uint64(kerneltest.EDIDBlob), v)
}

func TestCommitNeedsMaster(t *testing.T) {
	k := kerneltest.New()
	require.NoError(t, drm.EnableModesetting(k))

	err := drm.Commit(k, []drm.PropertyUpdate{
		{Object: kerneltest.CrtcSecondary, Property: kerneltest.PropActive, Value: 1},
	})
	assert.ErrorIs(t, err, drm.ErrPermissionDenied)
}

func TestTestCommitAppliesNothing(t *testing.T) {
	k, _ := newModesetRegistry(t)

	updates := []drm.PropertyUpdate{
		{Object: kerneltest.CrtcSecondary, Property: kerneltest.PropActive, Value: 1},
	}
	require.NoError(t, drm.TestCommit(k, updates))
	v, _ := k.PropertyValue(kerneltest.CrtcSecondary, kerneltest.PropActive)
	assert.Equal(t, uint64(0), v)
	assert.Equal(t, 0, k.Commits())

	updates[0].Value = 2
	assert.Error(t, drm.TestCommit(k, updates))
}

func TestEmptyCommitIsNoop(t *testing.T) {
	k := kerneltest.New()

	require.NoError(t, drm.Commit(k, nil))
	require.NoError(t, drm.TestCommit(k, []drm.PropertyUpdate{}))
	assert.Equal(t, 0, k.Calls(uapi.IOCTLModeAtomic))
}

func TestCommitModeBlob(t *testing.T) {
	k, reg := newModesetRegistry(t)

	conn, err := reg.Connector(kerneltest.ConnectorHDMI)
	require.NoError(t, err)
	defer conn.Close()
	mode, ok := drm.PreferredMode(conn.Modes)
	require.True(t, ok)

	blob, err := drm.CreateModeBlob(k, mode)
	require.NoError(t, err)

	props, err := drm.Properties(k, drm.ObjectController, kerneltest.CrtcSecondary)
	require.NoError(t, err)
	modeID := property(t, props, "MODE_ID").Value.(*drm.BlobValue)
	active := property(t, props, "ACTIVE").Value.(*drm.URangeValue)

	require.NoError(t, drm.Commit(k, []drm.PropertyUpdate{
		modeID.Update(blob),
		active.Update(1),
	}))

	props, err = drm.Properties(k, drm.ObjectController, kerneltest.CrtcSecondary)
	require.NoError(t, err)
	modeID = property(t, props, "MODE_ID").Value.(*drm.BlobValue)
	assert.Equal(t, blob, modeID.ID)

	decoded, err := drm.ModeFromBlob(modeID.Data)
	require.NoError(t, err)
	assert.Equal(t, mode, decoded)
}
