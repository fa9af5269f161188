package drm_test

import (
	"testing"

	"github.com/bnema/drmkit/drm"
	"github.com/bnema/drmkit/internal/kerneltest"
	"github.com/bnema/drmkit/internal/uapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobLifecycle(t *testing.T) {
	k := kerneltest.New()

	id, err := drm.CreateBlob(k, []byte("gamma lut"))
	require.NoError(t, err)
	assert.NotZero(t, id)

	data, err := drm.GetBlob(k, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("gamma lut"), data)
	assert.Equal(t, 2, k.Calls(uapi.IOCTLModeGetPropBlob))

	require.NoError(t, drm.DestroyBlob(k, id))
	_, ok := k.Blob(uint32(id))
	assert.False(t, ok)

	_, err = drm.GetBlob(k, id)
	assert.Error(t, err)
	assert.Error(t, drm.DestroyBlob(k, id))
}

func TestCreateEmptyBlob(t *testing.T) {
	k := kerneltest.New()

	_, err := drm.CreateBlob(k, nil)
	assert.Error(t, err)
}

func TestModeBlobRoundTrip(t *testing.T) {
	k := kerneltest.New()

	data, err := drm.GetBlob(k, kerneltest.ModeBlob)
	require.NoError(t, err)
	mode, err := drm.ModeFromBlob(data)
	require.NoError(t, err)
	assert.Equal(t, "1920x1080", mode.Name)

	id, err := drm.CreateModeBlob(k, mode)
	require.NoError(t, err)
	again, err := drm.GetBlob(k, id)
	require.NoError(t, err)
	assert.Equal(t, data, again)

	_, err = drm.ModeFromBlob(data[:10])
	assert.Error(t, err)
}
