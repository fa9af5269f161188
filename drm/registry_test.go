package drm_test

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/bnema/drmkit/drm"
	"github.com/bnema/drmkit/internal/kerneltest"
	"github.com/bnema/drmkit/internal/uapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// newRegistry snapshots the default fixture without any client caps.
func newRegistry(t *testing.T) (*kerneltest.Kernel, *drm.Registry) {
	t.Helper()
	k := kerneltest.New()
	reg, err := drm.NewRegistry(k)
	require.NoError(t, err)
	return k, reg
}

// newModesetRegistry is newRegistry for a master with the atomic caps enabled.
func newModesetRegistry(t *testing.T) (*kerneltest.Kernel, *drm.Registry) {
	t.Helper()
	k := kerneltest.New()
	require.NoError(t, drm.AcquireMaster(k))
	require.NoError(t, drm.EnableModesetting(k))
	reg, err := drm.NewRegistry(k)
	require.NoError(t, err)
	return k, reg
}

func TestRegistrySnapshot(t *testing.T) {
	_, reg := newRegistry(t)

	assert.Equal(t, []drm.ResourceID{7, 8}, reg.Available(drm.ObjectConnector))
	assert.Equal(t, []drm.ResourceID{20, 21}, reg.Available(drm.ObjectEncoder))
	assert.Equal(t, []drm.ResourceID{30, 31}, reg.Available(drm.ObjectController))
	assert.Nil(t, reg.Available(drm.ObjectFramebuffer))

	limits := reg.Resources()
	assert.Equal(t, uint32(8192), limits.MaxWidth)
	assert.Equal(t, uint32(8192), limits.MaxHeight)
}

func TestRegistryPlanesNeedUniversalPlanes(t *testing.T) {
	_, reg := newRegistry(t)
	assert.Equal(t, []drm.ResourceID{kerneltest.PlaneOverlay0}, reg.Available(drm.ObjectPlane))

	_, reg = newModesetRegistry(t)
	assert.Equal(t, []drm.ResourceID{40, 41, 42}, reg.Available(drm.ObjectPlane))
}

func TestCheckoutIsExclusive(t *testing.T) {
	_, reg := newRegistry(t)

	conn, err := reg.Connector(7)
	require.NoError(t, err)
	assert.Equal(t, drm.ResourceID(7), conn.ID())
	assert.Equal(t, drm.ObjectConnector, conn.Kind())
	assert.NotContains(t, reg.Available(drm.ObjectConnector), drm.ResourceID(7))

	_, err = reg.Connector(7)
	assert.ErrorIs(t, err, drm.ErrNotAvailable)

	require.NoError(t, conn.Close())
	assert.Equal(t, []drm.ResourceID{7, 8}, reg.Available(drm.ObjectConnector))

	again, err := reg.Connector(7)
	require.NoError(t, err)
	defer again.Close()

	// A second Close of the old handle must not free the new checkout.
	require.NoError(t, conn.Close())
	_, err = reg.Connector(7)
	assert.ErrorIs(t, err, drm.ErrNotAvailable)
}

func TestConcurrentCheckoutOfOneID(t *testing.T) {
	const workers = 8
	for round := range 50 {
		_, reg := newRegistry(t)

		var (
			start = make(chan struct{})
			wg    sync.WaitGroup
			conns = make([]*drm.Connector, workers)
			errs  = make([]error, workers)
		)
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				conns[i], errs[i] = reg.Connector(kerneltest.ConnectorHDMI)
			}()
		}
		close(start)
		wg.Wait()

		var winner *drm.Connector
		for i, err := range errs {
			if err == nil {
				require.Nil(t, winner, "round %d: two checkouts of the same id", round)
				winner = conns[i]
				continue
			}
			assert.ErrorIs(t, err, drm.ErrNotAvailable, "round %d", round)
		}
		require.NotNil(t, winner, "round %d: no checkout succeeded", round)
		require.NoError(t, winner.Close())
		assert.Equal(t, []drm.ResourceID{7, 8}, reg.Available(drm.ObjectConnector))
	}
}

func TestConcurrentCheckoutOfDistinctIDs(t *testing.T) {
	_, reg := newModesetRegistry(t)

	checkouts := []func() (drm.Resource, error){
		func() (drm.Resource, error) { return reg.Connector(7) },
		func() (drm.Resource, error) { return reg.Connector(8) },
		func() (drm.Resource, error) { return reg.Encoder(20) },
		func() (drm.Resource, error) { return reg.Encoder(21) },
		func() (drm.Resource, error) { return reg.Controller(30) },
		func() (drm.Resource, error) { return reg.Controller(31) },
		func() (drm.Resource, error) { return reg.Plane(40) },
		func() (drm.Resource, error) { return reg.Plane(41) },
		func() (drm.Resource, error) { return reg.Plane(42) },
	}

	var (
		start = make(chan struct{})
		wg    sync.WaitGroup
		errs  = make([]error, len(checkouts))
	)
	for i, checkout := range checkouts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			r, err := checkout()
			if err != nil {
				errs[i] = err
				return
			}
			errs[i] = r.(io.Closer).Close()
		}()
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "checkout %d", i)
	}
	assert.Equal(t, []drm.ResourceID{7, 8}, reg.Available(drm.ObjectConnector))
	assert.Equal(t, []drm.ResourceID{20, 21}, reg.Available(drm.ObjectEncoder))
	assert.Equal(t, []drm.ResourceID{30, 31}, reg.Available(drm.ObjectController))
	assert.Equal(t, []drm.ResourceID{40, 41, 42}, reg.Available(drm.ObjectPlane))
}

func TestCheckoutUnknownID(t *testing.T) {
	_, reg := newRegistry(t)

	_, err := reg.Controller(99)
	assert.ErrorIs(t, err, drm.ErrNotAvailable)
	_, err = reg.Encoder(30)
	assert.ErrorIs(t, err, drm.ErrNotAvailable)
}

func TestCheckoutFailureReturnsID(t *testing.T) {
	k, reg := newRegistry(t)
	k.FailCall(uapi.IOCTLModeGetEncoder, 1, unix.EIO)

	_, err := reg.Encoder(20)
	require.Error(t, err)
	var kerr *drm.KernelCallError
	require.True(t, errors.As(err, &kerr))
	assert.Equal(t, unix.EIO, kerr.Errno())
	assert.Contains(t, reg.Available(drm.ObjectEncoder), drm.ResourceID(20))

	enc, err := reg.Encoder(20)
	require.NoError(t, err)
	assert.NoError(t, enc.Close())
}

func TestIterateYieldsEachAvailableOnce(t *testing.T) {
	_, reg := newRegistry(t)

	held, err := reg.Controller(31)
	require.NoError(t, err)

	seq := reg.Controllers()
	var got []drm.ResourceID
	for ctrl, err := range seq {
		require.NoError(t, err)
		got = append(got, ctrl.ID())
	}
	assert.Equal(t, []drm.ResourceID{30}, got)

	for range seq {
		t.Fatal("sequence yielded on a second range")
	}

	require.NoError(t, held.Close())
}

func TestIterateContinuesAfterFailure(t *testing.T) {
	k, reg := newRegistry(t)
	k.FailCall(uapi.IOCTLModeGetEncoder, 1, unix.EIO)

	var errs int
	var got []drm.ResourceID
	for enc, err := range reg.Encoders() {
		if err != nil {
			assert.Nil(t, enc)
			errs++
			continue
		}
		got = append(got, enc.ID())
	}
	assert.Equal(t, 1, errs)
	assert.Equal(t, []drm.ResourceID{21}, got)
	assert.Equal(t, []drm.ResourceID{20}, reg.Available(drm.ObjectEncoder))
}

func TestIterateStopsEarly(t *testing.T) {
	_, reg := newRegistry(t)

	for conn, err := range reg.Connectors() {
		require.NoError(t, err)
		assert.Equal(t, drm.ResourceID(7), conn.ID())
		break
	}
	assert.Equal(t, []drm.ResourceID{8}, reg.Available(drm.ObjectConnector))
}

func TestCompatible(t *testing.T) {
	_, reg := newRegistry(t)

	hdmi, err := reg.Connector(kerneltest.ConnectorHDMI)
	require.NoError(t, err)
	dp, err := reg.Connector(kerneltest.ConnectorDP)
	require.NoError(t, err)
	hdmiEnc, err := reg.Encoder(kerneltest.EncoderHDMI)
	require.NoError(t, err)
	dpEnc, err := reg.Encoder(kerneltest.EncoderDP)
	require.NoError(t, err)
	first, err := reg.Controller(kerneltest.CrtcPrimary)
	require.NoError(t, err)
	second, err := reg.Controller(kerneltest.CrtcSecondary)
	require.NoError(t, err)

	assert.Equal(t, 0, first.Index)
	assert.Equal(t, 1, second.Index)

	assert.NoError(t, reg.Compatible(hdmi, hdmiEnc, first))
	assert.NoError(t, reg.Compatible(hdmi, hdmiEnc, second))
	assert.NoError(t, reg.Compatible(dp, dpEnc, second))
	assert.ErrorIs(t, reg.Compatible(dp, dpEnc, first), drm.ErrIncompatible)
	assert.ErrorIs(t, reg.Compatible(hdmi, dpEnc, second), drm.ErrIncompatible)
}

func TestGetResourcesSkipsSecondCallWhenEmpty(t *testing.T) {
	k := kerneltest.Empty()

	res, err := drm.GetResources(k)
	require.NoError(t, err)
	assert.Empty(t, res.Connectors)
	assert.Empty(t, res.Controllers)
	assert.Equal(t, 1, k.Calls(uapi.IOCTLModeGetResources))

	planes, err := drm.GetPlaneIDs(k)
	require.NoError(t, err)
	assert.Empty(t, planes)
	assert.Equal(t, 1, k.Calls(uapi.IOCTLModeGetPlaneResources))
}

func TestGetResourcesSecondCallFailure(t *testing.T) {
	k := kerneltest.New()
	k.FailCall(uapi.IOCTLModeGetResources, 2, unix.ENOMEM)

	_, err := drm.GetResources(k)
	var kerr *drm.KernelCallError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, unix.ENOMEM, kerr.Errno())
	assert.Equal(t, 2, k.Calls(uapi.IOCTLModeGetResources))

	_, err = drm.NewRegistry(k)
	assert.NoError(t, err)
}

func TestGetResourcesListsFramebuffers(t *testing.T) {
	k := kerneltest.New()

	res, err := drm.GetResources(k)
	require.NoError(t, err)
	assert.Equal(t, []drm.ResourceID{kerneltest.ConsoleFB}, res.Framebuffers)
	assert.Equal(t, 2, k.Calls(uapi.IOCTLModeGetResources))
}
