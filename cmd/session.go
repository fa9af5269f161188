package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/bnema/drmkit/drm"
	"github.com/bnema/drmkit/internal/config"
	"github.com/bnema/drmkit/internal/logger"
	"github.com/bnema/drmkit/internal/uapi"
)

// openDevice opens the card at path. Tests replace it with an in-memory kernel.
var openDevice = func(path string) (drm.PrivilegedDevice, io.Closer, error) {
	card, err := drm.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return card, card, nil
}

// session is an opened device prepared the way the config asks
type session struct {
	path   string
	dev    drm.PrivilegedDevice
	reg    *drm.Registry
	closer io.Closer
	master bool
}

// openSession opens the configured device, becomes master when asked to (or
// when needMaster is set) and opts in to the configured client caps.
func openSession(cfg config.DeviceConfig, needMaster bool) (_ *session, err error) {
	dev, closer, err := openDevice(cfg.Path)
	if err != nil {
		return nil, err
	}
	s := &session{path: cfg.Path, dev: dev, closer: closer}
	defer func() {
		if err != nil {
			err = errors.Join(err, s.Close())
		}
	}()

	if cfg.AcquireMaster || needMaster {
		if err := drm.AcquireMaster(dev); err != nil {
			return nil, fmt.Errorf("failed to become DRM master on %s: %w", cfg.Path, err)
		}
		s.master = true
	}

	if needMaster && cfg.Atomic {
		if err := drm.EnableModesetting(dev); err != nil {
			return nil, err
		}
	} else {
		caps := []struct {
			enabled bool
			name    string
			cap     uint64
		}{
			{cfg.UniversalPlanes || cfg.Atomic, "universal planes", uapi.ClientCapUniversalPlanes},
			{cfg.Atomic, "atomic", uapi.ClientCapAtomic},
		}
		for _, c := range caps {
			if !c.enabled {
				continue
			}
			if err := drm.SetClientCap(dev, c.cap, 1); err != nil {
				logger.Warnf("Client cap %s refused: %v", c.name, err)
			}
		}
	}

	if s.reg, err = drm.NewRegistry(dev); err != nil {
		return nil, fmt.Errorf("failed to read resources of %s: %w", cfg.Path, err)
	}
	return s, nil
}

// closeLogged closes c and logs the failure, for deferred closes whose error
// has nowhere else to go.
func closeLogged(what string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Warn("close failed", "what", what, "err", err)
	}
}

// Close drops master and closes the device
func (s *session) Close() error {
	var errs []error
	if s.master {
		errs = append(errs, drm.DropMaster(s.dev))
		s.master = false
	}
	errs = append(errs, s.closer.Close())
	return errors.Join(errs...)
}
