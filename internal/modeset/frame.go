package modeset

import (
	"errors"
	"fmt"

	"github.com/bnema/drmkit/drm"
	"github.com/bnema/drmkit/internal/logger"
)

// ErrMissingProperty is returned when an object lacks a property the commit needs
var ErrMissingProperty = errors.New("missing property")

// changes collects property updates together with the values they replace
type changes struct {
	apply   []drm.PropertyUpdate
	restore []drm.PropertyUpdate
	err     error
}

func (c *changes) set(props []drm.Property, name string, required bool, update func(drm.PropertyValue) (drm.PropertyUpdate, error)) {
	if c.err != nil {
		return
	}
	p, ok := drm.FindProperty(props, name)
	if !ok {
		if required {
			c.err = fmt.Errorf("%w: %s", ErrMissingProperty, name)
		}
		return
	}
	u, err := update(p.Value)
	if err != nil {
		c.err = fmt.Errorf("%s: %w", name, err)
		return
	}
	c.apply = append(c.apply, u)
	old := u
	old.Value = p.Value.Raw()
	c.restore = append(c.restore, old)
}

func (c *changes) object(props []drm.Property, name string, r drm.Resource) {
	c.set(props, name, true, func(v drm.PropertyValue) (drm.PropertyUpdate, error) {
		o, ok := v.(*drm.ObjectValue)
		if !ok {
			return drm.PropertyUpdate{}, fmt.Errorf("not an object property: %w", drm.ErrIncompatible)
		}
		return o.UpdateTo(r)
	})
}

func (c *changes) blob(props []drm.Property, name string, id drm.BlobID) {
	c.set(props, name, true, func(v drm.PropertyValue) (drm.PropertyUpdate, error) {
		b, ok := v.(*drm.BlobValue)
		if !ok {
			return drm.PropertyUpdate{}, fmt.Errorf("not a blob property: %w", drm.ErrIncompatible)
		}
		return b.Update(id), nil
	})
}

// number sets a range property of either signedness
func (c *changes) number(props []drm.Property, name string, required bool, n int64) {
	c.set(props, name, required, func(v drm.PropertyValue) (drm.PropertyUpdate, error) {
		switch r := v.(type) {
		case *drm.URangeValue:
			if n < 0 {
				return drm.PropertyUpdate{}, fmt.Errorf("%d is negative", n)
			}
			return r.Update(uint64(n)), nil
		case *drm.IRangeValue:
			return r.Update(n), nil
		default:
			return drm.PropertyUpdate{}, fmt.Errorf("not a range property: %w", drm.ErrIncompatible)
		}
	})
}

// Updates builds the atomic updates that show fb full-screen on p with
// modeBlob as the controller mode. The second slice puts every touched
// property back to its current value.
func Updates(p *Pipeline, fb *drm.Framebuffer, modeBlob drm.BlobID) (apply, restore []drm.PropertyUpdate, err error) {
	connProps, err := p.Connector.Properties()
	if err != nil {
		return nil, nil, err
	}
	ctrlProps, err := p.Controller.Properties()
	if err != nil {
		return nil, nil, err
	}
	planeProps, err := p.Plane.Properties()
	if err != nil {
		return nil, nil, err
	}

	w, h := p.Mode.Size()
	var c changes
	c.object(connProps, "CRTC_ID", p.Controller)
	c.number(ctrlProps, "ACTIVE", true, 1)
	c.blob(ctrlProps, "MODE_ID", modeBlob)
	c.object(planeProps, "FB_ID", fb)
	c.object(planeProps, "CRTC_ID", p.Controller)

	// Source coordinates are 16.16 fixed point
	c.number(planeProps, "SRC_X", false, 0)
	c.number(planeProps, "SRC_Y", false, 0)
	c.number(planeProps, "SRC_W", false, int64(w)<<16)
	c.number(planeProps, "SRC_H", false, int64(h)<<16)
	c.number(planeProps, "CRTC_X", false, 0)
	c.number(planeProps, "CRTC_Y", false, 0)
	c.number(planeProps, "CRTC_W", false, int64(w))
	c.number(planeProps, "CRTC_H", false, int64(h))
	if c.err != nil {
		return nil, nil, c.err
	}
	return c.apply, c.restore, nil
}

// Frame is a solid-colour framebuffer shown on a pipeline
type Frame struct {
	dev     drm.PrivilegedDevice
	buf     *drm.DumbBuffer
	fb      *drm.Framebuffer
	restore []drm.PropertyUpdate
	shown   bool
}

// Fill paints a framebuffer the size of p.Mode with the XRGB8888 colour and
// commits it to p. With testOnly the kernel only validates the commit and
// nothing on screen changes. Close the frame to put the previous
// configuration back and release the buffer.
func Fill(dev drm.PrivilegedDevice, p *Pipeline, color uint32, testOnly bool) (_ *Frame, err error) {
	w, h := p.Mode.Size()
	buf, err := drm.CreateDumbBuffer(dev, uint32(w), uint32(h), 32)
	if err != nil {
		return nil, err
	}
	f := &Frame{dev: dev, buf: buf}
	defer func() {
		if err != nil {
			err = errors.Join(err, f.Close())
		}
	}()

	m, err := buf.Map()
	if err != nil {
		return nil, err
	}
	fillErr := m.Fill(color)
	if err := errors.Join(fillErr, m.Close()); err != nil {
		return nil, err
	}

	if f.fb, err = drm.AddFramebuffer(dev, buf); err != nil {
		return nil, err
	}

	blob, err := drm.CreateModeBlob(dev, p.Mode)
	if err != nil {
		return nil, err
	}
	// The kernel holds its own reference once the commit lands
	defer func() {
		if derr := drm.DestroyBlob(dev, blob); derr != nil {
			logger.Warn("modeset: destroy mode blob", "blob", blob, "err", derr)
		}
	}()

	apply, restore, err := Updates(p, f.fb, blob)
	if err != nil {
		return nil, err
	}

	if testOnly {
		if err := drm.TestCommit(dev, apply); err != nil {
			return nil, err
		}
		return f, nil
	}
	if err := drm.Commit(dev, apply); err != nil {
		return nil, err
	}
	f.restore, f.shown = restore, true
	logger.Debug("modeset: frame shown", "connector", p.Connector.Name(), "mode", p.Mode, "fb", f.fb.ID())
	return f, nil
}

// Framebuffer returns the framebuffer being shown
func (f *Frame) Framebuffer() *drm.Framebuffer {
	return f.fb
}

// Close restores the previous configuration if the frame was committed, then
// removes the framebuffer and destroys the buffer.
func (f *Frame) Close() error {
	var errs []error
	if f.shown {
		errs = append(errs, drm.Commit(f.dev, f.restore))
		f.shown = false
	}
	if f.fb != nil {
		errs = append(errs, f.fb.Close())
	}
	if err := f.buf.Close(); err != nil && !errors.Is(err, drm.ErrClosed) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
