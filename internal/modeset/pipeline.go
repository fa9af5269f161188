// Package modeset drives a connector with a framebuffer through the atomic API.
package modeset

import (
	"errors"
	"fmt"
	"io"

	"github.com/bnema/drmkit/drm"
	"github.com/bnema/drmkit/internal/logger"
)

var (
	// ErrNoConnector is returned when no connected connector matches
	ErrNoConnector = errors.New("no usable connector")
	// ErrNoPipeline is returned when no encoder, controller and primary plane can be paired with the connector
	ErrNoPipeline = errors.New("no free controller and primary plane for connector")
)

// Pipeline is a checked-out connector with the encoder, controller and
// primary plane that will scan out to it.
type Pipeline struct {
	Connector  *drm.Connector
	Encoder    *drm.Encoder
	Controller *drm.Controller
	Plane      *drm.Plane
	Mode       drm.Mode
}

// Close returns every handle to the registry
func (p *Pipeline) Close() error {
	return errors.Join(p.Plane.Close(), p.Controller.Close(), p.Encoder.Close(), p.Connector.Close())
}

// Select checks out a pipeline for the connector called name, or for the first
// connected connector when name is empty. The connector's preferred mode is used.
func Select(reg *drm.Registry, name string) (*Pipeline, error) {
	conn, err := findConnector(reg, name)
	if err != nil {
		return nil, err
	}

	mode, ok := drm.PreferredMode(conn.Modes)
	if !ok {
		release(conn)
		return nil, fmt.Errorf("%s reports no modes: %w", conn.Name(), ErrNoConnector)
	}

	for _, encID := range encoderOrder(conn) {
		enc, err := reg.Encoder(encID)
		if err != nil {
			logger.Debug("modeset: encoder unavailable", "encoder", encID, "err", err)
			continue
		}
		if p := pairController(reg, conn, enc); p != nil {
			p.Mode = mode
			logger.Debug("modeset: selected pipeline",
				"connector", conn.Name(), "encoder", enc.ID(), "controller", p.Controller.ID(), "plane", p.Plane.ID())
			return p, nil
		}
		release(enc)
	}

	release(conn)
	return nil, fmt.Errorf("%s: %w", conn.Name(), ErrNoPipeline)
}

func findConnector(reg *drm.Registry, name string) (*drm.Connector, error) {
	for conn, err := range reg.Connectors() {
		if err != nil {
			if errors.Is(err, drm.ErrNotAvailable) {
				continue
			}
			return nil, err
		}
		if name != "" && conn.Name() != name {
			release(conn)
			continue
		}
		if !conn.Connected() {
			release(conn)
			if name != "" {
				return nil, fmt.Errorf("%s is %s: %w", name, conn.State, ErrNoConnector)
			}
			continue
		}
		return conn, nil
	}
	if name != "" {
		return nil, fmt.Errorf("%s not found: %w", name, ErrNoConnector)
	}
	return nil, ErrNoConnector
}

// encoderOrder lists the connector's current encoder first
func encoderOrder(conn *drm.Connector) []drm.ResourceID {
	order := make([]drm.ResourceID, 0, len(conn.Encoders)+1)
	if conn.Encoder != 0 {
		order = append(order, conn.Encoder)
	}
	for _, id := range conn.Encoders {
		if id != conn.Encoder {
			order = append(order, id)
		}
	}
	return order
}

func pairController(reg *drm.Registry, conn *drm.Connector, enc *drm.Encoder) *Pipeline {
	for ctrl, err := range reg.Controllers() {
		if err != nil {
			continue
		}
		if reg.Compatible(conn, enc, ctrl) != nil {
			release(ctrl)
			continue
		}
		if plane := primaryPlane(reg, ctrl); plane != nil {
			return &Pipeline{Connector: conn, Encoder: enc, Controller: ctrl, Plane: plane}
		}
		release(ctrl)
	}
	return nil
}

func primaryPlane(reg *drm.Registry, ctrl *drm.Controller) *drm.Plane {
	for plane, err := range reg.Planes() {
		if err != nil {
			continue
		}
		if plane.CanUse(ctrl) && plane.Supports(drm.FormatXRGB8888) && isPrimary(plane) {
			return plane
		}
		release(plane)
	}
	return nil
}

func isPrimary(plane *drm.Plane) bool {
	props, err := plane.Properties()
	if err != nil {
		logger.Debug("modeset: plane properties", "plane", plane.ID(), "err", err)
		return false
	}
	p, ok := drm.FindProperty(props, "type")
	if !ok {
		return false
	}
	v, ok := p.Value.(*drm.EnumValue)
	return ok && v.CurrentName() == "Primary"
}

// release returns a handle the pipeline does not keep
func release(c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Warn("modeset: release failed", "err", err)
	}
}
