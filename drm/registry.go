package drm

import (
	"fmt"
	"iter"
	"slices"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/bnema/drmkit/internal/logger"
	"github.com/bnema/drmkit/internal/uapi"
)

// CardResources is the result of DRM_IOCTL_MODE_GETRESOURCES.
type CardResources struct {
	Connectors   []ResourceID
	Encoders     []ResourceID
	Controllers  []ResourceID
	Framebuffers []ResourceID

	MinWidth, MaxWidth   uint32
	MinHeight, MaxHeight uint32
}

// GetResources lists every connector, encoder, controller and framebuffer id
// of the card.
func GetResources(dev BasicDevice) (*CardResources, error) {
	var raw uapi.CardRes
	var fbs, crtcs, conns, encs []ResourceID
	err := query(dev, "get resources", uapi.IOCTLModeGetResources, unsafe.Pointer(&raw), func() int {
		fbs = buffer[ResourceID](raw.CountFbs, &raw.FbIDPtr)
		crtcs = buffer[ResourceID](raw.CountCrtcs, &raw.CrtcIDPtr)
		conns = buffer[ResourceID](raw.CountConnectors, &raw.ConnectorIDPtr)
		encs = buffer[ResourceID](raw.CountEncoders, &raw.EncoderIDPtr)
		return len(fbs) + len(crtcs) + len(conns) + len(encs)
	})
	if err != nil {
		return nil, err
	}

	return &CardResources{
		Connectors:   trim(conns, raw.CountConnectors),
		Encoders:     trim(encs, raw.CountEncoders),
		Controllers:  trim(crtcs, raw.CountCrtcs),
		Framebuffers: trim(fbs, raw.CountFbs),
		MinWidth:     raw.MinWidth,
		MaxWidth:     raw.MaxWidth,
		MinHeight:    raw.MinHeight,
		MaxHeight:    raw.MaxHeight,
	}, nil
}

// Limits returns the framebuffer size range.
func (c *CardResources) Limits() CardLimits {
	return CardLimits{
		MinWidth:  c.MinWidth,
		MaxWidth:  c.MaxWidth,
		MinHeight: c.MinHeight,
		MaxHeight: c.MaxHeight,
	}
}

// GetPlaneIDs lists the card's planes. Primary and cursor planes are only
// included once the universal-planes client cap is set.
func GetPlaneIDs(dev BasicDevice) ([]ResourceID, error) {
	var raw uapi.GetPlaneRes
	var planes []ResourceID
	err := query(dev, "get plane resources", uapi.IOCTLModeGetPlaneResources, unsafe.Pointer(&raw), func() int {
		planes = buffer[ResourceID](raw.CountPlanes, &raw.PlaneIDPtr)
		return len(planes)
	})
	if err != nil {
		return nil, err
	}
	return trim(planes, raw.CountPlanes), nil
}

// pool is the available set for one resource kind.
type pool struct {
	mu        sync.Mutex
	baseline  []ResourceID
	available map[ResourceID]struct{}
}

func newPool(ids []ResourceID) *pool {
	p := &pool{
		baseline:  slices.Clone(ids),
		available: make(map[ResourceID]struct{}, len(ids)),
	}
	for _, id := range ids {
		p.available[id] = struct{}{}
	}
	return p
}

func (p *pool) take(id ResourceID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.available[id]; !ok {
		return false
	}
	delete(p.available, id)
	return true
}

func (p *pool) put(id ResourceID) {
	p.mu.Lock()
	p.available[id] = struct{}{}
	p.mu.Unlock()
}

// list returns the available ids in snapshot order.
func (p *pool) list() []ResourceID {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]ResourceID, 0, len(p.available))
	for _, id := range p.baseline {
		if _, ok := p.available[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Registry enforces that at most one live handle exists per resource id.
//
// The kernel has no notion of who is using a controller; the registry is the
// only in-process guard against two call sites reconfiguring the same resource.
// It does not protect against other processes, which is what DRM master is for.
//
// Each kind has its own lock and no two are ever held together. Kernel calls
// run outside the locks.
type Registry struct {
	dev    BasicDevice
	limits CardLimits

	connectors  *pool
	encoders    *pool
	controllers *pool
	planes      *pool

	// controllerIndex maps a controller id to its bit in possible_crtcs masks.
	controllerIndex map[ResourceID]int
}

// NewRegistry snapshots the card's connector, encoder, controller and plane ids
// as the baseline available set.
func NewRegistry(dev BasicDevice) (*Registry, error) {
	res, err := GetResources(dev)
	if err != nil {
		return nil, fmt.Errorf("snapshot resources: %w", err)
	}
	planes, err := GetPlaneIDs(dev)
	if err != nil {
		return nil, fmt.Errorf("snapshot planes: %w", err)
	}

	r := &Registry{
		dev:             dev,
		limits:          res.Limits(),
		connectors:      newPool(res.Connectors),
		encoders:        newPool(res.Encoders),
		controllers:     newPool(res.Controllers),
		planes:          newPool(planes),
		controllerIndex: make(map[ResourceID]int, len(res.Controllers)),
	}
	for i, id := range res.Controllers {
		r.controllerIndex[id] = i
	}

	logger.Debug("registry snapshot",
		"connectors", len(res.Connectors),
		"encoders", len(res.Encoders),
		"controllers", len(res.Controllers),
		"planes", len(planes))
	return r, nil
}

// Device returns the device the registry was built from.
func (r *Registry) Device() BasicDevice {
	return r.dev
}

// CardLimits is the framebuffer size range a card accepts.
type CardLimits struct {
	MinWidth, MaxWidth   uint32
	MinHeight, MaxHeight uint32
}

// Resources returns the size limits the card reported at snapshot time.
func (r *Registry) Resources() CardLimits {
	return r.limits
}

func (r *Registry) pool(kind ObjectKind) *pool {
	switch kind {
	case ObjectConnector:
		return r.connectors
	case ObjectEncoder:
		return r.encoders
	case ObjectController:
		return r.controllers
	case ObjectPlane:
		return r.planes
	default:
		return nil
	}
}

// Available returns the ids of kind that are not checked out, in snapshot order.
func (r *Registry) Available(kind ObjectKind) []ResourceID {
	p := r.pool(kind)
	if p == nil {
		return nil
	}
	return p.list()
}

func (r *Registry) release(kind ObjectKind, id ResourceID) {
	r.pool(kind).put(id)
	logger.Debug("released", "kind", kind, "id", id)
}

// handle is the part shared by every checked-out resource.
type handle struct {
	id       ResourceID
	kind     ObjectKind
	dev      BasicDevice
	reg      *Registry
	released atomic.Bool
}

// ID returns the resource id.
func (h *handle) ID() ResourceID { return h.id }

// Kind returns the resource kind.
func (h *handle) Kind() ObjectKind { return h.kind }

// Close returns the id to the registry. Only the first call has an effect.
func (h *handle) Close() error {
	if h.released.Swap(true) {
		return nil
	}
	h.reg.release(h.kind, h.id)
	return nil
}

// Properties reads and decodes the resource's current properties.
func (h *handle) Properties() ([]Property, error) {
	return Properties(h.dev, h.kind, h.id)
}

// checkout moves id out of the available set and populates its handle. When
// population fails the id goes back so a later attempt can succeed.
func checkout[H any](r *Registry, kind ObjectKind, id ResourceID, fetch func(*handle) (H, error)) (H, error) {
	var zero H
	p := r.pool(kind)
	if !p.take(id) {
		return zero, fmt.Errorf("%s %d: %w", kind, id, ErrNotAvailable)
	}

	h, err := fetch(&handle{id: id, kind: kind, dev: r.dev, reg: r})
	if err != nil {
		p.put(id)
		return zero, err
	}
	logger.Debug("checked out", "kind", kind, "id", id)
	return h, nil
}

// sequence checks out the ids available right now, one per step. It can be
// ranged over once; ids taken by an earlier pass are gone from the registry
// until their handles are closed, so calling the registry method again is the
// way to start over.
func sequence[H any](r *Registry, kind ObjectKind, get func(ResourceID) (H, error)) iter.Seq2[H, error] {
	ids := r.pool(kind).list()
	var consumed atomic.Bool
	return func(yield func(H, error) bool) {
		if consumed.Swap(true) {
			return
		}
		for _, id := range ids {
			if !yield(get(id)) {
				return
			}
		}
	}
}

// Connector checks out the connector id.
func (r *Registry) Connector(id ResourceID) (*Connector, error) {
	return checkout(r, ObjectConnector, id, fetchConnector)
}

// Encoder checks out the encoder id.
func (r *Registry) Encoder(id ResourceID) (*Encoder, error) {
	return checkout(r, ObjectEncoder, id, fetchEncoder)
}

// Controller checks out the controller id.
func (r *Registry) Controller(id ResourceID) (*Controller, error) {
	return checkout(r, ObjectController, id, func(h *handle) (*Controller, error) {
		c, err := fetchController(h)
		if err != nil {
			return nil, err
		}
		c.Index = r.controllerIndex[id]
		return c, nil
	})
}

// Plane checks out the plane id.
func (r *Registry) Plane(id ResourceID) (*Plane, error) {
	return checkout(r, ObjectPlane, id, fetchPlane)
}

// Connectors checks out every available connector in turn. A failed checkout
// yields its error and the sequence goes on with the next id.
func (r *Registry) Connectors() iter.Seq2[*Connector, error] {
	return sequence(r, ObjectConnector, r.Connector)
}

// Encoders checks out every available encoder in turn.
func (r *Registry) Encoders() iter.Seq2[*Encoder, error] {
	return sequence(r, ObjectEncoder, r.Encoder)
}

// Controllers checks out every available controller in turn.
func (r *Registry) Controllers() iter.Seq2[*Controller, error] {
	return sequence(r, ObjectController, r.Controller)
}

// Planes checks out every available plane in turn.
func (r *Registry) Planes() iter.Seq2[*Plane, error] {
	return sequence(r, ObjectPlane, r.Plane)
}

// Compatible checks that enc is one of conn's encoders and can drive ctrl.
func (r *Registry) Compatible(conn *Connector, enc *Encoder, ctrl *Controller) error {
	if !slices.Contains(conn.Encoders, enc.ID()) {
		return fmt.Errorf("encoder %d cannot drive connector %d: %w", enc.ID(), conn.ID(), ErrIncompatible)
	}
	if !enc.CanDrive(ctrl) {
		return fmt.Errorf("encoder %d cannot be fed by controller %d: %w", enc.ID(), ctrl.ID(), ErrIncompatible)
	}
	return nil
}
