// Package kerneltest is an in-memory DRM device for tests. It answers the same
// ioctls as the kernel with the same count-then-fill behaviour, enforces DRM
// master and client caps where the kernel does, and records every call.
package kerneltest

import (
	"math"
	"slices"
	"sync"
	"unsafe"

	"github.com/bnema/drmkit/internal/uapi"
	"golang.org/x/sys/unix"
)

// PropValue is a property attached to an object with its current value.
type PropValue struct {
	Prop  uint32
	Value uint64
}

// Connector is a fake connector.
type Connector struct {
	ID, Type, TypeID  uint32
	Connection        uint32
	MmWidth, MmHeight uint32
	Subpixel          uint32
	Encoder           uint32
	Encoders          []uint32
	Modes             []uapi.ModeInfo
}

// Encoder is a fake encoder.
type Encoder struct {
	ID, Type, Crtc                uint32
	PossibleCrtcs, PossibleClones uint32
}

// Crtc is a fake controller.
type Crtc struct {
	ID, FB, X, Y uint32
	GammaSize    uint32
	Mode         *uapi.ModeInfo
	Connectors   []uint32
}

// Plane type values of the "type" property.
const (
	PlaneOverlay = 0
	PlanePrimary = 1
	PlaneCursor  = 2
)

// Plane is a fake plane.
type Plane struct {
	ID, Crtc, FB  uint32
	PossibleCrtcs uint32
	GammaSize     uint32
	Type          int
	Formats       []uint32
}

// Enum is one entry of an enum or bitmask property.
type Enum struct {
	Value uint64
	Name  string
}

// Property is a fake property descriptor.
type Property struct {
	ID     uint32
	Flags  uint32
	Name   string
	Values []uint64
	Enums  []Enum
}

// DumbBuffer is a fake dumb buffer. Data is the backing memory every mapping
// shares.
type DumbBuffer struct {
	Handle             uint32
	Width, Height, BPP uint32
	Pitch              uint32
	Size               uint64
	Offset             uint64
	Data               []byte
	Mapped             int
}

// Framebuffer is a fake framebuffer.
type Framebuffer struct {
	ID, Width, Height uint32
	Pitch, BPP, Depth uint32
	Handle            uint32
}

type object struct {
	typ   uint32
	props []PropValue
}

type failure struct {
	errno unix.Errno
	// call is the 1-based call that fails, or 0 for every call.
	call int
}

// Kernel is a fake DRM device. The zero value is not usable; see New and Empty.
type Kernel struct {
	mu sync.Mutex

	connectors   []*Connector
	encoders     []*Encoder
	crtcs        []*Crtc
	planes       []*Plane
	framebuffers []*Framebuffer
	properties   map[uint32]*Property
	blobs        map[uint32][]byte
	dumbs        map[uint32]*DumbBuffer
	objects      map[uint32]*object
	mappings     map[*byte]*DumbBuffer

	// DumbSupport is reported for the dumb-buffer capability.
	DumbSupport bool
	// RefusedClientCaps makes SET_CLIENT_CAP fail with EINVAL for these caps.
	RefusedClientCaps map[uint64]bool
	// OtherMaster simulates another process holding DRM master.
	OtherMaster bool

	master          bool
	universalPlanes bool
	atomic          bool

	nextID     uint32
	nextHandle uint32
	nextBlob   uint32

	calls    map[uintptr]int
	failures map[uintptr]failure
	hooks    map[uintptr]hook
	commits  int
}

type hook struct {
	call int
	fn   func()
}

// Empty returns a device with no resources.
func Empty() *Kernel {
	return &Kernel{
		properties:        make(map[uint32]*Property),
		blobs:             make(map[uint32][]byte),
		dumbs:             make(map[uint32]*DumbBuffer),
		objects:           make(map[uint32]*object),
		mappings:          make(map[*byte]*DumbBuffer),
		RefusedClientCaps: make(map[uint64]bool),
		DumbSupport:       true,
		nextID:            1000,
		nextHandle:        1,
		nextBlob:          500,
		calls:             make(map[uintptr]int),
		failures:          make(map[uintptr]failure),
		hooks:             make(map[uintptr]hook),
	}
}

// Fail makes every call of req fail with errno.
func (k *Kernel) Fail(req uintptr, errno unix.Errno) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.failures[req] = failure{errno: errno}
}

// FailCall makes the nth call of req from now fail with errno.
func (k *Kernel) FailCall(req uintptr, nth int, errno unix.Errno) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.failures[req] = failure{errno: errno, call: k.calls[req] + nth}
}

// ClearFailures removes every injected failure.
func (k *Kernel) ClearFailures() {
	k.mu.Lock()
	defer k.mu.Unlock()
	clear(k.failures)
}

// Calls returns how many times req was issued.
func (k *Kernel) Calls(req uintptr) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.calls[req]
}

// Commits returns the number of applied atomic commits.
func (k *Kernel) Commits() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.commits
}

// Master reports whether the client is DRM master.
func (k *Kernel) Master() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.master
}

// ClientCaps reports the universal-planes and atomic client caps.
func (k *Kernel) ClientCaps() (universalPlanes, atomic bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.universalPlanes, k.atomic
}

func (k *Kernel) register(id, typ uint32, props ...PropValue) {
	k.objects[id] = &object{typ: typ, props: props}
}

// AddConnector adds c with the given properties.
func (k *Kernel) AddConnector(c *Connector, props ...PropValue) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.connectors = append(k.connectors, c)
	k.register(c.ID, uapi.ObjectConnector, props...)
}

// AddEncoder adds e.
func (k *Kernel) AddEncoder(e *Encoder) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.encoders = append(k.encoders, e)
	k.register(e.ID, uapi.ObjectEncoder)
}

// AddCrtc adds c with the given properties.
func (k *Kernel) AddCrtc(c *Crtc, props ...PropValue) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.crtcs = append(k.crtcs, c)
	k.register(c.ID, uapi.ObjectCrtc, props...)
}

// AddPlane adds p with the given properties.
func (k *Kernel) AddPlane(p *Plane, props ...PropValue) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.planes = append(k.planes, p)
	k.register(p.ID, uapi.ObjectPlane, props...)
}

// AddFramebuffer adds an existing framebuffer such as the console's.
func (k *Kernel) AddFramebuffer(fb *Framebuffer) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.framebuffers = append(k.framebuffers, fb)
	k.register(fb.ID, uapi.ObjectFB)
}

// AddProperty adds a property descriptor.
func (k *Kernel) AddProperty(p *Property) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.properties[p.ID] = p
}

// AddBlob stores data under id.
func (k *Kernel) AddBlob(id uint32, data []byte) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.blobs[id] = slices.Clone(data)
}

// Blob returns the bytes of blob id.
func (k *Kernel) Blob(id uint32) ([]byte, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	b, ok := k.blobs[id]
	return b, ok
}

// Attach adds prop to object obj, or changes its value if already attached.
func (k *Kernel) Attach(obj, prop uint32, value uint64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	o := k.objects[obj]
	for i := range o.props {
		if o.props[i].Prop == prop {
			o.props[i].Value = value
			return
		}
	}
	o.props = append(o.props, PropValue{Prop: prop, Value: value})
}

// PropertyValue returns the current value of prop on obj.
func (k *Kernel) PropertyValue(obj, prop uint32) (uint64, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	o, ok := k.objects[obj]
	if !ok {
		return 0, false
	}
	for _, pv := range o.props {
		if pv.Prop == prop {
			return pv.Value, true
		}
	}
	return 0, false
}

// Crtc returns controller id.
func (k *Kernel) Crtc(id uint32) *Crtc {
	k.mu.Lock()
	defer k.mu.Unlock()
	return findByID(k.crtcs, id, func(c *Crtc) uint32 { return c.ID })
}

// Dumb returns the dumb buffer with handle h.
func (k *Kernel) Dumb(h uint32) *DumbBuffer {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.dumbs[h]
}

// DumbCount returns the number of live dumb buffers.
func (k *Kernel) DumbCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.dumbs)
}

// HasFramebuffer reports whether framebuffer id exists.
func (k *Kernel) HasFramebuffer(id uint32) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return findByID(k.framebuffers, id, func(f *Framebuffer) uint32 { return f.ID }) != nil
}

func findByID[T any](items []*T, id uint32, idOf func(*T) uint32) *T {
	for _, it := range items {
		if idOf(it) == id {
			return it
		}
	}
	return nil
}

// After runs fn once, right after the nth call of req returns. fn runs without
// the kernel lock held, so it can change the device between two calls the way
// a hotplug would.
func (k *Kernel) After(req uintptr, nth int, fn func()) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.hooks[req] = hook{call: nth, fn: fn}
}

// AddMode appends a mode to a connector's mode list.
func (k *Kernel) AddMode(connector uint32, m uapi.ModeInfo) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if c := findByID(k.connectors, connector, func(c *Connector) uint32 { return c.ID }); c != nil {
		c.Modes = append(c.Modes, m)
	}
}

// Ioctl implements drm.BasicDevice.
func (k *Kernel) Ioctl(req uintptr, arg unsafe.Pointer) error {
	k.mu.Lock()
	err := k.ioctl(req, arg)
	h, ok := k.hooks[req]
	if ok && h.call == k.calls[req] {
		delete(k.hooks, req)
	} else {
		h.fn = nil
	}
	k.mu.Unlock()

	if h.fn != nil {
		h.fn()
	}
	return err
}

func (k *Kernel) ioctl(req uintptr, arg unsafe.Pointer) error {
	k.calls[req]++
	if f, ok := k.failures[req]; ok && (f.call == 0 || f.call == k.calls[req]) {
		return f.errno
	}

	switch req {
	case uapi.IOCTLGetCap:
		return k.getCap((*uapi.GetCap)(arg))
	case uapi.IOCTLSetClientCap:
		return k.setClientCap((*uapi.SetClientCap)(arg))
	case uapi.IOCTLSetMaster:
		if k.OtherMaster {
			return unix.EBUSY
		}
		k.master = true
		return nil
	case uapi.IOCTLDropMaster:
		if !k.master {
			return unix.EINVAL
		}
		k.master = false
		return nil
	case uapi.IOCTLModeGetResources:
		return k.getResources((*uapi.CardRes)(arg))
	case uapi.IOCTLModeGetPlaneResources:
		return k.getPlaneResources((*uapi.GetPlaneRes)(arg))
	case uapi.IOCTLModeGetConnector:
		return k.getConnector((*uapi.GetConnector)(arg))
	case uapi.IOCTLModeGetEncoder:
		return k.getEncoder((*uapi.GetEncoder)(arg))
	case uapi.IOCTLModeGetCrtc:
		return k.getCrtc((*uapi.Crtc)(arg))
	case uapi.IOCTLModeSetCrtc:
		return k.setCrtc((*uapi.Crtc)(arg))
	case uapi.IOCTLModeGetGamma:
		return k.getGamma((*uapi.CrtcLut)(arg))
	case uapi.IOCTLModeGetPlane:
		return k.getPlane((*uapi.GetPlane)(arg))
	case uapi.IOCTLModeObjGetProperties:
		return k.objGetProperties((*uapi.ObjGetProperties)(arg))
	case uapi.IOCTLModeGetProperty:
		return k.getProperty((*uapi.GetProperty)(arg))
	case uapi.IOCTLModeGetPropBlob:
		return k.getBlob((*uapi.GetBlob)(arg))
	case uapi.IOCTLModeCreatePropBlob:
		return k.createBlob((*uapi.CreateBlob)(arg))
	case uapi.IOCTLModeDestroyPropBlob:
		return k.destroyBlob((*uapi.DestroyBlob)(arg))
	case uapi.IOCTLModeCreateDumb:
		return k.createDumb((*uapi.CreateDumb)(arg))
	case uapi.IOCTLModeMapDumb:
		return k.mapDumb((*uapi.MapDumb)(arg))
	case uapi.IOCTLModeDestroyDumb:
		return k.destroyDumb((*uapi.DestroyDumb)(arg))
	case uapi.IOCTLModeAddFB:
		return k.addFB((*uapi.FBCmd)(arg))
	case uapi.IOCTLModeRmFB:
		return k.rmFB(*(*uint32)(arg))
	case uapi.IOCTLModeGetFB:
		return k.getFB((*uapi.FBCmd)(arg))
	case uapi.IOCTLModeAtomic:
		return k.atomicCommit((*uapi.Atomic)(arg))
	default:
		return unix.ENOTTY
	}
}

// Mmap implements drm.PrivilegedDevice. The returned slice aliases the dumb
// buffer's backing memory, so every mapping of a buffer sees the same bytes.
func (k *Kernel) Mmap(offset int64, length int) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, d := range k.dumbs {
		if d.Offset != 0 && d.Offset == uint64(offset) {
			if length <= 0 || uint64(length) > d.Size {
				return nil, unix.EINVAL
			}
			b := d.Data[:length:length]
			d.Mapped++
			k.mappings[&b[0]] = d
			return b, nil
		}
	}
	return nil, unix.EINVAL
}

// Munmap implements drm.PrivilegedDevice.
func (k *Kernel) Munmap(b []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(b) == 0 {
		return unix.EINVAL
	}
	d, ok := k.mappings[&b[0]]
	if !ok {
		return unix.EINVAL
	}
	d.Mapped--
	if d.Mapped == 0 {
		delete(k.mappings, &b[0])
	}
	return nil
}

// copyOut writes src into the user array at ptr, at most n entries, as the
// kernel does when the caller's buffer is smaller than the result.
func copyOut[T any](ptr uint64, n uint32, src []T) {
	if ptr == 0 || n == 0 {
		return
	}
	copy(uapi.Slice[T](ptr, n), src)
}

// copyAll writes src only when all of it fits, like the kernel's mode, format,
// enum and blob copies.
func copyAll[T any](ptr uint64, n uint32, src []T) {
	if len(src) == 0 || int(n) < len(src) {
		return
	}
	copyOut(ptr, n, src)
}

func ids[T any](items []*T, idOf func(*T) uint32) []uint32 {
	out := make([]uint32, len(items))
	for i, it := range items {
		out[i] = idOf(it)
	}
	return out
}

func (k *Kernel) getCap(r *uapi.GetCap) error {
	switch r.Capability {
	case uapi.CapDumbBuffer:
		r.Value = 0
		if k.DumbSupport {
			r.Value = 1
		}
		return nil
	default:
		return unix.EINVAL
	}
}

func (k *Kernel) setClientCap(r *uapi.SetClientCap) error {
	if k.RefusedClientCaps[r.Capability] || r.Value > 1 {
		return unix.EINVAL
	}
	switch r.Capability {
	case uapi.ClientCapStereo3D:
	case uapi.ClientCapUniversalPlanes:
		k.universalPlanes = r.Value == 1
	case uapi.ClientCapAtomic:
		k.atomic = r.Value == 1
		if k.atomic {
			k.universalPlanes = true
		}
	default:
		return unix.EINVAL
	}
	return nil
}

func (k *Kernel) getResources(r *uapi.CardRes) error {
	fbs := ids(k.framebuffers, func(f *Framebuffer) uint32 { return f.ID })
	crtcs := ids(k.crtcs, func(c *Crtc) uint32 { return c.ID })
	conns := ids(k.connectors, func(c *Connector) uint32 { return c.ID })
	encs := ids(k.encoders, func(e *Encoder) uint32 { return e.ID })

	copyOut(r.FbIDPtr, r.CountFbs, fbs)
	copyOut(r.CrtcIDPtr, r.CountCrtcs, crtcs)
	copyOut(r.ConnectorIDPtr, r.CountConnectors, conns)
	copyOut(r.EncoderIDPtr, r.CountEncoders, encs)

	r.CountFbs = uint32(len(fbs))
	r.CountCrtcs = uint32(len(crtcs))
	r.CountConnectors = uint32(len(conns))
	r.CountEncoders = uint32(len(encs))
	r.MinWidth, r.MaxWidth = 0, 8192
	r.MinHeight, r.MaxHeight = 0, 8192
	return nil
}

func (k *Kernel) getPlaneResources(r *uapi.GetPlaneRes) error {
	var planes []uint32
	for _, p := range k.planes {
		if p.Type == PlaneOverlay || k.universalPlanes {
			planes = append(planes, p.ID)
		}
	}
	copyOut(r.PlaneIDPtr, r.CountPlanes, planes)
	r.CountPlanes = uint32(len(planes))
	return nil
}

// visibleProps returns obj's properties, hiding atomic ones from clients
// without the atomic cap.
func (k *Kernel) visibleProps(obj uint32) ([]uint32, []uint64) {
	var props []uint32
	var values []uint64
	for _, pv := range k.objects[obj].props {
		if p, ok := k.properties[pv.Prop]; ok && p.Flags&uapi.PropAtomic != 0 && !k.atomic {
			continue
		}
		props = append(props, pv.Prop)
		values = append(values, pv.Value)
	}
	return props, values
}

func (k *Kernel) getConnector(r *uapi.GetConnector) error {
	c := findByID(k.connectors, r.ConnectorID, func(c *Connector) uint32 { return c.ID })
	if c == nil {
		return unix.ENOENT
	}
	props, values := k.visibleProps(c.ID)

	copyOut(r.EncodersPtr, r.CountEncoders, c.Encoders)
	copyAll(r.ModesPtr, r.CountModes, c.Modes)
	copyOut(r.PropsPtr, r.CountProps, props)
	copyOut(r.PropValuesPtr, r.CountProps, values)

	r.CountEncoders = uint32(len(c.Encoders))
	r.CountModes = uint32(len(c.Modes))
	r.CountProps = uint32(len(props))
	r.EncoderID = c.Encoder
	r.ConnectorType = c.Type
	r.ConnectorTypeID = c.TypeID
	r.Connection = c.Connection
	r.MmWidth = c.MmWidth
	r.MmHeight = c.MmHeight
	r.Subpixel = c.Subpixel
	return nil
}

func (k *Kernel) getEncoder(r *uapi.GetEncoder) error {
	e := findByID(k.encoders, r.EncoderID, func(e *Encoder) uint32 { return e.ID })
	if e == nil {
		return unix.ENOENT
	}
	r.EncoderType = e.Type
	r.CrtcID = e.Crtc
	r.PossibleCrtcs = e.PossibleCrtcs
	r.PossibleClones = e.PossibleClones
	return nil
}

func (k *Kernel) getCrtc(r *uapi.Crtc) error {
	c := findByID(k.crtcs, r.CrtcID, func(c *Crtc) uint32 { return c.ID })
	if c == nil {
		return unix.ENOENT
	}
	r.FbID = c.FB
	r.X, r.Y = c.X, c.Y
	r.GammaSize = c.GammaSize
	r.ModeValid = 0
	r.Mode = uapi.ModeInfo{}
	if c.Mode != nil {
		r.ModeValid = 1
		r.Mode = *c.Mode
	}
	return nil
}

func (k *Kernel) setCrtc(r *uapi.Crtc) error {
	if !k.master {
		return unix.EACCES
	}
	c := findByID(k.crtcs, r.CrtcID, func(c *Crtc) uint32 { return c.ID })
	if c == nil {
		return unix.ENOENT
	}
	if r.ModeValid == 0 {
		c.FB, c.Mode, c.Connectors = 0, nil, nil
		return nil
	}
	if findByID(k.framebuffers, r.FbID, func(f *Framebuffer) uint32 { return f.ID }) == nil {
		return unix.ENOENT
	}
	conns := slices.Clone(uapi.Slice[uint32](r.SetConnectorsPtr, r.CountConnectors))
	for _, id := range conns {
		if findByID(k.connectors, id, func(c *Connector) uint32 { return c.ID }) == nil {
			return unix.ENOENT
		}
	}
	mode := r.Mode
	c.FB, c.X, c.Y, c.Mode, c.Connectors = r.FbID, r.X, r.Y, &mode, conns
	return nil
}

func (k *Kernel) getGamma(r *uapi.CrtcLut) error {
	c := findByID(k.crtcs, r.CrtcID, func(c *Crtc) uint32 { return c.ID })
	if c == nil {
		return unix.ENOENT
	}
	if r.GammaSize != c.GammaSize {
		return unix.EINVAL
	}
	ramp := make([]uint16, c.GammaSize)
	for i := range ramp {
		ramp[i] = uint16(i * math.MaxUint16 / max(len(ramp)-1, 1))
	}
	copyOut(r.Red, r.GammaSize, ramp)
	copyOut(r.Green, r.GammaSize, ramp)
	copyOut(r.Blue, r.GammaSize, ramp)
	return nil
}

func (k *Kernel) getPlane(r *uapi.GetPlane) error {
	p := findByID(k.planes, r.PlaneID, func(p *Plane) uint32 { return p.ID })
	if p == nil {
		return unix.ENOENT
	}
	copyAll(r.FormatTypePtr, r.CountFormatTypes, p.Formats)
	r.CountFormatTypes = uint32(len(p.Formats))
	r.CrtcID = p.Crtc
	r.FbID = p.FB
	r.PossibleCrtcs = p.PossibleCrtcs
	r.GammaSize = p.GammaSize
	return nil
}

func (k *Kernel) objGetProperties(r *uapi.ObjGetProperties) error {
	o, ok := k.objects[r.ObjID]
	if !ok || (r.ObjType != uapi.ObjectAny && r.ObjType != o.typ) {
		return unix.ENOENT
	}
	props, values := k.visibleProps(r.ObjID)
	copyOut(r.PropsPtr, r.CountProps, props)
	copyOut(r.PropValuesPtr, r.CountProps, values)
	r.CountProps = uint32(len(props))
	return nil
}

func (k *Kernel) getProperty(r *uapi.GetProperty) error {
	p, ok := k.properties[r.PropID]
	if !ok {
		return unix.ENOENT
	}
	uapi.PutCString(r.Name[:], p.Name)
	r.Flags = p.Flags

	if p.Flags&uapi.PropBlob != 0 {
		r.CountValues, r.CountEnumBlobs = 0, 0
		return nil
	}

	values := p.Values
	if p.Flags&(uapi.PropEnum|uapi.PropBitmask) != 0 {
		values = make([]uint64, len(p.Enums))
		enums := make([]uapi.PropertyEnum, len(p.Enums))
		for i, e := range p.Enums {
			values[i] = e.Value
			enums[i].Value = e.Value
			uapi.PutCString(enums[i].Name[:], e.Name)
		}
		copyAll(r.EnumBlobPtr, r.CountEnumBlobs, enums)
		r.CountEnumBlobs = uint32(len(enums))
	} else {
		r.CountEnumBlobs = 0
	}
	copyAll(r.ValuesPtr, r.CountValues, values)
	r.CountValues = uint32(len(values))
	return nil
}

func (k *Kernel) getBlob(r *uapi.GetBlob) error {
	data, ok := k.blobs[r.BlobID]
	if !ok {
		return unix.ENOENT
	}
	if int(r.Length) == len(data) {
		copyOut(r.Data, r.Length, data)
	}
	r.Length = uint32(len(data))
	return nil
}

func (k *Kernel) createBlob(r *uapi.CreateBlob) error {
	if r.Length == 0 || r.Data == 0 {
		return unix.EINVAL
	}
	k.nextBlob++
	k.blobs[k.nextBlob] = slices.Clone(uapi.Slice[byte](r.Data, r.Length))
	r.BlobID = k.nextBlob
	return nil
}

func (k *Kernel) destroyBlob(r *uapi.DestroyBlob) error {
	if _, ok := k.blobs[r.BlobID]; !ok {
		return unix.ENOENT
	}
	delete(k.blobs, r.BlobID)
	return nil
}

func (k *Kernel) createDumb(r *uapi.CreateDumb) error {
	if r.Width == 0 || r.Height == 0 || r.BPP == 0 || r.Flags != 0 {
		return unix.EINVAL
	}
	// Rows are padded to 64 bytes like most drivers do.
	pitch := (r.Width*((r.BPP+7)/8) + 63) &^ 63
	size := uint64(pitch) * uint64(r.Height)

	d := &DumbBuffer{
		Handle: k.nextHandle,
		Width:  r.Width,
		Height: r.Height,
		BPP:    r.BPP,
		Pitch:  pitch,
		Size:   size,
		Data:   make([]byte, size),
	}
	k.nextHandle++
	k.dumbs[d.Handle] = d

	r.Handle = d.Handle
	r.Pitch = pitch
	r.Size = size
	return nil
}

func (k *Kernel) mapDumb(r *uapi.MapDumb) error {
	d, ok := k.dumbs[r.Handle]
	if !ok {
		return unix.ENOENT
	}
	if d.Offset == 0 {
		d.Offset = 0x100000000 + uint64(d.Handle)<<24
	}
	r.Offset = d.Offset
	return nil
}

func (k *Kernel) destroyDumb(r *uapi.DestroyDumb) error {
	if _, ok := k.dumbs[r.Handle]; !ok {
		return unix.ENOENT
	}
	delete(k.dumbs, r.Handle)
	return nil
}

func (k *Kernel) addFB(r *uapi.FBCmd) error {
	d, ok := k.dumbs[r.Handle]
	if !ok {
		return unix.ENOENT
	}
	if r.Width == 0 || r.Height == 0 || r.Width > d.Width || r.Height > d.Height || r.Pitch < r.Width*r.BPP/8 {
		return unix.EINVAL
	}
	k.nextID++
	fb := &Framebuffer{
		ID:     k.nextID,
		Width:  r.Width,
		Height: r.Height,
		Pitch:  r.Pitch,
		BPP:    r.BPP,
		Depth:  r.Depth,
		Handle: r.Handle,
	}
	k.framebuffers = append(k.framebuffers, fb)
	k.register(fb.ID, uapi.ObjectFB)
	r.FbID = fb.ID
	return nil
}

func (k *Kernel) rmFB(id uint32) error {
	i := slices.IndexFunc(k.framebuffers, func(f *Framebuffer) bool { return f.ID == id })
	if i < 0 {
		return unix.ENOENT
	}
	k.framebuffers = slices.Delete(k.framebuffers, i, i+1)
	delete(k.objects, id)
	for _, c := range k.crtcs {
		if c.FB == id {
			c.FB, c.Mode, c.Connectors = 0, nil, nil
		}
	}
	for _, p := range k.planes {
		if p.FB == id {
			p.FB, p.Crtc = 0, 0
		}
	}
	return nil
}

func (k *Kernel) getFB(r *uapi.FBCmd) error {
	fb := findByID(k.framebuffers, r.FbID, func(f *Framebuffer) uint32 { return f.ID })
	if fb == nil {
		return unix.ENOENT
	}
	r.Width, r.Height = fb.Width, fb.Height
	r.Pitch, r.BPP, r.Depth = fb.Pitch, fb.BPP, fb.Depth
	r.Handle = 0
	if k.master {
		r.Handle = fb.Handle
	}
	return nil
}
