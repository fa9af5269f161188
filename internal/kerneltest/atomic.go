package kerneltest

import (
	"math"
	"slices"

	"github.com/bnema/drmkit/internal/uapi"
	"golang.org/x/sys/unix"
)

const atomicFlags = uapi.PageFlipEvent | uapi.PageFlipAsync | uapi.AtomicTestOnly | uapi.AtomicNonBlock | uapi.AtomicAllowModeset

type pendingUpdate struct {
	obj  *object
	id   uint32
	prop uint32
	val  uint64
}

// atomicCommit checks every update before applying any of them.
func (k *Kernel) atomicCommit(r *uapi.Atomic) error {
	if !k.master {
		return unix.EACCES
	}
	if !k.atomic {
		return unix.EINVAL
	}
	if r.Flags&^atomicFlags != 0 || r.Reserved != 0 {
		return unix.EINVAL
	}

	objs := uapi.Slice[uint32](r.ObjsPtr, r.CountObjs)
	counts := uapi.Slice[uint32](r.CountPropsPtr, r.CountObjs)
	var total uint32
	for _, n := range counts {
		total += n
	}
	props := uapi.Slice[uint32](r.PropsPtr, total)
	values := uapi.Slice[uint64](r.PropValuesPtr, total)

	var pending []pendingUpdate
	next := 0
	for i, id := range objs {
		o, ok := k.objects[id]
		if !ok {
			return unix.ENOENT
		}
		for range counts[i] {
			u := pendingUpdate{obj: o, id: id, prop: props[next], val: values[next]}
			next++
			if err := k.check(u); err != nil {
				return err
			}
			pending = append(pending, u)
		}
	}

	if r.Flags&uapi.AtomicTestOnly != 0 {
		return nil
	}
	for _, u := range pending {
		for j := range u.obj.props {
			if u.obj.props[j].Prop == u.prop {
				u.obj.props[j].Value = u.val
			}
		}
		k.mirror(u)
	}
	k.commits++
	return nil
}

func (k *Kernel) check(u pendingUpdate) error {
	if !slices.ContainsFunc(u.obj.props, func(pv PropValue) bool { return pv.Prop == u.prop }) {
		return unix.EINVAL
	}
	p, ok := k.properties[u.prop]
	if !ok {
		return unix.ENOENT
	}
	if p.Flags&uapi.PropImmutable != 0 {
		return unix.EINVAL
	}

	flags := p.Flags
	switch {
	case flags&uapi.PropEnum != 0:
		if !slices.ContainsFunc(p.Enums, func(e Enum) bool { return e.Value == u.val }) {
			return unix.EINVAL
		}
	case flags&uapi.PropBitmask != 0:
		var allowed uint64
		for _, e := range p.Enums {
			allowed |= 1 << e.Value
		}
		if u.val&^allowed != 0 {
			return unix.EINVAL
		}
	case flags&uapi.PropBlob != 0:
		if _, ok := k.blobs[uint32(u.val)]; u.val != 0 && !ok {
			return unix.EINVAL
		}
	case flags&uapi.PropRange != 0:
		if u.val < p.Values[0] || u.val > p.Values[1] {
			return unix.EINVAL
		}
	case flags&uapi.PropSignedRange != 0:
		v := int64(u.val)
		if v < int64(p.Values[0]) || v > int64(p.Values[1]) {
			return unix.EINVAL
		}
	case flags&uapi.PropObject != 0:
		if u.val == 0 {
			return nil
		}
		if u.val > math.MaxUint32 {
			return unix.EINVAL
		}
		target, ok := k.objects[uint32(u.val)]
		if !ok || (len(p.Values) > 0 && uint64(target.typ) != p.Values[0]) {
			return unix.EINVAL
		}
	default:
		return unix.EINVAL
	}
	return nil
}

// mirror keeps the legacy plane view in step with FB_ID and CRTC_ID.
func (k *Kernel) mirror(u pendingUpdate) {
	pl := findByID(k.planes, u.id, func(p *Plane) uint32 { return p.ID })
	if pl == nil {
		return
	}
	switch k.properties[u.prop].Name {
	case "FB_ID":
		pl.FB = uint32(u.val)
	case "CRTC_ID":
		pl.Crtc = uint32(u.val)
	}
}
