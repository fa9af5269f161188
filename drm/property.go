package drm

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strings"
	"unsafe"

	"github.com/bnema/drmkit/internal/logger"
	"github.com/bnema/drmkit/internal/uapi"
)

// Property is a decoded mode-object property together with its current value.
type Property struct {
	ID   ResourceID
	Name string

	// Mutable is false for properties the kernel marks immutable, such as EDID.
	Mutable bool
	// AtomicOnly properties are hidden from clients without the atomic cap and
	// can only be changed through Commit.
	AtomicOnly bool

	Value PropertyValue
}

// PropertyValue is one of *EnumValue, *URangeValue, *IRangeValue, *ObjectValue
// or *BlobValue.
type PropertyValue interface {
	// Raw returns the current value as the kernel stores it.
	Raw() uint64
	fmt.Stringer

	propertyValue()
}

// PropertyUpdate is one property change for Commit.
type PropertyUpdate struct {
	Object   ResourceID
	Property ResourceID
	Value    uint64
}

// owner identifies the object and property a value was read from.
type owner struct {
	Object   ResourceID
	Kind     ObjectKind
	Property ResourceID
}

func (o owner) update(v uint64) PropertyUpdate {
	return PropertyUpdate{Object: o.Object, Property: o.Property, Value: v}
}

func (owner) propertyValue() {}

// EnumEntry is one named value of an enum or bitmask property. For bitmasks
// Value is a bit index.
type EnumEntry struct {
	Value uint64
	Name  string
}

// EnumValue is an enum or bitmask property.
type EnumValue struct {
	owner
	Current  uint64
	Possible []EnumEntry
	Bitmask  bool
}

func (v *EnumValue) Raw() uint64 { return v.Current }

// Update sets the raw value.
func (v *EnumValue) Update(raw uint64) PropertyUpdate {
	return v.update(raw)
}

// Select builds an update from entry names. An enum takes exactly one name, a
// bitmask takes any number and sets the bit of each.
func (v *EnumValue) Select(names ...string) (PropertyUpdate, error) {
	if !v.Bitmask && len(names) != 1 {
		return PropertyUpdate{}, fmt.Errorf("enum property %d takes one name, got %d", v.Property, len(names))
	}
	var raw uint64
	for _, name := range names {
		e, ok := v.lookup(name)
		if !ok {
			return PropertyUpdate{}, fmt.Errorf("property %d has no entry %q", v.Property, name)
		}
		if v.Bitmask {
			raw |= 1 << e.Value
		} else {
			raw = e.Value
		}
	}
	return v.update(raw), nil
}

func (v *EnumValue) lookup(name string) (EnumEntry, bool) {
	for _, e := range v.Possible {
		if e.Name == name {
			return e, true
		}
	}
	return EnumEntry{}, false
}

// CurrentName returns the name of the current entry, or for a bitmask the names
// of every set bit joined with "|". Values without a name are printed as
// numbers.
func (v *EnumValue) CurrentName() string {
	if !v.Bitmask {
		for _, e := range v.Possible {
			if e.Value == v.Current {
				return e.Name
			}
		}
		return fmt.Sprint(v.Current)
	}

	var names []string
	for rest := v.Current; rest != 0; rest &= rest - 1 {
		bit := uint64(bits.TrailingZeros64(rest))
		name := fmt.Sprintf("bit%d", bit)
		for _, e := range v.Possible {
			if e.Value == bit {
				name = e.Name
				break
			}
		}
		names = append(names, name)
	}
	return strings.Join(names, "|")
}

func (v *EnumValue) String() string { return v.CurrentName() }

// URangeValue is an unsigned range property. The bounds are not enforced
// locally; the kernel rejects out-of-range values at commit time.
type URangeValue struct {
	owner
	Current  uint64
	Min, Max uint64
}

func (v *URangeValue) Raw() uint64 { return v.Current }

func (v *URangeValue) Update(u uint64) PropertyUpdate { return v.update(u) }

func (v *URangeValue) String() string {
	return fmt.Sprintf("%d [%d..%d]", v.Current, v.Min, v.Max)
}

// IRangeValue is a signed range property.
type IRangeValue struct {
	owner
	Current  int64
	Min, Max int64
}

func (v *IRangeValue) Raw() uint64 { return uint64(v.Current) }

func (v *IRangeValue) Update(i int64) PropertyUpdate { return v.update(uint64(i)) }

func (v *IRangeValue) String() string {
	return fmt.Sprintf("%d [%d..%d]", v.Current, v.Min, v.Max)
}

// ObjectValue references another mode object, such as a plane's CRTC_ID.
type ObjectValue struct {
	owner
	Current ResourceID
	// Allowed is the kind of object the property may reference.
	Allowed ObjectKind
}

func (v *ObjectValue) Raw() uint64 { return uint64(v.Current) }

// Update points the property at id, or at nothing for 0.
func (v *ObjectValue) Update(id ResourceID) PropertyUpdate { return v.update(uint64(id)) }

// UpdateTo points the property at r, which must be of the allowed kind.
func (v *ObjectValue) UpdateTo(r Resource) (PropertyUpdate, error) {
	if v.Allowed != ObjectUnknown && r.Kind() != v.Allowed {
		return PropertyUpdate{}, fmt.Errorf("property %d takes a %s, not a %s: %w", v.Property, v.Allowed, r.Kind(), ErrIncompatible)
	}
	return v.update(uint64(r.ID())), nil
}

func (v *ObjectValue) String() string {
	return fmt.Sprintf("%s %d", v.Allowed, v.Current)
}

// BlobValue is a blob property such as EDID or MODE_ID.
type BlobValue struct {
	owner
	ID   BlobID
	Data []byte
}

func (v *BlobValue) Raw() uint64 { return uint64(v.ID) }

// Update points the property at a blob, or clears it for 0.
func (v *BlobValue) Update(id BlobID) PropertyUpdate { return v.update(uint64(id)) }

func (v *BlobValue) String() string {
	return fmt.Sprintf("blob %d (%d bytes)", v.ID, len(v.Data))
}

// FindProperty returns the property called name.
func FindProperty(props []Property, name string) (Property, bool) {
	for _, p := range props {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// Properties reads every property of the object id of the given kind and
// decodes each. A property with an unrecognised type fails the whole call.
func Properties(dev BasicDevice, kind ObjectKind, id ResourceID) ([]Property, error) {
	raw := uapi.ObjGetProperties{ObjID: uint32(id), ObjType: kind.kernel()}
	var ids []ResourceID
	var values []uint64
	err := query(dev, "get object properties", uapi.IOCTLModeObjGetProperties, unsafe.Pointer(&raw), func() int {
		ids = buffer[ResourceID](raw.CountProps, &raw.PropsPtr)
		values = buffer[uint64](raw.CountProps, &raw.PropValuesPtr)
		return len(ids)
	})
	if err != nil {
		return nil, fmt.Errorf("%s %d properties: %w", kind, id, err)
	}

	n := min(len(ids), len(values), int(raw.CountProps))
	props := make([]Property, 0, n)
	for i := range n {
		p, err := decodeProperty(dev, owner{Object: id, Kind: kind, Property: ids[i]}, values[i])
		if err != nil {
			return nil, fmt.Errorf("%s %d: %w", kind, id, err)
		}
		props = append(props, p)
	}
	return props, nil
}

func decodeProperty(dev BasicDevice, o owner, current uint64) (Property, error) {
	raw := uapi.GetProperty{PropID: uint32(o.Property)}
	var values []uint64
	var enums []uapi.PropertyEnum
	err := query(dev, "get property", uapi.IOCTLModeGetProperty, unsafe.Pointer(&raw), func() int {
		switch {
		case raw.Flags&(uapi.PropEnum|uapi.PropBitmask) != 0:
			values = buffer[uint64](raw.CountValues, &raw.ValuesPtr)
			enums = buffer[uapi.PropertyEnum](raw.CountEnumBlobs, &raw.EnumBlobPtr)
		case raw.Flags&uapi.PropBlob != 0:
			// Blob bytes come from GETPROPBLOB, not from the descriptor.
			raw.ValuesPtr, raw.EnumBlobPtr = 0, 0
			raw.CountValues, raw.CountEnumBlobs = 0, 0
		default:
			values = buffer[uint64](raw.CountValues, &raw.ValuesPtr)
		}
		return len(values) + len(enums)
	})
	if err != nil {
		return Property{}, fmt.Errorf("property %d: %w", o.Property, err)
	}
	values = whole(values, raw.CountValues)
	enums = whole(enums, raw.CountEnumBlobs)

	p := Property{
		ID:         o.Property,
		Name:       uapi.CString(raw.Name[:]),
		Mutable:    raw.Flags&uapi.PropImmutable == 0,
		AtomicOnly: raw.Flags&uapi.PropAtomic != 0,
	}

	value := func(i int, fallback uint64) uint64 {
		if i < len(values) {
			return values[i]
		}
		return fallback
	}

	switch flags := raw.Flags; {
	case flags&(uapi.PropEnum|uapi.PropBitmask) != 0:
		ev := &EnumValue{owner: o, Current: current, Bitmask: flags&uapi.PropBitmask != 0}
		for _, e := range enums {
			ev.Possible = append(ev.Possible, EnumEntry{Value: e.Value, Name: uapi.CString(e.Name[:])})
		}
		p.Value = ev
	case flags&uapi.PropBlob != 0:
		data, err := blobData(dev, BlobID(current))
		if err != nil {
			return Property{}, fmt.Errorf("property %d (%s): %w", o.Property, p.Name, err)
		}
		p.Value = &BlobValue{owner: o, ID: BlobID(current), Data: data}
	case flags&uapi.PropRange != 0:
		p.Value = &URangeValue{owner: o, Current: current, Min: value(0, 0), Max: value(1, math.MaxUint64)}
	case flags&uapi.PropSignedRange != 0:
		minDefault := uint64(math.MaxInt64) + 1 // bit pattern of MinInt64
		p.Value = &IRangeValue{
			owner:   o,
			Current: int64(current),
			Min:     int64(value(0, minDefault)),
			Max:     int64(value(1, math.MaxInt64)),
		}
	case flags&uapi.PropObject != 0:
		allowed := ObjectUnknown
		if len(values) > 0 {
			allowed = objectKindFromKernel(uint32(values[0]))
		}
		p.Value = &ObjectValue{owner: o, Current: ResourceID(current), Allowed: allowed}
	default:
		return Property{}, &UnknownPropertyTypeError{Property: o.Property, Name: p.Name, Flags: raw.Flags}
	}
	return p, nil
}

// blobData fetches the bytes of a property's current blob. A missing blob reads
// as empty; only a permission failure is reported.
func blobData(dev BasicDevice, id BlobID) ([]byte, error) {
	if id == 0 {
		return nil, nil
	}
	data, err := GetBlob(dev, id)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return nil, err
		}
		logger.Debug("blob unreadable, using empty data", "blob", id, "err", err)
		return nil, nil
	}
	return data, nil
}
