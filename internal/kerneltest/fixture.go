package kerneltest

import (
	"math"
	"unsafe"

	"github.com/bnema/drmkit/internal/uapi"
)

// Ids of the default fixture.
const (
	ConnectorHDMI = 7
	ConnectorDP   = 8

	EncoderHDMI = 20
	EncoderDP   = 21

	CrtcPrimary   = 30
	CrtcSecondary = 31

	PlanePrimary0 = 40
	PlanePrimary1 = 41
	PlaneOverlay0 = 42

	ConsoleFB = 60

	EDIDBlob = 50
	ModeBlob = 51
)

// Property ids of the default fixture.
const (
	PropDPMS     = 1
	PropEDID     = 2
	PropCrtcID   = 3
	PropActive   = 4
	PropModeID   = 5
	PropType     = 6
	PropFBID     = 7
	PropSrcX     = 9
	PropCrtcX    = 10
	PropRotation = 11
)

// Format codes the fixture planes advertise.
const (
	FormatXRGB8888 = 'X' | 'R'<<8 | '2'<<16 | '4'<<24
	FormatARGB8888 = 'A' | 'R'<<8 | '2'<<16 | '4'<<24
)

// Mode1080p is the preferred mode of the HDMI connector.
func Mode1080p() uapi.ModeInfo {
	m := uapi.ModeInfo{
		Clock:      148500,
		HDisplay:   1920,
		HSyncStart: 2008,
		HSyncEnd:   2052,
		HTotal:     2200,
		VDisplay:   1080,
		VSyncStart: 1084,
		VSyncEnd:   1089,
		VTotal:     1125,
		VRefresh:   60,
		Flags:      0x5,
		Type:       uapi.ModeTypePreferred | uapi.ModeTypeDriver,
	}
	uapi.PutCString(m.Name[:], "1920x1080")
	return m
}

// Mode720p is the second mode of the HDMI connector.
func Mode720p() uapi.ModeInfo {
	m := uapi.ModeInfo{
		Clock:      74250,
		HDisplay:   1280,
		HSyncStart: 1390,
		HSyncEnd:   1430,
		HTotal:     1650,
		VDisplay:   720,
		VSyncStart: 725,
		VSyncEnd:   730,
		VTotal:     750,
		VRefresh:   60,
		Flags:      0x5,
		Type:       uapi.ModeTypeDriver,
	}
	uapi.PutCString(m.Name[:], "1280x720")
	return m
}

// EDID is the fixture's EDID blob: a valid header followed by zeros.
func EDID() []byte {
	edid := make([]byte, 128)
	copy(edid, []byte{0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00})
	return edid
}

// New returns a device with one connected HDMI output driven by controller 30,
// one disconnected DisplayPort output, two controllers and three planes.
func New() *Kernel {
	k := Empty()

	for _, p := range []*Property{
		{ID: PropDPMS, Flags: uapi.PropEnum, Name: "DPMS", Enums: []Enum{
			{0, "On"}, {1, "Standby"}, {2, "Suspend"}, {3, "Off"},
		}},
		{ID: PropEDID, Flags: uapi.PropBlob | uapi.PropImmutable, Name: "EDID"},
		{ID: PropCrtcID, Flags: uapi.PropObject | uapi.PropAtomic, Name: "CRTC_ID", Values: []uint64{uapi.ObjectCrtc}},
		{ID: PropActive, Flags: uapi.PropRange | uapi.PropAtomic, Name: "ACTIVE", Values: []uint64{0, 1}},
		{ID: PropModeID, Flags: uapi.PropBlob | uapi.PropAtomic, Name: "MODE_ID"},
		{ID: PropType, Flags: uapi.PropEnum | uapi.PropImmutable, Name: "type", Enums: []Enum{
			{PlaneOverlay, "Overlay"}, {PlanePrimary, "Primary"}, {PlaneCursor, "Cursor"},
		}},
		{ID: PropFBID, Flags: uapi.PropObject | uapi.PropAtomic, Name: "FB_ID", Values: []uint64{uapi.ObjectFB}},
		{ID: PropSrcX, Flags: uapi.PropRange | uapi.PropAtomic, Name: "SRC_X", Values: []uint64{0, math.MaxUint32}},
		{ID: PropCrtcX, Flags: uapi.PropSignedRange | uapi.PropAtomic, Name: "CRTC_X", Values: []uint64{
			signed(math.MinInt32), signed(math.MaxInt32),
		}},
		{ID: PropRotation, Flags: uapi.PropBitmask, Name: "rotation", Enums: []Enum{
			{0, "rotate-0"}, {1, "rotate-90"}, {2, "rotate-180"}, {3, "rotate-270"}, {4, "reflect-x"}, {5, "reflect-y"},
		}},
	} {
		k.AddProperty(p)
	}

	mode := Mode1080p()
	k.AddBlob(EDIDBlob, EDID())
	k.AddBlob(ModeBlob, unsafe.Slice((*byte)(unsafe.Pointer(&mode)), unsafe.Sizeof(mode)))

	k.AddFramebuffer(&Framebuffer{ID: ConsoleFB, Width: 1920, Height: 1080, Pitch: 7680, BPP: 32, Depth: 24})

	k.AddConnector(&Connector{
		ID:         ConnectorHDMI,
		Type:       11, // HDMI-A
		TypeID:     1,
		Connection: uapi.Connected,
		MmWidth:    600,
		MmHeight:   340,
		Subpixel:   2,
		Encoder:    EncoderHDMI,
		Encoders:   []uint32{EncoderHDMI},
		Modes:      []uapi.ModeInfo{Mode1080p(), Mode720p()},
	},
		PropValue{PropDPMS, 0},
		PropValue{PropEDID, EDIDBlob},
		PropValue{PropCrtcID, CrtcPrimary},
	)
	k.AddConnector(&Connector{
		ID:         ConnectorDP,
		Type:       10, // DisplayPort
		TypeID:     1,
		Connection: uapi.Disconnected,
		Subpixel:   1,
		Encoders:   []uint32{EncoderDP},
	},
		PropValue{PropDPMS, 3},
		PropValue{PropEDID, 0},
		PropValue{PropCrtcID, 0},
	)

	k.AddEncoder(&Encoder{ID: EncoderHDMI, Type: 2, Crtc: CrtcPrimary, PossibleCrtcs: 0b11})
	k.AddEncoder(&Encoder{ID: EncoderDP, Type: 2, PossibleCrtcs: 0b10})

	k.AddCrtc(&Crtc{ID: CrtcPrimary, FB: ConsoleFB, GammaSize: 256, Mode: &mode, Connectors: []uint32{ConnectorHDMI}},
		PropValue{PropActive, 1},
		PropValue{PropModeID, ModeBlob},
	)
	k.AddCrtc(&Crtc{ID: CrtcSecondary, GammaSize: 256},
		PropValue{PropActive, 0},
		PropValue{PropModeID, 0},
	)

	planeProps := func(typ int, crtc, fb uint32) []PropValue {
		return []PropValue{
			{PropType, uint64(typ)},
			{PropFBID, uint64(fb)},
			{PropCrtcID, uint64(crtc)},
			{PropSrcX, 0},
			{PropCrtcX, 0},
			{PropRotation, 1},
		}
	}
	formats := []uint32{FormatXRGB8888, FormatARGB8888}
	k.AddPlane(&Plane{ID: PlanePrimary0, Crtc: CrtcPrimary, FB: ConsoleFB, PossibleCrtcs: 0b01, Type: PlanePrimary, Formats: formats},
		planeProps(PlanePrimary, CrtcPrimary, ConsoleFB)...)
	k.AddPlane(&Plane{ID: PlanePrimary1, PossibleCrtcs: 0b10, Type: PlanePrimary, Formats: formats},
		planeProps(PlanePrimary, 0, 0)...)
	k.AddPlane(&Plane{ID: PlaneOverlay0, PossibleCrtcs: 0b11, Type: PlaneOverlay, Formats: formats[1:]},
		planeProps(PlaneOverlay, 0, 0)...)

	return k
}

func signed(v int64) uint64 {
	return uint64(v)
}
