package drm

import (
	"fmt"
	"unsafe"

	"github.com/bnema/drmkit/internal/uapi"
)

// ConnectorInterface is the physical kind of a connector.
type ConnectorInterface int

const (
	InterfaceUnknown ConnectorInterface = iota
	InterfaceVGA
	InterfaceDVII
	InterfaceDVID
	InterfaceDVIA
	InterfaceComposite
	InterfaceSVideo
	InterfaceLVDS
	InterfaceComponent
	InterfaceNinePinDIN
	InterfaceDisplayPort
	InterfaceHDMIA
	InterfaceHDMIB
	InterfaceTV
	InterfaceEmbeddedDisplayPort
	InterfaceVirtual
	InterfaceDSI
	InterfaceDPI
	InterfaceWriteback
	InterfaceSPI
	InterfaceUSB
)

// connectorInterfaces is indexed by the kernel's DRM_MODE_CONNECTOR_* value.
var connectorInterfaces = [...]struct {
	iface ConnectorInterface
	name  string
}{
	{InterfaceUnknown, "Unknown"},
	{InterfaceVGA, "VGA"},
	{InterfaceDVII, "DVI-I"},
	{InterfaceDVID, "DVI-D"},
	{InterfaceDVIA, "DVI-A"},
	{InterfaceComposite, "Composite"},
	{InterfaceSVideo, "SVIDEO"},
	{InterfaceLVDS, "LVDS"},
	{InterfaceComponent, "Component"},
	{InterfaceNinePinDIN, "DIN"},
	{InterfaceDisplayPort, "DP"},
	{InterfaceHDMIA, "HDMI-A"},
	{InterfaceHDMIB, "HDMI-B"},
	{InterfaceTV, "TV"},
	{InterfaceEmbeddedDisplayPort, "eDP"},
	{InterfaceVirtual, "Virtual"},
	{InterfaceDSI, "DSI"},
	{InterfaceDPI, "DPI"},
	{InterfaceWriteback, "Writeback"},
	{InterfaceSPI, "SPI"},
	{InterfaceUSB, "USB"},
}

// connectorInterfaceFromKernel maps values newer than this package to
// InterfaceUnknown.
func connectorInterfaceFromKernel(v uint32) ConnectorInterface {
	if int(v) >= len(connectorInterfaces) {
		return InterfaceUnknown
	}
	return connectorInterfaces[v].iface
}

// String returns the kernel's short name, as used in names like "HDMI-A-1".
func (i ConnectorInterface) String() string {
	if i < 0 || int(i) >= len(connectorInterfaces) {
		return "Unknown"
	}
	return connectorInterfaces[i].name
}

// ConnectorState is whether a sink is attached.
type ConnectorState int

const (
	StateUnknown ConnectorState = iota
	StateConnected
	StateDisconnected
)

func connectorStateFromKernel(v uint32) ConnectorState {
	switch v {
	case uapi.Connected:
		return StateConnected
	case uapi.Disconnected:
		return StateDisconnected
	default:
		return StateUnknown
	}
}

func (s ConnectorState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// SubPixel is the subpixel layout of the attached panel.
type SubPixel int

const (
	SubPixelUnknown SubPixel = iota
	SubPixelHorizontalRGB
	SubPixelHorizontalBGR
	SubPixelVerticalRGB
	SubPixelVerticalBGR
	SubPixelNone
)

func subPixelFromKernel(v uint32) SubPixel {
	// Kernel values 1..6 are UNKNOWN, HRGB, HBGR, VRGB, VBGR, NONE.
	switch v {
	case 2:
		return SubPixelHorizontalRGB
	case 3:
		return SubPixelHorizontalBGR
	case 4:
		return SubPixelVerticalRGB
	case 5:
		return SubPixelVerticalBGR
	case 6:
		return SubPixelNone
	default:
		return SubPixelUnknown
	}
}

func (s SubPixel) String() string {
	switch s {
	case SubPixelHorizontalRGB:
		return "horizontal-rgb"
	case SubPixelHorizontalBGR:
		return "horizontal-bgr"
	case SubPixelVerticalRGB:
		return "vertical-rgb"
	case SubPixelVerticalBGR:
		return "vertical-bgr"
	case SubPixelNone:
		return "none"
	default:
		return "unknown"
	}
}

// Connector is a checked-out display output.
type Connector struct {
	*handle

	Interface ConnectorInterface
	// InterfaceID distinguishes connectors of the same interface, starting at 1.
	InterfaceID uint32
	State       ConnectorState

	// Physical size of the sink in millimetres, zero when unknown.
	WidthMM, HeightMM uint32
	SubPixel          SubPixel

	// Encoder is the currently attached encoder or 0.
	Encoder  ResourceID
	Encoders []ResourceID
	Modes    []Mode

	PropertyIDs    []ResourceID
	PropertyValues []uint64
}

// Name returns the conventional connector name, e.g. "HDMI-A-1".
func (c *Connector) Name() string {
	return fmt.Sprintf("%s-%d", c.Interface, c.InterfaceID)
}

// Connected reports whether a sink is attached.
func (c *Connector) Connected() bool {
	return c.State == StateConnected
}

func fetchConnector(h *handle) (*Connector, error) {
	raw := uapi.GetConnector{ConnectorID: uint32(h.id)}
	var (
		encoders []ResourceID
		modes    []uapi.ModeInfo
		props    []ResourceID
		values   []uint64
	)
	err := query(h.dev, "get connector", uapi.IOCTLModeGetConnector, unsafe.Pointer(&raw), func() int {
		encoders = buffer[ResourceID](raw.CountEncoders, &raw.EncodersPtr)
		modes = buffer[uapi.ModeInfo](raw.CountModes, &raw.ModesPtr)
		props = buffer[ResourceID](raw.CountProps, &raw.PropsPtr)
		values = buffer[uint64](raw.CountProps, &raw.PropValuesPtr)
		return len(encoders) + len(modes) + len(props)
	})
	if err != nil {
		return nil, fmt.Errorf("connector %d: %w", h.id, err)
	}

	c := &Connector{
		handle:         h,
		Interface:      connectorInterfaceFromKernel(raw.ConnectorType),
		InterfaceID:    raw.ConnectorTypeID,
		State:          connectorStateFromKernel(raw.Connection),
		WidthMM:        raw.MmWidth,
		HeightMM:       raw.MmHeight,
		SubPixel:       subPixelFromKernel(raw.Subpixel),
		Encoder:        ResourceID(raw.EncoderID),
		Encoders:       trim(encoders, raw.CountEncoders),
		PropertyIDs:    trim(props, raw.CountProps),
		PropertyValues: trim(values, raw.CountProps),
	}
	for _, m := range whole(modes, raw.CountModes) {
		c.Modes = append(c.Modes, modeFromKernel(m))
	}
	return c, nil
}
