package drm

import (
	"fmt"
	"unsafe"

	"github.com/bnema/drmkit/internal/uapi"
)

// EncoderType is the signal an encoder produces.
type EncoderType int

const (
	EncoderNone EncoderType = iota
	EncoderDAC
	EncoderTMDS
	EncoderLVDS
	EncoderTVDAC
	EncoderVirtual
	EncoderDSI
	EncoderDPMST
	EncoderDPI
)

func encoderTypeFromKernel(v uint32) EncoderType {
	if v > uint32(EncoderDPI) {
		return EncoderNone
	}
	return EncoderType(v)
}

func (t EncoderType) String() string {
	switch t {
	case EncoderDAC:
		return "DAC"
	case EncoderTMDS:
		return "TMDS"
	case EncoderLVDS:
		return "LVDS"
	case EncoderTVDAC:
		return "TVDAC"
	case EncoderVirtual:
		return "Virtual"
	case EncoderDSI:
		return "DSI"
	case EncoderDPMST:
		return "DPMST"
	case EncoderDPI:
		return "DPI"
	default:
		return "None"
	}
}

// Encoder is a checked-out encoder.
type Encoder struct {
	*handle

	Type EncoderType
	// Controller is the controller currently feeding the encoder or 0.
	Controller ResourceID
	// PossibleControllers has bit i set when the i-th controller of the card
	// can feed this encoder.
	PossibleControllers uint32
	PossibleClones      uint32
}

// CanDrive reports whether ctrl's bit is set in PossibleControllers.
func (e *Encoder) CanDrive(ctrl *Controller) bool {
	return ctrl.Index < 32 && e.PossibleControllers&(1<<ctrl.Index) != 0
}

func fetchEncoder(h *handle) (*Encoder, error) {
	raw := uapi.GetEncoder{EncoderID: uint32(h.id)}
	if err := ioctl(h.dev, "get encoder", uapi.IOCTLModeGetEncoder, unsafe.Pointer(&raw)); err != nil {
		return nil, fmt.Errorf("encoder %d: %w", h.id, err)
	}
	return &Encoder{
		handle:              h,
		Type:                encoderTypeFromKernel(raw.EncoderType),
		Controller:          ResourceID(raw.CrtcID),
		PossibleControllers: raw.PossibleCrtcs,
		PossibleClones:      raw.PossibleClones,
	}, nil
}
