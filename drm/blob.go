package drm

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/bnema/drmkit/internal/uapi"
)

// GetBlob reads the bytes of a property blob.
func GetBlob(dev BasicDevice, id BlobID) ([]byte, error) {
	raw := uapi.GetBlob{BlobID: uint32(id)}
	var data []byte
	err := query(dev, "get blob", uapi.IOCTLModeGetPropBlob, unsafe.Pointer(&raw), func() int {
		data = buffer[byte](raw.Length, &raw.Data)
		return len(data)
	})
	if err != nil {
		return nil, fmt.Errorf("blob %d: %w", id, err)
	}
	return whole(data, raw.Length), nil
}

// CreateBlob copies data into a new kernel blob, for use as the value of a
// blob property.
func CreateBlob(dev BasicDevice, data []byte) (BlobID, error) {
	raw := uapi.CreateBlob{Data: uapi.Ptr(data), Length: uint32(len(data))}
	err := ioctl(dev, "create blob", uapi.IOCTLModeCreatePropBlob, unsafe.Pointer(&raw))
	runtime.KeepAlive(data)
	if err != nil {
		return 0, err
	}
	return BlobID(raw.BlobID), nil
}

// CreateModeBlob stores m in the kernel layout expected by MODE_ID.
func CreateModeBlob(dev BasicDevice, m Mode) (BlobID, error) {
	raw := m.kernel()
	data := unsafe.Slice((*byte)(unsafe.Pointer(&raw)), unsafe.Sizeof(raw))
	return CreateBlob(dev, data)
}

// DestroyBlob drops the caller's reference to a blob. Properties still pointing
// at it keep it alive in the kernel.
func DestroyBlob(dev BasicDevice, id BlobID) error {
	raw := uapi.DestroyBlob{BlobID: uint32(id)}
	return ioctl(dev, "destroy blob", uapi.IOCTLModeDestroyPropBlob, unsafe.Pointer(&raw))
}

// ModeFromBlob decodes a MODE_ID blob.
func ModeFromBlob(data []byte) (Mode, error) {
	var raw uapi.ModeInfo
	if len(data) != int(unsafe.Sizeof(raw)) {
		return Mode{}, fmt.Errorf("mode blob is %d bytes, want %d", len(data), unsafe.Sizeof(raw))
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&raw)), unsafe.Sizeof(raw)), data)
	return modeFromKernel(raw), nil
}
