package drm

import (
	"encoding/binary"
	"fmt"
	"sync"
	"unsafe"

	"github.com/bnema/drmkit/internal/logger"
	"github.com/bnema/drmkit/internal/uapi"
)

// Buffer is anything a framebuffer can be created from.
type Buffer interface {
	Size() (width, height uint32)
	Pitch() uint32
	BPP() uint32
	Depth() uint32
	Handle() BufferHandle
}

// DumbBuffer is a CPU-mappable scanout buffer allocated by the kernel.
//
// Destroying a buffer while it is mapped is refused, so every Mapping must be
// closed before Close.
type DumbBuffer struct {
	dev PrivilegedDevice

	width, height uint32
	bpp           uint32
	pitch         uint32
	length        uint64
	handle        BufferHandle

	mu        sync.Mutex
	mappings  int
	destroyed bool
}

// CreateDumbBuffer allocates a width x height buffer with bpp bits per pixel.
// Pitch and total length are chosen by the kernel.
func CreateDumbBuffer(dev PrivilegedDevice, width, height, bpp uint32) (*DumbBuffer, error) {
	raw := uapi.CreateDumb{Width: width, Height: height, BPP: bpp}
	if err := ioctl(dev, "create dumb", uapi.IOCTLModeCreateDumb, unsafe.Pointer(&raw)); err != nil {
		return nil, fmt.Errorf("dumb buffer %dx%d: %w", width, height, err)
	}
	logger.Debug("created dumb buffer", "handle", raw.Handle, "width", width, "height", height, "pitch", raw.Pitch, "size", raw.Size)
	return &DumbBuffer{
		dev:    dev,
		width:  width,
		height: height,
		bpp:    bpp,
		pitch:  raw.Pitch,
		length: raw.Size,
		handle: BufferHandle(raw.Handle),
	}, nil
}

func (b *DumbBuffer) Size() (width, height uint32) { return b.width, b.height }
func (b *DumbBuffer) Pitch() uint32                { return b.pitch }
func (b *DumbBuffer) BPP() uint32                  { return b.bpp }
func (b *DumbBuffer) Handle() BufferHandle         { return b.handle }

// Len returns the allocation size in bytes.
func (b *DumbBuffer) Len() uint64 { return b.length }

// Depth returns the colour depth for the buffer's bpp: 24 for 32 bpp (the
// X channel carries no colour), otherwise bpp.
func (b *DumbBuffer) Depth() uint32 {
	if b.bpp == 32 {
		return 24
	}
	return b.bpp
}

// Map makes the buffer's memory visible to the process.
func (b *DumbBuffer) Map() (*Mapping, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return nil, fmt.Errorf("dumb buffer %d: %w", b.handle, ErrClosed)
	}

	raw := uapi.MapDumb{Handle: uint32(b.handle)}
	if err := ioctl(b.dev, "map dumb", uapi.IOCTLModeMapDumb, unsafe.Pointer(&raw)); err != nil {
		return nil, fmt.Errorf("dumb buffer %d: %w", b.handle, err)
	}
	data, err := b.dev.Mmap(int64(raw.Offset), int(b.length))
	if err != nil {
		return nil, fmt.Errorf("dumb buffer %d: %w", b.handle, &KernelCallError{Op: "mmap", Err: err})
	}
	b.mappings++
	return &Mapping{buf: b, data: data}, nil
}

// Close destroys the buffer. It fails with ErrBufferMapped while any mapping is
// open and with ErrClosed after the buffer was destroyed. If the kernel call
// fails the handle is leaked; calling Close again will not retry it.
func (b *DumbBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return fmt.Errorf("dumb buffer %d: %w", b.handle, ErrClosed)
	}
	if b.mappings > 0 {
		return fmt.Errorf("dumb buffer %d has %d mappings: %w", b.handle, b.mappings, ErrBufferMapped)
	}

	b.destroyed = true
	raw := uapi.DestroyDumb{Handle: uint32(b.handle)}
	if err := ioctl(b.dev, "destroy dumb", uapi.IOCTLModeDestroyDumb, unsafe.Pointer(&raw)); err != nil {
		return fmt.Errorf("dumb buffer %d: %w", b.handle, err)
	}
	logger.Debug("destroyed dumb buffer", "handle", b.handle)
	return nil
}

// Mapping is a shared read/write view of a dumb buffer's memory.
type Mapping struct {
	buf  *DumbBuffer
	data []byte
}

// Bytes returns the mapped memory, or nil once the mapping is closed. The
// slice itself must not be used after Close.
func (m *Mapping) Bytes() []byte {
	m.buf.mu.Lock()
	defer m.buf.mu.Unlock()
	return m.data
}

// Fill sets every visible pixel of a 32 bpp buffer to pixel, stored in native
// little-endian order as XRGB8888 expects.
func (m *Mapping) Fill(pixel uint32) error {
	m.buf.mu.Lock()
	defer m.buf.mu.Unlock()
	if m.data == nil {
		return fmt.Errorf("mapping: %w", ErrClosed)
	}
	if m.buf.bpp != 32 {
		return fmt.Errorf("fill needs 32 bpp, buffer has %d", m.buf.bpp)
	}
	width, height := m.buf.Size()
	pitch := int(m.buf.pitch)
	for y := range int(height) {
		row := m.data[y*pitch : y*pitch+int(width)*4]
		for x := 0; x < len(row); x += 4 {
			binary.LittleEndian.PutUint32(row[x:], pixel)
		}
	}
	return nil
}

// Close unmaps the memory. Only the first call has an effect. When munmap fails
// the mapping stays counted against the buffer, which then cannot be destroyed.
func (m *Mapping) Close() error {
	b := m.buf
	b.mu.Lock()
	defer b.mu.Unlock()
	if m.data == nil {
		return nil
	}
	data := m.data
	m.data = nil
	if err := b.dev.Munmap(data); err != nil {
		return fmt.Errorf("dumb buffer %d: %w", b.handle, &KernelCallError{Op: "munmap", Err: err})
	}
	b.mappings--
	return nil
}
