package uapi

import (
	"testing"
	"unsafe"
)

func TestStructSizesMatchKernel(t *testing.T) {
	tests := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"drm_mode_modeinfo", unsafe.Sizeof(ModeInfo{}), 68},
		{"drm_mode_card_res", unsafe.Sizeof(CardRes{}), 64},
		{"drm_mode_crtc", unsafe.Sizeof(Crtc{}), 104},
		{"drm_mode_crtc_lut", unsafe.Sizeof(CrtcLut{}), 32},
		{"drm_mode_get_encoder", unsafe.Sizeof(GetEncoder{}), 20},
		{"drm_mode_get_connector", unsafe.Sizeof(GetConnector{}), 80},
		{"drm_mode_get_plane_res", unsafe.Sizeof(GetPlaneRes{}), 16},
		{"drm_mode_get_plane", unsafe.Sizeof(GetPlane{}), 32},
		{"drm_mode_get_property", unsafe.Sizeof(GetProperty{}), 64},
		{"drm_mode_property_enum", unsafe.Sizeof(PropertyEnum{}), 40},
		{"drm_mode_get_blob", unsafe.Sizeof(GetBlob{}), 16},
		{"drm_mode_create_blob", unsafe.Sizeof(CreateBlob{}), 16},
		{"drm_mode_destroy_blob", unsafe.Sizeof(DestroyBlob{}), 4},
		{"drm_mode_obj_get_properties", unsafe.Sizeof(ObjGetProperties{}), 32},
		{"drm_mode_atomic", unsafe.Sizeof(Atomic{}), 56},
		{"drm_mode_create_dumb", unsafe.Sizeof(CreateDumb{}), 32},
		{"drm_mode_map_dumb", unsafe.Sizeof(MapDumb{}), 16},
		{"drm_mode_destroy_dumb", unsafe.Sizeof(DestroyDumb{}), 4},
		{"drm_mode_fb_cmd", unsafe.Sizeof(FBCmd{}), 28},
		{"drm_get_cap", unsafe.Sizeof(GetCap{}), 16},
		{"drm_set_client_cap", unsafe.Sizeof(SetClientCap{}), 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("sizeof(%s) = %d, want %d", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestRequestCodes(t *testing.T) {
	// Values as produced by the kernel headers on x86_64 and arm64.
	tests := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"DRM_IOCTL_SET_MASTER", IOCTLSetMaster, 0x641e},
		{"DRM_IOCTL_DROP_MASTER", IOCTLDropMaster, 0x641f},
		{"DRM_IOCTL_GET_CAP", IOCTLGetCap, 0xc010640c},
		{"DRM_IOCTL_SET_CLIENT_CAP", IOCTLSetClientCap, 0x4010640d},
		{"DRM_IOCTL_MODE_GETRESOURCES", IOCTLModeGetResources, 0xc04064a0},
		{"DRM_IOCTL_MODE_GETCRTC", IOCTLModeGetCrtc, 0xc06864a1},
		{"DRM_IOCTL_MODE_SETCRTC", IOCTLModeSetCrtc, 0xc06864a2},
		{"DRM_IOCTL_MODE_GETCONNECTOR", IOCTLModeGetConnector, 0xc05064a7},
		{"DRM_IOCTL_MODE_GETPROPERTY", IOCTLModeGetProperty, 0xc04064aa},
		{"DRM_IOCTL_MODE_RMFB", IOCTLModeRmFB, 0xc00464af},
		{"DRM_IOCTL_MODE_CREATE_DUMB", IOCTLModeCreateDumb, 0xc02064b2},
		{"DRM_IOCTL_MODE_ATOMIC", IOCTLModeAtomic, 0xc03864bc},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %#x, want %#x", tt.name, tt.got, tt.want)
		}
	}
}

func TestCStringRoundTrip(t *testing.T) {
	var buf [8]byte
	PutCString(buf[:], "1920x1080")
	if got := CString(buf[:]); got != "1920x10" {
		t.Errorf("truncated name = %q, want %q", got, "1920x10")
	}
	if buf[7] != 0 {
		t.Error("last byte must stay NUL")
	}

	PutCString(buf[:], "abc")
	if got := CString(buf[:]); got != "abc" {
		t.Errorf("CString = %q, want %q", got, "abc")
	}
}

func TestPtrSlice(t *testing.T) {
	if Ptr[uint32](nil) != 0 {
		t.Error("Ptr of empty slice must be 0")
	}
	ids := []uint32{7, 8, 9}
	back := Slice[uint32](Ptr(ids), uint32(len(ids)))
	back[1] = 42
	if ids[1] != 42 {
		t.Error("Slice must alias the original backing array")
	}
	if Slice[uint32](0, 3) != nil {
		t.Error("Slice of a null pointer must be nil")
	}
}
