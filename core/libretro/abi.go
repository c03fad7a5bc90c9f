package libretro

import "unsafe"

const apiVersion = 1

// environment commands
const (
	envSetPerformanceLevel = 8
	envGetSystemDirectory  = 9
	envSetPixelFormat      = 10
	envGetCanDupe          = 3
	envGetVariable         = 15
	envGetVariableUpdate   = 17
	envSetSupportNoGame    = 18
	envGetLogInterface     = 27
	envGetSaveDirectory    = 31
	envExperimental        = 0x10000
)

type pixelFormat uint32

const (
	pixelFormat0RGB1555 pixelFormat = 0
	pixelFormatXRGB8888 pixelFormat = 1
	pixelFormatRGB565   pixelFormat = 2
)

const deviceJoypad = 1

type systemInfo struct {
	LibraryName     *byte
	LibraryVersion  *byte
	ValidExtensions *byte
	NeedFullpath    bool
	BlockExtract    bool
}

type gameInfo struct {
	Path *byte
	Data unsafe.Pointer
	Size uintptr
	Meta *byte
}

type gameGeometry struct {
	BaseWidth   uint32
	BaseHeight  uint32
	MaxWidth    uint32
	MaxHeight   uint32
	AspectRatio float32
}

type systemTiming struct {
	FPS        float64
	SampleRate float64
}

type systemAVInfo struct {
	Geometry gameGeometry
	Timing   systemTiming
}

// goString copies a NUL-terminated C string.
func goString(p *byte) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return string(unsafe.Slice(p, n))
}

// cString returns a NUL-terminated copy of s. The caller keeps it alive.
func cString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}
