//go:build darwin || freebsd || linux

package libretro

import (
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"

	"playbyte/core"
)

// libretro callbacks carry no user data, so every call into any core holds
// callMu and publishes the instance being driven in current.
var (
	callMu  sync.Mutex
	current *Instance

	callbacksOnce sync.Once
	cbEnvironment uintptr
	cbVideo       uintptr
	cbAudioSample uintptr
	cbAudioBatch  uintptr
	cbInputPoll   uintptr
	cbInputState  uintptr
)

func registerCallbacks() {
	callbacksOnce.Do(func() {
		cbEnvironment = purego.NewCallback(environmentCallback)
		cbVideo = purego.NewCallback(videoRefreshCallback)
		cbAudioSample = purego.NewCallback(audioSampleCallback)
		cbAudioBatch = purego.NewCallback(audioSampleBatchCallback)
		cbInputPoll = purego.NewCallback(inputPollCallback)
		cbInputState = purego.NewCallback(inputStateCallback)
	})
}

func environmentCallback(cmdArg uintptr, data uintptr) uintptr {
	i := current
	cmd := uint32(cmdArg) &^ envExperimental
	switch cmd {
	case envGetCanDupe:
		if data != 0 {
			*(*bool)(ptr(data)) = true
		}
		return 1
	case envSetPixelFormat:
		if data == 0 || i == nil {
			return 0
		}
		f := pixelFormat(*(*uint32)(ptr(data)))
		if f > pixelFormatRGB565 {
			return 0
		}
		i.format = f
		return 1
	case envGetSystemDirectory, envGetSaveDirectory:
		if data == 0 || i == nil || len(i.dir) == 0 {
			return 0
		}
		*(**byte)(ptr(data)) = &i.dir[0]
		return 1
	case envGetVariableUpdate:
		if data != 0 {
			*(*bool)(ptr(data)) = false
		}
		return 1
	case envSetPerformanceLevel, envSetSupportNoGame:
		return 1
	case envGetVariable, envGetLogInterface:
		return 0
	default:
		return 0
	}
}

func videoRefreshCallback(data, width, height, pitch uintptr) {
	i := current
	if i == nil || data == 0 {
		// NULL means the core duplicated the previous frame.
		return
	}
	w, h, p := int(uint32(width)), int(uint32(height)), int(pitch)
	if w <= 0 || h <= 0 || p < w*bytesPerPixel(i.format) {
		return
	}
	src := unsafe.Slice((*byte)(ptr(data)), p*h)
	i.video = toRGBA(i.format, src, w, h, p)
	i.width, i.height = w, h
}

func audioSampleCallback(left, right uintptr) {
	if i := current; i != nil {
		i.audio = append(i.audio, int16(left), int16(right))
	}
}

func audioSampleBatchCallback(data, frames uintptr) uintptr {
	i := current
	if i == nil || data == 0 {
		return frames
	}
	i.audio = append(i.audio, unsafe.Slice((*int16)(ptr(data)), int(frames)*2)...)
	return frames
}

func inputPollCallback() {}

func inputStateCallback(port, device, index, id uintptr) uintptr {
	i := current
	if i == nil || uint32(device)&0xFF != deviceJoypad || uint32(port) >= core.MaxPorts {
		return 0
	}
	if i.input.Pads[uint32(port)].Pressed(uint(uint32(id))) {
		return 1
	}
	return 0
}
