//go:build darwin || freebsd || linux

package libretro

import (
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"
)

var requiredSymbols = []string{
	"retro_api_version",
	"retro_get_system_info",
	"retro_get_system_av_info",
	"retro_set_environment",
	"retro_set_video_refresh",
	"retro_set_audio_sample",
	"retro_set_audio_sample_batch",
	"retro_set_input_poll",
	"retro_set_input_state",
	"retro_init",
	"retro_deinit",
	"retro_load_game",
	"retro_unload_game",
	"retro_run",
}

// library is one dlopen'ed core with its entry points bound.
type library struct {
	handle uintptr
	path   string

	apiVersion          func() uint32
	getSystemInfo       func(info *systemInfo)
	getSystemAVInfo     func(info *systemAVInfo)
	setEnvironment      func(cb uintptr)
	setVideoRefresh     func(cb uintptr)
	setAudioSample      func(cb uintptr)
	setAudioSampleBatch func(cb uintptr)
	setInputPoll        func(cb uintptr)
	setInputState       func(cb uintptr)
	init                func()
	deinit              func()
	loadGame            func(game *gameInfo) bool
	unloadGame          func()
	run                 func()

	// optional:
	serializeSize func() uintptr
	serialize     func(data unsafe.Pointer, size uintptr) bool
	unserialize   func(data unsafe.Pointer, size uintptr) bool
}

func openLibrary(path string) (lib *library, err error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, fmt.Errorf("libretro: dlopen %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = purego.Dlclose(handle)
		}
	}()

	for _, sym := range requiredSymbols {
		if _, err = purego.Dlsym(handle, sym); err != nil {
			return nil, fmt.Errorf("libretro: %s: missing symbol %s: %w", path, sym, err)
		}
	}

	lib = &library{handle: handle, path: path}
	purego.RegisterLibFunc(&lib.apiVersion, handle, "retro_api_version")
	purego.RegisterLibFunc(&lib.getSystemInfo, handle, "retro_get_system_info")
	purego.RegisterLibFunc(&lib.getSystemAVInfo, handle, "retro_get_system_av_info")
	purego.RegisterLibFunc(&lib.setEnvironment, handle, "retro_set_environment")
	purego.RegisterLibFunc(&lib.setVideoRefresh, handle, "retro_set_video_refresh")
	purego.RegisterLibFunc(&lib.setAudioSample, handle, "retro_set_audio_sample")
	purego.RegisterLibFunc(&lib.setAudioSampleBatch, handle, "retro_set_audio_sample_batch")
	purego.RegisterLibFunc(&lib.setInputPoll, handle, "retro_set_input_poll")
	purego.RegisterLibFunc(&lib.setInputState, handle, "retro_set_input_state")
	purego.RegisterLibFunc(&lib.init, handle, "retro_init")
	purego.RegisterLibFunc(&lib.deinit, handle, "retro_deinit")
	purego.RegisterLibFunc(&lib.loadGame, handle, "retro_load_game")
	purego.RegisterLibFunc(&lib.unloadGame, handle, "retro_unload_game")
	purego.RegisterLibFunc(&lib.run, handle, "retro_run")

	if hasSymbol(handle, "retro_serialize_size") && hasSymbol(handle, "retro_serialize") && hasSymbol(handle, "retro_unserialize") {
		purego.RegisterLibFunc(&lib.serializeSize, handle, "retro_serialize_size")
		purego.RegisterLibFunc(&lib.serialize, handle, "retro_serialize")
		purego.RegisterLibFunc(&lib.unserialize, handle, "retro_unserialize")
	}

	return lib, nil
}

func hasSymbol(handle uintptr, name string) bool {
	_, err := purego.Dlsym(handle, name)
	return err == nil
}

func (l *library) canSerialize() bool {
	return l.serialize != nil
}

func (l *library) close() error {
	return purego.Dlclose(l.handle)
}

// ptr converts a C pointer received as uintptr.
func ptr(u uintptr) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&u))
}
