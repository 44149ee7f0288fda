package engine

import (
	"fmt"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	rtMu    sync.Mutex
	rtReady bool
)

// InitRuntime points onnxruntime_go at the shared library and brings up the
// process-wide environment. Idempotent; later calls are no-ops.
func InitRuntime(libPath string) error {
	rtMu.Lock()
	defer rtMu.Unlock()
	if rtReady {
		return nil
	}
	if libPath == "" {
		libPath = defaultLibPath()
	}
	if libPath == "" {
		return fmt.Errorf("no bundled onnxruntime library for %s/%s, set ortLibPath", runtime.GOOS, runtime.GOARCH)
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime from %s: %w", libPath, err)
	}
	rtReady = true
	return nil
}

// ShutdownRuntime tears the environment down on process exit.
func ShutdownRuntime() {
	rtMu.Lock()
	defer rtMu.Unlock()
	if !rtReady {
		return
	}
	_ = ort.DestroyEnvironment()
	rtReady = false
}

func defaultLibPath() string {
	switch runtime.GOOS {
	case "windows":
		if runtime.GOARCH == "amd64" {
			return "third_party/onnxruntime.dll"
		}
	case "darwin":
		if runtime.GOARCH == "arm64" {
			return "third_party/onnxruntime_arm64.dylib"
		}
		if runtime.GOARCH == "amd64" {
			return "third_party/onnxruntime_amd64.dylib"
		}
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "third_party/onnxruntime_arm64.so"
		}
		return "third_party/onnxruntime.so"
	}
	return ""
}
