package engine

import (
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	iface "ObjDetServer/interface"
)

const StateUnloaded = 0x0001
const StateLoading = 0x0002
const StateReady = 0x0003
const StateFailed = 0x0004

func stateName(s int) string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

type Options struct {
	ModelPath string
	Names     []string
	InputSize int
	Conf      float32
	Iou       float32
	Threads   int
	Warmup    bool
}

type Detector struct {
	opts Options

	mu      sync.RWMutex
	state   int
	loadErr error

	// runMu serializes the session invocation only; the fixed input and
	// output tensors make the session non-re-entrant.
	runMu   sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	cells   int
}

// New only records options. All fallible work happens in Load, so a handle
// can be constructed and injected before the model file even exists.
func New(opts Options) *Detector {
	if opts.InputSize <= 0 {
		opts.InputSize = 640
	}
	return &Detector{opts: opts, state: StateUnloaded}
}

// IsReady reports whether Infer can run right now. Never blocks on a load
// in progress.
func (d *Detector) IsReady() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state == StateReady
}

func (d *Detector) CheckConfig() iface.EngineConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return iface.EngineConfig{
		ModelPath: d.opts.ModelPath,
		ModelName: filepath.Base(d.opts.ModelPath),
		Names:     d.opts.Names,
		InputSize: d.opts.InputSize,
		Conf:      d.opts.Conf,
		Iou:       d.opts.Iou,
		State:     stateName(d.state),
	}
}

// Destroy releases the session and tensors. Waits for an in-flight run to
// finish; safe to call repeatedly.
func (d *Detector) Destroy() {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		d.session.Destroy()
		d.session = nil
	}
	if d.input != nil {
		d.input.Destroy()
		d.input = nil
	}
	if d.output != nil {
		d.output.Destroy()
		d.output = nil
	}
	d.state = StateUnloaded
	d.loadErr = nil
}
