package engine

import (
	"fmt"
	"image"
	"os"
	"runtime"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	iface "ObjDetServer/interface"
	"ObjDetServer/logger"
)

const inputName = "images"
const outputName = "output0"

// Load builds the ONNX session and moves the handle to the ready state.
// Exactly one load ever runs: once ready, Load is a no-op, and once failed
// it returns the recorded error without retrying.
func (d *Detector) Load() error {
	d.mu.Lock()
	switch d.state {
	case StateReady:
		d.mu.Unlock()
		return nil
	case StateFailed:
		err := d.loadErr
		d.mu.Unlock()
		return err
	case StateLoading:
		d.mu.Unlock()
		return fmt.Errorf("model load already in progress")
	}
	d.state = StateLoading
	d.mu.Unlock()

	logger.Log().Info("loading model",
		zap.String("model", d.opts.ModelPath),
		zap.Int("inputSize", d.opts.InputSize),
		zap.Int("classes", len(d.opts.Names)))

	session, input, output, cells, err := d.buildSession()

	d.mu.Lock()
	if err != nil {
		d.state = StateFailed
		d.loadErr = &iface.LoadError{Cause: err}
		retErr := d.loadErr
		d.mu.Unlock()
		logger.Log().Error("model load failed",
			zap.String("model", d.opts.ModelPath), zap.Error(err))
		return retErr
	}
	d.session = session
	d.input = input
	d.output = output
	d.cells = cells
	d.state = StateReady
	d.mu.Unlock()
	logger.Log().Info("model ready", zap.String("model", d.opts.ModelPath))
	return nil
}

func (d *Detector) buildSession() (*ort.AdvancedSession, *ort.Tensor[float32], *ort.Tensor[float32], int, error) {
	path := d.opts.ModelPath
	if !strings.HasSuffix(strings.ToLower(path), ".onnx") {
		return nil, nil, nil, 0, fmt.Errorf("only .onnx models are supported, got %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, nil, nil, 0, fmt.Errorf("model file: %w", err)
	}
	if len(d.opts.Names) == 0 {
		return nil, nil, nil, 0, fmt.Errorf("empty label table")
	}

	sessOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, nil, nil, 0, err
	}
	defer sessOpts.Destroy()
	threads := d.opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if err := sessOpts.SetIntraOpNumThreads(threads); err != nil {
		return nil, nil, nil, 0, err
	}

	n := int64(d.opts.InputSize)
	cells := gridCells(d.opts.InputSize)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, n, n))
	if err != nil {
		return nil, nil, nil, 0, err
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(4+len(d.opts.Names)), int64(cells)))
	if err != nil {
		input.Destroy()
		return nil, nil, nil, 0, err
	}
	session, err := ort.NewAdvancedSession(path,
		[]string{inputName}, []string{outputName},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}, sessOpts)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, nil, nil, 0, err
	}
	if d.opts.Warmup {
		// first run pays one-off allocation costs, do it on a zero input
		clear(input.GetData())
		if err := session.Run(); err != nil {
			session.Destroy()
			input.Destroy()
			output.Destroy()
			return nil, nil, nil, 0, fmt.Errorf("warmup run: %w", err)
		}
	}
	return session, input, output, cells, nil
}

// gridCells is the YOLO candidate count for a square input: one cell per
// anchor point on the stride 8, 16 and 32 feature maps (8400 at 640).
func gridCells(n int) int {
	return (n/8)*(n/8) + (n/16)*(n/16) + (n/32)*(n/32)
}

// Infer runs one image through the model and returns raw parallel arrays in
// original image pixels. Thresholds must lie in [0, 1]; the boundary
// validates them too, this check stands on its own. Only the tensor fill,
// the run and the output copy hold the run lock.
func (d *Detector) Infer(img *image.NRGBA, conf float32, iou float32) (iface.RawResult, error) {
	// negated form so NaN fails the checks too
	if !(conf >= 0 && conf <= 1) {
		return iface.RawResult{}, &iface.ParamError{Name: "conf", Value: conf}
	}
	if !(iou >= 0 && iou <= 1) {
		return iface.RawResult{}, &iface.ParamError{Name: "iou", Value: iou}
	}
	if img == nil {
		return iface.RawResult{}, &iface.ContractError{Reason: "nil image"}
	}
	if !d.IsReady() {
		return iface.RawResult{}, iface.ErrNotReady
	}

	origW := img.Bounds().Dx()
	origH := img.Bounds().Dy()
	blob := makeInputBlob(img, d.opts.InputSize)

	d.runMu.Lock()
	d.mu.RLock()
	if d.state != StateReady || d.session == nil {
		d.mu.RUnlock()
		d.runMu.Unlock()
		return iface.RawResult{}, iface.ErrNotReady
	}
	session, input, output := d.session, d.input, d.output
	cells := d.cells
	d.mu.RUnlock()

	copy(input.GetData(), blob)
	err := session.Run()
	var raw []float32
	if err == nil {
		raw = append([]float32(nil), output.GetData()...)
	}
	d.runMu.Unlock()
	if err != nil {
		return iface.RawResult{}, fmt.Errorf("inference run: %w", err)
	}
	return decodeOutput(raw, len(d.opts.Names), cells, conf, iou, origW, origH, d.opts.InputSize), nil
}
