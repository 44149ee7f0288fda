package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	iface "ObjDetServer/interface"
)

type MockBackend struct {
	ready      bool
	names      []string
	raw        iface.RawResult
	inferErr   error
	inferCalls int
	lastConf   float32
	lastIou    float32
}

func (m *MockBackend) Load() error   { m.ready = true; return nil }
func (m *MockBackend) IsReady() bool { return m.ready }
func (m *MockBackend) Destroy()      { m.ready = false }

func (m *MockBackend) Infer(img *image.NRGBA, conf float32, iou float32) (iface.RawResult, error) {
	m.inferCalls++
	m.lastConf = conf
	m.lastIou = iou
	if m.inferErr != nil {
		return iface.RawResult{}, m.inferErr
	}
	return m.raw, nil
}

func (m *MockBackend) CheckConfig() iface.EngineConfig {
	return iface.EngineConfig{
		ModelPath: "models/mock.onnx",
		ModelName: "mock.onnx",
		Names:     m.names,
		InputSize: 640,
		Conf:      0.5,
		Iou:       0.45,
		State:     "ready",
	}
}

func newTestService(backend iface.Backend) *DetectionService {
	return New(backend, Settings{DefaultConf: 0.5, DefaultIou: 0.45, Version: "1.0.0"})
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func f32(v float32) *float32 { return &v }

func TestPredict(t *testing.T) {
	t.Run("Test not ready", func(t *testing.T) {
		backend := &MockBackend{ready: false, names: []string{"person"}}
		svc := newTestService(backend)
		_, err := svc.Predict(pngBytes(t, 10, 10), nil, nil)
		assert.ErrorIs(t, err, iface.ErrNotReady)
		assert.Equal(t, 0, backend.inferCalls)
	})

	t.Run("Test threshold overrides out of range", func(t *testing.T) {
		backend := &MockBackend{ready: true, names: []string{"person"}}
		svc := newTestService(backend)
		img := pngBytes(t, 10, 10)
		var paramErr *iface.ParamError

		_, err := svc.Predict(img, f32(1.01), nil)
		require.True(t, errors.As(err, &paramErr))
		assert.Equal(t, "confidence", paramErr.Name)

		_, err = svc.Predict(img, nil, f32(-0.1))
		require.True(t, errors.As(err, &paramErr))
		assert.Equal(t, "iou_threshold", paramErr.Name)

		assert.Equal(t, 0, backend.inferCalls)
	})

	t.Run("Test NaN overrides rejected", func(t *testing.T) {
		backend := &MockBackend{ready: true, names: []string{"person"}}
		svc := newTestService(backend)
		img := pngBytes(t, 10, 10)
		nan := f32(float32(math.NaN()))
		var paramErr *iface.ParamError

		_, err := svc.Predict(img, nan, nil)
		require.True(t, errors.As(err, &paramErr))
		assert.Equal(t, "confidence", paramErr.Name)

		_, err = svc.Predict(img, nil, nan)
		require.True(t, errors.As(err, &paramErr))
		assert.Equal(t, "iou_threshold", paramErr.Name)

		assert.Equal(t, 0, backend.inferCalls)
	})

	t.Run("Test defaults and overrides reach the backend", func(t *testing.T) {
		backend := &MockBackend{ready: true, names: []string{"person"}}
		svc := newTestService(backend)

		_, err := svc.Predict(pngBytes(t, 10, 10), nil, nil)
		require.NoError(t, err)
		assert.Equal(t, float32(0.5), backend.lastConf)
		assert.Equal(t, float32(0.45), backend.lastIou)

		_, err = svc.Predict(pngBytes(t, 10, 10), f32(0.3), f32(0.6))
		require.NoError(t, err)
		assert.Equal(t, float32(0.3), backend.lastConf)
		assert.Equal(t, float32(0.6), backend.lastIou)
	})

	t.Run("Test undecodable bytes never reach the backend", func(t *testing.T) {
		backend := &MockBackend{ready: true, names: []string{"person"}}
		svc := newTestService(backend)
		_, err := svc.Predict([]byte("this is not an image"), nil, nil)
		var decodeErr *iface.DecodeError
		assert.True(t, errors.As(err, &decodeErr))
		assert.Equal(t, 0, backend.inferCalls)
	})

	t.Run("Test empty result set", func(t *testing.T) {
		backend := &MockBackend{ready: true, names: []string{"person"}}
		svc := newTestService(backend)
		resp, err := svc.Predict(pngBytes(t, 32, 16), nil, nil)
		require.NoError(t, err)
		assert.NotNil(t, resp.Detections)
		assert.Len(t, resp.Detections, 0)
		assert.Equal(t, 0, resp.NumDetections)
		assert.Equal(t, [2]int{32, 16}, resp.ImageDimensions)

		body, err := json.Marshal(resp)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"detections":[]`)
	})

	t.Run("Test full response shape", func(t *testing.T) {
		backend := &MockBackend{
			ready: true,
			names: []string{"person", "car"},
			raw: iface.RawResult{
				Boxes:   []float32{10.7, 20.2, 110.9, 220.1, 5.0, 5.0, 50.5, 60.9},
				Scores:  []float32{0.92, 0.61},
				Classes: []int32{0, 1},
			},
		}
		svc := newTestService(backend)
		resp, err := svc.Predict(pngBytes(t, 320, 240), nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, resp.NumDetections)
		require.Len(t, resp.Detections, 2)

		first := resp.Detections[0]
		assert.Equal(t, "person", first.ClassName)
		assert.InDelta(t, 0.92, first.Confidence, 1e-6)
		assert.Equal(t, iface.BoundingBox{XMin: 10, YMin: 20, XMax: 110, YMax: 220}, first.BBox)

		second := resp.Detections[1]
		assert.Equal(t, "car", second.ClassName)
		assert.Equal(t, iface.BoundingBox{XMin: 5, YMin: 5, XMax: 50, YMax: 60}, second.BBox)

		assert.Equal(t, [2]int{320, 240}, resp.ImageDimensions)
		assert.Equal(t, "mock.onnx", resp.ModelName)
		assert.GreaterOrEqual(t, resp.InferenceTimeMs, 0.0)
		assert.Equal(t, math.Round(resp.InferenceTimeMs*100)/100, resp.InferenceTimeMs)
	})

	t.Run("Test backend order is preserved", func(t *testing.T) {
		backend := &MockBackend{
			ready: true,
			names: []string{"person", "car"},
			raw: iface.RawResult{
				Boxes:   []float32{1, 1, 2, 2, 3, 3, 4, 4},
				Scores:  []float32{0.3, 0.9},
				Classes: []int32{1, 0},
			},
		}
		svc := newTestService(backend)
		resp, err := svc.Predict(pngBytes(t, 10, 10), f32(0.1), nil)
		require.NoError(t, err)
		require.Len(t, resp.Detections, 2)
		assert.Equal(t, "car", resp.Detections[0].ClassName)
		assert.InDelta(t, 0.3, resp.Detections[0].Confidence, 1e-6)
		assert.Equal(t, "person", resp.Detections[1].ClassName)
	})

	t.Run("Test unknown class index", func(t *testing.T) {
		backend := &MockBackend{
			ready: true,
			names: []string{"person", "car"},
			raw: iface.RawResult{
				Boxes:   []float32{1, 1, 2, 2},
				Scores:  []float32{0.9},
				Classes: []int32{7},
			},
		}
		svc := newTestService(backend)
		_, err := svc.Predict(pngBytes(t, 10, 10), nil, nil)
		var classErr *iface.UnknownClassError
		require.True(t, errors.As(err, &classErr))
		assert.Equal(t, 7, classErr.Index)
		assert.Equal(t, 2, classErr.TableSize)
	})

	t.Run("Test score outside the contract", func(t *testing.T) {
		backend := &MockBackend{
			ready: true,
			names: []string{"person"},
			raw: iface.RawResult{
				Boxes:   []float32{1, 1, 2, 2},
				Scores:  []float32{1.5},
				Classes: []int32{0},
			},
		}
		svc := newTestService(backend)
		_, err := svc.Predict(pngBytes(t, 10, 10), nil, nil)
		var contractErr *iface.ContractError
		assert.True(t, errors.As(err, &contractErr))
	})

	t.Run("Test backend failure passes through", func(t *testing.T) {
		backend := &MockBackend{ready: true, names: []string{"person"}, inferErr: errors.New("session exploded")}
		svc := newTestService(backend)
		_, err := svc.Predict(pngBytes(t, 10, 10), nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "session exploded")
	})
}

func TestTranslate(t *testing.T) {
	names := []string{"person", "car"}

	t.Run("Test truncation toward zero", func(t *testing.T) {
		raw := iface.RawResult{
			Boxes:   []float32{-0.5, 0.9, 10.999, 7.0},
			Scores:  []float32{0.8},
			Classes: []int32{0},
		}
		dets, err := translate(raw, names)
		require.NoError(t, err)
		require.Len(t, dets, 1)
		assert.Equal(t, iface.BoundingBox{XMin: 0, YMin: 0, XMax: 10, YMax: 7}, dets[0].BBox)
	})

	t.Run("Test mismatched arrays", func(t *testing.T) {
		raw := iface.RawResult{
			Boxes:   []float32{1, 1, 2},
			Scores:  []float32{0.8},
			Classes: []int32{0},
		}
		_, err := translate(raw, names)
		var contractErr *iface.ContractError
		assert.True(t, errors.As(err, &contractErr))
	})

	t.Run("Test NaN score fails the contract", func(t *testing.T) {
		raw := iface.RawResult{
			Boxes:   []float32{1, 1, 2, 2},
			Scores:  []float32{float32(math.NaN())},
			Classes: []int32{0},
		}
		_, err := translate(raw, names)
		var contractErr *iface.ContractError
		assert.True(t, errors.As(err, &contractErr))
	})

	t.Run("Test empty input yields empty slice", func(t *testing.T) {
		dets, err := translate(iface.RawResult{}, names)
		require.NoError(t, err)
		assert.NotNil(t, dets)
		assert.Len(t, dets, 0)
	})
}

func TestHealth(t *testing.T) {
	t.Run("Test healthy", func(t *testing.T) {
		backend := &MockBackend{ready: true, names: []string{"person"}}
		h := newTestService(backend).Health()
		assert.Equal(t, "healthy", h.Status)
		assert.True(t, h.ModelLoaded)
		assert.Equal(t, "mock.onnx", h.ModelName)
		assert.Equal(t, "1.0.0", h.Version)
	})

	t.Run("Test unhealthy", func(t *testing.T) {
		backend := &MockBackend{ready: false, names: []string{"person"}}
		h := newTestService(backend).Health()
		assert.Equal(t, "unhealthy", h.Status)
		assert.False(t, h.ModelLoaded)
	})
}
