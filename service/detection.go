package service

import (
	"math"
	"time"

	"go.uber.org/zap"

	"ObjDetServer/imgproc"
	iface "ObjDetServer/interface"
	"ObjDetServer/logger"
)

type Settings struct {
	DefaultConf float32
	DefaultIou  float32
	Version     string
}

// DetectionService drives the predict pipeline over an injected backend
// handle. All requests share that one handle; nothing here clones or
// reloads the model.
type DetectionService struct {
	backend iface.Backend
	cfg     Settings
}

func New(backend iface.Backend, cfg Settings) *DetectionService {
	return &DetectionService{backend: backend, cfg: cfg}
}

// Predict runs the full pipeline on raw upload bytes: threshold resolution,
// decode, one timed backend invocation, translation, response assembly. Nil
// overrides fall back to the configured defaults. The timer wraps only the
// backend invocation, and NumDetections is always computed from the slice.
func (s *DetectionService) Predict(imageBytes []byte, conf *float32, iou *float32) (*iface.PredictionResponse, error) {
	confVal := s.cfg.DefaultConf
	if conf != nil {
		confVal = *conf
	}
	// negated form so NaN fails the check too
	if !(confVal >= 0 && confVal <= 1) {
		return nil, &iface.ParamError{Name: "confidence", Value: confVal}
	}
	iouVal := s.cfg.DefaultIou
	if iou != nil {
		iouVal = *iou
	}
	if !(iouVal >= 0 && iouVal <= 1) {
		return nil, &iface.ParamError{Name: "iou_threshold", Value: iouVal}
	}
	if !s.backend.IsReady() {
		return nil, iface.ErrNotReady
	}

	img, width, height, err := imgproc.Decode(imageBytes)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := s.backend.Infer(img, confVal, iouVal)
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}

	engCfg := s.backend.CheckConfig()
	dets, err := translate(raw, engCfg.Names)
	if err != nil {
		return nil, err
	}

	ms := math.Round(elapsed.Seconds()*1000*100) / 100
	logger.Log().Debug("prediction done",
		zap.Int("detections", len(dets)),
		zap.Float64("inferenceMs", ms))
	return &iface.PredictionResponse{
		Detections:      dets,
		NumDetections:   len(dets),
		InferenceTimeMs: ms,
		ImageDimensions: [2]int{width, height},
		ModelName:       engCfg.ModelName,
	}, nil
}

// Health never fails; a handle that is not ready simply reports unhealthy.
func (s *DetectionService) Health() iface.HealthResponse {
	ready := s.backend.IsReady()
	status := "healthy"
	if !ready {
		status = "unhealthy"
	}
	return iface.HealthResponse{
		Status:      status,
		ModelLoaded: ready,
		ModelName:   s.backend.CheckConfig().ModelName,
		Version:     s.cfg.Version,
	}
}
