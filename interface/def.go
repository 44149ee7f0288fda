package iface

import "image"

// RawResult is the backend's parallel-array output: four floats per box in
// Boxes (x1, y1, x2, y2 in original image pixels), one score and one class
// index per box, ordered by descending score.
type RawResult struct {
	Boxes   []float32
	Scores  []float32
	Classes []int32
}

type BoundingBox struct {
	XMin int `json:"x_min"`
	YMin int `json:"y_min"`
	XMax int `json:"x_max"`
	YMax int `json:"y_max"`
}

type Detection struct {
	ClassName  string      `json:"class_name"`
	Confidence float32     `json:"confidence"`
	BBox       BoundingBox `json:"bbox"`
}

type PredictionResponse struct {
	Detections      []Detection `json:"detections"`
	NumDetections   int         `json:"num_detections"`
	InferenceTimeMs float64     `json:"inference_time_ms"`
	ImageDimensions [2]int      `json:"image_dimensions"`
	ModelName       string      `json:"model_name"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	ModelName   string `json:"model_name"`
	Version     string `json:"version"`
}

type EngineConfig struct {
	ModelPath string
	ModelName string
	Names     []string
	InputSize int
	Conf      float32
	Iou       float32
	State     string
}

type Backend interface {
	Load() error
	IsReady() bool
	Infer(img *image.NRGBA, conf float32, iou float32) (RawResult, error)
	CheckConfig() EngineConfig
	Destroy()
}
