package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	AppName           string   `yaml:"appName"`
	AppVersion        string   `yaml:"appVersion"`
	HTTPPort          int      `yaml:"httpPort"`
	MonitorPort       int      `yaml:"monitorPort"`
	ModelPath         string   `yaml:"modelPath"`
	NamesPath         string   `yaml:"namesPath"`
	OrtLibPath        string   `yaml:"ortLibPath"`
	InputSize         int      `yaml:"inputSize"`
	Threads           int      `yaml:"threads"`
	Confidence        float32  `yaml:"confidence"`
	Iou               float32  `yaml:"iou"`
	Warmup            bool     `yaml:"warmup"`
	MaxFileSize       int64    `yaml:"maxFileSize"`
	AllowedExtensions []string `yaml:"allowedExtensions"`
	CorsOrigins       []string `yaml:"corsOrigins"`
	StaticDir         string   `yaml:"staticDir"`
	Debug             bool     `yaml:"debug"`
	UseRegServer      bool     `yaml:"UseRegServer"`
	RegServerHost     string   `yaml:"RegServerHost"`
	RegServerPort     int      `yaml:"RegServerPort"`
}

// Default returns the built-in configuration, used as the base for Load and
// directly when no config file exists.
func Default() *Config {
	return &Config{
		AppName:           "Object Detection API",
		AppVersion:        "1.0.0",
		HTTPPort:          8000,
		MonitorPort:       9100,
		ModelPath:         "models/yolov8n.onnx",
		NamesPath:         "",
		OrtLibPath:        "",
		InputSize:         640,
		Threads:           0,
		Confidence:        0.5,
		Iou:               0.45,
		Warmup:            true,
		MaxFileSize:       10000000,
		AllowedExtensions: []string{"jpg", "jpeg", "png", "bmp", "webp"},
		CorsOrigins:       []string{"*"},
		StaticDir:         "static",
		Debug:             false,
		UseRegServer:      false,
		RegServerHost:     "127.0.0.1",
		RegServerPort:     8889,
	}
}

// Load reads a YAML config file over the defaults. A missing file is not an
// error, the defaults apply as-is. A malformed file or invalid values are.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("httpPort %d out of range", c.HTTPPort)
	}
	if c.MonitorPort <= 0 || c.MonitorPort > 65535 {
		return fmt.Errorf("monitorPort %d out of range", c.MonitorPort)
	}
	// negated form so NaN fails the checks too
	if !(c.Confidence >= 0 && c.Confidence <= 1) {
		return fmt.Errorf("confidence value %v out of range, should be 0.0 ~ 1.0", c.Confidence)
	}
	if !(c.Iou >= 0 && c.Iou <= 1) {
		return fmt.Errorf("iou value %v out of range, should be 0.0 ~ 1.0", c.Iou)
	}
	if c.InputSize <= 0 || c.InputSize%32 != 0 {
		return fmt.Errorf("inputSize %d must be a positive multiple of 32", c.InputSize)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("maxFileSize %d must be positive", c.MaxFileSize)
	}
	return nil
}
