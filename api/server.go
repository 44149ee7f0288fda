package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ObjDetServer/config"
	iface "ObjDetServer/interface"
	"ObjDetServer/logger"
	"ObjDetServer/monitor"
	"ObjDetServer/service"
)

type Server struct {
	svc *service.DetectionService
	cfg *config.Config
}

func NewServer(svc *service.DetectionService, cfg *config.Config) *Server {
	return &Server{svc: svc, cfg: cfg}
}

// Router wires all routes. gin's recovery turns unexpected panics into 500s.
func (s *Server) Router() *gin.Engine {
	if !s.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.CustomRecovery(s.recoverPanic), s.corsMiddleware(), s.accessLog())
	r.GET("/", s.handleRoot)
	r.GET("/health", s.handleHealth)
	r.POST("/predict", s.handlePredict)
	if s.cfg.StaticDir != "" {
		if st, err := os.Stat(s.cfg.StaticDir); err == nil && st.IsDir() {
			r.Static("/static", s.cfg.StaticDir)
		}
	}
	return r
}

// recoverPanic keeps the error envelope intact when a handler panics;
// gin's stock recovery writes a body-less 500.
func (s *Server) recoverPanic(c *gin.Context, recovered any) {
	logger.Log().Error("panic in handler", zap.Any("panic", recovered))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowed := ""
		for _, o := range s.cfg.CorsOrigins {
			if o == "*" {
				allowed = "*"
				break
			}
			if o == origin {
				allowed = origin
				break
			}
		}
		if allowed != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", allowed)
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := uuid.NewString()
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
		monitor.RequestTotal.Inc()
		logger.Log().Info("request",
			zap.String("id", id),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}

func (s *Server) handleRoot(c *gin.Context) {
	if s.cfg.StaticDir != "" {
		index := filepath.Join(s.cfg.StaticDir, "index.html")
		if _, err := os.Stat(index); err == nil {
			c.File(index)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"message": s.cfg.AppName,
		"version": s.cfg.AppVersion,
		"endpoints": gin.H{
			"health":  "/health",
			"predict": "/predict",
		},
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Health())
}

func (s *Server) handlePredict(c *gin.Context) {
	monitor.PredictTotal.Inc()
	conf, err := queryThreshold(c, "confidence")
	if err != nil {
		monitor.PredictErrors.Inc()
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	iou, err := queryThreshold(c, "iou_threshold")
	if err != nil {
		monitor.PredictErrors.Inc()
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	if !s.svc.Health().ModelLoaded {
		monitor.PredictErrors.Inc()
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "model is not loaded, service unavailable"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		monitor.PredictErrors.Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required: " + err.Error()})
		return
	}
	contentType := fileHeader.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		monitor.PredictErrors.Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("file must be an image, got content type %q", contentType)})
		return
	}
	if !s.allowedExt(fileHeader.Filename) {
		monitor.PredictErrors.Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported file extension, allowed: %s", strings.Join(s.cfg.AllowedExtensions, ", "))})
		return
	}
	if fileHeader.Size > s.cfg.MaxFileSize {
		monitor.PredictErrors.Inc()
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file too large, limit is %d bytes", s.cfg.MaxFileSize)})
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		monitor.PredictErrors.Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read upload: " + err.Error()})
		return
	}
	defer f.Close()
	// the multipart size header is client-supplied, re-check while reading
	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxFileSize+1))
	if err != nil {
		monitor.PredictErrors.Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read upload: " + err.Error()})
		return
	}
	if int64(len(data)) > s.cfg.MaxFileSize {
		monitor.PredictErrors.Inc()
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file too large, limit is %d bytes", s.cfg.MaxFileSize)})
		return
	}

	resp, err := s.svc.Predict(data, conf, iou)
	if err != nil {
		monitor.PredictErrors.Inc()
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// queryThreshold parses an optional [0, 1] query parameter. Absent means
// nil, letting the service apply its configured default.
func queryThreshold(c *gin.Context, name string) (*float32, error) {
	rawVal, ok := c.GetQuery(name)
	if !ok {
		return nil, nil
	}
	v64, err := strconv.ParseFloat(rawVal, 32)
	if err != nil {
		return nil, fmt.Errorf("%s must be a number, got %q", name, rawVal)
	}
	v := float32(v64)
	// negated form so NaN fails the check too
	if !(v >= 0 && v <= 1) {
		return nil, &iface.ParamError{Name: name, Value: v}
	}
	return &v, nil
}

func (s *Server) allowedExt(filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	for _, allowed := range s.cfg.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

func (s *Server) writeError(c *gin.Context, err error) {
	var paramErr *iface.ParamError
	var decodeErr *iface.DecodeError
	switch {
	case errors.Is(err, iface.ErrNotReady):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "model is not loaded, service unavailable"})
	case errors.As(err, &paramErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": paramErr.Error()})
	case errors.As(err, &decodeErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": decodeErr.Error()})
	default:
		logger.Log().Error("prediction failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error during prediction"})
	}
}
