package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"

	"ObjDetServer/logger"
)

// Metrics live at package level so handlers can increment them even before
// the metrics server is up.
var (
	memUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memory_usage_Megabytes",
		Help: "Resident memory of the service process in Megabytes",
	})
	cpuUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cpu_usage_percent",
		Help: "CPU usage of the service process in percent",
	})
	RequestTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests handled",
	})
	PredictTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "predict_requests_total",
		Help: "Total number of prediction requests handled",
	})
	PredictErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "predict_errors_total",
		Help: "Total number of prediction requests that failed",
	})
)

var proc process.Process

func serveMetrics(port int) *http.Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(memUsage, cpuUsage, RequestTotal, PredictTotal, PredictErrors)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log().Error("metrics server error", zap.Error(err))
		}
	}()
	return srv
}

func sampleProcess() {
	if memInfo, err := proc.MemoryInfo(); err == nil {
		memUsage.Set(float64(memInfo.RSS / 1024 / 1024))
	}
	if cpuPercent, err := proc.CPUPercent(); err == nil {
		cpuUsage.Set(math.Round(cpuPercent*100) / 100)
	}
}

// StartMon serves /metrics on its own port and samples the process gauges
// every 500ms until ctx is cancelled.
func StartMon(port int, ctx context.Context) {
	proc = process.Process{Pid: int32(os.Getpid())}
	srv := serveMetrics(port)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
sample:
	for {
		select {
		case <-ctx.Done():
			break sample
		case <-ticker.C:
			sampleProcess()
		}
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Log().Error("metrics server shutdown error", zap.Error(err))
	}
}
