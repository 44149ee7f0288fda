package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ObjDetServer/adhoc"
	"ObjDetServer/api"
	"ObjDetServer/config"
	"ObjDetServer/engine"
	"ObjDetServer/logger"
	"ObjDetServer/monitor"
	"ObjDetServer/service"
)

// GetOutboundIP reports the local egress address. The dial never sends a
// packet, it only resolves a route, so it works offline too.
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Println("Failed to load config:", err)
		return
	}
	if cfg.Debug {
		err = logger.InitDevelopment()
	} else {
		err = logger.InitProduction()
	}
	if err != nil {
		fmt.Println("Failed to init logger:", err)
		return
	}
	defer logger.Sync()

	fmt.Println(strings.Repeat("#", 64))
	fmt.Printf("%s v%s\n", cfg.AppName, cfg.AppVersion)
	fmt.Println("CPU Cores:", runtime.NumCPU())
	fmt.Println(" HTTP    Port:", cfg.HTTPPort)
	fmt.Println(" Monitor Port:", cfg.MonitorPort)
	fmt.Println("Model:", cfg.ModelPath)
	fmt.Println(strings.Repeat("#", 64))

	names := engine.DefaultNames()
	if cfg.NamesPath != "" {
		names, err = engine.ReadNamesFile(cfg.NamesPath)
		if err != nil {
			logger.Log().Error("failed to read names file, using built-in labels",
				zap.String("path", cfg.NamesPath), zap.Error(err))
			names = engine.DefaultNames()
		}
	}

	if err := engine.InitRuntime(cfg.OrtLibPath); err != nil {
		// the server still comes up; health reports unhealthy until fixed
		logger.Log().Error("onnxruntime init failed", zap.Error(err))
	}
	defer engine.ShutdownRuntime()

	det := engine.New(engine.Options{
		ModelPath: cfg.ModelPath,
		Names:     names,
		InputSize: cfg.InputSize,
		Conf:      cfg.Confidence,
		Iou:       cfg.Iou,
		Threads:   cfg.Threads,
		Warmup:    cfg.Warmup,
	})
	defer det.Destroy()
	svc := service.New(det, service.Settings{
		DefaultConf: cfg.Confidence,
		DefaultIou:  cfg.Iou,
		Version:     cfg.AppVersion,
	})

	// requests arriving before the load finishes get 503, not a dead socket
	go func() {
		if err := det.Load(); err != nil {
			logger.Log().Error("model load failed, predictions stay unavailable", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.StartMon(cfg.MonitorPort, ctx)
	}()

	if cfg.UseRegServer {
		ip, ipErr := GetOutboundIP()
		if ipErr != nil {
			logger.Log().Error("failed to get outbound IP, skipping registration", zap.Error(ipErr))
		} else {
			adhoc.RegServerCfg.SetAddress(cfg.RegServerHost, cfg.RegServerPort)
			wg.Add(1)
			go adhoc.SendAliveMessage(ip, cfg.HTTPPort, svc, ctx, &wg)
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      api.NewServer(svc, cfg).Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	go func() {
		logger.Log().Info("http server listening", zap.Int("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log().Error("http server error", zap.Error(err))
		}
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	logger.Log().Info("shutting down")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Log().Error("http server shutdown error", zap.Error(err))
	}
	cancel()
	wg.Wait()
	fmt.Println("Safely exited")
}
