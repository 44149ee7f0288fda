package adhoc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	iface "ObjDetServer/interface"
	"ObjDetServer/logger"
)

const TimeOutSeconds = 5

// StatusSource is the slice of the detection service the heartbeat needs.
type StatusSource interface {
	Health() iface.HealthResponse
}

type RegisterRequest struct {
	Id        string `json:"id"`
	IP        string `json:"ip"`
	Port      int    `json:"port"`
	Model     string `json:"model"`
	Status    string `json:"status"`
	TimeStamp int64  `json:"timestamp"`
}

type RegisterResponse struct {
	Id      string `json:"id"`
	Success bool   `json:"success"`
}

type RegServerConfig struct {
	Port int
	Addr string
}

func (reg *RegServerConfig) SetAddress(addr string, port int) {
	reg.Addr = addr
	reg.Port = port
}

var RegServerCfg RegServerConfig

// SendAliveMessage announces this instance to the registry server every
// TimeOutSeconds until ctx is cancelled. Each beat carries the current
// health snapshot, so the registry sees readiness changes without polling.
func SendAliveMessage(ip string, port int, src StatusSource, ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	url := fmt.Sprintf("http://%s:%d/api/register", RegServerCfg.Addr, RegServerCfg.Port)
	client := resty.New().SetTimeout(TimeOutSeconds * time.Second)
	id := uuid.NewString()
	beat := func() {
		health := src.Health()
		var respBody RegisterResponse
		reqBody := RegisterRequest{
			Id:        id,
			IP:        ip,
			Port:      port,
			Model:     health.ModelName,
			Status:    health.Status,
			TimeStamp: time.Now().Unix(),
		}
		resp, err := client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(reqBody).
			SetResult(&respBody).
			Post(url)
		if err != nil {
			logger.Log().Error("register request error", zap.Error(err))
			return
		}
		if resp.IsError() {
			logger.Log().Error("register server returned error",
				zap.String("status", resp.Status()), zap.String("body", resp.String()))
		}
	}
	beat()
	ticker := time.NewTicker(TimeOutSeconds * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Log().Info("heartbeat stopped")
			return
		case <-ticker.C:
			beat()
		}
	}
}
