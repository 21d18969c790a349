package handlers

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/code-100-precent/FocusBuddy/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// HealthCheck reports liveness, the session state and process resource usage.
func (h *Handlers) HealthCheck(c *gin.Context) {
	data := gin.H{
		"status":     "healthy",
		"uptime":     time.Since(h.started).Round(time.Second).String(),
		"goroutines": runtime.NumGoroutine(),
		"active":     false,
	}
	if snap, err := h.svc.Snapshot(); err == nil {
		data["active"] = true
		data["sessionId"] = snap.Session.ID
		data["loopStatus"] = snap.Status
	}

	// 进程资源占用，采集失败不影响健康状态
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		proc := gin.H{}
		if mem, err := p.MemoryInfo(); err == nil {
			proc["rssBytes"] = mem.RSS
		}
		if cpu, err := p.CPUPercent(); err == nil {
			proc["cpuPercent"] = cpu
		}
		if threads, err := p.NumThreads(); err == nil {
			proc["threads"] = threads
		}
		data["process"] = proc
	} else {
		h.logger.Debug("process stats unavailable", zap.Error(err))
	}

	c.Header("Cache-Control", "no-store")
	response.Result(c, http.StatusOK, http.StatusOK, "ok", data)
}
