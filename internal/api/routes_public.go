package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/banprobe-project/banprobe/internal/util"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "banprobe",
		"version": s.deps.Version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

// handleGetSystem returns host and process information.
func (s *Server) handleGetSystem(c *gin.Context) {
	resp := gin.H{
		"system": util.GetSystemInfo(),
	}

	if proc, err := util.GetProcessInfo(); err == nil {
		resp["process"] = proc
	}

	if histCfg := s.cfg.GetHistory(); histCfg.Enabled {
		if disk, err := util.GetDiskUsage(histCfg.DBPath); err == nil {
			resp["history_disk"] = disk
		}
	}

	c.JSON(http.StatusOK, resp)
}
