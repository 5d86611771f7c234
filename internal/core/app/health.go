package app

import (
	"context"
	"fmt"
	"time"
)

type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Version    uint64            `json:"snapshot_version"`
	Stale      bool              `json:"stale"`
	Components map[string]string `json:"components"`
}

type HealthService struct {
	engine *Engine
}

func NewHealthService(engine *Engine) *HealthService {
	return &HealthService{engine: engine}
}

func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     "up",
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]string),
	}
	if err := ctx.Err(); err != nil {
		status.Status = "degraded"
		status.Components["request"] = err.Error()
		return status
	}

	snap := s.engine.Snapshot()
	status.Version = snap.Version
	status.Stale = s.engine.Stale()

	if snap.Graph == nil {
		status.Status = "degraded"
		status.Components["graph"] = "missing"
	} else {
		status.Components["graph"] = fmt.Sprintf("ok (%d files, %d nodes, %d cycles)",
			len(snap.Files), snap.Metrics.NodeCount, len(snap.Cycles.Cycles))
	}
	status.Components["index"] = fmt.Sprintf("ok (%d entries)", snap.Index.Len())
	status.Components["change_analyzer"] = string(s.engine.analyzer.State())

	if s.engine.store != nil {
		status.Components["store"] = "ok"
	} else if s.engine.Config.DB.Enabled {
		status.Status = "degraded"
		status.Components["store"] = "missing but enabled in config"
	}

	if s.engine.writeQueue != nil {
		status.Components["write_queue"] = fmt.Sprintf("ok (%d pending)", s.engine.writeQueue.Len())
	}
	return status
}
