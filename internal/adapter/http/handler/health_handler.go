package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"wallet-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const healthPingTimeout = 2 * time.Second

type dependencyStatus struct {
	Status   string `json:"status"`
	Critical bool   `json:"critical"`
	Error    string `json:"error,omitempty"`
	Latency  string `json:"latency"`
}

// HealthCheck handles GET /health. Dependencies are pinged in parallel.
// A failing critical dependency answers 503 "unhealthy"; a failing
// non-critical one answers 200 "degraded".
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
		defer cancel()

		var (
			mu   sync.Mutex
			deps = make(map[string]dependencyStatus, len(checkers))
		)
		g, gctx := errgroup.WithContext(ctx)
		for _, checker := range checkers {
			g.Go(func() error {
				start := time.Now()
				err := checker.Ping(gctx)
				st := dependencyStatus{
					Status:   "healthy",
					Critical: checker.Critical(),
					Latency:  time.Since(start).Round(time.Microsecond).String(),
				}
				if err != nil {
					st.Status, st.Error = "unhealthy", err.Error()
				}
				mu.Lock()
				deps[checker.Name()] = st
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		status, code := "healthy", http.StatusOK
		for _, d := range deps {
			if d.Status == "healthy" {
				continue
			}
			if d.Critical {
				status, code = "unhealthy", http.StatusServiceUnavailable
				break
			}
			status = "degraded"
		}

		c.JSON(code, gin.H{"status": status, "dependencies": deps})
	}
}
