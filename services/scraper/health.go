package scraper

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type check struct {
	name string
	ping func(ctx context.Context) error
}

func (s Service) checks() []check {
	var checks []check
	if s.db != nil {
		checks = append(checks, check{name: "database", ping: s.db.PingContext})
	}
	if s.bucket != nil {
		checks = append(checks, check{name: "blob_storage", ping: s.bucket.Ping})
	}
	if s.queue != nil {
		checks = append(checks, check{name: "task_queue", ping: s.queue.Ping})
	}
	return checks
}

func (s Service) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy := true
	results := gin.H{}
	for _, check := range s.checks() {
		if err := check.ping(ctx); err != nil {
			healthy = false
			results[check.name] = err.Error()
			continue
		}
		results[check.name] = "ok"
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": StatusError,
			"code":   "UNHEALTHY",
			"checks": results,
		})
		return
	}
	respondOK(c, gin.H{"checks": results})
}

func handleLive(c *gin.Context) {
	respondOK(c, nil)
}
