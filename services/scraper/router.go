package scraper

import (
	"net/http"

	"casesync-backend/lib/util/serviceutil"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Handler returns the service's routes. Everything except the liveness
// check requires the shared secret.
func (s Service) Handler(secret string) http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware("casesync-server"))

	router.GET("/health/live", handleLive)

	api := router.Group("/", serviceutil.VerifySecret(secret))
	api.GET("/health", s.handleHealth)

	v1 := api.Group("/v1")
	v1.POST("/scrape-events", s.handleScrapeEvents)
	v1.POST("/search-case-history", s.handleSearch)
	v1.POST("/scrape-case-history-details", s.handleScrapeCase)
	v1.POST("/reauthenticate", s.handleReauthenticate)

	v1.GET("/cases", s.handleCases)
	v1.GET("/stored-case", s.handleStoredCase)
	v1.GET("/sessions/:user", s.handleSessionStatus)
	v1.DELETE("/sessions/:user", s.handleDisconnect)

	v1.POST("/participants", s.handleCreateParticipant)
	v1.POST("/participants/:id/match", s.handleMatch)
	v1.POST("/participants/:id/confirm", s.handleConfirm)
	v1.POST("/participants/:id/manual-link", s.handleManualLink)
	v1.POST("/participants/:id/unlink", s.handleUnlink)
	v1.POST("/participants/:id/ignore", s.handleIgnore)
	v1.POST("/participants/:id/create-client", s.handleCreateClient)
	v1.GET("/participants/:id/audit", s.handleAudit)
	v1.GET("/cases/:id/links", s.handleCaseLinks)
	v1.POST("/cases/:id/rematch", s.handleRematch)
	v1.GET("/clients", s.handleClients)
	v1.POST("/client-cases", s.handleClientCase)

	return router
}
