package scraper

import (
	"errors"
	"time"

	"casesync-backend/lib/scrapers/portal/navigator"
	"casesync-backend/lib/scrapers/portal/normalize"
	"casesync-backend/services/keychain"

	"github.com/gin-gonic/gin"
)

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		respondError(c, invalid("body", err.Error()))
		return false
	}
	return true
}

type eventsRequest struct {
	UserID string    `json:"user_id"`
	Since  time.Time `json:"since"`
	// KnownIDs are events already delivered at the since timestamp.
	KnownIDs []string `json:"known_ids"`
}

func (s Service) handleScrapeEvents(c *gin.Context) {
	var req eventsRequest
	if !bind(c, &req) {
		return
	}
	events, watermark, err := s.Events(c.Request.Context(), req.UserID, req.Since, req.KnownIDs...)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"events": mapAll(events, func(e normalize.Event) eventJSON {
			return eventJSON{ID: e.ID, Date: e.Date, CaseKey: e.CaseKey, Description: e.Description}
		}),
		"watermark": watermark,
	})
}

type searchRequest struct {
	UserID       string `json:"user_id"`
	Jurisdiction string `json:"jurisdiction"`
	Number       string `json:"number"`
	Year         string `json:"year"`
	Suffix       string `json:"suffix"`
}

func (s Service) handleSearch(c *gin.Context) {
	var req searchRequest
	if !bind(c, &req) {
		return
	}
	q := navigator.Query{
		Jurisdiction: req.Jurisdiction,
		Number:       req.Number,
		Year:         req.Year,
		Suffix:       req.Suffix,
	}
	result, err := s.Search(c.Request.Context(), req.UserID, q)
	if err != nil {
		respondError(c, err)
		return
	}

	candidates := mapAll(result.Candidates, toCandidate)
	if len(candidates) == 0 {
		respondNotFound(c, "the portal returned no results for "+q.Key(), gin.H{"candidates": candidates})
		return
	}
	body := gin.H{
		"candidates":    candidates,
		"exact_matches": result.Selection.ExactCount,
	}
	if selected, ok := result.Selected(); ok {
		body["selected"] = toCandidate(selected)
		body["loose"] = result.Selection.Loose
	}
	respondOK(c, body)
}

type caseRequest struct {
	UserID  string `json:"user_id"`
	CaseKey string `json:"case_key"`
	// Sync defaults to true.
	Sync *bool `json:"sync"`
}

func (s Service) handleScrapeCase(c *gin.Context) {
	var req caseRequest
	if !bind(c, &req) {
		return
	}
	persist := req.Sync == nil || *req.Sync
	out, err := s.ScrapeCase(c.Request.Context(), req.UserID, req.CaseKey, persist)
	if err != nil {
		respondError(c, err)
		return
	}
	body := detailsBody(out.Details)
	if out.Sync != nil {
		body["case_id"] = out.Sync.Case.ID
		body["stats"] = out.Sync.Stats
	}
	respondOK(c, body)
}

type reauthRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s Service) handleReauthenticate(c *gin.Context) {
	var req reauthRequest
	if !bind(c, &req) {
		return
	}
	switch {
	case req.UserID == "":
		respondError(c, invalid("user_id", "is required"))
		return
	case req.Username == "" || req.Password == "":
		respondError(c, invalid("credentials", "username and password are required"))
		return
	}
	err := s.Reauthenticate(c.Request.Context(), req.UserID, req.Username, req.Password)
	s.record(c.Request.Context(), "reauthenticate", err)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"user_id": req.UserID})
}

func (s Service) handleCases(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		respondError(c, invalid("user_id", "is required"))
		return
	}
	cases, err := s.sync.Cases(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(cases))
	for _, cs := range cases {
		out = append(out, gin.H{
			"id":             cs.ID,
			"key":            cs.CaseKey,
			"raw_key":        cs.RawKey,
			"title":          cs.Title,
			"last_synced_at": time.Unix(cs.LastSyncedAt, 0).UTC(),
		})
	}
	respondOK(c, gin.H{"cases": out})
}

func (s Service) handleSessionStatus(c *gin.Context) {
	userID := c.Param("user")
	ctx := c.Request.Context()
	state, err := s.sessions.Load(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	status, err := s.keychain.Status(ctx, userID)
	hasCredentials := !errors.Is(err, keychain.ErrNoCredentials)
	if err != nil && hasCredentials {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"session":          statusOf(state, s.options).String(),
		"has_credentials":  hasCredentials,
		"needs_reauth":     status.NeedsReauth,
		"sync_error_count": status.SyncErrorCount,
		"last_error":       status.LastError,
	})
}

func (s Service) handleDisconnect(c *gin.Context) {
	err := s.Disconnect(c.Request.Context(), c.Param("user"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}
