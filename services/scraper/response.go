package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"casesync-backend/lib/scrapers/portal/core"
	"casesync-backend/lib/scrapers/portal/navigator"
	"casesync-backend/lib/scrapers/portal/normalize"
	"casesync-backend/lib/scrapers/portal/sso"
	"casesync-backend/services/casesync"
	"casesync-backend/services/matching"

	"github.com/gin-gonic/gin"
)

type Status string

const (
	StatusOK           Status = "OK"
	StatusNotFound     Status = "NOT_FOUND"
	StatusAuthRequired Status = "AUTH_REQUIRED"
	StatusError        Status = "ERROR"
)

const (
	CodeValidation       = "VALIDATION"
	CodeAuthFailed       = "AUTH_FAILED"
	CodeAutomationFailed = "AUTOMATION_FAILED"
	CodeScrapeFailed     = "SCRAPE_FAILED"
	CodeTimeout          = "TIMEOUT"
	CodeInternal         = "INTERNAL"
)

// ValidationError rejects a request before it has any effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func respondOK(c *gin.Context, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["status"] = StatusOK
	c.JSON(http.StatusOK, body)
}

func respondNotFound(c *gin.Context, reason string, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["status"] = StatusNotFound
	body["reason"] = reason
	c.JSON(http.StatusNotFound, body)
}

func respondCode(c *gin.Context, status int, code string, err error) {
	c.JSON(status, gin.H{
		"status": StatusError,
		"code":   code,
		"reason": err.Error(),
	})
}

// respondError maps an error onto the tagged response variants.
func respondError(c *gin.Context, err error) {
	ctx := c.Request.Context()

	var validation *ValidationError
	var authRequired *AuthRequiredError
	var scrapeErr *navigator.ScrapeError
	switch {
	case errors.As(err, &validation):
		respondCode(c, http.StatusBadRequest, CodeValidation, err)
	case errors.As(err, &authRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"status": StatusAuthRequired, "reason": authRequired.Error()})
	case errors.Is(err, core.ErrAuthRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"status": StatusAuthRequired, "reason": "portal session is no longer valid"})
	case errors.Is(err, sso.ErrInvalidCredentials):
		respondCode(c, http.StatusUnauthorized, CodeAuthFailed, err)
	case errors.Is(err, sso.ErrAutomation):
		respondCode(c, http.StatusBadGateway, CodeAutomationFailed, err)
	case errors.Is(err, navigator.ErrNotFound):
		respondNotFound(c, err.Error(), nil)
	case errors.Is(err, matching.ErrParticipantNotFound),
		errors.Is(err, matching.ErrClientNotFound),
		errors.Is(err, matching.ErrCaseNotFound),
		errors.Is(err, casesync.ErrCaseNotFound):
		respondNotFound(c, err.Error(), nil)
	case errors.Is(err, matching.ErrNoLink):
		respondCode(c, http.StatusConflict, CodeValidation, err)
	case errors.Is(err, context.DeadlineExceeded):
		respondCode(c, http.StatusGatewayTimeout, CodeTimeout, err)
	case errors.As(err, &scrapeErr):
		slog.WarnContext(ctx, "scrape failed", "step", scrapeErr.Step, "err", scrapeErr.Err)
		respondCode(c, http.StatusBadGateway, CodeScrapeFailed, err)
	default:
		slog.ErrorContext(ctx, "request failed", "path", c.FullPath(), "err", err)
		respondCode(c, http.StatusInternalServerError, CodeInternal, err)
	}
}

type candidateJSON struct {
	Key          string `json:"key"`
	RawKey       string `json:"raw_key"`
	Title        string `json:"title"`
	Court        string `json:"court,omitempty"`
	Status       string `json:"case_status,omitempty"`
	LastActivity string `json:"last_activity,omitempty"`
	Page         int    `json:"page"`
	Row          int    `json:"row"`
}

func toCandidate(c normalize.Candidate) candidateJSON {
	return candidateJSON{
		Key:          c.NormalizedKey,
		RawKey:       c.RawKey,
		Title:        c.Title,
		Court:        c.Court,
		Status:       c.Status,
		LastActivity: c.LastActivity,
		Page:         c.Page,
		Row:          c.Row,
	}
}

type entryJSON struct {
	ID          string `json:"id"`
	Source      string `json:"source"`
	Date        string `json:"date"`
	Kind        string `json:"kind,omitempty"`
	Office      string `json:"office,omitempty"`
	Description string `json:"description"`
	HasDocument bool   `json:"has_document"`
	DocumentRef string `json:"document_ref,omitempty"`
	DocumentID  string `json:"document_id,omitempty"`
}

type participantJSON struct {
	PortalID       string `json:"portal_id"`
	Name           string `json:"name"`
	RawRole        string `json:"raw_role"`
	IdentifierText string `json:"identifier_text,omitempty"`
}

type appealJSON struct {
	PortalID    string `json:"portal_id"`
	Date        string `json:"date"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Status      string `json:"case_status"`
}

type relatedJSON struct {
	PortalID string `json:"portal_id"`
	Key      string `json:"key"`
	RawKey   string `json:"raw_key"`
	Relation string `json:"relation"`
	Court    string `json:"court"`
	Title    string `json:"title"`
}

type eventJSON struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	CaseKey     string    `json:"case_key"`
	Description string    `json:"description"`
}

func mapAll[T, U any](in []T, fn func(T) U) []U {
	out := make([]U, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}

func toEntry(e normalize.Entry) entryJSON {
	return entryJSON{
		ID:          e.StableID,
		Source:      e.Source,
		Date:        e.Date,
		Kind:        e.Kind,
		Office:      e.Office,
		Description: e.Description,
		HasDocument: e.HasDocument,
		DocumentRef: e.DocumentRef,
		DocumentID:  e.DocumentID,
	}
}

func detailsBody(d navigator.CaseDetails) gin.H {
	return gin.H{
		"case": gin.H{
			"key":            d.Key.String(),
			"raw_key":        d.Candidate.RawKey,
			"title":          d.Title,
			"portal_case_id": d.CaseID,
		},
		"movements": mapAll(d.Movements, toEntry),
		"documents": mapAll(d.Documents, toEntry),
		"participants": mapAll(d.Participants, func(p normalize.Participant) participantJSON {
			return participantJSON{PortalID: p.PortalID, Name: p.Name, RawRole: p.RawRole, IdentifierText: p.IdentifierText}
		}),
		"appeals": mapAll(d.Appeals, func(a normalize.Appeal) appealJSON {
			return appealJSON{PortalID: a.PortalID, Date: a.Date, Kind: a.Kind, Description: a.Description, Status: a.Status}
		}),
		"related": mapAll(d.Related, func(r normalize.RelatedCase) relatedJSON {
			return relatedJSON{PortalID: r.PortalID, Key: r.Key, RawKey: r.RawKey, Relation: r.Relation, Court: r.Court, Title: r.Title}
		}),
	}
}
