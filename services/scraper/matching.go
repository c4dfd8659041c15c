package scraper

import (
	"casesync-backend/lib/casedb"
	"casesync-backend/services/matching"

	"github.com/gin-gonic/gin"
)

type candidateMatchJSON struct {
	ClientID    string  `json:"client_id"`
	DisplayName string  `json:"display_name"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason"`
}

func matchBody(r matching.Result) gin.H {
	return gin.H{
		"match_status": r.Status,
		"client_id":    r.ClientID,
		"link_type":    r.LinkType,
		"confidence":   r.Confidence,
		"reason":       r.Reason,
		"candidates": mapAll(r.Candidates, func(c matching.Candidate) candidateMatchJSON {
			return candidateMatchJSON{
				ClientID:    c.Client.ID,
				DisplayName: c.Client.DisplayName,
				Confidence:  c.Confidence,
				Reason:      c.Reason,
			}
		}),
	}
}

func clientBody(c casedb.Client) gin.H {
	return gin.H{
		"id":           c.ID,
		"kind":         c.Kind,
		"display_name": c.DisplayName,
		"last_name":    c.LastName,
		"first_name":   c.FirstName,
		"dni":          c.Dni,
		"cuit":         c.Cuit,
		"auto_created": c.AutoCreated,
	}
}

type participantRequest struct {
	CaseID         string `json:"case_id"`
	PortalID       string `json:"portal_id"`
	Name           string `json:"name"`
	RawRole        string `json:"raw_role"`
	IdentifierText string `json:"identifier_text"`
}

func (s Service) handleCreateParticipant(c *gin.Context) {
	var req participantRequest
	if !bind(c, &req) {
		return
	}
	switch {
	case req.CaseID == "":
		respondError(c, invalid("case_id", "is required"))
		return
	case req.Name == "":
		respondError(c, invalid("name", "is required"))
		return
	}
	p, created, err := s.matching.CreateParticipantEntry(c.Request.Context(), matching.ParticipantInput{
		CaseID:         req.CaseID,
		PortalID:       req.PortalID,
		Name:           req.Name,
		RawRole:        req.RawRole,
		IdentifierText: req.IdentifierText,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"participant_id": p.ID,
		"role":           p.Role,
		"side":           p.Side,
		"created":        created,
	})
}

func (s Service) handleMatch(c *gin.Context) {
	result, err := s.matching.MatchParticipant(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, matchBody(result))
}

type decisionRequest struct {
	Actor    string `json:"actor"`
	ClientID string `json:"client_id"`
}

func (r decisionRequest) actor() string {
	if r.Actor == "" {
		return "api"
	}
	return r.Actor
}

// bindOptional accepts an empty body.
func bindOptional(c *gin.Context, req any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bind(c, req)
}

func (s Service) handleConfirm(c *gin.Context) {
	var req decisionRequest
	if !bindOptional(c, &req) {
		return
	}
	if err := s.matching.Confirm(c.Request.Context(), c.Param("id"), req.actor()); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

func (s Service) handleManualLink(c *gin.Context) {
	var req decisionRequest
	if !bind(c, &req) {
		return
	}
	if req.ClientID == "" {
		respondError(c, invalid("client_id", "is required"))
		return
	}
	if err := s.matching.ManualLink(c.Request.Context(), c.Param("id"), req.ClientID, req.actor()); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

func (s Service) handleUnlink(c *gin.Context) {
	var req decisionRequest
	if !bindOptional(c, &req) {
		return
	}
	if err := s.matching.Unlink(c.Request.Context(), c.Param("id"), req.actor()); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

func (s Service) handleIgnore(c *gin.Context) {
	var req decisionRequest
	if !bindOptional(c, &req) {
		return
	}
	if err := s.matching.Ignore(c.Request.Context(), c.Param("id"), req.actor()); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

func (s Service) handleCreateClient(c *gin.Context) {
	var req decisionRequest
	if !bindOptional(c, &req) {
		return
	}
	client, err := s.matching.CreateClientFromParticipant(c.Request.Context(), c.Param("id"), req.actor())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"client": clientBody(client)})
}

func (s Service) handleAudit(c *gin.Context) {
	entries, err := s.matching.Audit(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		out = append(out, gin.H{
			"client_id":     e.ClientID.String,
			"previous_type": e.PreviousType,
			"new_type":      e.NewType,
			"action":        e.Action,
			"actor":         e.Actor,
			"reason":        e.Reason,
			"confidence":    e.Confidence,
			"created_at":    e.CreatedAt,
		})
	}
	respondOK(c, gin.H{"audit": out})
}

func (s Service) handleRematch(c *gin.Context) {
	stats, err := s.matching.RematchCase(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"stats": stats})
}

func (s Service) handleCaseLinks(c *gin.Context) {
	rows, err := s.matching.CaseLinks(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, r := range rows {
		out = append(out, gin.H{
			"participant_id": r.ParticipantID,
			"name":           r.Name,
			"role":           r.Role,
			"client_id":      r.ClientID.String,
			"link_type":      r.LinkType.String,
			"confidence":     r.Confidence.Float64,
		})
	}
	respondOK(c, gin.H{"links": out})
}

type clientCaseRequest struct {
	ClientID string `json:"client_id"`
	CaseID   string `json:"case_id"`
	Role     string `json:"role"`
}

func (s Service) handleClientCase(c *gin.Context) {
	var req clientCaseRequest
	if !bind(c, &req) {
		return
	}
	if req.ClientID == "" || req.CaseID == "" {
		respondError(c, invalid("body", "client_id and case_id are required"))
		return
	}
	err := s.matching.EnsureClientCase(c.Request.Context(), req.ClientID, req.CaseID, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}
