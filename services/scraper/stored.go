package scraper

import (
	"time"

	"casesync-backend/lib/casedb"

	"github.com/gin-gonic/gin"
)

func storedMovement(m casedb.Movement) gin.H {
	body := gin.H{
		"id":           m.ID,
		"portal_id":    m.PortalID,
		"date":         m.Date,
		"kind":         m.Kind,
		"description":  m.Description,
		"has_document": m.HasDocument,
	}
	if m.DocumentID.Valid {
		body["document_id"] = m.DocumentID.String
	}
	return body
}

func storedDocument(d casedb.Document) gin.H {
	return gin.H{
		"id":          d.ID,
		"portal_id":   d.PortalID,
		"source":      d.Source,
		"date":        d.Date,
		"description": d.Description,
		"storage_key": d.StorageKey,
		"stored":      d.Stored,
		"size":        d.Size,
	}
}

func storedParticipant(p casedb.Participant) gin.H {
	return gin.H{
		"id":              p.ID,
		"portal_id":       p.PortalID,
		"name":            p.Name,
		"raw_role":        p.RawRole,
		"role":            p.Role,
		"side":            p.Side,
		"document_kind":   p.DocumentKind,
		"document_number": p.DocumentNumber,
	}
}

func storedAppeal(a casedb.Appeal) gin.H {
	return gin.H{
		"id":          a.ID,
		"portal_id":   a.PortalID,
		"date":        a.Date,
		"kind":        a.Kind,
		"description": a.Description,
		"status":      a.Status,
	}
}

func storedRelated(r casedb.RelatedCase) gin.H {
	return gin.H{
		"id":          r.ID,
		"portal_id":   r.PortalID,
		"related_key": r.RelatedKey,
		"relation":    r.Relation,
		"court":       r.Court,
		"title":       r.Title,
	}
}

// handleStoredCase serves the last synced copy of a case without touching
// the portal.
func (s Service) handleStoredCase(c *gin.Context) {
	userID := c.Query("user_id")
	caseKey := c.Query("case_key")
	if userID == "" {
		respondError(c, invalid("user_id", "is required"))
		return
	}
	if caseKey == "" {
		respondError(c, invalid("case_key", "is required"))
		return
	}

	snap, err := s.sync.Snapshot(c.Request.Context(), userID, caseKey)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"case_id":        snap.Case.ID,
		"key":            snap.Case.CaseKey,
		"raw_key":        snap.Case.RawKey,
		"title":          snap.Case.Title,
		"last_synced_at": time.Unix(snap.Case.LastSyncedAt, 0).UTC(),
		"movements":      mapAll(snap.Movements, storedMovement),
		"documents":      mapAll(snap.Documents, storedDocument),
		"participants":   mapAll(snap.Participants, storedParticipant),
		"appeals":        mapAll(snap.Appeals, storedAppeal),
		"related":        mapAll(snap.Related, storedRelated),
	})
}

func (s Service) handleClients(c *gin.Context) {
	clients, err := s.matching.Clients(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"clients": mapAll(clients, clientBody)})
}
