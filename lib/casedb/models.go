package casedb

import "database/sql"

type Case struct {
	ID           string
	UserID       string
	CaseKey      string
	RawKey       string
	Title        string
	PortalCaseID string
	LastSyncedAt int64
	CreatedAt    int64
	UpdatedAt    int64
}

type Movement struct {
	ID          string
	CaseID      string
	PortalID    string
	Date        string
	Kind        string
	Description string
	HasDocument bool
	DocumentRef string
	DocumentID  sql.NullString
	RawHtml     string
	CreatedAt   int64
	UpdatedAt   int64
}

type Document struct {
	ID          string
	CaseID      string
	StorageKey  string
	PortalID    string
	Source      string
	Date        string
	Description string
	DocumentRef string
	Stored      bool
	Size        int64
	CreatedAt   int64
	UpdatedAt   int64
}

type Participant struct {
	ID             string
	CaseID         string
	PortalID       string
	Name           string
	RawRole        string
	Role           string
	Side           string
	DocumentKind   string
	DocumentNumber string
	DocumentRaw    string
	RawHtml        string
	CreatedAt      int64
	UpdatedAt      int64
}

type Appeal struct {
	ID          string
	CaseID      string
	PortalID    string
	Date        string
	Kind        string
	Description string
	Status      string
	RawHtml     string
	CreatedAt   int64
	UpdatedAt   int64
}

type RelatedCase struct {
	ID         string
	CaseID     string
	PortalID   string
	RelatedKey string
	Relation   string
	Court      string
	Title      string
	RawHtml    string
	CreatedAt  int64
	UpdatedAt  int64
}

type Client struct {
	ID             string
	Kind           string
	DisplayName    string
	LastName       string
	FirstName      string
	NormalizedName string
	Dni            string
	Cuit           string
	AutoCreated    bool
	CreatedAt      int64
	UpdatedAt      int64
}

type ClientCase struct {
	ClientID  string
	CaseID    string
	Role      string
	CreatedAt int64
}

type ParticipantClientLink struct {
	ParticipantID string
	ClientID      sql.NullString
	LinkType      string
	Confidence    float64
	Reason        string
	CreatedAt     int64
	UpdatedAt     int64
}

type LinkAudit struct {
	ID            int64
	ParticipantID string
	ClientID      sql.NullString
	PreviousType  string
	NewType       string
	Action        string
	Actor         string
	Reason        string
	Confidence    float64
	CreatedAt     int64
}
