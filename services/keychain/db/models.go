package db

type PortalAccount struct {
	UserID         string
	Username       string
	PasswordSealed string
	NeedsReauth    bool
	SyncErrorCount int64
	LastError      string
	LastErrorAt    int64
	LastAuthAt     int64
	CreatedAt      int64
	UpdatedAt      int64
}
