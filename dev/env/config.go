package devenv

// PortalTestConfig holds credentials for live tests against a real portal
// account. It is read from <dev_state>/portal_config.json5 and tests that
// need it are skipped when the file is absent.
type PortalTestConfig struct {
	BaseUrl      string `json:"base_url"`
	IdentityHost string `json:"identity_host"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Jurisdiction string `json:"jurisdiction"`
	Number       string `json:"number"`
	Year         string `json:"year"`
}
