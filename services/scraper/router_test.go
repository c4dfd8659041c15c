package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"casesync-backend/lib/util/serviceutil"
	"casesync-backend/services/keychain"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const testSecret = "s3cret"

func call(t *testing.T, handler http.Handler, method, path string, body any, withSecret bool) (int, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("content-type", "application/json")
	if withSecret {
		req.Header.Set(serviceutil.SecretHeader, testSecret)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	return rec.Code, decoded
}

func TestHandlerRequiresSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service, _, cleanup := setup(t)
	defer cleanup()
	handler := service.Handler(testSecret)

	code, body := call(t, handler, http.MethodGet, "/health/live", nil, false)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "OK", body["status"])

	code, body = call(t, handler, http.MethodGet, "/health", nil, false)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "UNAUTHORIZED", body["code"])

	code, body = call(t, handler, http.MethodGet, "/health", nil, true)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, map[string]any{
		"database":     "ok",
		"blob_storage": "ok",
		"task_queue":   "ok",
	}, body["checks"])
}

func TestSearchResponses(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service, h, cleanup := setup(t)
	defer cleanup()
	handler := service.Handler(testSecret)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	require.NoError(t, h.keychain.SetCredentials(ctx, "alice", keychain.Credentials{Username: "20123456789", Password: "secret"}))

	search := func(number string) (int, map[string]any) {
		return call(t, handler, http.MethodPost, "/v1/search-case-history", gin.H{
			"user_id":      "alice",
			"jurisdiction": "FRE",
			"number":       number,
			"year":         "2025",
		}, true)
	}

	code, body := search("7767")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "OK", body["status"])
	require.Equal(t, "FRE-7767/2025", body["selected"].(map[string]any)["key"])

	// two rows normalize to the same key, nothing is selected
	code, body = search("7768")
	require.Equal(t, http.StatusOK, code)
	require.NotContains(t, body, "selected")
	require.Len(t, body["candidates"], 2)
	require.EqualValues(t, 2, body["exact_matches"])

	code, body = search("1")
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "NOT_FOUND", body["status"])

	code, body = call(t, handler, http.MethodPost, "/v1/search-case-history", gin.H{"jurisdiction": "FRE"}, true)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "ERROR", body["status"])
	require.Equal(t, CodeValidation, body["code"])
}

func TestScrapeAndMatchOverHttp(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service, h, cleanup := setup(t)
	defer cleanup()
	handler := service.Handler(testSecret)

	// no credentials yet
	code, body := call(t, handler, http.MethodPost, "/v1/scrape-case-history-details", gin.H{
		"user_id":  "alice",
		"case_key": "FRE 007767/2025",
	}, true)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "AUTH_REQUIRED", body["status"])

	code, body = call(t, handler, http.MethodPost, "/v1/reauthenticate", gin.H{
		"user_id":  "alice",
		"username": "20123456789",
		"password": "wrong",
	}, true)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, CodeAuthFailed, body["code"])

	h.auth.automationDown.Store(true)
	code, body = call(t, handler, http.MethodPost, "/v1/reauthenticate", gin.H{
		"user_id":  "alice",
		"username": "20123456789",
		"password": "secret",
	}, true)
	require.Equal(t, http.StatusBadGateway, code)
	require.Equal(t, CodeAutomationFailed, body["code"])
	h.auth.automationDown.Store(false)

	code, _ = call(t, handler, http.MethodPost, "/v1/reauthenticate", gin.H{
		"user_id":  "alice",
		"username": "20123456789",
		"password": "secret",
	}, true)
	require.Equal(t, http.StatusOK, code)

	code, body = call(t, handler, http.MethodPost, "/v1/scrape-case-history-details", gin.H{
		"user_id":  "alice",
		"case_key": "FRE 007767/2025",
	}, true)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["movements"], 2)
	require.Len(t, body["participants"], 2)
	caseID := body["case_id"].(string)
	require.NotEmpty(t, caseID)
	stats := body["stats"].(map[string]any)
	require.EqualValues(t, 2, stats["match_tasks"])

	code, body = call(t, handler, http.MethodPost, "/v1/cases/"+caseID+"/rematch", nil, true)
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 2, body["stats"].(map[string]any)["created"])

	code, body = call(t, handler, http.MethodGet, "/v1/cases/"+caseID+"/links", nil, true)
	require.Equal(t, http.StatusOK, code)
	links := body["links"].([]any)
	require.Len(t, links, 2)
	participantID := links[0].(map[string]any)["participant_id"].(string)

	code, body = call(t, handler, http.MethodGet, "/v1/stored-case?user_id=alice&case_key=fre-7767/2025", nil, true)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, caseID, body["case_id"])
	require.Len(t, body["movements"], 2)
	require.Len(t, body["participants"], 2)

	code, _ = call(t, handler, http.MethodGet, "/v1/stored-case?user_id=bob&case_key=FRE%207767/2025", nil, true)
	require.Equal(t, http.StatusNotFound, code)

	code, body = call(t, handler, http.MethodGet, "/v1/clients", nil, true)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["clients"], 2)

	code, _ = call(t, handler, http.MethodPost, "/v1/participants/"+participantID+"/confirm", gin.H{"actor": "lawyer@example.com"}, true)
	require.Equal(t, http.StatusOK, code)

	code, body = call(t, handler, http.MethodGet, "/v1/participants/"+participantID+"/audit", nil, true)
	require.Equal(t, http.StatusOK, code)
	audit := body["audit"].([]any)
	require.Equal(t, "CONFIRMED", audit[len(audit)-1].(map[string]any)["action"])
	require.Equal(t, "lawyer@example.com", audit[len(audit)-1].(map[string]any)["actor"])

	code, body = call(t, handler, http.MethodPost, "/v1/participants/missing/match", nil, true)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "NOT_FOUND", body["status"])

	code, _ = call(t, handler, http.MethodPost, "/v1/participants", gin.H{
		"case_id": "missing",
		"name":    "PEREZ, JUAN",
	}, true)
	require.Equal(t, http.StatusNotFound, code)

	code, body = call(t, handler, http.MethodGet, "/v1/sessions/alice", nil, true)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "valid", body["session"])
	require.Equal(t, true, body["has_credentials"])
}
