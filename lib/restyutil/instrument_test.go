package restyutil

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

type memoryOutput struct {
	lock     sync.Mutex
	messages map[string]string
}

func (o *memoryOutput) Write(id, contents string) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.messages[id] = contents
}

func TestInstrumentClient(t *testing.T) {
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer slog.SetDefault(previous)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-portal", "1")
		w.Write([]byte("<html>ok</html>"))
	}))
	defer server.Close()

	output := &memoryOutput{messages: map[string]string{}}
	client := resty.New()
	InstrumentClient(client, nil, output)

	res, err := client.R().
		SetFormData(map[string]string{"q": "FRE-7767/2025"}).
		Post(server.URL + "/search")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode())

	require.Len(t, output.messages, 1)
	message := output.messages["1"]
	require.True(t, strings.HasPrefix(message, "---- REQUEST ----"))
	require.Contains(t, message, "POST "+server.URL+"/search")
	require.Contains(t, message, "q=FRE-7767%2F2025")
	require.Contains(t, message, "X-Portal: 1")
	require.Contains(t, message, "<html>ok</html>")
}

func TestInstrumentRedactsCredentials(t *testing.T) {
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer slog.SetDefault(previous)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "portal_session", Value: "abc"})
		w.Write([]byte("welcome"))
	}))
	defer server.Close()

	output := &memoryOutput{messages: map[string]string{}}
	client := resty.New()
	InstrumentClient(client, nil, output)

	_, err := client.R().
		SetHeader("Cookie", "portal_session=old").
		SetFormData(map[string]string{"username": "alice", "password": "hunter2"}).
		Post(server.URL + "/login")
	require.NoError(t, err)

	message := output.messages["1"]
	require.Contains(t, message, "username=alice")
	require.NotContains(t, message, "hunter2")
	require.NotContains(t, message, "portal_session=old")
	require.NotContains(t, message, "portal_session=abc")
	require.Contains(t, message, "Cookie: [redacted]")
}
