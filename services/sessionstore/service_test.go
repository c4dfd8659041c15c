package sessionstore

import (
	"context"
	"strings"
	"testing"
	"time"

	"casesync-backend/lib/blobstore"
	"casesync-backend/lib/scrapers/portal/core"
	"casesync-backend/lib/telemetry"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

func setup(t testing.TB) (Service, blobstore.Bucket, func()) {
	cleanup := telemetry.SetupForTesting("test:services/sessionstore")
	bucket, err := blobstore.NewLocal(blobstore.LocalConfig{Directory: t.TempDir()})
	require.NoError(t, err)
	return NewService(bucket), bucket, cleanup
}

func TestSessionLifecycle(t *testing.T) {
	service, bucket, cleanup := setup(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	state, err := service.Load(ctx, "alice")
	require.NoError(t, err)
	require.Nil(t, state)

	saved := core.SessionState{
		Cookies:      []core.Cookie{{Name: "JSESSIONID", Value: "abc", URL: "https://portal.example.com/"}},
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    1741280400,
		UserAgent:    core.DefaultUserAgent,
	}
	require.NoError(t, service.Save(ctx, "alice", saved))

	state, err = service.Load(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, state)
	require.NotZero(t, state.UpdatedAt)

	saved.UserID = "alice"
	require.Empty(t, cmp.Diff(saved, *state, cmpopts.IgnoreFields(core.SessionState{}, "UpdatedAt")))

	keys, err := bucket.List(ctx, "sessions/")
	require.NoError(t, err)
	require.Equal(t, []string{Key("alice")}, keys)
	require.False(t, strings.Contains(keys[0], "alice"))

	require.NoError(t, service.MarkNeedsReauth(ctx, "alice"))
	state, err = service.Load(ctx, "alice")
	require.NoError(t, err)
	require.True(t, state.NeedsReauth)
	require.Equal(t, "access", state.AccessToken)

	require.NoError(t, service.Delete(ctx, "alice"))
	require.NoError(t, service.Delete(ctx, "alice"))
	state, err = service.Load(ctx, "alice")
	require.NoError(t, err)
	require.Nil(t, state)
}

func TestCorruptSession(t *testing.T) {
	service, bucket, cleanup := setup(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, bucket.Put(ctx, Key("bob"), []byte("{not json"), "application/json"))

	_, err := service.Load(ctx, "bob")
	require.Error(t, err)
}
