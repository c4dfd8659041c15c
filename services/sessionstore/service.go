// Package sessionstore persists one portal session per user as a JSON blob.
package sessionstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"casesync-backend/lib/blobstore"
	"casesync-backend/lib/scrapers/portal/core"
	"casesync-backend/lib/telemetry"
	"casesync-backend/lib/timezone"

	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("casesync.services.sessionstore")

type Service struct {
	bucket blobstore.Bucket
}

func NewService(bucket blobstore.Bucket) Service {
	return Service{bucket: bucket}
}

// Key is the object key of a user's session. User ids are hashed so they
// never show up in object listings.
func Key(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return fmt.Sprintf("sessions/%s.json", hex.EncodeToString(sum[:]))
}

// Load returns nil when the user has no stored session.
func (s Service) Load(ctx context.Context, userID string) (*core.SessionState, error) {
	ctx, span := tracer.Start(ctx, "Load")
	defer span.End()

	data, err := s.bucket.Get(ctx, Key(userID))
	if errors.Is(err, blobstore.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var state core.SessionState
	err = json.Unmarshal(data, &state)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "corrupt session blob")
		return nil, fmt.Errorf("decode session of %s: %w", userID, err)
	}
	return &state, nil
}

// Save replaces the user's session, stamping its update time.
func (s Service) Save(ctx context.Context, userID string, state core.SessionState) error {
	ctx, span := tracer.Start(ctx, "Save")
	defer span.End()

	state.UserID = userID
	state.UpdatedAt = timezone.Now().Unix()
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	err = s.bucket.Put(ctx, Key(userID), data, "application/json")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s Service) Delete(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "Delete")
	defer span.End()

	err := s.bucket.Delete(ctx, Key(userID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// MarkNeedsReauth flags a stored session without touching its cookies.
func (s Service) MarkNeedsReauth(ctx context.Context, userID string) error {
	state, err := s.Load(ctx, userID)
	if err != nil {
		return err
	}
	if state == nil {
		state = &core.SessionState{}
	}
	state.NeedsReauth = true
	return s.Save(ctx, userID, *state)
}
