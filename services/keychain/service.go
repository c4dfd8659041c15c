// Package keychain keeps each user's portal credentials, sealed at rest,
// along with the account's reauthentication status.
package keychain

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"casesync-backend/lib/telemetry"
	"casesync-backend/lib/timezone"
	"casesync-backend/services/keychain/db"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/crypto/nacl/secretbox"
)

var tracer = telemetry.Tracer("casesync.services.keychain")

var ErrNoCredentials = errors.New("no portal credentials stored for user")

const (
	keySize   = 32
	nonceSize = 24
)

type Config struct {
	// SecretKey is 32 random bytes, base64 encoded.
	SecretKey string `json:"secret_key"`
}

type Credentials struct {
	Username string
	Password string
}

type Status struct {
	NeedsReauth    bool
	SyncErrorCount int64
	LastError      string
	LastErrorAt    time.Time
	LastAuthAt     time.Time
}

type Service struct {
	qry *db.Queries
	key *[keySize]byte
}

func NewService(database *sql.DB, config Config) (Service, error) {
	raw, err := base64.StdEncoding.DecodeString(config.SecretKey)
	if err != nil {
		return Service{}, fmt.Errorf("keychain: decode secret key: %w", err)
	}
	if len(raw) != keySize {
		return Service{}, fmt.Errorf("keychain: secret key must be %d bytes, got %d", keySize, len(raw))
	}
	key := new([keySize]byte)
	copy(key[:], raw)

	return Service{
		qry: db.New(database),
		key: key,
	}, nil
}

// GenerateKey returns a fresh base64 encoded secret key.
func GenerateKey() (string, error) {
	raw := make([]byte, keySize)
	_, err := io.ReadFull(rand.Reader, raw)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func (s Service) seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	_, err := io.ReadFull(rand.Reader, nonce[:])
	if err != nil {
		return "", err
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, s.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s Service) open(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return "", fmt.Errorf("sealed password is truncated")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, s.key)
	if !ok {
		return "", fmt.Errorf("sealed password does not open with the configured key")
	}
	return string(plaintext), nil
}

func (s Service) SetCredentials(ctx context.Context, userID string, creds Credentials) error {
	ctx, span := tracer.Start(ctx, "SetCredentials")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID))

	sealed, err := s.seal(creds.Password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to seal password")
		return err
	}
	err = s.qry.UpsertCredentials(ctx, db.UpsertCredentialsParams{
		UserID:         userID,
		Username:       creds.Username,
		PasswordSealed: sealed,
		Now:            timezone.Now().Unix(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s Service) GetCredentials(ctx context.Context, userID string) (Credentials, error) {
	ctx, span := tracer.Start(ctx, "GetCredentials")
	defer span.End()

	row, err := s.qry.GetAccount(ctx, userID)
	if err == sql.ErrNoRows {
		return Credentials{}, ErrNoCredentials
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Credentials{}, err
	}

	password, err := s.open(row.PasswordSealed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open password")
		return Credentials{}, fmt.Errorf("credentials of %s: %w", userID, err)
	}
	return Credentials{
		Username: row.Username,
		Password: password,
	}, nil
}

func unixOrZero(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).In(timezone.Location)
}

func (s Service) Status(ctx context.Context, userID string) (Status, error) {
	row, err := s.qry.GetAccount(ctx, userID)
	if err == sql.ErrNoRows {
		return Status{}, ErrNoCredentials
	}
	if err != nil {
		return Status{}, err
	}
	return Status{
		NeedsReauth:    row.NeedsReauth,
		SyncErrorCount: row.SyncErrorCount,
		LastError:      row.LastError,
		LastErrorAt:    unixOrZero(row.LastErrorAt),
		LastAuthAt:     unixOrZero(row.LastAuthAt),
	}, nil
}

// RecordSuccess clears the reauth flag and resets the error counter.
func (s Service) RecordSuccess(ctx context.Context, userID string) error {
	_, err := s.qry.RecordAuthSuccess(ctx, db.RecordAuthSuccessParams{
		UserID: userID,
		Now:    timezone.Now().Unix(),
	})
	return err
}

// RecordFailure flags the account for reauthentication and returns the
// updated status.
func (s Service) RecordFailure(ctx context.Context, userID, reason string) (Status, error) {
	affected, err := s.qry.RecordAuthFailure(ctx, db.RecordAuthFailureParams{
		UserID:    userID,
		LastError: reason,
		Now:       timezone.Now().Unix(),
	})
	if err != nil {
		return Status{}, err
	}
	if affected == 0 {
		return Status{}, ErrNoCredentials
	}
	status, err := s.Status(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	slog.WarnContext(ctx, "portal account needs reauthentication",
		"user_id", userID,
		"errors", status.SyncErrorCount,
		"reason", reason,
	)
	return status, nil
}

func (s Service) NeedingReauth(ctx context.Context) ([]string, error) {
	return s.qry.ListNeedingReauth(ctx)
}

func (s Service) Delete(ctx context.Context, userID string) error {
	return s.qry.DeleteAccount(ctx, userID)
}
