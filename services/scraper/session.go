package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"casesync-backend/lib/scrapers/portal/core"
	"casesync-backend/lib/scrapers/portal/navigator"
	"casesync-backend/lib/scrapers/portal/sso"
	"casesync-backend/lib/timezone"
	"casesync-backend/services/keychain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

type SessionStatus int

const (
	Unauthenticated SessionStatus = iota
	Valid
	ExpiredRefreshable
	NeedsReauth
)

func (s SessionStatus) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Valid:
		return "valid"
	case ExpiredRefreshable:
		return "expired_refreshable"
	case NeedsReauth:
		return "needs_reauth"
	}
	return fmt.Sprintf("SessionStatus(%d)", int(s))
}

func statusOf(state *core.SessionState, options Options) SessionStatus {
	switch {
	case state == nil:
		return Unauthenticated
	case state.NeedsReauth:
		return NeedsReauth
	case state.HasToken() && state.TokenExpired(options.ExpiryBuffer):
		if state.HasRefreshToken() {
			return ExpiredRefreshable
		}
		return NeedsReauth
	}
	return Valid
}

// AuthRequiredError is returned when no valid session could be established
// without the user. It matches core.ErrAuthRequired with errors.Is.
type AuthRequiredError struct {
	Reason string
	Err    error
}

func (e *AuthRequiredError) Error() string {
	return "reconnect required: " + e.Reason
}

func (e *AuthRequiredError) Unwrap() []error {
	if e.Err == nil {
		return []error{core.ErrAuthRequired}
	}
	return []error{core.ErrAuthRequired, e.Err}
}

// userLocks serializes portal work per user, entries are dropped once
// nobody holds or waits for them.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: map[string]*userLock{}}
}

func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[userID]
	if !ok {
		entry = &userLock{}
		l.locks[userID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.Lock()
	return func() {
		entry.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}

// reauth logs in with the stored credentials. Either outcome is recorded on
// the account.
func (s Service) reauth(ctx context.Context, userID string) (*core.SessionState, error) {
	ctx, span := tracer.Start(ctx, "reauth")
	defer span.End()

	creds, err := s.keychain.GetCredentials(ctx, userID)
	if errors.Is(err, keychain.ErrNoCredentials) {
		return nil, &AuthRequiredError{Reason: "no stored credentials", Err: err}
	}
	if err != nil {
		return nil, err
	}

	state, err := s.auth.Login(ctx, creds.Username, creds.Password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "automatic login failed")
		reauthCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))

		if markErr := s.sessions.MarkNeedsReauth(ctx, userID); markErr != nil {
			slog.WarnContext(ctx, "failed to flag session", "user_id", userID, "err", markErr)
		}
		status, recErr := s.keychain.RecordFailure(ctx, userID, err.Error())
		if recErr != nil {
			slog.WarnContext(ctx, "failed to record reauth failure", "user_id", userID, "err", recErr)
		}
		if errors.Is(err, sso.ErrInvalidCredentials) {
			notifyErr := s.notifier.ReconnectRequired(ctx, userID, err.Error(), status.SyncErrorCount)
			if notifyErr != nil {
				slog.WarnContext(ctx, "failed to send reconnect notice", "user_id", userID, "err", notifyErr)
			}
			return nil, &AuthRequiredError{Reason: "stored credentials were rejected", Err: err}
		}
		return nil, err
	}

	state.UserID = userID
	state.NeedsReauth = false
	err = s.sessions.Save(ctx, userID, state)
	if err != nil {
		return nil, err
	}
	err = s.keychain.RecordSuccess(ctx, userID)
	if err != nil {
		slog.WarnContext(ctx, "failed to reset sync error counter", "user_id", userID, "err", err)
	}
	reauthCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "ok")))
	slog.InfoContext(ctx, "reauthenticated portal session", "user_id", userID)
	return &state, nil
}

// flagNeedsReauth marks the session in memory and in the store, so the
// status endpoint and other instances see it too.
func (s Service) flagNeedsReauth(ctx context.Context, userID string, state *core.SessionState) {
	state.NeedsReauth = true
	if err := s.sessions.MarkNeedsReauth(ctx, userID); err != nil {
		slog.WarnContext(ctx, "failed to flag session", "user_id", userID, "err", err)
	}
}

// refresh swaps an expired bearer token, falling back to NeedsReauth when
// the provider refuses.
func (s Service) refresh(ctx context.Context, userID string, state *core.SessionState) *core.SessionState {
	tokens, err := s.auth.Refresh(ctx, state.RefreshToken)
	if err != nil {
		slog.WarnContext(ctx, "token refresh failed", "user_id", userID, "err", err)
		s.flagNeedsReauth(ctx, userID, state)
		return state
	}
	state.AccessToken = tokens.AccessToken
	state.ExpiresAt = tokens.ExpiresAt(timezone.Now())
	if tokens.RefreshToken != "" {
		state.RefreshToken = tokens.RefreshToken
	}
	err = s.sessions.Save(ctx, userID, *state)
	if err != nil {
		slog.WarnContext(ctx, "failed to save refreshed session", "user_id", userID, "err", err)
	}
	return state
}

// establish drives the session to Valid with at most one token refresh and
// one reauthentication, reporting whether it reauthenticated. A refreshed
// token that is still inside the expiry buffer counts as NeedsReauth.
func (s Service) establish(ctx context.Context, userID string, canReauth bool) (*core.SessionState, bool, error) {
	state, err := s.sessions.Load(ctx, userID)
	if err != nil {
		return nil, false, err
	}

	refreshed := false
	reauthed := false
	for {
		if err := ctx.Err(); err != nil {
			return nil, reauthed, err
		}

		status := statusOf(state, s.options)
		if status == ExpiredRefreshable && refreshed {
			slog.WarnContext(ctx, "refreshed token is already expired", "user_id", userID)
			s.flagNeedsReauth(ctx, userID, state)
			status = NeedsReauth
		}

		switch status {
		case Valid:
			return state, reauthed, nil
		case ExpiredRefreshable:
			s.clients.Remove(userID)
			state = s.refresh(ctx, userID, state)
			refreshed = true
		case Unauthenticated, NeedsReauth:
			if !canReauth || reauthed {
				return nil, reauthed, &AuthRequiredError{Reason: "session " + status.String()}
			}
			s.clients.Remove(userID)
			state, err = s.reauth(ctx, userID)
			if err != nil {
				return nil, true, err
			}
			reauthed = true
		}
	}
}

func (s Service) navigatorFor(userID string, state *core.SessionState) (*navigator.Navigator, error) {
	if nav, ok := s.clients.Get(userID); ok {
		return nav, nil
	}
	client, err := core.NewClient(s.options.Portal, state)
	if err != nil {
		return nil, err
	}
	nav := navigator.New(client, s.options.Navigator)
	s.clients.Add(userID, nav)
	return nav, nil
}

// withPortal runs fn with a navigator on a valid session while holding the
// user's lock. A session drop inside fn triggers one reauthentication and
// one retry, unless this call already reauthenticated.
func (s Service) withPortal(ctx context.Context, userID string, fn func(ctx context.Context, nav *navigator.Navigator) error) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	reauthed := false
	for {
		state, did, err := s.establish(ctx, userID, !reauthed)
		if err != nil {
			return err
		}
		reauthed = reauthed || did

		nav, err := s.navigatorFor(userID, state)
		if err != nil {
			return err
		}

		err = fn(ctx, nav)
		if errors.Is(err, core.ErrAuthRequired) {
			s.clients.Remove(userID)
			if markErr := s.sessions.MarkNeedsReauth(ctx, userID); markErr != nil {
				slog.WarnContext(ctx, "failed to flag session", "user_id", userID, "err", markErr)
			}
			if reauthed {
				return &AuthRequiredError{Reason: "session dropped again after reauthentication", Err: err}
			}
			continue
		}
		if err != nil {
			return err
		}

		nav.Client().Export(state)
		err = s.sessions.Save(ctx, userID, *state)
		if err != nil {
			slog.WarnContext(ctx, "failed to save session", "user_id", userID, "err", err)
		}
		return nil
	}
}

// Reauthenticate logs in with credentials supplied by the user, storing
// them and the new session on success.
func (s Service) Reauthenticate(ctx context.Context, userID, username, password string) error {
	ctx, span := tracer.Start(ctx, "Reauthenticate")
	defer span.End()

	unlock := s.locks.lock(userID)
	defer unlock()

	state, err := s.auth.Login(ctx, username, password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		if _, recErr := s.keychain.RecordFailure(ctx, userID, err.Error()); recErr != nil && !errors.Is(recErr, keychain.ErrNoCredentials) {
			slog.WarnContext(ctx, "failed to record login failure", "user_id", userID, "err", recErr)
		}
		return err
	}

	err = s.keychain.SetCredentials(ctx, userID, keychain.Credentials{Username: username, Password: password})
	if err != nil {
		return err
	}
	state.UserID = userID
	state.NeedsReauth = false
	err = s.sessions.Save(ctx, userID, state)
	if err != nil {
		return err
	}
	s.clients.Remove(userID)
	return s.keychain.RecordSuccess(ctx, userID)
}

// Disconnect forgets the user's session and stored credentials.
func (s Service) Disconnect(ctx context.Context, userID string) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	s.clients.Remove(userID)
	err := s.sessions.Delete(ctx, userID)
	if err != nil {
		return err
	}
	return s.keychain.Delete(ctx, userID)
}
