package services

import (
	"context"
	"strings"

	"github.com/propsnap/backend/internal/crypto"
	apperrors "github.com/propsnap/backend/internal/errors"
	"github.com/propsnap/backend/internal/logging"
)

// TokenKey is the KV key holding the sealed API token.
const TokenKey = "session.token"

// KVStore is the key-value storage the session uses.
type KVStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// QueueClearer empties the upload queue.
type QueueClearer interface {
	Clear(ctx context.Context) error
}

// Session stores the API token sealed at rest.
type Session struct {
	kv     KVStore
	sealer *crypto.Sealer
	queue  QueueClearer
}

// NewSession creates a Session.
func NewSession(kv KVStore, sealer *crypto.Sealer, q QueueClearer) *Session {
	return &Session{kv: kv, sealer: sealer, queue: q}
}

// Login stores token, replacing any previous one.
func (s *Session) Login(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperrors.New(apperrors.ErrInvalid, "token is required")
	}

	sealed, err := s.sealer.Seal(token)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCryptoFailed, "failed to seal token", err)
	}
	if err := s.kv.Set(ctx, TokenKey, sealed); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to store token", err)
	}

	logging.Info("Session started", nil)
	return nil
}

// Logout clears the upload queue and forgets the token.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.queue.Clear(ctx); err != nil {
		return err
	}
	if err := s.kv.Remove(ctx, TokenKey); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to remove token", err)
	}

	logging.Info("Session ended", nil)
	return nil
}

// Token returns the current API token, or "" when logged out.
func (s *Session) Token(ctx context.Context) (string, error) {
	sealed, ok, err := s.kv.Get(ctx, TokenKey)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrStorage, "failed to read token", err)
	}
	if !ok {
		return "", nil
	}

	token, err := s.sealer.Open(sealed)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCryptoFailed, "stored token cannot be decrypted", err)
	}
	return token, nil
}

// LoggedIn reports whether a token is stored.
func (s *Session) LoggedIn(ctx context.Context) (bool, error) {
	_, ok, err := s.kv.Get(ctx, TokenKey)
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrStorage, "failed to read token", err)
	}
	return ok, nil
}
