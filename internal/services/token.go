package services

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/huangang/tokengate/internal/config"
	"github.com/huangang/tokengate/internal/models"
	"github.com/huangang/tokengate/internal/utils"
	"github.com/huangang/tokengate/pkg/logger"
	"gorm.io/gorm"
)

// TokenMode identifies which per-user accumulation policy is active. The two
// are mutually exclusive: single-token mode replaces on issue, multi-token
// mode accumulates up to an optional limit.
type TokenMode string

const (
	ModeSingleTokenPerUser TokenMode = "single"
	ModeMultiTokenPerUser  TokenMode = "multi"
)

// TokenSettings is an immutable snapshot of the engine configuration. Reload
// swaps the whole snapshot atomically; fields are never mutated in place.
type TokenSettings struct {
	HashAlgorithm        string
	TokenCharacterLength int
	TTL                  *time.Duration // nil = tokens never expire
	LimitPerUser         *int           // nil = unlimited; ignored in single mode
	SingleTokenPerUser   bool
	AutoRefresh          bool
	MinRefreshInterval   time.Duration
}

// SettingsFromConfig builds a settings snapshot from the external config
// surface.
func SettingsFromConfig(cfg *config.TokenConfig) *TokenSettings {
	s := &TokenSettings{
		HashAlgorithm:        cfg.HashAlgorithm,
		TokenCharacterLength: cfg.CharacterLength,
		SingleTokenPerUser:   cfg.SingleTokenPerUser,
		AutoRefresh:          cfg.AutoRefresh,
		MinRefreshInterval:   time.Duration(cfg.MinRefreshIntervalSeconds) * time.Second,
	}
	if cfg.TTLHours != nil {
		ttl := time.Duration(*cfg.TTLHours) * time.Hour
		s.TTL = &ttl
	}
	if cfg.LimitPerUser != nil && !cfg.SingleTokenPerUser {
		limit := *cfg.LimitPerUser
		s.LimitPerUser = &limit
	}
	return s
}

// TokenHook is invoked after a successful issue or revoke. The record argument
// is nil for revoke-all and key-based revocations.
type TokenHook func(userID uint, record *models.AuthToken)

// TokenService orchestrates the token lifecycle: issuance with per-user
// policy, verification, revocation and expiry sweeps. It is stateless between
// calls apart from the store; every verification re-reads from the store so
// concurrent revocations take effect immediately.
type TokenService struct {
	store    *TokenStore
	settings atomic.Pointer[TokenSettings]

	mu          sync.RWMutex
	issueHooks  []TokenHook
	revokeHooks []TokenHook
}

func NewTokenService(db *gorm.DB, settings *TokenSettings) *TokenService {
	s := &TokenService{store: NewTokenStore(db)}
	s.settings.Store(settings)
	return s
}

// Settings returns the active configuration snapshot.
func (s *TokenService) Settings() *TokenSettings {
	return s.settings.Load()
}

// Reload atomically installs a new configuration snapshot. In-flight
// operations keep the snapshot they started with.
func (s *TokenService) Reload(settings *TokenSettings) {
	s.settings.Store(settings)
	logger.Info().
		Str("mode", string(s.Mode())).
		Str("hash_algorithm", settings.HashAlgorithm).
		Msg("token settings reloaded")
}

// Mode reports the active per-user accumulation policy.
func (s *TokenService) Mode() TokenMode {
	if s.Settings().SingleTokenPerUser {
		return ModeSingleTokenPerUser
	}
	return ModeMultiTokenPerUser
}

// OnIssue registers a hook fired after every successful issuance.
func (s *TokenService) OnIssue(hook TokenHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issueHooks = append(s.issueHooks, hook)
}

// OnRevoke registers a hook fired after every successful revocation.
func (s *TokenService) OnRevoke(hook TokenHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokeHooks = append(s.revokeHooks, hook)
}

// Issue creates a token for the user and returns the raw credential string.
// This is the caller's only opportunity to capture it; the raw value is never
// stored or logged.
//
// ttl semantics: nil uses the configured default; a zero or negative value
// means the token never expires.
//
// The per-user limit is checked before any cryptographic material is
// generated, and re-checked inside the insert transaction so concurrent
// issuance cannot exceed it.
func (s *TokenService) Issue(userID uint, ttl *time.Duration) (string, *models.AuthToken, error) {
	set := s.Settings()

	// Dead records never count against the limit.
	if err := s.store.DeleteExpiredForUser(userID, time.Now()); err != nil {
		return "", nil, err
	}

	if !set.SingleTokenPerUser && set.LimitPerUser != nil {
		count, err := s.store.CountLiveForUser(userID)
		if err != nil {
			return "", nil, err
		}
		if count >= int64(*set.LimitPerUser) {
			return "", nil, ErrTokenLimitExceeded
		}
	}

	var (
		raw    string
		record *models.AuthToken
	)
	// One retry covers the astronomically rare digest/salt collision.
	for attempt := 0; attempt < 2; attempt++ {
		var err error
		raw, record, err = s.mint(userID, ttl, set)
		if err != nil {
			return "", nil, err
		}

		if set.SingleTokenPerUser {
			err = s.store.InsertOrReplace(userID, record)
		} else {
			err = s.store.InsertWithLimit(userID, record, set.LimitPerUser)
		}
		if err == nil {
			break
		}
		if errors.Is(err, errDuplicateRecord) {
			if attempt == 0 {
				logger.Warn().Str("token_key", record.TokenKey).Msg("token digest collision, regenerating")
				continue
			}
			return "", nil, fmt.Errorf("%w: persistent digest collision", ErrStorageUnavailable)
		}
		return "", nil, err
	}

	s.fireIssue(userID, record)
	return raw, record, nil
}

// mint generates the raw token, salt and digest for a new record without
// touching the store.
func (s *TokenService) mint(userID uint, ttl *time.Duration, set *TokenSettings) (string, *models.AuthToken, error) {
	raw, err := utils.GenerateTokenString(set.TokenCharacterLength)
	if err != nil {
		return "", nil, err
	}
	salt, err := utils.GenerateSalt()
	if err != nil {
		return "", nil, err
	}
	digest, err := utils.HashToken(set.HashAlgorithm, raw, salt)
	if err != nil {
		return "", nil, err
	}

	record := &models.AuthToken{
		Digest:   digest,
		TokenKey: raw[:models.TokenKeyLength],
		Salt:     salt,
		UserID:   userID,
	}

	effective := set.TTL
	if ttl != nil {
		if *ttl <= 0 {
			effective = nil
		} else {
			effective = ttl
		}
	}
	if effective != nil {
		expiry := time.Now().Add(*effective)
		record.Expiry = &expiry
	}
	return raw, record, nil
}

// Revoke deletes one record. Idempotent.
func (s *TokenService) Revoke(id uint) error {
	record, err := s.store.FindByID(id)
	if errors.Is(err, ErrTokenNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.store.Delete(id); err != nil {
		return err
	}
	s.fireRevoke(record.UserID, record)
	return nil
}

// RevokeAll deletes every record for the user ("log out everywhere").
func (s *TokenService) RevokeAll(userID uint) error {
	if err := s.store.DeleteAllForUser(userID); err != nil {
		return err
	}
	s.fireRevoke(userID, nil)
	return nil
}

// RevokeByKeys deletes the user's records matching the given lookup keys.
func (s *TokenService) RevokeByKeys(userID uint, keys []string) error {
	if err := s.store.DeleteByTokenKeys(userID, keys); err != nil {
		return err
	}
	s.fireRevoke(userID, nil)
	return nil
}

// SweepExpired deletes all expired records across every user. Advisory: a
// sweep that never runs cannot make an expired token valid, because every
// read path filters on expiry.
func (s *TokenService) SweepExpired() (int64, error) {
	return s.store.DeleteExpiredBefore(time.Now())
}

// SweepExpiredForUser deletes one user's expired records.
func (s *TokenService) SweepExpiredForUser(userID uint) error {
	return s.store.DeleteExpiredForUser(userID, time.Now())
}

// ListLive returns the user's live token metadata. Digest and salt never
// leave the store's serialization boundary.
func (s *TokenService) ListLive(userID uint) ([]models.AuthToken, error) {
	return s.store.ListLiveForUser(userID)
}

// ProcessTask executes a queued token maintenance task.
func (s *TokenService) ProcessTask(task *TokenTask) error {
	switch task.Type {
	case TaskTypeSweepExpired:
		if task.UserID != 0 {
			return s.SweepExpiredForUser(task.UserID)
		}
		removed, err := s.SweepExpired()
		if err != nil {
			return err
		}
		if removed > 0 {
			logger.Info().Int64("removed", removed).Str("task_id", task.ID).Msg("expired tokens swept")
		}
		return nil
	case TaskTypeRevokeAll:
		return s.RevokeAll(task.UserID)
	default:
		return fmt.Errorf("unknown token task type: %s", task.Type)
	}
}

func (s *TokenService) fireIssue(userID uint, record *models.AuthToken) {
	s.mu.RLock()
	hooks := s.issueHooks
	s.mu.RUnlock()
	for _, hook := range hooks {
		hook(userID, record)
	}
}

func (s *TokenService) fireRevoke(userID uint, record *models.AuthToken) {
	s.mu.RLock()
	hooks := s.revokeHooks
	s.mu.RUnlock()
	for _, hook := range hooks {
		hook(userID, record)
	}
}
