package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/huangang/tokengate/internal/models"
	"gorm.io/gorm"
)

// TokenStore is the persistence layer for AuthToken records. It knows nothing
// about token generation or hashing; it only guarantees the storage
// invariants: digest uniqueness, collision-tolerant token_key lookup, and
// transactional insert paths for the two per-user modes.
type TokenStore struct {
	db *gorm.DB
}

func NewTokenStore(db *gorm.DB) *TokenStore {
	return &TokenStore{db: db}
}

// FindByTokenKey returns every record sharing the lookup-key prefix, oldest
// first. Multiple records are legitimate: token_key is not unique.
func (s *TokenStore) FindByTokenKey(key string) ([]models.AuthToken, error) {
	var records []models.AuthToken
	if err := s.db.Where("token_key = ?", key).Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return records, nil
}

// InsertOrReplace atomically replaces any existing records for the user with
// the new one (single-token-per-user mode). The old digest and salt are
// discarded in the same transaction, so two concurrent calls cannot leave two
// live records behind.
func (s *TokenStore) InsertOrReplace(userID uint, record *models.AuthToken) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.AuthToken{}).Error; err != nil {
			return err
		}
		return tx.Create(record).Error
	})
	return s.translate(err)
}

// InsertWithLimit inserts a record for the user after purging the user's
// expired rows and re-checking the live count, all in one transaction. With a
// non-nil limit, two racing calls cannot both pass the count check and jointly
// exceed it.
func (s *TokenStore) InsertWithLimit(userID uint, record *models.AuthToken, limit *int) error {
	now := time.Now()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND expiry IS NOT NULL AND expiry < ?", userID, now).
			Delete(&models.AuthToken{}).Error; err != nil {
			return err
		}
		if limit != nil {
			var count int64
			if err := tx.Model(&models.AuthToken{}).
				Where("user_id = ? AND (expiry IS NULL OR expiry >= ?)", userID, now).
				Count(&count).Error; err != nil {
				return err
			}
			if count >= int64(*limit) {
				return ErrTokenLimitExceeded
			}
		}
		return tx.Create(record).Error
	})
	return s.translate(err)
}

// Delete removes one record by ID. Deleting an already-gone record is not an
// error.
func (s *TokenStore) Delete(id uint) error {
	if err := s.db.Delete(&models.AuthToken{}, id).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// DeleteAllForUser removes every record owned by the user.
func (s *TokenStore) DeleteAllForUser(userID uint) error {
	if err := s.db.Where("user_id = ?", userID).Delete(&models.AuthToken{}).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// DeleteByTokenKeys removes the user's records matching any of the given
// lookup keys. Used by "revoke these sessions" requests, which only ever see
// token_key metadata.
func (s *TokenStore) DeleteByTokenKeys(userID uint, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.db.Where("user_id = ? AND token_key IN ?", userID, keys).
		Delete(&models.AuthToken{}).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// DeleteExpiredBefore removes all records, any owner, whose expiry is before
// the given instant. Records with a null expiry never match.
func (s *TokenStore) DeleteExpiredBefore(t time.Time) (int64, error) {
	result := s.db.Where("expiry IS NOT NULL AND expiry < ?", t).Delete(&models.AuthToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteExpiredForUser removes the user's expired records.
func (s *TokenStore) DeleteExpiredForUser(userID uint, t time.Time) error {
	if err := s.db.Where("user_id = ? AND expiry IS NOT NULL AND expiry < ?", userID, t).
		Delete(&models.AuthToken{}).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// UpdateExpiry extends a record's expiry without touching digest or salt.
func (s *TokenStore) UpdateExpiry(id uint, expiry time.Time) error {
	if err := s.db.Model(&models.AuthToken{}).Where("id = ?", id).
		Update("expiry", expiry).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// CountLiveForUser counts the user's non-expired records.
func (s *TokenStore) CountLiveForUser(userID uint) (int64, error) {
	var count int64
	if err := s.db.Model(&models.AuthToken{}).
		Where("user_id = ? AND (expiry IS NULL OR expiry >= ?)", userID, time.Now()).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return count, nil
}

// ListLiveForUser returns the user's non-expired records, oldest first.
// Digest and salt are excluded from serialization at the model level.
func (s *TokenStore) ListLiveForUser(userID uint) ([]models.AuthToken, error) {
	var records []models.AuthToken
	if err := s.db.Where("user_id = ? AND (expiry IS NULL OR expiry >= ?)", userID, time.Now()).
		Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return records, nil
}

// FindByID fetches one record.
func (s *TokenStore) FindByID(id uint) (*models.AuthToken, error) {
	var record models.AuthToken
	if err := s.db.First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return &record, nil
}

// translate maps gorm errors to the engine taxonomy. Uniqueness violations on
// digest or salt become errDuplicateRecord so the lifecycle manager can retry
// generation exactly once.
func (s *TokenStore) translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTokenLimitExceeded):
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return errDuplicateRecord
	default:
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
}
