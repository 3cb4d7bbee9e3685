package models

import "time"

// Schema constants for the auth_tokens table. They are part of the storage
// contract: changing any of them requires a migration, never a runtime setting.
const (
	TokenKeyLength = 8   // chars of the raw token stored as lookup key
	DigestLength   = 128 // hex sha512 output width
	SaltLength     = 16  // hex chars of the per-record salt
)

// AuthToken is the persisted form of an issued token. The raw token itself is
// never stored; only its salted digest and a short lookup-key prefix are kept.
// TokenKey is intentionally not unique — distinct tokens may share a prefix,
// and verification resolves collisions by digest comparison.
type AuthToken struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Digest    string     `gorm:"uniqueIndex;size:128;not null" json:"-"`
	TokenKey  string     `gorm:"index;size:8;not null" json:"token_key"`
	Salt      string     `gorm:"uniqueIndex;size:16;not null" json:"-"`
	UserID    uint       `gorm:"index;not null" json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
	Expiry    *time.Time `gorm:"index" json:"expiry"` // nil = never expires
}

func (AuthToken) TableName() string { return "auth_tokens" }

// Expired reports whether the record is semantically dead at the given time.
// A record past its expiry is invalid even if not yet physically deleted.
func (t *AuthToken) Expired(now time.Time) bool {
	return t.Expiry != nil && t.Expiry.Before(now)
}
