package services

import (
	"time"

	"github.com/huangang/tokengate/internal/models"
	"github.com/huangang/tokengate/internal/utils"
	"github.com/huangang/tokengate/pkg/logger"
)

// Verify resolves a presented credential to its owning user and record, or
// fails with one of the verification errors.
//
// The credential's fixed-width prefix narrows the candidate set; the digest is
// then recomputed over the full credential with each candidate's salt. Every
// candidate is examined even after a match is found, both to resolve
// legitimate lookup-key collisions and to keep the comparison loop's timing
// independent of match position.
func (s *TokenService) Verify(credential string) (uint, *models.AuthToken, error) {
	set := s.Settings()

	if len(credential) <= models.TokenKeyLength {
		return 0, nil, ErrMalformedToken
	}

	candidates, err := s.store.FindByTokenKey(credential[:models.TokenKeyLength])
	if err != nil {
		return 0, nil, err
	}
	if len(candidates) == 0 {
		return 0, nil, ErrTokenNotFound
	}

	var matched *models.AuthToken
	for i := range candidates {
		candidate := &candidates[i]
		digest, err := utils.HashToken(set.HashAlgorithm, credential, candidate.Salt)
		if err != nil {
			return 0, nil, err
		}
		if utils.ConstantTimeEquals(digest, candidate.Digest) && matched == nil {
			matched = candidate
		}
	}
	if matched == nil {
		return 0, nil, ErrInvalidToken
	}

	now := time.Now()
	if matched.Expired(now) {
		// The record is already dead; dropping it here just saves the sweep
		// a row. Failure to delete does not change the outcome.
		if err := s.store.Delete(matched.ID); err != nil {
			logger.Warn().Err(err).Uint("token_id", matched.ID).Msg("failed to drop expired token")
		}
		return 0, nil, ErrTokenExpired
	}

	if set.AutoRefresh && matched.Expiry != nil && set.TTL != nil {
		s.renew(matched, set, now)
	}

	return matched.UserID, matched, nil
}

// renew extends the record's expiry to now+TTL, writing only when the
// extension exceeds the minimum refresh interval. High-frequency requests
// therefore cost at most one expiry write per interval.
func (s *TokenService) renew(record *models.AuthToken, set *TokenSettings, now time.Time) {
	newExpiry := now.Add(*set.TTL)
	if newExpiry.Sub(*record.Expiry) <= set.MinRefreshInterval {
		return
	}
	if err := s.store.UpdateExpiry(record.ID, newExpiry); err != nil {
		logger.Warn().Err(err).Uint("token_id", record.ID).Msg("token auto-refresh write failed")
		return
	}
	record.Expiry = &newExpiry
}
