package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/huangang/tokengate/internal/middleware"
	"github.com/huangang/tokengate/internal/services"
	"github.com/huangang/tokengate/pkg/response"
)

// TokenHandler exposes the current user's token inventory. Responses carry
// metadata only: token_key, creation time and expiry. Digest and salt never
// leave the store.
type TokenHandler struct {
	tokens *services.TokenService
}

func NewTokenHandler(tokens *services.TokenService) *TokenHandler {
	return &TokenHandler{tokens: tokens}
}

// List returns the user's live tokens.
// GET /api/auth/tokens
func (h *TokenHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)

	records, err := h.tokens.ListLive(userID)
	if err != nil {
		response.Error(c, response.NewServerError("failed to list tokens"))
		return
	}

	response.Success(c, gin.H{
		"mode":   h.tokens.Mode(),
		"tokens": records,
	})
}

// Revoke deletes one of the user's tokens by record ID. Revoking a token that
// is already gone succeeds.
// DELETE /api/auth/tokens/:id
func (h *TokenHandler) Revoke(c *gin.Context) {
	userID := middleware.GetUserID(c)

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.Error(c, response.NewBadRequest("invalid token id"))
		return
	}

	// A user may only revoke records they own.
	records, err := h.tokens.ListLive(userID)
	if err != nil {
		response.Error(c, response.NewServerError("failed to look up token"))
		return
	}
	owned := false
	for _, record := range records {
		if record.ID == uint(id) {
			owned = true
			break
		}
	}
	if !owned {
		// The revoke contract is idempotent, so an unknown ID is
		// indistinguishable from an already-revoked one.
		response.Success(c, gin.H{"message": "token revoked"})
		return
	}

	if err := h.tokens.Revoke(uint(id)); err != nil {
		response.Error(c, response.NewServerError("failed to revoke token"))
		return
	}
	response.Success(c, gin.H{"message": "token revoked"})
}
