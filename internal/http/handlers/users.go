package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/velomarket/deliveryhub/internal/cache"
	"github.com/velomarket/deliveryhub/internal/domain/user"
	"github.com/velomarket/deliveryhub/internal/http/middlewares"
	"github.com/velomarket/deliveryhub/internal/session"
)

type ProfileService interface {
	Profile(ctx context.Context, userID string) (user.Public, error)
}

type UsersHandler struct {
	profiles ProfileService
	cache    *cache.Cache
}

func NewUsersHandler(profiles ProfileService, profileCache *cache.Cache) *UsersHandler {
	return &UsersHandler{
		profiles: profiles,
		cache:    profileCache,
	}
}

// Me returns the caller's own public projection. The identity comes from
// the verified access token, never from the request body.
func (h *UsersHandler) Me(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || userID == "" {
		RespondUnauthorized(ctx, "unauthenticated", "Missing identity context")
		return
	}

	if h.cache != nil {
		if v, ok := h.cache.Get(userID); ok {
			if pub, ok := v.(user.Public); ok {
				ctx.JSON(http.StatusOK, gin.H{"user": pub})
				return
			}
		}
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	pub, err := h.profiles.Profile(cctx, userID)

	if err != nil {
		if errors.Is(err, session.ErrUserNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		RespondInternal(ctx, "Could not load profile")
		return
	}

	if h.cache != nil {
		h.cache.Set(userID, pub)
	}

	ctx.JSON(http.StatusOK, gin.H{"user": pub})
}
