package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/velomarket/deliveryhub/internal/domain/user"
	"github.com/velomarket/deliveryhub/internal/session"
	"github.com/velomarket/deliveryhub/internal/utils"
)

type UserLister interface {
	ListCursor(ctx context.Context, afterCreatedAt time.Time, afterID string, limit int) ([]user.User, bool, error)
}

type AdminUsersHandler struct {
	users    UserLister
	profiles ProfileService
}

func NewAdminUsersHandler(users UserLister, profiles ProfileService) *AdminUsersHandler {
	return &AdminUsersHandler{
		users:    users,
		profiles: profiles,
	}
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (h *AdminUsersHandler) List(ctx *gin.Context) {
	limit := defaultPageSize

	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)

		if err != nil || n < 1 || n > maxPageSize {
			RespondBadRequest(ctx, "limit must be between 1 and 100", nil)
			return
		}

		limit = n
	}

	var (
		afterCreatedAt time.Time
		afterID        string
	)

	if raw := ctx.Query("cursor"); raw != "" {
		c, err := utils.DecodeUserCursor(raw)

		if err != nil {
			RespondBadRequest(ctx, "Invalid cursor", nil)
			return
		}

		afterCreatedAt = c.CreatedAt
		afterID = c.ID
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	users, hasMore, err := h.users.ListCursor(cctx, afterCreatedAt, afterID, limit)

	if err != nil {
		RespondInternal(ctx, "Could not list users")
		return
	}

	public := make([]user.Public, 0, len(users))
	for _, u := range users {
		public = append(public, u.Public())
	}

	var nextCursor *string

	if hasMore && len(users) > 0 {
		last := users[len(users)-1]
		encoded, err := utils.EncodeUserCursor(last.CreatedAt, last.ID)

		if err == nil {
			nextCursor = &encoded
		}
	}

	ctx.JSON(http.StatusOK, gin.H{
		"users":      public,
		"nextCursor": nextCursor,
	})
}

func (h *AdminUsersHandler) Get(ctx *gin.Context) {
	id := ctx.Param("id")

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	pub, err := h.profiles.Profile(cctx, id)

	if err != nil {
		if errors.Is(err, session.ErrUserNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		RespondInternal(ctx, "Could not load user")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": pub})
}
