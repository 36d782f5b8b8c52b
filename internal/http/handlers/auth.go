package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/velomarket/deliveryhub/internal/config"
	"github.com/velomarket/deliveryhub/internal/session"
)

// Keep this small interface so tests can fake the service easily.
type SessionService interface {
	Register(ctx context.Context, in session.RegisterInput) (session.Session, error)
	Login(ctx context.Context, email, password string) (session.Session, error)
	Refresh(ctx context.Context, presented string) (session.Session, error)
	Logout(ctx context.Context, presented string) error
}

type AuthHandler struct {
	sessions SessionService
	cfg      config.Config
}

func NewAuthHandler(sessions SessionService, cfg config.Config) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		cfg:      cfg,
	}
}

type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
	Phone    string `json:"phone" binding:"omitempty,min=5,max=32"`
	Role     string `json:"role" binding:"omitempty,oneof=client store courier"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandler) SignUp(ctx *gin.Context) {
	var req SignUpRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := h.opTimeout(ctx, 5*time.Second)

	defer cancel()

	sess, err := h.sessions.Register(cctx, session.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
		Role:     req.Role,
	})

	if err != nil {
		if errors.Is(err, session.ErrEmailTaken) {
			RespondConflict(ctx, "email_taken", "Email is already in use.")
			return
		}

		if errors.Is(err, session.ErrInvalidRole) {
			RespondBadRequest(ctx, "Role is not allowed at registration", nil)
			return
		}

		RespondInternal(ctx, "Could not create user")
		return
	}

	h.setRefreshCookie(ctx, sess.RefreshToken, sess.RefreshExpiresAt)

	ctx.JSON(http.StatusCreated, sessionBody(sess))
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := h.opTimeout(ctx, 5*time.Second)

	defer cancel()

	sess, err := h.sessions.Login(cctx, req.Email, req.Password)

	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			RespondUnauthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
			return
		}

		RespondInternal(ctx, "Could not log in")
		return
	}

	h.setRefreshCookie(ctx, sess.RefreshToken, sess.RefreshExpiresAt)

	ctx.JSON(http.StatusOK, sessionBody(sess))
}

func (h *AuthHandler) Refresh(ctx *gin.Context) {
	raw := h.presentedToken(ctx)

	if raw == "" {
		RespondUnauthorized(ctx, "no_refresh", "Missing refresh token")
		return
	}

	cctx, cancel := h.opTimeout(ctx, 3*time.Second)

	defer cancel()

	sess, err := h.sessions.Refresh(cctx, raw)

	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) || errors.Is(err, session.ErrMissingToken) {
			// not-found and expired look identical here
			RespondForbidden(ctx, "invalid_refresh", "Invalid refresh token")
			return
		}

		RespondInternal(ctx, "Could not refresh session")
		return
	}

	h.setRefreshCookie(ctx, sess.RefreshToken, sess.RefreshExpiresAt)

	ctx.JSON(http.StatusOK, sessionBody(sess))
}

func (h *AuthHandler) Logout(ctx *gin.Context) {
	raw := h.presentedToken(ctx)

	if raw == "" {
		RespondBadRequest(ctx, "Missing refresh token", nil)
		return
	}

	cctx, cancel := h.opTimeout(ctx, 3*time.Second)

	defer cancel()

	err := h.sessions.Logout(cctx, raw)

	if err != nil && !errors.Is(err, session.ErrMissingToken) {
		RespondInternal(ctx, "Could not log out")
		return
	}

	// same response whether or not the token matched anything
	h.clearRefreshCookie(ctx)
	ctx.Status(http.StatusNoContent)
}

// Helper functions

func sessionBody(sess session.Session) gin.H {
	return gin.H{
		"accessToken":  sess.AccessToken,
		"refreshToken": sess.RefreshToken,
		"user":         sess.User,
	}
}

// presentedToken takes the body field first, then the cookie browsers carry.
func (h *AuthHandler) presentedToken(ctx *gin.Context) string {
	var req RefreshRequest

	if ctx.Request.Body != nil && ctx.Request.ContentLength > 0 {
		_ = ctx.ShouldBindJSON(&req)
	}

	if req.RefreshToken != "" {
		return req.RefreshToken
	}

	raw, err := ctx.Cookie(refreshCookieName)

	if err != nil {
		return ""
	}

	return raw
}

func (h *AuthHandler) opTimeout(ctx *gin.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), d)
}

const refreshCookieName = "refresh_token"

func (h *AuthHandler) setRefreshCookie(ctx *gin.Context, raw string, expiresAt time.Time) {
	secure := h.cfg.Env == "prod"

	maxAge := int(time.Until(expiresAt).Seconds())

	ctx.SetSameSite(http.SameSiteStrictMode)

	ctx.SetCookie(
		refreshCookieName,
		raw,
		maxAge,
		"/auth",
		"",
		secure,
		true, // HttpOnly.
	)
}

func (h *AuthHandler) clearRefreshCookie(ctx *gin.Context) {
	secure := h.cfg.Env == "prod"
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(
		refreshCookieName,
		"",
		-1,
		"/auth",
		"",
		secure,
		true,
	)
}
