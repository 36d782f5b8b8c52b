package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/velomarket/deliveryhub/internal/auth"
	"github.com/velomarket/deliveryhub/internal/domain/user"
	"github.com/velomarket/deliveryhub/internal/notifications"
	"github.com/velomarket/deliveryhub/internal/observability"
	"github.com/velomarket/deliveryhub/internal/security"
)

type UserStore interface {
	Create(ctx context.Context, u user.User) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
}

type TokenStore interface {
	Insert(ctx context.Context, row user.RefreshToken, maxPerUser int) error
	Rotate(ctx context.Context, oldHash string, next user.RefreshToken, maxPerUser int) (user.RefreshToken, error)
	Delete(ctx context.Context, hash string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// Session is what a successful register/login/refresh hands back.
type Session struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             user.Public
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Phone    string
	Role     string
}

// Service orchestrates the credential lifecycle. Session state is implicit
// in the token set: a user is "logged in" on a device exactly while a live
// refresh token for it exists.
type Service struct {
	users     UserStore
	tokens    TokenStore
	jwt       *auth.Manager
	refresh   *auth.RefreshTokenSource
	hasher    *security.Hasher
	notifier  notifications.Notifier
	metrics   *observability.Prom
	log       *slog.Logger
	maxTokens int
}

func NewService(
	users UserStore,
	tokens TokenStore,
	jwtManager *auth.Manager,
	refresh *auth.RefreshTokenSource,
	hasher *security.Hasher,
	notifier notifications.Notifier,
	metrics *observability.Prom,
	log *slog.Logger,
	maxTokens int,
) *Service {
	return &Service{
		users:     users,
		tokens:    tokens,
		jwt:       jwtManager,
		refresh:   refresh,
		hasher:    hasher,
		notifier:  notifier,
		metrics:   metrics,
		log:       log,
		maxTokens: maxTokens,
	}
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))

	role := in.Role
	if role == "" {
		role = user.RoleClient
	}

	if !user.ValidRegistrationRole(role) {
		s.metrics.ObserveAuth("register", "rejected")
		return Session{}, ErrInvalidRole
	}

	// hashing happens here and nowhere else: the stored value is already a
	// hash on every later save
	hash, err := s.hasher.Hash(in.Password)

	if err != nil {
		s.metrics.ObserveAuth("register", "error")
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()

	u, err := s.users.Create(ctx, user.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Name:         in.Name,
		Phone:        in.Phone,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	})

	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			s.metrics.ObserveAuth("register", "rejected")
			return Session{}, ErrEmailTaken
		}

		s.metrics.ObserveAuth("register", "error")
		return Session{}, fmt.Errorf("create user: %w", err)
	}

	sess, err := s.issueSession(ctx, u)

	if err != nil {
		s.metrics.ObserveAuth("register", "error")
		return Session{}, err
	}

	s.metrics.ObserveAuth("register", "ok")
	return sess, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := s.users.GetByEmail(ctx, email)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.metrics.ObserveAuth("login", "rejected")
			return Session{}, ErrInvalidCredentials
		}

		s.metrics.ObserveAuth("login", "error")
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}

	if !s.hasher.Verify(u.PasswordHash, password) {
		// same error as unknown email; callers cannot tell which check failed
		s.metrics.ObserveAuth("login", "rejected")
		return Session{}, ErrInvalidCredentials
	}

	sess, err := s.issueSession(ctx, u)

	if err != nil {
		s.metrics.ObserveAuth("login", "error")
		return Session{}, err
	}

	if s.notifier != nil {
		if err := s.notifier.SendLoginAlert(ctx, notifications.LoginAlertInput{
			Email: u.Email,
			Name:  u.Name,
		}); err != nil {
			// best effort only
			s.log.WarnContext(ctx, "login alert failed", "err", err)
		}
	}

	s.metrics.ObserveAuth("login", "ok")
	return sess, nil
}

// Refresh rotates the presented token: the old value is consumed and a new
// pair is issued in one store transaction, so a replayed token can never
// succeed twice and a cancelled request can never leave a session half
// rotated.
func (s *Service) Refresh(ctx context.Context, presented string) (Session, error) {
	if strings.TrimSpace(presented) == "" {
		s.metrics.ObserveAuth("refresh", "rejected")
		return Session{}, ErrMissingToken
	}

	raw, hash, expiresAt, err := s.refresh.New()

	if err != nil {
		s.metrics.ObserveAuth("refresh", "error")
		return Session{}, fmt.Errorf("generate refresh token: %w", err)
	}

	now := time.Now().UTC()

	consumed, err := s.tokens.Rotate(ctx, s.refresh.Hash(presented), user.RefreshToken{
		ID:        uuid.NewString(),
		TokenHash: hash,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}, s.maxTokens)

	if err != nil {
		if errors.Is(err, user.ErrTokenNotFound) || errors.Is(err, user.ErrTokenExpired) {
			s.metrics.ObserveAuth("refresh", "rejected")
			return Session{}, ErrInvalidRefreshToken
		}

		s.metrics.ObserveAuth("refresh", "error")
		return Session{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	u, err := s.users.GetByID(ctx, consumed.UserID)

	if err != nil {
		s.metrics.ObserveAuth("refresh", "error")
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}

	accessToken, err := s.jwt.GenerateAccessToken(u.ID, u.Email, u.Role)

	if err != nil {
		s.metrics.ObserveAuth("refresh", "error")
		return Session{}, fmt.Errorf("sign access token: %w", err)
	}

	s.metrics.ObserveAuth("refresh", "ok")

	return Session{
		AccessToken:      accessToken,
		RefreshToken:     raw,
		RefreshExpiresAt: expiresAt,
		User:             u.Public(),
	}, nil
}

// Logout removes the presented token from whichever user holds it. The
// response is identical whether or not the token ever existed.
func (s *Service) Logout(ctx context.Context, presented string) error {
	if strings.TrimSpace(presented) == "" {
		s.metrics.ObserveAuth("logout", "rejected")
		return ErrMissingToken
	}

	if err := s.tokens.Delete(ctx, s.refresh.Hash(presented)); err != nil {
		s.metrics.ObserveAuth("logout", "error")
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	s.metrics.ObserveAuth("logout", "ok")
	return nil
}

func (s *Service) Profile(ctx context.Context, userID string) (user.Public, error) {
	u, err := s.users.GetByID(ctx, userID)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.Public{}, ErrUserNotFound
		}

		return user.Public{}, fmt.Errorf("lookup user: %w", err)
	}

	return u.Public(), nil
}

func (s *Service) issueSession(ctx context.Context, u user.User) (Session, error) {
	accessToken, err := s.jwt.GenerateAccessToken(u.ID, u.Email, u.Role)

	if err != nil {
		return Session{}, fmt.Errorf("sign access token: %w", err)
	}

	raw, hash, expiresAt, err := s.refresh.New()

	if err != nil {
		return Session{}, fmt.Errorf("generate refresh token: %w", err)
	}

	err = s.tokens.Insert(ctx, user.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		TokenHash: hash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}, s.maxTokens)

	if err != nil {
		return Session{}, fmt.Errorf("store refresh token: %w", err)
	}

	return Session{
		AccessToken:      accessToken,
		RefreshToken:     raw,
		RefreshExpiresAt: expiresAt,
		User:             u.Public(),
	}, nil
}
