package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/velomarket/deliveryhub/internal/auth"
	"github.com/velomarket/deliveryhub/internal/domain/user"
	"github.com/velomarket/deliveryhub/internal/notifications"
	"github.com/velomarket/deliveryhub/internal/repo/memory"
	"github.com/velomarket/deliveryhub/internal/security"
	"github.com/velomarket/deliveryhub/internal/session"
)

type fakeNotifier struct {
	alerts []notifications.LoginAlertInput
}

func (f *fakeNotifier) SendLoginAlert(ctx context.Context, in notifications.LoginAlertInput) error {
	f.alerts = append(f.alerts, in)
	return nil
}

func newTestService(t *testing.T) (*session.Service, *memory.CredentialsRepo, *fakeNotifier) {
	t.Helper()

	repo := memory.NewCredentialsRepo()
	notifier := &fakeNotifier{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := session.NewService(
		repo,
		repo,
		auth.NewManager("test-secret", 15*time.Minute),
		auth.NewRefreshTokenSource("test-secret", 7*24*time.Hour),
		security.NewHasher(bcrypt.MinCost),
		notifier,
		nil,
		log,
		5,
	)

	return svc, repo, notifier
}

func register(t *testing.T, svc *session.Service, email string) session.Session {
	t.Helper()

	sess, err := svc.Register(context.Background(), session.RegisterInput{
		Email:    email,
		Password: "secret123",
		Name:     "Test User",
		Phone:    "+1234567",
	})

	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	return sess
}

func TestRegisterIssuesTokenPair(t *testing.T) {
	svc, _, _ := newTestService(t)

	sess := register(t, svc, "A@X.com")

	if sess.AccessToken == "" || sess.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", sess)
	}

	// email is normalized to lowercase
	if sess.User.Email != "a@x.com" {
		t.Fatalf("expected lowercased email, got %q", sess.User.Email)
	}

	if sess.User.Role != user.RoleClient {
		t.Fatalf("expected default role client, got %q", sess.User.Role)
	}
}

func TestRegisterConflictOnDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(t)

	register(t, svc, "a@x.com")

	_, err := svc.Register(context.Background(), session.RegisterInput{
		Email:    "A@x.com",
		Password: "secret123",
		Name:     "Other",
	})

	if !errors.Is(err, session.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestLoginAfterRegisterIssuesFreshRefreshToken(t *testing.T) {
	svc, _, notifier := newTestService(t)

	first := register(t, svc, "a@x.com")

	second, err := svc.Login(context.Background(), "a@x.com", "secret123")

	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if second.RefreshToken == first.RefreshToken {
		t.Fatalf("login must issue a refresh token distinct from registration")
	}

	if len(notifier.alerts) != 1 || notifier.alerts[0].Email != "a@x.com" {
		t.Fatalf("expected one login alert, got %+v", notifier.alerts)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	svc, _, _ := newTestService(t)

	register(t, svc, "a@x.com")

	_, wrongPass := svc.Login(context.Background(), "a@x.com", "wrong-password")
	_, noUser := svc.Login(context.Background(), "nobody@x.com", "secret123")

	if !errors.Is(wrongPass, session.ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", wrongPass)
	}

	if !errors.Is(noUser, session.ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", noUser)
	}

	// the two failures must be the same value so responses stay uniform
	if wrongPass.Error() != noUser.Error() {
		t.Fatalf("login failures leak which check failed: %q vs %q", wrongPass, noUser)
	}
}

func TestRefreshRotatesAndRejectsReplay(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first := register(t, svc, "a@x.com")

	renewed, err := svc.Refresh(ctx, first.RefreshToken)

	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	if renewed.RefreshToken == first.RefreshToken {
		t.Fatalf("refresh must rotate the token")
	}

	if renewed.AccessToken == "" {
		t.Fatalf("refresh must issue a new access token")
	}

	// the rotated-away token can never validate again
	if _, err := svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, session.ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken on replay, got %v", err)
	}

	// the replacement still works
	if _, err := svc.Refresh(ctx, renewed.RefreshToken); err != nil {
		t.Fatalf("refresh with rotated token failed: %v", err)
	}
}

func TestRefreshRejectsMissingAndUnknownTokens(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Refresh(ctx, ""); !errors.Is(err, session.ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}

	if _, err := svc.Refresh(ctx, "deadbeef"); !errors.Is(err, session.ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
}

func TestRefreshRejectsExpiredTokenAndCleansUp(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	sess := register(t, svc, "a@x.com")

	// plant an expired entry alongside the live one
	src := auth.NewRefreshTokenSource("test-secret", 7*24*time.Hour)
	now := time.Now().UTC()

	err := repo.Insert(ctx, user.RefreshToken{
		ID:        "stale",
		UserID:    sess.User.ID,
		TokenHash: src.Hash("stale-token"),
		ExpiresAt: now.Add(-time.Minute),
		CreatedAt: now.Add(-8 * 24 * time.Hour),
	}, 5)

	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if _, err := svc.Refresh(ctx, "stale-token"); !errors.Is(err, session.ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken for expired token, got %v", err)
	}

	// the stale row was removed on use
	for _, row := range repo.TokensForUser(sess.User.ID) {
		if row.ID == "stale" {
			t.Fatalf("expired entry should have been removed on use")
		}
	}
}

func TestLogoutRemovesOnlyThatSession(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	register(t, svc, "a@x.com")

	deviceA, err := svc.Login(ctx, "a@x.com", "secret123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	deviceB, err := svc.Login(ctx, "a@x.com", "secret123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := svc.Logout(ctx, deviceA.RefreshToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}

	if _, err := svc.Refresh(ctx, deviceA.RefreshToken); !errors.Is(err, session.ErrInvalidRefreshToken) {
		t.Fatalf("logged-out token should no longer refresh, got %v", err)
	}

	if _, err := svc.Refresh(ctx, deviceB.RefreshToken); err != nil {
		t.Fatalf("other device's session should survive logout: %v", err)
	}
}

func TestLogoutIsIdempotentAndNonRevealing(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	// a token that was never issued logs out "successfully"
	if err := svc.Logout(ctx, "never-issued"); err != nil {
		t.Fatalf("logout of unknown token must succeed, got %v", err)
	}

	sess := register(t, svc, "a@x.com")

	if err := svc.Logout(ctx, sess.RefreshToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}

	// second logout of the same token is indistinguishable from the first
	if err := svc.Logout(ctx, sess.RefreshToken); err != nil {
		t.Fatalf("repeated logout must succeed, got %v", err)
	}
}

func TestLogoutRequiresAToken(t *testing.T) {
	svc, _, _ := newTestService(t)

	if err := svc.Logout(context.Background(), ""); !errors.Is(err, session.ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestTokenListCappedAtFiveOldestEvicted(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	first := register(t, svc, "a@x.com")

	// five more logins on top of the registration session
	for i := 0; i < 5; i++ {
		if _, err := svc.Login(ctx, "a@x.com", "secret123"); err != nil {
			t.Fatalf("login %d failed: %v", i, err)
		}
	}

	rows := repo.TokensForUser(first.User.ID)

	if len(rows) != 5 {
		t.Fatalf("expected the list capped at 5, got %d", len(rows))
	}

	// the registration token was the oldest and must be gone
	if _, err := svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, session.ErrInvalidRefreshToken) {
		t.Fatalf("evicted token should be invalid, got %v", err)
	}
}

func TestProfileNeverExposesPasswordHash(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sess := register(t, svc, "a@x.com")

	pub, err := svc.Profile(ctx, sess.User.ID)

	if err != nil {
		t.Fatalf("profile failed: %v", err)
	}

	if pub.ID != sess.User.ID || pub.Email != "a@x.com" {
		t.Fatalf("unexpected projection: %+v", pub)
	}

	body, err := json.Marshal(pub)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	if strings.Contains(strings.ToLower(string(body)), "password") ||
		strings.Contains(string(body), "$2") {
		t.Fatalf("projection leaks credential material: %s", body)
	}
}

func TestProfileUnknownID(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.Profile(context.Background(), "no-such-id"); !errors.Is(err, session.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRegisterRejectsAdminRole(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Register(context.Background(), session.RegisterInput{
		Email:    "a@x.com",
		Password: "secret123",
		Name:     "Sneaky",
		Role:     user.RoleAdmin,
	})

	if !errors.Is(err, session.ErrInvalidRole) {
		t.Fatalf("registration must not mint admin accounts, got %v", err)
	}
}
