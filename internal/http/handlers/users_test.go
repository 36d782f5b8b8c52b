package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/velomarket/deliveryhub/internal/auth"
	"github.com/velomarket/deliveryhub/internal/cache"
	"github.com/velomarket/deliveryhub/internal/domain/user"
	"github.com/velomarket/deliveryhub/internal/http/middlewares"
	"github.com/velomarket/deliveryhub/internal/session"
)

type fakeProfiles struct {
	fn    func(ctx context.Context, userID string) (user.Public, error)
	calls int
}

func (f *fakeProfiles) Profile(ctx context.Context, userID string) (user.Public, error) {
	f.calls++
	return f.fn(ctx, userID)
}

type fakeVerifier struct {
	fn func(token string) (*auth.Claims, error)
}

func (f *fakeVerifier) VerifyAccessToken(token string) (*auth.Claims, error) {
	return f.fn(token)
}

func meRouter(profiles ProfileService, profileCache *cache.Cache, verifier middlewares.TokenVerifier) *gin.Engine {
	r := gin.New()

	mw := middlewares.NewAuthMiddleware(verifier)
	h := NewUsersHandler(profiles, profileCache)

	r.GET("/users/me", mw.RequireAuth(), h.Me)

	return r
}

func okVerifier(userID string) *fakeVerifier {
	return &fakeVerifier{
		fn: func(token string) (*auth.Claims, error) {
			return &auth.Claims{UserID: userID, Email: "a@x.com", Role: user.RoleClient}, nil
		},
	}
}

func getMe(r *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

func TestMeReturnsCallerProfile(t *testing.T) {
	profiles := &fakeProfiles{
		fn: func(ctx context.Context, userID string) (user.Public, error) {
			if userID != "user-1" {
				t.Fatalf("expected the token's subject, got %q", userID)
			}
			return user.Public{ID: userID, Email: "a@x.com", Name: "Test User", Role: user.RoleClient}, nil
		},
	}

	w := getMe(meRouter(profiles, nil, okVerifier("user-1")), "Bearer good-token")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}

	var body struct {
		User user.Public `json:"user"`
	}

	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}

	if body.User.ID != "user-1" {
		t.Fatalf("unexpected user: %+v", body.User)
	}

	if strings.Contains(strings.ToLower(w.Body.String()), "password") {
		t.Fatalf("profile body leaks credential fields: %s", w.Body)
	}
}

func TestMeUsesProfileCache(t *testing.T) {
	profiles := &fakeProfiles{
		fn: func(ctx context.Context, userID string) (user.Public, error) {
			return user.Public{ID: userID, Email: "a@x.com"}, nil
		},
	}

	r := meRouter(profiles, cache.New(time.Minute), okVerifier("user-1"))

	getMe(r, "Bearer good-token")
	getMe(r, "Bearer good-token")

	if profiles.calls != 1 {
		t.Fatalf("expected one backend hit with a warm cache, got %d", profiles.calls)
	}
}

func TestMeUserGone(t *testing.T) {
	profiles := &fakeProfiles{
		fn: func(ctx context.Context, userID string) (user.Public, error) {
			return user.Public{}, session.ErrUserNotFound
		},
	}

	w := getMe(meRouter(profiles, nil, okVerifier("user-1")), "Bearer good-token")

	// a valid token for a since-deleted account
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body)
	}
}
