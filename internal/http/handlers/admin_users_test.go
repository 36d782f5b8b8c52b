package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/velomarket/deliveryhub/internal/domain/user"
	"github.com/velomarket/deliveryhub/internal/utils"
)

type fakeLister struct {
	fn func(ctx context.Context, afterCreatedAt time.Time, afterID string, limit int) ([]user.User, bool, error)
}

func (f *fakeLister) ListCursor(ctx context.Context, afterCreatedAt time.Time, afterID string, limit int) ([]user.User, bool, error) {
	return f.fn(ctx, afterCreatedAt, afterID, limit)
}

func adminRouter(lister UserLister) *gin.Engine {
	r := gin.New()
	h := NewAdminUsersHandler(lister, nil)
	r.GET("/admin/users", h.List)
	return r
}

func listUsers(r *gin.Engine, query string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/admin/users"+query, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type listResponse struct {
	Users      []user.Public `json:"users"`
	NextCursor *string       `json:"nextCursor"`
}

func TestListUsersFirstPage(t *testing.T) {
	base := time.Now().UTC().Truncate(time.Second)

	lister := &fakeLister{
		fn: func(ctx context.Context, afterCreatedAt time.Time, afterID string, limit int) ([]user.User, bool, error) {
			if !afterCreatedAt.IsZero() || afterID != "" {
				t.Fatalf("first page must not carry a cursor: %v %q", afterCreatedAt, afterID)
			}

			if limit != 2 {
				t.Fatalf("expected limit 2, got %d", limit)
			}

			return []user.User{
				{ID: "u2", Email: "b@x.com", CreatedAt: base},
				{ID: "u1", Email: "a@x.com", CreatedAt: base.Add(-time.Minute)},
			}, true, nil
		},
	}

	w := listUsers(adminRouter(lister), "?limit=2")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}

	var body listResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}

	if len(body.Users) != 2 || body.Users[0].ID != "u2" {
		t.Fatalf("unexpected page: %+v", body.Users)
	}

	if body.NextCursor == nil {
		t.Fatalf("expected a next cursor when more rows exist")
	}

	// the cursor points at the last row of this page
	c, err := utils.DecodeUserCursor(*body.NextCursor)
	if err != nil || c.ID != "u1" {
		t.Fatalf("bad cursor %v: %v", c, err)
	}
}

func TestListUsersLastPageHasNoCursor(t *testing.T) {
	lister := &fakeLister{
		fn: func(ctx context.Context, afterCreatedAt time.Time, afterID string, limit int) ([]user.User, bool, error) {
			return []user.User{{ID: "u1", Email: "a@x.com", CreatedAt: time.Now()}}, false, nil
		},
	}

	w := listUsers(adminRouter(lister), "")

	var body listResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}

	if body.NextCursor != nil {
		t.Fatalf("expected no cursor on the last page, got %q", *body.NextCursor)
	}
}

func TestListUsersValidation(t *testing.T) {
	lister := &fakeLister{
		fn: func(ctx context.Context, afterCreatedAt time.Time, afterID string, limit int) ([]user.User, bool, error) {
			t.Fatalf("lister must not be called on invalid input")
			return nil, false, nil
		},
	}

	r := adminRouter(lister)

	for _, query := range []string{
		"?limit=0",
		"?limit=101",
		"?limit=abc",
		"?cursor=@@@",
		fmt.Sprintf("?cursor=%s", "bm90LWEtY3Vyc29y"), // valid base64, junk payload
	} {
		if w := listUsers(r, query); w.Code != http.StatusBadRequest {
			t.Fatalf("query %q: expected 400, got %d", query, w.Code)
		}
	}
}
