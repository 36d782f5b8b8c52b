package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/velomarket/deliveryhub/internal/domain/user"
)

// CredentialsRepo is an in-memory stand-in for the Postgres store, used by
// unit tests and local development. One mutex covers both maps so the
// rotation path has the same at-most-one-winner property as the SQL
// conditional delete.
type CredentialsRepo struct {
	mu      sync.Mutex
	users   map[string]user.User         // by id
	byEmail map[string]string            // email -> id
	tokens  map[string]user.RefreshToken // by token hash
}

func NewCredentialsRepo() *CredentialsRepo {
	return &CredentialsRepo{
		users:   make(map[string]user.User),
		byEmail: make(map[string]string),
		tokens:  make(map[string]user.RefreshToken),
	}
}

func (r *CredentialsRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[u.Email]; ok {
		return user.User{}, user.ErrEmailTaken
	}

	r.users[u.ID] = u
	r.byEmail[u.Email] = u.ID
	return u, nil
}

func (r *CredentialsRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[email]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return r.users[id], nil
}

func (r *CredentialsRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (r *CredentialsRepo) ListCursor(ctx context.Context, afterCreatedAt time.Time, afterID string, limit int) ([]user.User, bool, error) {
	if limit <= 0 {
		limit = 20
	}

	r.mu.Lock()
	all := make([]user.User, 0, len(r.users))
	for _, u := range r.users {
		all = append(all, u)
	}
	r.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	if afterID != "" {
		cut := len(all)
		for i, u := range all {
			if u.CreatedAt.Before(afterCreatedAt) ||
				(u.CreatedAt.Equal(afterCreatedAt) && u.ID < afterID) {
				cut = i
				break
			}
		}
		all = all[cut:]
	}

	hasMore := len(all) > limit
	if hasMore {
		all = all[:limit]
	}

	return all, hasMore, nil
}

func (r *CredentialsRepo) Insert(ctx context.Context, row user.RefreshToken, maxPerUser int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tokens[row.TokenHash] = row
	r.trimLocked(row.UserID, maxPerUser)
	return nil
}

func (r *CredentialsRepo) Rotate(ctx context.Context, oldHash string, next user.RefreshToken, maxPerUser int) (user.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	consumed, ok := r.tokens[oldHash]
	if !ok {
		return user.RefreshToken{}, user.ErrTokenNotFound
	}

	delete(r.tokens, oldHash)

	if time.Now().UTC().After(consumed.ExpiresAt) {
		return user.RefreshToken{}, user.ErrTokenExpired
	}

	next.UserID = consumed.UserID
	r.tokens[next.TokenHash] = next
	r.trimLocked(next.UserID, maxPerUser)
	return consumed, nil
}

func (r *CredentialsRepo) Delete(ctx context.Context, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tokens, hash)
	return nil
}

func (r *CredentialsRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for hash, row := range r.tokens {
		if !row.ExpiresAt.After(now) {
			delete(r.tokens, hash)
			removed++
		}
	}
	return removed, nil
}

func (r *CredentialsRepo) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return int64(len(r.tokens)), nil
}

// TokensForUser returns a user's entries ordered oldest first. Test helper.
func (r *CredentialsRepo) TokensForUser(userID string) []user.RefreshToken {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rows []user.RefreshToken
	for _, row := range r.tokens {
		if row.UserID == userID {
			rows = append(rows, row)
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].ID < rows[j].ID
	})

	return rows
}

func (r *CredentialsRepo) trimLocked(userID string, maxPerUser int) {
	if maxPerUser <= 0 {
		return
	}

	var rows []user.RefreshToken
	for _, row := range r.tokens {
		if row.UserID == userID {
			rows = append(rows, row)
		}
	}

	if len(rows) <= maxPerUser {
		return
	}

	// evict oldest first
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].ID < rows[j].ID
	})

	for _, row := range rows[:len(rows)-maxPerUser] {
		delete(r.tokens, row.TokenHash)
	}
}
