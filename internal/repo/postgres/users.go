package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/velomarket/deliveryhub/internal/domain/user"
	"github.com/velomarket/deliveryhub/internal/observability"
)

type UsersRepo struct {
	pool    *pgxpool.Pool
	metrics *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, metrics *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, metrics: metrics}
}

const userColumns = `id, email, password_hash, name, phone, role, created_at, updated_at`

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Name,
		&u.Phone,
		&u.Role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}

		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	err := r.metrics.ObserveDB("users.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO users (id, email, password_hash, name, phone, role, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			u.ID, u.Email, u.PasswordHash, u.Name, u.Phone, u.Role, u.CreatedAt, u.UpdatedAt,
		)

		var pgErr *pgconn.PgError

		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return user.ErrEmailTaken
		}

		return err
	})

	if err != nil {
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User

	err := r.metrics.ObserveDB("users.get_by_email", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
		return err
	})

	return u, err
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	var u user.User

	err := r.metrics.ObserveDB("users.get_by_id", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
		return err
	})

	return u, err
}

// ListCursor pages users newest-first using a (created_at, id) keyset. It
// fetches limit+1 rows to learn whether another page exists.
func (r *UsersRepo) ListCursor(ctx context.Context, afterCreatedAt time.Time, afterID string, limit int) ([]user.User, bool, error) {
	if limit <= 0 {
		limit = 20
	}

	var users []user.User
	hasMore := false

	err := r.metrics.ObserveDB("users.list", func() error {
		var (
			rows pgx.Rows
			err  error
		)

		if afterID == "" {
			rows, err = r.pool.Query(ctx,
				`SELECT `+userColumns+` FROM users
				 ORDER BY created_at DESC, id DESC
				 LIMIT $1`, limit+1)
		} else {
			rows, err = r.pool.Query(ctx,
				`SELECT `+userColumns+` FROM users
				 WHERE (created_at, id) < ($1, $2)
				 ORDER BY created_at DESC, id DESC
				 LIMIT $3`, afterCreatedAt, afterID, limit+1)
		}

		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return err
			}
			users = append(users, u)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, false, err
	}

	if len(users) > limit {
		users = users[:limit]
		hasMore = true
	}

	return users, hasMore, nil
}
