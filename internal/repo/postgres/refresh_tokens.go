package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/velomarket/deliveryhub/internal/domain/user"
	"github.com/velomarket/deliveryhub/internal/observability"
)

type RefreshTokensRepo struct {
	pool    *pgxpool.Pool
	metrics *observability.Prom
}

func NewRefreshTokensRepo(pool *pgxpool.Pool, metrics *observability.Prom) *RefreshTokensRepo {
	return &RefreshTokensRepo{pool: pool, metrics: metrics}
}

// Insert records a new token and trims the owner's list to maxPerUser
// entries, oldest first, in the same transaction.
func (r *RefreshTokensRepo) Insert(ctx context.Context, row user.RefreshToken, maxPerUser int) error {
	return r.metrics.ObserveDB("refresh.insert", func() error {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})

		if err != nil {
			return err
		}

		defer func() { _ = tx.Rollback(ctx) }()

		_, err = tx.Exec(ctx,
			`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
			 VALUES ($1,$2,$3,$4,$5)`,
			row.ID, row.UserID, row.TokenHash, row.ExpiresAt, row.CreatedAt,
		)

		if err != nil {
			return err
		}

		if err := trimUserTokens(ctx, tx, row.UserID, maxPerUser); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
}

// Rotate atomically consumes the token matching oldHash and records next in
// its place. The conditional DELETE is the race guard: of two requests
// presenting the same token, exactly one sees the row, the other gets
// ErrTokenNotFound. An expired match is still removed (lazy cleanup) but
// reported as ErrTokenExpired, and nothing new is issued for it.
func (r *RefreshTokensRepo) Rotate(ctx context.Context, oldHash string, next user.RefreshToken, maxPerUser int) (user.RefreshToken, error) {
	var consumed user.RefreshToken

	err := r.metrics.ObserveDB("refresh.rotate", func() error {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})

		if err != nil {
			return err
		}

		defer func() { _ = tx.Rollback(ctx) }()

		err = tx.QueryRow(ctx,
			`DELETE FROM refresh_tokens WHERE token_hash = $1
			 RETURNING id, user_id, token_hash, expires_at, created_at`,
			oldHash,
		).Scan(&consumed.ID, &consumed.UserID, &consumed.TokenHash, &consumed.ExpiresAt, &consumed.CreatedAt)

		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return user.ErrTokenNotFound
			}
			return err
		}

		if time.Now().UTC().After(consumed.ExpiresAt) {
			// keep the deletion of the stale row
			if err := tx.Commit(ctx); err != nil {
				return err
			}
			return user.ErrTokenExpired
		}

		next.UserID = consumed.UserID

		_, err = tx.Exec(ctx,
			`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
			 VALUES ($1,$2,$3,$4,$5)`,
			next.ID, next.UserID, next.TokenHash, next.ExpiresAt, next.CreatedAt,
		)

		if err != nil {
			return err
		}

		if err := trimUserTokens(ctx, tx, next.UserID, maxPerUser); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})

	if err != nil {
		return user.RefreshToken{}, err
	}

	return consumed, nil
}

// Delete removes any row matching hash. It reports success whether or not a
// match existed, so a logout response can never confirm token validity.
func (r *RefreshTokensRepo) Delete(ctx context.Context, hash string) error {
	return r.metrics.ObserveDB("refresh.delete", func() error {
		_, err := r.pool.Exec(ctx,
			`DELETE FROM refresh_tokens WHERE token_hash = $1`, hash)
		return err
	})
}

func (r *RefreshTokensRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var removed int64

	err := r.metrics.ObserveDB("refresh.delete_expired", func() error {
		tag, err := r.pool.Exec(ctx,
			`DELETE FROM refresh_tokens WHERE expires_at <= $1`, now)

		if err != nil {
			return err
		}

		removed = tag.RowsAffected()
		return nil
	})

	return removed, err
}

func (r *RefreshTokensRepo) Count(ctx context.Context) (int64, error) {
	var n int64

	err := r.metrics.ObserveDB("refresh.count", func() error {
		return r.pool.QueryRow(ctx, `SELECT count(*) FROM refresh_tokens`).Scan(&n)
	})

	return n, err
}

func trimUserTokens(ctx context.Context, tx pgx.Tx, userID string, maxPerUser int) error {
	if maxPerUser <= 0 {
		return nil
	}

	_, err := tx.Exec(ctx,
		`DELETE FROM refresh_tokens
		 WHERE user_id = $1 AND id NOT IN (
			SELECT id FROM refresh_tokens
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		 )`,
		userID, maxPerUser,
	)

	return err
}
