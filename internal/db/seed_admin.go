package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/velomarket/deliveryhub/internal/config"
	"github.com/velomarket/deliveryhub/internal/domain/user"
	"github.com/velomarket/deliveryhub/internal/security"
)

// EnsureAdminUser seeds the one admin account from config. Admins cannot be
// created through registration, so this is the only path that writes the
// admin role.
func EnsureAdminUser(ctx context.Context, pool *pgxpool.Pool, hasher *security.Hasher, cfg config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	email := strings.ToLower(cfg.AdminEmail)

	var dummy string

	err := pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&dummy)

	if err == nil {
		return nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := hasher.Hash(cfg.AdminPassword)

	if err != nil {
		return err
	}

	now := time.Now().UTC()

	u := user.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Name:         cfg.AdminName,
		Role:         cfg.AdminRole,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, name, phone, role, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
		u.ID, u.Email, u.PasswordHash, u.Name, u.Phone, u.Role, u.CreatedAt, u.UpdatedAt,
	)

	return err
}
