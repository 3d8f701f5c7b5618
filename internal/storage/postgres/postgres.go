package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"invite_service/internal/config"
	"invite_service/internal/models"
	"invite_service/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	dsn := dsn(cfg)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

const userColumns = `id, email, name, college, branch, year, token, is_verified, token_created_at, created_at, updated_at`

func (r *PostgresRepo) SaveUser(ctx context.Context, u models.User) (models.User, error) {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users (email, name, college, branch, year, token)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + userColumns + `;
	`

	row := r.pool.QueryRow(ctx, query,
		NormalizeEmail(u.Email), u.Name, u.College, u.Branch, u.Year, u.Token,
	)

	saved, err := scanUser(row)
	if err != nil {
		if mapped := uniqueViolation(err); mapped != nil {
			return models.User{}, mapped
		}

		return models.User{}, fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	return saved, nil
}

func (r *PostgresRepo) UserByEmail(ctx context.Context, email string) (models.User, error) {
	const op = "storage.postgres.UserByEmail"

	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1;`

	u, err := scanUser(r.pool.QueryRow(ctx, query, NormalizeEmail(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func (r *PostgresRepo) UserByToken(ctx context.Context, token string) (models.User, error) {
	const op = "storage.postgres.UserByToken"

	query := `SELECT ` + userColumns + ` FROM users WHERE token = $1;`

	u, err := scanUser(r.pool.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func (r *PostgresRepo) UserByID(ctx context.Context, id int64) (models.User, error) {
	const op = "storage.postgres.UserByID"

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1;`

	u, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

// UpdateToken assigns a fresh token to the user and resets the verified
// flag. The token unique constraint still applies; callers retry on
// storage.ErrTokenTaken with a new candidate.
func (r *PostgresRepo) UpdateToken(ctx context.Context, userID int64, token string, createdAt time.Time) error {
	const op = "storage.postgres.UpdateToken"

	query := `
		UPDATE users
		SET token = $1, is_verified = FALSE, token_created_at = $2, updated_at = NOW()
		WHERE id = $3;
	`

	tag, err := r.pool.Exec(ctx, query, token, createdAt, userID)
	if err != nil {
		if mapped := uniqueViolation(err); mapped != nil {
			return mapped
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (r *PostgresRepo) SetVerified(ctx context.Context, userID int64) error {
	const op = "storage.postgres.SetVerified"

	query := `UPDATE users SET is_verified = TRUE, updated_at = NOW() WHERE id = $1;`

	if _, err := r.pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *PostgresRepo) DeleteUser(ctx context.Context, userID int64) error {
	const op = "storage.postgres.DeleteUser"

	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1;`, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (r *PostgresRepo) DeleteAllUsers(ctx context.Context) (int64, error) {
	const op = "storage.postgres.DeleteAllUsers"

	tag, err := r.pool.Exec(ctx, `DELETE FROM users;`)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

func (r *PostgresRepo) Users(ctx context.Context) ([]models.User, error) {
	const op = "storage.postgres.Users"

	query := `SELECT ` + userColumns + ` FROM users ORDER BY id;`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var users []models.User

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		users = append(users, u)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: %w", op, rows.Err())
	}

	return users, nil
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

// NormalizeEmail is the canonical email form used for storage and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.College,
		&u.Branch,
		&u.Year,
		&u.Token,
		&u.IsVerified,
		&u.TokenCreatedAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

// uniqueViolation maps a 23505 to the sentinel for the violated column,
// or returns nil when the error is something else.
func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil
	}

	switch pgErr.ConstraintName {
	case "users_token_key":
		return storage.ErrTokenTaken
	default:
		return storage.ErrEmailTaken
	}
}

func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
