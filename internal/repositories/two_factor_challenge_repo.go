package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/libgate/internal/database"
	"github.com/BradenHooton/libgate/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TwoFactorChallengeRepository stores emailed second-factor challenges
type TwoFactorChallengeRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewTwoFactorChallengeRepository(db *database.DB) *TwoFactorChallengeRepository {
	return &TwoFactorChallengeRepository{db: db, pool: db.Pool}
}

const challengeColumns = `id, user_id, secret_encrypted, secret_nonce, issued_at, expires_at, used_at, failed_attempts`

func scanChallengeRow(row rowScanner) (*models.TwoFactorChallenge, error) {
	var c models.TwoFactorChallenge
	err := row.Scan(
		&c.ID, &c.UserID, &c.SecretEncrypted, &c.SecretNonce,
		&c.IssuedAt, &c.ExpiresAt, &c.UsedAt, &c.FailedAttempts,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &c, nil
}

// Create stores a new challenge and closes any earlier open challenge for the
// same user, so only the newest code is accepted.
func (r *TwoFactorChallengeRepository) Create(ctx context.Context, c *models.TwoFactorChallenge) (*models.TwoFactorChallenge, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	var created *models.TwoFactorChallenge
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE two_factor_challenges SET used_at = NOW() WHERE user_id = $1 AND used_at IS NULL`,
			c.UserID,
		); err != nil {
			return database.MapPostgresError(err)
		}

		query := `
			INSERT INTO two_factor_challenges (id, user_id, secret_encrypted, secret_nonce, issued_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING ` + challengeColumns

		var err error
		created, err = scanChallengeRow(tx.QueryRow(ctx, query,
			c.ID, c.UserID, c.SecretEncrypted, c.SecretNonce, c.IssuedAt, c.ExpiresAt,
		))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}
	return created, nil
}

// LatestOpen returns the user's newest unused challenge, expired or not.
func (r *TwoFactorChallengeRepository) LatestOpen(ctx context.Context, userID string) (*models.TwoFactorChallenge, error) {
	query := `
		SELECT ` + challengeColumns + `
		FROM two_factor_challenges
		WHERE user_id = $1 AND used_at IS NULL
		ORDER BY issued_at DESC
		LIMIT 1
	`
	return scanChallengeRow(r.pool.QueryRow(ctx, query, userID))
}

// IncrementFailures bumps the failure counter and returns the new value.
func (r *TwoFactorChallengeRepository) IncrementFailures(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE two_factor_challenges SET failed_attempts = failed_attempts + 1
		WHERE id = $1
		RETURNING failed_attempts
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, id).Scan(&count); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

// MarkUsed closes a challenge. It returns models.ErrNotFound if the challenge
// was already used, which makes a code single use under concurrent verifies.
func (r *TwoFactorChallengeRepository) MarkUsed(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE two_factor_challenges SET used_at = NOW() WHERE id = $1 AND used_at IS NULL`,
		id,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// CleanupExpired deletes challenges that expired before the cutoff.
func (r *TwoFactorChallengeRepository) CleanupExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM two_factor_challenges WHERE expires_at < $1`, before)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
