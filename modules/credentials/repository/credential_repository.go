package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/protocorn/launchway/modules/credentials/model"
)

// CredentialRepository persists encrypted company credentials
type CredentialRepository struct {
	pool *pgxpool.Pool
}

// NewCredentialRepository creates a new credential repository
func NewCredentialRepository(pool *pgxpool.Pool) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

// Upsert stores one credential per (user, host). Password arrives already
// encrypted from the service layer.
func (r *CredentialRepository) Upsert(ctx context.Context, cred *model.CompanyCredential) error {
	now := time.Now().UTC()
	if cred.ID == "" {
		cred.ID = uuid.New().String()
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now

	query := `
		INSERT INTO company_credentials (id, user_id, company_host, username, password_encrypted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, company_host)
		DO UPDATE SET username = $4, password_encrypted = $5, updated_at = $7
	`
	_, err := r.pool.Exec(ctx, query,
		cred.ID, cred.UserID, cred.CompanyHost, cred.Username, cred.Password, cred.CreatedAt, cred.UpdatedAt,
	)
	return err
}

// GetByHost returns the credential for a user and portal host
func (r *CredentialRepository) GetByHost(ctx context.Context, userID, host string) (*model.CompanyCredential, error) {
	query := `
		SELECT id, user_id, company_host, username, password_encrypted, created_at, updated_at
		FROM company_credentials
		WHERE user_id = $1 AND company_host = $2
	`
	cred := &model.CompanyCredential{}
	err := r.pool.QueryRow(ctx, query, userID, host).Scan(
		&cred.ID, &cred.UserID, &cred.CompanyHost, &cred.Username, &cred.Password, &cred.CreatedAt, &cred.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrCredentialNotFound
		}
		return nil, err
	}
	return cred, nil
}

// Delete removes a stored credential
func (r *CredentialRepository) Delete(ctx context.Context, userID, host string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM company_credentials WHERE user_id = $1 AND company_host = $2`, userID, host)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrCredentialNotFound
	}
	return nil
}
