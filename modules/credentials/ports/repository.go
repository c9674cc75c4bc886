package ports

import (
	"context"

	"github.com/protocorn/launchway/modules/credentials/model"
)

// CredentialRepository defines the interface for credential data access
type CredentialRepository interface {
	Upsert(ctx context.Context, cred *model.CompanyCredential) error
	GetByHost(ctx context.Context, userID, host string) (*model.CompanyCredential, error)
	Delete(ctx context.Context, userID, host string) error
}
