package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/protocorn/launchway/internal/platform/secrets"
	"github.com/protocorn/launchway/modules/credentials/model"
	"github.com/protocorn/launchway/modules/credentials/ports"
)

// CredentialService encrypts and serves per-company portal logins
type CredentialService struct {
	repo   ports.CredentialRepository
	cipher *secrets.Cipher
}

// NewCredentialService creates a new credential service
func NewCredentialService(repo ports.CredentialRepository, cipher *secrets.Cipher) *CredentialService {
	return &CredentialService{repo: repo, cipher: cipher}
}

// Upsert stores the credential with the password encrypted at rest
func (s *CredentialService) Upsert(ctx context.Context, userID string, req *model.UpsertCredentialRequest) (*model.CompanyCredential, error) {
	host := normalizeHost(req.CompanyHost)
	if host == "" {
		return nil, fmt.Errorf("invalid company host %q", req.CompanyHost)
	}

	sealed, err := s.cipher.Encrypt(req.Password)
	if err != nil {
		return nil, fmt.Errorf("unable to encrypt credential: %w", err)
	}

	cred := &model.CompanyCredential{
		UserID:      userID,
		CompanyHost: host,
		Username:    strings.TrimSpace(req.Username),
		Password:    sealed,
	}
	if err := s.repo.Upsert(ctx, cred); err != nil {
		return nil, err
	}
	cred.Password = ""
	return cred, nil
}

// LookupForURL returns the decrypted credential matching a job URL's host,
// or ErrCredentialNotFound. Matching walks up the domain so a credential
// stored for "example.com" covers "jobs.example.com".
func (s *CredentialService) LookupForURL(ctx context.Context, userID, rawURL string) (*model.CompanyCredential, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return nil, model.ErrCredentialNotFound
	}

	host := strings.ToLower(u.Hostname())
	for host != "" {
		cred, err := s.repo.GetByHost(ctx, userID, host)
		if err == nil {
			plain, derr := s.cipher.Decrypt(cred.Password)
			if derr != nil {
				return nil, fmt.Errorf("unable to decrypt credential: %w", derr)
			}
			cred.Password = plain
			return cred, nil
		}
		idx := strings.Index(host, ".")
		if idx < 0 || !strings.Contains(host[idx+1:], ".") {
			break
		}
		host = host[idx+1:]
	}
	return nil, model.ErrCredentialNotFound
}

// Delete removes a stored credential
func (s *CredentialService) Delete(ctx context.Context, userID, host string) error {
	return s.repo.Delete(ctx, userID, normalizeHost(host))
}

func normalizeHost(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	raw = strings.TrimPrefix(raw, "https://")
	raw = strings.TrimPrefix(raw, "http://")
	raw = strings.TrimPrefix(raw, "www.")
	if idx := strings.IndexAny(raw, "/?#"); idx >= 0 {
		raw = raw[:idx]
	}
	return raw
}
