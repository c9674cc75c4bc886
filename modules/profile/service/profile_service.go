package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/protocorn/launchway/internal/platform/logger"
	"github.com/protocorn/launchway/internal/platform/storage"
	"github.com/protocorn/launchway/modules/profile/model"
	"github.com/protocorn/launchway/modules/profile/ports"
	"go.uber.org/zap"
)

// ProfileService reads profiles and resolves resume blobs into sandboxes
type ProfileService struct {
	repo ports.ProfileRepository
	s3   *storage.S3Client
	log  *logger.Logger
}

// NewProfileService creates a new profile service
func NewProfileService(repo ports.ProfileRepository, s3 *storage.S3Client, log *logger.Logger) *ProfileService {
	return &ProfileService{repo: repo, s3: s3, log: log}
}

// Get returns the user's profile view
func (s *ProfileService) Get(ctx context.Context, userID string) (*model.ProfileView, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// Resolve copies the resume blob into sandboxHome with owner-only
// permissions and returns the local path. Implements ports.ResumeResolver.
func (s *ProfileService) Resolve(ctx context.Context, profile *model.ProfileView, sandboxHome string) (string, error) {
	if profile.ResumeBlobRef == "" {
		return "", model.ErrNoResume
	}
	if s.s3 == nil {
		return "", fmt.Errorf("resume storage is not configured")
	}

	body, err := s.s3.DownloadObject(ctx, profile.ResumeBlobRef)
	if err != nil {
		return "", fmt.Errorf("resume download failed: %w", err)
	}
	defer body.Close()

	name := filepath.Base(profile.ResumeBlobRef)
	if !strings.Contains(name, ".") {
		name = "resume.pdf"
	}
	dest := filepath.Join(sandboxHome, name)

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("unable to create resume file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("resume copy failed: %w", err)
	}

	s.log.Info("resume injected into sandbox",
		zap.String("user_id", profile.UserID),
		zap.String("path", dest),
	)
	return dest, nil
}
