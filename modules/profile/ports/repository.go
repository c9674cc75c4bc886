package ports

import (
	"context"

	"github.com/protocorn/launchway/modules/profile/model"
)

// ProfileRepository defines the interface for profile data access
type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*model.ProfileView, error)
	Upsert(ctx context.Context, profile *model.ProfileView) error
}

// ResumeResolver copies the profile's resume blob into a session's sandbox
// home with owner-only permissions and returns the local path.
type ResumeResolver interface {
	Resolve(ctx context.Context, profile *model.ProfileView, sandboxHome string) (string, error)
}
