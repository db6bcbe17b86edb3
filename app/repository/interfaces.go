package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/GitDataEdit/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
	UpdateLastLogin(id uint, at time.Time) error
	SetGitHubIdentity(id uint, githubID, githubUsername string) error
	SetGitHubUsernameIfEmpty(id uint, githubUsername string) error
	GetSubscription(ctx context.Context, id uint) (*Subscription, error)
}

// InstallationRepository stores GitHub App installations keyed by installation id
type InstallationRepository interface {
	Upsert(ctx context.Context, installation *models.GitHubInstallation) error
	ListByUser(ctx context.Context, userID uint) ([]models.GitHubInstallation, error)
	GetByInstallationID(ctx context.Context, installationID int64) (*models.GitHubInstallation, error)
}

// CommitRepository is the append-only commit ledger
type CommitRepository interface {
	Append(ctx context.Context, commit *models.GitHubCommit) error
	CountSince(ctx context.Context, userID uint, since time.Time) (int64, error)
}

// Subscription holds the billing fields the plan is derived from
type Subscription struct {
	PriceID          string
	SubscriptionID   string
	CustomerID       string
	CurrentPeriodEnd *time.Time
}

// Repositories struct holds all repository instances
type Repositories struct {
	User         UserRepository
	Installation InstallationRepository
	Commit       CommitRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Installation: NewInstallationRepository(db),
		Commit:       NewCommitRepository(db),
	}
}
