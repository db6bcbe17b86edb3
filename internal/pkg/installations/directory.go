package installations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/GitDataEdit/app/models"
	"github.com/ManuelReschke/GitDataEdit/app/repository"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/github"
)

const unknownLogin = "unknown"

var ErrAppNotConfigured = errors.New("github app is not configured")

// AppClient is the part of the GitHub App API the directory needs.
type AppClient interface {
	GetInstallation(ctx context.Context, installationID int64) (*github.Installation, error)
	ListInstallations(ctx context.Context) ([]github.Installation, error)
}

// Directory maps application users to the GitHub App installations they may act through.
type Directory struct {
	installations repository.InstallationRepository
	users         repository.UserRepository
	app           AppClient
}

// NewDirectory creates a directory. app may be nil, in which case only the
// stored bindings are available.
func NewDirectory(installations repository.InstallationRepository, users repository.UserRepository, app AppClient) *Directory {
	return &Directory{installations: installations, users: users, app: app}
}

// Upsert binds installationID to userID and returns the stored row.
// Repeated calls with the same id update the existing row.
func (d *Directory) Upsert(ctx context.Context, installationID int64, accountLogin, accountType string, userID uint) (*models.GitHubInstallation, error) {
	inst := &models.GitHubInstallation{
		InstallationID: installationID,
		AccountLogin:   accountLogin,
		AccountType:    accountType,
		UserID:         userID,
	}
	if err := d.installations.Upsert(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to upsert installation %d: %w", installationID, err)
	}
	// on conflict the row keeps its id, so return what is stored
	stored, err := d.installations.GetByInstallationID(ctx, installationID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload installation %d: %w", installationID, err)
	}
	return stored, nil
}

// ListForUser returns the user's installations in the order they were added.
func (d *Directory) ListForUser(ctx context.Context, userID uint) ([]models.GitHubInstallation, error) {
	list, err := d.installations.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list installations: %w", err)
	}
	return list, nil
}

// SaveInstallationByID looks up a freshly installed App installation and binds
// it to the user. A personal account installation also fills the user's
// GitHub username when none is known yet.
func (d *Directory) SaveInstallationByID(ctx context.Context, userID uint, installationID int64) (*models.GitHubInstallation, error) {
	if d.app == nil {
		return nil, ErrAppNotConfigured
	}
	remote, err := d.app.GetInstallation(ctx, installationID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch installation %d: %w", installationID, err)
	}

	login := remote.AccountLogin()
	if login == "" {
		login = unknownLogin
	}
	accountType := remote.AccountType()
	if accountType == "" {
		accountType = models.AccountTypeUser
	}

	inst, err := d.Upsert(ctx, installationID, login, accountType, userID)
	if err != nil {
		return nil, err
	}

	if d.users != nil && accountType == models.AccountTypeUser && login != unknownLogin {
		if err := d.users.SetGitHubUsernameIfEmpty(userID, login); err != nil {
			fiberlog.Warnf("[Installations] Failed to store GitHub username for user %d: %v", userID, err)
		}
	}
	fiberlog.Infof("[Installations] Saved installation %d (%s) for user %d", installationID, login, userID)
	return inst, nil
}

// SyncUserInstallations binds every App installation whose account login
// matches githubUsername (case-insensitive) to the user and returns the
// user's full installation list.
func (d *Directory) SyncUserInstallations(ctx context.Context, userID uint, githubUsername string) ([]models.GitHubInstallation, error) {
	if d.app == nil {
		return nil, ErrAppNotConfigured
	}
	username := strings.TrimSpace(githubUsername)
	if username == "" {
		return d.ListForUser(ctx, userID)
	}

	remote, err := d.app.ListInstallations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list app installations: %w", err)
	}
	for _, inst := range remote {
		if !strings.EqualFold(inst.AccountLogin(), username) {
			continue
		}
		if _, err := d.Upsert(ctx, inst.ID, inst.AccountLogin(), inst.AccountType(), userID); err != nil {
			return nil, err
		}
	}
	return d.ListForUser(ctx, userID)
}
