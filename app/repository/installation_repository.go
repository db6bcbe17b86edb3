package repository

import (
	"context"

	"github.com/ManuelReschke/GitDataEdit/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type installationRepository struct {
	db *gorm.DB
}

// NewInstallationRepository creates a new installation repository instance
func NewInstallationRepository(db *gorm.DB) InstallationRepository {
	return &installationRepository{db: db}
}

// Upsert inserts the installation or, when the installation id is already
// known, rebinds it to the given user and refreshes the account fields.
func (r *installationRepository) Upsert(ctx context.Context, installation *models.GitHubInstallation) error {
	installation.AccountType = models.NormalizeAccountType(installation.AccountType)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "installation_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"account_login", "account_type", "user_id", "updated_at"}),
	}).Create(installation).Error
}

// ListByUser returns the user's installations in insertion order.
func (r *installationRepository) ListByUser(ctx context.Context, userID uint) ([]models.GitHubInstallation, error) {
	var installations []models.GitHubInstallation
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&installations).Error
	return installations, err
}

func (r *installationRepository) GetByInstallationID(ctx context.Context, installationID int64) (*models.GitHubInstallation, error) {
	var installation models.GitHubInstallation
	err := r.db.WithContext(ctx).Where("installation_id = ?", installationID).First(&installation).Error
	if err != nil {
		return nil, err
	}
	return &installation, nil
}
