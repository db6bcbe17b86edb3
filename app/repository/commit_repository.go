package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/GitDataEdit/app/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type commitRepository struct {
	db *gorm.DB
}

// NewCommitRepository creates a new commit ledger instance
func NewCommitRepository(db *gorm.DB) CommitRepository {
	return &commitRepository{db: db}
}

// Append records one successful commit. Rows are never updated afterwards.
func (r *commitRepository) Append(ctx context.Context, commit *models.GitHubCommit) error {
	if commit.UUID == "" {
		commit.UUID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(commit).Error
}

// CountSince counts the user's commits created at or after since.
func (r *commitRepository) CountSince(ctx context.Context, userID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.GitHubCommit{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&count).Error
	return count, err
}
