package models

import "time"

// GitHubCommit is one successful commit made through the editor. Rows are
// append-only and only ever counted inside a trailing window.
type GitHubCommit struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UUID      string    `gorm:"type:char(36);uniqueIndex" json:"uuid"`
	UserID    uint      `gorm:"not null;index:idx_github_commits_user_created,priority:1" json:"user_id"`
	Repo      string    `gorm:"type:varchar(200);not null" json:"repo"`
	FilePath  string    `gorm:"type:varchar(500);not null" json:"file_path"`
	CommitSHA string    `gorm:"type:varchar(64);default:''" json:"commit_sha"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_github_commits_user_created,priority:2" json:"created_at"`
}

func (GitHubCommit) TableName() string {
	return "github_commits"
}
