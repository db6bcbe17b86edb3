package models

import "time"

const (
	AccountTypeUser         = "User"
	AccountTypeOrganization = "Organization"
)

// GitHubInstallation binds one GitHub App installation to the application user
// allowed to act through it. InstallationID is the upsert key.
type GitHubInstallation struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	InstallationID int64     `gorm:"uniqueIndex;not null" json:"installation_id"`
	AccountLogin   string    `gorm:"type:varchar(100);not null" json:"account_login"`
	AccountType    string    `gorm:"type:varchar(20);not null;default:'User'" json:"account_type"`
	UserID         uint      `gorm:"not null;index" json:"user_id"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (GitHubInstallation) TableName() string {
	return "github_installations"
}

// NormalizeAccountType maps GitHub's account type onto the two supported values.
func NormalizeAccountType(t string) string {
	if t == AccountTypeOrganization {
		return AccountTypeOrganization
	}
	return AccountTypeUser
}
