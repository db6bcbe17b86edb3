package models

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	ROLE_USER  = "user"
	ROLE_ADMIN = "admin"
)

// LoginTokenTTL bounds how long an emailed sign-in link stays valid.
const LoginTokenTTL = 24 * time.Hour

type User struct {
	ID                     uint           `gorm:"primaryKey" json:"id"`
	Name                   string         `gorm:"type:varchar(150)" json:"name" validate:"max=150"`
	Email                  string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,max=200"`
	Role                   string         `gorm:"type:varchar(50);default:'user'" json:"role" validate:"oneof=user admin"`
	Image                  string         `gorm:"type:varchar(255);default:null" json:"image"`
	GitHubID               string         `gorm:"column:github_id;type:varchar(50);default:null;index" json:"github_id"`
	GitHubUsername         string         `gorm:"column:github_username;type:varchar(100);default:null" json:"github_username"`
	StripeCustomerID       string         `gorm:"type:varchar(191);default:null;index" json:"-"`
	StripeSubscriptionID   string         `gorm:"type:varchar(191);default:null;index" json:"-"`
	StripePriceID          string         `gorm:"type:varchar(191);default:null" json:"-"`
	StripeCurrentPeriodEnd *time.Time     `gorm:"type:timestamp;default:null" json:"-"`
	LoginTokenHash         string         `gorm:"type:varchar(100);default:null" json:"-"`
	LoginTokenSentAt       *time.Time     `gorm:"type:timestamp;default:null" json:"-"`
	LastLoginAt            *time.Time     `gorm:"type:timestamp;default:null" json:"last_login_at"`
	CreatedAt              time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt              gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

func NewUser(name, email string) (*User, error) {
	u := &User{
		Name:  name,
		Email: strings.ToLower(strings.TrimSpace(email)),
		Role:  ROLE_USER,
	}

	if err := u.Validate(); err != nil {
		return nil, err
	}

	return u, nil
}

// IssueLoginToken creates a one-time sign-in token. Only its bcrypt hash is kept
// on the struct; callers persist the user and mail the returned raw token.
func (u *User) IssueLoginToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	raw := hex.EncodeToString(b)

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	now := time.Now()
	u.LoginTokenHash = string(hash)
	u.LoginTokenSentAt = &now
	return raw, nil
}

// CheckLoginToken reports whether raw matches the pending token and has not expired.
func (u *User) CheckLoginToken(raw string, now time.Time) bool {
	if u.LoginTokenHash == "" || u.LoginTokenSentAt == nil || raw == "" {
		return false
	}
	if now.Sub(*u.LoginTokenSentAt) > LoginTokenTTL {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.LoginTokenHash), []byte(raw)) == nil
}

// ClearLoginToken invalidates the pending sign-in token.
func (u *User) ClearLoginToken() {
	u.LoginTokenHash = ""
	u.LoginTokenSentAt = nil
}

func (u *User) IsAdmin() bool {
	return u.Role == ROLE_ADMIN
}
