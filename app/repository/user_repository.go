package repository

import (
	"context"
	"strings"
	"time"

	"github.com/ManuelReschke/GitDataEdit/app/models"
	"gorm.io/gorm"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email address
func (r *userRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update updates an existing user
func (r *userRepository) Update(user *models.User) error {
	return r.db.Save(user).Error
}

func (r *userRepository) UpdateLastLogin(id uint, at time.Time) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).Update("last_login_at", at).Error
}

// SetGitHubIdentity stores the GitHub account the user signed in with.
func (r *userRepository) SetGitHubIdentity(id uint, githubID, githubUsername string) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"github_id":       githubID,
		"github_username": githubUsername,
	}).Error
}

// SetGitHubUsernameIfEmpty fills github_username only when it has not been set yet.
func (r *userRepository) SetGitHubUsernameIfEmpty(id uint, githubUsername string) error {
	if strings.TrimSpace(githubUsername) == "" {
		return nil
	}
	return r.db.Model(&models.User{}).
		Where("id = ? AND (github_username IS NULL OR github_username = '')", id).
		Update("github_username", githubUsername).Error
}

func (r *userRepository) GetSubscription(ctx context.Context, id uint) (*Subscription, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Select("id", "stripe_customer_id", "stripe_subscription_id", "stripe_price_id", "stripe_current_period_end").
		First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &Subscription{
		PriceID:          user.StripePriceID,
		SubscriptionID:   user.StripeSubscriptionID,
		CustomerID:       user.StripeCustomerID,
		CurrentPeriodEnd: user.StripeCurrentPeriodEnd,
	}, nil
}
