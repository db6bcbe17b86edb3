package billing

import (
	"context"
	"time"

	"github.com/ManuelReschke/GitDataEdit/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	GetUser(ctx context.Context, userID uint) (*models.User, error)
	FindUserByStripeSubscription(ctx context.Context, subscriptionID string) (*models.User, error)
	FindUserByStripeCustomer(ctx context.Context, customerID string) (*models.User, error)
	UpdateUserStripeFields(ctx context.Context, userID uint, fields map[string]interface{}) error
	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) FindUserByStripeSubscription(ctx context.Context, subscriptionID string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("stripe_subscription_id = ?", subscriptionID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) FindUserByStripeCustomer(ctx context.Context, customerID string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) UpdateUserStripeFields(ctx context.Context, userID uint, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(fields).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
