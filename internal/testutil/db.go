package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/GitDataEdit/app/models"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/database"
)

// SetupTestDB opens an isolated in-memory SQLite database with every model migrated.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// A named shared-cache DSN keeps all pooled connections on the same in-memory database.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect test database: %v", err)
	}

	if err := db.AutoMigrate(database.Models()...); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err != nil {
			t.Logf("Warning: Failed to get underlying DB: %v", err)
			return
		}
		if err := sqlDB.Close(); err != nil {
			t.Logf("Warning: Failed to close test database: %v", err)
		}
	})

	return db
}

var fixtureSeq atomic.Int64

// UserOption customizes a fixture user before it is inserted.
type UserOption func(*models.User)

// WithGitHubUsername sets the GitHub login linked to the user.
func WithGitHubUsername(login string) UserOption {
	return func(u *models.User) {
		u.GitHubUsername = login
	}
}

// WithProSubscription gives the user an active Stripe price whose period ends at periodEnd.
func WithProSubscription(priceID string, periodEnd time.Time) UserOption {
	return func(u *models.User) {
		u.StripePriceID = priceID
		u.StripeCurrentPeriodEnd = &periodEnd
	}
}

// TestUser inserts a user fixture.
func TestUser(t *testing.T, db *gorm.DB, opts ...UserOption) *models.User {
	t.Helper()

	u := &models.User{
		Name:  "octocat",
		Email: fmt.Sprintf("octocat-%d@example.com", fixtureSeq.Add(1)),
		Role:  models.ROLE_USER,
	}
	for _, opt := range opts {
		opt(u)
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return u
}

// TestCommit inserts a commit event with an explicit creation time.
func TestCommit(t *testing.T, db *gorm.DB, userID uint, createdAt time.Time) *models.GitHubCommit {
	t.Helper()

	c := &models.GitHubCommit{
		UUID:      uuid.NewString(),
		UserID:    userID,
		Repo:      "octo/data",
		FilePath:  "config.json",
		CreatedAt: createdAt,
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("Failed to create test commit: %v", err)
	}
	return c
}
