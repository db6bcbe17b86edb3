package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/GitDataEdit/app/models"
	"github.com/ManuelReschke/GitDataEdit/internal/testutil"
)

func TestInstallationUpsertRebindsExistingInstallation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewInstallationRepository(db)
	ctx := context.Background()

	alice := testutil.TestUser(t, db)
	bob := testutil.TestUser(t, db)

	require.NoError(t, repo.Upsert(ctx, &models.GitHubInstallation{
		InstallationID: 42,
		AccountLogin:   "octo-org",
		AccountType:    "Organization",
		UserID:         alice.ID,
	}))
	require.NoError(t, repo.Upsert(ctx, &models.GitHubInstallation{
		InstallationID: 42,
		AccountLogin:   "octo-org-renamed",
		AccountType:    "Bot",
		UserID:         bob.ID,
	}))

	var count int64
	require.NoError(t, db.Model(&models.GitHubInstallation{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	got, err := repo.GetByInstallationID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, got.UserID)
	assert.Equal(t, "octo-org-renamed", got.AccountLogin)
	assert.Equal(t, models.AccountTypeUser, got.AccountType)

	aliceInstallations, err := repo.ListByUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, aliceInstallations)
}

func TestInstallationListByUserKeepsInsertionOrder(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewInstallationRepository(db)
	ctx := context.Background()
	user := testutil.TestUser(t, db)

	for _, id := range []int64{300, 100, 200} {
		require.NoError(t, repo.Upsert(ctx, &models.GitHubInstallation{
			InstallationID: id,
			AccountLogin:   "octocat",
			UserID:         user.ID,
		}))
	}

	list, err := repo.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, int64(300), list[0].InstallationID)
	assert.Equal(t, int64(100), list[1].InstallationID)
	assert.Equal(t, int64(200), list[2].InstallationID)
}

func TestCommitCountSinceUsesWindowStart(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewCommitRepository(db)
	ctx := context.Background()
	user := testutil.TestUser(t, db)
	other := testutil.TestUser(t, db)

	now := time.Now().UTC().Truncate(time.Second)
	since := now.Add(-30 * 24 * time.Hour)

	testutil.TestCommit(t, db, user.ID, since.Add(-time.Hour))
	testutil.TestCommit(t, db, user.ID, since.Add(time.Hour))
	testutil.TestCommit(t, db, user.ID, now.Add(-time.Minute))
	testutil.TestCommit(t, db, other.ID, now.Add(-time.Minute))

	count, err := repo.CountSince(ctx, user.ID, since)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestCommitAppendAssignsUUID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewCommitRepository(db)
	user := testutil.TestUser(t, db)

	commit := &models.GitHubCommit{UserID: user.ID, Repo: "octo/data", FilePath: "a.json"}
	require.NoError(t, repo.Append(context.Background(), commit))
	assert.NotEmpty(t, commit.UUID)
	assert.NotZero(t, commit.ID)

	count, err := repo.CountSince(context.Background(), user.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestUserGitHubUsernameOnlyFilledWhenEmpty(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewUserRepository(db)

	blank := testutil.TestUser(t, db)
	linked := testutil.TestUser(t, db, testutil.WithGitHubUsername("original"))

	require.NoError(t, repo.SetGitHubUsernameIfEmpty(blank.ID, "octocat"))
	require.NoError(t, repo.SetGitHubUsernameIfEmpty(linked.ID, "octocat"))

	got, err := repo.GetByID(blank.ID)
	require.NoError(t, err)
	assert.Equal(t, "octocat", got.GitHubUsername)

	got, err = repo.GetByID(linked.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", got.GitHubUsername)
}

func TestUserGetSubscription(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewUserRepository(db)
	end := time.Now().Add(72 * time.Hour).UTC().Truncate(time.Second)
	user := testutil.TestUser(t, db, testutil.WithProSubscription("price_pro_monthly", end))

	sub, err := repo.GetSubscription(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "price_pro_monthly", sub.PriceID)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.True(t, sub.CurrentPeriodEnd.Equal(end))
}
