package controllers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/markbates/goth"
	gothfiber "github.com/shareed2k/goth_fiber"
	"gorm.io/gorm"

	"github.com/ManuelReschke/GitDataEdit/app/models"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/database"
)

// HandleOAuthCallback completes the provider flow and logs the user in
func HandleOAuthCallback(c *fiber.Ctx) error {
	u, err := gothfiber.CompleteUserAuth(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString(fmt.Sprintf("OAuth failed: %v", err))
	}

	appUser, err := linkOAuthUser(database.GetDB(), u)
	if err != nil {
		fiberlog.Errorf("[OAuth] %s sign-in failed: %v", u.Provider, err)
		return c.Status(fiber.StatusInternalServerError).SendString("sign-in failed")
	}

	if err := startSession(c, appUser); err != nil {
		fiberlog.Errorf("[OAuth] %v", err)
		return c.Status(fiber.StatusInternalServerError).SendString("session init failed")
	}

	_ = database.GetDB().Model(appUser).UpdateColumn("last_login_at", time.Now()).Error

	return c.Redirect("/editor", fiber.StatusSeeOther)
}

// linkOAuthUser finds or creates the local user for a provider identity and
// refreshes the stored tokens. A GitHub sign-in also records the GitHub
// account id and login, which installation sync relies on.
func linkOAuthUser(db *gorm.DB, u goth.User) (*models.User, error) {
	var pa models.ProviderAccount
	res := db.Where("provider = ? AND provider_user_id = ?", u.Provider, u.UserID).First(&pa)

	var appUser models.User
	switch {
	case errors.Is(res.Error, gorm.ErrRecordNotFound):
		email := strings.ToLower(strings.TrimSpace(u.Email))
		if email != "" {
			_ = db.Where("email = ?", email).First(&appUser).Error
		}
		if appUser.ID == 0 {
			if email == "" {
				// keeps the unique email index satisfied for accounts without a public email
				email = fmt.Sprintf("%s_%s@%s.oauth.local", u.Provider, u.UserID, u.Provider)
			}
			appUser = models.User{
				Name:  firstNonEmpty(u.Name, u.NickName, u.Email, "User"),
				Email: email,
				Image: u.AvatarURL,
				Role:  models.ROLE_USER,
			}
			if err := db.Create(&appUser).Error; err != nil {
				return nil, fmt.Errorf("create user failed: %w", err)
			}
		}
		pa = models.ProviderAccount{
			UserID:         appUser.ID,
			Provider:       u.Provider,
			ProviderUserID: u.UserID,
			Login:          u.NickName,
			AccessToken:    u.AccessToken,
			RefreshToken:   u.RefreshToken,
			ExpiresAt:      expiresAt(u),
		}
		if err := db.Create(&pa).Error; err != nil {
			return nil, fmt.Errorf("link provider failed: %w", err)
		}
	case res.Error == nil:
		pa.Login = u.NickName
		pa.AccessToken = u.AccessToken
		pa.RefreshToken = u.RefreshToken
		pa.ExpiresAt = expiresAt(u)
		if err := db.Save(&pa).Error; err != nil {
			return nil, fmt.Errorf("update tokens failed: %w", err)
		}
		if err := db.First(&appUser, pa.UserID).Error; err != nil {
			return nil, fmt.Errorf("linked user not found: %w", err)
		}
	default:
		return nil, fmt.Errorf("db error: %w", res.Error)
	}

	if u.Provider == models.ProviderGitHub && u.NickName != "" {
		appUser.GitHubID = u.UserID
		appUser.GitHubUsername = u.NickName
		if err := db.Model(&models.User{}).Where("id = ?", appUser.ID).Updates(map[string]interface{}{
			"github_id":       u.UserID,
			"github_username": u.NickName,
		}).Error; err != nil {
			return nil, fmt.Errorf("store github identity failed: %w", err)
		}
	}
	return &appUser, nil
}

func expiresAt(u goth.User) *time.Time {
	if u.ExpiresAt.IsZero() {
		return nil
	}
	t := u.ExpiresAt
	return &t
}
