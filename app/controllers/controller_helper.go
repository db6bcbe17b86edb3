package controllers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/GitDataEdit/app/models"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/session"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/usercontext"
)

// startSession signs the user in on the app session.
func startSession(c *fiber.Ctx, user *models.User) error {
	store := session.GetSessionStore()
	if store == nil {
		return fmt.Errorf("session store not initialized")
	}
	sess, err := store.Get(c)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	// a fresh id on every sign-in
	if err := sess.Regenerate(); err != nil {
		return fmt.Errorf("failed to regenerate session: %w", err)
	}
	sess.Set(usercontext.AuthKey, true)
	sess.Set(usercontext.KeyUserID, user.ID)
	sess.Set(usercontext.KeyUsername, user.Name)
	sess.Set(usercontext.KeyGitHubUsername, user.GitHubUsername)
	sess.Set(usercontext.KeyIsAdmin, user.IsAdmin())
	if err := sess.Save(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
