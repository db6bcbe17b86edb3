package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/GitDataEdit/internal/pkg/session"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/usercontext"
)

// UserContextMiddleware loads the signed-in user from the session and stores
// it in Locals for the rest of the request.
func UserContextMiddleware(c *fiber.Ctx) error {
	// Goth keeps its own session on /auth/*; touching ours there collides with it.
	if strings.HasPrefix(c.Path(), "/auth/") {
		return c.Next()
	}

	store := session.GetSessionStore()
	if store == nil {
		usercontext.Set(c, usercontext.UserContext{})
		return c.Next()
	}
	sess, err := store.Get(c)
	if err != nil {
		fiberlog.Warnf("[Session] Failed to load session: %v", err)
		usercontext.Set(c, usercontext.UserContext{})
		return c.Next()
	}

	userID := sessionUint(sess.Get(usercontext.KeyUserID))
	if userID == 0 {
		usercontext.Set(c, usercontext.UserContext{})
		return c.Next()
	}

	isAdmin, _ := sess.Get(usercontext.KeyIsAdmin).(bool)
	usercontext.Set(c, usercontext.UserContext{
		UserID:         userID,
		Username:       sessionString(sess.Get(usercontext.KeyUsername)),
		GitHubUsername: sessionString(sess.Get(usercontext.KeyGitHubUsername)),
		IsLoggedIn:     true,
		IsAdmin:        isAdmin,
	})
	return c.Next()
}

func sessionUint(v interface{}) uint {
	switch id := v.(type) {
	case uint:
		return id
	case uint64:
		return uint(id)
	case int:
		if id > 0 {
			return uint(id)
		}
	case int64:
		if id > 0 {
			return uint(id)
		}
	}
	return 0
}

func sessionString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
