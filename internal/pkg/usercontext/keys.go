package usercontext

// Locals key for the request context and the session keys behind it
const (
	ContextKey        = "USER_CONTEXT"
	AuthKey           = "authenticated"
	KeyUserID         = "user_id"
	KeyUsername       = "username"
	KeyGitHubUsername = "github_username"
	KeyIsAdmin        = "isAdmin"
)
