package controllers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/sujit-baniya/flash"

	"github.com/ManuelReschke/GitDataEdit/app/models"
	"github.com/ManuelReschke/GitDataEdit/app/repository"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/billing"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/entitlements"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/gateway"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/usercontext"
)

const githubRequestTimeout = 60 * time.Second

type RepoGateway interface {
	ListRepositories(ctx context.Context, userID uint) ([]gateway.RepoSummary, error)
	GetRepoFileIndex(ctx context.Context, owner, repo string, userID uint) ([]gateway.FileEntry, error)
	GetFile(ctx context.Context, owner, repo, filePath string, userID uint) (*gateway.FileBlob, error)
	CommitFile(ctx context.Context, req gateway.CommitRequest, userID uint) (*gateway.CommitResult, error)
}

type CommitGate interface {
	EvaluateCommit(ctx context.Context, userID uint, isPrivateRepo bool) (entitlements.CommitDecision, error)
	RecordCommit(ctx context.Context, userID uint, repo, filePath, commitSHA string) error
	Status(ctx context.Context, userID uint) (entitlements.SubscriptionStatus, error)
}

type InstallationSyncer interface {
	SaveInstallationByID(ctx context.Context, userID uint, installationID int64) (*models.GitHubInstallation, error)
	SyncUserInstallations(ctx context.Context, userID uint, githubUsername string) ([]models.GitHubInstallation, error)
}

type AccountReader interface {
	GetByID(id uint) (*models.User, error)
	GetSubscription(ctx context.Context, id uint) (*repository.Subscription, error)
}

// GitHubController serves the editor's repository API.
type GitHubController struct {
	gateway       RepoGateway
	gate          CommitGate
	installations InstallationSyncer
	users         AccountReader
	plans         []billing.PricingPlan
	validate      *validator.Validate
}

func NewGitHubController(gw RepoGateway, gate CommitGate, installations InstallationSyncer, users AccountReader, plans []billing.PricingPlan) *GitHubController {
	return &GitHubController{
		gateway:       gw,
		gate:          gate,
		installations: installations,
		users:         users,
		plans:         plans,
		validate:      validator.New(),
	}
}

// CommitBody is the JSON body of a commit request.
type CommitBody struct {
	Path      string `json:"path" validate:"required"`
	Content   string `json:"content" validate:"required"`
	SHA       string `json:"sha" validate:"required"`
	Message   string `json:"message"`
	IsPrivate bool   `json:"isPrivate"`
}

func jsonError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), githubRequestTimeout)
}

// HandleListRepos returns every repository reachable through the user's
// installations. Installations are synced first when the GitHub username is known.
func (gc *GitHubController) HandleListRepos(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	ctx, cancel := requestContext()
	defer cancel()

	if username := gc.githubUsername(c); username != "" && gc.installations != nil {
		if _, err := gc.installations.SyncUserInstallations(ctx, userID, username); err != nil {
			fiberlog.Warnf("[GitHub] Installation sync for user %d failed: %v", userID, err)
		}
	}

	repos, err := gc.gateway.ListRepositories(ctx, userID)
	if err != nil {
		fiberlog.Errorf("[GitHub] Listing repositories for user %d failed: %v", userID, err)
		return jsonError(c, fiber.StatusInternalServerError, "Failed to fetch repositories")
	}
	return c.JSON(repos)
}

func (gc *GitHubController) githubUsername(c *fiber.Ctx) string {
	userID := usercontext.GetUserID(c)
	if gc.users != nil {
		if user, err := gc.users.GetByID(userID); err == nil && user.GitHubUsername != "" {
			return user.GitHubUsername
		}
	}
	return usercontext.GetUserContext(c).GitHubUsername
}

// HandleRepoContents lists the JSON and YAML files of a repository.
func (gc *GitHubController) HandleRepoContents(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	owner, repo := c.Params("owner"), c.Params("repo")
	ctx, cancel := requestContext()
	defer cancel()

	files, err := gc.gateway.GetRepoFileIndex(ctx, owner, repo, userID)
	if err != nil {
		if errors.Is(err, gateway.ErrRepoInaccessible) {
			return jsonError(c, fiber.StatusNotFound, "Repository not found or not accessible")
		}
		fiberlog.Errorf("[GitHub] Listing contents of %s/%s failed: %v", owner, repo, err)
		return jsonError(c, fiber.StatusInternalServerError, "Failed to fetch repository contents")
	}
	return c.JSON(files)
}

// HandleRepoFile returns one file with its decoded text.
func (gc *GitHubController) HandleRepoFile(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	owner, repo := c.Params("owner"), c.Params("repo")
	filePath := strings.TrimSpace(c.Query("path"))
	if filePath == "" {
		return jsonError(c, fiber.StatusBadRequest, "File path is required")
	}
	ctx, cancel := requestContext()
	defer cancel()

	file, err := gc.gateway.GetFile(ctx, owner, repo, filePath, userID)
	if err != nil {
		fiberlog.Errorf("[GitHub] Fetching %s from %s/%s failed: %v", filePath, owner, repo, err)
		return jsonError(c, fiber.StatusInternalServerError, "Failed to fetch file content")
	}
	if file == nil {
		return jsonError(c, fiber.StatusNotFound, "File not found")
	}
	return c.JSON(file)
}

// HandleCommit writes one file after the entitlement check passed and
// records the commit once GitHub accepted it.
func (gc *GitHubController) HandleCommit(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	owner, repo := c.Params("owner"), c.Params("repo")

	var body CommitBody
	if err := c.BodyParser(&body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := gc.validate.Struct(&body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Missing required fields: path, content, sha")
	}
	if err := gateway.ValidateContent(body.Path, body.Content); err != nil {
		return jsonError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx, cancel := requestContext()
	defer cancel()

	decision, err := gc.gate.EvaluateCommit(ctx, userID, body.IsPrivate)
	if err != nil {
		fiberlog.Errorf("[GitHub] Entitlement check for user %d failed: %v", userID, err)
		return jsonError(c, fiber.StatusInternalServerError, "Failed to check commit permissions")
	}
	if !decision.Allowed {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":        decision.Reason,
			"plan":         decision.Plan,
			"commitsUsed":  decision.CommitsUsed,
			"commitsLimit": decision.CommitsLimit,
		})
	}

	result, err := gc.gateway.CommitFile(ctx, gateway.CommitRequest{
		Owner:       owner,
		Repo:        repo,
		Path:        body.Path,
		Content:     body.Content,
		ExpectedSHA: body.SHA,
		Message:     body.Message,
	}, userID)
	if err != nil {
		if errors.Is(err, gateway.ErrConflict) {
			return jsonError(c, fiber.StatusConflict, "File was changed on GitHub since it was loaded. Reload and try again.")
		}
		fiberlog.Errorf("[GitHub] Commit of %s to %s/%s for user %d failed: %v", body.Path, owner, repo, userID, err)
		return jsonError(c, fiber.StatusInternalServerError, err.Error())
	}

	if err := gc.gate.RecordCommit(ctx, userID, fmt.Sprintf("%s/%s", owner, repo), body.Path, result.Commit.SHA); err != nil {
		// the commit exists upstream; the response still reports success
		fiberlog.Errorf("[GitHub] Commit %s succeeded but was not recorded: %v", result.Commit.SHA, err)
	}

	resp := fiber.Map{
		"success":      true,
		"commit":       result,
		"commitsUsed":  nil,
		"commitsLimit": decision.CommitsLimit,
	}
	if decision.CommitsUsed != nil {
		resp["commitsUsed"] = *decision.CommitsUsed + 1
	}
	return c.JSON(resp)
}

// HandleSubscription reports plan, permissions and commit usage.
func (gc *GitHubController) HandleSubscription(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	ctx, cancel := requestContext()
	defer cancel()

	status, err := gc.gate.Status(ctx, userID)
	if err != nil {
		fiberlog.Errorf("[GitHub] Subscription status for user %d failed: %v", userID, err)
		return jsonError(c, fiber.StatusInternalServerError, "Failed to load subscription")
	}

	priceID := ""
	if gc.users != nil {
		if sub, err := gc.users.GetSubscription(ctx, userID); err == nil && sub != nil {
			priceID = sub.PriceID
		}
	}
	plan, interval := billing.ResolvePlan(gc.plans, priceID, status.IsPaid)

	return c.JSON(fiber.Map{
		"plan":             status.Plan,
		"title":            plan.Title,
		"interval":         interval,
		"isPaid":           status.IsPaid,
		"canCommitPublic":  status.CanCommitPublic,
		"canCommitPrivate": status.CanCommitPrivate,
		"commitsUsed":      status.CommitsUsed,
		"commitsLimit":     status.CommitsLimit,
	})
}

// HandleInstallationCallback finishes a GitHub App installation and sends
// the user back to the editor.
func (gc *GitHubController) HandleInstallationCallback(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	ctx, cancel := requestContext()
	defer cancel()

	fm := fiber.Map{"type": "success", "message": "GitHub connected."}
	if raw := strings.TrimSpace(c.Query("installation_id")); raw != "" {
		installationID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || installationID <= 0 {
			fiberlog.Warnf("[GitHub] Ignoring invalid installation_id %q", raw)
			fm = fiber.Map{"type": "error", "message": "Invalid installation id."}
		} else if _, err := gc.installations.SaveInstallationByID(ctx, userID, installationID); err != nil {
			fiberlog.Errorf("[GitHub] Saving installation %d for user %d failed: %v", installationID, userID, err)
			fm = fiber.Map{"type": "error", "message": "Could not save the GitHub installation."}
		}
	} else if username := gc.githubUsername(c); username != "" {
		if _, err := gc.installations.SyncUserInstallations(ctx, userID, username); err != nil {
			fiberlog.Errorf("[GitHub] Installation sync for user %d failed: %v", userID, err)
			fm = fiber.Map{"type": "error", "message": "Could not sync GitHub installations."}
		}
	}

	if fm["type"] == "error" {
		return flash.WithError(c, fm).Redirect("/editor", fiber.StatusSeeOther)
	}
	return flash.WithSuccess(c, fm).Redirect("/editor", fiber.StatusSeeOther)
}

// ============================================================================
// GLOBAL GITHUB CONTROLLER INSTANCE - Singleton Pattern
// ============================================================================

var githubController *GitHubController

// InitializeGitHubController installs the controller used by the router.
func InitializeGitHubController(gc *GitHubController) {
	githubController = gc
}

// GetGitHubController returns the global controller instance.
func GetGitHubController() *GitHubController {
	return githubController
}
