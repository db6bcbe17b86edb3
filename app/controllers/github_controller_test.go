package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/GitDataEdit/app/models"
	"github.com/ManuelReschke/GitDataEdit/app/repository"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/billing"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/entitlements"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/gateway"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/github"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/middleware"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/usercontext"
)

type fakeGateway struct {
	repos      []gateway.RepoSummary
	files      []gateway.FileEntry
	file       *gateway.FileBlob
	commitErr  error
	err        error
	commits    []gateway.CommitRequest
	listCalled int
}

func (f *fakeGateway) ListRepositories(ctx context.Context, userID uint) ([]gateway.RepoSummary, error) {
	f.listCalled++
	return f.repos, f.err
}

func (f *fakeGateway) GetRepoFileIndex(ctx context.Context, owner, repo string, userID uint) ([]gateway.FileEntry, error) {
	return f.files, f.err
}

func (f *fakeGateway) GetFile(ctx context.Context, owner, repo, filePath string, userID uint) (*gateway.FileBlob, error) {
	return f.file, f.err
}

func (f *fakeGateway) CommitFile(ctx context.Context, req gateway.CommitRequest, userID uint) (*gateway.CommitResult, error) {
	f.commits = append(f.commits, req)
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	return &gateway.CommitResult{
		Content: github.ContentFile{Path: req.Path, SHA: "newblobsha"},
		Commit:  github.CommitInfo{SHA: "c0ffee"},
	}, nil
}

type fakeGate struct {
	decision entitlements.CommitDecision
	status   entitlements.SubscriptionStatus
	recorded []string
}

func (f *fakeGate) EvaluateCommit(ctx context.Context, userID uint, isPrivateRepo bool) (entitlements.CommitDecision, error) {
	return f.decision, nil
}

func (f *fakeGate) RecordCommit(ctx context.Context, userID uint, repo, filePath, commitSHA string) error {
	f.recorded = append(f.recorded, repo+":"+filePath+":"+commitSHA)
	return nil
}

func (f *fakeGate) Status(ctx context.Context, userID uint) (entitlements.SubscriptionStatus, error) {
	return f.status, nil
}

type fakeSyncer struct {
	saved  []int64
	synced []string
	err    error
}

func (f *fakeSyncer) SaveInstallationByID(ctx context.Context, userID uint, installationID int64) (*models.GitHubInstallation, error) {
	f.saved = append(f.saved, installationID)
	return &models.GitHubInstallation{InstallationID: installationID, UserID: userID}, f.err
}

func (f *fakeSyncer) SyncUserInstallations(ctx context.Context, userID uint, githubUsername string) ([]models.GitHubInstallation, error) {
	f.synced = append(f.synced, githubUsername)
	return nil, f.err
}

type fakeAccounts struct {
	user *models.User
	sub  *repository.Subscription
}

func (f *fakeAccounts) GetByID(id uint) (*models.User, error) {
	if f.user == nil {
		return nil, errors.New("not found")
	}
	return f.user, nil
}

func (f *fakeAccounts) GetSubscription(ctx context.Context, id uint) (*repository.Subscription, error) {
	if f.sub == nil {
		return &repository.Subscription{}, nil
	}
	return f.sub, nil
}

type controllerFixture struct {
	gw       *fakeGateway
	gate     *fakeGate
	syncer   *fakeSyncer
	accounts *fakeAccounts
	app      *fiber.App
}

func newControllerFixture(t *testing.T, loggedIn bool) *controllerFixture {
	t.Helper()
	limit := int64(entitlements.FreeCommitLimit)
	used := int64(3)
	f := &controllerFixture{
		gw: &fakeGateway{},
		gate: &fakeGate{decision: entitlements.CommitDecision{
			Allowed: true, Plan: entitlements.PlanFree, CommitsUsed: &used, CommitsLimit: &limit,
		}},
		syncer:   &fakeSyncer{},
		accounts: &fakeAccounts{user: &models.User{ID: 7}},
	}
	plans := billing.PricingData()
	plans[1].StripeIDs.Monthly = "price_month"
	gc := NewGitHubController(f.gw, f.gate, f.syncer, f.accounts, plans)

	f.app = fiber.New()
	f.app.Use(func(c *fiber.Ctx) error {
		if loggedIn {
			usercontext.Set(c, usercontext.UserContext{UserID: 7, Username: "octo", IsLoggedIn: true})
		}
		return c.Next()
	})
	api := f.app.Group("/api/github", middleware.RequireAPISessionAuth)
	api.Get("/repos", gc.HandleListRepos)
	api.Get("/repos/:owner/:repo/contents", gc.HandleRepoContents)
	api.Get("/repos/:owner/:repo/file", gc.HandleRepoFile)
	api.Post("/repos/:owner/:repo/commit", gc.HandleCommit)
	api.Get("/subscription", gc.HandleSubscription)
	api.Get("/callback", gc.HandleInstallationCallback)
	return f
}

func doJSON(t *testing.T, app *fiber.App, method, target, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func TestGitHubRoutesRequireSession(t *testing.T) {
	f := newControllerFixture(t, false)

	resp, body := doJSON(t, f.app, http.MethodGet, "/api/github/repos", "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Unauthorized", body["error"])
	assert.Zero(t, f.gw.listCalled)
}

func TestListReposSyncsKnownUsername(t *testing.T) {
	f := newControllerFixture(t, true)
	f.accounts.user.GitHubUsername = "octo"
	f.gw.repos = []gateway.RepoSummary{{ID: 1, FullName: "octo/site"}}

	resp, _ := doJSON(t, f.app, http.MethodGet, "/api/github/repos", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"octo"}, f.syncer.synced)
	assert.Equal(t, 1, f.gw.listCalled)
}

func TestListReposSkipsSyncWithoutUsername(t *testing.T) {
	f := newControllerFixture(t, true)

	resp, _ := doJSON(t, f.app, http.MethodGet, "/api/github/repos", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, f.syncer.synced)
}

func TestRepoContentsInaccessibleIs404(t *testing.T) {
	f := newControllerFixture(t, true)
	f.gw.err = gateway.ErrRepoInaccessible

	resp, body := doJSON(t, f.app, http.MethodGet, "/api/github/repos/octo/site/contents", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}

func TestRepoFileRequiresPath(t *testing.T) {
	f := newControllerFixture(t, true)

	resp, _ := doJSON(t, f.app, http.MethodGet, "/api/github/repos/octo/site/file", "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRepoFileMissingIs404(t *testing.T) {
	f := newControllerFixture(t, true)

	resp, _ := doJSON(t, f.app, http.MethodGet, "/api/github/repos/octo/site/file?path=a.json", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestCommitRejectsMissingFields(t *testing.T) {
	f := newControllerFixture(t, true)

	resp, _ := doJSON(t, f.app, http.MethodPost, "/api/github/repos/octo/site/commit", `{"path":"a.json","content":"{}"}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, f.gw.commits)
}

func TestCommitRejectsInvalidSyntax(t *testing.T) {
	f := newControllerFixture(t, true)

	resp, _ := doJSON(t, f.app, http.MethodPost, "/api/github/repos/octo/site/commit", `{"path":"a.json","content":"{broken","sha":"abc"}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, f.gw.commits)
}

func TestCommitDeniedByGate(t *testing.T) {
	f := newControllerFixture(t, true)
	used, limit := int64(10), int64(10)
	f.gate.decision = entitlements.CommitDecision{
		Allowed: false, Plan: entitlements.PlanFree, Reason: entitlements.ReasonLimitReached,
		CommitsUsed: &used, CommitsLimit: &limit,
	}

	resp, body := doJSON(t, f.app, http.MethodPost, "/api/github/repos/octo/site/commit", `{"path":"a.json","content":"{}","sha":"abc"}`)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, entitlements.ReasonLimitReached, body["error"])
	assert.Equal(t, "free", body["plan"])
	assert.EqualValues(t, 10, body["commitsUsed"])
	assert.EqualValues(t, 10, body["commitsLimit"])
	assert.Empty(t, f.gw.commits)
	assert.Empty(t, f.gate.recorded)
}

func TestCommitSuccessRecordsLedger(t *testing.T) {
	f := newControllerFixture(t, true)

	resp, body := doJSON(t, f.app, http.MethodPost, "/api/github/repos/octo/site/commit", `{"path":"data/a.json","content":"{\"a\":1}","sha":"abc"}`)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 4, body["commitsUsed"])
	assert.EqualValues(t, 10, body["commitsLimit"])

	commit, ok := body["commit"].(map[string]interface{})
	require.True(t, ok)
	content, ok := commit["content"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "newblobsha", content["sha"])
	assert.Equal(t, "data/a.json", content["path"])
	assert.Equal(t, "c0ffee", commit["commit"].(map[string]interface{})["sha"])

	require.Len(t, f.gw.commits, 1)
	assert.Equal(t, "abc", f.gw.commits[0].ExpectedSHA)
	assert.Equal(t, []string{"octo/site:data/a.json:c0ffee"}, f.gate.recorded)
}

func TestCommitProHasNoUsage(t *testing.T) {
	f := newControllerFixture(t, true)
	f.gate.decision = entitlements.CommitDecision{Allowed: true, Plan: entitlements.PlanPro}

	resp, body := doJSON(t, f.app, http.MethodPost, "/api/github/repos/octo/site/commit", `{"path":"a.yaml","content":"a: 1","sha":"abc","isPrivate":true}`)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Nil(t, body["commitsUsed"])
	assert.Nil(t, body["commitsLimit"])
}

func TestCommitConflictIs409(t *testing.T) {
	f := newControllerFixture(t, true)
	f.gw.commitErr = gateway.ErrConflict

	resp, _ := doJSON(t, f.app, http.MethodPost, "/api/github/repos/octo/site/commit", `{"path":"a.json","content":"{}","sha":"stale"}`)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Empty(t, f.gate.recorded)
}

func TestCommitExhaustedIs500(t *testing.T) {
	f := newControllerFixture(t, true)
	f.gw.commitErr = gateway.ErrNoValidInstallation

	resp, body := doJSON(t, f.app, http.MethodPost, "/api/github/repos/octo/site/commit", `{"path":"a.json","content":"{}","sha":"abc"}`)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, gateway.ErrNoValidInstallation.Error(), body["error"])
	assert.Empty(t, f.gate.recorded)
}

func TestSubscriptionResolvesInterval(t *testing.T) {
	f := newControllerFixture(t, true)
	f.gate.status = entitlements.SubscriptionStatus{Plan: entitlements.PlanPro, IsPaid: true, CanCommitPublic: true, CanCommitPrivate: true}
	f.accounts.sub = &repository.Subscription{PriceID: "price_month"}

	resp, body := doJSON(t, f.app, http.MethodGet, "/api/github/subscription", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "pro", body["plan"])
	assert.Equal(t, "Pro", body["title"])
	assert.Equal(t, "month", body["interval"])
	assert.Nil(t, body["commitsLimit"])
}

func TestInstallationCallbackSavesByID(t *testing.T) {
	f := newControllerFixture(t, true)

	resp, _ := doJSON(t, f.app, http.MethodGet, "/api/github/callback?installation_id=42", "")
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/editor", resp.Header.Get("Location"))
	assert.Equal(t, []int64{42}, f.syncer.saved)
	assert.Empty(t, f.syncer.synced)
}

func TestInstallationCallbackFallsBackToSync(t *testing.T) {
	f := newControllerFixture(t, true)
	f.accounts.user.GitHubUsername = "octo"

	resp, _ := doJSON(t, f.app, http.MethodGet, "/api/github/callback", "")
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Empty(t, f.syncer.saved)
	assert.Equal(t, []string{"octo"}, f.syncer.synced)
}

func TestInstallationCallbackErrorStillRedirects(t *testing.T) {
	f := newControllerFixture(t, true)
	f.syncer.err = errors.New("boom")

	resp, _ := doJSON(t, f.app, http.MethodGet, "/api/github/callback?installation_id=42", "")
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/editor", resp.Header.Get("Location"))
}
