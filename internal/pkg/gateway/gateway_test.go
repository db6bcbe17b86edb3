package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/GitDataEdit/app/repository"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/github"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/installations"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/resolver"
	"github.com/ManuelReschke/GitDataEdit/internal/testutil"
)

type env struct {
	fake *testutil.FakeGitHub
	dir  *installations.Directory
	gw   *Gateway
	user uint
}

func setup(t *testing.T, timeout time.Duration) *env {
	t.Helper()
	fake := testutil.NewFakeGitHub(t)
	app, err := github.NewApp(github.Config{
		AppID:      testutil.FakeAppID,
		PrivateKey: fake.PrivateKeyPEM(),
		BaseURL:    fake.URL(),
		Timeout:    5 * time.Second,
	}, nil)
	require.NoError(t, err)

	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	dir := installations.NewDirectory(repos.Installation, repos.User, app)
	user := testutil.TestUser(t, db)

	return &env{fake: fake, dir: dir, gw: New(dir, app, timeout), user: user.ID}
}

// bind registers the installation with the fake and binds it to the test user.
func (e *env) bind(t *testing.T, id int64, login string, repos ...*testutil.FakeRepo) *testutil.FakeInstallation {
	t.Helper()
	inst := e.fake.AddInstallation(id, login, "User", repos...)
	_, err := e.dir.Upsert(context.Background(), id, login, "User", e.user)
	require.NoError(t, err)
	return inst
}

func TestListRepositoriesMergesAndSkipsFailures(t *testing.T) {
	e := setup(t, time.Second)
	a := testutil.NewFakeRepo("alice", "one", false, nil)
	b := testutil.NewFakeRepo("alice", "two", true, nil)
	c := testutil.NewFakeRepo("acme", "three", false, nil)
	e.bind(t, 1, "alice", a, b)
	e.bind(t, 2, "broken").Fail = true
	e.bind(t, 3, "acme", c)

	repos, err := e.gw.ListRepositories(context.Background(), e.user)
	require.NoError(t, err)
	require.Len(t, repos, 3)
	assert.Equal(t, "alice/one", repos[0].FullName)
	assert.Equal(t, int64(1), repos[0].InstallationID)
	assert.True(t, repos[1].Private)
	assert.Equal(t, "acme/three", repos[2].FullName)
	assert.Equal(t, int64(3), repos[2].InstallationID)
}

func TestListRepositoriesWithoutInstallations(t *testing.T) {
	e := setup(t, time.Second)

	repos, err := e.gw.ListRepositories(context.Background(), e.user)
	require.NoError(t, err)
	assert.NotNil(t, repos)
	assert.Empty(t, repos)
}

func TestGetRepoFileIndexFiltersDataFiles(t *testing.T) {
	e := setup(t, time.Second)
	repo := testutil.NewFakeRepo("octo", "data", false, map[string]string{
		"a.json":       "{}",
		"b.yaml":       "a: 1",
		"c.txt":        "text",
		"nested/D.YML": "x: y",
	})
	e.bind(t, 1, "octo", repo)

	files, err := e.gw.GetRepoFileIndex(context.Background(), "octo", "data", e.user)
	require.NoError(t, err)

	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
		assert.Equal(t, "file", f.Type)
		assert.NotEmpty(t, f.SHA)
	}
	assert.ElementsMatch(t, []string{"a.json", "b.yaml", "nested/D.YML"}, paths)
	for _, f := range files {
		if f.Path == "nested/D.YML" {
			assert.Equal(t, "D.YML", f.Name)
		}
	}
}

func TestGetRepoFileIndexFirstSuccessSkipsLaterInstallations(t *testing.T) {
	e := setup(t, time.Second)
	repo := testutil.NewFakeRepo("octo", "data", false, map[string]string{"a.json": "{}"})
	e.bind(t, 1, "other")
	e.bind(t, 2, "octo", repo)
	e.bind(t, 3, "octo-mirror", repo)

	_, err := e.gw.GetRepoFileIndex(context.Background(), "octo", "data", e.user)
	require.NoError(t, err)
	assert.Equal(t, 1, e.fake.Calls(1))
	assert.Equal(t, 2, e.fake.Calls(2))
	assert.Equal(t, 0, e.fake.Calls(3))
}

func TestGetRepoFileIndexInaccessible(t *testing.T) {
	e := setup(t, time.Second)
	e.bind(t, 1, "octo")

	files, err := e.gw.GetRepoFileIndex(context.Background(), "octo", "secret", e.user)
	assert.ErrorIs(t, err, ErrRepoInaccessible)
	assert.Nil(t, files)
}

func TestGetFileAbsentReturnsNil(t *testing.T) {
	e := setup(t, time.Second)
	e.bind(t, 1, "octo", testutil.NewFakeRepo("octo", "data", false, nil))

	blob, err := e.gw.GetFile(context.Background(), "octo", "data", "missing.json", e.user)
	require.NoError(t, err)
	assert.Nil(t, blob)
}

func TestGetFileSlowInstallationTimesOut(t *testing.T) {
	e := setup(t, 100*time.Millisecond)
	repo := testutil.NewFakeRepo("octo", "data", false, map[string]string{"a.json": `{"a":1}`})
	e.bind(t, 1, "octo", repo).Delay = 2 * time.Second
	e.bind(t, 2, "octo-too", repo)

	blob, err := e.gw.GetFile(context.Background(), "octo", "data", "a.json", e.user)
	require.NoError(t, err)
	require.NotNil(t, blob)
	assert.Equal(t, `{"a":1}`, blob.DecodedContent)
}

func TestCommitThenFetchRoundTrip(t *testing.T) {
	e := setup(t, time.Second)
	repo := testutil.NewFakeRepo("octo", "data", false, map[string]string{"config/app.json": `{"v":0}`})
	e.bind(t, 1, "octo", repo)
	ctx := context.Background()

	before, err := e.gw.GetFile(ctx, "octo", "data", "config/app.json", e.user)
	require.NoError(t, err)
	require.NotNil(t, before)

	result, err := e.gw.CommitFile(ctx, CommitRequest{
		Owner:       "octo",
		Repo:        "data",
		Path:        "config/app.json",
		Content:     `{"v":1}`,
		ExpectedSHA: before.SHA,
	}, e.user)
	require.NoError(t, err)
	assert.Equal(t, "Update config/app.json via GitData Edit", result.Commit.Message)

	after, err := e.gw.GetFile(ctx, "octo", "data", "config/app.json", e.user)
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Equal(t, `{"v":1}`, after.DecodedContent)
	assert.Equal(t, result.Content.SHA, after.SHA)
	assert.NotEqual(t, before.SHA, after.SHA)
}

func TestCommitStaleSHAConflictStopsIteration(t *testing.T) {
	e := setup(t, time.Second)
	repo := testutil.NewFakeRepo("octo", "data", false, map[string]string{"a.json": `{}`})
	e.bind(t, 1, "octo", repo)
	e.bind(t, 2, "octo-too", repo)

	_, err := e.gw.CommitFile(context.Background(), CommitRequest{
		Owner: "octo", Repo: "data", Path: "a.json", Content: `{"x":1}`, ExpectedSHA: "stale",
	}, e.user)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 0, e.fake.Calls(2))
	assert.Equal(t, 0, repo.Commits())
}

func TestCommitWithoutUsableInstallation(t *testing.T) {
	e := setup(t, time.Second)
	e.bind(t, 1, "octo")

	_, err := e.gw.CommitFile(context.Background(), CommitRequest{
		Owner: "octo", Repo: "data", Path: "a.json", Content: `{}`, ExpectedSHA: "abc",
	}, e.user)
	assert.ErrorIs(t, err, ErrNoValidInstallation)
	assert.ErrorIs(t, err, resolver.ErrNoInstallation)
}

func TestCommitRejectsInvalidSyntax(t *testing.T) {
	e := setup(t, time.Second)
	repo := testutil.NewFakeRepo("octo", "data", false, map[string]string{"a.json": `{}`})
	e.bind(t, 1, "octo", repo)

	_, err := e.gw.CommitFile(context.Background(), CommitRequest{
		Owner: "octo", Repo: "data", Path: "a.json", Content: `{"broken":`, ExpectedSHA: "x",
	}, e.user)
	assert.ErrorIs(t, err, ErrInvalidContent)
	assert.Equal(t, 0, e.fake.Calls(1))
}

type recordingArchiver struct {
	mu   sync.Mutex
	reqs []CommitRequest
}

func (a *recordingArchiver) Archive(_ context.Context, _ uint, req CommitRequest, _ *CommitResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reqs = append(a.reqs, req)
	return nil
}

func TestCommitArchivesRevision(t *testing.T) {
	e := setup(t, time.Second)
	repo := testutil.NewFakeRepo("octo", "data", false, map[string]string{"a.yml": "a: 1\n"})
	e.bind(t, 1, "octo", repo)
	archiver := &recordingArchiver{}
	e.gw.WithArchiver(archiver)
	_, sha, _ := repo.File("a.yml")

	_, err := e.gw.CommitFile(context.Background(), CommitRequest{
		Owner: "octo", Repo: "data", Path: "a.yml", Content: "a: 2\n", ExpectedSHA: sha, Message: "bump",
	}, e.user)
	require.NoError(t, err)
	require.Len(t, archiver.reqs, 1)
	assert.Equal(t, "bump", archiver.reqs[0].Message)
}
