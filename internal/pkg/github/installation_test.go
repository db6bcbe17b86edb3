package github

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/GitDataEdit/internal/testutil"
)

func TestInstallationClientReadsRepository(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	repo := testutil.NewFakeRepo("octo", "data", false, map[string]string{
		"config/app.json":  `{"name":"demo"}`,
		"docs/readme.md":   "# demo",
		"values space.yml": "a: 1\n",
	})
	fake.AddInstallation(1, "octo", "User", repo)
	app := newTestApp(t, fake, nil)
	ctx := context.Background()

	client, err := app.Installation(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), client.InstallationID())

	repos, err := client.ListRepositories(ctx)
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "octo/data", repos[0].FullName)
	assert.Equal(t, "octo", repos[0].Owner.Login)

	meta, err := client.GetRepository(ctx, "octo", "data")
	require.NoError(t, err)
	assert.Equal(t, "main", meta.DefaultBranch)

	tree, err := client.GetTree(ctx, "octo", "data", meta.DefaultBranch, true)
	require.NoError(t, err)
	var blobs []string
	for _, e := range tree.Tree {
		if e.Type == "blob" {
			blobs = append(blobs, e.Path)
		}
	}
	assert.ElementsMatch(t, []string{"config/app.json", "docs/readme.md", "values space.yml"}, blobs)

	content, err := client.GetContents(ctx, "octo", "data", "values space.yml")
	require.NoError(t, err)
	assert.Equal(t, "base64", content.Encoding)
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content.Content, "\n", ""))
	require.NoError(t, err)
	assert.Equal(t, "a: 1\n", string(raw))
}

func TestPutContentsRejectsStaleSHA(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	repo := testutil.NewFakeRepo("octo", "data", false, map[string]string{"a.json": `{}`})
	fake.AddInstallation(1, "octo", "User", repo)
	app := newTestApp(t, fake, nil)
	ctx := context.Background()

	client, err := app.Installation(ctx, 1)
	require.NoError(t, err)
	_, sha, _ := repo.File("a.json")

	update, err := client.PutContents(ctx, "octo", "data", "a.json", PutContentsOptions{
		Message: "Update a.json",
		Content: base64.StdEncoding.EncodeToString([]byte(`{"v":1}`)),
		SHA:     sha,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, update.Commit.SHA)
	assert.NotEqual(t, sha, update.Content.SHA)

	_, err = client.PutContents(ctx, "octo", "data", "a.json", PutContentsOptions{
		Message: "Update a.json",
		Content: base64.StdEncoding.EncodeToString([]byte(`{"v":2}`)),
		SHA:     sha,
	})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsConflict())

	content, _, _ := repo.File("a.json")
	assert.Equal(t, `{"v":1}`, content)
}

func TestGetContentsMissingFile(t *testing.T) {
	fake := testutil.NewFakeGitHub(t)
	fake.AddInstallation(1, "octo", "User", testutil.NewFakeRepo("octo", "data", false, nil))
	app := newTestApp(t, fake, nil)

	client, err := app.Installation(context.Background(), 1)
	require.NoError(t, err)

	_, err = client.GetContents(context.Background(), "octo", "data", "missing.json")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())
}

func TestEscapePathKeepsSeparators(t *testing.T) {
	assert.Equal(t, "dir/a%20b.json", escapePath("/dir/a b.json"))
	assert.Equal(t, "release/v1", escapePath("release/v1"))
}
