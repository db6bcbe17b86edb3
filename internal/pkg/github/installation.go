package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
)

// InstallationClient performs repository calls with an installation access token.
type InstallationClient struct {
	http           *resty.Client
	installationID int64
	token          string
}

func (c *InstallationClient) InstallationID() int64 {
	return c.installationID
}

func (c *InstallationClient) request(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx).SetAuthToken(c.token)
}

// escapePath escapes every segment of a repository file path but keeps the separators.
func escapePath(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// ListRepositories lists every repository the installation can access.
func (c *InstallationClient) ListRepositories(ctx context.Context) ([]Repository, error) {
	var all []Repository
	for page := 1; ; page++ {
		resp, err := c.request(ctx).
			SetQueryParam("per_page", strconv.Itoa(perPage)).
			SetQueryParam("page", strconv.Itoa(page)).
			Get("/installation/repositories")
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories: %w", err)
		}
		if err := checkResponse(resp); err != nil {
			return nil, err
		}

		var list repositoryList
		if err := json.Unmarshal(resp.Body(), &list); err != nil {
			return nil, fmt.Errorf("failed to parse repositories response: %w", err)
		}
		all = append(all, list.Repositories...)
		if len(list.Repositories) < perPage || len(all) >= list.TotalCount {
			return all, nil
		}
	}
}

func (c *InstallationClient) GetRepository(ctx context.Context, owner, repo string) (*Repository, error) {
	resp, err := c.request(ctx).
		SetPathParams(map[string]string{"owner": owner, "repo": repo}).
		Get("/repos/{owner}/{repo}")
	if err != nil {
		return nil, fmt.Errorf("failed to get repository: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var r Repository
	if err := json.Unmarshal(resp.Body(), &r); err != nil {
		return nil, fmt.Errorf("failed to parse repository response: %w", err)
	}
	return &r, nil
}

// GetTree fetches the git tree of ref, optionally with all nested entries.
func (c *InstallationClient) GetTree(ctx context.Context, owner, repo, ref string, recursive bool) (*Tree, error) {
	req := c.request(ctx).
		SetPathParams(map[string]string{"owner": owner, "repo": repo}).
		SetRawPathParam("ref", escapePath(ref))
	if recursive {
		req.SetQueryParam("recursive", "1")
	}
	resp, err := req.Get("/repos/{owner}/{repo}/git/trees/{ref}")
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var tree Tree
	if err := json.Unmarshal(resp.Body(), &tree); err != nil {
		return nil, fmt.Errorf("failed to parse tree response: %w", err)
	}
	return &tree, nil
}

// GetContents fetches a single file. Directory paths are rejected.
func (c *InstallationClient) GetContents(ctx context.Context, owner, repo, path string) (*Content, error) {
	resp, err := c.request(ctx).
		SetPathParams(map[string]string{"owner": owner, "repo": repo}).
		SetRawPathParam("path", escapePath(path)).
		Get("/repos/{owner}/{repo}/contents/{path}")
	if err != nil {
		return nil, fmt.Errorf("failed to get contents: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	body := bytes.TrimSpace(resp.Body())
	if len(body) > 0 && body[0] == '[' {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	var content Content
	if err := json.Unmarshal(body, &content); err != nil {
		return nil, fmt.Errorf("failed to parse contents response: %w", err)
	}
	return &content, nil
}

// PutContents creates or updates a file with a single commit. GitHub rejects
// the write when opts.SHA no longer matches the current blob.
func (c *InstallationClient) PutContents(ctx context.Context, owner, repo, path string, opts PutContentsOptions) (*ContentUpdate, error) {
	resp, err := c.request(ctx).
		SetPathParams(map[string]string{"owner": owner, "repo": repo}).
		SetRawPathParam("path", escapePath(path)).
		SetHeader("Content-Type", "application/json").
		SetBody(opts).
		Put("/repos/{owner}/{repo}/contents/{path}")
	if err != nil {
		return nil, fmt.Errorf("failed to put contents: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var update ContentUpdate
	if err := json.Unmarshal(resp.Body(), &update); err != nil {
		return nil, fmt.Errorf("failed to parse commit response: %w", err)
	}
	return &update, nil
}
