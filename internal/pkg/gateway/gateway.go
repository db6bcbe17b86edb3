package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/GitDataEdit/internal/pkg/github"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/resolver"
)

var (
	ErrRepoInaccessible    = errors.New("repository not accessible")
	ErrNoValidInstallation = errors.New("could not commit: no valid installation found")
	ErrConflict            = errors.New("file was changed upstream")
)

// InstallationOpener hands out installation-scoped GitHub clients.
type InstallationOpener interface {
	Installation(ctx context.Context, installationID int64) (*github.InstallationClient, error)
}

// Archiver keeps a copy of every committed revision.
type Archiver interface {
	Archive(ctx context.Context, userID uint, req CommitRequest, result *CommitResult) error
}

// Gateway reads and writes repository files through the user's installations.
type Gateway struct {
	reads    *resolver.Resolver[*github.InstallationClient]
	writes   *resolver.Resolver[*github.InstallationClient]
	archiver Archiver
}

func isConflict(err error) bool {
	var apiErr *github.APIError
	return errors.As(err, &apiErr) && apiErr.IsConflict()
}

// New creates a gateway. Every attempt against one installation is bounded by timeout.
func New(dir resolver.Directory, app InstallationOpener, timeout time.Duration) *Gateway {
	open := func(ctx context.Context, installationID int64) (*github.InstallationClient, error) {
		return nil, github.ErrNotConfigured
	}
	if app != nil {
		open = app.Installation
	}
	runner := resolver.Runner[*github.InstallationClient]{
		Open:    open,
		Timeout: timeout,
	}
	commitRunner := runner
	// stale sha rejections end the iteration
	commitRunner.Halt = isConflict

	return &Gateway{
		reads:  resolver.New(dir, runner),
		writes: resolver.New(dir, commitRunner),
	}
}

// WithArchiver enables revision archiving after successful commits.
func (g *Gateway) WithArchiver(a Archiver) *Gateway {
	g.archiver = a
	return g
}

// ListRepositories merges the repositories of all the user's installations.
// Installations that fail are left out.
func (g *Gateway) ListRepositories(ctx context.Context, userID uint) ([]RepoSummary, error) {
	repos, err := resolver.ResolveAll(ctx, g.reads, userID, func(ctx context.Context, client *github.InstallationClient) ([]RepoSummary, error) {
		list, err := client.ListRepositories(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]RepoSummary, 0, len(list))
		for _, r := range list {
			out = append(out, RepoSummary{
				ID:             r.ID,
				Name:           r.Name,
				FullName:       r.FullName,
				Owner:          r.Owner,
				Private:        r.Private,
				DefaultBranch:  r.DefaultBranch,
				Description:    r.Description,
				HTMLURL:        r.HTMLURL,
				UpdatedAt:      r.UpdatedAt,
				InstallationID: client.InstallationID(),
			})
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	if repos == nil {
		repos = []RepoSummary{}
	}
	return repos, nil
}

// GetRepoFileIndex lists the JSON and YAML files on the default branch.
func (g *Gateway) GetRepoFileIndex(ctx context.Context, owner, repo string, userID uint) ([]FileEntry, error) {
	files, err := resolver.ResolveAndRun(ctx, g.reads, userID, func(ctx context.Context, client *github.InstallationClient) ([]FileEntry, error) {
		meta, err := client.GetRepository(ctx, owner, repo)
		if err != nil {
			return nil, err
		}
		tree, err := client.GetTree(ctx, owner, repo, meta.DefaultBranch, true)
		if err != nil {
			return nil, err
		}
		if tree.Truncated {
			fiberlog.Warnf("[Gateway] Tree of %s/%s is truncated, file index is incomplete", owner, repo)
		}

		entries := make([]FileEntry, 0)
		for _, e := range tree.Tree {
			if e.Type != "blob" || !IsDataFile(e.Path) {
				continue
			}
			entries = append(entries, FileEntry{
				Name: path.Base(e.Path),
				Path: e.Path,
				Type: "file",
				SHA:  e.SHA,
				Size: e.Size,
			})
		}
		return entries, nil
	})
	if errors.Is(err, resolver.ErrNoInstallation) {
		return nil, fmt.Errorf("%w: %s/%s: %w", ErrRepoInaccessible, owner, repo, err)
	}
	if err != nil {
		return nil, err
	}
	return files, nil
}

// GetFile fetches one file. It returns (nil, nil) when no installation can see it.
func (g *Gateway) GetFile(ctx context.Context, owner, repo, filePath string, userID uint) (*FileBlob, error) {
	blob, err := resolver.ResolveAndRun(ctx, g.reads, userID, func(ctx context.Context, client *github.InstallationClient) (*FileBlob, error) {
		content, err := client.GetContents(ctx, owner, repo, filePath)
		if err != nil {
			return nil, err
		}
		return &FileBlob{Content: *content, DecodedContent: decodeContent(content)}, nil
	})
	if errors.Is(err, resolver.ErrNoInstallation) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return blob, nil
}

func decodeContent(c *github.Content) string {
	if c.Encoding != "base64" {
		return c.Content
	}
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(c.Content, "\n", ""))
	if err != nil {
		fiberlog.Warnf("[Gateway] Could not decode %s: %v", c.Path, err)
		return ""
	}
	return string(raw)
}

// DefaultCommitMessage is used when the editor sends no message.
func DefaultCommitMessage(filePath string) string {
	return fmt.Sprintf("Update %s via GitData Edit", filePath)
}

// CommitFile writes req.Content as a single commit. req.ExpectedSHA is sent
// unchanged; when it is stale the write fails with ErrConflict.
func (g *Gateway) CommitFile(ctx context.Context, req CommitRequest, userID uint) (*CommitResult, error) {
	if err := ValidateContent(req.Path, req.Content); err != nil {
		return nil, err
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		message = DefaultCommitMessage(req.Path)
	}
	opts := github.PutContentsOptions{
		Message: message,
		Content: base64.StdEncoding.EncodeToString([]byte(req.Content)),
		SHA:     req.ExpectedSHA,
	}

	result, err := resolver.ResolveAndRun(ctx, g.writes, userID, func(ctx context.Context, client *github.InstallationClient) (*CommitResult, error) {
		update, err := client.PutContents(ctx, req.Owner, req.Repo, req.Path, opts)
		if err != nil {
			return nil, err
		}
		return &CommitResult{Content: update.Content, Commit: update.Commit}, nil
	})
	switch {
	case err == nil:
	case isConflict(err):
		return nil, fmt.Errorf("%w: %w", ErrConflict, err)
	case errors.Is(err, resolver.ErrNoInstallation):
		return nil, fmt.Errorf("%w: %w", ErrNoValidInstallation, err)
	default:
		return nil, err
	}

	fiberlog.Infof("[Gateway] Committed %s to %s/%s (%s) for user %d", req.Path, req.Owner, req.Repo, result.Commit.SHA, userID)
	if g.archiver != nil {
		if err := g.archiver.Archive(ctx, userID, req, result); err != nil {
			fiberlog.Warnf("[Gateway] Failed to archive revision of %s/%s/%s: %v", req.Owner, req.Repo, req.Path, err)
		}
	}
	return result, nil
}
