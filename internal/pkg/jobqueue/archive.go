package jobqueue

import (
	"context"
	"fmt"

	"github.com/ManuelReschke/GitDataEdit/internal/pkg/gateway"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/github"
)

// RevisionArchiver defers revision archiving to the queue so commits do not
// wait for object storage.
type RevisionArchiver struct {
	queue *Queue
}

func NewRevisionArchiver(q *Queue) *RevisionArchiver {
	return &RevisionArchiver{queue: q}
}

// Archive enqueues a revision_archive job for a successful commit.
func (a *RevisionArchiver) Archive(ctx context.Context, userID uint, req gateway.CommitRequest, result *gateway.CommitResult) error {
	if result == nil || result.Commit.SHA == "" {
		return fmt.Errorf("missing commit sha for %s/%s/%s", req.Owner, req.Repo, req.Path)
	}
	payload := RevisionArchivePayload{
		UserID:    userID,
		Owner:     req.Owner,
		Repo:      req.Repo,
		Path:      req.Path,
		Content:   req.Content,
		Message:   req.Message,
		CommitSHA: result.Commit.SHA,
	}
	_, err := a.queue.EnqueueJob(ctx, JobTypeRevisionArchive, payload.ToMap())
	return err
}

// RevisionArchiveHandler stores queued revisions in the given archive.
func RevisionArchiveHandler(store gateway.Archiver) Handler {
	return func(ctx context.Context, job *Job) error {
		payload, err := RevisionArchivePayloadFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("invalid revision archive payload: %w", err)
		}
		req := gateway.CommitRequest{
			Owner:   payload.Owner,
			Repo:    payload.Repo,
			Path:    payload.Path,
			Content: payload.Content,
			Message: payload.Message,
		}
		result := &gateway.CommitResult{Commit: github.CommitInfo{SHA: payload.CommitSHA}}
		return store.Archive(ctx, payload.UserID, req, result)
	}
}
