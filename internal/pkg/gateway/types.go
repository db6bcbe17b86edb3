package gateway

import (
	"time"

	"github.com/ManuelReschke/GitDataEdit/internal/pkg/github"
)

// RepoSummary is a repository reachable through one of the user's installations.
type RepoSummary struct {
	ID             int64        `json:"id"`
	Name           string       `json:"name"`
	FullName       string       `json:"full_name"`
	Owner          github.Owner `json:"owner"`
	Private        bool         `json:"private"`
	DefaultBranch  string       `json:"default_branch"`
	Description    string       `json:"description"`
	HTMLURL        string       `json:"html_url"`
	UpdatedAt      time.Time    `json:"updated_at"`
	InstallationID int64        `json:"installation_id"`
}

// FileEntry is one editable file of a repository index.
type FileEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
	Size int64  `json:"size"`
}

// FileBlob is GitHub's contents object plus the decoded text.
type FileBlob struct {
	github.Content
	DecodedContent string `json:"decoded_content"`
}

type CommitRequest struct {
	Owner       string
	Repo        string
	Path        string
	Content     string
	ExpectedSHA string
	Message     string
}

type CommitResult struct {
	Content github.ContentFile `json:"content"`
	Commit  github.CommitInfo  `json:"commit"`
}
