package github

import "time"

// Account is the user or organization an installation belongs to.
type Account struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
	Type  string `json:"type"`
}

// Installation is an App installation as seen with the App JWT.
type Installation struct {
	ID      int64    `json:"id"`
	Account *Account `json:"account"`
}

// AccountLogin returns the account login or "" when the payload omits it.
func (i *Installation) AccountLogin() string {
	if i.Account == nil {
		return ""
	}
	return i.Account.Login
}

func (i *Installation) AccountType() string {
	if i.Account == nil {
		return ""
	}
	return i.Account.Type
}

type accessToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Owner struct {
	Login string `json:"login"`
}

// Repository is the subset of the GitHub repository object the editor uses.
type Repository struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Owner         Owner     `json:"owner"`
	Private       bool      `json:"private"`
	DefaultBranch string    `json:"default_branch"`
	Description   string    `json:"description"`
	HTMLURL       string    `json:"html_url"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type repositoryList struct {
	TotalCount   int          `json:"total_count"`
	Repositories []Repository `json:"repositories"`
}

type TreeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
	Size int64  `json:"size"`
}

type Tree struct {
	SHA       string      `json:"sha"`
	Tree      []TreeEntry `json:"tree"`
	Truncated bool        `json:"truncated"`
}

// Content is a file object from the contents API.
type Content struct {
	Type        string `json:"type"`
	Encoding    string `json:"encoding"`
	Size        int64  `json:"size"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	Content     string `json:"content"`
	SHA         string `json:"sha"`
	URL         string `json:"url"`
	HTMLURL     string `json:"html_url"`
	DownloadURL string `json:"download_url"`
}

// PutContentsOptions is the body of a create-or-update file request.
// Content must already be base64 encoded.
type PutContentsOptions struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

type CommitInfo struct {
	SHA     string `json:"sha"`
	Message string `json:"message"`
	HTMLURL string `json:"html_url"`
}

type ContentFile struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	SHA     string `json:"sha"`
	Size    int64  `json:"size"`
	HTMLURL string `json:"html_url"`
}

// ContentUpdate is GitHub's answer to a successful file write.
type ContentUpdate struct {
	Content ContentFile `json:"content"`
	Commit  CommitInfo  `json:"commit"`
}
