package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const FakeAppID = "12345"

var (
	appKeyOnce sync.Once
	appKey     *rsa.PrivateKey
	appKeyPEM  string
)

// AppPrivateKey returns a process-wide RSA key in PEM form for signing App JWTs.
func AppPrivateKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	appKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		appKey = key
		appKeyPEM = string(pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		}))
	})
	return appKey, appKeyPEM
}

type fakeFile struct {
	content string
	sha     string
}

// FakeRepo is a repository served by FakeGitHub.
type FakeRepo struct {
	ID            int64
	Owner         string
	Name          string
	Private       bool
	DefaultBranch string

	mu      sync.Mutex
	files   map[string]fakeFile
	commits int
}

// FakeInstallation is one App installation with the repositories it can reach.
type FakeInstallation struct {
	ID    int64
	Login string
	Type  string
	Repos []*FakeRepo

	// Fail makes every repository call of this installation answer 500.
	Fail bool
	// Delay is applied to every repository call of this installation.
	Delay time.Duration
}

// FakeGitHub is an in-process stand-in for the GitHub REST API covering the
// App, installation and contents endpoints the gateway uses.
type FakeGitHub struct {
	Server *httptest.Server

	t      *testing.T
	mu     sync.Mutex
	order  []int64
	insts  map[int64]*FakeInstallation
	tokens map[string]int64
	calls  map[int64]int
	issued int
}

var repoSeq int64

func blobSHA(content string) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}

// NewFakeRepo creates a repository with the given files (path to content).
func NewFakeRepo(owner, name string, private bool, files map[string]string) *FakeRepo {
	r := &FakeRepo{
		ID:            1000 + atomic.AddInt64(&repoSeq, 1),
		Owner:         owner,
		Name:          name,
		Private:       private,
		DefaultBranch: "main",
		files:         make(map[string]fakeFile),
	}
	for p, c := range files {
		r.files[p] = fakeFile{content: c, sha: blobSHA(c)}
	}
	return r
}

func (r *FakeRepo) FullName() string {
	return r.Owner + "/" + r.Name
}

// File returns the current content and blob sha of p.
func (r *FakeRepo) File(p string) (content, sha string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[p]
	return f.content, f.sha, ok
}

// Commits counts successful writes.
func (r *FakeRepo) Commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commits
}

// NewFakeGitHub starts the fake API; it is closed on test cleanup.
func NewFakeGitHub(t *testing.T) *FakeGitHub {
	t.Helper()
	f := &FakeGitHub{
		t:      t,
		insts:  make(map[int64]*FakeInstallation),
		tokens: make(map[string]int64),
		calls:  make(map[int64]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /app/installations", f.listInstallations)
	mux.HandleFunc("GET /app/installations/{id}", f.getInstallation)
	mux.HandleFunc("POST /app/installations/{id}/access_tokens", f.createToken)
	mux.HandleFunc("GET /installation/repositories", f.installationRepos)
	mux.HandleFunc("GET /repos/{owner}/{repo}", f.getRepo)
	mux.HandleFunc("GET /repos/{owner}/{repo}/git/trees/{ref...}", f.getTree)
	mux.HandleFunc("GET /repos/{owner}/{repo}/contents/{path...}", f.getContents)
	mux.HandleFunc("PUT /repos/{owner}/{repo}/contents/{path...}", f.putContents)

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

func (f *FakeGitHub) URL() string {
	return f.Server.URL
}

// PrivateKeyPEM is the key the fake accepts App JWTs from.
func (f *FakeGitHub) PrivateKeyPEM() string {
	_, p := AppPrivateKey(f.t)
	return p
}

// AddInstallation registers an installation. Installations are listed in the
// order they were added.
func (f *FakeGitHub) AddInstallation(id int64, login, accountType string, repos ...*FakeRepo) *FakeInstallation {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst := &FakeInstallation{ID: id, Login: login, Type: accountType, Repos: repos}
	f.insts[id] = inst
	f.order = append(f.order, id)
	return inst
}

// Calls returns how many repository-scoped requests the installation served.
func (f *FakeGitHub) Calls(installationID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[installationID]
}

// TokensIssued counts access tokens minted so far.
func (f *FakeGitHub) TokensIssued() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issued
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func (f *FakeGitHub) checkAppJWT(w http.ResponseWriter, r *http.Request) bool {
	key, _ := AppPrivateKey(f.t)
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(bearer(r), claims, func(token *jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil || claims.Issuer != FakeAppID {
		writeMessage(w, http.StatusUnauthorized, "A JSON web token could not be decoded")
		return false
	}
	return true
}

func installationJSON(inst *FakeInstallation) map[string]interface{} {
	return map[string]interface{}{
		"id": inst.ID,
		"account": map[string]interface{}{
			"login": inst.Login,
			"type":  inst.Type,
		},
	}
}

func (f *FakeGitHub) listInstallations(w http.ResponseWriter, r *http.Request) {
	if !f.checkAppJWT(w, r) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(f.order))
	if page := r.URL.Query().Get("page"); page == "" || page == "1" {
		for _, id := range f.order {
			out = append(out, installationJSON(f.insts[id]))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (f *FakeGitHub) lookupInstallation(w http.ResponseWriter, r *http.Request) (*FakeInstallation, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	f.mu.Lock()
	inst, ok := f.insts[id]
	f.mu.Unlock()
	if err != nil || !ok {
		writeMessage(w, http.StatusNotFound, "Not Found")
		return nil, false
	}
	return inst, true
}

func (f *FakeGitHub) getInstallation(w http.ResponseWriter, r *http.Request) {
	if !f.checkAppJWT(w, r) {
		return
	}
	if inst, ok := f.lookupInstallation(w, r); ok {
		writeJSON(w, http.StatusOK, installationJSON(inst))
	}
}

func (f *FakeGitHub) createToken(w http.ResponseWriter, r *http.Request) {
	if !f.checkAppJWT(w, r) {
		return
	}
	inst, ok := f.lookupInstallation(w, r)
	if !ok {
		return
	}
	f.mu.Lock()
	f.issued++
	token := fmt.Sprintf("ghs_%d_%d", inst.ID, f.issued)
	f.tokens[token] = inst.ID
	f.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"token":      token,
		"expires_at": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
}

// installationFor authenticates an installation token and applies the
// installation's injected failure and delay.
func (f *FakeGitHub) installationFor(w http.ResponseWriter, r *http.Request) (*FakeInstallation, bool) {
	f.mu.Lock()
	id, ok := f.tokens[bearer(r)]
	var inst *FakeInstallation
	if ok {
		inst = f.insts[id]
		f.calls[id]++
	}
	f.mu.Unlock()

	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Bad credentials")
		return nil, false
	}
	if inst.Delay > 0 {
		select {
		case <-time.After(inst.Delay):
		case <-r.Context().Done():
			return nil, false
		}
	}
	if inst.Fail {
		writeMessage(w, http.StatusInternalServerError, "Server Error")
		return nil, false
	}
	return inst, true
}

func (f *FakeGitHub) repoFor(w http.ResponseWriter, r *http.Request) (*FakeRepo, bool) {
	inst, ok := f.installationFor(w, r)
	if !ok {
		return nil, false
	}
	owner, name := r.PathValue("owner"), r.PathValue("repo")
	for _, repo := range inst.Repos {
		if strings.EqualFold(repo.Owner, owner) && strings.EqualFold(repo.Name, name) {
			return repo, true
		}
	}
	writeMessage(w, http.StatusNotFound, "Not Found")
	return nil, false
}

func repoJSON(repo *FakeRepo) map[string]interface{} {
	return map[string]interface{}{
		"id":             repo.ID,
		"name":           repo.Name,
		"full_name":      repo.FullName(),
		"owner":          map[string]string{"login": repo.Owner},
		"private":        repo.Private,
		"default_branch": repo.DefaultBranch,
		"description":    "",
		"html_url":       "https://github.com/" + repo.FullName(),
		"updated_at":     "2024-01-01T00:00:00Z",
	}
}

func (f *FakeGitHub) installationRepos(w http.ResponseWriter, r *http.Request) {
	inst, ok := f.installationFor(w, r)
	if !ok {
		return
	}
	repos := make([]map[string]interface{}, 0, len(inst.Repos))
	if page := r.URL.Query().Get("page"); page == "" || page == "1" {
		for _, repo := range inst.Repos {
			repos = append(repos, repoJSON(repo))
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_count":  len(inst.Repos),
		"repositories": repos,
	})
}

func (f *FakeGitHub) getRepo(w http.ResponseWriter, r *http.Request) {
	if repo, ok := f.repoFor(w, r); ok {
		writeJSON(w, http.StatusOK, repoJSON(repo))
	}
}

func (f *FakeGitHub) getTree(w http.ResponseWriter, r *http.Request) {
	repo, ok := f.repoFor(w, r)
	if !ok {
		return
	}
	if r.PathValue("ref") != repo.DefaultBranch {
		writeMessage(w, http.StatusNotFound, "Not Found")
		return
	}

	repo.mu.Lock()
	paths := make([]string, 0, len(repo.files))
	dirs := make(map[string]bool)
	for p := range repo.files {
		paths = append(paths, p)
		for d := path.Dir(p); d != "."; d = path.Dir(d) {
			dirs[d] = true
		}
	}
	sort.Strings(paths)
	entries := make([]map[string]interface{}, 0, len(paths)+len(dirs))
	for d := range dirs {
		entries = append(entries, map[string]interface{}{
			"path": d, "mode": "040000", "type": "tree", "sha": blobSHA(d),
		})
	}
	for _, p := range paths {
		file := repo.files[p]
		entries = append(entries, map[string]interface{}{
			"path": p, "mode": "100644", "type": "blob", "sha": file.sha, "size": len(file.content),
		})
	}
	repo.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sha":       blobSHA(repo.FullName()),
		"tree":      entries,
		"truncated": false,
	})
}

// wrapBase64 breaks encoded content into 60 character lines the way GitHub does.
func wrapBase64(s string) string {
	var b strings.Builder
	for len(s) > 60 {
		b.WriteString(s[:60])
		b.WriteByte('\n')
		s = s[60:]
	}
	b.WriteString(s)
	b.WriteByte('\n')
	return b.String()
}

func (f *FakeGitHub) getContents(w http.ResponseWriter, r *http.Request) {
	repo, ok := f.repoFor(w, r)
	if !ok {
		return
	}
	p := r.PathValue("path")
	content, sha, exists := repo.File(p)
	if !exists {
		writeMessage(w, http.StatusNotFound, "Not Found")
		return
	}
	apiURL := fmt.Sprintf("%s/repos/%s/contents/%s", f.URL(), repo.FullName(), p)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"type":         "file",
		"encoding":     "base64",
		"size":         len(content),
		"name":         path.Base(p),
		"path":         p,
		"content":      wrapBase64(base64.StdEncoding.EncodeToString([]byte(content))),
		"sha":          sha,
		"url":          apiURL,
		"html_url":     fmt.Sprintf("https://github.com/%s/blob/%s/%s", repo.FullName(), repo.DefaultBranch, p),
		"download_url": fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s", repo.FullName(), repo.DefaultBranch, p),
	})
}

func (f *FakeGitHub) putContents(w http.ResponseWriter, r *http.Request) {
	repo, ok := f.repoFor(w, r)
	if !ok {
		return
	}
	var body struct {
		Message string `json:"message"`
		Content string `json:"content"`
		SHA     string `json:"sha"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Message == "" {
		writeMessage(w, http.StatusUnprocessableEntity, "Invalid request.")
		return
	}
	decoded, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil {
		writeMessage(w, http.StatusUnprocessableEntity, "content is not valid Base64")
		return
	}

	p := r.PathValue("path")
	repo.mu.Lock()
	current, exists := repo.files[p]
	if exists && current.sha != body.SHA {
		repo.mu.Unlock()
		writeMessage(w, http.StatusConflict, fmt.Sprintf("%s does not match %s", p, body.SHA))
		return
	}
	next := fakeFile{content: string(decoded), sha: blobSHA(string(decoded))}
	repo.files[p] = next
	repo.commits++
	commitSHA := blobSHA(fmt.Sprintf("commit-%s-%d", repo.FullName(), repo.commits))
	repo.mu.Unlock()

	status := http.StatusOK
	if !exists {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]interface{}{
		"content": map[string]interface{}{
			"name":     path.Base(p),
			"path":     p,
			"sha":      next.sha,
			"size":     len(next.content),
			"html_url": fmt.Sprintf("https://github.com/%s/blob/%s/%s", repo.FullName(), repo.DefaultBranch, p),
		},
		"commit": map[string]interface{}{
			"sha":      commitSHA,
			"message":  body.Message,
			"html_url": fmt.Sprintf("https://github.com/%s/commit/%s", repo.FullName(), commitSHA),
		},
	})
}
