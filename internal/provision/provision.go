// Package provision creates the destination repository on the hosting
// platform the first time a repository is mirrored.
package provision

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/go-github/v68/github"
)

// Placeholder replaced with the repository name in description and homepage
// templates. Substitution is literal, nothing else is expanded.
const namePlaceholder = "%name"

// Request describes the repository to create.
type Request struct {
	Name        string
	Description string
	Homepage    string
	Private     bool
}

// Creator provisions a repository and returns its push URL.
type Creator interface {
	CreateRepository(ctx context.Context, req Request) (string, error)
}

// GitHubCreator implements Creator against the GitHub API.
type GitHubCreator struct {
	tokenFile string
	baseURL   string
}

// NewGitHubCreator creates a provisioner reading its bearer token from
// tokenFile. A non-empty baseURL targets a GitHub Enterprise instance (or a
// test server) instead of github.com.
func NewGitHubCreator(tokenFile, baseURL string) *GitHubCreator {
	return &GitHubCreator{
		tokenFile: tokenFile,
		baseURL:   baseURL,
	}
}

// CreateRepository creates the repository under the token's account and
// returns its SSH push URL. Platform errors are returned as reported so the
// operator sees the real reason (name taken, bad credentials, ...).
func (c *GitHubCreator) CreateRepository(ctx context.Context, req Request) (string, error) {
	token, err := c.loadToken()
	if err != nil {
		return "", err
	}

	client := github.NewClient(nil).WithAuthToken(token)
	if c.baseURL != "" {
		client, err = client.WithEnterpriseURLs(c.baseURL, c.baseURL)
		if err != nil {
			return "", fmt.Errorf("invalid API base URL %q: %w", c.baseURL, err)
		}
	}

	repo := &github.Repository{
		Name:        github.Ptr(req.Name),
		Description: github.Ptr(req.Description),
		Homepage:    github.Ptr(req.Homepage),
		Private:     github.Ptr(req.Private),
		IsTemplate:  github.Ptr(false),
	}

	created, _, err := client.Repositories.Create(ctx, "", repo)
	if err != nil {
		return "", fmt.Errorf("failed to create repository %q: %w", req.Name, err)
	}

	pushURL := created.GetSSHURL()
	if pushURL == "" {
		return "", fmt.Errorf("platform returned no push URL for repository %q", req.Name)
	}
	return pushURL, nil
}

// loadToken reads the credential file; the whole trimmed contents are the
// bearer token.
func (c *GitHubCreator) loadToken() (string, error) {
	if c.tokenFile == "" {
		return "", fmt.Errorf("no token file configured")
	}

	data, err := os.ReadFile(c.tokenFile)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", c.tokenFile)
	}
	return token, nil
}

// ExpandTemplate substitutes the repository name into a user-configured
// description or homepage template.
func ExpandTemplate(template, name string) string {
	return strings.ReplaceAll(template, namePlaceholder, name)
}
