package utils

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/Kamar-Folarin/repo-ingest/internal/models"
)

var (
	scpLikeURL = regexp.MustCompile(`^([A-Za-z0-9._-]+)@([A-Za-z0-9.-]+):(.+)$`)
	uploadID   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

// NormalizeGitURL validates a repository reference and returns its
// canonical form, so the same repository always compares equal. Accepted:
// http(s) and ssh URLs, scp-like "git@host:owner/repo" and local uploads
// ("local://<uploadId>"). The result is a comparison key; clone from the
// reference as submitted.
func NormalizeGitURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("repository URL cannot be empty")
	}

	if strings.HasPrefix(raw, models.LocalUploadScheme) {
		id := strings.TrimPrefix(raw, models.LocalUploadScheme)
		if !uploadID.MatchString(id) {
			return "", fmt.Errorf("invalid upload id %q", id)
		}
		return models.LocalUploadScheme + id, nil
	}

	if m := scpLikeURL.FindStringSubmatch(raw); m != nil {
		path, err := cleanRepoPath(m[3])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s@%s:%s", m[1], strings.ToLower(m[2]), path), nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid repository URL: %w", err)
	}
	switch u.Scheme {
	case "https", "http", "ssh":
	default:
		return "", fmt.Errorf("unsupported repository URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("repository URL has no host")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("repository URL cannot have a query or fragment")
	}

	path, err := cleanRepoPath(u.Path)
	if err != nil {
		return "", err
	}
	u.Host = strings.ToLower(u.Host)
	u.Path = "/" + path
	u.RawPath = ""
	return u.String(), nil
}

func cleanRepoPath(p string) (string, error) {
	p = strings.TrimSuffix(strings.Trim(p, "/"), ".git")
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "", fmt.Errorf("repository URL must name a repository")
	}
	for _, part := range strings.Split(p, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("invalid repository path %q", p)
		}
	}
	return p, nil
}

// ParseRepoURL splits a normalized repository URL into host, owner and name.
func ParseRepoURL(repoURL string) (host, owner, name string, err error) {
	var path string
	if m := scpLikeURL.FindStringSubmatch(repoURL); m != nil {
		host, path = m[2], m[3]
	} else {
		u, err := url.Parse(repoURL)
		if err != nil {
			return "", "", "", err
		}
		host, path = u.Hostname(), u.Path
	}

	parts := strings.Split(strings.TrimSuffix(strings.Trim(path, "/"), ".git"), "/")
	if len(parts) < 2 {
		return "", "", "", fmt.Errorf("invalid repository URL")
	}
	return strings.ToLower(host), parts[0], parts[1], nil
}

// IsGitHubURL reports whether the repository is hosted on github.com.
func IsGitHubURL(repoURL string) bool {
	host, _, _, err := ParseRepoURL(repoURL)
	return err == nil && (host == "github.com" || host == "www.github.com")
}
