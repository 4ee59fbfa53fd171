package trainer

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// GitHubList is a plain-text URL list stored in a GitHub repository, one URL
// per line, all carrying the same label.
type GitHubList struct {
	Owner string
	Repo  string
	Path  string
	Label int
}

// ParseGitHubList parses "owner/repo/path/to/file.txt".
func ParseGitHubList(spec string, label int) (GitHubList, error) {
	parts := strings.SplitN(strings.Trim(spec, "/"), "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return GitHubList{}, fmt.Errorf("github list %q: want owner/repo/path", spec)
	}
	return GitHubList{Owner: parts[0], Repo: parts[1], Path: parts[2], Label: label}, nil
}

// GitHubFetcher downloads URL lists through the GitHub contents API.
type GitHubFetcher struct {
	client *github.Client
	logger *slog.Logger
}

// NewGitHubFetcher authenticates with token when set; anonymous access works
// for public repositories at a lower rate limit.
func NewGitHubFetcher(ctx context.Context, token string, logger *slog.Logger) *GitHubFetcher {
	if token == "" {
		return &GitHubFetcher{client: github.NewClient(nil), logger: logger}
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &GitHubFetcher{client: github.NewClient(oauth2.NewClient(ctx, ts)), logger: logger}
}

// NewGitHubFetcherWithClient uses an existing client, e.g. one pointed at a
// GitHub Enterprise or test server.
func NewGitHubFetcherWithClient(client *github.Client, logger *slog.Logger) *GitHubFetcher {
	return &GitHubFetcher{client: client, logger: logger}
}

// Fetch returns at most limit samples from list; limit <= 0 means all.
// Blank lines and # comments are skipped.
func (f *GitHubFetcher) Fetch(ctx context.Context, list GitHubList, limit int) ([]Sample, error) {
	rc, _, err := f.client.Repositories.DownloadContents(ctx, list.Owner, list.Repo, list.Path, nil)
	if err != nil {
		return nil, fmt.Errorf("download %s/%s/%s: %w", list.Owner, list.Repo, list.Path, err)
	}
	defer rc.Close()

	var out []Sample
	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, Sample{URL: line, Label: list.Label})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", list.Path, err)
	}
	f.logger.Info("fetched url list", "repo", list.Owner+"/"+list.Repo, "path", list.Path, "urls", len(out))
	return out, nil
}
