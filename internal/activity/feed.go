package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Feed supplies the raw activity events for a user.
type Feed interface {
	Events(ctx context.Context) ([]Event, error)
}

// FileFeed reads a JSON array of events from disk.
type FileFeed struct {
	Path string
}

func (f FileFeed) Events(_ context.Context) ([]Event, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read events file: %w", err)
	}
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("failed to decode events file: %w", err)
	}
	return events, nil
}

const githubPageSize = 100

// GitHubFeed lists the commits authored by User across Repos ("owner/name").
type GitHubFeed struct {
	BaseURL    string
	Token      string
	User       string
	Repos      []string
	HTTPClient *http.Client
}

func NewGitHubFeed(token, user string, repos []string) *GitHubFeed {
	return &GitHubFeed{
		BaseURL: "https://api.github.com",
		Token:   token,
		User:    user,
		Repos:   repos,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type githubCommit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Author *struct {
			Date string `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

func (f *GitHubFeed) Events(ctx context.Context) ([]Event, error) {
	var events []Event
	for _, repo := range f.Repos {
		repo = strings.TrimSpace(repo)
		if repo == "" {
			continue
		}
		for page := 1; ; page++ {
			commits, err := f.listCommits(ctx, repo, page)
			if err != nil {
				return nil, err
			}
			for _, c := range commits {
				event := Event{SourceID: repo + "@" + c.SHA}
				if c.Commit.Author != nil {
					event.Timestamp = c.Commit.Author.Date
				}
				events = append(events, event)
			}
			if len(commits) < githubPageSize {
				break
			}
		}
	}

	log.Printf("Fetched %d commits for %s from %d repositories", len(events), f.User, len(f.Repos))
	return events, nil
}

func (f *GitHubFeed) listCommits(ctx context.Context, repo string, page int) ([]githubCommit, error) {
	u, err := url.Parse(fmt.Sprintf("%s/repos/%s/commits", strings.TrimRight(f.BaseURL, "/"), repo))
	if err != nil {
		return nil, fmt.Errorf("failed to parse commits URL: %w", err)
	}
	q := u.Query()
	if f.User != "" {
		q.Set("author", f.User)
	}
	q.Set("per_page", strconv.Itoa(githubPageSize))
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}

	client := f.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list commits for %s: %w", repo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("github returned status %d for %s: %s", resp.StatusCode, repo, string(body))
	}

	var commits []githubCommit
	if err := json.NewDecoder(resp.Body).Decode(&commits); err != nil {
		return nil, fmt.Errorf("failed to decode commits for %s: %w", repo, err)
	}
	return commits, nil
}
