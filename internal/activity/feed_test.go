package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestFileFeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	data := `[{"source_id":"repo@1","timestamp":"2024-03-01T10:00:00Z"},{"source_id":"repo@2","timestamp":""}]`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("failed to write events: %v", err)
	}

	events, err := FileFeed{Path: path}.Events(context.Background())
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != 2 || events[0].SourceID != "repo@1" {
		t.Errorf("unexpected events: %+v", events)
	}

	if _, err := (FileFeed{Path: filepath.Join(t.TempDir(), "missing.json")}).Events(context.Background()); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestGitHubFeedPaginates(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Path != "/repos/acme/app/commits" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("author"); got != "alice" {
			t.Errorf("author = %q, want alice", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}

		count := githubPageSize
		if r.URL.Query().Get("page") == "2" {
			count = 3
		}
		commits := make([]map[string]interface{}, count)
		for i := range commits {
			commits[i] = map[string]interface{}{
				"sha": fmt.Sprintf("%s-%d", r.URL.Query().Get("page"), i),
				"commit": map[string]interface{}{
					"author": map[string]string{"date": "2024-03-01T10:00:00Z"},
				},
			}
		}
		json.NewEncoder(w).Encode(commits)
	}))
	defer server.Close()

	feed := NewGitHubFeed("secret", "alice", []string{"acme/app"})
	feed.BaseURL = server.URL

	events, err := feed.Events(context.Background())
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != githubPageSize+3 {
		t.Errorf("expected %d events, got %d", githubPageSize+3, len(events))
	}
	if requests != 2 {
		t.Errorf("expected 2 requests, got %d", requests)
	}
	if events[0].SourceID != "acme/app@1-0" {
		t.Errorf("unexpected source id %q", events[0].SourceID)
	}
}

func TestGitHubFeedReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	}))
	defer server.Close()

	feed := NewGitHubFeed("", "alice", []string{"acme/app"})
	feed.BaseURL = server.URL

	if _, err := feed.Events(context.Background()); err == nil {
		t.Fatal("expected an error for a 403 response")
	}
}
