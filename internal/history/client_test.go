package history

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sanskara/internal/domain"
)

func TestClientFetchBuildsRequestAndDecodesPage(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		page := domain.HistoryPage{TotalCount: 42}
		page.History = make([]domain.HistoryEvent, 2)
		page.History[0].EventID = "evt-2"
		page.History[0].Content.Text = "newest"
		page.History[1].EventID = "evt-1"
		page.History[1].Content.Text = "older"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, nil)
	page, err := client.Fetch(context.Background(), "sess-1", domain.HistoryQuery{
		Offset:     20,
		Limit:      10,
		StartDate:  "2026-01-01T00:00:00Z",
		EventTypes: []string{"user_message", "agent_message"},
	})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if gotPath != "/sessions/sess-1/history" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	want := map[string]string{
		"limit":       "10",
		"offset":      "20",
		"start_date":  "2026-01-01T00:00:00Z",
		"event_types_filter": "user_message,agent_message",
	}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Fatalf("query %s: expected %q, got %q", k, v, gotQuery[k])
		}
	}
	if _, ok := gotQuery["end_date"]; ok {
		t.Fatalf("empty end_date must be omitted")
	}

	if page.TotalCount != 42 {
		t.Fatalf("expected total 42, got %d", page.TotalCount)
	}
	if len(page.History) != 2 || page.History[0].EventID != "evt-2" {
		t.Fatalf("unexpected page contents: %+v", page.History)
	}
}

func TestClientFetchReturnsAPIErrorWithStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, nil)
	_, err := client.Fetch(context.Background(), "sess-1", domain.HistoryQuery{Limit: 10})
	if err == nil {
		t.Fatalf("expected an error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", apiErr.Status)
	}
}
