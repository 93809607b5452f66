package history

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"sanskara/internal/domain"
)

// APIError is a non-2xx backend response, preserved with its status code so
// the error classifier can map it onto the user-facing taxonomy.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) StatusCode() int { return e.Status }

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, body)
}

// Client fetches session history pages from the backend REST API.
type Client struct {
	http *resty.Client
	log  *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: rc, log: log}
}

// Fetch retrieves one page of session history. Pages come back newest-first;
// callers reverse them for display.
func (c *Client) Fetch(ctx context.Context, sessionID string, q domain.HistoryQuery) (domain.HistoryPage, error) {
	var page domain.HistoryPage

	req := c.http.R().
		SetContext(ctx).
		SetResult(&page).
		SetQueryParam("limit", strconv.Itoa(q.Limit)).
		SetQueryParam("offset", strconv.Itoa(q.Offset))
	if q.StartDate != "" {
		req.SetQueryParam("start_date", q.StartDate)
	}
	if q.EndDate != "" {
		req.SetQueryParam("end_date", q.EndDate)
	}
	if len(q.EventTypes) > 0 {
		req.SetQueryParam("event_types_filter", strings.Join(q.EventTypes, ","))
	}

	resp, err := req.Get("/sessions/" + url.PathEscape(sessionID) + "/history")
	if err != nil {
		return domain.HistoryPage{}, fmt.Errorf("fetch history: %w", err)
	}
	if resp.IsError() {
		return domain.HistoryPage{}, &APIError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}

	c.log.Debug("history page fetched",
		zap.String("session_id", sessionID),
		zap.Int("offset", q.Offset),
		zap.Int("count", len(page.History)),
		zap.Int("total", page.TotalCount))
	return page, nil
}
