// Package artifacts talks to the backend artifact endpoints: multipart
// upload, per-session listing, and base64 content retrieval.
package artifacts

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"sanskara/internal/domain"
)

// APIError is a non-2xx backend response with its status preserved for the
// error classifier.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) StatusCode() int { return e.Status }

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("artifact backend returned status %d", e.Status)
	}
	return fmt.Sprintf("artifact backend returned status %d: %s", e.Status, body)
}

// Client is the artifact store backed by the REST API.
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

type uploadResponse struct {
	Artifact domain.ArtifactMeta `json:"artifact"`
}

type listResponse struct {
	Artifacts []domain.ArtifactMeta `json:"artifacts"`
}

// Upload sends one file as multipart form data and returns the stored
// version's metadata.
func (c *Client) Upload(ctx context.Context, userID, sessionID, filename string, data io.Reader, caption string) (domain.ArtifactMeta, error) {
	var out uploadResponse

	req := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetFormData(map[string]string{
			"user_id":    userID,
			"session_id": sessionID,
		}).
		SetFileReader("file", filename, data)
	if caption != "" {
		req.SetFormData(map[string]string{"caption": caption})
	}

	resp, err := req.Post("/artifacts/upload")
	if err != nil {
		return domain.ArtifactMeta{}, fmt.Errorf("upload artifact: %w", err)
	}
	if resp.IsError() {
		return domain.ArtifactMeta{}, &APIError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}

	c.log.Info("artifact uploaded",
		zap.String("session_id", sessionID),
		zap.String("filename", filename),
		zap.String("version", out.Artifact.Version))
	return out.Artifact, nil
}

// List returns all artifact versions recorded for a session.
func (c *Client) List(ctx context.Context, userID, sessionID string) ([]domain.ArtifactMeta, error) {
	var out listResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetQueryParam("user_id", userID).
		SetQueryParam("session_id", sessionID).
		Get("/artifacts/list")
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}
	return out.Artifacts, nil
}

// Content fetches one artifact version with its base64-encoded payload.
func (c *Client) Content(ctx context.Context, userID, sessionID, version string) (domain.ArtifactContent, error) {
	var out domain.ArtifactContent

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetQueryParam("user_id", userID).
		SetQueryParam("session_id", sessionID).
		SetQueryParam("version", version).
		Get("/artifacts/content")
	if err != nil {
		return domain.ArtifactContent{}, fmt.Errorf("fetch artifact content: %w", err)
	}
	if resp.IsError() {
		return domain.ArtifactContent{}, &APIError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}
	return out, nil
}
