// Package backend is the client for the tracker API. Every call takes the
// caller's credential explicitly.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxBodyBytes bounds how much of an API response is read.
const maxBodyBytes = 1 << 20

type Announcement struct {
	ID     string `json:"_id"`
	Slug   string `json:"slug,omitempty"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Pinned bool   `json:"pinned"`
}

type EditAnnouncementRequest struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	Pinned bool   `json:"pinned"`
}

type UploadRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Source      string `json:"source"`
	Anonymous   bool   `json:"anonymous"`
	Torrent     string `json:"torrent"`
	Tags        string `json:"tags"`
}

// Response is the raw outcome of a submission. Body is plain text: the
// resource identifier on success, a human readable reason otherwise.
type Response struct {
	Status int
	Body   string
}

func (r Response) OK() bool {
	return r.Status == http.StatusOK
}

// StatusError is returned by fetches that received a non-success status.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api returned status %d", e.Status)
	}
	return fmt.Sprintf("api returned status %d: %s", e.Status, e.Body)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return NewClientWithHTTP(baseURL, &http.Client{Timeout: timeout}, logger)
}

func NewClientWithHTTP(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// GetAnnouncement fetches an announcement by slug.
func (c *Client) GetAnnouncement(ctx context.Context, credential, slug string) (Announcement, error) {
	resp, err := c.do(ctx, http.MethodGet, "/announcements/"+url.PathEscape(slug), credential, nil)
	if err != nil {
		return Announcement{}, err
	}
	if !resp.OK() {
		c.logger.Warn("announcement fetch returned non-OK status",
			zap.String("slug", slug), zap.Int("status", resp.Status))
		return Announcement{}, &StatusError{Status: resp.Status, Body: resp.Body}
	}

	var announcement Announcement
	if err := json.Unmarshal([]byte(resp.Body), &announcement); err != nil {
		return Announcement{}, fmt.Errorf("decode announcement: %w", err)
	}
	if announcement.Slug == "" {
		announcement.Slug = slug
	}
	return announcement, nil
}

// EditAnnouncement updates announcement id. A transport failure is returned
// as an error; any HTTP status is returned as a Response.
func (c *Client) EditAnnouncement(ctx context.Context, credential, id string, payload EditAnnouncementRequest) (Response, error) {
	return c.do(ctx, http.MethodPost, "/announcements/edit/"+url.PathEscape(id), credential, payload)
}

func (c *Client) UploadTorrent(ctx context.Context, credential string, payload UploadRequest) (Response, error) {
	return c.do(ctx, http.MethodPost, "/torrent/upload", credential, payload)
}

func (c *Client) do(ctx context.Context, method, path, credential string, payload any) (Response, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return Response{}, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("api request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return Response{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	return Response{Status: res.StatusCode, Body: string(raw)}, nil
}
