package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/lumeo-ai/studio/internal/config"
	"github.com/lumeo-ai/studio/internal/models"
)

// APIError carries the backend's human-readable failure detail so it can be
// surfaced to the user verbatim.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("generation failed with status %d", e.Status)
}

// Client talks to the external generation API. Requests are multipart form
// posts; responses carry the produced media URL under a mode-specific key.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.GenerationTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.GenerationAPIURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// ImageRequest is an image-generation submission. Files and FromImage are
// mutually exclusive: FromImage carries the prior result re-encoded as a
// base64 data string when the user is editing in place.
type ImageRequest struct {
	UserID      string
	Prompt      string
	AspectRatio string
	Files       []models.Attachment
	FromImage   string
}

// VideoRequest is a video-generation submission with an optional start frame.
type VideoRequest struct {
	UserID      string
	Prompt      string
	AspectRatio string
	StartFrame  *models.Attachment
}

// GenerateImage posts to the image endpoint and returns the media URL.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writeCommonFields(writer, req.UserID, req.Prompt, req.AspectRatio); err != nil {
		return "", err
	}
	for _, file := range req.Files {
		part, err := writer.CreateFormFile("files", file.Name)
		if err != nil {
			return "", fmt.Errorf("create file part: %w", err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return "", fmt.Errorf("write file part: %w", err)
		}
	}
	if len(req.Files) == 0 && req.FromImage != "" {
		if err := writer.WriteField("from_image", req.FromImage); err != nil {
			return "", fmt.Errorf("write from_image field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	return c.post(ctx, "/generate-image", writer.FormDataContentType(), body, "image")
}

// GenerateVideo posts to the video endpoint and returns the media URL.
func (c *Client) GenerateVideo(ctx context.Context, req VideoRequest) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writeCommonFields(writer, req.UserID, req.Prompt, req.AspectRatio); err != nil {
		return "", err
	}
	if req.StartFrame != nil {
		part, err := writer.CreateFormFile("file_start", req.StartFrame.Name)
		if err != nil {
			return "", fmt.Errorf("create start frame part: %w", err)
		}
		if _, err := part.Write(req.StartFrame.Data); err != nil {
			return "", fmt.Errorf("write start frame part: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	return c.post(ctx, "/generate-video", writer.FormDataContentType(), body, "video")
}

func writeCommonFields(writer *multipart.Writer, userID, prompt, aspectRatio string) error {
	if err := writer.WriteField("user_id", userID); err != nil {
		return fmt.Errorf("write user_id field: %w", err)
	}
	if err := writer.WriteField("prompt", prompt); err != nil {
		return fmt.Errorf("write prompt field: %w", err)
	}
	if err := writer.WriteField("aspect_ratio", aspectRatio); err != nil {
		return fmt.Errorf("write aspect_ratio field: %w", err)
	}
	return nil
}

// post submits the form and extracts the media URL from the response under
// the given key ("image" or "video").
func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader, mediaKey string) (string, error) {
	endpoint := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		detail := errorDetail(rawBody)
		if c.log != nil {
			c.log.Error("generation request failed", "path", path, "status", resp.StatusCode, "detail", detail)
		}
		return "", &APIError{Status: resp.StatusCode, Detail: detail}
	}

	var payload map[string]string
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return "", fmt.Errorf("decode generation response: %w", err)
	}
	url := payload[mediaKey]
	if url == "" {
		return "", fmt.Errorf("missing %q url in generation response", mediaKey)
	}
	return url, nil
}

func errorDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Detail
}
