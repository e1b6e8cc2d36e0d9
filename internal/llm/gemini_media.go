package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vidforensics/backend/pkg/apperr"
	"github.com/vidforensics/backend/pkg/logger"
)

// File states reported by the Gemini Files API.
const (
	FileStateProcessing = "PROCESSING"
	FileStateActive     = "ACTIVE"
	FileStateFailed     = "FAILED"
)

// MediaFile is an uploaded file as described by the Files API.
type MediaFile struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	State    string `json:"state"`
}

type MediaConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// MediaClient uploads video to Gemini and prompts the multimodal model
// against it. The OpenAI compatibility layer has no file support, so this
// speaks the native REST API.
type MediaClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewMediaClient(cfg MediaConfig) *MediaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &MediaClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      strings.TrimPrefix(cfg.Model, "models/"),
		httpClient: httpClient,
	}
}

func (c *MediaClient) Model() string    { return c.model }
func (c *MediaClient) Configured() bool { return c.apiKey != "" }

// Upload sends the file with the resumable protocol: a start request that
// returns an upload URL, then a single upload-and-finalize request.
func (c *MediaClient) Upload(ctx context.Context, path, mimeType string) (*MediaFile, error) {
	const op = "gemini.upload"

	info, err := os.Stat(path)
	if err != nil {
		return nil, apperr.Validation(op, "stat video: %v", err)
	}
	if mimeType == "" {
		mimeType = "video/mp4"
	}

	meta, _ := json.Marshal(map[string]interface{}{
		"file": map[string]string{"display_name": filepath.Base(path)},
	})
	start, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/upload/v1beta/files"), bytes.NewReader(meta))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	start.Header.Set("X-Goog-Upload-Protocol", "resumable")
	start.Header.Set("X-Goog-Upload-Command", "start")
	start.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.FormatInt(info.Size(), 10))
	start.Header.Set("X-Goog-Upload-Header-Content-Type", mimeType)
	start.Header.Set("Content-Type", "application/json")

	startResp, _, err := c.send(op, start)
	if err != nil {
		return nil, err
	}
	uploadURL := startResp.Header.Get("X-Goog-Upload-URL")
	if uploadURL == "" {
		return nil, apperr.Transient(op, fmt.Errorf("no upload URL returned"))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.Validation(op, "open video: %v", err)
	}
	defer f.Close()

	upload, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, f)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	upload.ContentLength = info.Size()
	upload.Header.Set("X-Goog-Upload-Offset", "0")
	upload.Header.Set("X-Goog-Upload-Command", "upload, finalize")

	_, raw, err := c.send(op, upload)
	if err != nil {
		return nil, err
	}

	var out struct {
		File MediaFile `json:"file"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || out.File.Name == "" {
		return nil, apperr.Transient(op, fmt.Errorf("unexpected upload response: %s", truncateBody(raw)))
	}

	logger.Debug("Gemini file uploaded", zap.String("name", out.File.Name), zap.String("state", out.File.State))
	return &out.File, nil
}

func (c *MediaClient) GetFile(ctx context.Context, name string) (*MediaFile, error) {
	const op = "gemini.get_file"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/v1beta/"+name), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	_, raw, err := c.send(op, req)
	if err != nil {
		return nil, err
	}
	var out MediaFile
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperr.Transient(op, fmt.Errorf("decode file: %w", err))
	}
	return &out, nil
}

// DeleteFile removes an uploaded file. Files expire on their own, so
// callers treat failures as advisory.
func (c *MediaClient) DeleteFile(ctx context.Context, name string) error {
	const op = "gemini.delete_file"
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint("/v1beta/"+name), nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	_, _, err = c.send(op, req)
	return err
}

// GenerateWithFile prompts the video model with the uploaded file followed
// by the text prompt.
func (c *MediaClient) GenerateWithFile(ctx context.Context, file *MediaFile, prompt string) (string, error) {
	const op = "gemini.generate"

	body := map[string]interface{}{
		"contents": []map[string]interface{}{{
			"role": "user",
			"parts": []map[string]interface{}{
				{"file_data": map[string]string{"mime_type": file.MimeType, "file_uri": file.URI}},
				{"text": prompt},
			},
		}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%s: encode request: %w", op, err)
	}

	path := fmt.Sprintf("/v1beta/models/%s:generateContent", c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	_, raw, err := c.send(op, req)
	if err != nil {
		return "", err
	}

	var out generateContentResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", apperr.Transient(op, fmt.Errorf("decode response: %w", err))
	}
	text := out.text()
	if text == "" {
		return "", apperr.Transient(op, fmt.Errorf("empty response"))
	}
	return text, nil
}

func (c *MediaClient) endpoint(path string) string {
	return c.baseURL + path + "?key=" + url.QueryEscape(c.apiKey)
}

func (c *MediaClient) send(op string, req *http.Request) (*http.Response, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, apperr.Transient(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, apperr.Transient(op, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, apperr.FromStatus(op, resp.StatusCode, raw)
	}
	return resp, raw, nil
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (r generateContentResponse) text() string {
	var b strings.Builder
	for _, cand := range r.Candidates {
		for _, part := range cand.Content.Parts {
			b.WriteString(part.Text)
		}
		if b.Len() > 0 {
			break
		}
	}
	return strings.TrimSpace(b.String())
}

func truncateBody(raw []byte) string {
	if len(raw) > 300 {
		return string(raw[:300])
	}
	return string(raw)
}
