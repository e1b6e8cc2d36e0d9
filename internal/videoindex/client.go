// Package videoindex talks to the TwelveLabs video understanding API: index
// creation, direct asset upload, indexing and prompt-driven analysis.
package videoindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vidforensics/backend/pkg/apperr"
	"github.com/vidforensics/backend/pkg/logger"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// NormalizeStatus folds the service's status vocabulary into the three
// states the pipeline reasons about.
func NormalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ready":
		return StatusReady
	case "failed", "error":
		return StatusFailed
	default:
		return StatusProcessing
	}
}

type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	ModelOptions []string
	Temperature  float64
	Timeout      time.Duration
	HTTPClient   *http.Client
}

type Client struct {
	apiKey       string
	baseURL      string
	model        string
	modelOptions []string
	temperature  float64
	httpClient   *http.Client
}

// Asset is an uploaded video tracked by the service's own lifecycle.
type Asset struct {
	ID        string `json:"id"`
	RawStatus string `json:"status"`
}

func (a Asset) Status() Status { return NormalizeStatus(a.RawStatus) }

// IndexedAsset is the analyzable representation of an asset inside an index.
type IndexedAsset struct {
	ID        string `json:"id"`
	RawStatus string `json:"status"`
}

func (a IndexedAsset) Status() Status { return NormalizeStatus(a.RawStatus) }

// resource decodes both "_id" and "id" spellings used across API versions.
type resource struct {
	UnderscoreID string `json:"_id"`
	ID           string `json:"id"`
	Status       string `json:"status"`
}

func (r resource) id() string {
	if r.UnderscoreID != "" {
		return r.UnderscoreID
	}
	return r.ID
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twelvelabs.io/v1.3"
	}
	if cfg.Model == "" {
		cfg.Model = "pegasus1.2"
	}
	if len(cfg.ModelOptions) == 0 {
		cfg.ModelOptions = []string{"visual", "audio"}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	logger.Info("Video index client initialized",
		zap.String("base_url", cfg.BaseURL),
		zap.String("model", cfg.Model),
	)

	return &Client{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		model:        cfg.Model,
		modelOptions: cfg.ModelOptions,
		temperature:  cfg.Temperature,
		httpClient:   httpClient,
	}
}

func (c *Client) Configured() bool { return c.apiKey != "" }

func (c *Client) CreateIndex(ctx context.Context, name string) (string, error) {
	body := map[string]interface{}{
		"index_name": name,
		"models": []map[string]interface{}{
			{"model_name": c.model, "model_options": c.modelOptions},
		},
	}

	var out resource
	if err := c.doJSON(ctx, "videoindex.create_index", http.MethodPost, "/indexes", body, &out); err != nil {
		return "", err
	}
	if out.id() == "" {
		return "", apperr.New(apperr.ErrRejected, "videoindex.create_index", fmt.Errorf("response carried no index id"))
	}
	return out.id(), nil
}

// UploadAsset streams the file at path as a direct upload. The body is built
// per call so the operation can be retried.
func (c *Client) UploadAsset(ctx context.Context, path string) (*Asset, error) {
	const op = "videoindex.upload_asset"

	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.Validation(op, "open video: %v", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := func() error {
			if err := mw.WriteField("method", "direct"); err != nil {
				return err
			}
			part, err := mw.CreateFormFile("file", filepath.Base(path))
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, f); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/assets", pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out resource
	if err := c.do(op, req, &out); err != nil {
		pr.Close()
		return nil, err
	}
	return &Asset{ID: out.id(), RawStatus: out.Status}, nil
}

func (c *Client) GetAsset(ctx context.Context, assetID string) (*Asset, error) {
	var out resource
	if err := c.doJSON(ctx, "videoindex.get_asset", http.MethodGet, "/assets/"+assetID, nil, &out); err != nil {
		return nil, err
	}
	return &Asset{ID: out.id(), RawStatus: out.Status}, nil
}

func (c *Client) StartIndexing(ctx context.Context, indexID, assetID string) (*IndexedAsset, error) {
	var out resource
	path := fmt.Sprintf("/indexes/%s/indexed-assets", indexID)
	if err := c.doJSON(ctx, "videoindex.start_indexing", http.MethodPost, path, map[string]string{"asset_id": assetID}, &out); err != nil {
		return nil, err
	}
	if out.id() == "" {
		return nil, apperr.New(apperr.ErrRejected, "videoindex.start_indexing", fmt.Errorf("response carried no indexed asset id"))
	}
	return &IndexedAsset{ID: out.id(), RawStatus: out.Status}, nil
}

func (c *Client) GetIndexedAsset(ctx context.Context, indexID, indexedAssetID string) (*IndexedAsset, error) {
	var out resource
	path := fmt.Sprintf("/indexes/%s/indexed-assets/%s", indexID, indexedAssetID)
	if err := c.doJSON(ctx, "videoindex.get_indexed_asset", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &IndexedAsset{ID: out.id(), RawStatus: out.Status}, nil
}

// Analyze runs an open-ended prompt against an indexed video and returns the
// generated text.
func (c *Client) Analyze(ctx context.Context, videoID, prompt string) (string, error) {
	body := map[string]interface{}{
		"video_id":    videoID,
		"prompt":      prompt,
		"temperature": c.temperature,
		"stream":      false,
	}

	var out struct {
		ID   string `json:"id"`
		Data string `json:"data"`
	}
	if err := c.doJSON(ctx, "videoindex.analyze", http.MethodPost, "/analyze", body, &out); err != nil {
		return "", err
	}

	text := strings.TrimSpace(out.Data)
	logger.Debug("Video analysis complete", zap.String("video_id", videoID), zap.Int("chars", len(text)))
	return text, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(op, req, out)
}

func (c *Client) do(op string, req *http.Request, out interface{}) error {
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return apperr.Transient(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Transient(op, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.FromStatus(op, resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Transient(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
