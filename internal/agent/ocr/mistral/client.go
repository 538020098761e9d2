// Package mistral calls the Mistral OCR API: upload the PDF, obtain a signed
// URL for it, then run OCR against that URL.
package mistral

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/feichai0017/filing-pipeline/internal/agent/ocr"
	"github.com/feichai0017/filing-pipeline/internal/models"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
)

const (
	provider        = "mistral"
	defaultEndpoint = "https://api.mistral.ai"
	defaultModel    = "mistral-ocr-latest"
	maxErrorBody    = 2048
)

type Config struct {
	APIKey               string
	Endpoint             string
	Model                string
	SignedURLExpiryHours int
	IncludeImages        bool
	Timeout              time.Duration
}

type Client struct {
	apiKey        string
	endpoint      string
	model         string
	expiryHours   int
	includeImages bool
	httpClient    *http.Client
	logger        logger.Logger
}

func NewClient(cfg Config, log logger.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.SignedURLExpiryHours <= 0 {
		cfg.SignedURLExpiryHours = 24
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Client{
		apiKey:        cfg.APIKey,
		endpoint:      cfg.Endpoint,
		model:         cfg.Model,
		expiryHours:   cfg.SignedURLExpiryHours,
		includeImages: cfg.IncludeImages,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: log,
	}
}

func (c *Client) Name() string { return provider }

type uploadResponse struct {
	ID string `json:"id"`
}

type signedURLResponse struct {
	URL string `json:"url"`
}

type ocrRequest struct {
	Model              string      `json:"model"`
	Document           documentURL `json:"document"`
	IncludeImageBase64 bool        `json:"include_image_base64"`
}

type documentURL struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

// Process uploads data as "<displayName>.pdf" and returns the OCR pages.
// A failed attempt may leave the uploaded file behind on the remote side.
func (c *Client) Process(ctx context.Context, data []byte, displayName string) (*models.OCRResult, error) {
	fileID, err := c.upload(ctx, data, displayName+".pdf")
	if err != nil {
		return nil, err
	}

	signed, err := c.signedURL(ctx, fileID)
	if err != nil {
		return nil, err
	}

	reqData, err := json.Marshal(ocrRequest{
		Model:              c.model,
		Document:           documentURL{Type: "document_url", DocumentURL: signed},
		IncludeImageBase64: c.includeImages,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/ocr", bytes.NewReader(reqData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var raw json.RawMessage
	if err := c.do(req, "ocr", &raw); err != nil {
		return nil, err
	}
	var result models.OCRResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &ocr.RemoteServiceError{
			Provider:  provider,
			Operation: "ocr",
			Message:   "unexpected response shape",
			Temporary: true,
			Err:       err,
		}
	}
	result.Raw = raw

	c.logger.Debug("OCR completed",
		logger.String("document", displayName),
		logger.Int("pages", len(result.Pages)),
	)
	return &result, nil
}

func (c *Client) upload(ctx context.Context, data []byte, filename string) (string, error) {
	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	if err := w.WriteField("purpose", "ocr"); err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/files", body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp uploadResponse
	if err := c.do(req, "upload", &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", &ocr.RemoteServiceError{Provider: provider, Operation: "upload", Message: "response has no file id", Temporary: true}
	}
	return resp.ID, nil
}

func (c *Client) signedURL(ctx context.Context, fileID string) (string, error) {
	u := fmt.Sprintf("%s/v1/files/%s/url?expiry=%s", c.endpoint, url.PathEscape(fileID), strconv.Itoa(c.expiryHours))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	var resp signedURLResponse
	if err := c.do(req, "signed_url", &resp); err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", &ocr.RemoteServiceError{Provider: provider, Operation: "signed_url", Message: "response has no url", Temporary: true}
	}
	return resp.URL, nil
}

// do sends req and decodes a 2xx JSON body into out. Every failure is a
// RemoteServiceError; only authentication failures are permanent.
func (c *Client) do(req *http.Request, op string, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ocr.RemoteServiceError{Provider: provider, Operation: op, Temporary: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ocr.RemoteServiceError{
			Provider:   provider,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    string(bytes.TrimSpace(body)),
			Temporary:  resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ocr.RemoteServiceError{
			Provider:  provider,
			Operation: op,
			Message:   "failed to decode response",
			Temporary: true,
			Err:       err,
		}
	}
	return nil
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
