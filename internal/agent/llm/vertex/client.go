// Package vertex calls Gemini models on Vertex AI.
package vertex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	cfg "github.com/feichai0017/filing-pipeline/config"
	"github.com/feichai0017/filing-pipeline/internal/agent/ocr"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
)

const providerName = "vertex"

// SystemPrompt frames every extraction request.
const SystemPrompt = "You are a careful analyst of U.S. Federal Reserve FR Y-6 regulatory filings. " +
	"You extract tables exactly as reported and answer with a single JSON object."

var temporaryCodes = map[codes.Code]bool{
	codes.Unavailable:       true,
	codes.ResourceExhausted: true,
	codes.DeadlineExceeded:  true,
	codes.Internal:          true,
	codes.Aborted:           true,
}

type Client struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
	logger logger.Logger
}

// NewClient connects with application default credentials.
func NewClient(ctx context.Context, vc *cfg.VertexConfig, log logger.Logger) (*Client, error) {
	if err := vc.Require(); err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, vc.ProjectID, vc.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := client.GenerativeModel(vc.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(SystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	log.Info("Vertex AI Configuration",
		logger.String("project", vc.ProjectID),
		logger.String("region", vc.Region),
		logger.String("model", vc.Model),
	)
	return &Client{client: client, model: model, name: vc.Model, logger: log}, nil
}

func (c *Client) Name() string { return providerName }

// Generate sends prompt and returns the text of the first candidate.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classify(err)
	}
	text := ResponseText(resp)
	if text == "" {
		reason := "no candidates"
		if resp != nil && resp.PromptFeedback != nil {
			reason = fmt.Sprintf("prompt blocked: %v", resp.PromptFeedback.BlockReason)
		}
		return "", &ocr.RemoteServiceError{Provider: providerName, Operation: "generate", Message: reason}
	}
	return text, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// ResponseText concatenates the text parts of the first candidate.
func ResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	remote := &ocr.RemoteServiceError{Provider: providerName, Operation: "generate", Err: err, Temporary: true}
	if s, ok := status.FromError(err); ok {
		remote.Message = s.Message()
		remote.Temporary = temporaryCodes[s.Code()]
	}
	return remote
}
