// Package textract runs OCR through Amazon Textract's synchronous
// AnalyzeDocument call and renders the blocks as per-page markdown.
package textract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/aws/smithy-go"

	cfg "github.com/feichai0017/filing-pipeline/config"
	"github.com/feichai0017/filing-pipeline/internal/agent/ocr"
	"github.com/feichai0017/filing-pipeline/internal/models"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
)

const provider = "textract"

// API is the subset of the Textract client the OCR client calls.
type API interface {
	AnalyzeDocument(ctx context.Context, params *textract.AnalyzeDocumentInput, optFns ...func(*textract.Options)) (*textract.AnalyzeDocumentOutput, error)
}

type Config struct {
	MinConfidence float32
	EnableTables  bool
}

type Client struct {
	api    API
	config Config
	logger logger.Logger
}

func New(api API, c Config, log logger.Logger) *Client {
	return &Client{api: api, config: c, logger: log}
}

// NewClient builds a Textract client from the AWS_* environment.
func NewClient(ctx context.Context, c Config, log logger.Logger) (*Client, error) {
	tc := cfg.GetTextractConfig()

	opts := []func(*config.LoadOptions) error{config.WithRegion(tc.Region)}
	if tc.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			tc.AccessKey,
			tc.SecretKey,
			"",
		)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := textract.NewFromConfig(awsCfg, func(o *textract.Options) {
		if tc.Endpoint != "" {
			o.BaseEndpoint = aws.String(tc.Endpoint)
		}
	})

	log.Info("Textract Configuration",
		logger.String("region", tc.Region),
		logger.String("endpoint", tc.Endpoint),
	)
	return New(client, c, log), nil
}

func (c *Client) Name() string { return provider }

func (c *Client) Process(ctx context.Context, data []byte, displayName string) (*models.OCRResult, error) {
	input := &textract.AnalyzeDocumentInput{
		Document:     &types.Document{Bytes: data},
		FeatureTypes: []types.FeatureType{types.FeatureTypeLayout},
	}
	if c.config.EnableTables {
		input.FeatureTypes = append(input.FeatureTypes, types.FeatureTypeTables)
	}

	out, err := c.api.AnalyzeDocument(ctx, input)
	if err != nil {
		return nil, classify(err)
	}

	result := c.render(out.Blocks)
	pages := 0
	if out.DocumentMetadata != nil && out.DocumentMetadata.Pages != nil {
		pages = int(*out.DocumentMetadata.Pages)
	}
	result.UsageInfo = &models.UsageInfo{PagesProcessed: pages, DocSizeBytes: int64(len(data))}

	c.logger.Debug("Textract analysis completed",
		logger.String("document", displayName),
		logger.Int("blocks", len(out.Blocks)),
		logger.Int("pages", len(result.Pages)),
	)
	return result, nil
}

// render groups LINE blocks by page and appends any tables as markdown.
func (c *Client) render(blocks []types.Block) *models.OCRResult {
	byID := make(map[string]types.Block, len(blocks))
	for _, b := range blocks {
		if b.Id != nil {
			byID[*b.Id] = b
		}
	}

	lines := make(map[int][]string)
	tables := make(map[int][]string)
	maxPage := 0
	for _, b := range blocks {
		page := 1
		if b.Page != nil {
			page = int(*b.Page)
		}
		if page > maxPage {
			maxPage = page
		}

		switch b.BlockType {
		case types.BlockTypeLine:
			if b.Text == nil {
				continue
			}
			if b.Confidence != nil && *b.Confidence < c.config.MinConfidence {
				continue
			}
			lines[page] = append(lines[page], *b.Text)
		case types.BlockTypeTable:
			if c.config.EnableTables {
				tables[page] = append(tables[page], renderTable(b, byID))
			}
		}
	}

	result := &models.OCRResult{Model: provider}
	for page := 1; page <= maxPage; page++ {
		parts := []string{}
		if len(lines[page]) > 0 {
			parts = append(parts, strings.Join(lines[page], "\n"))
		}
		parts = append(parts, tables[page]...)
		result.Pages = append(result.Pages, models.OCRPage{
			Index:    page - 1,
			Markdown: strings.Join(parts, "\n\n"),
		})
	}
	return result
}

type cell struct {
	row, col int
	text     string
}

func renderTable(table types.Block, byID map[string]types.Block) string {
	var cells []cell
	rows, cols := 0, 0
	for _, rel := range table.Relationships {
		if rel.Type != types.RelationshipTypeChild {
			continue
		}
		for _, id := range rel.Ids {
			b, ok := byID[id]
			if !ok || b.BlockType != types.BlockTypeCell || b.RowIndex == nil || b.ColumnIndex == nil {
				continue
			}
			cl := cell{row: int(*b.RowIndex), col: int(*b.ColumnIndex), text: cellText(b, byID)}
			if cl.row > rows {
				rows = cl.row
			}
			if cl.col > cols {
				cols = cl.col
			}
			cells = append(cells, cl)
		}
	}
	if rows == 0 || cols == 0 {
		return ""
	}

	grid := make([][]string, rows)
	for i := range grid {
		grid[i] = make([]string, cols)
	}
	for _, cl := range cells {
		grid[cl.row-1][cl.col-1] = strings.ReplaceAll(cl.text, "|", `\|`)
	}

	var sb strings.Builder
	for i, row := range grid {
		sb.WriteString("| " + strings.Join(row, " | ") + " |\n")
		if i == 0 {
			sb.WriteString("|" + strings.Repeat(" --- |", cols) + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func cellText(b types.Block, byID map[string]types.Block) string {
	var words []string
	for _, rel := range b.Relationships {
		if rel.Type != types.RelationshipTypeChild {
			continue
		}
		for _, id := range rel.Ids {
			if w, ok := byID[id]; ok && w.BlockType == types.BlockTypeWord && w.Text != nil {
				words = append(words, *w.Text)
			}
		}
	}
	return strings.Join(words, " ")
}

var temporaryCodes = map[string]bool{
	"ThrottlingException":                   true,
	"ProvisionedThroughputExceededException": true,
	"InternalServerError":                   true,
	"LimitExceededException":                true,
	"ServiceUnavailable":                    true,
}

// classify maps SDK errors to RemoteServiceError. Unknown API codes are
// treated as permanent since they describe the request or the document.
func classify(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return &ocr.RemoteServiceError{Provider: provider, Operation: "analyze", Temporary: true, Err: err}
	}
	code := apiErr.ErrorCode()
	return &ocr.RemoteServiceError{
		Provider:  provider,
		Operation: "analyze",
		Message:   code + ": " + apiErr.ErrorMessage(),
		Temporary: temporaryCodes[code] || apiErr.ErrorFault() == smithy.FaultServer,
		Err:       err,
	}
}
