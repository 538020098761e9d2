package pdf

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/filing-pipeline/internal/models"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
)

const maxWorkers = 4

// Processor reads structure and the embedded text layer of PDF bytes.
type Processor struct {
	logger logger.Logger
}

func NewProcessor(log logger.Logger) *Processor {
	return &Processor{logger: log}
}

// open converts panics from the pdf package, which it raises on some
// malformed inputs, into errors.
func open(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed pdf: %v", rec)
		}
	}()
	reader := bytes.NewReader(data)
	r, err = pdf.NewReader(reader, reader.Size())
	if err != nil {
		return nil, fmt.Errorf("malformed pdf: %w", err)
	}
	return r, nil
}

// ExtractMetadata returns the page count and document info of data.
func (p *Processor) ExtractMetadata(ctx context.Context, data []byte) (meta models.DocumentMetadata, err error) {
	if err := ctx.Err(); err != nil {
		return models.DocumentMetadata{}, err
	}
	pdfReader, err := open(data)
	if err != nil {
		return models.DocumentMetadata{}, err
	}

	hash := sha256.Sum256(data)
	meta = models.DocumentMetadata{
		FileSize: int64(len(data)),
		MimeType: "application/pdf",
		Hash:     hex.EncodeToString(hash[:]),
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed pdf: %v", rec)
		}
	}()
	meta.Pages = pdfReader.NumPage()

	trailer := pdfReader.Trailer()
	if !trailer.IsNull() {
		info := trailer.Key("Info")
		if !info.IsNull() {
			if title := info.Key("Title"); !title.IsNull() {
				meta.Title = title.Text()
			}
			if author := info.Key("Author"); !author.IsNull() {
				meta.Author = author.Text()
			}
		}
	}
	return meta, nil
}

// PageTexts extracts the text layer of every page, in page order. Pages
// without content yield an empty string.
func (p *Processor) PageTexts(ctx context.Context, data []byte) ([]string, error) {
	pdfReader, err := open(data)
	if err != nil {
		return nil, err
	}

	numPages := pdfReader.NumPage()
	texts := make([]string, numPages)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)
	for i := 1; i <= numPages; i++ {
		pageNum := i
		g.Go(func() (err error) {
			if err := ctx.Err(); err != nil {
				return err
			}
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("page %d: malformed content: %v", pageNum, rec)
				}
			}()

			page := pdfReader.Page(pageNum)
			if page.V.IsNull() {
				return nil
			}
			text, err := page.GetPlainText(nil)
			if err != nil {
				return fmt.Errorf("failed to get text from page %d: %w", pageNum, err)
			}
			texts[pageNum-1] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.logger.Debug("Extracted text layer", logger.Int("pages", numPages))
	return texts, nil
}
