// Package converters turns stored OCR artifacts into the markdown fed to the
// table extractor.
package converters

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/feichai0017/filing-pipeline/internal/models"
)

const pageSeparator = "\n\n"

// markdownKeys are the field names MarkdownFromAny collects.
var markdownKeys = map[string]bool{
	"markdown":          true,
	"md":                true,
	"page_markdown":     true,
	"combined_markdown": true,
	"text":              true,
	"page_text":         true,
}

// CombinedMarkdown joins the page markdown of result, inlining each page's
// images as data in place of their ![id](id) references.
func CombinedMarkdown(result *models.OCRResult) string {
	if result == nil {
		return ""
	}
	pages := make([]string, 0, len(result.Pages))
	for _, page := range result.Pages {
		md := page.Markdown
		for _, img := range page.Images {
			if img.ImageBase64 == "" {
				continue
			}
			ref := fmt.Sprintf("![%s](%s)", img.ID, img.ID)
			md = strings.ReplaceAll(md, ref, fmt.Sprintf("![%s](%s)", img.ID, img.ImageBase64))
		}
		pages = append(pages, md)
	}
	return strings.Join(pages, pageSeparator)
}

// MarkdownFromAny walks arbitrary JSON and joins every non-blank string held
// under a markdown or text key. Object keys are visited in sorted order.
func MarkdownFromAny(v any) string {
	var parts []string
	collect(v, &parts)
	return strings.Join(parts, pageSeparator)
}

func collect(v any, parts *[]string) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := t[k].(string); ok && markdownKeys[strings.ToLower(k)] {
				if s = strings.TrimSpace(s); s != "" {
					*parts = append(*parts, s)
				}
				continue
			}
			collect(t[k], parts)
		}
	case []any:
		for _, item := range t {
			collect(item, parts)
		}
	}
}

// ArtifactMarkdown extracts markdown from a stored artifact. Artifacts with
// the OCR result shape are combined page by page; anything else falls back
// to MarkdownFromAny.
func ArtifactMarkdown(data []byte) (string, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", fmt.Errorf("json parse error: %w", err)
	}

	var artifact models.OutputArtifact
	if err := json.Unmarshal(data, &artifact); err == nil && artifact.OCROutput != nil && len(artifact.OCROutput.Pages) > 0 {
		if md := strings.TrimSpace(CombinedMarkdown(artifact.OCROutput)); md != "" {
			return md, nil
		}
	}

	var result models.OCRResult
	if err := json.Unmarshal(data, &result); err == nil && len(result.Pages) > 0 {
		if md := strings.TrimSpace(CombinedMarkdown(&result)); md != "" {
			return md, nil
		}
	}

	return MarkdownFromAny(raw), nil
}
