package models

import (
	"bytes"
	"encoding/json"
)

// OCRResult is the provider-neutral OCR response. Its JSON shape follows the
// Mistral OCR response so stored artifacts stay readable by downstream tools.
// Raw holds the provider response as received; when set it is what gets
// marshaled, so fields not modeled here survive into the artifact.
type OCRResult struct {
	Pages     []OCRPage       `json:"pages"`
	Model     string          `json:"model,omitempty"`
	UsageInfo *UsageInfo      `json:"usage_info,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

type ocrResultFields OCRResult

func (r *OCRResult) MarshalJSON() ([]byte, error) {
	if len(bytes.TrimSpace(r.Raw)) > 0 {
		return r.Raw, nil
	}
	return json.Marshal((*ocrResultFields)(r))
}

type OCRPage struct {
	Index      int             `json:"index"`
	Markdown   string          `json:"markdown"`
	Images     []OCRImage      `json:"images,omitempty"`
	Dimensions *PageDimensions `json:"dimensions,omitempty"`
}

type OCRImage struct {
	ID           string `json:"id"`
	TopLeftX     int    `json:"top_left_x"`
	TopLeftY     int    `json:"top_left_y"`
	BottomRightX int    `json:"bottom_right_x"`
	BottomRightY int    `json:"bottom_right_y"`
	ImageBase64  string `json:"image_base64,omitempty"`
}

type PageDimensions struct {
	DPI    int `json:"dpi"`
	Height int `json:"height"`
	Width  int `json:"width"`
}

type UsageInfo struct {
	PagesProcessed int   `json:"pages_processed"`
	DocSizeBytes   int64 `json:"doc_size_bytes,omitempty"`
}

// ArtifactSource names the document an artifact was produced from.
type ArtifactSource struct {
	PDFKey  string `json:"pdf_key"`
	Archive string `json:"archive,omitempty"`
}

// OutputArtifact is the persisted OCR JSON object.
type OutputArtifact struct {
	Source    ArtifactSource `json:"source"`
	OCROutput *OCRResult     `json:"ocr_output"`
}

// EncodeArtifact renders a as 2-space indented JSON without HTML escaping,
// so markdown such as "<br>" is stored verbatim.
func EncodeArtifact(a OutputArtifact) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
