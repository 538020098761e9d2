package converters

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/filing-pipeline/internal/models"
)

func TestCombinedMarkdown(t *testing.T) {
	result := &models.OCRResult{Pages: []models.OCRPage{
		{Index: 0, Markdown: "# Y-6\n![img-0.jpeg](img-0.jpeg)", Images: []models.OCRImage{
			{ID: "img-0.jpeg", ImageBase64: "data:image/jpeg;base64,AAA"},
		}},
		{Index: 1, Markdown: "page two ![img-1.jpeg](img-1.jpeg)", Images: []models.OCRImage{{ID: "img-1.jpeg"}}},
	}}

	assert.Equal(t,
		"# Y-6\n![img-0.jpeg](data:image/jpeg;base64,AAA)\n\npage two ![img-1.jpeg](img-1.jpeg)",
		CombinedMarkdown(result))
	assert.Empty(t, CombinedMarkdown(nil))
}

func TestMarkdownFromAny(t *testing.T) {
	var v any
	require.NoError(t, json.Unmarshal([]byte(`{
		"doc": {"pages": [{"page_text": "first"}, {"Markdown": "  second  "}, {"md": " "}]},
		"aaa": {"text": "zero"},
		"count": 3,
		"text": 7
	}`), &v))

	assert.Equal(t, "zero\n\nfirst\n\nsecond", MarkdownFromAny(v))
	assert.Empty(t, MarkdownFromAny([]any{1, "x"}))
}

func TestArtifactMarkdown(t *testing.T) {
	artifact, err := json.Marshal(models.OutputArtifact{
		Source:    models.ArtifactSource{PDFKey: "in/2019/a.pdf"},
		OCROutput: &models.OCRResult{Pages: []models.OCRPage{{Markdown: "one"}, {Markdown: "two"}}},
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		data string
		want string
	}{
		{"artifact", string(artifact), "one\n\ntwo"},
		{"bare ocr result", `{"pages":[{"index":0,"markdown":"bare"}],"model":"m"}`, "bare"},
		{"other schema", `{"result":{"combined_markdown":"walked"}}`, "walked"},
		{"nothing", `{"result":{}}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md, err := ArtifactMarkdown([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, md)
		})
	}

	_, err = ArtifactMarkdown([]byte("{"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json parse error")
}
