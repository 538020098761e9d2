package textract

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/filing-pipeline/internal/agent/ocr"
	"github.com/feichai0017/filing-pipeline/pkg/logger"
)

type fakeAPI struct {
	out   *textract.AnalyzeDocumentOutput
	err   error
	input *textract.AnalyzeDocumentInput
}

func (f *fakeAPI) AnalyzeDocument(_ context.Context, in *textract.AnalyzeDocumentInput, _ ...func(*textract.Options)) (*textract.AnalyzeDocumentOutput, error) {
	f.input = in
	return f.out, f.err
}

func line(id string, page int32, text string, conf float32) types.Block {
	return types.Block{Id: aws.String(id), BlockType: types.BlockTypeLine, Page: aws.Int32(page), Text: aws.String(text), Confidence: aws.Float32(conf)}
}

func word(id, text string) types.Block {
	return types.Block{Id: aws.String(id), BlockType: types.BlockTypeWord, Page: aws.Int32(2), Text: aws.String(text)}
}

func tableCell(id string, row, col int32, words ...string) types.Block {
	return types.Block{
		Id:            aws.String(id),
		BlockType:     types.BlockTypeCell,
		Page:          aws.Int32(2),
		RowIndex:      aws.Int32(row),
		ColumnIndex:   aws.Int32(col),
		Relationships: []types.Relationship{{Type: types.RelationshipTypeChild, Ids: words}},
	}
}

func TestProcessGroupsLinesByPage(t *testing.T) {
	api := &fakeAPI{out: &textract.AnalyzeDocumentOutput{
		DocumentMetadata: &types.DocumentMetadata{Pages: aws.Int32(2)},
		Blocks: []types.Block{
			{Id: aws.String("p1"), BlockType: types.BlockTypePage, Page: aws.Int32(1)},
			line("l1", 1, "Form 10-K", 99),
			line("l2", 1, "noise", 10),
			line("l3", 1, "Fiscal year 2019", 95),
			line("l4", 2, "Insiders", 97),
			{
				Id:            aws.String("t1"),
				BlockType:     types.BlockTypeTable,
				Page:          aws.Int32(2),
				Relationships: []types.Relationship{{Type: types.RelationshipTypeChild, Ids: []string{"c11", "c12", "c21", "c22"}}},
			},
			tableCell("c11", 1, 1, "w1"),
			tableCell("c12", 1, 2, "w2"),
			tableCell("c21", 2, 1, "w3", "w4"),
			tableCell("c22", 2, 2, "w5"),
			word("w1", "Name"),
			word("w2", "Shares"),
			word("w3", "Jane"),
			word("w4", "Doe"),
			word("w5", "1|000"),
		},
	}}
	c := New(api, Config{MinConfidence: 50, EnableTables: true}, logger.NewTestLogger())

	result, err := c.Process(context.Background(), []byte("%PDF"), "Acme")
	require.NoError(t, err)
	assert.Equal(t, []types.FeatureType{types.FeatureTypeLayout, types.FeatureTypeTables}, api.input.FeatureTypes)

	require.Len(t, result.Pages, 2)
	assert.Equal(t, 0, result.Pages[0].Index)
	assert.Equal(t, "Form 10-K\nFiscal year 2019", result.Pages[0].Markdown)
	assert.Equal(t, "Insiders\n\n| Name | Shares |\n| --- | --- |\n| Jane Doe | 1\\|000 |", result.Pages[1].Markdown)
	assert.Equal(t, 2, result.UsageInfo.PagesProcessed)
	assert.Equal(t, "textract", result.Model)
}

func TestProcessErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		temporary bool
	}{
		{"throttled", &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}, true},
		{"server fault", &smithy.GenericAPIError{Code: "Whatever", Fault: smithy.FaultServer}, true},
		{"bad document", &smithy.GenericAPIError{Code: "UnsupportedDocumentException", Message: "nope", Fault: smithy.FaultClient}, false},
		{"transport", errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(&fakeAPI{err: tt.err}, Config{}, logger.NewTestLogger())
			_, err := c.Process(context.Background(), []byte("%PDF"), "Acme")

			var remote *ocr.RemoteServiceError
			require.ErrorAs(t, err, &remote)
			assert.Equal(t, "textract", remote.Provider)
			assert.Equal(t, tt.temporary, ocr.IsRetryable(err))
		})
	}
}
