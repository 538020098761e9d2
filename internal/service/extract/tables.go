package extract

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoJSON means the model answer held no JSON object.
var ErrNoJSON = errors.New("model did not return valid JSON")

var (
	SecuritiesColumns = []string{"a1", "b1", "c1", "d1", "e1", "f1", "g1"}
	InsidersColumns   = []string{"a2", "b2", "b3", "b4", "b5", "b6", "b7", "b8", "b9", "b9_full_voting_shares_text", "b10", "b11"}
	// BaseColumns are appended to every row of both tables.
	BaseColumns = []string{"Bank Name", "table presence", "Bank_PDF-Name", "Year"}
)

const fullVotingText = "b9_full_voting_shares_text"

var (
	fencedJSON = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")
	bareJSON   = regexp.MustCompile(`(?s)(\{.*\})`)
)

// Row is one table row as returned by the model.
type Row map[string]any

// Tables is the JSON object the model is asked for.
type Tables struct {
	Shareholders []Row `json:"shareholders"`
	Insiders     []Row `json:"insiders"`
	BankData     []Row `json:"bank_data"`
}

// ParseTables finds the JSON object in a model answer, fenced or bare.
func ParseTables(answer string) (*Tables, error) {
	m := fencedJSON.FindStringSubmatch(answer)
	if m == nil {
		m = bareJSON.FindStringSubmatch(answer)
	}
	if m == nil {
		return nil, ErrNoJSON
	}
	var t Tables
	if err := json.Unmarshal([]byte(m[1]), &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoJSON, err)
	}
	return &t, nil
}

// Presence names which tables have rows: both, insiders, securities or none.
func (t *Tables) Presence() string {
	switch {
	case len(t.Insiders) > 0 && len(t.Shareholders) > 0:
		return "both"
	case len(t.Insiders) > 0:
		return "insiders"
	case len(t.Shareholders) > 0:
		return "securities"
	default:
		return "none"
	}
}

// BankField reads a string field of the first bank_data object.
func (t *Tables) BankField(name string) string {
	if len(t.BankData) == 0 {
		return ""
	}
	return strings.TrimSpace(cell(t.BankData[0][name]))
}

// Base is the metadata attached to every table row.
type Base struct {
	BankName string
	Presence string
	PDFName  string
	Year     string
}

func (b Base) values() []string {
	return []string{b.BankName, b.Presence, b.PDFName, b.Year}
}

// EncodeTable writes rows as CSV with columns followed by BaseColumns. An
// empty table still gets one row carrying only base.
func EncodeTable(columns []string, rows []Row, base Base) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(append(append([]string{}, columns...), BaseColumns...)); err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		rows = []Row{{}}
	}
	for _, row := range rows {
		record := make([]string, 0, len(columns)+len(BaseColumns))
		for _, col := range columns {
			v := cell(row[col])
			if col == fullVotingText && v == "" {
				v = cell(row["b9"])
			}
			record = append(record, v)
		}
		if err := w.Write(append(record, base.values()...)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// cell renders a JSON value as one CSV field. Lists are joined with ";".
func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.Join(strings.Fields(t), " ")
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := cell(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ";")
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}
