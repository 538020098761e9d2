package models

import (
	"path"
	"strings"
	"time"
)

// SourceRef identifies one candidate document. Archive is set when the PDF
// is an entry inside a zip object; Key is then the entry name.
type SourceRef struct {
	Key       string `json:"key"`
	Archive   string `json:"archive,omitempty"`
	Partition string `json:"partition,omitempty"`
}

// ID is the document identity used for markers and ledger rows.
func (r SourceRef) ID() string {
	if r.Archive == "" {
		return r.Key
	}
	return r.Archive + "::" + r.Key
}

// Name is the final path segment of the key.
func (r SourceRef) Name() string {
	return path.Base(r.Key)
}

// Stem is Name without its extension.
func (r SourceRef) Stem() string {
	name := r.Name()
	return strings.TrimSuffix(name, path.Ext(name))
}

// SourceDocument is a fetched document body.
type SourceDocument struct {
	Ref  SourceRef
	Data []byte
}

// DocumentMetadata is what the PDF inspector reads from a document.
type DocumentMetadata struct {
	Title    string `json:"title,omitempty"`
	Author   string `json:"author,omitempty"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
	Pages    int    `json:"pages"`
	Hash     string `json:"hash"`
}

// ProcessingMarker is the body of a <marker-root><hash>.ok object.
type ProcessingMarker struct {
	PDFKey    string `json:"pdf_key"`
	Archive   string `json:"archive,omitempty"`
	JSONKey   string `json:"json_key"`
	Timestamp int64  `json:"ts"`
}

// WrittenAt converts the unix timestamp.
func (m ProcessingMarker) WrittenAt() time.Time {
	return time.Unix(m.Timestamp, 0).UTC()
}

type ProcessingStatus string

const (
	StatusOK      ProcessingStatus = "ok"
	StatusSkipped ProcessingStatus = "skipped"
	StatusFailed  ProcessingStatus = "failed"
)

// Stage names the per-document state machine steps.
type Stage string

const (
	StageDiscovered      Stage = "discovered"
	StageMarkerCheck     Stage = "marker_check"
	StageSkipped         Stage = "skipped"
	StageFetching        Stage = "fetching"
	StageInferring       Stage = "inferring"
	StageInvoking        Stage = "invoking"
	StageUploading       Stage = "uploading"
	StageMarkerWriting   Stage = "marker_writing"
	StageLedgerAppending Stage = "ledger_appending"
	StageDone            Stage = "done"
	StageFailed          Stage = "failed"
)
