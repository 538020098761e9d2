// internal/utils/validator/document.go
package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/feichai0017/filing-pipeline/pkg/logger"
)

// DocumentValidator checks fetched source bytes before they are sent to OCR.
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

type ValidatorConfig struct {
	MaxFileSize  int64               // bytes; 0 disables the check
	AllowedTypes map[string][]string // extension -> accepted sniffed MIME types
	MaxPageCount int                 // 0 disables the check
}

type ValidationResult struct {
	IsValid  bool               `json:"isValid"`
	Errors   []*ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo           `json:"fileInfo"`
}

// ValidationError is both a result entry and the error returned for a
// rejected document.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type FileInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
	Hash      string `json:"hash"`
}

func DefaultConfig() *ValidatorConfig {
	return &ValidatorConfig{
		MaxFileSize: 200 * 1024 * 1024,
		AllowedTypes: map[string][]string{
			".pdf": {"application/pdf"},
		},
		MaxPageCount: 5000,
	}
}

func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = DefaultConfig()
	}
	return &DocumentValidator{logger: log, config: config}
}

// Validate inspects name and content. The returned result lists every
// problem found; Err reduces it to a single error.
func (v *DocumentValidator) Validate(name string, data []byte) *ValidationResult {
	sum := sha256.Sum256(data)
	result := &ValidationResult{
		IsValid: true,
		FileInfo: FileInfo{
			Filename:  name,
			Size:      int64(len(data)),
			Extension: strings.ToLower(filepath.Ext(name)),
			MimeType:  http.DetectContentType(data),
			Hash:      hex.EncodeToString(sum[:]),
		},
	}

	errs := v.performBasicValidation(result.FileInfo)
	errs = append(errs, v.validateMimeType(result.FileInfo)...)
	if len(errs) > 0 {
		result.IsValid = false
		result.Errors = errs
		v.logger.Warn("Document failed validation",
			logger.String("filename", name),
			logger.String("mimeType", result.FileInfo.MimeType),
			logger.Int("errors", len(errs)),
		)
	}
	return result
}

// Err returns the first validation error or nil.
func (r *ValidationResult) Err() error {
	if r.IsValid || len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

// CheckPageCount enforces MaxPageCount once the page count is known.
func (v *DocumentValidator) CheckPageCount(pages int) error {
	if pages <= 0 {
		return &ValidationError{Code: "EMPTY_DOCUMENT", Message: "document has no pages", Field: "pages"}
	}
	if v.config.MaxPageCount > 0 && pages > v.config.MaxPageCount {
		return &ValidationError{
			Code:    "TOO_MANY_PAGES",
			Message: fmt.Sprintf("document has %d pages, limit is %d", pages, v.config.MaxPageCount),
			Field:   "pages",
		}
	}
	return nil
}

func (v *DocumentValidator) performBasicValidation(fileInfo FileInfo) []*ValidationError {
	var errs []*ValidationError

	if fileInfo.Size == 0 {
		errs = append(errs, &ValidationError{
			Code:    "EMPTY_FILE",
			Message: "file is empty",
			Field:   "size",
		})
	}
	if v.config.MaxFileSize > 0 && fileInfo.Size > v.config.MaxFileSize {
		errs = append(errs, &ValidationError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("file size exceeds maximum limit of %d bytes", v.config.MaxFileSize),
			Field:   "size",
		})
	}
	if _, ok := v.config.AllowedTypes[fileInfo.Extension]; !ok {
		errs = append(errs, &ValidationError{
			Code:    "INVALID_FILE_TYPE",
			Message: fmt.Sprintf("file type %s is not allowed", fileInfo.Extension),
			Field:   "extension",
		})
	}
	return errs
}

func (v *DocumentValidator) validateMimeType(fileInfo FileInfo) []*ValidationError {
	allowed, ok := v.config.AllowedTypes[fileInfo.Extension]
	if !ok || fileInfo.Size == 0 {
		return nil
	}
	for _, mime := range allowed {
		if mime == fileInfo.MimeType {
			return nil
		}
	}
	return []*ValidationError{{
		Code:    "INVALID_MIME_TYPE",
		Message: fmt.Sprintf("invalid MIME type %s for extension %s", fileInfo.MimeType, fileInfo.Extension),
		Field:   "mimeType",
	}}
}
