package analyses

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/dvloznov/spendiq/internal/domain"
	"github.com/dvloznov/spendiq/internal/sanitize"
)

// SubmitRequest is the body of a submission.
type SubmitRequest struct {
	FileName    string `json:"fileName"`
	FileContent string `json:"fileContent"` // base64, optionally as a data URL
	MimeType    string `json:"mimeType"`
}

type upload struct {
	FileName string
	Data     []byte
}

// validateUpload decodes and checks a submission. Every rejection wraps
// domain.ErrInvalidRequest.
func validateUpload(req SubmitRequest, maxSize int64) (*upload, error) {
	if strings.TrimSpace(req.FileName) == "" || strings.TrimSpace(req.FileContent) == "" {
		return nil, fmt.Errorf("%w: missing fileName or fileContent", domain.ErrInvalidRequest)
	}

	if !strings.EqualFold(strings.TrimSpace(req.MimeType), pdfContentType) {
		return nil, fmt.Errorf("%w: only PDF files are supported", domain.ErrInvalidRequest)
	}

	name := sanitize.FileName(req.FileName)
	if name == "" || !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		return nil, fmt.Errorf("%w: file name must end in .pdf", domain.ErrInvalidRequest)
	}

	encoded := strings.TrimSpace(req.FileContent)
	if i := strings.Index(encoded, ";base64,"); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+len(";base64,"):]
	}

	if maxSize > 0 && int64(base64.StdEncoding.DecodedLen(len(encoded))) > maxSize+3 {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", domain.ErrInvalidRequest, maxSize)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: fileContent is not valid base64", domain.ErrInvalidRequest)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", domain.ErrInvalidRequest)
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", domain.ErrInvalidRequest, maxSize)
	}
	if http.DetectContentType(data) != pdfContentType {
		return nil, fmt.Errorf("%w: file content is not a PDF", domain.ErrInvalidRequest)
	}

	return &upload{FileName: name, Data: data}, nil
}
