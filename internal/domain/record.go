package domain

import "time"

// RecordStatus is the persisted status of an AnalysisRecord.
type RecordStatus string

const (
	StatusPending    RecordStatus = "pending"
	StatusProcessing RecordStatus = "processing"
	StatusDone       RecordStatus = "done"
	StatusError      RecordStatus = "error"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s RecordStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusError
}

// Stage is the fine-grained position of a pipeline run.
type Stage string

const (
	StagePending    Stage = "pending"
	StageExtracting Stage = "extracting"
	StageAnalyzing  Stage = "analyzing"
	StageDone       Stage = "done"
	StageError      Stage = "error"
)

// RawTextPreviewLimit is how many characters of extracted text are kept on the record.
const RawTextPreviewLimit = 10000

// MaxErrorMessageLen bounds the error message persisted on a failed record.
const MaxErrorMessageLen = 2000

// AnalysisRecord is the persisted unit tracking one statement analysis for one user.
type AnalysisRecord struct {
	ID               string        `json:"id"`
	UserID           string        `json:"userId"`
	FileName         string        `json:"fileName"`
	Status           RecordStatus  `json:"status"`
	Stage            Stage         `json:"stage"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
	TransactionCount int           `json:"transactionCount"`
	Transactions     []Transaction `json:"transactions,omitempty"`
	Result           *Analysis     `json:"result"`
	Error            string        `json:"error"`
	RawText          string        `json:"rawText,omitempty"`
	Checksum         string        `json:"checksum,omitempty"`
	BlobURI          string        `json:"-"`
}

// TruncateRunes returns at most n runes of s.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
