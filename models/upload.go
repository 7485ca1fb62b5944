package models

import "time"

// Upload status values.
const (
	UploadStatusPending    = "pending"
	UploadStatusProcessing = "processing"
	UploadStatusCompleted  = "completed"
	UploadStatusFailed     = "failed"
)

// MaxStoredErrors bounds the row errors kept on a progress record.
const MaxStoredErrors = 10

// UploadStatus is the progress record of one import job.
type UploadStatus struct {
	TaskID        string    `json:"task_id"`
	Status        string    `json:"status"`
	Progress      int       `json:"progress"`
	TotalRows     int       `json:"total_rows"`
	ProcessedRows int       `json:"processed_rows"`
	Message       string    `json:"message"`
	Errors        []string  `json:"errors"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsTerminal reports whether the job has finished.
func (u *UploadStatus) IsTerminal() bool {
	return u.Status == UploadStatusCompleted || u.Status == UploadStatusFailed
}

// ImportSummary is the bulk.imported webhook payload.
type ImportSummary struct {
	TaskID        string   `json:"task_id"`
	TotalRows     int      `json:"total_rows"`
	ProcessedRows int      `json:"processed_rows"`
	Message       string   `json:"message"`
	Errors        []string `json:"errors"`
}

// Summary builds the bulk.imported payload for a finished job.
func (u *UploadStatus) Summary() ImportSummary {
	return ImportSummary{
		TaskID:        u.TaskID,
		TotalRows:     u.TotalRows,
		ProcessedRows: u.ProcessedRows,
		Message:       u.Message,
		Errors:        u.Errors,
	}
}
