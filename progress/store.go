// Package progress keeps the live status of import jobs, keyed by task id.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"product-importer/models"
)

// DefaultTTL is how long a record survives its last write.
const DefaultTTL = time.Hour

// ErrNotFound is returned by Get for unknown or expired task ids.
var ErrNotFound = errors.New("task not found or expired")

// Store is a progress record store. Implementations must be safe for concurrent use.
type Store interface {
	Set(ctx context.Context, record models.UploadStatus) error
	Get(ctx context.Context, taskID string) (*models.UploadStatus, error)
	Backend() string
}

// Key is the storage key of a task.
func Key(taskID string) string {
	return "upload:" + taskID
}

func encode(rec models.UploadStatus) map[string]string {
	errs := rec.Errors
	if errs == nil {
		errs = []string{}
	}
	encodedErrs, _ := json.Marshal(errs)

	return map[string]string{
		"task_id":        rec.TaskID,
		"status":         rec.Status,
		"progress":       strconv.Itoa(rec.Progress),
		"total_rows":     strconv.Itoa(rec.TotalRows),
		"processed_rows": strconv.Itoa(rec.ProcessedRows),
		"message":        rec.Message,
		"errors":         string(encodedErrs),
		"updated_at":     rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decode(taskID string, fields map[string]string) (*models.UploadStatus, error) {
	rec := &models.UploadStatus{
		TaskID:  taskID,
		Status:  fields["status"],
		Message: fields["message"],
		Errors:  []string{},
	}

	var err error
	if rec.Progress, err = atoi(fields, "progress"); err != nil {
		return nil, err
	}
	if rec.TotalRows, err = atoi(fields, "total_rows"); err != nil {
		return nil, err
	}
	if rec.ProcessedRows, err = atoi(fields, "processed_rows"); err != nil {
		return nil, err
	}
	if e := fields["errors"]; e != "" {
		if err := json.Unmarshal([]byte(e), &rec.Errors); err != nil {
			return nil, fmt.Errorf("corrupt progress field errors: %w", err)
		}
		if rec.Errors == nil {
			rec.Errors = []string{}
		}
	}
	if ts := fields["updated_at"]; ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			rec.UpdatedAt = t
		}
	}
	return rec, nil
}

func atoi(fields map[string]string, key string) (int, error) {
	v := fields[key]
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("corrupt progress field %s=%q: %w", key, v, err)
	}
	return n, nil
}
