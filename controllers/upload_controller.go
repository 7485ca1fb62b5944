package controllers

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"net/http"

	"product-importer/apperrors"
	"product-importer/dispatch"
	"product-importer/models"
	"product-importer/progress"
	"product-importer/services"
	"product-importer/stream"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const uploadAcceptedMessage = "Upload received. Processing started."

type UploadController struct {
	store       progress.Store
	dispatcher  dispatch.Dispatcher
	streamer    *stream.Streamer
	validator   *RequestValidator
	maxFileSize int64
	logger      *zap.Logger
}

func NewUploadController(
	store progress.Store,
	dispatcher dispatch.Dispatcher,
	streamer *stream.Streamer,
	validator *RequestValidator,
	maxFileSize int64,
	logger *zap.Logger,
) *UploadController {
	return &UploadController{
		store:       store,
		dispatcher:  dispatcher,
		streamer:    streamer,
		validator:   validator,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// Upload accepts a CSV file and starts the import in the background.
func (uc *UploadController) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		apperrors.Respond(c, apperrors.BadRequest("file is required"))
		return
	}
	if !uc.validator.IsValidCSVFile(file) {
		apperrors.Respond(c, apperrors.BadRequest("Only CSV files are accepted"))
		return
	}
	if err := uc.validator.ValidateFileSize(file.Size, uc.maxFileSize); err != nil {
		apperrors.Respond(c, err)
		return
	}

	fh, err := file.Open()
	if err != nil {
		apperrors.Respond(c, apperrors.Internal("Failed to open file", err))
		return
	}
	defer fh.Close()

	content, err := io.ReadAll(io.LimitReader(fh, uc.maxFileSize+1))
	if err != nil {
		apperrors.Respond(c, apperrors.Internal("Failed to read file", err))
		return
	}
	if err := uc.validator.ValidateFileSize(int64(len(content)), uc.maxFileSize); err != nil {
		apperrors.Respond(c, err)
		return
	}
	if _, err := services.DecodeContent(content); err != nil {
		apperrors.Respond(c, apperrors.BadRequest("Could not decode file. Please ensure UTF-8 encoding."))
		return
	}

	taskID := uuid.New().String()
	rec := models.UploadStatus{
		TaskID:  taskID,
		Status:  models.UploadStatusPending,
		Message: uploadAcceptedMessage,
		Errors:  []string{},
	}
	ctx := c.Request.Context()
	if err := uc.store.Set(ctx, rec); err != nil {
		uc.logger.Warn("failed to write pending upload record", zap.String("task_id", taskID), zap.Error(err))
	}

	if err := uc.dispatcher.StartImport(ctx, taskID, content); err != nil {
		uc.logger.Error("failed to start import", zap.String("task_id", taskID), zap.Error(err))
		rec.Status = models.UploadStatusFailed
		rec.Message = "Import failed: could not queue job"
		_ = uc.store.Set(ctx, rec)
		apperrors.Respond(c, apperrors.Internal("Failed to queue import job", err))
		return
	}

	uc.logger.Info("upload accepted",
		zap.String("task_id", taskID),
		zap.String("filename", file.Filename),
		zap.Int("bytes", len(content)),
		zap.String("dispatch_mode", uc.dispatcher.Mode()),
	)
	c.JSON(http.StatusOK, rec)
}

// Status returns the current progress record.
func (uc *UploadController) Status(c *gin.Context) {
	rec, err := uc.store.Get(c.Request.Context(), c.Param("task_id"))
	if errors.Is(err, progress.ErrNotFound) {
		apperrors.Respond(c, apperrors.NotFound("Task not found or expired"))
		return
	}
	if err != nil {
		apperrors.Respond(c, apperrors.Internal("Failed to retrieve task status", err))
		return
	}
	c.JSON(http.StatusOK, rec)
}

type sseMessage struct {
	event string
	data  any
}

// Stream pushes progress as server-sent events until the job ends or the client leaves.
func (uc *UploadController) Stream(c *gin.Context) {
	taskID := c.Param("task_id")
	ctx := c.Request.Context()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	events := make(chan sseMessage)
	go func() {
		defer close(events)
		uc.streamer.Run(ctx, taskID, func(event string, data any) bool {
			select {
			case events <- sseMessage{event: event, data: data}:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()

	c.Stream(func(w io.Writer) bool {
		msg, ok := <-events
		if !ok {
			return false
		}
		c.SSEvent(msg.event, msg.data)
		return true
	})
}

// Template serves an example CSV with the recognized header row.
func (uc *UploadController) Template(c *gin.Context) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(services.TemplateHeader)
	_ = w.Write([]string{"SKU-001", "Example product", "Optional description", "19.99", "10"})
	w.Flush()

	c.Header("Content-Disposition", `attachment; filename="product_import_template.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
