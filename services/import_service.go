package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"product-importer/models"
	aws_pkg "product-importer/pkg/aws"
	"product-importer/progress"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultChunkSize is the number of rows written per upsert batch.
const DefaultChunkSize = 1000

var errMissingSKU = errors.New("Missing SKU")

// ProductUpserter is the persistence the import pipeline needs.
type ProductUpserter interface {
	BulkUpsert(ctx context.Context, rows []models.ProductRow) (int, error)
}

// ImportService runs the CSV import pipeline for one task at a time per call.
type ImportService struct {
	products  ProductUpserter
	store     progress.Store
	chunkSize int
	metrics   aws_pkg.MetricsRecorder
	logger    *zap.Logger
}

// NewImportService creates an ImportService. metrics may be nil.
func NewImportService(
	products ProductUpserter,
	store progress.Store,
	chunkSize int,
	metrics aws_pkg.MetricsRecorder,
	logger *zap.Logger,
) *ImportService {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &ImportService{
		products:  products,
		store:     store,
		chunkSize: chunkSize,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run imports content for taskID and returns the terminal progress record. Every step is
// reported through the progress store. Row problems are collected as warnings; a failure
// outside a single row ends the job as failed without panicking the caller.
func (s *ImportService) Run(ctx context.Context, taskID string, content []byte) (result models.UploadStatus) {
	start := time.Now()
	job := &importJob{
		svc:     s,
		ctx:     ctx,
		printer: message.NewPrinter(language.English),
		rec:     models.UploadStatus{TaskID: taskID, Errors: []string{}},
	}
	s.recordCount(aws_pkg.MetricImportsStarted)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("import pipeline panicked", zap.String("task_id", taskID), zap.Any("panic", r))
			result = job.fail(fmt.Errorf("%v", r))
		}
		s.finish(result, len(job.rowErrors), time.Since(start))
	}()

	return job.run(content)
}

type importJob struct {
	svc       *ImportService
	ctx       context.Context
	printer   *message.Printer
	rec       models.UploadStatus
	rowErrors []string
}

func (j *importJob) run(content []byte) models.UploadStatus {
	j.emit(models.UploadStatusProcessing, 0, "Parsing CSV file...")

	text, err := DecodeContent(content)
	if err != nil {
		return j.fail(err)
	}

	header, records, err := parseCSV(text)
	if err != nil {
		return j.fail(err)
	}
	if len(records) == 0 {
		j.rec.Status = models.UploadStatusFailed
		j.rec.Message = "CSV file is empty"
		j.save()
		return j.rec
	}

	total := len(records)
	cols := newColumnMap(header)
	j.rec.TotalRows = total
	j.emit(models.UploadStatusProcessing, 5, fmt.Sprintf("Found %d rows. Starting import...", total))

	chunk := j.svc.chunkSize
	for startRow := 0; startRow < total; startRow += chunk {
		end := startRow + chunk
		if end > total {
			end = total
		}

		batch := make([]models.ProductRow, 0, end-startRow)
		for i := startRow; i < end; i++ {
			row, err := normalizeRow(cols, records[i])
			if err != nil {
				j.rowErrors = append(j.rowErrors, fmt.Sprintf("Row %d: %s", i+1, err))
				continue
			}
			batch = append(batch, row)
		}

		if len(batch) > 0 {
			if _, err := j.svc.products.BulkUpsert(j.ctx, batch); err != nil {
				return j.fail(err)
			}
		}

		j.rec.ProcessedRows = end
		j.rec.Errors = firstErrors(j.rowErrors)
		j.emit(models.UploadStatusProcessing, 5+90*end/total,
			j.printer.Sprintf("Processed %d of %d rows...", end, total))
	}

	msg := j.printer.Sprintf("Successfully imported %d products", j.rec.ProcessedRows)
	if n := len(j.rowErrors); n > 0 {
		msg += fmt.Sprintf(" with %d warnings", n)
	}
	j.rec.Errors = firstErrors(j.rowErrors)
	j.emit(models.UploadStatusCompleted, 100, msg)
	return j.rec
}

func (j *importJob) emit(status string, pct int, msg string) {
	j.rec.Status = status
	j.rec.Progress = pct
	j.rec.Message = msg
	j.save()
}

// fail ends the job keeping the last emitted progress value.
func (j *importJob) fail(err error) models.UploadStatus {
	j.rec.Status = models.UploadStatusFailed
	j.rec.Message = "Import failed: " + err.Error()
	j.rec.Errors = append(firstErrors(j.rowErrors), err.Error())
	j.save()
	return j.rec
}

func (j *importJob) save() {
	if err := j.svc.store.Set(j.ctx, j.rec); err != nil {
		j.svc.logger.Warn("failed to write import progress",
			zap.String("task_id", j.rec.TaskID),
			zap.Int("progress", j.rec.Progress),
			zap.Error(err),
		)
	}
}

func (s *ImportService) finish(rec models.UploadStatus, rowErrors int, elapsed time.Duration) {
	fields := []zap.Field{
		zap.String("task_id", rec.TaskID),
		zap.String("status", rec.Status),
		zap.Int("total_rows", rec.TotalRows),
		zap.Int("processed_rows", rec.ProcessedRows),
		zap.Int("row_errors", rowErrors),
		zap.Duration("elapsed", elapsed),
	}
	if rec.Status == models.UploadStatusCompleted {
		s.logger.Info("import completed", fields...)
		s.recordCount(aws_pkg.MetricImportsCompleted)
		s.recordValue(aws_pkg.MetricRowsImported, float64(rec.ProcessedRows))
		s.recordValue(aws_pkg.MetricRowErrors, float64(rowErrors))
	} else {
		s.logger.Warn("import failed", append(fields, zap.String("message", rec.Message))...)
		s.recordCount(aws_pkg.MetricImportsFailed)
	}
	if s.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.metrics.RecordLatency(ctx, aws_pkg.MetricImportDuration, elapsed, nil)
	}
}

func (s *ImportService) recordCount(metric string) {
	if s.metrics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.metrics.RecordCount(ctx, metric, nil)
}

// recordValue always sends value, zero included.
func (s *ImportService) recordValue(metric string, value float64) {
	if s.metrics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.metrics.RecordValue(ctx, metric, value, nil)
}

// parseCSV splits text into the header and the data records. Blank lines are skipped.
func parseCSV(text string) ([]string, [][]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("could not parse CSV header: %w", err)
	}

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("could not parse CSV: %w", err)
	}
	return header, records, nil
}

// normalizeRow turns one CSV record into an upsert row. A panic while reading the record
// is returned as the row's error.
func normalizeRow(cols columnMap, record []string) (row models.ProductRow, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	sku := strings.TrimSpace(cols.value(record, fieldSKU))
	if sku == "" {
		return row, errMissingSKU
	}

	name := strings.TrimSpace(cols.value(record, fieldName))
	if name == "" {
		name = sku
	}

	active := true
	row = models.ProductRow{
		SKU:    models.NormalizeSKU(sku),
		Name:   name,
		Active: &active,
	}
	if cols.has(fieldDescription) {
		desc := cols.value(record, fieldDescription)
		row.Description = &desc
	}
	if cols.has(fieldPrice) {
		price := parsePrice(cols.value(record, fieldPrice))
		row.Price = &price
	}
	if cols.has(fieldQuantity) {
		qty := parseQuantity(cols.value(record, fieldQuantity))
		row.Quantity = &qty
	}
	return row, nil
}

// parsePrice reads a non-negative price; anything unparseable is 0.
func parsePrice(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// parseQuantity reads a non-negative integer quantity; anything unparseable is 0.
func parseQuantity(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func firstErrors(errs []string) []string {
	n := len(errs)
	if n > models.MaxStoredErrors {
		n = models.MaxStoredErrors
	}
	out := make([]string, n)
	copy(out, errs[:n])
	return out
}
