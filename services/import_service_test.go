package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"product-importer/models"
	aws_pkg "product-importer/pkg/aws"
	"product-importer/progress"
	"product-importer/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---- fake upserter ----

// fakeCatalog keeps products keyed by normalized sku the way BulkUpsert does.
type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]models.ProductRow
	batches  [][]models.ProductRow
	failOn   int
	err      error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{products: map[string]models.ProductRow{}}
}

func (f *fakeCatalog) BulkUpsert(_ context.Context, rows []models.ProductRow) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, rows)
	if f.err != nil && len(f.batches) == f.failOn {
		return 0, f.err
	}
	for _, r := range rows {
		existing, ok := f.products[r.SKU]
		if !ok {
			f.products[r.SKU] = r
			continue
		}
		existing.Name = r.Name
		if r.Price != nil {
			existing.Price = r.Price
		}
		if r.Quantity != nil {
			existing.Quantity = r.Quantity
		}
		if r.Description != nil {
			existing.Description = r.Description
		}
		f.products[r.SKU] = existing
	}
	return len(rows), nil
}

// ---- recording store ----

type recordingStore struct {
	*progress.MemoryStore
	mu      sync.Mutex
	history []models.UploadStatus
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: progress.NewMemoryStore(0)}
}

func (s *recordingStore) Set(ctx context.Context, rec models.UploadStatus) error {
	s.mu.Lock()
	s.history = append(s.history, rec)
	s.mu.Unlock()
	return s.MemoryStore.Set(ctx, rec)
}

type failingStore struct{ progress.Store }

func (failingStore) Set(context.Context, models.UploadStatus) error {
	return errors.New("redis down")
}

type recordedMetric struct {
	name  string
	kind  string
	value float64
}

type recordingMetrics struct {
	mu      sync.Mutex
	metrics []recordedMetric
}

func (m *recordingMetrics) add(r recordedMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = append(m.metrics, r)
	return nil
}

func (m *recordingMetrics) RecordCount(_ context.Context, name string, _ map[string]string) error {
	return m.add(recordedMetric{name: name, kind: "count", value: 1})
}

func (m *recordingMetrics) RecordLatency(_ context.Context, name string, d time.Duration, _ map[string]string) error {
	return m.add(recordedMetric{name: name, kind: "latency", value: float64(d.Milliseconds())})
}

func (m *recordingMetrics) RecordValue(_ context.Context, name string, v float64, _ map[string]string) error {
	return m.add(recordedMetric{name: name, kind: "value", value: v})
}

func (m *recordingMetrics) find(name string) []recordedMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []recordedMetric
	for _, r := range m.metrics {
		if r.name == name {
			out = append(out, r)
		}
	}
	return out
}

func newImporter(catalog *fakeCatalog, store progress.Store, chunk int) *services.ImportService {
	return services.NewImportService(catalog, store, chunk, nil, zap.NewNop())
}

func TestImport_ExampleScenario(t *testing.T) {
	catalog := newFakeCatalog()
	store := newRecordingStore()
	csv := "sku,name,price,quantity\n" +
		"A1,Widget,9.99,5\n" +
		",Bad,,\n" +
		"A2,Gadget,x,3\n"

	rec := newImporter(catalog, store, 0).Run(context.Background(), "task-1", []byte(csv))

	assert.Equal(t, models.UploadStatusCompleted, rec.Status)
	assert.Equal(t, 100, rec.Progress)
	assert.Equal(t, 3, rec.TotalRows)
	assert.Equal(t, 3, rec.ProcessedRows)
	assert.Equal(t, []string{"Row 2: Missing SKU"}, rec.Errors)
	assert.Equal(t, "Successfully imported 3 products with 1 warnings", rec.Message)

	require.Len(t, catalog.products, 2)
	a1 := catalog.products["a1"]
	assert.Equal(t, "Widget", a1.Name)
	assert.InDelta(t, 9.99, *a1.Price, 1e-9)
	assert.Equal(t, 5, *a1.Quantity)
	a2 := catalog.products["a2"]
	assert.Equal(t, 0.0, *a2.Price)
	assert.Equal(t, 3, *a2.Quantity)

	stored, err := store.Get(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Status, stored.Status)
	assert.Equal(t, rec.Errors, stored.Errors)
}

func TestImport_ProgressIsMonotonicAndEndsAt100(t *testing.T) {
	var b strings.Builder
	b.WriteString("sku,name\n")
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&b, "S%d,Item %d\n", i, i)
	}
	store := newRecordingStore()

	rec := newImporter(newFakeCatalog(), store, 10).Run(context.Background(), "t", []byte(b.String()))
	require.Equal(t, models.UploadStatusCompleted, rec.Status)

	require.NotEmpty(t, store.history)
	assert.Equal(t, 0, store.history[0].Progress)
	assert.Equal(t, "Parsing CSV file...", store.history[0].Message)
	assert.Equal(t, 5, store.history[1].Progress)
	assert.Equal(t, "Found 25 rows. Starting import...", store.history[1].Message)

	last := -1
	for _, h := range store.history {
		assert.GreaterOrEqual(t, h.Progress, last)
		last = h.Progress
	}
	assert.Equal(t, 100, last)

	// 0, 5, three chunks, completion
	require.Len(t, store.history, 6)
	assert.Equal(t, 41, store.history[2].Progress)
	assert.Equal(t, "Processed 10 of 25 rows...", store.history[2].Message)
	assert.Equal(t, 95, store.history[4].Progress)
}

func TestImport_ThousandsSeparatorInMessages(t *testing.T) {
	var b strings.Builder
	b.WriteString("sku\n")
	for i := 0; i < 1200; i++ {
		fmt.Fprintf(&b, "s%d\n", i)
	}
	store := newRecordingStore()

	rec := newImporter(newFakeCatalog(), store, 1000).Run(context.Background(), "t", []byte(b.String()))

	assert.Equal(t, "Successfully imported 1,200 products", rec.Message)
	assert.Equal(t, "Processed 1,000 of 1,200 rows...", store.history[2].Message)
}

func TestImport_SKUIsCaseInsensitive(t *testing.T) {
	catalog := newFakeCatalog()
	importer := newImporter(catalog, newRecordingStore(), 0)

	importer.Run(context.Background(), "first", []byte("SKU,Name,Price\nABC123,Old,1\n"))
	importer.Run(context.Background(), "second", []byte("sku,name,price\n abc123 ,New,2\n"))

	require.Len(t, catalog.products, 1)
	assert.Equal(t, "New", catalog.products["abc123"].Name)
	assert.Equal(t, 2.0, *catalog.products["abc123"].Price)
}

func TestImport_ReimportIsIdempotent(t *testing.T) {
	catalog := newFakeCatalog()
	importer := newImporter(catalog, newRecordingStore(), 0)
	csv := []byte("sku,name\nA,Alpha\nB,Beta\n")

	importer.Run(context.Background(), "one", csv)
	importer.Run(context.Background(), "two", csv)

	assert.Len(t, catalog.products, 2)
}

func TestImport_BadNumbersBecomeZeroWithoutErrors(t *testing.T) {
	catalog := newFakeCatalog()
	csv := "sku,name,price,quantity\nP1,One,notanumber,-4\nP2,Two,-1.5,2.5\n"

	rec := newImporter(catalog, newRecordingStore(), 0).Run(context.Background(), "t", []byte(csv))

	assert.Empty(t, rec.Errors)
	assert.Equal(t, "Successfully imported 2 products", rec.Message)
	assert.Equal(t, 0.0, *catalog.products["p1"].Price)
	assert.Equal(t, 0, *catalog.products["p1"].Quantity)
	assert.Equal(t, 0.0, *catalog.products["p2"].Price)
	assert.Equal(t, 0, *catalog.products["p2"].Quantity)
}

func TestImport_HeaderAliasesAndMissingColumns(t *testing.T) {
	catalog := newFakeCatalog()
	csv := "Product_SKU,PRODUCT_NAME,Qty,extra\nX9,Thing,7,ignored\nX10,,1,\n"

	rec := newImporter(catalog, newRecordingStore(), 0).Run(context.Background(), "t", []byte(csv))

	require.Equal(t, models.UploadStatusCompleted, rec.Status)
	x9 := catalog.products["x9"]
	assert.Equal(t, "Thing", x9.Name)
	assert.Equal(t, 7, *x9.Quantity)
	assert.Nil(t, x9.Price)
	assert.Nil(t, x9.Description)
	assert.Equal(t, "X10", catalog.products["x10"].Name)
}

func TestImport_MissingSKUNumbersAreGlobal(t *testing.T) {
	csv := "sku,name\nA,a\nB,b\n,c\nD,d\n,e\n"

	rec := newImporter(newFakeCatalog(), newRecordingStore(), 2).Run(context.Background(), "t", []byte(csv))

	assert.Equal(t, []string{"Row 3: Missing SKU", "Row 5: Missing SKU"}, rec.Errors)
	assert.Equal(t, 5, rec.ProcessedRows)
}

func TestImport_ErrorsCappedAtFirstTen(t *testing.T) {
	var b strings.Builder
	b.WriteString("sku,name\n")
	for i := 0; i < 15; i++ {
		b.WriteString(",nameless\n")
	}

	rec := newImporter(newFakeCatalog(), newRecordingStore(), 0).Run(context.Background(), "t", []byte(b.String()))

	require.Len(t, rec.Errors, models.MaxStoredErrors)
	assert.Equal(t, "Row 1: Missing SKU", rec.Errors[0])
	assert.Equal(t, "Row 10: Missing SKU", rec.Errors[9])
	assert.Equal(t, "Successfully imported 15 products with 15 warnings", rec.Message)
}

func TestImport_EmptyFileFails(t *testing.T) {
	for name, body := range map[string]string{
		"no content":  "",
		"header only": "sku,name\n",
	} {
		t.Run(name, func(t *testing.T) {
			rec := newImporter(newFakeCatalog(), newRecordingStore(), 0).Run(context.Background(), "t", []byte(body))
			assert.Equal(t, models.UploadStatusFailed, rec.Status)
			assert.Equal(t, "CSV file is empty", rec.Message)
			assert.Equal(t, 0, rec.Progress)
		})
	}
}

func TestImport_BOMAndLatin1(t *testing.T) {
	cases := map[string][]byte{
		"utf8 with bom": []byte("\xef\xbb\xbfsku,name\nL1,Caf\xc3\xa9\n"),
		"latin1":        []byte("sku,name\nL1,Caf\xe9\n"),
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			catalog := newFakeCatalog()

			rec := newImporter(catalog, newRecordingStore(), 0).Run(context.Background(), "t", content)

			require.Equal(t, models.UploadStatusCompleted, rec.Status)
			assert.Equal(t, "Café", catalog.products["l1"].Name)
		})
	}
}

func TestImport_PersistenceFailureKeepsLastProgress(t *testing.T) {
	var b strings.Builder
	b.WriteString("sku\n,\n")
	for i := 0; i < 19; i++ {
		fmt.Fprintf(&b, "s%d\n", i)
	}
	catalog := newFakeCatalog()
	catalog.failOn = 2
	catalog.err = errors.New("connection reset")
	store := newRecordingStore()

	rec := newImporter(catalog, store, 10).Run(context.Background(), "t", []byte(b.String()))

	assert.Equal(t, models.UploadStatusFailed, rec.Status)
	assert.Equal(t, 50, rec.Progress)
	assert.Equal(t, 10, rec.ProcessedRows)
	assert.Equal(t, "Import failed: connection reset", rec.Message)
	assert.Equal(t, []string{"Row 1: Missing SKU", "connection reset"}, rec.Errors)

	stored, err := store.Get(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusFailed, stored.Status)
}

func TestImport_StoreFailureIsNotFatal(t *testing.T) {
	catalog := newFakeCatalog()

	rec := newImporter(catalog, failingStore{}, 0).Run(context.Background(), "t", []byte("sku\nA\n"))

	assert.Equal(t, models.UploadStatusCompleted, rec.Status)
	assert.Len(t, catalog.products, 1)
}

func TestImport_CleanRunReportsZeroRowErrors(t *testing.T) {
	metrics := &recordingMetrics{}
	importer := services.NewImportService(newFakeCatalog(), newRecordingStore(), 0, metrics, zap.NewNop())

	rec := importer.Run(context.Background(), "clean", []byte("sku,name\nA,Alpha\nB,Beta\n"))
	require.Equal(t, models.UploadStatusCompleted, rec.Status)

	assert.Equal(t, []recordedMetric{{name: aws_pkg.MetricRowErrors, kind: "value", value: 0}}, metrics.find(aws_pkg.MetricRowErrors))
	assert.Equal(t, []recordedMetric{{name: aws_pkg.MetricRowsImported, kind: "value", value: 2}}, metrics.find(aws_pkg.MetricRowsImported))
	assert.Equal(t, []recordedMetric{{name: aws_pkg.MetricImportsCompleted, kind: "count", value: 1}}, metrics.find(aws_pkg.MetricImportsCompleted))
	assert.Empty(t, metrics.find(aws_pkg.MetricImportsFailed))
}

func TestImport_MultilineFailureSurvivesStore(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.failOn = 1
	catalog.err = errors.New("update product a\nb: boom")
	store := newRecordingStore()

	rec := newImporter(catalog, store, 0).Run(context.Background(), "multiline", []byte("sku,name\n\"a\nb\",Split\n"))
	require.Equal(t, models.UploadStatusFailed, rec.Status)
	require.Len(t, rec.Errors, 1)

	stored, err := store.Get(context.Background(), "multiline")
	require.NoError(t, err)
	assert.Equal(t, rec.Errors, stored.Errors)
}
