package controllers_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"product-importer/apperrors"
	"product-importer/controllers"
	"product-importer/models"
	"product-importer/progress"
	"product-importer/routes"
	"product-importer/services"
	"product-importer/stream"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---- fakes ----

type fakeDispatcher struct {
	mu      sync.Mutex
	imports map[string][]byte
	err     error
}

func (f *fakeDispatcher) StartImport(_ context.Context, taskID string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.imports == nil {
		f.imports = map[string][]byte{}
	}
	f.imports[taskID] = content
	return f.err
}

func (f *fakeDispatcher) NotifyWebhooks(context.Context, string, any) error { return nil }
func (f *fakeDispatcher) Mode() string                                    { return "fake" }

type fakeProductService struct {
	lastFilter models.ProductFilter
	created    *models.CreateProductRequest
	deleteAll  int64
	getErr     error
}

func (f *fakeProductService) List(_ context.Context, filter models.ProductFilter) (*models.ProductListResponse, error) {
	f.lastFilter = filter
	return &models.ProductListResponse{Items: []models.Product{{ID: 1, SKU: "a"}}, Total: 1, Page: filter.Page, PageSize: filter.PageSize, TotalPages: 1}, nil
}

func (f *fakeProductService) Get(_ context.Context, id uint) (*models.Product, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &models.Product{ID: id, SKU: "a", Name: "A"}, nil
}

func (f *fakeProductService) Create(_ context.Context, req *models.CreateProductRequest) (*models.Product, error) {
	f.created = req
	return &models.Product{ID: 9, SKU: strings.ToLower(req.SKU), Name: req.Name, Active: true}, nil
}

func (f *fakeProductService) Update(_ context.Context, id uint, req *models.UpdateProductRequest) (*models.Product, error) {
	return &models.Product{ID: id, Name: *req.Name}, nil
}

func (f *fakeProductService) Delete(context.Context, uint) error { return nil }

func (f *fakeProductService) DeleteAll(context.Context) (int64, error) {
	return f.deleteAll, nil
}

type fakeWebhookService struct {
	services.WebhookService
	testResult *models.WebhookTestResult
}

func (f *fakeWebhookService) Create(_ context.Context, req *models.CreateWebhookRequest) (*models.Webhook, error) {
	if err := services.ValidateEvents(req.Events); err != nil {
		return nil, err
	}
	return &models.Webhook{ID: 1, URL: req.URL, Events: req.Events, Enabled: true}, nil
}

func (f *fakeWebhookService) Test(_ context.Context, id uint) (*models.WebhookTestResult, error) {
	if id != 1 {
		return nil, apperrors.NotFound("Webhook not found")
	}
	return f.testResult, nil
}

type testEnv struct {
	router     *gin.Engine
	store      *progress.MemoryStore
	dispatcher *fakeDispatcher
	products   *fakeProductService
	webhooks   *fakeWebhookService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		store:      progress.NewMemoryStore(0),
		dispatcher: &fakeDispatcher{},
		products:   &fakeProductService{},
		webhooks:   &fakeWebhookService{testResult: &models.WebhookTestResult{Success: true, StatusCode: 200, ResponseTimeMS: 3.5}},
	}
	v := controllers.NewRequestValidator()
	logger := zap.NewNop()

	env.router = gin.New()
	routes.RegisterRoutes(env.router, routes.Controllers{
		Uploads:  controllers.NewUploadController(env.store, env.dispatcher, stream.NewStreamer(env.store, 2*time.Millisecond, 3, logger), v, 1<<20, logger),
		Products: controllers.NewProductController(env.products, v),
		Webhooks: controllers.NewWebhookController(env.webhooks, v),
		Health:   controllers.NewHealthController("Product Importer", "fake", "memory", nil, logger),
	})
	return env
}

func (e *testEnv) do(method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func multipartUpload(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func detail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["detail"]
}

// ---- uploads ----

func TestUpload_AcceptsCSVAndWritesPendingRecord(t *testing.T) {
	env := newTestEnv(t)
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, multipartUpload(t, "products.csv", []byte("sku,name\nA,Alpha\n")))

	require.Equal(t, http.StatusOK, w.Code)
	var rec models.UploadStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, models.UploadStatusPending, rec.Status)
	assert.Equal(t, "Upload received. Processing started.", rec.Message)
	assert.Equal(t, []string{}, rec.Errors)
	assert.Len(t, rec.TaskID, 36)

	stored, err := env.store.Get(context.Background(), rec.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusPending, stored.Status)
	assert.Equal(t, "sku,name\nA,Alpha\n", string(env.dispatcher.imports[rec.TaskID]))
}

func TestUpload_RejectsNonCSV(t *testing.T) {
	env := newTestEnv(t)
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, multipartUpload(t, "products.xlsx", []byte("x")))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Only CSV files are accepted", detail(t, w))
	assert.Empty(t, env.dispatcher.imports)
}

func TestUpload_RejectsOversizedFile(t *testing.T) {
	env := newTestEnv(t)
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, multipartUpload(t, "big.csv", bytes.Repeat([]byte("a"), (1<<20)+1)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "File too large. Maximum size is 1MB", detail(t, w))
}

func TestUpload_DispatchFailureIs500(t *testing.T) {
	env := newTestEnv(t)
	env.dispatcher.err = errors.New("redis down")
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, multipartUpload(t, "p.csv", []byte("sku\nA\n")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to queue import job", detail(t, w))
}

func TestUploadStatus(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.Set(context.Background(), models.UploadStatus{TaskID: "t1", Status: models.UploadStatusProcessing, Progress: 41}))

	w := env.do(http.MethodGet, "/api/uploads/t1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"progress":41`)

	w = env.do(http.MethodGet, "/api/uploads/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Task not found or expired", detail(t, w))
}

func TestUploadTemplate(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/uploads/template", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "sku,name,description,price,quantity\n"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "product_import_template.csv")
}

func readSSE(t *testing.T, url string) []string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var lines []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func TestUploadStream_CompletedTask(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.Set(context.Background(), models.UploadStatus{TaskID: "done", Status: models.UploadStatusCompleted, Progress: 100, Errors: []string{}}))
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	lines := readSSE(t, srv.URL+"/api/uploads/done/stream")

	require.Len(t, lines, 4)
	assert.Equal(t, "event:progress", lines[0])
	assert.Contains(t, lines[1], `"progress":100`)
	assert.Equal(t, "event:complete", lines[2])
}

func TestUploadStream_UnknownTask(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	lines := readSSE(t, srv.URL+"/api/uploads/missing/stream")

	assert.Equal(t, []string{"event:error", `data:{"error":"Task not found"}`}, lines)
}

// ---- products ----

func TestProductList_ParsesQuery(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/products?page=2&page_size=50&search=%20wid%20&active=false", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, env.products.lastFilter.Page)
	assert.Equal(t, 50, env.products.lastFilter.PageSize)
	assert.Equal(t, "wid", env.products.lastFilter.Search)
	require.NotNil(t, env.products.lastFilter.Active)
	assert.False(t, *env.products.lastFilter.Active)
}

func TestProductList_RejectsBadPagination(t *testing.T) {
	env := newTestEnv(t)

	for _, q := range []string{"page=0", "page_size=101", "page_size=0", "page=x", "active=maybe"} {
		w := env.do(http.MethodGet, "/api/products?"+q, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestProductCreate(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/products", `{"sku":"W-1","name":"Widget","price":2.5}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "W-1", env.products.created.SKU)

	w = env.do(http.MethodPost, "/api/products", `{"sku":"W-2","name":"Widget","price":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, detail(t, w), "price")

	w = env.do(http.MethodPost, "/api/products", `{"name":"No sku"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, detail(t, w), "sku failed on 'required'")
}

func TestProductGet_NotFound(t *testing.T) {
	env := newTestEnv(t)
	env.products.getErr = apperrors.NotFound("Product not found")

	w := env.do(http.MethodGet, "/api/products/3", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Product not found", detail(t, w))

	w = env.do(http.MethodGet, "/api/products/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProductDeleteAll_RequiresConfirm(t *testing.T) {
	env := newTestEnv(t)
	env.products.deleteAll = 7

	w := env.do(http.MethodDelete, "/api/products", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Please confirm deletion by setting confirm=true", detail(t, w))

	w = env.do(http.MethodDelete, "/api/products?confirm=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Successfully deleted 7 products","success":true}`, w.Body.String())
}

// ---- webhooks ----

func TestWebhookEvents(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/webhooks/events", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["product.created","product.updated","product.deleted","bulk.imported","bulk.deleted"]`, w.Body.String())
}

func TestWebhookCreate(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/webhooks", `{"url":"https://example.com/hook","events":["product.created"]}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = env.do(http.MethodPost, "/api/webhooks", `{"url":"https://example.com/hook","events":["order.paid"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, strings.HasPrefix(detail(t, w), "Invalid events: order.paid."))

	w = env.do(http.MethodPost, "/api/webhooks", `{"url":"not a url","events":["product.created"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/webhooks", `{"url":"https://example.com/hook","events":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookTestEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/webhooks/1/test", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"status_code":200,"response_time_ms":3.5}`, w.Body.String())

	w = env.do(http.MethodPost, "/api/webhooks/2/test", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","app":"Product Importer","database":"postgresql","dispatch_mode":"fake","progress_backend":"memory"}`, w.Body.String())
}
