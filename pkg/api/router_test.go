package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/module-engine/pkg/api"
	"github.com/LENAX/module-engine/pkg/core/bulk"
	"github.com/LENAX/module-engine/pkg/core/engine"
	"github.com/LENAX/module-engine/pkg/core/events"
	"github.com/LENAX/module-engine/pkg/core/lifecycle"
	"github.com/LENAX/module-engine/pkg/core/operation"
	"github.com/LENAX/module-engine/pkg/storage/sqlite"
)

type testCatalog map[string]bool

func (c testCatalog) HasModule(name string) bool { return c[name] }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	store, err := sqlite.NewStoreFromDSN(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	builder := operation.NewRegistryBuilder()
	noop := func(ctx context.Context, s lifecycle.Step, moduleName string, metadata map[string]interface{}) error {
		return nil
	}
	for _, step := range lifecycle.DefaultSteps() {
		builder.RegisterFunc(step, noop, noop)
	}
	registry, err := builder.Build()
	require.NoError(t, err)

	bus, err := events.NewBus(false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	eng, err := engine.NewWorkflowEngine(engine.Options{
		Store:    store,
		Registry: registry,
		Bus:      bus,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Shutdown(context.Background()) })

	coordinator, err := bulk.NewCoordinator(eng, testCatalog{"star-atlas": true}, bus, 2)
	require.NoError(t, err)

	return api.SetupRouter(eng, coordinator, "test")
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAPI_Health(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestAPI_WorkflowLifecycle(t *testing.T) {
	router := newTestRouter(t)

	// 创建工作流
	w := doRequest(t, router, http.MethodPost, "/api/v1/workflows",
		`{"module_name":"star-atlas"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Data struct {
			ID    string `json:"id"`
			State string `json:"state"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.ID)
	assert.Equal(t, "Active", created.Data.State)

	// 同一模块重复创建冲突
	w = doRequest(t, router, http.MethodPost, "/api/v1/workflows",
		`{"module_name":"star-atlas"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	// 推进一个步骤
	w = doRequest(t, router, http.MethodPost, "/api/v1/workflows/"+created.Data.ID+"/advance", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Download")

	// 查询详情
	w = doRequest(t, router, http.MethodGet, "/api/v1/workflows/"+created.Data.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "star-atlas")

	// 取消
	w = doRequest(t, router, http.MethodPost, "/api/v1/workflows/"+created.Data.ID+"/cancel", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPI_WorkflowNotFound(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(t, router, http.MethodGet, "/api/v1/workflows/no-such-id", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_CreateWorkflowValidation(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(t, router, http.MethodPost, "/api/v1/workflows", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_BulkStartAndResult(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(t, router, http.MethodPost, "/api/v1/bulk",
		`{"kind":"install","modules":["star-atlas","unknown-module"]}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var started struct {
		Data struct {
			RunID string `json:"run_id"`
			Total int    `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	require.NotEmpty(t, started.Data.RunID)
	assert.Equal(t, 2, started.Data.Total)

	w = doRequest(t, router, http.MethodGet, "/api/v1/bulk/"+started.Data.RunID, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPI_BulkBadKind(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(t, router, http.MethodPost, "/api/v1/bulk",
		`{"kind":"explode","modules":["star-atlas"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_ErrorsListEmpty(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(t, router, http.MethodGet, "/api/v1/errors", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, router, http.MethodGet, "/api/v1/errors/no-such-id", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
