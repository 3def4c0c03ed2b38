package moduleengine_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/module-engine/pkg/cli/moduleengine"
)

func TestClient_Health(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"message":"success","data":{"status":"ok","version":"0.1.0"}}`))
	}))
	defer server.Close()

	client := moduleengine.New(server.URL)
	health, err := client.Health()
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
}

func TestClient_ServerErrorMessagePreserved(t *testing.T) {
	// 服务端错误消息可能包含百分号（如进度描述），必须原样传递
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":1,"message":"磁盘使用率已达 95%，无法安装"}`))
	}))
	defer server.Close()

	client := moduleengine.New(server.URL)
	_, err := client.GetWorkflow("wf-1")
	require.Error(t, err)
	assert.Equal(t, "磁盘使用率已达 95%，无法安装", err.Error())
}
