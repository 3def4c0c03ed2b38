package moduleengine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/LENAX/module-engine/pkg/api/dto"
)

// ModuleEngine HTTP API客户端
type ModuleEngine struct {
	baseURL    string
	httpClient *http.Client
}

// New 创建ModuleEngine客户端
func New(baseURL string) *ModuleEngine {
	return &ModuleEngine{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ========== Workflow API ==========

// ListWorkflows 列出所有活跃工作流
func (m *ModuleEngine) ListWorkflows() (*dto.ListResponse[dto.WorkflowSummary], error) {
	var resp dto.APIResponse[dto.ListResponse[dto.WorkflowSummary]]
	if err := m.get("/api/v1/workflows", &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// GetWorkflow 获取工作流详情
func (m *ModuleEngine) GetWorkflow(id string) (*dto.WorkflowDetail, error) {
	var resp dto.APIResponse[dto.WorkflowDetail]
	if err := m.get("/api/v1/workflows/"+id, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// StartWorkflow 为模块创建安装工作流
func (m *ModuleEngine) StartWorkflow(moduleName string, metadata map[string]interface{}) (*dto.WorkflowDetail, error) {
	req := dto.StartWorkflowRequest{ModuleName: moduleName, Metadata: metadata}
	var resp dto.APIResponse[dto.WorkflowDetail]
	if err := m.post("/api/v1/workflows", req, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// AdvanceWorkflow 推进工作流执行下一个步骤
func (m *ModuleEngine) AdvanceWorkflow(id string) (*dto.StepResultResponse, error) {
	var resp dto.APIResponse[dto.StepResultResponse]
	if err := m.post("/api/v1/workflows/"+id+"/advance", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// RunWorkflow 异步执行工作流的全部剩余步骤
func (m *ModuleEngine) RunWorkflow(id string) error {
	var resp dto.APIResponse[map[string]string]
	if err := m.post("/api/v1/workflows/"+id+"/run", nil, &resp); err != nil {
		return err
	}
	if resp.Code != 0 {
		return errors.New(resp.Message)
	}
	return nil
}

// RollbackWorkflow 回滚工作流（targetStep为空表示完全回滚）
func (m *ModuleEngine) RollbackWorkflow(id string, targetStep string) (*dto.RollbackResponse, error) {
	var body interface{}
	if targetStep != "" {
		body = dto.RollbackRequest{TargetStep: targetStep}
	}
	var resp dto.APIResponse[dto.RollbackResponse]
	if err := m.post("/api/v1/workflows/"+id+"/rollback", body, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// CancelWorkflow 取消工作流
func (m *ModuleEngine) CancelWorkflow(id string) error {
	var resp dto.APIResponse[map[string]string]
	if err := m.post("/api/v1/workflows/"+id+"/cancel", nil, &resp); err != nil {
		return err
	}
	if resp.Code != 0 {
		return errors.New(resp.Message)
	}
	return nil
}

// ========== Bulk API ==========

// StartBulk 启动批量操作
func (m *ModuleEngine) StartBulk(kind string, modules []string) (*dto.BulkRunResponse, error) {
	req := dto.BulkRequest{Kind: kind, Modules: modules}
	var resp dto.APIResponse[dto.BulkRunResponse]
	if err := m.post("/api/v1/bulk", req, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// GetBulk 查询批量操作结果
func (m *ModuleEngine) GetBulk(runID string) (*dto.BulkResultResponse, error) {
	var resp dto.APIResponse[dto.BulkResultResponse]
	if err := m.get("/api/v1/bulk/"+runID, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// CancelBulk 取消批量操作
func (m *ModuleEngine) CancelBulk(runID string) error {
	var resp dto.APIResponse[map[string]string]
	if err := m.post("/api/v1/bulk/"+runID+"/cancel", nil, &resp); err != nil {
		return err
	}
	if resp.Code != 0 {
		return errors.New(resp.Message)
	}
	return nil
}

// ========== Errors API ==========

// ListErrors 查询错误历史
func (m *ModuleEngine) ListErrors(category, severity, moduleName string, unresolved bool, limit int) (*dto.ListResponse[dto.ErrorRecordDetail], error) {
	params := url.Values{}
	if category != "" {
		params.Set("category", category)
	}
	if severity != "" {
		params.Set("severity", severity)
	}
	if moduleName != "" {
		params.Set("module_name", moduleName)
	}
	if unresolved {
		params.Set("unresolved", "true")
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	path := "/api/v1/errors"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp dto.APIResponse[dto.ListResponse[dto.ErrorRecordDetail]]
	if err := m.get(path, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// GetError 获取错误记录详情
func (m *ModuleEngine) GetError(id string) (*dto.ErrorRecordDetail, error) {
	var resp dto.APIResponse[dto.ErrorRecordDetail]
	if err := m.get("/api/v1/errors/"+id, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// Recover 对错误记录执行恢复动作
func (m *ModuleEngine) Recover(errorID, actionID string) (*dto.RecoveryResultResponse, error) {
	req := dto.RecoveryRequest{ActionID: actionID}
	var resp dto.APIResponse[dto.RecoveryResultResponse]
	if err := m.post("/api/v1/errors/"+errorID+"/recover", req, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// ========== Health API ==========

// Health 健康检查
func (m *ModuleEngine) Health() (*dto.HealthResponse, error) {
	var resp dto.APIResponse[dto.HealthResponse]
	if err := m.get("/health", &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// ========== HTTP Methods ==========

func (m *ModuleEngine) get(path string, result interface{}) error {
	resp, err := m.httpClient.Get(m.baseURL + path)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	return m.parseResponse(resp, result)
}

func (m *ModuleEngine) post(path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求体失败: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	resp, err := m.httpClient.Post(m.baseURL+path, "application/json", reqBody)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	return m.parseResponse(resp, result)
}

func (m *ModuleEngine) parseResponse(resp *http.Response, result interface{}) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应体失败: %w", err)
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("解析响应失败: %w, body: %s", err, string(body))
	}

	return nil
}
