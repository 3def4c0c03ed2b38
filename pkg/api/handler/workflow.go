package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/module-engine/pkg/api/dto"
	"github.com/LENAX/module-engine/pkg/core/engine"
	"github.com/LENAX/module-engine/pkg/core/lifecycle"
)

// WorkflowHandler 工作流API处理器
type WorkflowHandler struct {
	engine engine.WorkflowEngine
}

// NewWorkflowHandler 创建WorkflowHandler
func NewWorkflowHandler(eng engine.WorkflowEngine) *WorkflowHandler {
	return &WorkflowHandler{engine: eng}
}

// List 列出所有非终态工作流
// GET /api/v1/workflows
func (h *WorkflowHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	instances, err := h.engine.ListActiveWorkflows(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("查询工作流失败: %v", err)))
		return
	}

	items := make([]dto.WorkflowSummary, 0, len(instances))
	for _, instance := range instances {
		items = append(items, toSummary(instance))
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.WorkflowSummary]{
		Total:   len(items),
		Items:   items,
		HasMore: false,
	}))
}

// Create 创建工作流
// POST /api/v1/workflows
func (h *WorkflowHandler) Create(c *gin.Context) {
	var req dto.StartWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("请求参数无效: %v", err)))
		return
	}

	instance, err := h.engine.StartWorkflow(c.Request.Context(), req.ModuleName, nil, req.Metadata)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewSuccessResponse(toDetail(instance)))
}

// Get 获取工作流详情
// GET /api/v1/workflows/:id
func (h *WorkflowHandler) Get(c *gin.Context) {
	instance, err := h.engine.GetWorkflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(toDetail(instance)))
}

// Advance 推进下一个步骤
// POST /api/v1/workflows/:id/advance
func (h *WorkflowHandler) Advance(c *gin.Context) {
	result, err := h.engine.ExecuteNextStep(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.StepResultResponse{
		WorkflowID: result.WorkflowID,
		Step:       string(result.Step),
		StepIndex:  result.StepIndex,
		Status:     string(result.Status),
		Duration:   result.Duration.String(),
		ErrorID:    result.ErrorID,
		Completed:  result.Completed,
		Cancelled:  result.Cancelled,
	}))
}

// Run 异步推进工作流到终态
// POST /api/v1/workflows/:id/run
func (h *WorkflowHandler) Run(c *gin.Context) {
	id := c.Param("id")

	// 先校验工作流存在，再异步执行
	if _, err := h.engine.GetWorkflow(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}

	// 请求上下文在响应后取消，异步执行使用独立上下文
	go func() {
		if err := h.engine.RunWorkflow(context.Background(), id); err != nil {
			log.Printf("⚠️ 异步执行工作流失败: workflow=%s, err=%v", id, err)
		}
	}()

	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(map[string]string{
		"workflow_id": id,
		"message":     "已开始执行",
	}))
}

// Rollback 回滚工作流
// POST /api/v1/workflows/:id/rollback
func (h *WorkflowHandler) Rollback(c *gin.Context) {
	// 空请求体表示完全回滚
	var req dto.RollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("请求参数无效: %v", err)))
		return
	}

	result, err := h.engine.RollbackToStep(c.Request.Context(), c.Param("id"), lifecycle.Step(req.TargetStep))
	if err != nil {
		h.writeError(c, err)
		return
	}

	compensated := make([]string, len(result.Compensated))
	for i, s := range result.Compensated {
		compensated[i] = string(s)
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.RollbackResponse{
		WorkflowID:  result.WorkflowID,
		TargetIndex: result.TargetIndex,
		Compensated: compensated,
		Partial:     result.Partial,
		ErrorID:     result.ErrorID,
		FinalState:  string(result.FinalState),
	}))
}

// Cancel 取消工作流
// POST /api/v1/workflows/:id/cancel
func (h *WorkflowHandler) Cancel(c *gin.Context) {
	if err := h.engine.CancelWorkflow(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{
		"workflow_id": c.Param("id"),
		"message":     "取消请求已受理",
	}))
}

// writeError 映射引擎错误到HTTP状态码（内部方法）
func (h *WorkflowHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrUnknownWorkflow):
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, err.Error()))
	case errors.Is(err, engine.ErrDuplicateWorkflow), errors.Is(err, engine.ErrInvalidState):
		c.JSON(http.StatusConflict, dto.NewErrorResponse(409, err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
	}
}

// toSummary 转换为摘要DTO（内部方法）
func toSummary(instance *lifecycle.WorkflowInstance) dto.WorkflowSummary {
	currentStep := ""
	if step, ok := instance.CurrentStep(); ok {
		currentStep = string(step)
	}
	eta := ""
	if instance.EstimatedETA > 0 {
		eta = instance.EstimatedETA.String()
	}
	return dto.WorkflowSummary{
		ID:           instance.ID,
		ModuleName:   instance.ModuleName,
		State:        string(instance.State),
		CurrentStep:  currentStep,
		Progress:     instance.Progress,
		EstimatedETA: eta,
		CreatedAt:    instance.CreateTime,
		UpdatedAt:    instance.UpdateTime,
	}
}

// toDetail 转换为详情DTO（内部方法）
func toDetail(instance *lifecycle.WorkflowInstance) dto.WorkflowDetail {
	steps := make([]dto.StepInfo, 0, len(instance.Steps))
	for _, s := range instance.Steps {
		duration := ""
		if s.Duration > 0 {
			duration = s.Duration.String()
		}
		steps = append(steps, dto.StepInfo{
			Step:       string(s.Step),
			Status:     string(s.Status),
			StartedAt:  s.StartedAt,
			FinishedAt: s.FinishedAt,
			Duration:   duration,
			ErrorID:    s.ErrorID,
		})
	}
	return dto.WorkflowDetail{
		WorkflowSummary: toSummary(instance),
		Steps:           steps,
		Metadata:        instance.Metadata,
		ErrorIDs:        instance.ErrorIDs,
	}
}
