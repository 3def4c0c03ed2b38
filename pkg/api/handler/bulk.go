package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/module-engine/pkg/api/dto"
	"github.com/LENAX/module-engine/pkg/core/bulk"
)

// BulkHandler 批量操作API处理器
type BulkHandler struct {
	coordinator bulk.Coordinator
}

// NewBulkHandler 创建BulkHandler
func NewBulkHandler(coordinator bulk.Coordinator) *BulkHandler {
	return &BulkHandler{coordinator: coordinator}
}

// Start 启动批量操作
// POST /api/v1/bulk
func (h *BulkHandler) Start(c *gin.Context) {
	var req dto.BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("请求参数无效: %v", err)))
		return
	}

	// 批量操作生命周期长于请求，使用独立上下文
	run, err := h.coordinator.Start(context.Background(), bulk.Kind(req.Kind), req.Modules)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(dto.BulkRunResponse{
		RunID: run.ID,
		Kind:  string(run.Kind),
		Total: len(run.Modules),
	}))
}

// Get 查询批量操作结果
// GET /api/v1/bulk/:id
func (h *BulkHandler) Get(c *gin.Context) {
	result, err := h.coordinator.GetResult(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(toBulkResult(result)))
}

// Cancel 取消批量操作
// POST /api/v1/bulk/:id/cancel
func (h *BulkHandler) Cancel(c *gin.Context) {
	if err := h.coordinator.Cancel(c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{
		"run_id":  c.Param("id"),
		"message": "取消请求已受理",
	}))
}

// writeError 映射批量操作错误到HTTP状态码（内部方法）
func (h *BulkHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, bulk.ErrUnknownRun):
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, err.Error()))
	case errors.Is(err, bulk.ErrEmptyModuleList), errors.Is(err, bulk.ErrUnknownKind):
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
	}
}

// toBulkResult 转换为结果DTO（内部方法）
func toBulkResult(result *bulk.Result) dto.BulkResultResponse {
	outcomes := make([]dto.BulkOutcomeDetail, 0, len(result.Outcomes))
	for _, outcome := range result.Outcomes {
		outcomes = append(outcomes, dto.BulkOutcomeDetail{
			ModuleName: outcome.ModuleName,
			Status:     string(outcome.Status),
			WorkflowID: outcome.WorkflowID,
			ErrorID:    outcome.ErrorID,
			Message:    outcome.Message,
		})
	}
	resp := dto.BulkResultResponse{
		RunID:     result.RunID,
		Kind:      string(result.Kind),
		State:     string(result.State),
		Total:     result.Total,
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
		Skipped:   result.Skipped,
		Outcomes:  outcomes,
		StartTime: result.StartTime,
	}
	if !result.EndTime.IsZero() {
		endTime := result.EndTime
		resp.EndTime = &endTime
	}
	return resp
}
