package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/module-engine/pkg/api/dto"
	"github.com/LENAX/module-engine/pkg/core/failure"
)

// ErrorsHandler 错误历史与恢复动作API处理器
type ErrorsHandler struct {
	classifier *failure.Classifier
}

// NewErrorsHandler 创建ErrorsHandler
func NewErrorsHandler(classifier *failure.Classifier) *ErrorsHandler {
	return &ErrorsHandler{classifier: classifier}
}

// List 查询错误历史
// GET /api/v1/errors
func (h *ErrorsHandler) List(c *gin.Context) {
	var req dto.ErrorHistoryQueryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("查询参数无效: %v", err)))
		return
	}

	records := h.classifier.GetErrorHistory(failure.HistoryFilter{
		Category:   failure.Category(req.Category),
		Severity:   failure.Severity(req.Severity),
		ModuleName: req.ModuleName,
		WorkflowID: req.WorkflowID,
		Unresolved: req.Unresolved,
		Limit:      req.GetDefaultLimit(),
	})

	items := make([]dto.ErrorRecordDetail, 0, len(records))
	for _, record := range records {
		items = append(items, toErrorDetail(record))
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.ErrorRecordDetail]{
		Total:   len(items),
		Items:   items,
		HasMore: false,
	}))
}

// Get 查询单条错误记录
// GET /api/v1/errors/:id
func (h *ErrorsHandler) Get(c *gin.Context) {
	record, ok := h.classifier.GetRecord(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, "错误记录不存在"))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(toErrorDetail(record)))
}

// Recover 对错误记录执行恢复动作
// POST /api/v1/errors/:id/recover
func (h *ErrorsHandler) Recover(c *gin.Context) {
	var req dto.RecoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("请求参数无效: %v", err)))
		return
	}

	result, err := h.classifier.ExecuteRecoveryAction(c.Request.Context(), c.Param("id"), req.ActionID)
	if err != nil {
		switch {
		case errors.Is(err, failure.ErrUnknownError):
			c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, err.Error()))
		case errors.Is(err, failure.ErrUnknownAction):
			c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, err.Error()))
		default:
			c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, err.Error()))
		}
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.RecoveryResultResponse{
		ErrorID:  result.ErrorID,
		ActionID: result.ActionID,
		Success:  result.Success,
		Message:  result.Message,
	}))
}

// toErrorDetail 转换为错误记录DTO（内部方法）
func toErrorDetail(record *failure.ErrorRecord) dto.ErrorRecordDetail {
	return dto.ErrorRecordDetail{
		ID:              record.ID,
		Category:        string(record.Category),
		Severity:        string(record.Severity),
		Message:         record.Message,
		WorkflowID:      record.WorkflowID,
		ModuleName:      record.ModuleName,
		Step:            record.Step,
		Context:         record.Context,
		RecoveryActions: record.RecoveryActions,
		Timestamp:       record.Timestamp,
		Resolved:        record.Resolved,
	}
}
