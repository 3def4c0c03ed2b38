package dao

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/LENAX/module-engine/pkg/core/lifecycle"
)

// WorkflowInstanceDAO workflow_instance表的数据访问对象（内部使用）
// 步骤序列、元数据和错误ID列表以JSON形式落库
type WorkflowInstanceDAO struct {
	ID           string    `db:"id"`
	ModuleName   string    `db:"module_name"`
	State        string    `db:"state"`
	CurrentIndex int       `db:"current_index"`
	Steps        string    `db:"steps"`
	Metadata     string    `db:"metadata"`
	ErrorIDs     string    `db:"error_ids"`
	Progress     float64   `db:"progress"`
	EstimatedETA int64     `db:"estimated_eta"`
	CancelFlag   bool      `db:"cancel_flag"`
	CreateTime   time.Time `db:"create_time"`
	UpdateTime   time.Time `db:"update_time"`
}

// WorkflowInstanceColumns workflow_instance表的列名列表
var WorkflowInstanceColumns = []string{
	"id", "module_name", "state", "current_index", "steps",
	"metadata", "error_ids", "progress", "estimated_eta",
	"cancel_flag", "create_time", "update_time",
}

// FromInstance 将领域对象转换为DAO（对外导出）
func FromInstance(instance *lifecycle.WorkflowInstance) (*WorkflowInstanceDAO, error) {
	steps, err := json.Marshal(instance.Steps)
	if err != nil {
		return nil, fmt.Errorf("序列化步骤状态失败: %w", err)
	}
	metadata, err := json.Marshal(instance.Metadata)
	if err != nil {
		return nil, fmt.Errorf("序列化元数据失败: %w", err)
	}
	errorIDs, err := json.Marshal(instance.ErrorIDs)
	if err != nil {
		return nil, fmt.Errorf("序列化错误ID列表失败: %w", err)
	}

	return &WorkflowInstanceDAO{
		ID:           instance.ID,
		ModuleName:   instance.ModuleName,
		State:        string(instance.State),
		CurrentIndex: instance.CurrentIndex,
		Steps:        string(steps),
		Metadata:     string(metadata),
		ErrorIDs:     string(errorIDs),
		Progress:     instance.Progress,
		EstimatedETA: int64(instance.EstimatedETA),
		CancelFlag:   instance.CancelFlag,
		CreateTime:   instance.CreateTime,
		UpdateTime:   instance.UpdateTime,
	}, nil
}

// ToInstance 将DAO转换为领域对象（对外导出）
func (d *WorkflowInstanceDAO) ToInstance() (*lifecycle.WorkflowInstance, error) {
	var steps []lifecycle.StepState
	if err := json.Unmarshal([]byte(d.Steps), &steps); err != nil {
		return nil, fmt.Errorf("反序列化步骤状态失败: %w", err)
	}
	metadata := make(map[string]interface{})
	if d.Metadata != "" {
		if err := json.Unmarshal([]byte(d.Metadata), &metadata); err != nil {
			return nil, fmt.Errorf("反序列化元数据失败: %w", err)
		}
	}
	var errorIDs []string
	if d.ErrorIDs != "" {
		if err := json.Unmarshal([]byte(d.ErrorIDs), &errorIDs); err != nil {
			return nil, fmt.Errorf("反序列化错误ID列表失败: %w", err)
		}
	}

	return &lifecycle.WorkflowInstance{
		ID:           d.ID,
		ModuleName:   d.ModuleName,
		State:        lifecycle.WorkflowState(d.State),
		CurrentIndex: d.CurrentIndex,
		Steps:        steps,
		Metadata:     metadata,
		ErrorIDs:     errorIDs,
		Progress:     d.Progress,
		EstimatedETA: time.Duration(d.EstimatedETA),
		CancelFlag:   d.CancelFlag,
		CreateTime:   d.CreateTime,
		UpdateTime:   d.UpdateTime,
	}, nil
}
