package dao

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/LENAX/module-engine/pkg/core/failure"
)

// ErrorRecordDAO error_record表的数据访问对象（内部使用）
type ErrorRecordDAO struct {
	ID              string    `db:"id"`
	Category        string    `db:"category"`
	Severity        string    `db:"severity"`
	Message         string    `db:"message"`
	WorkflowID      string    `db:"workflow_id"`
	ModuleName      string    `db:"module_name"`
	Step            string    `db:"step"`
	Context         string    `db:"context"`
	RecoveryActions string    `db:"recovery_actions"`
	Resolved        bool      `db:"resolved"`
	Timestamp       time.Time `db:"timestamp"`
}

// ErrorRecordColumns error_record表的列名列表
var ErrorRecordColumns = []string{
	"id", "category", "severity", "message", "workflow_id",
	"module_name", "step", "context", "recovery_actions",
	"resolved", "timestamp",
}

// FromErrorRecord 将领域对象转换为DAO（对外导出）
func FromErrorRecord(record *failure.ErrorRecord) (*ErrorRecordDAO, error) {
	context, err := json.Marshal(record.Context)
	if err != nil {
		return nil, fmt.Errorf("序列化错误上下文失败: %w", err)
	}
	actions, err := json.Marshal(record.RecoveryActions)
	if err != nil {
		return nil, fmt.Errorf("序列化恢复动作列表失败: %w", err)
	}

	return &ErrorRecordDAO{
		ID:              record.ID,
		Category:        string(record.Category),
		Severity:        string(record.Severity),
		Message:         record.Message,
		WorkflowID:      record.WorkflowID,
		ModuleName:      record.ModuleName,
		Step:            record.Step,
		Context:         string(context),
		RecoveryActions: string(actions),
		Resolved:        record.Resolved,
		Timestamp:       record.Timestamp,
	}, nil
}

// ToErrorRecord 将DAO转换为领域对象（对外导出）
func (d *ErrorRecordDAO) ToErrorRecord() (*failure.ErrorRecord, error) {
	context := make(map[string]interface{})
	if d.Context != "" {
		if err := json.Unmarshal([]byte(d.Context), &context); err != nil {
			return nil, fmt.Errorf("反序列化错误上下文失败: %w", err)
		}
	}
	var actions []string
	if d.RecoveryActions != "" {
		if err := json.Unmarshal([]byte(d.RecoveryActions), &actions); err != nil {
			return nil, fmt.Errorf("反序列化恢复动作列表失败: %w", err)
		}
	}

	return &failure.ErrorRecord{
		ID:              d.ID,
		Category:        failure.Category(d.Category),
		Severity:        failure.Severity(d.Severity),
		Message:         d.Message,
		WorkflowID:      d.WorkflowID,
		ModuleName:      d.ModuleName,
		Step:            d.Step,
		Context:         context,
		RecoveryActions: actions,
		Resolved:        d.Resolved,
		Timestamp:       d.Timestamp,
	}, nil
}
